package orchestrator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ledgerfabric/pkg/obsmetrics"
)

const (
	defaultMinConsensus = 3
	healthTimeout       = 2 * time.Second
	writeTimeout        = 5 * time.Second
	readTimeout         = 2 * time.Second
)

// QuorumResult is the outcome of a quorum write: whether enough replicas
// committed, and the event ids assigned by each replica that did.
type QuorumResult struct {
	Success  bool
	EventIDs []string
	Message  string
}

// Orchestrator fans register/transfer operations out to a static set of
// replicas, requires a minimum number of agreeing replicas before
// reporting success, and self-heals under-replicated assets. It holds no
// ledger state of its own.
type Orchestrator struct {
	replicas     []string
	minConsensus int
	pool         *ClientPool
	logger       *logrus.Logger

	mu     sync.Mutex
	active []string

	sem     chan struct{}
	metrics *obsmetrics.OrchestratorMetrics
}

// NewOrchestrator builds an Orchestrator over the given static replica base
// URLs. minConsensus defaults to 3 if <= 0.
func NewOrchestrator(replicas []string, minConsensus int, logger *logrus.Logger) *Orchestrator {
	if minConsensus <= 0 {
		minConsensus = defaultMinConsensus
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Orchestrator{
		replicas:     replicas,
		minConsensus: minConsensus,
		pool:         NewClientPool(writeTimeout),
		logger:       logger,
		sem:          make(chan struct{}, len(replicas)),
	}
}

// SetMetrics attaches Prometheus metrics the orchestrator should update as
// it runs quorum operations. Safe to leave unset; metric updates are
// skipped when nil.
func (o *Orchestrator) SetMetrics(m *obsmetrics.OrchestratorMetrics) {
	o.metrics = m
}

// MinConsensus returns the configured quorum threshold.
func (o *Orchestrator) MinConsensus() int { return o.minConsensus }

// Replicas returns the static configured replica list.
func (o *Orchestrator) Replicas() []string { return append([]string(nil), o.replicas...) }

// Active returns the most recently computed active-replica snapshot.
func (o *Orchestrator) Active() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.active...)
}

func (o *Orchestrator) run(fn func()) {
	o.sem <- struct{}{}
	go func() {
		defer func() { <-o.sem }()
		fn()
	}()
}

// RefreshActive probes every configured replica's /health endpoint in
// parallel with a short timeout and caches the responding subset.
func (o *Orchestrator) RefreshActive(ctx context.Context) []string {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var active []string

	for _, url := range o.replicas {
		url := url
		wg.Add(1)
		o.run(func() {
			defer wg.Done()
			hctx, cancel := context.WithTimeout(ctx, healthTimeout)
			defer cancel()
			if o.pool.Get(url).Health(hctx) {
				mu.Lock()
				active = append(active, url)
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	o.mu.Lock()
	o.active = active
	o.mu.Unlock()
	if o.metrics != nil {
		o.metrics.ActiveReplicas.Set(float64(len(active)))
	}
	return active
}

func sampleN(population []string, n int) []string {
	if n > len(population) {
		n = len(population)
	}
	shuffled := append([]string(nil), population...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}

func subtract(a, b []string) []string {
	excl := make(map[string]struct{}, len(b))
	for _, x := range b {
		excl[x] = struct{}{}
	}
	var out []string
	for _, x := range a {
		if _, ok := excl[x]; !ok {
			out = append(out, x)
		}
	}
	return out
}

// RegisterAsset performs a quorum write: it refreshes the active set,
// samples target_count = min(|active|, max(min_consensus, 3)) replicas,
// fans the register out to all of them, and reports success once
// min_consensus of them commit.
func (o *Orchestrator) RegisterAsset(ctx context.Context, assetID, userID string, data map[string]interface{}) QuorumResult {
	active := o.RefreshActive(ctx)
	if len(active) < o.minConsensus {
		return QuorumResult{Message: "insufficient replicas"}
	}

	targetCount := o.minConsensus
	if targetCount < 3 {
		targetCount = 3
	}
	if targetCount > len(active) {
		targetCount = len(active)
	}
	targets := sampleN(active, targetCount)

	eventIDs := o.fanOutRegister(ctx, targets, assetID, userID, data)
	if o.metrics != nil {
		o.metrics.QuorumWritesTotal.WithLabelValues("register").Inc()
	}
	if len(eventIDs) >= o.minConsensus {
		return QuorumResult{Success: true, EventIDs: eventIDs, Message: "quorum reached"}
	}
	if o.metrics != nil {
		o.metrics.QuorumWriteFailures.WithLabelValues("register").Inc()
	}
	o.logger.WithFields(logrus.Fields{"asset_id": assetID, "successes": len(eventIDs)}).Warn("quorum shortfall on register")
	return QuorumResult{EventIDs: eventIDs, Message: "quorum not reached"}
}

func (o *Orchestrator) fanOutRegister(ctx context.Context, targets []string, assetID, userID string, data map[string]interface{}) []string {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var eventIDs []string

	for _, url := range targets {
		url := url
		wg.Add(1)
		o.run(func() {
			defer wg.Done()
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			defer cancel()
			id, err := o.pool.Get(url).RegisterAsset(wctx, assetID, userID, data)
			if err != nil {
				o.logger.WithError(err).WithField("replica", url).Warn("register_asset failed")
				return
			}
			mu.Lock()
			eventIDs = append(eventIDs, id)
			mu.Unlock()
		})
	}
	wg.Wait()
	return eventIDs
}

// findReplicasWithAsset queries asset_history on every active replica in
// parallel and returns those reporting a non-empty history.
func (o *Orchestrator) findReplicasWithAsset(ctx context.Context, active []string, assetID string) []string {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var found []string

	for _, url := range active {
		url := url
		wg.Add(1)
		o.run(func() {
			defer wg.Done()
			rctx, cancel := context.WithTimeout(ctx, readTimeout)
			defer cancel()
			history, err := o.pool.Get(url).AssetHistory(rctx, assetID)
			if err != nil || len(history) == 0 {
				return
			}
			mu.Lock()
			found = append(found, url)
			mu.Unlock()
		})
	}
	wg.Wait()
	return found
}

func (o *Orchestrator) verifyOwnershipOn(ctx context.Context, replicas []string, assetID, userID string) []string {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var verified []string

	for _, url := range replicas {
		url := url
		wg.Add(1)
		o.run(func() {
			defer wg.Done()
			rctx, cancel := context.WithTimeout(ctx, readTimeout)
			defer cancel()
			ok, err := o.pool.Get(url).VerifyOwnership(rctx, assetID, userID)
			if err != nil || !ok {
				return
			}
			mu.Lock()
			verified = append(verified, url)
			mu.Unlock()
		})
	}
	wg.Wait()
	return verified
}

// TransferAsset performs the subtler quorum write: the asset must already
// be held, with from-user ownership confirmed, on at least min_consensus
// replicas before the transfer is fanned out. If too few replicas hold it
// but at least one confirms ownership, self-healing replication runs first.
func (o *Orchestrator) TransferAsset(ctx context.Context, assetID, fromUser, toUser string) QuorumResult {
	active := o.RefreshActive(ctx)
	holders := o.findReplicasWithAsset(ctx, active, assetID)

	if len(holders) < o.minConsensus {
		valid := o.verifyOwnershipOn(ctx, holders, assetID, fromUser)
		if len(valid) == 0 {
			return QuorumResult{Message: "asset not owned by from_user on any replica"}
		}
		o.selfHealReplicate(ctx, assetID, fromUser, active, valid)
		holders = o.findReplicasWithAsset(ctx, active, assetID)
	}

	valid := o.verifyOwnershipOn(ctx, holders, assetID, fromUser)
	if len(valid) < o.minConsensus {
		return QuorumResult{Message: "insufficient ownership verification"}
	}

	eventIDs := o.fanOutTransfer(ctx, valid, assetID, fromUser, toUser)
	if o.metrics != nil {
		o.metrics.QuorumWritesTotal.WithLabelValues("transfer").Inc()
	}
	if len(eventIDs) >= o.minConsensus {
		return QuorumResult{Success: true, EventIDs: eventIDs, Message: "quorum reached"}
	}
	if o.metrics != nil {
		o.metrics.QuorumWriteFailures.WithLabelValues("transfer").Inc()
	}
	o.logger.WithFields(logrus.Fields{"asset_id": assetID, "successes": len(eventIDs)}).Warn("quorum shortfall on transfer")
	return QuorumResult{EventIDs: eventIDs, Message: "quorum not reached"}
}

func (o *Orchestrator) fanOutTransfer(ctx context.Context, targets []string, assetID, fromUser, toUser string) []string {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var eventIDs []string

	for _, url := range targets {
		url := url
		wg.Add(1)
		o.run(func() {
			defer wg.Done()
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			defer cancel()
			id, err := o.pool.Get(url).TransferAsset(wctx, assetID, fromUser, toUser)
			if err != nil {
				o.logger.WithError(err).WithField("replica", url).Warn("transfer_asset failed")
				return
			}
			mu.Lock()
			eventIDs = append(eventIDs, id)
			mu.Unlock()
		})
	}
	wg.Wait()
	return eventIDs
}

// selfHealReplicate re-registers assetID, under its original owner, on
// enough additional active replicas to reach min_consensus holders. It
// fetches the asset's data from source[0] and logs per-target outcomes; it
// never returns an error, matching the prototype's best-effort behavior.
func (o *Orchestrator) selfHealReplicate(ctx context.Context, assetID, userID string, active, source []string) {
	if len(source) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	data, err := o.pool.Get(source[0]).AssetData(rctx, assetID)
	if err != nil {
		o.logger.WithError(err).WithField("asset_id", assetID).Warn("self-heal: failed to fetch source asset data")
		return
	}

	needed := o.minConsensus - len(source)
	if needed <= 0 {
		return
	}
	candidates := subtract(active, source)
	if len(candidates) < needed {
		o.logger.WithFields(logrus.Fields{"asset_id": assetID, "needed": needed, "candidates": len(candidates)}).
			Warn("self-heal: not enough candidate replicas, aborting")
		return
	}
	targets := sampleN(candidates, needed)

	var wg sync.WaitGroup
	for _, url := range targets {
		url := url
		wg.Add(1)
		o.run(func() {
			defer wg.Done()
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			defer cancel()
			if _, err := o.pool.Get(url).RegisterAsset(wctx, assetID, userID, data); err != nil {
				o.logger.WithError(err).WithFields(logrus.Fields{"asset_id": assetID, "replica": url}).
					Warn("self-heal: replication to target failed")
				return
			}
			if o.metrics != nil {
				o.metrics.SelfHealReplications.Inc()
			}
			o.logger.WithFields(logrus.Fields{"asset_id": assetID, "replica": url}).Info("self-heal: replicated asset")
		})
	}
	wg.Wait()
}

// AssetHistoryQuorum performs a quorum read: it requires at least
// min_consensus replicas to hold the asset, fans out the history request to
// all of them, and returns the first non-empty response collected.
// Divergence across replicas is not reconciled.
func (o *Orchestrator) AssetHistoryQuorum(ctx context.Context, assetID string) ([]HistoryEntryDTO, error) {
	active := o.RefreshActive(ctx)
	holders := o.findReplicasWithAsset(ctx, active, assetID)
	if len(holders) < o.minConsensus {
		return nil, nil
	}

	type result struct {
		history []HistoryEntryDTO
	}
	results := make(chan result, len(holders))
	var wg sync.WaitGroup
	for _, url := range holders {
		url := url
		wg.Add(1)
		o.run(func() {
			defer wg.Done()
			rctx, cancel := context.WithTimeout(ctx, readTimeout)
			defer cancel()
			history, err := o.pool.Get(url).AssetHistory(rctx, assetID)
			if err != nil || len(history) == 0 {
				return
			}
			dto := make([]HistoryEntryDTO, len(history))
			for i, h := range history {
				dto[i] = HistoryEntryDTO{UserID: h.UserID, Timestamp: h.Timestamp, EventID: h.EventID, Action: string(h.Action)}
			}
			results <- result{history: dto}
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var collected int
	var first []HistoryEntryDTO
	for r := range results {
		collected++
		if first == nil {
			first = r.history
		}
	}
	if collected < o.minConsensus {
		return nil, nil
	}
	return first, nil
}

// AssetDataQuorum performs the same quorum read as AssetHistoryQuorum, but
// for an asset's register-event data: at least min_consensus replicas must
// hold the asset, and the first non-empty response collected wins. This is
// distinct from selfHealReplicate's fetch, which deliberately reads from a
// single already-verified source per spec's self-heal algorithm rather than
// requiring quorum agreement.
func (o *Orchestrator) AssetDataQuorum(ctx context.Context, assetID string) (map[string]interface{}, error) {
	active := o.RefreshActive(ctx)
	holders := o.findReplicasWithAsset(ctx, active, assetID)
	if len(holders) < o.minConsensus {
		return nil, nil
	}

	type result struct {
		data map[string]interface{}
	}
	results := make(chan result, len(holders))
	var wg sync.WaitGroup
	for _, url := range holders {
		url := url
		wg.Add(1)
		o.run(func() {
			defer wg.Done()
			rctx, cancel := context.WithTimeout(ctx, readTimeout)
			defer cancel()
			data, err := o.pool.Get(url).AssetData(rctx, assetID)
			if err != nil || len(data) == 0 {
				return
			}
			results <- result{data: data}
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var collected int
	var first map[string]interface{}
	for r := range results {
		collected++
		if first == nil {
			first = r.data
		}
	}
	if collected < o.minConsensus {
		return nil, nil
	}
	return first, nil
}

// HistoryEntryDTO is the wire shape of a core.HistoryEntry, duplicated here
// so callers of the orchestrator package receive the action as a plain
// string instead of core.Action.
type HistoryEntryDTO struct {
	UserID    string  `json:"user_id"`
	Timestamp float64 `json:"timestamp"`
	EventID   string  `json:"node_id"`
	Action    string  `json:"action"`
}

// UserAssetsQuorum returns the union of asset ids any active replica
// reports as owned by userID. No consensus threshold applies to this read.
func (o *Orchestrator) UserAssetsQuorum(ctx context.Context, userID string) []string {
	active := o.RefreshActive(ctx)

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]struct{})

	for _, url := range active {
		url := url
		wg.Add(1)
		o.run(func() {
			defer wg.Done()
			rctx, cancel := context.WithTimeout(ctx, readTimeout)
			defer cancel()
			var out struct {
				Assets []string `json:"assets"`
			}
			if err := o.pool.Get(url).getJSON(rctx, "/user_assets/"+userID, &out); err != nil {
				return
			}
			mu.Lock()
			for _, a := range out.Assets {
				seen[a] = struct{}{}
			}
			mu.Unlock()
		})
	}
	wg.Wait()

	assets := make([]string, 0, len(seen))
	for a := range seen {
		assets = append(assets, a)
	}
	return assets
}

// OwnershipQuorumResult is the outcome of quorum ownership verification,
// carrying the verified_count and total_blockchains fields that SPEC_FULL.md
// §6.2 adds to the plain replica response. min_consensus is not part of it;
// the HTTP handler adds it from MinConsensus.
type OwnershipQuorumResult struct {
	IsOwner          bool
	VerifiedCount    int
	TotalBlockchains int
}

// VerifyOwnershipQuorum fans verify_ownership out to every replica holding
// assetID and reports ownership confirmed once verified_count reaches
// min_consensus.
func (o *Orchestrator) VerifyOwnershipQuorum(ctx context.Context, assetID, userID string) (OwnershipQuorumResult, error) {
	active := o.RefreshActive(ctx)
	holders := o.findReplicasWithAsset(ctx, active, assetID)
	verified := o.verifyOwnershipOn(ctx, holders, assetID, userID)

	return OwnershipQuorumResult{
		IsOwner:          len(verified) >= o.minConsensus,
		VerifiedCount:    len(verified),
		TotalBlockchains: len(holders),
	}, nil
}

// Close releases pooled HTTP resources.
func (o *Orchestrator) Close() {
	o.pool.Close()
}
