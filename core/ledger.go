package core

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// HistoryEntry is one linearized step in an asset's ownership chain.
type HistoryEntry struct {
	UserID    string  `json:"user_id"`
	Timestamp float64 `json:"timestamp"`
	EventID   string  `json:"node_id"`
	Action    Action  `json:"action"`
}

// Stats summarises a ledger's contents, mirroring the prototype's
// blockchain_stats endpoint.
type Stats struct {
	TotalEvents  int            `json:"total_nodes"`
	TotalTips    int            `json:"total_tips"`
	UniqueAssets int            `json:"unique_assets"`
	UniqueUsers  int            `json:"unique_users"`
	ActionCounts map[Action]int `json:"action_counts"`
}

// Ledger is a single replica's append-only DAG of asset events. All reads
// and writes are serialized by mu: a coarse RWMutex held for the entire
// duration of a write (validate, mutate, persist) so invariants 1-6 hold
// under concurrent callers. See DESIGN.md for why this replaces the
// prototype's boolean write-lock flag.
type Ledger struct {
	mu          sync.RWMutex
	events      map[string]*Event
	tips        map[string]struct{}
	storagePath string
	logger      *logrus.Logger
}

// NewLedger opens or creates a ledger backed by storagePath. If the file
// exists it is loaded immediately; a corrupt primary file falls back to its
// .bak companion (see persist.go).
func NewLedger(storagePath string, logger *logrus.Logger) (*Ledger, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	l := &Ledger{
		events:      make(map[string]*Event),
		tips:        make(map[string]struct{}),
		storagePath: storagePath,
		logger:      logger,
	}
	if err := l.loadIfPresent(); err != nil {
		return nil, err
	}
	return l, nil
}

// AddEvent validates e against the current ledger state, appends it,
// updates the tip set, and persists to disk — all under a single write
// lock. Persistence failure is logged but the in-memory mutation stands.
func (l *Ledger) AddEvent(e *Event) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.validateLocked(e); err != nil {
		l.logger.WithFields(logrus.Fields{
			"asset_id": e.AssetID, "action": e.Action,
		}).Warnf("event validation failed: %v", err)
		return "", err
	}

	l.events[e.EventID] = e
	for _, ref := range e.References {
		delete(l.tips, ref)
	}
	l.tips[e.EventID] = struct{}{}

	l.logger.WithFields(logrus.Fields{
		"event_id": e.EventID, "action": e.Action, "asset_id": e.AssetID, "user_id": e.UserID,
	}).Info("event appended")

	if err := l.saveLocked(); err != nil {
		l.logger.WithError(err).Error("failed to persist ledger after append")
	}

	return e.EventID, nil
}

func (l *Ledger) validateLocked(e *Event) error {
	if _, exists := l.events[e.EventID]; exists {
		return newError(KindValidationReject, "node with id %s already exists", e.EventID)
	}
	for _, ref := range e.References {
		if _, ok := l.events[ref]; !ok {
			return newError(KindValidationReject, "referenced node %s does not exist", ref)
		}
	}
	if len(e.References) > 2 {
		return newError(KindValidationReject, "a node cannot have more than 2 references")
	}

	switch e.Action {
	case ActionRegister:
		for _, existing := range l.events {
			if existing.AssetID == e.AssetID && existing.Action == ActionRegister {
				return newError(KindValidationReject, "asset %s is already registered", e.AssetID)
			}
		}
	case ActionTransfer:
		history := l.ownershipHistoryLocked(e.AssetID)
		if len(history) == 0 {
			return newError(KindValidationReject, "asset %s is not registered", e.AssetID)
		}
		currentOwner := history[len(history)-1].UserID
		if currentOwner != e.UserID {
			return newError(KindValidationReject, "transfer requested by %s, but asset is owned by %s", e.UserID, currentOwner)
		}
		recipient, ok := e.Data["recipient_id"]
		if !ok {
			return newError(KindValidationReject, "transfer must include a recipient_id in the data")
		}
		recipientID, _ := recipient.(string)
		if recipientID == e.UserID {
			return newError(KindValidationReject, "cannot transfer asset to yourself")
		}
		if recipientID == "" {
			return newError(KindValidationReject, "recipient id cannot be empty")
		}
	}
	return nil
}

// GetEvent returns the event with the given id, if present.
func (l *Ledger) GetEvent(id string) (*Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.events[id]
	return e, ok
}

// GetAssetEvents returns every event recorded for assetID, in no
// particular order.
func (l *Ledger) GetAssetEvents(assetID string) []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Event
	for _, e := range l.events {
		if e.AssetID == assetID {
			out = append(out, e)
		}
	}
	return out
}

// GetUserEvents returns every event initiated by userID, in no particular
// order.
func (l *Ledger) GetUserEvents(userID string) []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Event
	for _, e := range l.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// GetAssetOwnershipHistory linearizes assetID's events into ownership
// transitions, oldest first. Ties in timestamp are broken by ascending
// event id (documented tie-break rule, see DESIGN.md).
func (l *Ledger) GetAssetOwnershipHistory(assetID string) []HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ownershipHistoryLocked(assetID)
}

func (l *Ledger) ownershipHistoryLocked(assetID string) []HistoryEntry {
	var assetEvents []*Event
	for _, e := range l.events {
		if e.AssetID == assetID {
			assetEvents = append(assetEvents, e)
		}
	}
	if len(assetEvents) == 0 {
		return nil
	}
	sort.Slice(assetEvents, func(i, j int) bool {
		if assetEvents[i].Timestamp != assetEvents[j].Timestamp {
			return assetEvents[i].Timestamp < assetEvents[j].Timestamp
		}
		return assetEvents[i].EventID < assetEvents[j].EventID
	})

	history := make([]HistoryEntry, 0, len(assetEvents))
	for _, e := range assetEvents {
		switch e.Action {
		case ActionRegister:
			history = append(history, HistoryEntry{
				UserID: e.UserID, Timestamp: e.Timestamp, EventID: e.EventID, Action: ActionRegister,
			})
		case ActionTransfer:
			if recipient, ok := e.Data["recipient_id"].(string); ok {
				history = append(history, HistoryEntry{
					UserID: recipient, Timestamp: e.Timestamp, EventID: e.EventID, Action: ActionTransfer,
				})
			}
		}
	}
	return history
}

// GetUserAssets returns the ids of every asset whose current owner (the
// last ownership-history entry) is userID.
func (l *Ledger) GetUserAssets(userID string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	assetIDs := make(map[string]struct{})
	for _, e := range l.events {
		assetIDs[e.AssetID] = struct{}{}
	}
	var owned []string
	for assetID := range assetIDs {
		history := l.ownershipHistoryLocked(assetID)
		if len(history) > 0 && history[len(history)-1].UserID == userID {
			owned = append(owned, assetID)
		}
	}
	return owned
}

// OwnershipStatus is the payload for the asset_staking_status endpoint
// carried over from the prototype: staking itself was removed, but clients
// still poll this shape, so is_staked is always false.
type OwnershipStatus struct {
	AssetID  string `json:"asset_id"`
	OwnerID  string `json:"owner_id"`
	IsStaked bool   `json:"is_staked"`
	Exists   bool   `json:"-"`
}

// OwnershipStatus reports assetID's current owner in the shape the
// prototype's staking-status endpoint used. Exists is false if assetID has
// no register event yet.
func (l *Ledger) OwnershipStatus(assetID string) OwnershipStatus {
	history := l.GetAssetOwnershipHistory(assetID)
	if len(history) == 0 {
		return OwnershipStatus{AssetID: assetID}
	}
	return OwnershipStatus{
		AssetID:  assetID,
		OwnerID:  history[len(history)-1].UserID,
		IsStaked: false,
		Exists:   true,
	}
}

// VerifyOwnership reports whether userID is assetID's current owner.
func (l *Ledger) VerifyOwnership(assetID, userID string) bool {
	history := l.GetAssetOwnershipHistory(assetID)
	if len(history) == 0 {
		return false
	}
	return history[len(history)-1].UserID == userID
}

// ChooseReferences picks the references a new event should carry: two
// distinct tips sampled uniformly without replacement when at least two
// exist, otherwise every current tip (possibly none).
func (l *Ledger) ChooseReferences() []string {
	l.mu.RLock()
	tips := make([]string, 0, len(l.tips))
	for id := range l.tips {
		tips = append(tips, id)
	}
	l.mu.RUnlock()

	if len(tips) < 2 {
		return tips
	}
	rand.Shuffle(len(tips), func(i, j int) { tips[i], tips[j] = tips[j], tips[i] })
	return tips[:2]
}

// VerifyIntegrity runs the full consistency pass described in SPEC_FULL.md
// §4.2: reference closure, hash closure, ownership chains, then tip
// reconciliation. Tip drift is the only self-healing mutation; every other
// violation is reported without repair.
func (l *Ledger) VerifyIntegrity() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, e := range l.events {
		for _, ref := range e.References {
			if _, ok := l.events[ref]; !ok {
				return false, "node " + id + " references non-existent node " + ref
			}
		}
	}

	for id, e := range l.events {
		if e.Hash != e.recomputeHash() {
			return false, "hash mismatch for node " + id
		}
	}

	assetIDs := make(map[string]struct{})
	for _, e := range l.events {
		assetIDs[e.AssetID] = struct{}{}
	}
	for assetID := range assetIDs {
		history := l.ownershipHistoryLocked(assetID)
		for i := 1; i < len(history); i++ {
			curr := history[i]
			if curr.Action != ActionTransfer {
				continue
			}
			transferEvent, ok := l.events[curr.EventID]
			if !ok {
				return false, "missing transfer node " + curr.EventID
			}
			if transferEvent.UserID != history[i-1].UserID {
				return false, "transfer node " + curr.EventID + " has invalid initiator"
			}
		}
	}

	referenced := make(map[string]struct{})
	for _, e := range l.events {
		for _, ref := range e.References {
			referenced[ref] = struct{}{}
		}
	}
	computedTips := make(map[string]struct{})
	for id := range l.events {
		if _, ok := referenced[id]; !ok {
			computedTips[id] = struct{}{}
		}
	}
	if !tipSetsEqual(computedTips, l.tips) {
		l.logger.Warn("tip inconsistency detected, auto-fixing")
		l.tips = computedTips
		if err := l.saveLocked(); err != nil {
			l.logger.WithError(err).Error("failed to persist ledger after tip repair")
		}
	}

	return true, "ok"
}

func tipSetsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

// Stats summarises the ledger's current contents.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	assets := make(map[string]struct{})
	users := make(map[string]struct{})
	counts := map[Action]int{ActionRegister: 0, ActionTransfer: 0}
	for _, e := range l.events {
		assets[e.AssetID] = struct{}{}
		users[e.UserID] = struct{}{}
		counts[e.Action]++
	}
	return Stats{
		TotalEvents:  len(l.events),
		TotalTips:    len(l.tips),
		UniqueAssets: len(assets),
		UniqueUsers:  len(users),
		ActionCounts: counts,
	}
}
