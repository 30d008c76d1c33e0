package core_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	. "ledgerfabric/core"

	"github.com/sirupsen/logrus"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dir := t.TempDir()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	l, err := NewLedger(filepath.Join(dir, "ledger.json"), logger)
	if err != nil {
		t.Fatalf("unexpected error creating ledger: %v", err)
	}
	return l
}

func registerAsset(t *testing.T, l *Ledger, assetID, userID string) *Event {
	t.Helper()
	e, err := NewEvent(assetID, ActionRegister, userID, nil, l.ChooseReferences())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.AddEvent(e); err != nil {
		t.Fatalf("unexpected error adding register event: %v", err)
	}
	return e
}

func TestLedger_RegisterAndGetEvent(t *testing.T) {
	l := newTestLedger(t)
	e := registerAsset(t, l, "asset-1", "alice")

	got, ok := l.GetEvent(e.EventID)
	if !ok {
		t.Fatal("expected to find the event")
	}
	if got.AssetID != "asset-1" || got.UserID != "alice" {
		t.Fatalf("unexpected event contents: %+v", got)
	}
}

func TestLedger_DuplicateRegisterRejected(t *testing.T) {
	l := newTestLedger(t)
	registerAsset(t, l, "asset-1", "alice")

	e, err := NewEvent("asset-1", ActionRegister, "bob", nil, l.ChooseReferences())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = l.AddEvent(e)
	if err == nil {
		t.Fatal("expected duplicate registration to be rejected")
	}
	if kind, ok := KindOf(err); !ok || kind != KindValidationReject {
		t.Fatalf("expected KindValidationReject, got %v (ok=%v)", kind, ok)
	}
}

func TestLedger_TransferByNonOwnerRejected(t *testing.T) {
	l := newTestLedger(t)
	registerAsset(t, l, "asset-1", "alice")

	e, err := NewEvent("asset-1", ActionTransfer, "mallory",
		map[string]interface{}{"recipient_id": "bob"}, l.ChooseReferences())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = l.AddEvent(e)
	if err == nil {
		t.Fatal("expected transfer by non-owner to be rejected")
	}
}

func TestLedger_SelfTransferRejected(t *testing.T) {
	l := newTestLedger(t)
	registerAsset(t, l, "asset-1", "alice")

	e, err := NewEvent("asset-1", ActionTransfer, "alice",
		map[string]interface{}{"recipient_id": "alice"}, l.ChooseReferences())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = l.AddEvent(e)
	if err == nil {
		t.Fatal("expected self-transfer to be rejected")
	}
}

func TestLedger_TransferUnregisteredAssetRejected(t *testing.T) {
	l := newTestLedger(t)
	e, err := NewEvent("asset-1", ActionTransfer, "alice",
		map[string]interface{}{"recipient_id": "bob"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = l.AddEvent(e)
	if err == nil {
		t.Fatal("expected transfer of an unregistered asset to be rejected")
	}
}

func TestLedger_TooManyReferencesRejected(t *testing.T) {
	l := newTestLedger(t)
	a := registerAsset(t, l, "asset-1", "alice")
	b := registerAsset(t, l, "asset-2", "alice")
	c := registerAsset(t, l, "asset-3", "alice")

	e, err := NewEvent("asset-4", ActionRegister, "alice", nil, []string{a.EventID, b.EventID, c.EventID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = l.AddEvent(e)
	if err == nil {
		t.Fatal("expected more than 2 references to be rejected")
	}
}

func TestLedger_MissingReferenceRejected(t *testing.T) {
	l := newTestLedger(t)
	e, err := NewEvent("asset-1", ActionRegister, "alice", nil, []string{"does-not-exist"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = l.AddEvent(e)
	if err == nil {
		t.Fatal("expected a dangling reference to be rejected")
	}
}

func TestLedger_OwnershipHistoryAndTransferChain(t *testing.T) {
	l := newTestLedger(t)
	registerAsset(t, l, "asset-1", "alice")

	transfer, err := NewEvent("asset-1", ActionTransfer, "alice",
		map[string]interface{}{"recipient_id": "bob"}, l.ChooseReferences())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.AddEvent(transfer); err != nil {
		t.Fatalf("unexpected error adding transfer: %v", err)
	}

	history := l.GetAssetOwnershipHistory("asset-1")
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].UserID != "alice" || history[1].UserID != "bob" {
		t.Fatalf("unexpected ownership chain: %+v", history)
	}
	if !l.VerifyOwnership("asset-1", "bob") {
		t.Fatal("expected bob to be the current owner")
	}
	if l.VerifyOwnership("asset-1", "alice") {
		t.Fatal("alice should no longer be the owner")
	}
}

func TestLedger_GetUserAssets(t *testing.T) {
	l := newTestLedger(t)
	registerAsset(t, l, "asset-1", "alice")
	registerAsset(t, l, "asset-2", "alice")
	registerAsset(t, l, "asset-3", "bob")

	owned := l.GetUserAssets("alice")
	if len(owned) != 2 {
		t.Fatalf("expected alice to own 2 assets, got %v", owned)
	}
}

func TestLedger_ChooseReferences(t *testing.T) {
	l := newTestLedger(t)
	if refs := l.ChooseReferences(); len(refs) != 0 {
		t.Fatalf("expected no references on an empty ledger, got %v", refs)
	}

	registerAsset(t, l, "asset-1", "alice")
	if refs := l.ChooseReferences(); len(refs) != 1 {
		t.Fatalf("expected a single tip, got %v", refs)
	}

	// asset-2 carries no references, so asset-1 stays a tip alongside it.
	second, err := NewEvent("asset-2", ActionRegister, "alice", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.AddEvent(second); err != nil {
		t.Fatalf("unexpected error adding register event: %v", err)
	}
	refs := l.ChooseReferences()
	if len(refs) != 2 {
		t.Fatalf("expected 2 references once at least 2 tips exist, got %v", refs)
	}
	if refs[0] == refs[1] {
		t.Fatal("expected distinct references")
	}
}

func TestLedger_VerifyIntegrity_HealthyLedger(t *testing.T) {
	l := newTestLedger(t)
	registerAsset(t, l, "asset-1", "alice")
	registerAsset(t, l, "asset-2", "bob")

	ok, msg := l.VerifyIntegrity()
	if !ok {
		t.Fatalf("expected a healthy ledger, got: %s", msg)
	}
}

func TestLedger_VerifyIntegrity_DetectsHashTampering(t *testing.T) {
	l := newTestLedger(t)
	e := registerAsset(t, l, "asset-1", "alice")
	e.Hash = "tampered"

	ok, _ := l.VerifyIntegrity()
	if ok {
		t.Fatal("expected integrity check to fail after tampering with the hash")
	}
}

func TestLedger_PersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	l1, err := NewLedger(path, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	registerAsset(t, l1, "asset-1", "alice")

	l2, err := NewLedger(path, logger)
	if err != nil {
		t.Fatalf("unexpected error reloading ledger: %v", err)
	}
	history := l2.GetAssetOwnershipHistory("asset-1")
	if len(history) != 1 || history[0].UserID != "alice" {
		t.Fatalf("expected reloaded ledger to retain ownership history, got %+v", history)
	}

	ok, msg := l2.VerifyIntegrity()
	if !ok {
		t.Fatalf("expected reloaded ledger to pass integrity check, got: %s", msg)
	}
}

// TestLedger_OnDiskSchemaIsNodesKeyedByEventID pins the on-disk format to
// spec.md's documented schema: "nodes" is a JSON object keyed by event_id,
// not an array, for compatibility with existing deployments.
func TestLedger_OnDiskSchemaIsNodesKeyedByEventID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	l, err := NewLedger(path, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := registerAsset(t, l, "asset-1", "alice")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error reading persisted ledger: %v", err)
	}

	var onDisk struct {
		Nodes map[string]json.RawMessage `json:"nodes"`
		Tips  []string                   `json:"tips"`
	}
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("expected \"nodes\" to decode as an object keyed by event_id, got error: %v", err)
	}
	node, ok := onDisk.Nodes[e.EventID]
	if !ok {
		t.Fatalf("expected nodes to be keyed by event id %s, got keys %v", e.EventID, keysOf(onDisk.Nodes))
	}
	var decoded struct {
		EventID string `json:"node_id"`
	}
	if err := json.Unmarshal(node, &decoded); err != nil {
		t.Fatalf("unexpected error decoding node entry: %v", err)
	}
	if decoded.EventID != e.EventID {
		t.Fatalf("expected node entry's node_id to be %s, got %s", e.EventID, decoded.EventID)
	}
}

func keysOf(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestLedger_Stats(t *testing.T) {
	l := newTestLedger(t)
	registerAsset(t, l, "asset-1", "alice")
	registerAsset(t, l, "asset-2", "bob")

	stats := l.Stats()
	if stats.TotalEvents != 2 || stats.UniqueAssets != 2 || stats.UniqueUsers != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ActionCounts[ActionRegister] != 2 {
		t.Fatalf("expected 2 register actions, got %+v", stats.ActionCounts)
	}
}

func TestLedger_OwnershipStatus(t *testing.T) {
	l := newTestLedger(t)
	status := l.OwnershipStatus("asset-1")
	if status.Exists {
		t.Fatal("expected no ownership status for an unregistered asset")
	}

	registerAsset(t, l, "asset-1", "alice")
	status = l.OwnershipStatus("asset-1")
	if !status.Exists || status.OwnerID != "alice" || status.IsStaked {
		t.Fatalf("unexpected ownership status: %+v", status)
	}
}
