package core_test

import (
	"path/filepath"
	"testing"

	. "ledgerfabric/core"

	"github.com/sirupsen/logrus"
)

func newTestReplicaService(t *testing.T) *ReplicaService {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	l, err := NewLedger(filepath.Join(t.TempDir(), "ledger.json"), logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewReplicaService(l)
}

func TestReplicaService_RegisterAsset(t *testing.T) {
	svc := newTestReplicaService(t)
	e, err := svc.RegisterAsset("asset-1", "alice", map[string]interface{}{"tag": "nfc-001"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Action != ActionRegister || e.AssetID != "asset-1" || e.UserID != "alice" {
		t.Fatalf("unexpected event: %+v", e)
	}
	if !svc.Ledger().VerifyOwnership("asset-1", "alice") {
		t.Fatal("expected alice to own asset-1")
	}
}

func TestReplicaService_RegisterAsset_Duplicate(t *testing.T) {
	svc := newTestReplicaService(t)
	if _, err := svc.RegisterAsset("asset-1", "alice", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.RegisterAsset("asset-1", "bob", nil); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestReplicaService_TransferAsset(t *testing.T) {
	svc := newTestReplicaService(t)
	if _, err := svc.RegisterAsset("asset-1", "alice", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e, err := svc.TransferAsset("asset-1", "alice", "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Action != ActionTransfer {
		t.Fatalf("expected a transfer event, got %+v", e)
	}
	if !svc.Ledger().VerifyOwnership("asset-1", "bob") {
		t.Fatal("expected bob to own asset-1 after transfer")
	}
}

func TestReplicaService_TransferAsset_WrongOwner(t *testing.T) {
	svc := newTestReplicaService(t)
	if _, err := svc.RegisterAsset("asset-1", "alice", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.TransferAsset("asset-1", "mallory", "bob"); err == nil {
		t.Fatal("expected transfer by a non-owner to fail")
	}
}
