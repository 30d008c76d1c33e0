package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestLedger_VerifyIntegrity_SelfHealsCorruptedTips exercises spec.md §8's
// tip self-heal property directly: corrupt l.tips to include a node that is
// actually referenced by another node, then confirm VerifyIntegrity
// recomputes the correct tip set both in memory and on disk.
func TestLedger_VerifyIntegrity_SelfHealsCorruptedTips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	l, err := NewLedger(path, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, err := NewEvent("asset-1", ActionRegister, "alice", nil, l.ChooseReferences())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.AddEvent(a); err != nil {
		t.Fatalf("unexpected error adding register event: %v", err)
	}

	b, err := NewEvent("asset-2", ActionRegister, "bob", nil, []string{a.EventID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.AddEvent(b); err != nil {
		t.Fatalf("unexpected error adding second register event: %v", err)
	}

	l.mu.Lock()
	l.tips[a.EventID] = struct{}{}
	l.mu.Unlock()

	ok, msg := l.VerifyIntegrity()
	if !ok {
		t.Fatalf("expected integrity check to still pass after self-heal, got: %s", msg)
	}

	l.mu.RLock()
	_, stillHasA := l.tips[a.EventID]
	_, hasB := l.tips[b.EventID]
	tipCount := len(l.tips)
	l.mu.RUnlock()
	if stillHasA || !hasB || tipCount != 1 {
		t.Fatalf("expected tips to be recomputed to just %s, got hasA=%v hasB=%v count=%d",
			b.EventID, stillHasA, hasB, tipCount)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error reading persisted ledger: %v", err)
	}
	var file ledgerFile
	if err := json.Unmarshal(raw, &file); err != nil {
		t.Fatalf("unexpected error decoding persisted ledger: %v", err)
	}
	if len(file.Tips) != 1 || file.Tips[0] != b.EventID {
		t.Fatalf("expected persisted tips to be [%s], got %v", b.EventID, file.Tips)
	}
}
