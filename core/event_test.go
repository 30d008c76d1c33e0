package core_test

import (
	"testing"

	. "ledgerfabric/core"
)

func TestNewEvent_Defaults(t *testing.T) {
	e, err := NewEvent("asset-1", ActionRegister, "alice", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.EventID == "" {
		t.Fatal("expected a generated event id")
	}
	if e.Signature == "" {
		t.Fatal("expected a generated signature")
	}
	if e.Hash == "" {
		t.Fatal("expected a computed hash")
	}
	if len(e.References) != 0 {
		t.Fatalf("expected no references, got %v", e.References)
	}
	if e.Data == nil {
		t.Fatal("expected data to default to an empty map, not nil")
	}
}

func TestNewEvent_RequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		assetID string
		action  Action
		userID  string
	}{
		{"empty asset id", "", ActionRegister, "alice"},
		{"empty user id", "asset-1", ActionRegister, ""},
		{"invalid action", "asset-1", Action("stake"), "alice"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewEvent(c.assetID, c.action, c.userID, nil, nil)
			if err == nil {
				t.Fatal("expected an error")
			}
			if kind, ok := KindOf(err); !ok || kind != KindInvalidArg {
				t.Fatalf("expected KindInvalidArg, got %v (ok=%v)", kind, ok)
			}
		})
	}
}

func TestNewEvent_OptionsOverrideDefaults(t *testing.T) {
	e, err := NewEvent("asset-1", ActionRegister, "alice", nil, nil,
		WithEventID("fixed-id"), WithTimestamp(1000.0), WithSignature("fixed-sig"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.EventID != "fixed-id" || e.Timestamp != 1000.0 || e.Signature != "fixed-sig" {
		t.Fatalf("options did not take effect: %+v", e)
	}
}

func TestNewEvent_HashStableForIdenticalInputs(t *testing.T) {
	a, _ := NewEvent("asset-1", ActionRegister, "alice", map[string]interface{}{"color": "red"},
		[]string{"ref-1"}, WithEventID("id-a"), WithTimestamp(1000.0), WithSignature("sig"))
	b, _ := NewEvent("asset-1", ActionRegister, "alice", map[string]interface{}{"color": "red"},
		[]string{"ref-1"}, WithEventID("id-b"), WithTimestamp(1000.0), WithSignature("sig"))
	if a.Hash != b.Hash {
		t.Fatalf("expected identical hash for identical hashed fields, got %s vs %s", a.Hash, b.Hash)
	}
}

func TestNewEvent_HashChangesWithData(t *testing.T) {
	a, _ := NewEvent("asset-1", ActionRegister, "alice", map[string]interface{}{"color": "red"}, nil,
		WithTimestamp(1000.0), WithSignature("sig"))
	b, _ := NewEvent("asset-1", ActionRegister, "alice", map[string]interface{}{"color": "blue"}, nil,
		WithTimestamp(1000.0), WithSignature("sig"))
	if a.Hash == b.Hash {
		t.Fatal("expected different hashes for different data")
	}
}
