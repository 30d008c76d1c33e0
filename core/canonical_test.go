package core_test

import (
	"encoding/json"
	"testing"

	. "ledgerfabric/core"
)

func TestDecodeData_PreservesIntegerShape(t *testing.T) {
	m, err := DecodeData([]byte(`{"count": 3, "label": "x"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	num, ok := m["count"]
	if !ok {
		t.Fatal("expected count key")
	}
	if _, ok := num.(json.Number); !ok {
		t.Fatalf("expected json.Number, got %T", num)
	}
}

func TestDecodeData_EmptyAndNull(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte(""), []byte("null")} {
		m, err := DecodeData(raw)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
		if m == nil || len(m) != 0 {
			t.Fatalf("expected empty map for %q, got %v", raw, m)
		}
	}
}

func TestDecodeData_RoundTripMatchesConstructionHash(t *testing.T) {
	data := map[string]interface{}{"weight": 42}
	constructed, err := NewEvent("asset-1", ActionRegister, "alice", data, nil,
		WithTimestamp(1000.0), WithEventID("id-1"), WithSignature("sig"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := json.Marshal(constructed.Data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded, err := DecodeData(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reconstructed, err := NewEvent("asset-1", ActionRegister, "alice", decoded, nil,
		WithTimestamp(1000.0), WithEventID("id-1"), WithSignature("sig"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if constructed.Hash != reconstructed.Hash {
		t.Fatalf("hash drifted across a JSON round trip: %s vs %s", constructed.Hash, reconstructed.Hash)
	}
}
