package controllers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"ledgerfabric/core"
	"ledgerfabric/replicaserver/controllers"
	"ledgerfabric/replicaserver/routes"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	ledger, err := core.NewLedger(filepath.Join(t.TempDir(), "ledger.json"), logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := core.NewReplicaService(ledger)
	ctrl := controllers.NewReplicaController(svc, logger)

	r := mux.NewRouter()
	routes.Register(r, ctrl, logger)
	return httptest.NewServer(r)
}

func postJSON(t *testing.T, url string, body interface{}) map[string]interface{} {
	t.Helper()
	encoded, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("unexpected error posting: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	return out
}

func getJSON(t *testing.T, url string) map[string]interface{} {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("unexpected error getting: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	return out
}

func TestReplicaController_Health(t *testing.T) {
	s := newTestServer(t)
	defer s.Close()

	out := getJSON(t, s.URL+"/health")
	if out["status"] != "ok" {
		t.Fatalf("unexpected health response: %v", out)
	}
}

func TestReplicaController_RegisterAndTransfer(t *testing.T) {
	s := newTestServer(t)
	defer s.Close()

	reg := postJSON(t, s.URL+"/register_asset", map[string]interface{}{"asset_id": "asset-1", "user_id": "alice"})
	if reg["success"] != true {
		t.Fatalf("expected successful registration, got %v", reg)
	}

	transfer := postJSON(t, s.URL+"/transfer_asset", map[string]interface{}{
		"asset_id": "asset-1", "from_user_id": "alice", "to_user_id": "bob",
	})
	if transfer["success"] != true {
		t.Fatalf("expected successful transfer, got %v", transfer)
	}

	ownership := getJSON(t, s.URL+"/verify_ownership?asset_id=asset-1&user_id=bob")
	if ownership["is_owner"] != true {
		t.Fatalf("expected bob to be confirmed owner, got %v", ownership)
	}
}

func TestReplicaController_ProcessNFCTag_RegistersOnce(t *testing.T) {
	s := newTestServer(t)
	defer s.Close()

	first := postJSON(t, s.URL+"/process_nfc_tag", map[string]interface{}{"tag_id": "tag-1", "user_id": "alice"})
	if first["success"] != true {
		t.Fatalf("expected first scan to register, got %v", first)
	}

	second := postJSON(t, s.URL+"/process_nfc_tag", map[string]interface{}{"tag_id": "tag-1", "user_id": "bob"})
	if second["success"] != false {
		t.Fatalf("expected second scan to be a no-op, got %v", second)
	}
}

func TestReplicaController_StakingStub(t *testing.T) {
	s := newTestServer(t)
	defer s.Close()

	resp, err := http.Post(s.URL+"/stake_asset", "application/json", bytes.NewReader([]byte("{}")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for staking stub, got %d", resp.StatusCode)
	}
}

func TestReplicaController_BlockchainStats(t *testing.T) {
	s := newTestServer(t)
	defer s.Close()

	postJSON(t, s.URL+"/register_asset", map[string]interface{}{"asset_id": "asset-1", "user_id": "alice"})
	out := getJSON(t, s.URL+"/blockchain_stats")
	if out["success"] != true {
		t.Fatalf("unexpected stats response: %v", out)
	}
	stats, ok := out["stats"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected stats object, got %v", out["stats"])
	}
	if stats["total_nodes"].(float64) != 1 {
		t.Fatalf("expected 1 total node, got %v", stats["total_nodes"])
	}
}
