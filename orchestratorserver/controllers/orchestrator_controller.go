// Package controllers implements the orchestrator HTTP handlers described
// in SPEC_FULL.md §6.2: the same surface as a replica, plus the per-replica
// node_ids and quorum metadata a single replica doesn't have.
package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"ledgerfabric/internal/orchestrator"
)

// OrchestratorController handles the HTTP surface for the quorum
// coordinator.
type OrchestratorController struct {
	orc    *orchestrator.Orchestrator
	logger *logrus.Logger
}

// NewOrchestratorController wraps orc for use behind an HTTP router.
func NewOrchestratorController(orc *orchestrator.Orchestrator, logger *logrus.Logger) *OrchestratorController {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &OrchestratorController{orc: orc, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "message": message})
}

// Health handles GET /health.
func (c *OrchestratorController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "service": "orchestrator"})
}

// RegisterAsset handles POST /register_asset.
func (c *OrchestratorController) RegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetID   string                 `json:"asset_id"`
		UserID    string                 `json:"user_id"`
		AssetData map[string]interface{} `json:"asset_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AssetID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	result := c.orc.RegisterAsset(r.Context(), req.AssetID, req.UserID, req.AssetData)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": result.Success, "result": result.Message, "node_ids": nonNil(result.EventIDs),
	})
}

// TransferAsset handles POST /transfer_asset.
func (c *OrchestratorController) TransferAsset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetID    string `json:"asset_id"`
		FromUserID string `json:"from_user_id"`
		ToUserID   string `json:"to_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AssetID == "" || req.FromUserID == "" || req.ToUserID == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	result := c.orc.TransferAsset(r.Context(), req.AssetID, req.FromUserID, req.ToUserID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": result.Success, "result": result.Message, "node_ids": nonNil(result.EventIDs),
	})
}

// UserAssets handles GET /user_assets/{user_id}.
func (c *OrchestratorController) UserAssets(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	assets := c.orc.UserAssetsQuorum(r.Context(), userID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "assets": nonNil(assets)})
}

// VerifyOwnership handles GET /verify_ownership?asset_id=&user_id=.
func (c *OrchestratorController) VerifyOwnership(w http.ResponseWriter, r *http.Request) {
	assetID := r.URL.Query().Get("asset_id")
	userID := r.URL.Query().Get("user_id")
	if assetID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "missing required parameters")
		return
	}

	status, err := c.orc.VerifyOwnershipQuorum(r.Context(), assetID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true, "asset_id": assetID, "user_id": userID,
		"is_owner": status.IsOwner, "verified_count": status.VerifiedCount,
		"total_blockchains": status.TotalBlockchains, "min_consensus": c.orc.MinConsensus(),
	})
}

// AssetHistory handles GET /asset_history/{asset_id}.
func (c *OrchestratorController) AssetHistory(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset_id"]
	history, err := c.orc.AssetHistoryQuorum(r.Context(), assetID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"asset_id": assetID, "history": nonNilHistory(history)})
}

// AssetData handles GET /asset_data/{asset_id}.
func (c *OrchestratorController) AssetData(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset_id"]
	data, err := c.orc.AssetDataQuorum(r.Context(), assetID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"asset_id": assetID, "data": data})
}

// AssetStakingStatus handles GET /asset_staking_status/{asset_id}. Staking
// itself was removed; this keeps the read-path shape alive for clients
// that still poll it, mirroring the replica's own stub one layer up.
func (c *OrchestratorController) AssetStakingStatus(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset_id"]
	history, err := c.orc.AssetHistoryQuorum(r.Context(), assetID)
	if err != nil || len(history) == 0 {
		writeJSON(w, http.StatusOK, map[string]interface{}{"is_staked": false, "error": "Asset not found"})
		return
	}
	owner := history[len(history)-1].UserID
	writeJSON(w, http.StatusOK, map[string]interface{}{"is_staked": false, "owner_id": owner})
}

// UserBalance handles GET /user_balance/{user_id}. Staking is gone, so the
// balance is always zero.
func (c *OrchestratorController) UserBalance(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "balance": 0})
}

// StakingRemoved handles every staking mutation endpoint, kept as a 400
// stub for client compatibility.
func (c *OrchestratorController) StakingRemoved(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusBadRequest, "Staking functionality has been removed")
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func nonNilHistory(h []orchestrator.HistoryEntryDTO) []orchestrator.HistoryEntryDTO {
	if h == nil {
		return []orchestrator.HistoryEntryDTO{}
	}
	return h
}
