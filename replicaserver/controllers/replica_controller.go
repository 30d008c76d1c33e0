// Package controllers implements the replica HTTP handlers described in
// SPEC_FULL.md §6.1, translating JSON requests into core.ReplicaService and
// core.Ledger calls.
package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"ledgerfabric/core"
)

// ReplicaController handles the HTTP surface for a single replica.
type ReplicaController struct {
	svc    *core.ReplicaService
	logger *logrus.Logger
}

// NewReplicaController wraps svc for use behind an HTTP router.
func NewReplicaController(svc *core.ReplicaService, logger *logrus.Logger) *ReplicaController {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ReplicaController{svc: svc, logger: logger}
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
func (c *ReplicaController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "service": "replica"})
}

// ProcessNFCTag handles POST /process_nfc_tag: registers tag_id as a new
// asset if it is not already registered, otherwise replies with a no-op.
func (c *ReplicaController) ProcessNFCTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TagID           string      `json:"tag_id"`
		UserID          string      `json:"user_id"`
		TagType         string      `json:"tag_type"`
		TagTechnologies interface{} `json:"tag_technologies"`
		NDEFMessage     string      `json:"ndef_message"`
		Timestamp       interface{} `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TagID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing tag_id or user_id")
		return
	}

	if len(c.svc.Ledger().GetAssetEvents(req.TagID)) > 0 {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":  false,
			"message":  fmt.Sprintf("tag %s is already registered", req.TagID),
			"action":   "none",
			"asset_id": req.TagID,
		})
		return
	}

	if req.TagType == "" {
		req.TagType = "NFC"
	}
	assetData := map[string]interface{}{
		"tag_type":          req.TagType,
		"tag_technologies":  req.TagTechnologies,
		"ndef_message":      req.NDEFMessage,
		"scanned_timestamp": req.Timestamp,
	}

	e, err := c.svc.RegisterAsset(req.TagID, req.UserID, assetData)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "result": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true, "result": e.EventID, "action": "register", "asset_id": req.TagID,
	})
}

// RegisterAsset handles POST /register_asset.
func (c *ReplicaController) RegisterAsset(w http.ResponseWriter, r *http.Request) {
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

	e, err := c.svc.RegisterAsset(req.AssetID, req.UserID, req.AssetData)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "result": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "result": e.EventID})
}

// TransferAsset handles POST /transfer_asset.
func (c *ReplicaController) TransferAsset(w http.ResponseWriter, r *http.Request) {
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

	e, err := c.svc.TransferAsset(req.AssetID, req.FromUserID, req.ToUserID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "result": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "result": e.EventID})
}

// UserAssets handles GET /user_assets/{user_id}.
func (c *ReplicaController) UserAssets(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	assets := c.svc.Ledger().GetUserAssets(userID)
	if assets == nil {
		assets = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "assets": assets})
}

// VerifyOwnership handles GET /verify_ownership?asset_id=&user_id=.
func (c *ReplicaController) VerifyOwnership(w http.ResponseWriter, r *http.Request) {
	assetID := r.URL.Query().Get("asset_id")
	userID := r.URL.Query().Get("user_id")
	if assetID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "missing required parameters")
		return
	}

	if c.svc.Ledger().VerifyOwnership(assetID, userID) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true, "asset_id": assetID, "user_id": userID, "is_owner": true,
		})
		return
	}

	currentOwner := "unknown"
	if history := c.svc.Ledger().GetAssetOwnershipHistory(assetID); len(history) > 0 {
		currentOwner = history[len(history)-1].UserID
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true, "asset_id": assetID, "user_id": userID,
		"is_owner": false, "current_owner": currentOwner,
	})
}

// AssetHistory handles GET /asset_history/{asset_id}.
func (c *ReplicaController) AssetHistory(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset_id"]
	history := c.svc.Ledger().GetAssetOwnershipHistory(assetID)
	if history == nil {
		history = []core.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"asset_id": assetID, "history": history})
}

// AssetData handles GET /asset_data/{asset_id}: returns the register
// event's data with every value stringified, matching the prototype.
func (c *ReplicaController) AssetData(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset_id"]
	data := map[string]string{}
	for _, e := range c.svc.Ledger().GetAssetEvents(assetID) {
		if e.Action != core.ActionRegister {
			continue
		}
		for k, v := range e.Data {
			data[k] = fmt.Sprintf("%v", v)
		}
		break
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"asset_id": assetID, "data": data})
}

// VerifyIntegrity handles GET /verify_integrity.
func (c *ReplicaController) VerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	ok, msg := c.svc.Ledger().VerifyIntegrity()
	writeJSON(w, http.StatusOK, map[string]interface{}{"integrity_ok": ok, "message": msg})
}

// BlockchainStats handles GET /blockchain_stats.
func (c *ReplicaController) BlockchainStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "stats": c.svc.Ledger().Stats()})
}

// AssetStakingStatus handles GET /asset_staking_status/{asset_id}. Staking
// itself was removed; this keeps the read-path shape alive for clients
// that still poll it.
func (c *ReplicaController) AssetStakingStatus(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset_id"]
	status := c.svc.Ledger().OwnershipStatus(assetID)
	if !status.Exists {
		writeJSON(w, http.StatusOK, map[string]interface{}{"is_staked": false, "error": "Asset not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"is_staked": status.IsStaked, "owner_id": status.OwnerID})
}

// UserBalance handles GET /user_balance/{user_id}. Staking is gone, so the
// balance is always zero.
func (c *ReplicaController) UserBalance(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "balance": 0})
}

// StakingRemoved handles every other staking endpoint, kept as a 400 stub
// for client compatibility.
func (c *ReplicaController) StakingRemoved(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusBadRequest, "Staking functionality has been removed")
}
