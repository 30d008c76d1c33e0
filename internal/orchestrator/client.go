// Package orchestrator implements the quorum coordinator: replica health
// probing, quorum writes, quorum reads, and self-healing replication.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"ledgerfabric/core"
)

// ReplicaClient is a thin HTTP client bound to one replica's base URL. It
// knows the replica wire format from SPEC_FULL.md §6.1 but carries no
// ledger state itself.
type ReplicaClient struct {
	BaseURL string
	http    *http.Client
}

func newReplicaClient(baseURL string, httpClient *http.Client) *ReplicaClient {
	return &ReplicaClient{BaseURL: baseURL, http: httpClient}
}

type successEnvelope struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
	Message string `json:"message"`
}

func (c *ReplicaClient) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("replica %s returned status %d", c.BaseURL, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *ReplicaClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("replica %s returned status %d", c.BaseURL, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Health reports whether the replica's /health endpoint responded
// successfully within ctx's deadline.
func (c *ReplicaClient) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// RegisterAsset calls POST /register_asset and returns the resulting
// event id.
func (c *ReplicaClient) RegisterAsset(ctx context.Context, assetID, userID string, data map[string]interface{}) (string, error) {
	body := map[string]interface{}{"asset_id": assetID, "user_id": userID, "asset_data": data}
	var env successEnvelope
	if err := c.postJSON(ctx, "/register_asset", body, &env); err != nil {
		return "", err
	}
	if !env.Success {
		return "", fmt.Errorf("replica %s rejected register_asset: %s", c.BaseURL, env.Result)
	}
	return env.Result, nil
}

// TransferAsset calls POST /transfer_asset and returns the resulting
// event id.
func (c *ReplicaClient) TransferAsset(ctx context.Context, assetID, fromUser, toUser string) (string, error) {
	body := map[string]interface{}{"asset_id": assetID, "from_user_id": fromUser, "to_user_id": toUser}
	var env successEnvelope
	if err := c.postJSON(ctx, "/transfer_asset", body, &env); err != nil {
		return "", err
	}
	if !env.Success {
		return "", fmt.Errorf("replica %s rejected transfer_asset: %s", c.BaseURL, env.Result)
	}
	return env.Result, nil
}

// AssetHistory calls GET /asset_history/<asset_id>.
func (c *ReplicaClient) AssetHistory(ctx context.Context, assetID string) ([]core.HistoryEntry, error) {
	var out struct {
		History []core.HistoryEntry `json:"history"`
	}
	if err := c.getJSON(ctx, "/asset_history/"+url.PathEscape(assetID), &out); err != nil {
		return nil, err
	}
	return out.History, nil
}

// AssetData calls GET /asset_data/<asset_id>.
func (c *ReplicaClient) AssetData(ctx context.Context, assetID string) (map[string]interface{}, error) {
	var out struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := c.getJSON(ctx, "/asset_data/"+url.PathEscape(assetID), &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// VerifyOwnership calls GET /verify_ownership?asset_id=&user_id=.
func (c *ReplicaClient) VerifyOwnership(ctx context.Context, assetID, userID string) (bool, error) {
	var out struct {
		IsOwner bool `json:"is_owner"`
	}
	q := url.Values{"asset_id": {assetID}, "user_id": {userID}}
	if err := c.getJSON(ctx, "/verify_ownership?"+q.Encode(), &out); err != nil {
		return false, err
	}
	return out.IsOwner, nil
}
