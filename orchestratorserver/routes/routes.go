// Package routes wires the orchestrator HTTP API's gorilla/mux routes to
// its controller, mirroring replicaserver/routes.
package routes

import (
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"ledgerfabric/orchestratorserver/controllers"
	"ledgerfabric/pkg/httplog"
)

// Register mounts the orchestrator HTTP API's routes onto r.
func Register(r *mux.Router, c *controllers.OrchestratorController, logger *logrus.Logger) {
	r.Use(httplog.Middleware(logger))

	r.HandleFunc("/health", c.Health).Methods("GET")
	r.HandleFunc("/register_asset", c.RegisterAsset).Methods("POST")
	r.HandleFunc("/transfer_asset", c.TransferAsset).Methods("POST")
	r.HandleFunc("/user_assets/{user_id}", c.UserAssets).Methods("GET")
	r.HandleFunc("/verify_ownership", c.VerifyOwnership).Methods("GET")
	r.HandleFunc("/asset_history/{asset_id}", c.AssetHistory).Methods("GET")
	r.HandleFunc("/asset_data/{asset_id}", c.AssetData).Methods("GET")
	r.HandleFunc("/asset_staking_status/{asset_id}", c.AssetStakingStatus).Methods("GET")
	r.HandleFunc("/user_balance/{user_id}", c.UserBalance).Methods("GET")
	r.HandleFunc("/stake_asset", c.StakingRemoved).Methods("POST")
	r.HandleFunc("/unstake_asset", c.StakingRemoved).Methods("POST")
}
