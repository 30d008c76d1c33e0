// Command replica runs a single ledger replica's HTTP API.
package main

import (
	"flag"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"ledgerfabric/core"
	"ledgerfabric/pkg/config"
	"ledgerfabric/replicaserver/controllers"
	"ledgerfabric/replicaserver/routes"
)

func main() {
	cfg := config.LoadReplicaConfig()

	port := flag.Int("port", cfg.Port, "port to run the replica on")
	storage := flag.String("storage", cfg.StoragePath, "path to the ledger storage file")
	flag.Parse()

	logger := logrus.New()

	ledger, err := core.NewLedger(*storage, logger)
	if err != nil {
		logger.Fatalf("failed to open ledger: %v", err)
	}
	svc := core.NewReplicaService(ledger)
	ctrl := controllers.NewReplicaController(svc, logger)

	r := mux.NewRouter()
	routes.Register(r, ctrl, logger)

	addr := "0.0.0.0:" + strconv.Itoa(*port)
	logger.WithFields(logrus.Fields{"port": *port, "storage": *storage}).Info("starting replica")
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal(err)
	}
}
