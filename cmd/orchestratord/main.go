// Command orchestratord runs the quorum orchestrator's HTTP API.
package main

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"ledgerfabric/internal/orchestrator"
	"ledgerfabric/orchestratorserver/controllers"
	"ledgerfabric/orchestratorserver/routes"
	"ledgerfabric/pkg/config"
	"ledgerfabric/pkg/obsmetrics"
)

func main() {
	logger := logrus.New()

	cfg, err := config.LoadOrchestratorConfig()
	if err != nil {
		logger.Fatalf("failed to load orchestrator config: %v", err)
	}

	orc := orchestrator.NewOrchestrator(cfg.Replicas, cfg.MinConsensus, logger)
	defer orc.Close()
	orc.SetMetrics(obsmetrics.NewOrchestratorMetrics(prometheus.DefaultRegisterer))

	ctrl := controllers.NewOrchestratorController(orc, logger)
	r := mux.NewRouter()
	routes.Register(r, ctrl, logger)
	r.Handle("/metrics", obsmetrics.Handler())

	addr := "0.0.0.0:" + strconv.Itoa(cfg.Port)
	logger.WithFields(logrus.Fields{
		"port": cfg.Port, "replicas": len(cfg.Replicas), "min_consensus": cfg.MinConsensus,
	}).Info("starting orchestrator")
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal(err)
	}
}
