// Package config loads replica, orchestrator, and supervisor configuration
// from an optional .env file plus environment variables, following the
// same godotenv + typed-default pattern as the wallet and node configs it
// is modeled on. The replica-list file path additionally follows the
// teacher's pkg/config.Load: a viper instance reads the file and unmarshals
// it with mapstructure tags instead of a plain os.ReadFile + yaml.Unmarshal.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ledgerfabric/pkg/utils"
)

// ReplicaConfig configures a single replica process.
type ReplicaConfig struct {
	Port        int    `json:"port"`
	StoragePath string `json:"storage_path"`
}

// OrchestratorConfig configures the orchestrator process.
type OrchestratorConfig struct {
	Port         int      `json:"port"`
	Replicas     []string `json:"replicas"`
	MinConsensus int      `json:"min_consensus"`
}

// SupervisorConfig configures the process supervisor.
type SupervisorConfig struct {
	Nodes            int    `json:"nodes"`
	BasePort         int    `json:"base_port"`
	BaseDataDir      string `json:"base_data_dir"`
	OrchestratorPort int    `json:"orchestrator_port"`
}

// loadDotEnv loads .env into the process environment if present. A missing
// .env is not an error — most deployments configure purely via the
// environment.
func loadDotEnv() {
	_ = godotenv.Load(".env")
}

// LoadReplicaConfig reads REPLICA_PORT and REPLICA_STORAGE_PATH, defaulting
// to the values named in SPEC_FULL.md §6.4.
func LoadReplicaConfig() ReplicaConfig {
	loadDotEnv()
	return ReplicaConfig{
		Port:        utils.EnvOrDefaultInt("REPLICA_PORT", 5001),
		StoragePath: utils.EnvOrDefault("REPLICA_STORAGE_PATH", "blockchain_dag.json"),
	}
}

// LoadOrchestratorConfig reads ORCHESTRATOR_PORT, ORCHESTRATOR_REPLICAS (a
// comma-separated list of base URLs), and ORCHESTRATOR_MIN_CONSENSUS, or
// falls back to a YAML replica-list file via LoadReplicaListFile.
func LoadOrchestratorConfig() (OrchestratorConfig, error) {
	loadDotEnv()
	cfg := OrchestratorConfig{
		Port:         utils.EnvOrDefaultInt("ORCHESTRATOR_PORT", 6000),
		MinConsensus: utils.EnvOrDefaultInt("ORCHESTRATOR_MIN_CONSENSUS", 3),
	}

	if raw, ok := os.LookupEnv("ORCHESTRATOR_REPLICAS"); ok && raw != "" {
		cfg.Replicas = splitCSV(raw)
		return cfg, nil
	}

	if path := utils.EnvOrDefault("ORCHESTRATOR_REPLICAS_FILE", ""); path != "" {
		replicas, err := LoadReplicaListFile(path)
		if err != nil {
			return cfg, err
		}
		cfg.Replicas = replicas
		return cfg, nil
	}

	cfg.Replicas = defaultReplicaURLs(7, 5001)
	return cfg, nil
}

// LoadSupervisorConfig reads SUPERVISOR_NODES, SUPERVISOR_BASE_PORT,
// SUPERVISOR_BASE_DATA_DIR, and SUPERVISOR_ORCHESTRATOR_PORT.
func LoadSupervisorConfig() SupervisorConfig {
	loadDotEnv()
	return SupervisorConfig{
		Nodes:            utils.EnvOrDefaultInt("SUPERVISOR_NODES", 7),
		BasePort:         utils.EnvOrDefaultInt("SUPERVISOR_BASE_PORT", 5001),
		BaseDataDir:      utils.EnvOrDefault("SUPERVISOR_BASE_DATA_DIR", "./blockchain_data"),
		OrchestratorPort: utils.EnvOrDefaultInt("SUPERVISOR_ORCHESTRATOR_PORT", 6000),
	}
}

// replicaListFile is the shape of a static replica-list config, used by
// deployments that enumerate replica URLs in a file instead of an
// environment variable.
type replicaListFile struct {
	Replicas []string `mapstructure:"replicas"`
}

// LoadReplicaListFile reads a YAML (or JSON/TOML) file of the form
// `replicas: [url, ...]` via viper, mirroring the teacher's
// pkg/config.Load: a scoped viper instance reads the file and merges in
// any REPLICAS environment override before unmarshaling.
func LoadReplicaListFile(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "read replica list file")
	}
	v.AutomaticEnv()

	var f replicaListFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, utils.Wrap(err, "parse replica list file")
	}
	return f.Replicas, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func defaultReplicaURLs(n, basePort int) []string {
	urls := make([]string, 0, n)
	for i := 0; i < n; i++ {
		urls = append(urls, "http://localhost:"+strconv.Itoa(basePort+i))
	}
	return urls
}
