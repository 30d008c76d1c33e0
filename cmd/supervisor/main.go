// Command supervisor spawns a replica network plus orchestrator as child
// processes and keeps them running until interrupted.
package main

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ledgerfabric/pkg/config"
)

var logger = logrus.New()

func main() {
	cfg := config.LoadSupervisorConfig()

	var nodes int
	root := &cobra.Command{
		Use:   "supervisor",
		Short: "start a ledger replica network and its orchestrator",
		Run: func(cmd *cobra.Command, args []string) {
			run(nodes, cfg)
		},
	}
	root.Flags().IntVarP(&nodes, "nodes", "n", cfg.Nodes, "number of replica nodes to start")
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func portInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)), 300*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func dataDirs(base string, n int) ([]string, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	paths := make([]string, n)
	for i := 0; i < n; i++ {
		dir := filepath.Join(base, fmt.Sprintf("node_%d", i+1))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		paths[i] = filepath.Join(dir, "blockchain_dag.json")
	}
	return paths, nil
}

func startReplica(binary string, port int, storagePath string) (*exec.Cmd, error) {
	if portInUse(port) {
		logger.Warnf("port %d is already in use, skipping this node", port)
		return nil, nil
	}
	cmd := exec.Command(binary, "-port", strconv.Itoa(port), "-storage", storagePath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	logger.WithFields(logrus.Fields{"port": port, "storage": storagePath}).Info("starting replica node")
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func startOrchestrator(binary string, port int) (*exec.Cmd, error) {
	if portInUse(port) {
		logger.Warnf("port %d is already in use, skipping orchestrator", port)
		return nil, nil
	}
	cmd := exec.Command(binary)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	logger.WithField("port", port).Info("starting orchestrator")
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// managedProcess tracks a spawned child and whether it has exited, kept
// current by a background goroutine watching Wait().
type managedProcess struct {
	name   string
	cmd    *exec.Cmd
	exited chan struct{}
}

func watch(name string, cmd *exec.Cmd) *managedProcess {
	mp := &managedProcess{name: name, cmd: cmd, exited: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		close(mp.exited)
		if err != nil {
			logger.WithError(err).Errorf("%s terminated unexpectedly", name)
		} else {
			logger.Errorf("%s terminated unexpectedly", name)
		}
	}()
	return mp
}

func (mp *managedProcess) alive() bool {
	select {
	case <-mp.exited:
		return false
	default:
		return true
	}
}

// terminateAll sends SIGTERM to every running process, gives each a 5
// second grace period, then force-kills any still alive.
func terminateAll(procs []*managedProcess) {
	logger.Info("shutting down network...")
	for _, p := range procs {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(syscall.SIGTERM)
		}
	}

	deadline := time.After(5 * time.Second)
	for _, p := range procs {
		select {
		case <-p.exited:
		case <-deadline:
			for _, q := range procs {
				if q.cmd.Process != nil {
					_ = q.cmd.Process.Kill()
				}
			}
			logger.Info("network shutdown complete")
			return
		}
	}
	logger.Info("network shutdown complete")
}

func run(nodes int, cfg config.SupervisorConfig) {
	storagePaths, err := dataDirs(cfg.BaseDataDir, nodes)
	if err != nil {
		logger.Fatalf("failed to create data directories: %v", err)
	}

	replicaBin, err := exec.LookPath("replica")
	if err != nil {
		replicaBin = "./replica"
	}
	orchestratorBin, err := exec.LookPath("orchestratord")
	if err != nil {
		orchestratorBin = "./orchestratord"
	}

	var procs []*managedProcess
	replicaCount := 0
	for i := 0; i < nodes; i++ {
		port := cfg.BasePort + i
		cmd, err := startReplica(replicaBin, port, storagePaths[i])
		if err != nil {
			logger.WithError(err).Warnf("failed to start replica on port %d", port)
			continue
		}
		if cmd != nil {
			procs = append(procs, watch(fmt.Sprintf("replica-%d", port), cmd))
			replicaCount++
		}
	}

	orc, err := startOrchestrator(orchestratorBin, cfg.OrchestratorPort)
	if err != nil {
		logger.WithError(err).Warn("failed to start orchestrator")
	} else if orc != nil {
		procs = append(procs, watch("orchestrator", orc))
	}

	logger.Infof("network started with %d replica(s) + orchestrator", replicaCount)
	logger.Infof("orchestrator API endpoint: http://localhost:%d", cfg.OrchestratorPort)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sig:
			terminateAll(procs)
			return
		case <-ticker.C:
			alive := 0
			for _, p := range procs {
				if p.alive() {
					alive++
				}
			}
			if alive == 0 {
				logger.Error("all processes have terminated, exiting")
				return
			}
		}
	}
}
