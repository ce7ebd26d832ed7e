package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/xaxixak/oracle-v2/internal/config"
	"github.com/xaxixak/oracle-v2/internal/httpapi"
)

var (
	ensureStatusOnly bool
	ensureVerbose    bool
)

var ensureServerCmd = &cobra.Command{
	Use:   "ensure-server",
	Short: "Start the HTTP server if it is not already running",
	Long: `Check whether an oracled HTTP server is answering on the configured
port and, if not, spawn one detached from this terminal.

With --status the check is reported without starting anything.`,
	RunE: runEnsureServer,
}

func init() {
	ensureServerCmd.Flags().BoolVar(&ensureStatusOnly, "status", false, "report whether a server is running, do not start one")
	ensureServerCmd.Flags().BoolVarP(&ensureVerbose, "verbose", "v", false, "print the checks as they happen")
}

const (
	healthTimeout = 2 * time.Second
	startupWait   = 10 * time.Second
	startupPoll   = 250 * time.Millisecond
)

func runEnsureServer(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	port := cfg.Port
	if pid, pidPort, err := httpapi.ReadPIDFile(cfg.PIDFile()); err == nil {
		if ensureVerbose {
			fmt.Printf("pid file: pid %d, port %d\n", pid, pidPort)
		}
		port = pidPort
	} else if ensureVerbose {
		fmt.Printf("pid file: %v\n", err)
	}

	running := healthy(port)
	if ensureStatusOnly {
		pid, _, _ := httpapi.ReadPIDFile(cfg.PIDFile())
		out, _ := json.Marshal(map[string]any{
			"running": running,
			"port":    port,
			"pid":     pid,
		})
		fmt.Println(string(out))
		if !running {
			os.Exit(1)
		}
		return nil
	}
	if running {
		fmt.Printf("Server running on port %d\n", port)
		return nil
	}

	if ensureVerbose {
		fmt.Printf("no server on port %d, starting one\n", port)
	}
	if err := spawnServer(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	deadline := time.Now().Add(startupWait)
	for time.Now().Before(deadline) {
		if healthy(cfg.Port) {
			fmt.Printf("Server started on port %d\n", cfg.Port)
			return nil
		}
		time.Sleep(startupPoll)
	}
	return fmt.Errorf("server did not become healthy within %s", startupWait)
}

func healthy(port int) bool {
	client := &http.Client{Timeout: healthTimeout}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/api/health", port))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// spawnServer launches "oracled server" detached so it outlives this
// process.
func spawnServer() error {
	self, err := os.Executable()
	if err != nil {
		return err
	}
	args := []string{"server"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	c := exec.Command(self, args...)
	c.Stdin = nil
	c.Stdout = nil
	c.Stderr = nil
	if err := c.Start(); err != nil {
		return err
	}
	return c.Process.Release()
}
