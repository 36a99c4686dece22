package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	statusOutput  string
	statusPidFile string
	statusAPIHost string
	statusAPIPort int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Display the current status of the DriftFS daemon.

This command checks the PID file and queries the management API for
status, uptime, and active mounts.

Examples:
  # Check status (uses default settings)
  driftfs status

  # Check status with custom API port
  driftfs status --api-port 9553

  # Output as JSON
  driftfs status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/driftfs/driftfs.pid)")
	statusCmd.Flags().StringVar(&statusAPIHost, "api-host", "127.0.0.1", "Management API host")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 8553, "Management API port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json)")
}

// DaemonStatus represents the daemon status information.
type DaemonStatus struct {
	Running    bool   `json:"running"`
	PID        int    `json:"pid,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Message    string `json:"message"`
	StartedAt  string `json:"started_at,omitempty"`
	Uptime     string `json:"uptime,omitempty"`
	MountCount int    `json:"mount_count"`
}

// apiEnvelope mirrors the management API response wrapper.
type apiEnvelope struct {
	Status string `json:"status"`
	Data   struct {
		PID        int       `json:"pid"`
		SessionID  string    `json:"session_id"`
		StartedAt  time.Time `json:"started_at"`
		Uptime     string    `json:"uptime"`
		MountCount int       `json:"mount_count"`
	} `json:"data"`
	Error string `json:"error"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	status := DaemonStatus{
		Running: false,
		Message: "Daemon is not running",
	}

	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check PID file first
	if pidData, err := os.ReadFile(pidPath); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(pidData))); err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				// On Unix, FindProcess always succeeds; probe with signal 0
				if process.Signal(syscall.Signal(0)) == nil {
					status.Running = true
					status.PID = pid
					status.Message = "Daemon process is running"
				}
			}
		}
	}

	// Query the management API (works for both daemon and foreground mode)
	statusURL := fmt.Sprintf("http://%s:%d/api/v1/status", statusAPIHost, statusAPIPort)
	client := &http.Client{Timeout: 2 * time.Second}

	if resp, err := client.Get(statusURL); err == nil {
		defer func() { _ = resp.Body.Close() }()

		var envelope apiEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Status == "ok" {
			status.Running = true
			status.PID = envelope.Data.PID
			status.SessionID = envelope.Data.SessionID
			status.StartedAt = envelope.Data.StartedAt.Local().Format(time.RFC1123)
			status.Uptime = envelope.Data.Uptime
			status.MountCount = envelope.Data.MountCount
			status.Message = "Daemon is running"
		}
	} else if status.Running {
		status.Message = "Daemon process exists but the management API is unreachable"
	}

	if statusOutput == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)
	}

	printStatusTable(status)
	return nil
}

func printStatusTable(status DaemonStatus) {
	fmt.Println()
	fmt.Println("DriftFS Daemon Status")
	fmt.Println("=====================")
	fmt.Println()

	if status.Running {
		fmt.Printf("  Status:     \033[32m● Running\033[0m\n")
		fmt.Printf("  PID:        %d\n", status.PID)
		if status.SessionID != "" {
			fmt.Printf("  Session:    %s\n", status.SessionID)
		}
		if status.StartedAt != "" {
			fmt.Printf("  Started:    %s\n", status.StartedAt)
		}
		if status.Uptime != "" {
			fmt.Printf("  Uptime:     %s\n", status.Uptime)
		}
		fmt.Printf("  Mounts:     %d\n", status.MountCount)
	} else {
		fmt.Printf("  Status:     \033[31m○ Stopped\033[0m\n")
	}

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()
}
