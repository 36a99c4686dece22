package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	stopPidFile string
	stopTimeout time.Duration
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the DriftFS daemon",
	Long: `Stop a running DriftFS daemon.

The daemon is located through its PID file and sent SIGTERM, which
triggers the full graceful shutdown sequence (unmount all filesystems,
release stores and the instance lock). The command waits for the process
to exit.

Examples:
  # Stop the daemon
  driftfs stop

  # Stop with a custom PID file
  driftfs stop --pid-file /run/driftfs.pid`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/driftfs/driftfs.pid)")
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 60*time.Second, "Maximum time to wait for the daemon to exit")
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath := stopPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("driftfs does not appear to be running (no PID file at %s)", pidPath)
		}
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		return fmt.Errorf("invalid PID file %s: %w", pidPath, err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		if err == os.ErrProcessDone || err.Error() == "os: process already finished" {
			_ = os.Remove(pidPath)
			return fmt.Errorf("driftfs is not running (stale PID file removed)")
		}
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	fmt.Printf("Sent SIGTERM to driftfs (PID %d), waiting for shutdown...\n", pid)

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		// Signal 0 probes for existence without delivering anything.
		if err := process.Signal(syscall.Signal(0)); err != nil {
			fmt.Println("DriftFS stopped")
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	return fmt.Errorf("driftfs (PID %d) did not exit within %s", pid, stopTimeout)
}
