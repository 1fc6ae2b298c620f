package launcher

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"time"
)

const readinessPollInterval = 100 * time.Millisecond

// ProcessBackend runs an application as a subprocess. The executable is
// invoked with -port and -dbPath flags and is expected to bind its HTTP
// listener on the given port; Start returns once that listener accepts
// connections, or with an error if the process exits first.
type ProcessBackend struct {
	Module  string
	BinPath string
	WorkDir string
	Logger  *slog.Logger
}

// Start launches the subprocess and waits for its listener to come up.
// Waiting is unbounded: a backend that never binds stalls startup until
// the context is cancelled.
func (b *ProcessBackend) Start(ctx context.Context, opts StartOptions) error {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", b.Module)

	args := []string{
		"-port", fmt.Sprintf("%d", opts.Port),
		"-dbPath", opts.DBPath,
	}

	cmd := exec.CommandContext(ctx, b.BinPath, args...)
	cmd.Env = os.Environ()
	if b.WorkDir != "" {
		cmd.Dir = b.WorkDir
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe for %s: %w", b.Module, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		stdoutPipe.Close()
		return fmt.Errorf("stderr pipe for %s: %w", b.Module, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", b.Module, err)
	}
	logger.Info("Subprocess started", "pid", cmd.Process.Pid, "port", opts.Port)

	go func() {
		defer stdoutPipe.Close()
		scanner := bufio.NewScanner(stdoutPipe)
		for scanner.Scan() {
			logger.Info("Backend stdout", "pid", cmd.Process.Pid, "output", scanner.Text())
		}
	}()
	go func() {
		defer stderrPipe.Close()
		scanner := bufio.NewScanner(stderrPipe)
		for scanner.Scan() {
			logger.Error("Backend stderr", "pid", cmd.Process.Pid, "output", scanner.Text())
		}
	}()

	exitChan := make(chan error, 1)
	go func() {
		exitChan <- cmd.Wait()
	}()

	return b.awaitListener(ctx, opts.Port, exitChan, logger)
}

// awaitListener polls the backend port until it accepts a connection.
func (b *ProcessBackend) awaitListener(ctx context.Context, port int, exitChan <-chan error, logger *slog.Logger) error {
	addr := fmt.Sprintf("localhost:%d", port)
	ticker := time.NewTicker(readinessPollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-exitChan:
			if err != nil {
				return fmt.Errorf("backend %s exited before listening: %w", b.Module, err)
			}
			return fmt.Errorf("backend %s exited before listening", b.Module)
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			conn, err := net.DialTimeout("tcp", addr, readinessPollInterval)
			if err == nil {
				conn.Close()
				logger.Info("Backend listener ready", "addr", addr)
				return nil
			}
		}
	}
}
