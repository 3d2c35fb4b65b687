package adbdaemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/scryerhq/scryer-core/internal/process"
)

const (
	// readyTimeout is how long to wait for the adb server to accept
	// connections after starting.
	readyTimeout = 10 * time.Second

	// readyPollInterval is how often to retry connecting during the
	// readiness check.
	readyPollInterval = 100 * time.Millisecond

	// dialTimeout is the per-attempt TCP connect timeout, used both for
	// the readiness check and the periodic health check.
	dialTimeout = 500 * time.Millisecond
)

// Logger defines the logging interface for the daemon manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager supervises the adb server subprocess, restarting it on
// unexpected exit and verifying liveness with a periodic TCP health check.
type Manager struct {
	config  Config
	process *process.Manager
	logger  Logger
}

// NewManager creates an adb server manager from cfg, applying defaults for
// zero-valued fields.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Binary == "" {
		cfg.Binary = "adb"
	}
	if cfg.Port == 0 {
		cfg.Port = 5037
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.MaxRestartAttempts == 0 {
		cfg.MaxRestartAttempts = 10
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Manager{config: cfg, logger: noopLogger{}}, nil
}

// SetLogger sets the logger used for subprocess lifecycle events.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Start launches the adb server and blocks until it accepts connections on
// the configured port. A no-op if Managed is false.
func (m *Manager) Start(ctx context.Context) error {
	if !m.config.Managed {
		m.logger.Info("adb server management disabled, expecting an externally started server")
		return nil
	}

	args := []string{"-P", strconv.Itoa(m.config.Port), "server", "nodaemon"}
	m.logger.Info("starting adb server", "binary", m.config.Binary, "port", m.config.Port)

	procConfig := process.Config{
		Name:               "adb",
		Binary:             m.config.Binary,
		Args:               args,
		RestartOnFailure:   m.config.RestartOnFailure,
		RestartDelay:       m.config.RestartDelay,
		MaxRestartAttempts: m.config.MaxRestartAttempts,
		GracefulTimeout:    m.config.GracefulTimeout,
		OnStop: func(err error) {
			if err != nil {
				m.logger.Warn("adb server stopped", "error", err)
			} else {
				m.logger.Info("adb server stopped")
			}
		},
		HealthCheckInterval: m.config.HealthCheckInterval,
		HealthCheckFunc: func(ctx context.Context) error {
			return m.HealthCheck(ctx)
		},
	}

	m.process = process.NewManager(procConfig)
	m.process.SetLogger(m.logger)

	if err := m.process.Start(ctx); err != nil {
		return fmt.Errorf("starting adb server: %w", err)
	}

	if err := m.waitForReady(ctx); err != nil {
		if stopErr := m.process.Stop(); stopErr != nil {
			m.logger.Warn("error stopping adb server after failed readiness check", "error", stopErr)
		}
		return fmt.Errorf("adb server failed to become ready: %w", err)
	}

	m.logger.Info("adb server ready", "port", m.config.Port)
	return nil
}

// waitForReady polls the configured port until it accepts TCP connections
// or readyTimeout elapses.
func (m *Manager) waitForReady(ctx context.Context) error {
	addr := fmt.Sprintf("localhost:%d", m.config.Port)
	deadline := time.Now().Add(readyTimeout)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for adb server: %w", ctx.Err())
		default:
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for adb server on %s after %v", addr, readyTimeout)
		}

		if !m.process.IsRunning() {
			if lastErr := m.process.LastError(); lastErr != nil {
				return fmt.Errorf("adb server process exited: %w", lastErr)
			}
			return errors.New("adb server process exited unexpectedly")
		}

		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err == nil {
			conn.Close()
			return nil
		}

		time.Sleep(readyPollInterval)
	}
}

// HealthCheck dials the adb server's port; failure signals a hung or
// unresponsive server to the supervising process.Manager's watchdog.
func (m *Manager) HealthCheck(ctx context.Context) error {
	addr := fmt.Sprintf("localhost:%d", m.config.Port)
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("adb server health check: %w", err)
	}
	return conn.Close()
}

// Stop gracefully stops the adb server. A no-op if Managed is false.
func (m *Manager) Stop() error {
	if !m.config.Managed || m.process == nil {
		return nil
	}
	m.logger.Info("stopping adb server")
	return m.process.Stop()
}

// IsRunning reports whether the supervised adb server is currently running.
// When unmanaged, an externally started server is assumed present.
func (m *Manager) IsRunning() bool {
	if !m.config.Managed {
		return true
	}
	if m.process == nil {
		return false
	}
	return m.process.IsRunning()
}
