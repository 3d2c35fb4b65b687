// Package process provides generic subprocess lifecycle management.
//
// This package is designed for managing long-running child processes such
// as the local adb server that device connectivity depends on.
//
// Features:
//   - Start/stop subprocess with graceful shutdown
//   - Automatic restart on failure with configurable backoff
//   - Health monitoring and status reporting
//   - Log capture from subprocess stdout/stderr
//   - Context-based cancellation for clean shutdown
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:              "adb",
//	    Binary:            "/usr/bin/adb",
//	    Args:              []string{"-P", "5037", "server", "nodaemon"},
//	    RestartOnFailure:  true,
//	    RestartDelay:      5 * time.Second,
//	    MaxRestartAttempts: 10,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
package process
