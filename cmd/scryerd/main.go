// Scryer Core - Android Device Automation Platform
//
// Scryer discovers Android devices over ADB, resolves them to stable
// identities across reconnects, and runs user-defined flows against
// them on a schedule or on demand, publishing sensor state and
// accepting commands over MQTT / Home Assistant discovery.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scryerhq/scryer-core/internal/action"
	"github.com/scryerhq/scryer-core/internal/adbdaemon"
	"github.com/scryerhq/scryer-core/internal/adbtransport"
	"github.com/scryerhq/scryer-core/internal/api"
	"github.com/scryerhq/scryer-core/internal/executor"
	"github.com/scryerhq/scryer-core/internal/identity"
	"github.com/scryerhq/scryer-core/internal/infrastructure/config"
	"github.com/scryerhq/scryer-core/internal/infrastructure/database"
	"github.com/scryerhq/scryer-core/internal/infrastructure/influxdb"
	"github.com/scryerhq/scryer-core/internal/infrastructure/logging"
	"github.com/scryerhq/scryer-core/internal/infrastructure/mqttclient"
	"github.com/scryerhq/scryer-core/internal/mqttbridge"
	"github.com/scryerhq/scryer-core/internal/navgraph"
	"github.com/scryerhq/scryer-core/internal/scheduler"
	"github.com/scryerhq/scryer-core/internal/store"
	_ "github.com/scryerhq/scryer-core/migrations" // registers embedded SQL migrations
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// shutdownTimeout bounds how long graceful shutdown waits for in-flight
// flow runs and MQTT/database teardown before giving up.
const shutdownTimeout = 20 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	fmt.Printf("Scryer Core %s (%s) built %s\n", version, commit, date)
	fmt.Println("Android Device Automation Platform")
	fmt.Println("---")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// mqttPublisherAdapter narrows *mqttclient.Client to mqttbridge.Publisher.
// Client.Subscribe takes the named mqttclient.MessageHandler type rather
// than the bare func literal Publisher declares, so the two aren't
// directly assignable without this adapter.
type mqttPublisherAdapter struct {
	*mqttclient.Client
}

func (a mqttPublisherAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	return a.Client.Subscribe(topic, qos, mqttclient.MessageHandler(handler))
}

// unlockConfigAdapter resolves a device's configured unlock PIN from the
// static config file, satisfying executor.UnlockConfig.
type unlockConfigAdapter struct {
	cfg *config.Config
}

func (a unlockConfigAdapter) PIN(sdid string) (string, bool) {
	override, ok := a.cfg.DeviceOverride(sdid)
	if !ok || override.AutoUnlockPIN == "" {
		return "", false
	}
	return override.AutoUnlockPIN, true
}

// loggingFlowRunner wraps the flow Executor with append-only persistence to
// the Execution Log, bracketing each run with a Start/Finish pair so every
// dispatch the scheduler makes through "server" mode - and every fallback
// from a failed companion dispatch - leaves a durable record.
type loggingFlowRunner struct {
	inner  *executor.Executor
	log    *store.ExecutionLog
	logger *logging.Logger
}

func (r loggingFlowRunner) Run(ctx context.Context, sdid, cid string, flow *store.Flow, mode executor.Mode) (*executor.Result, error) {
	executionID, err := r.log.Start(ctx, flow.FlowID, sdid, len(flow.Steps))
	if err != nil {
		r.logger.Warn("execution log start failed", "flow_id", flow.FlowID, "sdid", sdid, "error", err)
	}

	result, runErr := r.inner.Run(ctx, sdid, cid, flow, mode)

	if executionID != "" {
		rec := store.Execution{StepsTotal: len(flow.Steps)}
		switch {
		case runErr != nil:
			rec.Status = "aborted"
			rec.ErrorMessage = runErr.Error()
		case result.Succeeded:
			rec.Status = "success"
		default:
			rec.Status = "failed"
			rec.ErrorMessage = result.Error
		}
		if result != nil {
			rec.StepsCompleted = len(result.Steps) - result.StepsSkipped
			rec.StepsSkipped = result.StepsSkipped
			rec.DurationMs = result.DurationMs
			for _, step := range result.Steps {
				if !step.Succeeded && !step.Skipped {
					rec.StepsFailed++
				}
			}
		}
		if finishErr := r.log.Finish(ctx, executionID, rec); finishErr != nil {
			r.logger.Warn("execution log finish failed", "execution_id", executionID, "error", finishErr)
		}
	}

	return result, runErr
}

// sleepGraceFor returns a closure resolving a device's sleep grace period
// from its config override, falling back to the scheduler-wide default.
func sleepGraceFor(cfg *config.Config) func(sdid string) time.Duration {
	return func(sdid string) time.Duration {
		if override, ok := cfg.DeviceOverride(sdid); ok && override.SleepGracePeriod > 0 {
			return override.SleepGracePeriod
		}
		return cfg.Scheduler.DefaultSleepGracePeriod
	}
}

// run wires every component in dependency order - identity, device
// connection, local flow storage, MQTT, navigation, execution, scheduling,
// then the read-only HTTP surface - and blocks until ctx is cancelled, at
// which point it tears everything down in reverse.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Logging, version)
	logger.Info("starting scryerd", "site", cfg.Site.ID, "data_dir", cfg.DataDir)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // best-effort on shutdown path

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running database migrations: %w", err)
	}

	daemon, err := adbdaemon.NewManager(adbdaemon.Config{
		Managed: false,
		Binary:  cfg.ADB.Binary,
	})
	if err != nil {
		return fmt.Errorf("building adb daemon manager: %w", err)
	}
	daemon.SetLogger(logger)
	if err := daemon.Start(ctx); err != nil {
		return fmt.Errorf("starting adb daemon: %w", err)
	}
	defer daemon.Stop() //nolint:errcheck // best-effort on shutdown path

	transport := adbtransport.New(cfg.ADB, logger)

	identityRepo := identity.NewSQLiteRepository(db.DB)
	probe := adbtransport.NewProbe(transport)
	resolver := identity.NewResolver(identityRepo, probe)
	resolver.SetLogger(logger)

	st := store.NewStore(cfg.DataDir, resolver)
	st.SetLogger(logger)

	execLog := store.NewExecutionLog(db.DB)

	mqttClient, err := mqttclient.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to mqtt broker: %w", err)
	}
	mqttClient.SetLogger(logger)
	defer mqttClient.Close() //nolint:errcheck // best-effort on shutdown path

	bridge := mqttbridge.New(mqttPublisherAdapter{mqttClient}, cfg.MQTT.DiscoveryPrefix)
	bridge.SetLogger(logger)
	if err := bridge.SubscribeDeviceAnnouncements(); err != nil {
		return fmt.Errorf("subscribing to device announcements: %w", err)
	}

	nav := navgraph.NewGraph(cfg.DataDir)
	nav.SetLogger(logger)

	var tsWriter executor.TimeseriesWriter
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		// No time-series export configured; capture_sensors runs without it.
	case err != nil:
		logger.Warn("influxdb connect failed, continuing without time-series export", "error", err)
	default:
		defer influxClient.Close() //nolint:errcheck // best-effort on shutdown path
		tsWriter = influxClient
	}

	actions := action.New(transport, func(ctx context.Context, cid string) {
		if _, err := transport.DumpUI(ctx, cid); err != nil {
			logger.Warn("post-action navigation dump failed", "cid", cid, "error", err)
		}
	})

	unlockCfg := unlockConfigAdapter{cfg: cfg}

	exec := executor.New(transport, st, bridge, actions, nav, transport, unlockCfg)
	exec.SetLogger(logger)
	exec.SetTimeseriesWriter(tsWriter)

	runner := loggingFlowRunner{inner: exec, log: execLog, logger: logger}

	sched := scheduler.New(st, resolver, runner, bridge, transport, unlockCfg,
		scheduler.WithSleepGracePeriod(sleepGraceFor(cfg)),
	)
	sched.SetLogger(logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	apiServer, err := api.New(api.Deps{
		Config:    cfg.HTTP,
		Logger:    logger,
		Resolver:  resolver,
		MQTT:      mqttClient,
		DB:        db,
		Scheduler: sched,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("building api server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	logger.Info("scryerd ready", "http_addr", fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port))

	<-ctx.Done()
	logger.Info("shutdown signal received, cleaning up")

	if err := apiServer.Close(); err != nil {
		logger.Error("api server shutdown error", "error", err)
	}

	waitDone := make(chan struct{})
	go func() {
		sched.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		logger.Warn("scheduler did not drain in-flight runs within shutdown timeout", "timeout", shutdownTimeout)
	}

	logger.Info("scryerd stopped")
	return nil
}
