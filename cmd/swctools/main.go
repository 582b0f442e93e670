// swctools is a command-line client and local API for the game server's
// batch protocol.
//
// It keeps a single player session alive (re-authenticating and correcting
// clock drift as the server demands), exposes it through a REST API and an
// interactive CLI, archives periodic snapshots to SQLite and publishes
// session events via MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/swctools/swctools/internal/api"
	"github.com/swctools/swctools/internal/cli"
	"github.com/swctools/swctools/internal/config"
	"github.com/swctools/swctools/internal/connector"
	"github.com/swctools/swctools/internal/db"
	"github.com/swctools/swctools/internal/events"
	"github.com/swctools/swctools/internal/health"
	"github.com/swctools/swctools/internal/scheduler"
	"github.com/swctools/swctools/internal/session"
	"github.com/swctools/swctools/internal/telemetry"
	"github.com/swctools/swctools/internal/util"
)

const (
	AppName    = "swctools"
	AppVersion = "0.4.0"
	Banner     = `
                 _              _
  _____      __ | |_ ___   ___ | |___
 / __\ \ /\ / / | __/ _ \ / _ \| / __|
 \__ \\ V  V /  | || (_) | (_) | \__ \
 |___/ \_/\_/    \__\___/ \___/|_|___/
  v%s
`
)

func main() {
	configDir := flag.String("config", config.DefaultConfigDir, "configuration directory")
	noCLI := flag.Bool("no-cli", false, "disable the interactive CLI")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", AppName, AppVersion)
		return
	}

	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Defaults first; reconfigured once the config is loaded.
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Msg("starting swctools")

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if err := util.InitLogger(cfg.LogConfig()); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	if cfg.IsFirstRun() {
		log.Info().Msg("first run detected, launching setup wizard")
		if err := config.RunSetupWizard(cfg, os.Stdin, os.Stdout); err != nil {
			log.Fatal().Err(err).Msg("setup wizard failed")
		}
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	hostInfo := util.GetHostInfo()
	log.Info().
		Str("hostname", hostInfo.Hostname).
		Str("os", hostInfo.OS).
		Str("cpu", hostInfo.CPUModel).
		Int("cores", hostInfo.CPUCores).
		Uint64("memory_mb", hostInfo.TotalMemory).
		Msg("system information")

	appData := cfg.GetApplicationData()
	serverCfg := cfg.GetServer()
	serverURL := connector.NormalizeBaseURL(serverCfg.URL)

	store, err := db.NewStore(appData.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus()

	sessCfg := cfg.SessionConfig()
	resolveIdentity(&sessCfg, store, serverURL)

	// Generated identities are cached per server so restarts reuse them.
	eventBus.Subscribe(events.EventIdentityGenerated, "identity_store", func(_ context.Context, e events.Event) error {
		p, ok := e.Payload.(events.IdentityPayload)
		if !ok {
			return nil
		}
		if err := store.SaveIdentity(serverURL, p.PlayerID, p.Secret); err != nil {
			return fmt.Errorf("failed to save generated identity: %w", err)
		}
		log.Info().Str("player_id", p.PlayerID).Msg("generated identity saved")
		return nil
	})

	// Shutdown requests from the CLI end the process like a signal does.
	shutdownCh := make(chan struct{})
	var shutdownOnce sync.Once
	eventBus.Subscribe(events.EventShutdown, "main", func(_ context.Context, e events.Event) error {
		if e.Source != "main" {
			shutdownOnce.Do(func() { close(shutdownCh) })
		}
		return nil
	})

	sender := connector.NewHTTPSender(serverURL, util.UserAgent(AppVersion), cfg.RequestTimeout())
	runner := session.NewLocked(session.New(sessCfg, sender, session.WithEventBus(eventBus)))

	var wg sync.WaitGroup

	if appData.API.Enabled {
		apiServer := api.NewServer(appData.API, runner, store, eventBus, AppVersion)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", appData.API.Port).Msg("starting REST API server")
			if err := startWithRetry(ctx, "API server", apiServer.Start, 5); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		}()
	}

	healthMgr := health.NewManager(appData.Health, runner, eventBus)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting health check manager")
		healthMgr.Start(ctx)
	}()

	var mqttHandler *telemetry.MQTTHandler
	if appData.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(appData.MQTT, eventBus, AppVersion)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
			mqttHandler = nil
		}
	}
	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	sched := scheduler.NewScheduler(appData.Collector, runner, store, eventBus)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()

	if !*noCLI {
		cliHandler := cli.NewCLI(cfg, runner, store, eventBus, os.Stdin, os.Stdout)
		// Not in wg: the stdin reader cannot be interrupted.
		go func() {
			log.Info().Msg("starting interactive CLI")
			cliHandler.Start(ctx)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested")
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	eventBus.Emit(context.Background(), events.Event{
		Type:   events.EventShutdown,
		Source: "main",
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	eventBus.Stop()

	log.Info().Msg("swctools stopped")
}

// resolveIdentity fills in the identity from the database when the config
// does not carry one.
func resolveIdentity(cfg *session.Config, store *db.Store, serverURL string) {
	if cfg.PlayerID != "" {
		log.Info().Str("player_id", cfg.PlayerID).Msg("using configured identity")
		return
	}

	id, err := store.LoadIdentity(serverURL)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load stored identity")
		return
	}
	if id == nil {
		log.Info().Str("server", serverURL).Msg("no stored identity, a new player will be generated")
		return
	}

	cfg.PlayerID = id.PlayerID
	cfg.PlayerSecret = id.Secret
	log.Info().Str("player_id", id.PlayerID).Msg("using stored identity")
}

// startWithRetry attempts to start a listener/server with retry on bind errors.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
