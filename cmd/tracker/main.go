// Package main is the entry point for the Hyperliquid wallet tracker.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/hlwatch/tracker/business/dispatch"
	dispatchDI "github.com/hlwatch/tracker/business/dispatch/di"
	"github.com/hlwatch/tracker/business/router"
	routerDI "github.com/hlwatch/tracker/business/router/di"
	routerdomain "github.com/hlwatch/tracker/business/router/domain"
	"github.com/hlwatch/tracker/business/rules"
	rulesdomain "github.com/hlwatch/tracker/business/rules/domain"
	"github.com/hlwatch/tracker/business/upstream"
	upstreamdomain "github.com/hlwatch/tracker/business/upstream/domain"
	"github.com/hlwatch/tracker/internal/apm"
	"github.com/hlwatch/tracker/internal/config"
	"github.com/hlwatch/tracker/internal/health"
	"github.com/hlwatch/tracker/internal/httpclient"
	"github.com/hlwatch/tracker/internal/logger"
	"github.com/hlwatch/tracker/internal/metrics"
	"github.com/hlwatch/tracker/internal/monolith"
)

// Exit codes: 0 success, 1 configuration error or any other command failure
// (including bad flags/args reported by cobra), 2 startup failure, 130
// interrupted (SIGINT).
const (
	exitOK        = 0
	exitFailure   = 1
	exitStartup   = 2
	exitInterrupt = 130
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if code, ok := err.(exitCoder); ok {
			os.Exit(code.ExitCode())
		}
		os.Exit(exitFailure)
	}
}

// exitCoder lets a command communicate a non-default exit code (e.g. 130
// on an interrupted start) without main having to inspect error strings.
type exitCoder interface {
	error
	ExitCode() int
}

type exitError struct {
	err  error
	code int
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) ExitCode() int { return e.code }

var rootCmd = &cobra.Command{
	Use:     "tracker",
	Short:   "Hyperliquid wallet tracker - real-time account monitoring and alerting",
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to configuration file")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(testNotificationCmd)
	rootCmd.AddCommand(configDumpCmd)
	rootCmd.AddCommand(configGenerateCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tracker: connect upstream, evaluate rules, dispatch alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return runStart(configPath)
	},
}

func runStart(configPath string) error {
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupted := false
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		interrupted = sig == syscall.SIGINT
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return &exitError{fmt.Errorf("failed to load config: %w", err), exitFailure}
	}

	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}
	log := logger.New(os.Stderr, logLevel, cfg.App.Name, nil)
	log.Info(ctx, "starting hyperliquid wallet tracker",
		"version", version,
		"environment", cfg.App.Environment,
	)

	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}
		if cfg.Telemetry.OTLPEndpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
		}

		traceProvider = apm.NewTraceProvider(log, apm.WithProvider(apm.ZipkinProvider, log))
		log.Info(ctx, "tracing initialized", "provider", "zipkin", "endpoint", cfg.Telemetry.OTLPEndpoint)

		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{
				Provider: metrics.PrometheusProvider,
			}),
		)

		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port)))
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	healthPort := cfg.App.HealthPort
	if healthPort == 0 {
		healthPort = 8081
	}
	healthServer := health.NewServer(healthPort, version)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", healthPort)
	}
	defer healthServer.Stop(ctx)

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return &exitError{fmt.Errorf("failed to create monolith: %w", err), exitStartup}
	}
	defer mono.Close()

	// Module order follows DI dependency direction, not pipeline direction:
	// RegisterToken invokes its factory eagerly, so a module that resolves
	// another module's token during RegisterServices needs that other
	// module registered first. dispatch has no cross-module dependency;
	// rules resolves dispatch as its AlertSink; router resolves rules as
	// its RuleEvaluator; upstream only resolves router's FrameSink, and
	// only at Startup time, which is always safe.
	modules := []monolith.Module{
		&dispatch.Module{}, // Must be first - provides the AlertSink rules depends on
		&rules.Module{},    // Depends on dispatch
		&router.Module{},   // Depends on rules
		&upstream.Module{}, // Depends on router (resolved at Startup only)
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return &exitError{fmt.Errorf("failed to register modules: %w", err), exitStartup}
	}

	healthServer.SetStatusProvider(func(ctx context.Context) interface{} {
		return buildStatusSnapshot(mono)
	})

	if err := mono.StartModules(ctx, modules...); err != nil {
		return &exitError{fmt.Errorf("failed to start modules: %w", err), exitStartup}
	}

	log.Info(ctx, "all modules started, tracker is running")

	<-ctx.Done()
	log.Info(ctx, "shutting down")

	// Give the dispatcher's workers and retry sweeper up to 5s to return.
	stopped := make(chan struct{})
	go func() {
		dispatchDI.GetDispatcherService(mono.Services()).Shutdown()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
	}

	if interrupted {
		return &exitError{fmt.Errorf("interrupted"), exitInterrupt}
	}
	return nil
}

type statusSnapshot struct {
	Router   routerSnapshot `json:"router"`
	Dispatch interface{}    `json:"dispatch"`
}

type routerSnapshot struct {
	FramesReceived uint64 `json:"frames_received"`
	FailedParses   uint64 `json:"failed_parses"`
	Discarded      uint64 `json:"discarded"`
	Deduplicated   uint64 `json:"deduplicated"`
	EventsEmitted  uint64 `json:"events_emitted"`
}

func buildStatusSnapshot(mono monolith.Monolith) statusSnapshot {
	routerStats := routerDI.GetRouter(mono.Services()).Stats()
	dispatchStats := dispatchDI.GetDispatcherService(mono.Services()).Stats()

	return statusSnapshot{
		Router: routerSnapshot{
			FramesReceived: routerStats.FramesReceived,
			FailedParses:   routerStats.FailedParses,
			Discarded:      routerStats.Discarded,
			Deduplicated:   routerStats.Deduplicated,
			EventsEmitted:  routerStats.EventsEmitted,
		},
		Dispatch: dispatchStats,
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running instance's /status endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return &exitError{fmt.Errorf("failed to load config: %w", err), exitFailure}
		}
		port := cfg.App.HealthPort
		if port == 0 {
			port = 8081
		}
		if err := fetchStatus(port); err != nil {
			return &exitError{err, exitFailure}
		}
		return nil
	},
}

func fetchStatus(port int) error {
	client, err := httpclient.NewInstrumentedClient(httpclient.WithProviderName("tracker-cli"))
	if err != nil {
		return fmt.Errorf("failed to build http client: %w", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/status", port)
	resp, err := client.NewRequest().Get(context.Background(), url)
	if err != nil {
		return fmt.Errorf("failed to reach tracker on port %d: %w", port, err)
	}
	if resp.IsError() {
		return fmt.Errorf("tracker returned status %d: %s", resp.StatusCode, resp.String())
	}

	var pretty interface{}
	if err := json.Unmarshal(resp.Body(), &pretty); err != nil {
		fmt.Println(resp.String())
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var testNotificationCmd = &cobra.Command{
	Use:   "test-notification",
	Short: "Send a synthetic alert through dispatch to verify channel wiring",
	Long: `Builds a synthetic triggered alert and runs it through the dispatch
module's formatting and channel-send path, exercising the same code the
rules engine calls on a real alert. Useful for verifying webhook URLs, bot
tokens, and SMTP credentials before going live.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		if err := runTestNotification(configPath); err != nil {
			return &exitError{err, exitFailure}
		}
		return nil
	},
}

func runTestNotification(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(os.Stderr, logger.LevelInfo, cfg.App.Name, nil)
	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	dispatchModule := &dispatch.Module{}
	if err := mono.RegisterModules(dispatchModule); err != nil {
		return fmt.Errorf("failed to register dispatch module: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mono.StartModules(ctx, dispatchModule); err != nil {
		return fmt.Errorf("failed to start dispatch module: %w", err)
	}

	dispatcher := dispatchDI.GetDispatcherService(mono.Services())

	coin := "ETH"
	price := decimal.NewFromInt(2500)
	size := decimal.NewFromInt(50)
	usd := price.Mul(size)

	account := upstreamdomain.Account("0x0000000000000000000000000000000000000000")
	if accts := cfg.Upstream.WatchedAccounts; len(accts) > 0 {
		if parsed, ok := upstreamdomain.ParseAccount(accts[0]); ok {
			account = parsed
		}
	}

	event := routerdomain.Event{
		Kind:       upstreamdomain.KindFills,
		Account:    account,
		Coin:       &coin,
		Side:       routerdomain.SideBuy,
		Price:      &price,
		Size:       &size,
		USDValue:   &usd,
		ObservedAt: time.Now(),
	}

	alert := rulesdomain.TriggeredAlert{
		Rule: rulesdomain.Rule{
			Name:      "test-notification",
			Enabled:   true,
			Severity:  rulesdomain.SeverityHigh,
			Condition: rulesdomain.ConditionPositionSize,
			Threshold: usd,
		},
		Event:   event,
		FiredAt: time.Now(),
	}

	dispatcher.Accept(ctx, alert)
	log.Info(ctx, "test notification enqueued on all enabled channels")

	// Let the channel workers drain the task before the process exits.
	time.Sleep(2 * time.Second)
	return nil
}

var configDumpCmd = &cobra.Command{
	Use:   "config-dump",
	Short: "Load configuration and print the resolved values as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return &exitError{fmt.Errorf("failed to load config: %w", err), exitFailure}
		}
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var configGenerateCmd = &cobra.Command{
	Use:   "config-generate",
	Short: "Print a starter config.yaml with sane defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print(starterConfigYAML)
		return nil
	},
}

const starterConfigYAML = `app:
  name: hyperliquid-wallet-tracker
  environment: development
  log_level: info
  health_port: 8081

upstream:
  url: wss://api.hyperliquid.xyz/ws
  watched_accounts:
    - "0x0000000000000000000000000000000000000000"

thresholds:
  whale: 1000000
  large: 100000
  medium: 10000
  notable: 1000

dedup:
  window_seconds: 30

dispatch:
  max_retries: 3
  retry_base_delay_seconds: 5
  ring_capacity: 1000

channels:
  discord:
    enabled: false
    webhook_url: ""
    rate_limit_seconds: 60
  telegram:
    enabled: false
    bot_token: ""
    chat_id: ""
    rate_limit_seconds: 60
  email:
    enabled: false
    smtp_server: ""
    smtp_port: 587
    username: ""
    password: ""
    to: []
    rate_limit_seconds: 10
  webhook:
    enabled: false
    url: ""
    headers: {}
    rate_limit_seconds: 60

rules:
  - name: large-position
    enabled: true
    severity: high
    condition: position-size
    threshold: 100000
    time_window_seconds: 0

telemetry:
  enabled: false
  service_name: hyperliquid-wallet-tracker
  otlp_endpoint: ""
  prometheus_port: 9090
`
