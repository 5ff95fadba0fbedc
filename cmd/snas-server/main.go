// Command snas-server runs the SNAS credential authority: the admin and
// user pub/sub servers and the local user Unix-socket server, all backed
// by one CredStore over a shared NATS JetStream connection. Which
// transports start is controlled by flags (spec.md §6); starting none is
// a configuration error, mirroring cmd/warren's refusal to start a
// worker with zero resources configured.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/snas/pkg/bus"
	"github.com/cuemby/snas/pkg/config"
	"github.com/cuemby/snas/pkg/credstore"
	"github.com/cuemby/snas/pkg/handlers"
	"github.com/cuemby/snas/pkg/log"
	"github.com/cuemby/snas/pkg/metrics"
	"github.com/cuemby/snas/pkg/socket"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "snas-server",
	Short:   "SNAS credential authority server",
	Long:    "snas-server answers \"does this (username, password) pair authenticate?\" and \"is this user allowed to log in now?\" over an admin bus, a user bus, and a local Unix socket.",
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("snas-server version %s\nCommit: %s\n", Version, Commit))

	rootCmd.Flags().String("config", "", "Path to YAML configuration file")
	rootCmd.Flags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("nats-url", "", "NATS server URL")
	rootCmd.Flags().String("bucket", "", "JetStream KV bucket name")
	rootCmd.Flags().String("admin-prefix", "", "Admin bus subject prefix")
	rootCmd.Flags().String("user-prefix", "", "User bus subject prefix")
	rootCmd.Flags().String("socket-path", "", "Unix socket path for the user socket server")
	rootCmd.Flags().Bool("admin-bus", true, "Start the admin pub/sub server")
	rootCmd.Flags().Bool("user-bus", true, "Start the user pub/sub server")
	rootCmd.Flags().Bool("user-socket", true, "Start the user Unix-socket server")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the /metrics and /health HTTP endpoints")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("nats-url"); v != "" {
		cfg.Bus.URL = v
	}
	if v, _ := cmd.Flags().GetString("bucket"); v != "" {
		cfg.Store.Bucket = v
	}
	if v, _ := cmd.Flags().GetString("admin-prefix"); v != "" {
		cfg.Bus.AdminPrefix = v
	}
	if v, _ := cmd.Flags().GetString("user-prefix"); v != "" {
		cfg.Bus.UserPrefix = v
	}
	if v, _ := cmd.Flags().GetString("socket-path"); v != "" {
		cfg.Socket.Path = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetBool("log-json"); v {
		cfg.Log.JSON = v
	}
	cfg = cfg.Defaults()

	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
	logger := log.WithComponent("main")

	startAdminBus, _ := cmd.Flags().GetBool("admin-bus")
	startUserBus, _ := cmd.Flags().GetBool("user-bus")
	startUserSocket, _ := cmd.Flags().GetBool("user-socket")
	if !startAdminBus && !startUserBus && !startUserSocket {
		return fmt.Errorf("snas-server: at least one of --admin-bus, --user-bus, --user-socket must be enabled")
	}
	if startAdminBus && startUserBus && cfg.Bus.AdminPrefix == cfg.Bus.UserPrefix {
		return fmt.Errorf("snas-server: admin and user subject prefixes must differ, got %q for both", cfg.Bus.AdminPrefix)
	}

	nc, err := nats.Connect(cfg.Bus.URL, nats.Name("snas-server"))
	if err != nil {
		return fmt.Errorf("snas-server: connecting to NATS: %w", err)
	}
	defer nc.Drain()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("snas-server: opening JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	kv, err := credstore.NewJetStreamKV(ctx, js, cfg.Store.Bucket, cfg.Store.History)
	cancel()
	if err != nil {
		return fmt.Errorf("snas-server: opening bucket %q: %w", cfg.Store.Bucket, err)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := credstore.Open(startCtx, kv)
	startCancel()
	if err != nil {
		return fmt.Errorf("snas-server: opening credstore: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("credstore", true, "snapshot loaded")

	h := handlers.New(store, cfg.Accounts.DefaultGroups, cfg.Accounts.ResetTTL, cfg.Accounts.InitialLoginTTL)

	metricsCollector := metrics.NewCollector(store)
	metricsCollector.Start()
	defer metricsCollector.Stop()

	var servers []interface{ Stop() error }

	if startAdminBus {
		adminSrv, err := bus.NewAdminServer(bus.NewConn(nc), h, cfg.Bus.AdminPrefix)
		if err != nil {
			return fmt.Errorf("snas-server: building admin bus server: %w", err)
		}
		if err := adminSrv.Start(); err != nil {
			return fmt.Errorf("snas-server: starting admin bus server: %w", err)
		}
		servers = append(servers, adminSrv)
		logger.Info().Str("prefix", cfg.Bus.AdminPrefix).Msg("admin bus server started")
	}

	if startUserBus {
		userSrv, err := bus.NewUserServer(bus.NewConn(nc), h, cfg.Bus.UserPrefix)
		if err != nil {
			return fmt.Errorf("snas-server: building user bus server: %w", err)
		}
		if err := userSrv.Start(); err != nil {
			return fmt.Errorf("snas-server: starting user bus server: %w", err)
		}
		servers = append(servers, userSrv)
		logger.Info().Str("prefix", cfg.Bus.UserPrefix).Msg("user bus server started")
	}
	metrics.RegisterComponent("bus", startAdminBus || startUserBus, "subscribed")

	var socketSrv *socket.Server
	if startUserSocket {
		socketSrv, err = socket.Listen(cfg.Socket.Path, h)
		if err != nil {
			return fmt.Errorf("snas-server: starting user socket server: %w", err)
		}
		go func() {
			if err := socketSrv.Serve(); err != nil {
				logger.Error().Err(err).Msg("user socket server stopped")
			}
		}()
		logger.Info().Str("path", cfg.Socket.Path).Msg("user socket server started")
	}

	metrics.SetVersion(Version)
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = metricsSrv.Shutdown(shutdownCtx)
	shutdownCancel()

	if socketSrv != nil {
		_ = socketSrv.Close()
	}
	for _, s := range servers {
		_ = s.Stop()
	}
	return nil
}
