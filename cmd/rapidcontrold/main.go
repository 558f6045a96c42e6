// Command rapidcontrold runs the control-plane server: it loads
// configuration, opens the store, and serves client and farm
// connections over websocket until a termination signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rapidcontrol/server/internal/broker"
	"github.com/rapidcontrol/server/internal/cache"
	"github.com/rapidcontrol/server/internal/config"
	"github.com/rapidcontrol/server/internal/handlers"
	"github.com/rapidcontrol/server/internal/httpapi"
	"github.com/rapidcontrol/server/internal/metrics"
	"github.com/rapidcontrol/server/internal/store/sqlite"
	"github.com/rapidcontrol/server/internal/wsserver"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "rapidcontrold",
		Short: "Control-plane server for a fleet of farm devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "./rapidcontrol.conf", "path to the JSON configuration file")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return err
		}
		cfg = config.Default()
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(log)

	var storeOpts []sqlite.Option
	if cfg.BcryptCost > 0 {
		storeOpts = append(storeOpts, sqlite.WithBcryptCost(cfg.BcryptCost))
	}
	st := sqlite.New(cfg.DBPath, storeOpts...)
	if err := st.Open(ctx); err != nil {
		return fmt.Errorf("rapidcontrold: open store: %w", err)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	deps := &handlers.Deps{
		Store:   st,
		Broker:  broker.New(),
		Metrics: met,
		Log:     log,
	}

	fileCache, err := buildCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("rapidcontrold: build cache: %w", err)
	}

	ws := wsserver.New(deps)
	mux := httpapi.New(ws, fileCache, reg, log)

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("rapidcontrold: listening", "addr", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("rapidcontrold: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serveErr:
		return err
	}
}

// buildCache wires the static-file cache to cfg.PublicRoot (and, if set,
// cfg.UserRoot ahead of it), with cfg.S3Bucket optionally layered in
// front of the local tree.
func buildCache(ctx context.Context, cfg *config.Config) (*cache.Cache, error) {
	var local cache.Backend = cache.NewLocalBackend(cfg.PublicRoot)
	if cfg.UserRoot != "" {
		local = cache.NewChainBackend(cache.NewLocalBackend(cfg.UserRoot), local)
	}

	if cfg.S3Bucket == "" {
		return cache.New(local), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return cache.New(cache.NewS3Backend(client, cfg.S3Bucket, cfg.S3Prefix, local)), nil
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
