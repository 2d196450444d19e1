package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hannes/gridfinity-cutout/config"
	"github.com/hannes/gridfinity-cutout/dimensions"
	"github.com/hannes/gridfinity-cutout/files"
	"github.com/hannes/gridfinity-cutout/identify"
	"github.com/hannes/gridfinity-cutout/logging"
	"github.com/hannes/gridfinity-cutout/providers"
	"github.com/hannes/gridfinity-cutout/server"
	"github.com/hannes/gridfinity-cutout/storage"
)

const (
	Version   = "0.3.0"
	BuildTime = "dev"
	appName   = "gridfinity"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Gridfinity cutout generator",
		Long: `Identify an item, look up its dimensions and generate a Gridfinity
bin with a matching cutout.

Run "gridfinity serve" for the HTTP API, or use the generate and
baseplate commands to write STL/STEP files directly.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd(), generateCmd(), baseplateCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	return cmd
}

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML or JSON)")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Must(cfg.Logging)
	defer func() { _ = logger.Sync() }()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			Release:          appName + "@" + Version,
			EnableTracing:    cfg.Sentry.TracesSampleRate > 0,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
		}); err != nil {
			logger.Warn("sentry disabled", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	store, err := storage.Open(ctx, cfg.StorageConfig(), logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	client := dimensions.NewClient(dimensions.ClientConfig{
		UserAgent:      cfg.Dimensions.UserAgent,
		Timeout:        cfg.Dimensions.Timeout(),
		RequestsPerSec: cfg.Dimensions.RequestsPerSec,
		Burst:          4,
		AllowPrivate:   cfg.Dimensions.AllowPrivate,
	})
	fetcher := dimensions.NewFetcher(dimensions.FetcherOptions{
		Client:         client,
		SPARQLEndpoint: cfg.Dimensions.SPARQLEndpoint,
		WikidataAPI:    cfg.Dimensions.WikidataAPI,
		WikipediaBase:  cfg.Dimensions.WikipediaBase,
		Catalog:        dimensions.DefaultCatalog(),
		Cache:          store,
		CacheTTL:       cfg.Dimensions.CacheTTL(),
		Logger:         logger,
	})

	identifier, err := newIdentifier(cfg, logger)
	if err != nil {
		return err
	}
	defer identifier.Close()

	fileStore, err := files.NewStore(cfg.Files.DataDir, cfg.Files.TTL(), logger)
	if err != nil {
		return fmt.Errorf("open data dir: %w", err)
	}
	fileStore.StartJanitor(cfg.Files.CleanupInterval())
	defer fileStore.Close()

	go cleanupDimensions(ctx, store, cfg.Database.CleanupAge(), logger)

	srv, err := server.NewServer(cfg, server.Deps{
		Identifier: identifier,
		Dimensions: fetcher,
		Files:      fileStore,
		Log:        store,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	return srv.Start(ctx)
}

func newIdentifier(cfg *config.Config, logger *zap.Logger) (identify.Identifier, error) {
	icfg := identify.Config{
		ModelDir:   cfg.Identify.ModelDir,
		Watch:      cfg.Identify.WatchModel,
		BaseURL:    cfg.Identify.ModelBaseURL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Logger:     logger,
	}
	if cfg.Identify.Backend == identify.BackendLLM {
		pc, ok := cfg.Providers.Get(cfg.Providers.Default)
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", cfg.Providers.Default)
		}
		retry := providers.DefaultRetryConfig()
		if cfg.Providers.MaxAttempts > 0 {
			retry.MaxAttempts = cfg.Providers.MaxAttempts
		}
		provider, err := providers.New(cfg.Providers.Default, providers.Options{
			BaseURL:        pc.BaseURL,
			APIKey:         pc.APIKey,
			Model:          pc.Model,
			Headers:        pc.AdditionalHeaders,
			Timeout:        time.Duration(cfg.Providers.TimeoutSeconds) * time.Second,
			RequestsPerSec: pc.RequestsPerSec,
			Retry:          retry,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create provider: %w", err)
		}
		if err := provider.ValidateConfig(); err != nil {
			return nil, fmt.Errorf("provider %s: %w", provider.GetName(), err)
		}
		icfg.Provider = provider
	}

	identifier, err := identify.New(cfg.Identify.Backend, icfg)
	if err != nil {
		return nil, fmt.Errorf("create identifier: %w", err)
	}
	return identifier, nil
}

// cleanupDimensions prunes old cached lookups once an hour.
func cleanupDimensions(ctx context.Context, cache storage.DimensionCache, age time.Duration, logger *zap.Logger) {
	if age <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := cache.CleanupOldDimensions(ctx, age)
			if err != nil {
				logger.Warn("dimension cache cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("pruned dimension cache", zap.Int64("removed", n))
			}
		}
	}
}
