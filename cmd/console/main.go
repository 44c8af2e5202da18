// Command console serves the schema-driven admin console in front of a REST
// backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rocket-console/internal/activity"
	"rocket-console/internal/config"
	"rocket-console/internal/console"
	"rocket-console/internal/logger"
	"rocket-console/internal/options"
	"rocket-console/internal/schema"
	"rocket-console/internal/store"
	"rocket-console/internal/transport"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const workspacePruneSchedule = "@every 5m"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "console",
		Short:        "Schema-driven admin console",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the console HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check [pages-file]",
		Short: "Validate the config and the pages file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			path := cfg.Console.PagesFile
			if len(args) == 1 {
				path = args[0]
			}
			reg := schema.NewRegistry()
			if err := schema.LoadFile(path, reg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages OK\n", path, len(reg.Names()))
			for _, name := range reg.Names() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "console version %s (build: %s)\n", Version, BuildTime)
		},
	})

	return cmd
}

func serve(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level)
	logger.SetDefault(log)
	log.Infow("config loaded", "port", cfg.Server.Port, "backend", cfg.Backend.BaseURL)

	// 2. Load pages, watching the file for edits
	reg := schema.NewRegistry()
	if err := schema.LoadFile(cfg.Console.PagesFile, reg); err != nil {
		return err
	}
	log.Infow("pages loaded", "file", cfg.Console.PagesFile, "pages", reg.Names())
	if cfg.Console.WatchPages {
		go func() {
			if err := schema.Watch(ctx, cfg.Console.PagesFile, reg, log); err != nil {
				log.Errorw("pages watcher stopped", "error", err)
			}
		}()
	}

	// 3. Option cache
	loader, err := options.NewLoader(options.Config{
		TTL:     time.Duration(cfg.Options.CacheTTLSeconds) * time.Second,
		MaxCost: cfg.Options.MaxCost,
	}, log)
	if err != nil {
		return err
	}
	defer loader.Close()

	// 4. Activity trail and scheduled jobs
	scheduler := activity.NewScheduler()
	var recorder activity.Recorder = activity.Noop{}
	if cfg.Activity.Enabled {
		db, err := store.New(ctx, cfg.Activity)
		if err != nil {
			return fmt.Errorf("open activity store: %w", err)
		}
		defer db.Close()
		if err := db.Bootstrap(ctx); err != nil {
			return err
		}
		buffer := activity.NewBuffer(db, cfg.Activity.BufferSize, cfg.Activity.FlushIntervalMs, log)
		defer buffer.Stop()
		recorder = buffer
		if err := activity.ScheduleCleanup(scheduler, db, cfg.Activity.CleanupSchedule, cfg.Activity.RetentionDays, log); err != nil {
			return err
		}
		entries, err := db.CountActivity(ctx)
		if err != nil {
			return err
		}
		log.Infow("activity trail ready", "driver", cfg.Activity.Driver, "entries", entries)
	}

	// 5. Workspaces
	httpClient := &http.Client{Timeout: cfg.Backend.Timeout()}
	backend := transport.Config{
		BaseURL:     cfg.Backend.BaseURL,
		LoginPath:   cfg.Backend.LoginPath,
		RefreshPath: cfg.Backend.RefreshPath,
		LogoutPath:  cfg.Backend.LogoutPath,
		RefreshSkew: time.Duration(cfg.Backend.RefreshSkewSecs) * time.Second,
		HTTPClient:  httpClient,
	}
	manager := console.NewManager(func(onExpired func()) *transport.Client {
		return transport.NewClient(backend, nil, transport.WithLogger(log), transport.WithOnExpired(onExpired))
	}, log)
	defer manager.CloseAll()

	ttl := cfg.Console.SessionTTL()
	if _, err := scheduler.AddFunc(workspacePruneSchedule, func() { manager.Prune(ttl) }); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	// 6. HTTP server
	s, err := console.New(console.Settings{
		PagesFile:       cfg.Console.PagesFile,
		SessionSecret:   cfg.Console.SessionSecret,
		SessionTTL:      ttl,
		SecureCookies:   cfg.Console.SecureCookies,
		DefaultPageSize: cfg.Console.DefaultPageSize,
		Location:        cfg.Console.Location(),
		Locale:          cfg.Console.Locale,
	}, reg, manager, loader, recorder, log)
	if err != nil {
		return err
	}
	app := s.App()

	errc := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Infow("starting console", "addr", addr)
		errc <- app.Listen(addr)
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Infow("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Warnw("shutdown", "error", err)
		}
	}
	return nil
}
