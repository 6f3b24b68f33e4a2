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

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fareidzulkifli/task-manager/api"
	"github.com/fareidzulkifli/task-manager/board"
	"github.com/fareidzulkifli/task-manager/config"
	"github.com/fareidzulkifli/task-manager/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "taskboard",
		Short:        "Kanban board ordering service",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), workerCmd(), optimizeCmd(), migrateCmd(), tokenCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	return cfg
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the board API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := log.StandardLogger()
			b, err := openBackend(ctx, cfg)
			if err != nil {
				log.Fatalf("storage: %v", err)
			}
			defer b.Close()

			bridge := board.NewBridge(b.patcher, logger, board.BridgeOptions{
				Workers: cfg.PatchWorkers,
				Buffer:  cfg.PatchBuffer,
				Timeout: cfg.PatchTimeout,
			})
			defer bridge.Close()
			registry := board.NewRegistry(b.store, bridge, logger)
			defer registry.Close()
			if b.redis != nil && b.queue != nil {
				go storage.RelayAlerts(ctx, b.redis, storage.AlertsChannel, bridge.Report, logger)
			}

			auth, err := newAuth(cfg)
			if err != nil {
				log.Fatalf("jwks: %v", err)
			}

			e := newEcho()
			api.Register(e, registry, bridge, auth, logger)

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := e.Shutdown(shutdownCtx); err != nil {
					logger.WithError(err).Warn("shutdown")
				}
			}()
			logger.WithFields(log.Fields{"addr": cfg.ListenAddr, "driver": cfg.StoreDriver}).Info("taskboard listening")
			if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}

// newEcho builds the server with its shared middleware. Gzip-encoded
// request bodies are inflated before they reach the handlers.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))
	e.Use(middleware.Decompress())
	return e
}

func newAuth(cfg config.Config) (*api.Auth, error) {
	if cfg.Auth0TestMode {
		return api.NewAuth(nil, cfg.Auth0Audience, "", []byte(cfg.TestJWTSecret)), nil
	}
	jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{RefreshInterval: time.Hour})
	if err != nil {
		return nil, err
	}
	return api.NewAuth(jwks, cfg.Auth0Audience, cfg.Issuer(), nil), nil
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Apply queued PATCH commands to the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			if cfg.PatchQueue == "" {
				log.Fatal("missing PATCH_QUEUE")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, err := openBackend(ctx, cfg)
			if err != nil {
				log.Fatalf("storage: %v", err)
			}
			defer b.Close()

			var dedupe storage.Deduper
			if b.redis != nil {
				dedupe = storage.NewRedisDeduper(b.redis, cfg.DedupeTTL)
			}
			consumer := storage.NewConsumer(b.queue, b.store, dedupe, log.StandardLogger())
			if b.redis != nil {
				consumer.WithAlerts(storage.NewAlertPublisher(b.redis, storage.AlertsChannel))
			}
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func optimizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "optimize <projectID>",
		Short: "Re-index a project's tasks by priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg)
			if err != nil {
				log.Fatalf("storage: %v", err)
			}
			defer b.Close()

			project, err := b.store.GetProject(ctx, args[0])
			if err != nil {
				return fmt.Errorf("project %s: %w", args[0], err)
			}
			state, err := board.Load(ctx, b.store, project.OrgID)
			if err != nil {
				return err
			}
			logger := log.StandardLogger()
			bridge := board.NewBridge(b.patcher, logger, board.BridgeOptions{Workers: cfg.PatchWorkers, Timeout: cfg.PatchTimeout})
			failures := bridge.Alerts(len(state.Tasks()) + 1)
			out, err := board.NewCoordinator(state, bridge, logger).Optimize(project.ID)
			bridge.Close()
			if err != nil {
				return err
			}
			failures.Close()
			var failed int
			for range failures.C {
				failed++
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d patches failed", failed, out.Patches)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "optimized %s: %d tasks re-indexed\n", project.ID, out.Patches)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables, queues and schema for the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg)
			if err != nil {
				log.Fatalf("storage: %v", err)
			}
			defer b.Close()
			if err := b.migrate(ctx); err != nil {
				return err
			}
			log.WithField("driver", cfg.StoreDriver).Info("storage ready")
			return nil
		},
	}
}

