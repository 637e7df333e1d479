package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lloyd-blog/edge/internal/config"
	"github.com/lloyd-blog/edge/internal/db"
	"github.com/lloyd-blog/edge/internal/logging"
	"github.com/lloyd-blog/edge/internal/worker"
)

var workerPort int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the offline-first cache proxy",
	Long: `Runs the worker cache as an HTTP proxy in front of worker.origin. On start
it installs the current cache generation (precaching the manifest), activates
it, and evicts older generations. Control endpoints live under /__worker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Worker.Port = workerPort
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		var database *db.DB
		if cfg.Worker.Storage == config.BackendSQLite {
			database, err = openDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()
		}

		w, err := newWorker(cfg, newCacheStorage(cfg, database), logger, nil)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		results, err := w.Register(ctx)
		if err != nil {
			return fmt.Errorf("registering worker: %w", err)
		}
		failed := 0
		for _, res := range results {
			if !res.OK() {
				failed++
			}
		}
		logger.Info("worker registered",
			zap.String("state", string(w.State())),
			zap.Strings("caches", w.Generation().Names()),
			zap.Int("precached", len(results)-failed),
			zap.Int("precache_failed", failed),
		)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		if cfg.Server.TrustedIPHeader != "" {
			r.Use(middleware.RealIP)
		}
		r.Use(logging.Middleware(logger))
		r.Use(middleware.Recoverer)
		worker.RegisterRoutes(r, w)
		r.Handle("/*", w.Proxy())

		addr := net.JoinHostPort(cfg.Worker.Host, strconv.Itoa(cfg.Worker.Port))
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
			IdleTimeout:       120 * time.Second,
		}

		go func() {
			<-ctx.Done()
			logger.Info("shutting down worker proxy")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("worker proxy shutdown", zap.Error(err))
			}
		}()

		logger.Info("worker proxy listening", zap.String("addr", addr), zap.String("origin", cfg.Worker.Origin))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("worker proxy: %w", err)
		}
		// Let in-flight revalidations land before the store closes.
		w.Wait()
		return nil
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerPort, "port", 8788, "Port to listen on (overrides worker.port)")
	rootCmd.AddCommand(workerCmd)
}
