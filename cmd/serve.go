package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lloyd-blog/edge/internal/config"
	"github.com/lloyd-blog/edge/internal/contact"
	"github.com/lloyd-blog/edge/internal/db"
	"github.com/lloyd-blog/edge/internal/mail"
	"github.com/lloyd-blog/edge/internal/ratelimit"
	"github.com/lloyd-blog/edge/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the edge server",
	Long:  `Serves the built site with security and caching headers, re-serves the service worker at /sw.js, and accepts contact form submissions at POST /contact.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		origin, err := newOrigin(cfg)
		if err != nil {
			return err
		}

		var database *db.DB
		if cfg.RateLimit.Backend == config.BackendSQLite {
			database, err = openDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()
		}

		composer, err := mail.NewComposer(mail.Identity{
			From:     cfg.Mail.From,
			FromName: cfg.Mail.FromName,
			To:       cfg.Mail.To,
			Site:     cfg.Site.Title,
		})
		if err != nil {
			return fmt.Errorf("configuring mail: %w", err)
		}
		sender, err := newSender(cfg, logger)
		if err != nil {
			return fmt.Errorf("configuring mail transport: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		limiter := newLimiter(cfg, database)
		if mem, ok := limiter.(*ratelimit.Memory); ok && cfg.RateLimit.SweepInterval > 0 {
			go mem.Run(ctx, cfg.RateLimit.SweepInterval)
		}

		srv := server.New(server.Config{
			Host:              cfg.Server.Host,
			Port:              cfg.Server.Port,
			AllowedOrigins:    cfg.Server.AllowedOrigins,
			TrustedIPHeader:   cfg.Server.TrustedIPHeader,
			RequestTimeout:    cfg.Server.RequestTimeout,
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
			WorkerScript:      cfg.Site.WorkerScript,
			NotFoundPage:      cfg.Site.NotFoundPage,
		}, origin, contact.NewHandler(limiter, composer, sender, cfg.Server.TrustedIPHeader, logger), logger)

		go func() {
			<-ctx.Done()
			logger.Info("shutting down edge server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("edge server shutdown", zap.Error(err))
			}
		}()

		logger.Info("starting blogedge",
			zap.String("version", Version),
			zap.String("site", cfg.Site.Name),
			zap.String("assets", assetsSource(cfg)),
			zap.String("rate_limit_backend", cfg.RateLimit.Backend),
			zap.String("mail_transport", cfg.Mail.Transport),
		)
		return srv.Start()
	},
}

func assetsSource(cfg *config.Config) string {
	if cfg.Site.AssetsURL != "" {
		return cfg.Site.AssetsURL
	}
	return cfg.Site.AssetsDir
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8787, "Port to listen on (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}
