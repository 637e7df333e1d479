package cmd

import (
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"

	"go.uber.org/zap"

	"github.com/lloyd-blog/edge/internal/assets"
	"github.com/lloyd-blog/edge/internal/cachestore"
	"github.com/lloyd-blog/edge/internal/config"
	"github.com/lloyd-blog/edge/internal/db"
	"github.com/lloyd-blog/edge/internal/logging"
	"github.com/lloyd-blog/edge/internal/mail"
	"github.com/lloyd-blog/edge/internal/ratelimit"
	"github.com/lloyd-blog/edge/internal/worker"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `blogedge config init` to create a config file", err)
	}
	return cfg, nil
}

// newLogger builds the process logger; --verbose forces debug level.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lc := cfg.Log
	if verbose {
		lc.Level = "debug"
	}
	return logging.New(lc)
}

// openDB opens the SQLite database under the data directory.
func openDB(cfg *config.Config) (*db.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	database, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return database, nil
}

// assetsFS returns the built site directory, or nil when it is not present.
func assetsFS(cfg *config.Config) fs.FS {
	if cfg.Site.AssetsDir == "" {
		return nil
	}
	if info, err := os.Stat(cfg.Site.AssetsDir); err != nil || !info.IsDir() {
		return nil
	}
	return os.DirFS(cfg.Site.AssetsDir)
}

// newOrigin picks the asset origin: an upstream host when assets_url is set,
// else the local directory.
func newOrigin(cfg *config.Config) (assets.Origin, error) {
	if cfg.Site.AssetsURL != "" {
		base, err := url.Parse(cfg.Site.AssetsURL)
		if err != nil {
			return nil, fmt.Errorf("parsing site.assets_url: %w", err)
		}
		return assets.NewUpstream(base, nil), nil
	}
	fsys := assetsFS(cfg)
	if fsys == nil {
		return nil, fmt.Errorf("assets directory %s not found", cfg.Site.AssetsDir)
	}
	return assets.NewDir(fsys), nil
}

// newLimiter builds the contact rate limiter for the configured backend.
func newLimiter(cfg *config.Config, database *db.DB) ratelimit.Limiter {
	if cfg.RateLimit.Backend == config.BackendSQLite {
		return ratelimit.NewSQL(database, cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}
	return ratelimit.NewMemory(cfg.RateLimit.Limit, cfg.RateLimit.Window)
}

// newSender builds the mail transport.
func newSender(cfg *config.Config, logger *zap.Logger) (mail.Sender, error) {
	if cfg.Mail.Transport != config.TransportSMTP {
		return mail.NewLogSender(logger), nil
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Mail.SMTP.Host,
		Port:     cfg.Mail.SMTP.Port,
		Username: cfg.Mail.SMTP.Username,
		Password: cfg.Mail.SMTP.Password,
		TLS:      cfg.Mail.SMTP.TLS,
		Timeout:  cfg.Mail.SMTP.Timeout,
	})
}

// newCacheStorage builds the worker cache storage for the configured backend.
func newCacheStorage(cfg *config.Config, database *db.DB) cachestore.Storage {
	if cfg.Worker.Storage == config.BackendSQLite {
		return cachestore.NewSQL(database)
	}
	return cachestore.NewMemory()
}

// newWorker builds the offline cache over storage. The precache manifest is
// the configured list plus glob matches in the local assets directory.
// onPrecache may be nil.
func newWorker(cfg *config.Config, storage cachestore.Storage, logger *zap.Logger, onPrecache func(worker.PrecacheResult)) (*worker.Worker, error) {
	origin, err := url.Parse(cfg.Worker.Origin)
	if err != nil {
		return nil, fmt.Errorf("parsing worker.origin: %w", err)
	}

	precache, err := assets.Manifest(assetsFS(cfg), cfg.Worker.Precache, cfg.Worker.PrecacheGlobs)
	if err != nil {
		return nil, fmt.Errorf("building precache manifest: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Worker.NetworkTimeout

	return worker.New(storage, transport, logger, worker.Options{
		Origin:     origin,
		Generation: worker.NewGeneration(cfg.Site.Name, cfg.Site.Version),
		Precache:   precache,
		MaxAge: worker.MaxAges{
			Static:  cfg.Worker.MaxAge.Static,
			Runtime: cfg.Worker.MaxAge.Runtime,
			Images:  cfg.Worker.MaxAge.Images,
			Fonts:   cfg.Worker.MaxAge.Fonts,
		},
		OnPrecache: onPrecache,
	}), nil
}
