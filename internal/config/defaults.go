package config

import "time"

// DefaultPrecache is the manifest fetched when the worker installs.
var DefaultPrecache = []string{
	"/",
	"/offline.html",
	"/assets/css/style.css",
	"/assets/css/mobile.css",
	"/assets/css/typography.css",
	"/assets/js/animations.js",
	"/assets/js/mobile-nav.js",
	"/assets/js/lazy-load.js",
	"/assets/js/web-share.js",
	"/assets/fonts/inter-var.woff2",
	"/manifest.json",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			Name:         "lloyd-blog",
			Title:        "Lloyd's Blog",
			Version:      "2.0",
			AssetsDir:    "_site",
			WorkerScript: "/js/service-worker.js",
			NotFoundPage: "/404.html",
		},
		Server: ServerConfig{
			Port:              8787,
			AllowedOrigins:    []string{"http://localhost:*", "http://127.0.0.1:*"},
			RequestTimeout:    60 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Worker: WorkerConfig{
			Port:     8788,
			Origin:   "http://localhost:8787",
			Storage:  BackendSQLite,
			Precache: append([]string(nil), DefaultPrecache...),
			MaxAge: MaxAgeConfig{
				Static:  7 * 24 * time.Hour,
				Runtime: 24 * time.Hour,
				Images:  30 * 24 * time.Hour,
			},
		},
		RateLimit: RateLimitConfig{
			Backend:       BackendMemory,
			Limit:         5,
			Window:        60 * time.Minute,
			SweepInterval: 10 * time.Minute,
		},
		Mail: MailConfig{
			Transport: TransportLog,
			From:      "noreply@localhost",
			FromName:  "Blog Contact Form",
			To:        "owner@localhost",
			SMTP: SMTPConfig{
				Port:    587,
				TLS:     "mandatory",
				Timeout: 15 * time.Second,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		DataDir: ".blogedge",
	}
}
