package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix marks environment overrides. A double underscore separates
// nesting levels: BLOGEDGE_SERVER__PORT -> server.port.
const EnvPrefix = "BLOGEDGE_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (BLOGEDGE_*), and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// listKeys are the settings whose env values are comma-separated lists.
var listKeys = map[string]bool{
	"server.allowed_origins": true,
	"worker.precache":        true,
	"worker.precache_globs":  true,
}

func envValue(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		return key, splitAndTrim(value)
	}
	return key, value
}

// splitAndTrim splits a comma-separated string, dropping empty items.
func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshalling config: %w", err)
	}
	return data, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// DBPath is the SQLite file under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "blogedge.db")
}

var validTLS = map[string]bool{"opportunistic": true, "mandatory": true, "ssl": true, "none": true}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Site.Name != "", "site.name is required")
	check(c.Site.Version != "", "site.version is required")
	check(c.Site.AssetsDir != "" || c.Site.AssetsURL != "", "one of site.assets_dir or site.assets_url is required")
	if c.Site.AssetsURL != "" {
		check(isHTTPURL(c.Site.AssetsURL), "site.assets_url %q must be an absolute http(s) URL", c.Site.AssetsURL)
	}
	check(strings.HasPrefix(c.Site.WorkerScript, "/"), "site.worker_script must start with /")
	check(strings.HasPrefix(c.Site.NotFoundPage, "/"), "site.not_found_page must start with /")

	check(validPort(c.Server.Port), "server.port %d out of range", c.Server.Port)
	check(c.Server.RequestTimeout >= 0, "server.request_timeout must be non-negative")
	check(c.Server.ShutdownTimeout >= 0, "server.shutdown_timeout must be non-negative")

	check(validPort(c.Worker.Port), "worker.port %d out of range", c.Worker.Port)
	check(isHTTPURL(c.Worker.Origin), "worker.origin %q must be an absolute http(s) URL", c.Worker.Origin)
	check(validBackend(c.Worker.Storage), "invalid worker.storage %q: must be memory or sqlite", c.Worker.Storage)
	for _, p := range c.Worker.Precache {
		check(strings.HasPrefix(p, "/"), "worker.precache entry %q must start with /", p)
	}
	check(c.Worker.NetworkTimeout >= 0, "worker.network_timeout must be non-negative")
	check(c.Worker.MaxAge.Static >= 0 && c.Worker.MaxAge.Runtime >= 0 &&
		c.Worker.MaxAge.Images >= 0 && c.Worker.MaxAge.Fonts >= 0, "worker.max_age values must be non-negative")

	check(validBackend(c.RateLimit.Backend), "invalid rate_limit.backend %q: must be memory or sqlite", c.RateLimit.Backend)
	check(c.RateLimit.Limit > 0, "rate_limit.limit must be positive")
	check(c.RateLimit.Window > 0, "rate_limit.window must be positive")
	check(c.RateLimit.SweepInterval >= 0, "rate_limit.sweep_interval must be non-negative")

	switch c.Mail.Transport {
	case TransportLog:
	case TransportSMTP:
		check(c.Mail.SMTP.Host != "", "mail.smtp.host is required for the smtp transport")
		check(validTLS[c.Mail.SMTP.TLS], "invalid mail.smtp.tls %q: must be one of opportunistic, mandatory, ssl, none", c.Mail.SMTP.TLS)
	default:
		errs = append(errs, fmt.Errorf("invalid mail.transport %q: must be log or smtp", c.Mail.Transport))
	}
	check(c.Mail.From != "", "mail.from is required")
	check(c.Mail.To != "", "mail.to is required")

	if c.Worker.Storage == BackendSQLite || c.RateLimit.Backend == BackendSQLite {
		check(c.DataDir != "", "data_dir is required for sqlite backends")
	}

	return errors.Join(errs...)
}

func validPort(p int) bool { return p >= 0 && p <= 65535 }

func validBackend(b string) bool { return b == BackendMemory || b == BackendSQLite }

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
