package config

import "time"

// Storage backends for the worker cache and the rate limiter.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Mail transports.
const (
	TransportLog  = "log"
	TransportSMTP = "smtp"
)

// Config is the top-level blogedge configuration, corresponding to blogedge.yml.
type Config struct {
	Site      SiteConfig      `yaml:"site" koanf:"site"`
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	Worker    WorkerConfig    `yaml:"worker" koanf:"worker"`
	RateLimit RateLimitConfig `yaml:"rate_limit" koanf:"rate_limit"`
	Mail      MailConfig      `yaml:"mail" koanf:"mail"`
	Log       LogConfig       `yaml:"log" koanf:"log"`
	DataDir   string          `yaml:"data_dir" koanf:"data_dir"`
}

// SiteConfig describes the static site being served.
type SiteConfig struct {
	Name    string `yaml:"name" koanf:"name"`
	Title   string `yaml:"title" koanf:"title"`
	Version string `yaml:"version" koanf:"version"`
	// AssetsDir is the built site directory. AssetsURL, when set, takes
	// precedence and assets are fetched from that host instead.
	AssetsDir    string `yaml:"assets_dir" koanf:"assets_dir"`
	AssetsURL    string `yaml:"assets_url" koanf:"assets_url"`
	WorkerScript string `yaml:"worker_script" koanf:"worker_script"`
	NotFoundPage string `yaml:"not_found_page" koanf:"not_found_page"`
}

// ServerConfig holds edge server settings.
type ServerConfig struct {
	Host              string        `yaml:"host" koanf:"host"`
	Port              int           `yaml:"port" koanf:"port"`
	AllowedOrigins    []string      `yaml:"allowed_origins" koanf:"allowed_origins"`
	// TrustedIPHeader names the client-address header set by a fronting
	// proxy, such as CF-Connecting-IP. Empty trusts no forwarding header.
	TrustedIPHeader   string        `yaml:"trusted_ip_header" koanf:"trusted_ip_header"`
	RequestTimeout    time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" koanf:"shutdown_timeout"`
}

// WorkerConfig holds offline cache proxy settings.
type WorkerConfig struct {
	Host           string        `yaml:"host" koanf:"host"`
	Port           int           `yaml:"port" koanf:"port"`
	Origin         string        `yaml:"origin" koanf:"origin"`
	Storage        string        `yaml:"storage" koanf:"storage"`
	Precache       []string      `yaml:"precache" koanf:"precache"`
	PrecacheGlobs  []string      `yaml:"precache_globs" koanf:"precache_globs"`
	NetworkTimeout time.Duration `yaml:"network_timeout" koanf:"network_timeout"`
	MaxAge         MaxAgeConfig  `yaml:"max_age" koanf:"max_age"`
}

// MaxAgeConfig sets per-store expiry. Zero means entries never expire.
type MaxAgeConfig struct {
	Static  time.Duration `yaml:"static" koanf:"static"`
	Runtime time.Duration `yaml:"runtime" koanf:"runtime"`
	Images  time.Duration `yaml:"images" koanf:"images"`
	Fonts   time.Duration `yaml:"fonts" koanf:"fonts"`
}

// RateLimitConfig controls contact form throttling.
type RateLimitConfig struct {
	Backend       string        `yaml:"backend" koanf:"backend"`
	Limit         int           `yaml:"limit" koanf:"limit"`
	Window        time.Duration `yaml:"window" koanf:"window"`
	SweepInterval time.Duration `yaml:"sweep_interval" koanf:"sweep_interval"`
}

// MailConfig controls contact email delivery.
type MailConfig struct {
	Transport string     `yaml:"transport" koanf:"transport"`
	From      string     `yaml:"from" koanf:"from"`
	FromName  string     `yaml:"from_name" koanf:"from_name"`
	To        string     `yaml:"to" koanf:"to"`
	SMTP      SMTPConfig `yaml:"smtp" koanf:"smtp"`
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string        `yaml:"host" koanf:"host"`
	Port     int           `yaml:"port" koanf:"port"`
	Username string        `yaml:"username" koanf:"username"`
	Password string        `yaml:"password" koanf:"password"`
	TLS      string        `yaml:"tls" koanf:"tls"`
	Timeout  time.Duration `yaml:"timeout" koanf:"timeout"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}
