package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigPath is the YAML file read by Load when present.
const DefaultConfigPath = "config.yaml"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Export archive drivers.
const (
	ArchiveNone   = "none"
	ArchiveFS     = "fs"
	ArchiveMemory = "memory"
	ArchiveS3     = "s3"
)

// Config holds all configuration for fts-intake.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Export   ExportConfig   `yaml:"export"`
}

// AuthConfig holds session and account policy configuration.
type AuthConfig struct {
	// SessionSecret signs session tokens. Server will fail to start if this is not set.
	SessionSecret     string `yaml:"-" env:"SESSION_SECRET"` // Secret - not in YAML
	CookieName        string `yaml:"cookie_name" env:"SESSION_COOKIE_NAME" env-default:"fts_session"`
	CookieDomain      string `yaml:"cookie_domain" env:"COOKIE_DOMAIN" env-default:""`
	CookieSameSite    string `yaml:"cookie_samesite" env:"COOKIE_SAMESITE" env-default:"lax"`
	SessionTTLSeconds int    `yaml:"session_ttl_seconds" env:"ACCESS_TOKEN_EXPIRE_SECONDS" env-default:"3600"`

	// AllowedEmailDomain restricts which addresses accounts may be created for.
	AllowedEmailDomain string `yaml:"allowed_email_domain" env:"ALLOWED_EMAIL_DOMAIN" env-default:"forensic-testing.co.uk"`

	// Superadmin seeded at startup when both are set and the account does not exist.
	SuperadminEmail    string `yaml:"superadmin_email" env:"SUPERADMIN_EMAIL" env-default:""`
	SuperadminPassword string `yaml:"-" env:"SUPERADMIN_PASSWORD"` // Secret - not in YAML

	// AdminDeleteRequiresSuperadmin restricts deleting admin accounts to superadmins.
	AdminDeleteRequiresSuperadmin bool `yaml:"admin_delete_requires_superadmin" env:"ADMIN_DELETE_REQUIRES_SUPERADMIN" env-default:"true"`

	// BcryptCost overrides bcrypt.DefaultCost when non-zero.
	BcryptCost int `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"0"`
}

// DatabaseConfig holds record store configuration.
type DatabaseConfig struct {
	Driver         string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"fts"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"fts_intake"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	SQLitePath     string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"data/fts-intake.db"`
}

// ExportConfig holds export redaction and archiving configuration.
type ExportConfig struct {
	// SensitiveFields are data keys removed from every export.
	SensitiveFields []string `yaml:"sensitive_fields" env:"EXPORT_SENSITIVE_FIELDS" env-separator:"," env-default:"client_signature_png,collector_signature_png,refusal_signature_png,client_print_name,client_signature_date,collector_print_name,collector_signature_date,refusal_print_name,refusal_signature_date"`

	// ArchiveDriver selects where a copy of each export is kept: none, fs, memory or s3.
	ArchiveDriver string `yaml:"archive_driver" env:"EXPORT_ARCHIVE_DRIVER" env-default:"none"`
	ArchiveDir    string `yaml:"archive_dir" env:"EXPORT_ARCHIVE_DIR" env-default:"data/exports"`
	// ArchiveKey encrypts archived exports at rest when set.
	ArchiveKey string `yaml:"-" env:"EXPORT_ARCHIVE_KEY"` // Secret - not in YAML

	S3Bucket       string `yaml:"s3_bucket" env:"EXPORT_S3_BUCKET" env-default:""`
	S3Region       string `yaml:"s3_region" env:"EXPORT_S3_REGION" env-default:""`
	S3Endpoint     string `yaml:"s3_endpoint" env:"EXPORT_S3_ENDPOINT" env-default:""`
	S3UsePathStyle bool   `yaml:"s3_use_path_style" env:"EXPORT_S3_USE_PATH_STYLE" env-default:"false"`
}

// Load reads configuration from config.yaml, if present, with environment
// variable overrides. Without a config file only the environment is used.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultConfigPath, version)
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)
	cfg.Export.S3Endpoint = ResolveURLForDocker(cfg.Export.S3Endpoint)

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET must be set")
	}
	if c.Auth.SessionTTLSeconds <= 0 {
		return fmt.Errorf("session_ttl_seconds must be positive")
	}
	if strings.TrimSpace(c.Auth.AllowedEmailDomain) == "" {
		return fmt.Errorf("allowed_email_domain must not be empty")
	}
	switch strings.ToLower(c.Auth.CookieSameSite) {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("cookie_samesite must be lax, strict or none, got %q", c.Auth.CookieSameSite)
	}

	switch c.Database.Driver {
	case DriverPostgres:
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Export.ArchiveDriver {
	case "", ArchiveNone, ArchiveMemory:
	case ArchiveFS:
		if c.Export.ArchiveDir == "" {
			return fmt.Errorf("archive_dir is required for the fs archive driver")
		}
	case ArchiveS3:
		if c.Export.S3Bucket == "" {
			return fmt.Errorf("s3_bucket is required for the s3 archive driver")
		}
	default:
		return fmt.Errorf("unsupported export archive driver %q", c.Export.ArchiveDriver)
	}
	return nil
}

// ArchiveEnabled reports whether exports are archived.
func (e *ExportConfig) ArchiveEnabled() bool {
	return e.ArchiveDriver != "" && e.ArchiveDriver != ArchiveNone
}

// IsProduction reports whether the server runs in a production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL form, as required by
// golang-migrate's database/sql driver.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}
