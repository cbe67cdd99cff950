package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// chdir moves the test into dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return tmpDir
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PGHOST", "BASE_URL", "PORT", "ENVIRONMENT", "DB_DRIVER", "EXPORT_ARCHIVE_DRIVER", "ALLOWED_EMAIL_DOMAIN", "EXPORT_SENSITIVE_FIELDS", "COOKIE_SAMESITE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := writeConfig(t, `
port: "8000"
env: "test"
auth:
  allowed_email_domain: "yaml.example.com"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
`)
	chdir(t, tmpDir)
	clearEnv(t)

	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("PORT", "9443")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "9443" {
		t.Errorf("expected Port=9443 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" || !cfg.IsProduction() {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.BaseURL != "http://localhost:9443" {
		t.Errorf("expected BaseURL auto-derived from PORT, got %s", cfg.BaseURL)
	}
	if cfg.Database.User != "testuser" {
		t.Errorf("expected Database.User=testuser (from yaml), got %s", cfg.Database.User)
	}
	if cfg.Auth.AllowedEmailDomain != "yaml.example.com" {
		t.Errorf("expected AllowedEmailDomain from yaml, got %s", cfg.Auth.AllowedEmailDomain)
	}
}

func TestLoad_WithoutConfigFileUsesEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	clearEnv(t)
	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := Load("v1")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("expected sqlite driver, got %s", cfg.Database.Driver)
	}
	if cfg.Auth.CookieName != "fts_session" {
		t.Errorf("expected default cookie name fts_session, got %s", cfg.Auth.CookieName)
	}
	if cfg.Auth.SessionTTLSeconds != 3600 {
		t.Errorf("expected default session TTL 3600, got %d", cfg.Auth.SessionTTLSeconds)
	}
	if cfg.Auth.AllowedEmailDomain != "forensic-testing.co.uk" {
		t.Errorf("unexpected default domain %s", cfg.Auth.AllowedEmailDomain)
	}
	if !cfg.Auth.AdminDeleteRequiresSuperadmin {
		t.Error("expected strict admin deletion by default")
	}
	if cfg.Export.ArchiveEnabled() {
		t.Error("expected export archiving disabled by default")
	}
	if len(cfg.Export.SensitiveFields) != 9 {
		t.Errorf("expected 9 default sensitive fields, got %v", cfg.Export.SensitiveFields)
	}
}

func TestLoad_SensitiveFieldsFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	clearEnv(t)
	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("EXPORT_SENSITIVE_FIELDS", "client_signature_png,notes")

	cfg, err := Load("v1")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if strings.Join(cfg.Export.SensitiveFields, ",") != "client_signature_png,notes" {
		t.Errorf("unexpected sensitive fields %v", cfg.Export.SensitiveFields)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		errMsg string
	}{
		{
			name:   "missing session secret",
			env:    map[string]string{"SESSION_SECRET": ""},
			errMsg: "SESSION_SECRET",
		},
		{
			name:   "unknown database driver",
			env:    map[string]string{"DB_DRIVER": "mysql"},
			errMsg: "unsupported database driver",
		},
		{
			name:   "unknown archive driver",
			env:    map[string]string{"EXPORT_ARCHIVE_DRIVER": "ftp"},
			errMsg: "unsupported export archive driver",
		},
		{
			name:   "s3 archive without bucket",
			env:    map[string]string{"EXPORT_ARCHIVE_DRIVER": "s3"},
			errMsg: "s3_bucket",
		},
		{
			name:   "bad samesite",
			env:    map[string]string{"COOKIE_SAMESITE": "sometimes"},
			errMsg: "cookie_samesite",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			clearEnv(t)
			t.Setenv("SESSION_SECRET", "test-secret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("v1")
			if err == nil {
				t.Fatalf("expected error containing %q", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestLoad_MalformedConfigFile(t *testing.T) {
	tmpDir := writeConfig(t, "port: [unterminated\n")
	chdir(t, tmpDir)
	t.Setenv("SESSION_SECRET", "test-secret")

	if _, err := Load("v1"); err == nil {
		t.Error("expected error for malformed config.yaml")
	}
}

func TestDatabaseConfig_URL(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "fts", Password: "p@ss word", Database: "intake", SSLMode: "require"}

	got := c.URL()
	if got != "postgres://fts:p%40ss%20word@db:5433/intake?sslmode=require" {
		t.Errorf("unexpected URL %s", got)
	}
	if !strings.Contains(c.ConnectionString(), "dbname=intake") {
		t.Errorf("unexpected connection string %s", c.ConnectionString())
	}
}
