package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
jwt:
  secret: test-secret
database:
  driver: sqlite
  path: /tmp/x.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.JWT.Secret != "test-secret" {
		t.Errorf("secret = %q", cfg.JWT.Secret)
	}
	if cfg.Security.MaxLoginAttempts != 5 {
		t.Errorf("max_login_attempts default = %d, want 5", cfg.Security.MaxLoginAttempts)
	}
	if cfg.App.PageSize != 20 {
		t.Errorf("page_size default = %d, want 20", cfg.App.PageSize)
	}
	if cfg.JWT.TokenTTL() != 24*time.Hour {
		t.Errorf("token ttl = %v", cfg.JWT.TokenTTL())
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret: from-file
`)
	t.Setenv("HL_JWT_SECRET", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWT.Secret != "from-env" {
		t.Errorf("secret = %q, want from-env", cfg.JWT.Secret)
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8081
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load without jwt.secret error = nil, want error")
	}
}

func TestValidate_Driver(t *testing.T) {
	cfg := Config{
		Server:   ServerConfig{Port: 8080},
		JWT:      JWTConfig{Secret: "s"},
		Database: DatabaseConfig{Driver: "mysql"},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown driver should fail validation")
	}

	cfg.Database = DatabaseConfig{Driver: "postgres"}
	if err := cfg.Validate(); err == nil {
		t.Error("postgres without dsn should fail validation")
	}

	cfg.Database.DSN = "host=localhost dbname=ledger"
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid postgres config: %v", err)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	// no config.yaml in the working directory
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HL_JWT_SECRET", "env-secret")
	t.Setenv("HL_DATABASE_DRIVER", "postgres")
	t.Setenv("HL_DATABASE_DSN", "host=db user=ledger dbname=ledger sslmode=disable")
	t.Setenv("HL_DATABASE_LOG_MODE", "true")
	t.Setenv("HL_LOG_FILE", "/var/log/ledger.log")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "host=db user=ledger dbname=ledger sslmode=disable" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if !cfg.Database.LogMode {
		t.Error("log_mode = false, want true from HL_DATABASE_LOG_MODE")
	}
	if cfg.Log.File != "/var/log/ledger.log" {
		t.Errorf("log file = %q", cfg.Log.File)
	}
	if cfg.JWT.Secret != "env-secret" {
		t.Errorf("secret = %q", cfg.JWT.Secret)
	}
}
