package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Addr    string        `env:"DEEPSPIRE_TEST_ADDR" envDefault:":8080"`
	Timeout time.Duration `env:"DEEPSPIRE_TEST_TIMEOUT" envDefault:"30s"`
	Debug   bool          `env:"DEEPSPIRE_TEST_DEBUG"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %s", cfg.Addr)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("expected default timeout 30s, got %v", cfg.Timeout)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("DEEPSPIRE_TEST_ADDR", ":9090")
	t.Setenv("DEEPSPIRE_TEST_DEBUG", "true")

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("expected addr :9090, got %s", cfg.Addr)
	}
	if !cfg.Debug {
		t.Fatal("expected debug true")
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("DEEPSPIRE_TEST_TIMEOUT", "not-a-duration")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadDotenvMissingFile(t *testing.T) {
	if err := LoadDotenv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}

func TestLoadDotenvReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DEEPSPIRE_TEST_DOTENV=loaded\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("DEEPSPIRE_TEST_DOTENV", "")
	os.Unsetenv("DEEPSPIRE_TEST_DOTENV")

	if err := LoadDotenv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("DEEPSPIRE_TEST_DOTENV"); got != "loaded" {
		t.Fatalf("expected DEEPSPIRE_TEST_DOTENV=loaded, got %q", got)
	}
}
