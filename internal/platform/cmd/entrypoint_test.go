package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
)

type testConfig struct {
	Addr     string `env:"DEEPSPIRE_TEST_ADDR" envDefault:":8080"`
	SaveRoot string `env:"DEEPSPIRE_TEST_SAVE_ROOT" envDefault:"saves"`
}

func TestParseConfigEnvThenFlagOverride(t *testing.T) {
	t.Setenv("DEEPSPIRE_TEST_ADDR", "env:9000")
	t.Setenv("DEEPSPIRE_TEST_SAVE_ROOT", "env-saves")

	var cfg testConfig
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "addr")
	fs.StringVar(&cfg.SaveRoot, "save-root", cfg.SaveRoot, "save root")

	if err := ParseArgs(fs, []string{"-addr", "flag:9001"}); err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if cfg.Addr != "flag:9001" {
		t.Fatalf("Addr = %q, want flag:9001", cfg.Addr)
	}
	if cfg.SaveRoot != "env-saves" {
		t.Fatalf("SaveRoot = %q, want env-saves", cfg.SaveRoot)
	}
}

func TestParseConfigFromArgs(t *testing.T) {
	t.Setenv("DEEPSPIRE_TEST_ADDR", "env:9000")

	var cfg testConfig
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", "", "addr")
	if err := ParseConfigFromArgs(&cfg, fs, []string{"-addr", "flag:9002"}); err != nil {
		t.Fatalf("ParseConfigFromArgs() error = %v", err)
	}
	if cfg.Addr != "flag:9002" {
		t.Fatalf("Addr = %q, want flag:9002", cfg.Addr)
	}
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	if err := ParseArgs(nil, nil); err == nil {
		t.Fatalf("ParseArgs(nil) error = nil, want error")
	}
}

func TestRunWithTelemetryValidatesInputs(t *testing.T) {
	if err := RunWithTelemetry(context.Background(), "", func(context.Context) error { return nil }); err == nil {
		t.Fatalf("empty service name accepted")
	}
	if err := RunWithTelemetry(context.Background(), ServiceServer, nil); err == nil {
		t.Fatalf("nil run function accepted")
	}
}

func TestRunWithTelemetryPropagatesRunError(t *testing.T) {
	want := errors.New("boom")
	err := RunWithTelemetry(context.Background(), ServiceServer, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("RunWithTelemetry() error = %v, want %v", err, want)
	}
}
