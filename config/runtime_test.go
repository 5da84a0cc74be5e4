package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRuntimeMatchesFixedDivergenceCap(t *testing.T) {
	rt := DefaultRuntime()
	if rt.MaxRounds != 300 {
		t.Fatalf("expected MaxRounds=300, got %d", rt.MaxRounds)
	}
	if rt.LogLevel != "info" || rt.LogFormat != "text" {
		t.Fatalf("expected info/text defaults, got %q/%q", rt.LogLevel, rt.LogFormat)
	}
}

func TestLoadRuntimeWithNoFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	defer os.Chdir(wd)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	rt, err := LoadRuntime("")
	if err != nil {
		t.Fatalf("expected no error when no config file is present, got %v", err)
	}
	if rt.MaxRounds != 300 {
		t.Fatalf("expected defaults to survive an absent config, got %+v", rt)
	}
}

func TestLoadRuntimeMissingExplicitFileErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist.yaml")
	if _, err := LoadRuntime(missing); err == nil {
		t.Fatal("expected an explicit, missing config path to return an error")
	}
}

func TestLoadRuntimeReadsExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eve.yaml")
	content := "max_rounds: 50\nlog_level: debug\nredis_addr: localhost:6390\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	rt, err := LoadRuntime(path)
	if err != nil {
		t.Fatalf("load runtime: %v", err)
	}
	if rt.MaxRounds != 50 {
		t.Fatalf("expected max_rounds=50 from file, got %d", rt.MaxRounds)
	}
	if rt.LogLevel != "debug" {
		t.Fatalf("expected log_level=debug from file, got %q", rt.LogLevel)
	}
	if rt.RedisAddr != "localhost:6390" {
		t.Fatalf("expected redis_addr from file, got %q", rt.RedisAddr)
	}
}

func TestLoadRuntimeEnvOverride(t *testing.T) {
	t.Setenv("EVE_LOG_LEVEL", "warn")
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	defer os.Chdir(wd)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	rt, err := LoadRuntime("")
	if err != nil {
		t.Fatalf("load runtime: %v", err)
	}
	if rt.LogLevel != "warn" {
		t.Fatalf("expected EVE_LOG_LEVEL to override default, got %q", rt.LogLevel)
	}
}
