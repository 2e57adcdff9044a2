package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("** docdbctl %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestKVCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "docdb.yaml")
	db := filepath.Join(dir, "test.db")
	err := os.WriteFile(cfg, []byte("path: "+db+"\nbackend: bolt\ncompression: zstd\n"), 0666)
	if err != nil {
		t.Fatal(err)
	}

	run(t, "--config", cfg, "kv", "set", "hits", "250", "--type", "u8")
	if out := run(t, "--config", cfg, "kv", "incr", "hits", "10", "--type", "u8"); out != "u8(255)\n" {
		t.Errorf("** incr printed %q", out)
	}
	if out := run(t, "--config", cfg, "kv", "incr", "hits", "10", "--type", "u8", "--overflow"); out != "u8(9)\n" {
		t.Errorf("** overflowing incr printed %q", out)
	}
	if out := run(t, "--config", cfg, "kv", "get", "hits"); out != "u8(9)\n" {
		t.Errorf("** get printed %q", out)
	}
	if out := run(t, "--config", cfg, "stats"); !strings.Contains(out, "keys = 1") {
		t.Errorf("** stats printed %q", out)
	}
	run(t, "--config", cfg, "kv", "del", "hits")
	if out := run(t, "--config", cfg, "kv", "get", "hits"); out != "(none)\n" {
		t.Errorf("** get after del printed %q", out)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil || cfg.Backend != "bolt" {
		t.Fatalf("** default config = %+v, %v", cfg, err)
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("compression: brotli\n"), 0666)
	if _, err := loadConfig(path); err == nil {
		t.Errorf("** loaded a config with an unknown compression")
	}
}
