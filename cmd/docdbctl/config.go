package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/andreyvit/docdb"
	"github.com/andreyvit/docdb/localdb"
	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML file passed with --config. Flags override it.
type Config struct {
	Path                 string              `yaml:"path"`
	Backend              string              `yaml:"backend"`
	Compression          localdb.Compression `yaml:"compression"`
	CompressionThreshold int                 `yaml:"compression_threshold"`
	MmapSize             int                 `yaml:"mmap_size"`
	Verbose              bool                `yaml:"verbose"`
}

func loadConfig(path string) (*Config, error) {
	cfg := &Config{Backend: "bolt"}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) open() (*localdb.DB, error) {
	if cfg.Path == "" && cfg.Backend != "memory" {
		return nil, fmt.Errorf("database path required (--db)")
	}
	opt := localdb.Options{
		Verbose:              cfg.Verbose,
		MmapSize:             cfg.MmapSize,
		Compression:          cfg.Compression,
		CompressionThreshold: cfg.CompressionThreshold,
		Logger:               slog.Default(),
	}
	if cfg.Verbose {
		opt.Logf = func(format string, args ...any) {
			slog.Debug(fmt.Sprintf(format, args...))
		}
	}

	// Collections are defined by the applications embedding docdb; this
	// tool only touches the key-value space and generic metadata.
	schema := docdb.NewSchema()

	switch cfg.Backend {
	case "bolt", "":
		return localdb.Open(cfg.Path, schema, opt)
	case "badger":
		return localdb.OpenBadger(cfg.Path, schema, opt)
	case "memory":
		return localdb.OpenMemory(schema, opt)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
