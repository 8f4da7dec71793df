// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the gateway configuration from an optional YAML file
// with environment-variable overrides. Environment wins; the file sets the
// deployed baseline; compiled defaults cover the rest.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	// Port the HTTP server listens on.
	Port string `yaml:"port"`

	// DataDir is the store's data directory.
	DataDir string `yaml:"dataDir"`

	// OTELEndpoint is the OTLP gRPC collector address. Empty disables
	// trace export.
	OTELEndpoint string `yaml:"otelEndpoint"`

	// RateLimitRPS throttles tracking ingestion per client IP.
	RateLimitRPS   float64 `yaml:"rateLimitRps"`
	RateLimitBurst int     `yaml:"rateLimitBurst"`
}

// Default returns the compiled-in baseline.
func Default() Config {
	return Config{
		Port:           "12400",
		DataDir:        "/var/lib/cinelog",
		RateLimitRPS:   25,
		RateLimitBurst: 50,
	}
}

// Load reads path (when non-empty and present) over Default, then applies
// CINELOG_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Missing file is fine, env and defaults carry it.
		case err != nil:
			return cfg, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv("CINELOG_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("CINELOG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CINELOG_OTEL_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("CINELOG_RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid CINELOG_RATE_LIMIT_RPS %q: %w", v, err)
		}
		cfg.RateLimitRPS = rps
	}
	if v := os.Getenv("CINELOG_RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid CINELOG_RATE_LIMIT_BURST %q: %w", v, err)
		}
		cfg.RateLimitBurst = burst
	}
	return cfg, nil
}
