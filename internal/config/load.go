// UGC Pipeline - User-Generated Content ingestion and fan-out for Practix
// Copyright 2026 Practix Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/practix/ugc-pipeline

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the optional config file is searched,
// in order. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/ugc-pipeline/config.yaml",
	"/etc/ugc-pipeline/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces the structured environment overrides:
// UGC_BUS__NATS__URL -> bus.nats.url (double underscore separates levels,
// single underscores stay inside a key).
const envPrefix = "UGC_"

// envAliases maps the bare, service-agnostic variable names recognised
// across the platform onto koanf paths.
var envAliases = map[string]string{
	"NATS_URL":            "bus.nats.url",
	"AMQP_URL":            "bus.amqp.url",
	"BUS_BACKEND":         "bus.backend",
	"BUS_TOPICS":          "bus.topics",
	"DOCSTORE_PATH":       "docstore.path",
	"OLAP_PATH":           "olap.path",
	"JWT_PUBLIC_KEY_PATH": "security.jwt_public_key_path",
	"JWT_AUDIENCE":        "security.jwt_audience",
	"ETL_BATCH_SIZE":      "etl.batch_size",
	"ETL_MIN_BATCH":       "etl.min_batch_before_load",
	"ETL_BACKOFF_INITIAL": "etl.backoff_initial",
	"ETL_BACKOFF_MAX":     "etl.backoff_max",
	"ETL_SPILL_PATH":      "etl.spill_path",
}

// sliceConfigPaths lists paths parsed as comma-separated slices when they
// arrive as strings from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"bus.topics",
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	for name, path := range envAliases {
		if v, ok := os.LookupEnv(name); ok {
			if err := k.Set(path, v); err != nil {
				return nil, fmt.Errorf("apply %s: %w", name, err)
			}
		}
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envTransform maps UGC_BUS__NATS__URL to bus.nats.url.
func envTransform(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// processSliceFields splits comma-separated env strings into slices for the
// known slice paths. YAML-sourced values are already slices and are skipped.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		s, ok := val.(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("split %s: %w", path, err)
		}
	}
	return nil
}
