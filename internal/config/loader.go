package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the namespace for all recognized environment variables.
const envPrefix = "ORACLE_"

// Load builds a Config from the optional YAML file at configPath (or
// $ORACLE_CONFIG when empty) overridden by ORACLE_* environment variables.
//
// Environment mapping: ORACLE_PORT -> port, ORACLE_DATA_DIR -> data_dir,
// ORACLE_DB_PATH -> db_path, ORACLE_REPO_ROOT -> repo_root,
// ORACLE_LOG_LEVEL -> log.level, ORACLE_LOG_FORMAT -> log.format,
// ORACLE_VECTOR_PROVIDER -> vector.provider, and so on.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		configPath = os.Getenv(envPrefix + "CONFIG")
	}
	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// transformEnvKey maps ORACLE_* variables to koanf paths. Known compound
// prefixes (LOG_, VECTOR_) become nested keys; everything else stays flat so
// ORACLE_DATA_DIR maps to data_dir, not data.dir.
func transformEnvKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	switch {
	case s == "config":
		return "" // handled before koanf
	case strings.HasPrefix(s, "log_"):
		return "log." + strings.TrimPrefix(s, "log_")
	case strings.HasPrefix(s, "vector_"):
		return "vector." + strings.TrimPrefix(s, "vector_")
	default:
		return s
	}
}
