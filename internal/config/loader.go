package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "DESIGND_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// nestedSections lists section.subsection pairs whose keys contain an
// extra level. Environment names are flat, so the transformer needs to
// know where to put the second dot.
var nestedSections = map[string][]string{
	"vectorstore": {"chromem", "qdrant"},
	"session":     {"redis"},
	"logging":     {"file"},
}

// Load reads configuration from the YAML file at path, then applies
// DESIGND_* environment overrides, defaults and validation.
//
// Precedence (highest to lowest):
//  1. Environment variables (DESIGND_SERVER_PORT, DESIGND_LLM_API_KEY, ...)
//  2. YAML config file
//  3. Built-in defaults
//
// A missing file is not an error; an empty path skips the file entirely.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if content != nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// readConfigFile returns nil content when the file does not exist.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	// API keys may live in the file, so refuse anything group/world readable.
	if info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("config file %s has insecure permissions %04o (want 0600)", path, info.Mode().Perm())
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// envKey maps an environment variable name to a koanf key:
//
//	DESIGND_SERVER_PORT                 -> server.port
//	DESIGND_LLM_API_KEY                 -> llm.api_key
//	DESIGND_VECTORSTORE_QDRANT_API_KEY  -> vectorstore.qdrant.api_key
//	DESIGND_SESSION_REDIS_ADDR          -> session.redis.addr
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	for _, sub := range nestedSections[section] {
		if field, found := strings.CutPrefix(rest, sub+"_"); found {
			return section + "." + sub + "." + field
		}
	}
	return section + "." + rest
}
