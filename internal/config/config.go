// Package config holds pagemate's service-level configuration. This is
// distinct from the user settings record (internal/settings): config
// controls how the service runs, settings control what the sidebar does.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/hbruyere/pagemate/internal/logging"
)

// Config represents the merged pagemate service configuration.
type Config struct {
	Listen   string        `toml:"listen"`
	StateDir string        `toml:"state_dir"`
	LogLevel string        `toml:"log_level"`
	Extract  ExtractConfig `toml:"extract"`
}

// ExtractConfig tunes the page context extractor.
type ExtractConfig struct {
	SettleDelay    duration `toml:"settle_delay"`
	PreviewLength  int      `toml:"preview_length"`
	MinArticleText int      `toml:"min_article_text"`
}

// duration wraps time.Duration for TOML decoding ("800ms", "2s").
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// Delay returns the extractor settle delay as a time.Duration.
func (c ExtractConfig) Delay() time.Duration {
	return time.Duration(c.SettleDelay)
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Listen:   "127.0.0.1:3380",
		StateDir: filepath.Join(home, ".pagemate"),
		LogLevel: "info",
		Extract: ExtractConfig{
			SettleDelay:    duration(time.Second),
			PreviewLength:  1500,
			MinArticleText: 80,
		},
	}
}

// Load reads configuration from path (TOML) and merges it over the
// defaults. A missing file is not an error; the defaults apply. An
// empty path means the conventional location under the state dir.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.StateDir, "pagemate.toml")
	}

	var fileCfg Config
	if _, err := toml.DecodeFile(path, &fileCfg); err != nil {
		if os.IsNotExist(err) {
			logging.L_debug("config: no config file, using defaults", "path", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	// File values override defaults; zero fields keep the default.
	if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
		return cfg, fmt.Errorf("failed to merge config: %w", err)
	}

	logging.L_debug("config: loaded", "path", path, "listen", cfg.Listen)
	return cfg, nil
}
