// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Fit   FitConfig   `toml:"fit"`
	Store StoreConfig `toml:"store"`
	Plot  PlotConfig  `toml:"plot"`
	Log   LogConfig   `toml:"log"`
}

// FitConfig maps fitting settings.
type FitConfig struct {
	Model          *string `toml:"model"`
	MaxEvaluations *int    `toml:"max-evaluations"`
	Scope          *string `toml:"scope"`
}

// StoreConfig maps project store settings.
type StoreConfig struct {
	Path        *string `toml:"path"`
	Compression *string `toml:"compression"`
}

// PlotConfig maps terminal and image plot settings.
type PlotConfig struct {
	Width       *int `toml:"width"`
	Height      *int `toml:"height"`
	ImageWidth  *int `toml:"image-width"`
	ImageHeight *int `toml:"image-height"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level *string `toml:"level"`
	File  *string `toml:"file"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
