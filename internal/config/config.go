/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	applog "pagecomposer/internal/log"
	"pagecomposer/internal/storage"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are read-only overrides applied at load time.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type CanvasConfig struct {
	Width         float64 `yaml:"width" env:"PC_CANVAS_WIDTH"`
	Height        float64 `yaml:"height" env:"PC_CANVAS_HEIGHT"`
	BorderPadding float64 `yaml:"border_padding" env:"PC_BORDER_PADDING"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver" env:"PC_STORE_DRIVER"` // memory | file | sqlite | postgres
	Path        string `yaml:"path" env:"PC_STORE_PATH"`
	Key         string `yaml:"key" env:"PC_STORE_KEY"`
	HistoryKeep int    `yaml:"history_keep" env:"PC_STORE_HISTORY_KEEP"`
	// RecoverFromBackup restores the latest backup when the stored page is rejected.
	RecoverFromBackup bool `yaml:"recover_from_backup" env:"PC_STORE_RECOVER_FROM_BACKUP"`
	// DSN is not stored on disk; it lives in the OS keychain.
	DSN string `yaml:"-" env:"PC_STORE_DSN"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"PC_LOG_LEVEL"`
	Format string `yaml:"format" env:"PC_LOG_FORMAT"`
	Source bool   `yaml:"source" env:"PC_LOG_SOURCE"`
	File   string `yaml:"file" env:"PC_LOG_FILE"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" env:"PC_SERVER_ADDR"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Canvas        CanvasConfig  `yaml:"canvas"`
	Store         StoreConfig   `yaml:"store"`
	Logging       LoggingConfig `yaml:"logging"`
	Server        ServerConfig  `yaml:"server"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Canvas:        CanvasConfig{Width: 1024, Height: 768, BorderPadding: 4},
		Store:         StoreConfig{Driver: "file", Key: "canvas.entities", HistoryKeep: 20},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
		Server:        ServerConfig{Addr: "127.0.0.1:8080"},
	}
}

// Env var names used as overrides.
const (
	EnvCanvasWidth      = "PC_CANVAS_WIDTH"
	EnvCanvasHeight     = "PC_CANVAS_HEIGHT"
	EnvBorderPadding    = "PC_BORDER_PADDING"
	EnvStoreDriver      = "PC_STORE_DRIVER"
	EnvStorePath        = "PC_STORE_PATH"
	EnvStoreKey         = "PC_STORE_KEY"
	EnvStoreHistoryKeep = "PC_STORE_HISTORY_KEEP"
	EnvStoreDSN         = "PC_STORE_DSN"
	EnvStoreRecover     = "PC_STORE_RECOVER_FROM_BACKUP"
	EnvLogLevel         = "PC_LOG_LEVEL"
	EnvLogFormat        = "PC_LOG_FORMAT"
	EnvLogSource        = "PC_LOG_SOURCE"
	EnvLogFile          = "PC_LOG_FILE"
	EnvServerAddr       = "PC_SERVER_ADDR"
)

var overrideVars = map[string]string{
	"canvas.width":              EnvCanvasWidth,
	"canvas.height":             EnvCanvasHeight,
	"canvas.border_padding":     EnvBorderPadding,
	"store.driver":              EnvStoreDriver,
	"store.path":                EnvStorePath,
	"store.key":                 EnvStoreKey,
	"store.history_keep":        EnvStoreHistoryKeep,
	"store.dsn":                 EnvStoreDSN,
	"store.recover_from_backup": EnvStoreRecover,
	"logging.level":             EnvLogLevel,
	"logging.format":            EnvLogFormat,
	"logging.source":            EnvLogSource,
	"logging.file":              EnvLogFile,
	"server.addr":               EnvServerAddr,
}

// ConfigDir returns the per-user configuration folder.
func ConfigDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "PageComposer")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "PageComposer")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "pagecomposer")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, reads the
// store DSN from the keyring and merges environment overrides. It returns the
// effective config and the path it was read from.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, path, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	}
	if dsn, err := loadDSN(); err == nil {
		cfg.Store.DSN = dsn
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, path, fmt.Errorf("environment overrides: %w", err)
	}
	cfg.normalize()
	return cfg, path, nil
}

// Save writes the user config YAML and persists the DSN into the OS keyring (if non-empty).
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if cfg.Store.DSN != "" {
		if err := saveDSN(cfg.Store.DSN); err != nil {
			return fmt.Errorf("store dsn in keyring: %w", err)
		}
	}
	return nil
}

// StorePath resolves the store path, defaulting to a location under the config dir.
func (c AppConfig) StorePath() (string, error) {
	if strings.TrimSpace(c.Store.Path) != "" {
		return c.Store.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if c.Store.Driver == storage.DriverSQLite {
		return filepath.Join(dir, "pages.sqlite"), nil
	}
	return filepath.Join(dir, "pages"), nil
}

// StoreOptions maps the store section onto storage options.
func (c AppConfig) StoreOptions() (storage.Options, error) {
	opts := storage.Options{Driver: c.Store.Driver, DSN: c.Store.DSN, HistoryKeep: c.Store.HistoryKeep}
	if c.Store.Driver == storage.DriverFile || c.Store.Driver == storage.DriverSQLite {
		p, err := c.StorePath()
		if err != nil {
			return opts, err
		}
		opts.Path = p
	}
	return opts, nil
}

// LogOptions maps the logging section onto logger options.
func (c AppConfig) LogOptions() applog.Options {
	return applog.Options{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		AddSource: c.Logging.Source,
		File:      c.Logging.File,
	}
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.Canvas.Width > 0 {
		dst.Canvas.Width = src.Canvas.Width
	}
	if src.Canvas.Height > 0 {
		dst.Canvas.Height = src.Canvas.Height
	}
	if src.Canvas.BorderPadding > 0 {
		dst.Canvas.BorderPadding = src.Canvas.BorderPadding
	}
	if s := strings.TrimSpace(src.Store.Driver); s != "" {
		dst.Store.Driver = s
	}
	if s := strings.TrimSpace(src.Store.Path); s != "" {
		dst.Store.Path = s
	}
	if s := strings.TrimSpace(src.Store.Key); s != "" {
		dst.Store.Key = s
	}
	if src.Store.HistoryKeep > 0 {
		dst.Store.HistoryKeep = src.Store.HistoryKeep
	}
	if s := strings.TrimSpace(src.Logging.Level); s != "" {
		dst.Logging.Level = s
	}
	if s := strings.TrimSpace(src.Logging.Format); s != "" {
		dst.Logging.Format = s
	}
	// booleans: copy directly from the file so user preferences persist
	dst.Store.RecoverFromBackup = src.Store.RecoverFromBackup
	dst.Logging.Source = src.Logging.Source
	if s := strings.TrimSpace(src.Logging.File); s != "" {
		dst.Logging.File = s
	}
	if s := strings.TrimSpace(src.Server.Addr); s != "" {
		dst.Server.Addr = s
	}
}

func (c *AppConfig) normalize() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := overrideVars[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}
