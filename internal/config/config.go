/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"golex/internal/engine"
	"golex/internal/log"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// EngineConfig holds the execution guards passed to every engine.
type EngineConfig struct {
	LoopLimit int `yaml:"loop_limit"`
	StepLimit int `yaml:"step_limit"`
	MaxFrames int `yaml:"max_frames"`
}

type PlayerConfig struct {
	Auto            bool `yaml:"auto"`
	ShowAnnotations bool `yaml:"show_annotations"`
	// History is the number of snapshots kept for `back`; 0 disables it.
	History int `yaml:"history"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Logging       LoggingConfig `yaml:"logging"`
	Engine        EngineConfig  `yaml:"engine"`
	Player        PlayerConfig  `yaml:"player"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
		Engine:        EngineConfig{LoopLimit: engine.DefaultLoopLimit, StepLimit: engine.DefaultStepLimit, MaxFrames: engine.DefaultMaxFrames},
		Player:        PlayerConfig{Auto: false, ShowAnnotations: false, History: 256},
	}
}

// Env var names used as overrides.
const (
	EnvLoopLimit    = "LEX_LOOP_LIMIT"
	EnvStepLimit    = "LEX_STEP_LIMIT"
	EnvMaxFrames    = "LEX_MAX_FRAMES"
	EnvPlayerAuto   = "LEX_PLAYER_AUTO"
	EnvAnnotations  = "LEX_SHOW_ANNOTATIONS"
	EnvHistory      = "LEX_HISTORY"
	EnvLogLevel     = "LEX_LOG_LEVEL"
	EnvLogFormat    = "LEX_LOG_FORMAT"
	EnvLogSource    = "LEX_LOG_SOURCE"
	EnvLogFile      = "LEX_LOG_FILE"
	envConfigDirApp = "lex"
)

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Lex")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Lex")
	default: // linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, envConfigDirApp)
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", envConfigDirApp)
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// A malformed user file is ignored so a broken config never blocks the CLI.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		} else {
			log.WithComponent("config").Warn("ignoring malformed config", "path", path, "err", err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, cfg.Validate()
}

// LoadFile is Load for an explicit path. The file must exist and parse.
func LoadFile(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	var fileCfg AppConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	mergeInto(&cfg, &fileCfg)
	applyEnvOverrides(&cfg)
	return cfg, cfg.Validate()
}

// Save writes the config YAML to the per-user path.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

// SaveFile writes the config YAML to path, creating its directory.
func SaveFile(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate rejects limits the engine cannot run with.
func (c AppConfig) Validate() error {
	switch {
	case c.Engine.LoopLimit <= 0:
		return fmt.Errorf("engine.loop_limit must be positive, got %d", c.Engine.LoopLimit)
	case c.Engine.StepLimit <= 0:
		return fmt.Errorf("engine.step_limit must be positive, got %d", c.Engine.StepLimit)
	case c.Engine.MaxFrames <= 0:
		return fmt.Errorf("engine.max_frames must be positive, got %d", c.Engine.MaxFrames)
	case c.Player.History < 0:
		return fmt.Errorf("player.history must not be negative, got %d", c.Player.History)
	}
	return nil
}

// LogOptions converts the logging section for log.Init.
func (c AppConfig) LogOptions() log.Options {
	return log.Options{Level: c.Logging.Level, Format: c.Logging.Format, AddSource: c.Logging.Source, File: c.Logging.File}
}

// EngineOptions converts the engine section into engine options.
func (c AppConfig) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithLoopLimit(c.Engine.LoopLimit),
		engine.WithStepLimit(c.Engine.StepLimit),
		engine.WithMaxFrames(c.Engine.MaxFrames),
	}
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
	// engine: zero keeps the default
	if src.Engine.LoopLimit != 0 {
		dst.Engine.LoopLimit = src.Engine.LoopLimit
	}
	if src.Engine.StepLimit != 0 {
		dst.Engine.StepLimit = src.Engine.StepLimit
	}
	if src.Engine.MaxFrames != 0 {
		dst.Engine.MaxFrames = src.Engine.MaxFrames
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.Player.Auto = src.Player.Auto
	dst.Player.ShowAnnotations = src.Player.ShowAnnotations
	if src.Player.History != 0 {
		dst.Player.History = src.Player.History
	}
}

func envBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func envInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	envInt(EnvLoopLimit, &cfg.Engine.LoopLimit)
	envInt(EnvStepLimit, &cfg.Engine.StepLimit)
	envInt(EnvMaxFrames, &cfg.Engine.MaxFrames)
	envInt(EnvHistory, &cfg.Player.History)
	if v := strings.TrimSpace(os.Getenv(EnvPlayerAuto)); v != "" {
		cfg.Player.Auto = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvAnnotations)); v != "" {
		cfg.Player.ShowAnnotations = envBool(v)
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var envKeys = map[string]string{
	"engine.loop_limit":       EnvLoopLimit,
	"engine.step_limit":       EnvStepLimit,
	"engine.max_frames":       EnvMaxFrames,
	"player.auto":             EnvPlayerAuto,
	"player.show_annotations": EnvAnnotations,
	"player.history":          EnvHistory,
	"logging.level":           EnvLogLevel,
	"logging.format":          EnvLogFormat,
	"logging.source":          EnvLogSource,
	"logging.file":            EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	if env, ok := envKeys[key]; ok && os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}
