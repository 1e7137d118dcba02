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
	"os"
	"path/filepath"
	"testing"

	"golex/internal/engine"
)

// isolate points the per-user config path at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("AppData", dir)
	return dir
}

func TestDefaultsMatchEngine(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Engine.LoopLimit != engine.DefaultLoopLimit || cfg.Engine.MaxFrames != engine.DefaultMaxFrames {
		t.Fatalf("unexpected engine defaults: %#v", cfg.Engine)
	}
	if len(cfg.EngineOptions()) != 3 {
		t.Fatalf("expected three engine options")
	}
}

func TestEnvOverridesEngine(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLoopLimit, "50")
	t.Setenv(EnvStepLimit, "nope")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Engine.LoopLimit != 50 {
		t.Fatalf("Engine.LoopLimit = %d, want 50", cfg.Engine.LoopLimit)
	}
	if cfg.Engine.StepLimit != engine.DefaultStepLimit {
		t.Fatalf("unparsable override must be ignored, got %d", cfg.Engine.StepLimit)
	}
	if env, ok := EnvOverrideFor("engine.loop_limit"); !ok || env != EnvLoopLimit {
		t.Fatalf("EnvOverrideFor = %q, %v", env, ok)
	}
	if _, ok := EnvOverrideFor("engine.max_frames"); ok {
		t.Fatalf("max_frames is not overridden")
	}
}

func TestEnvOverridesPlayer(t *testing.T) {
	isolate(t)
	t.Setenv(EnvPlayerAuto, "yes")
	t.Setenv(EnvHistory, "0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Player.Auto || cfg.Player.History != 0 {
		t.Fatalf("player overrides not applied: %#v", cfg.Player)
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = "debug"
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "C:/tmp/lex.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "C:/tmp/lex.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
	opts := dst.LogOptions()
	if opts.Level != "debug" || !opts.AddSource || opts.File != "C:/tmp/lex.log" {
		t.Fatalf("unexpected log options: %#v", opts)
	}
}

func TestMergeKeepsDefaultsForZeroLimits(t *testing.T) {
	dst := Defaults()
	var src AppConfig
	src.Engine.MaxFrames = 10
	mergeInto(&dst, &src)
	if dst.Engine.MaxFrames != 10 || dst.Engine.LoopLimit != engine.DefaultLoopLimit {
		t.Fatalf("unexpected merge result: %#v", dst.Engine)
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "X:/lex.log")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "X:/lex.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "lex.yaml")
	cfg := Defaults()
	cfg.Player.ShowAnnotations = true
	cfg.Engine.StepLimit = 500
	if err := SaveFile(path, cfg); err != nil {
		t.Fatalf("SaveFile() error: %v", err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if got != cfg {
		t.Fatalf("round trip mismatch: got %#v want %#v", got, cfg)
	}
}

func TestLoadFileErrors(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("engine: [1, 2"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); err == nil {
		t.Fatalf("expected error for malformed yaml")
	}
	neg := filepath.Join(dir, "neg.yaml")
	if err := os.WriteFile(neg, []byte("engine:\n  loop_limit: -1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(neg); err == nil {
		t.Fatalf("expected validation error for negative loop limit")
	}
}

func TestSaveUsesUserPath(t *testing.T) {
	isolate(t)
	cfg := Defaults()
	cfg.Player.History = 3
	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Player.History != 3 {
		t.Fatalf("History = %d, want 3", got.Player.History)
	}
}
