/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Command lex parses, checks, converts and plays Lex dialogue scripts.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"golex/internal/config"
	"golex/internal/crash"
	applog "golex/internal/log"
	"golex/internal/script"
	"golex/internal/version"
)

func main() { os.Exit(run()) }

func run() int {
	sess := &crash.Session{}
	defer crash.Recover(sess)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(sess).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// app holds the state shared by all subcommands.
type app struct {
	file       string
	configPath string
	logLevel   string
	logFormat  string
	cfg        config.AppConfig
	sess       *crash.Session
	log        *slog.Logger
}

func newRootCmd(sess *crash.Session) *cobra.Command {
	a := &app{sess: sess}
	root := &cobra.Command{
		Use:           "lex",
		Short:         "Parse, check, convert and play Lex dialogue scripts",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&a.file, "file", "f", "", "Path to the .lex script (- for stdin)")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: per-user config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: console or json")

	root.AddCommand(
		newDebugCmd(a),
		newPlayCmd(a),
		newConvertCmd(a),
		newCheckCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads config and initializes logging before any command runs.
func (a *app) setup(cmd *cobra.Command) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		a.cfg.Logging.Level = strings.ToLower(a.logLevel)
	}
	if a.logFormat != "" {
		a.cfg.Logging.Format = strings.ToLower(a.logFormat)
	}
	opts := a.cfg.LogOptions()
	opts.Writer = cmd.ErrOrStderr()
	applog.Init(opts)
	a.log = applog.WithComponent("cli")
	a.log.Debug("start", slog.String("command", cmd.Name()), slog.String("file", a.file))
	return nil
}

// source reads the script named by --file.
func (a *app) source(cmd *cobra.Command) (string, error) {
	switch a.file {
	case "":
		return "", fmt.Errorf("no script given; pass --file path.lex")
	case "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(a.file)
	if err != nil {
		return "", fmt.Errorf("error opening file %s: %w", a.file, err)
	}
	return string(b), nil
}

// load reads and parses the script. Parse errors carry a source excerpt.
func (a *app) load(cmd *cobra.Command) (*script.Document, []script.Warning, error) {
	src, err := a.source(cmd)
	if err != nil {
		return nil, nil, err
	}
	ctx := applog.WithFile(cmd.Context(), a.file)
	doc, err := script.Parse(src)
	if err != nil {
		a.log.ErrorContext(ctx, "parse failed", slog.Any("err", err))
		return nil, nil, fmt.Errorf("%s: %s", a.file, script.FormatError(err, src))
	}
	warnings := script.Validate(doc)
	a.log.DebugContext(ctx, "parsed",
		slog.Int("sections", len(doc.Sections)),
		slog.Int("characters", len(doc.Characters)),
		slog.Int("warnings", len(warnings)))
	return doc, warnings, nil
}

func printWarnings(w io.Writer, file string, warnings []script.Warning) {
	for _, wn := range warnings {
		fmt.Fprintf(w, "%s: warning: %s\n", file, wn)
	}
}
