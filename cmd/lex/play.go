/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"golex/internal/domain"
	"golex/internal/engine"
	"golex/internal/expr"
	"golex/internal/player"
	"golex/internal/undo"
)

type playFlags struct {
	auto        bool
	annotations bool
	set         []string
	start       string
	resume      string
	noHistory   bool
}

func newPlayCmd(a *app) *cobra.Command {
	var f playFlags
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play the script interactively",
		Long: `Play the script in the terminal. At a page press enter to continue; at a
choice type its number. "back" returns to the previous page and "quit" stops.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.play(cmd, f)
		},
	}
	cmd.Flags().BoolVar(&f.auto, "auto", false, "Take the first choice and never wait")
	cmd.Flags().BoolVar(&f.annotations, "annotations", false, "Show annotation attributes before lines")
	cmd.Flags().StringArrayVar(&f.set, "set", nil, "Override a global: name=value (repeatable)")
	cmd.Flags().StringVar(&f.start, "start", "", "Start at this section")
	cmd.Flags().StringVar(&f.resume, "resume", "", "Resume from a saved session snapshot")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "Disable the back command")
	return cmd
}

func (a *app) play(cmd *cobra.Command, f playFlags) error {
	if a.file == "-" {
		return fmt.Errorf("play reads commands from stdin; pass the script as a file")
	}
	doc, warnings, err := a.load(cmd)
	if err != nil {
		return err
	}
	printWarnings(cmd.ErrOrStderr(), a.file, warnings)

	overrides, err := parseOverrides(f.set)
	if err != nil {
		return err
	}
	opts := append(a.cfg.EngineOptions(), engine.WithOverrides(overrides), engine.WithStart(f.start))
	eng, err := engine.New(doc, opts...)
	if err != nil {
		return err
	}
	if f.resume != "" {
		blob, err := os.ReadFile(f.resume)
		if err != nil {
			return fmt.Errorf("read session: %w", err)
		}
		if err := eng.Load(blob); err != nil {
			return fmt.Errorf("resume %s: %w", f.resume, err)
		}
		a.log.Info("session resumed", slog.String("from", f.resume), slog.String("state", eng.State().String()))
	}

	a.sess.Script = a.file
	a.sess.Save = eng.Save

	popts := player.Options{
		Auto:            f.auto || a.cfg.Player.Auto,
		ShowAnnotations: f.annotations || a.cfg.Player.ShowAnnotations,
		Session:         a.file,
	}
	if !f.noHistory && a.cfg.Player.History > 0 {
		popts.History = undo.NewManager(undo.Config{MaxDepth: a.cfg.Player.History})
	}
	st, err := player.Run(cmd.Context(), eng, cmd.InOrStdin(), cmd.OutOrStdout(), popts)
	a.log.Debug("play finished", slog.String("state", st.String()))
	return err
}

// parseOverrides reads name=value pairs. Values use literal syntax; anything
// that is not a literal is taken as a string.
func parseOverrides(pairs []string) (map[string]domain.Value, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]domain.Value, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		name = strings.TrimPrefix(strings.TrimSpace(name), "$")
		if !ok || name == "" {
			return nil, fmt.Errorf("bad --set %q, want name=value", p)
		}
		out[name] = literal(raw)
	}
	return out, nil
}

func literal(raw string) domain.Value {
	raw = strings.TrimSpace(raw)
	if e, err := expr.Parse(raw); err == nil {
		if v, err := e.Constant(); err == nil {
			return v
		}
	}
	return domain.String(raw)
}
