/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// errWarnings fails `check --strict` when the script parses but has warnings.
var errWarnings = errors.New("script has warnings")

const watchDebounce = 150 * time.Millisecond

func newCheckCmd(a *app) *cobra.Command {
	var strict, watchMode bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Parse and lint the script",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			check := func() error { return a.check(cmd, strict) }
			if !watchMode {
				return check()
			}
			if a.file == "" || a.file == "-" {
				return fmt.Errorf("--watch needs a script file")
			}
			return watch(cmd.Context(), a.file, cmd.OutOrStdout(), a.log, func() error {
				if err := check(); err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), err)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
	cmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "Re-check whenever the file changes")
	return cmd
}

func (a *app) check(cmd *cobra.Command, strict bool) error {
	doc, warnings, err := a.load(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printWarnings(out, a.file, warnings)
	fmt.Fprintf(out, "%s: ok (%d sections, %d characters, %d warnings)\n",
		a.file, len(doc.Sections), len(doc.Characters), len(warnings))
	if strict && len(warnings) > 0 {
		return errWarnings
	}
	return nil
}

// watch runs check now and again after every change to path until ctx is
// done. The directory is watched so editors that replace the file on save
// are noticed.
func watch(ctx context.Context, path string, out io.Writer, l *slog.Logger, check func() error) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	if err := check(); err != nil {
		return err
	}

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				fire = time.After(watchDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.Warn("watch error", slog.Any("err", err))
		case <-fire:
			fire = nil
			fmt.Fprintf(out, "-- %s changed --\n", path)
			if err := check(); err != nil {
				return err
			}
		}
	}
}
