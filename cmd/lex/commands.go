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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"golex/internal/export"
	"golex/internal/version"
)

func newDebugCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Parse the script and print the document tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, warnings, err := a.load(cmd)
			if err != nil {
				return err
			}
			printWarnings(cmd.ErrOrStderr(), a.file, warnings)
			b, err := export.YAML(doc, export.Options{Source: a.file})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func newConvertCmd(a *app) *cobra.Command {
	var format string
	var lineNumbers bool
	cmd := &cobra.Command{
		Use:   "convert [output]",
		Short: "Convert the script to json, yaml or pdf",
		Long:  "Convert the parsed script. The format defaults to the output file extension; without an output path the result goes to stdout.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out string
			if len(args) == 1 {
				out = args[0]
			}
			if format == "" {
				if out == "" {
					return fmt.Errorf("--format is required when writing to stdout")
				}
				format = filepath.Ext(out)
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			doc, warnings, err := a.load(cmd)
			if err != nil {
				return err
			}
			printWarnings(cmd.ErrOrStderr(), a.file, warnings)

			opts := export.Options{Source: filepath.Base(a.file), PDF: export.PDFOptions{LineNumbers: lineNumbers}}
			if out == "" {
				return export.Write(cmd.OutOrStdout(), doc, f, opts)
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("ensure out dir: %w", err)
			}
			file, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := export.Write(file, doc, f, opts); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Output written to: %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Output format: json, yaml or pdf")
	cmd.Flags().BoolVar(&lineNumbers, "line-numbers", false, "Print source line numbers in pdf output")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		// no script or config needed
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
