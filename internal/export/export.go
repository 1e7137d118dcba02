/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export converts a parsed Document into interchange and print
// formats: JSON (validated against an embedded schema), YAML and a PDF
// script listing.
package export

import (
	"fmt"
	"io"
	"strings"

	"golex/internal/script"
)

// Format names an output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatPDF  Format = "pdf"
)

// Formats lists the supported formats.
var Formats = []Format{FormatJSON, FormatYAML, FormatPDF}

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unknown format %q (want json, yaml or pdf)", s)
}

// Options carries export settings shared by all formats.
type Options struct {
	// Source is recorded in the output, usually the script file name.
	Source string
	PDF    PDFOptions
}

const (
	envelopeFormat  = "lex-document"
	envelopeVersion = 1
)

// envelope wraps the document in JSON and YAML output.
type envelope struct {
	Format   string           `json:"format" yaml:"format"`
	Version  int              `json:"version" yaml:"version"`
	Source   string           `json:"source,omitempty" yaml:"source,omitempty"`
	Document *script.Document `json:"document" yaml:"document"`
}

func wrap(doc *script.Document, opts Options) envelope {
	return envelope{Format: envelopeFormat, Version: envelopeVersion, Source: opts.Source, Document: doc}
}

// Write encodes doc in format f to w.
func Write(w io.Writer, doc *script.Document, f Format, opts Options) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	switch f {
	case FormatJSON:
		b, err := JSON(doc, opts)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case FormatYAML:
		b, err := YAML(doc, opts)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case FormatPDF:
		return PDF(w, doc, opts)
	}
	return fmt.Errorf("unknown format %q", f)
}
