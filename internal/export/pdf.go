/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"golex/internal/script"
)

// PDFOptions controls the script listing layout.
// Units are points (pt). Built-in Helvetica and Courier keep the text
// vector without embedding fonts.
type PDFOptions struct {
	Title       string
	FontSize    float64 // body size; headings are 4pt larger
	Indent      float64 // per nesting level
	LineNumbers bool
	// Created fixes the document creation date; zero means now.
	Created time.Time
}

func (o PDFOptions) withDefaults(source string) PDFOptions {
	if o.Title == "" {
		o.Title = source
	}
	if o.Title == "" {
		o.Title = "Lex script"
	}
	if o.FontSize <= 0 {
		o.FontSize = 10
	}
	if o.Indent <= 0 {
		o.Indent = 18
	}
	return o
}

const pdfMargin = 50.0

// PDF writes a printable listing of doc to w, one section after another.
func PDF(w io.Writer, doc *script.Document, opts Options) error {
	opt := opts.PDF.withDefaults(opts.Source)

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetTitle(opt.Title, true)
	pdf.SetAuthor("lex", false)
	pdf.SetCreator("lex convert", false)
	if !opt.Created.IsZero() {
		pdf.SetCreationDate(opt.Created)
	}
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfMargin + 10)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("%s  -  %d", tr(opt.Title), pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", opt.FontSize+8)
	pdf.MultiCell(0, (opt.FontSize+8)*1.4, tr(opt.Title), "", "L", false)
	pdf.Ln(opt.FontSize)

	lh := opt.FontSize * 1.4
	for _, l := range Listing(doc) {
		if l.Style == StyleBlank {
			pdf.Ln(lh / 2)
			continue
		}
		setListingFont(pdf, l.Style, opt.FontSize)
		x := pdfMargin + float64(l.Depth)*opt.Indent
		if opt.LineNumbers {
			pdf.SetX(pdfMargin - 30)
			if l.Line > 0 {
				pdf.SetFont("Courier", "", opt.FontSize-2)
				pdf.CellFormat(24, lh, fmt.Sprintf("%d", l.Line), "", 0, "R", false, 0, "")
				setListingFont(pdf, l.Style, opt.FontSize)
			}
		}
		pdf.SetX(x)
		pdf.MultiCell(0, lh, tr(l.Text), "", "L", false)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func setListingFont(pdf *gofpdf.Fpdf, style LineStyle, size float64) {
	switch style {
	case StyleHeading:
		pdf.SetFont("Helvetica", "B", size+4)
	case StyleDialogue:
		pdf.SetFont("Helvetica", "", size)
	case StyleControl:
		pdf.SetFont("Courier", "", size)
	case StyleComment:
		pdf.SetFont("Helvetica", "I", size)
	default:
		pdf.SetFont("Helvetica", "", size)
	}
}
