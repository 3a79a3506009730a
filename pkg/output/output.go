/*
 * Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package output renders CLI command results as a table, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Format selects the output rendering.
type Format string

const (
	// FormatTable is the human-readable default.
	FormatTable Format = "table"
	// FormatJSON renders indented JSON.
	FormatJSON Format = "json"
	// FormatYAML renders YAML.
	FormatYAML Format = "yaml"
)

// Table is implemented by results that can render as a table.
type Table interface {
	Headers() []string
	Rows() [][]string
}

// Formatter writes command results in one configured format.
type Formatter struct {
	format Format
	writer io.Writer
}

// NewFormatter creates a formatter for format; empty selects table.
func NewFormatter(format string) (*Formatter, error) {
	if format == "" {
		format = string(FormatTable)
	}
	switch Format(format) {
	case FormatTable, FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("invalid output format %q, must be one of: table, json, yaml", format)
	}
	return &Formatter{
		format: Format(format),
		writer: os.Stdout,
	}, nil
}

// SetWriter redirects output, used by tests.
func (f *Formatter) SetWriter(w io.Writer) {
	f.writer = w
}

// Format returns the configured format.
func (f *Formatter) Format() Format {
	return f.format
}

// Print renders data in the configured format. Table format requires data
// to implement Table; the other formats serialize data directly.
func (f *Formatter) Print(data interface{}) error {
	switch f.format {
	case FormatJSON:
		encoder := json.NewEncoder(f.writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case FormatYAML:
		encoder := yaml.NewEncoder(f.writer)
		encoder.SetIndent(2)
		defer encoder.Close() // nolint:errcheck
		return encoder.Encode(data)
	default:
		table, ok := data.(Table)
		if !ok {
			return fmt.Errorf("result cannot be rendered as a table, use -o json or -o yaml")
		}
		return f.printTable(table)
	}
}

func (f *Formatter) printTable(data Table) error {
	w := tabwriter.NewWriter(f.writer, 0, 0, 3, ' ', 0)
	printRow(w, data.Headers())
	for _, row := range data.Rows() {
		printRow(w, row)
	}
	return w.Flush()
}

func printRow(w io.Writer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, cell)
	}
	fmt.Fprintln(w)
}
