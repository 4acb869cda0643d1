// Package jsonutil holds small JSON helpers shared by the CLI and the TUI:
// indented output for command results and one-line renderings of stored
// request bodies.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Write encodes v to w with two-space indentation and a trailing newline.
func Write(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding json output: %w", err)
	}
	return nil
}

// Pretty indents a raw JSON document. Invalid input is returned as is.
func Pretty(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Compact strips whitespace from a raw JSON document. Invalid input is
// returned as is.
func Compact(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Truncate shortens s to at most max bytes, marking the cut with "...".
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
