package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
)

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printText prints s, re-indenting it when it is JSON.
func (a *app) printText(s string) {
	if s == "" {
		return
	}
	var buf bytes.Buffer
	if json.Indent(&buf, []byte(s), "", "  ") == nil {
		s = buf.String()
	}
	a.printf("%s\n", s)
}

func (a *app) section(title string, n int) {
	color.New(color.Bold).Fprintf(a.out, "\n%s", title)
	a.printf(" (%d)\n", n)
}
