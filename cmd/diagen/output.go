package main

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/fatih/color"

	"github.com/rendis/diagen/pkg/schema"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// printStatus writes one line per result: a mark, the title, and either the
// destination or the error.
func printStatus(w io.Writer, results []schema.RenderResult, dest []string) {
	for i, r := range results {
		if r.OK {
			line := fmt.Sprintf("%s %s", green("✓"), r.Title)
			if i < len(dest) && dest[i] != "" {
				line += " " + gray("→ "+dest[i])
			}
			fmt.Fprintln(w, line)
			continue
		}
		fmt.Fprintf(w, "%s %s %s\n", red("✗"), r.Title, gray("["+r.ErrorCode+"] "+r.ErrorMessage))
	}
}

// summarize returns an error naming how many results failed, or nil.
func summarize(results []schema.RenderResult) error {
	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d diagrams failed", failed, len(results))
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// slug turns a title into a file name stem.
func slug(title string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if len(s) > 48 {
		s = strings.TrimRight(s[:48], "-")
	}
	if s == "" {
		return "diagram"
	}
	return s
}

// fileName is unique per batch position, so duplicate titles never collide.
func fileName(index int, title, ext string) string {
	return fmt.Sprintf("%02d-%s.%s", index+1, slug(title), ext)
}

func extension(format string) string {
	switch format {
	case "ascii":
		return "txt"
	case "mermaid":
		return "mmd"
	}
	return "svg"
}
