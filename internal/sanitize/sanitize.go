// Package sanitize repairs common defects in model-authored Mermaid source.
package sanitize

import (
	"regexp"
	"strings"
)

// DelimiterMarker opens every diagram delimiter line.
const DelimiterMarker = "---"

var (
	fenceOpen  = regexp.MustCompile("^```[A-Za-z0-9_+-]*[ \t]*(\n|$)")
	flatParens = regexp.MustCompile(`\(([^()]*)\)`)
	multiDash  = regexp.MustCompile(`\s*(?:-\s*){2,}`)
	multiSpace = regexp.MustCompile(`[ \t]{2,}`)
	proseLabel = regexp.MustCompile(`(?i)^(note|explanation|description)\s*:`)
	directive  = regexp.MustCompile(`^(classDef|class|style|linkStyle)\s`)
)

// Sanitize runs every repair pass over src. It never panics; the worst case is
// the trimmed input. Sanitize is idempotent.
func Sanitize(src string) (out string) {
	trimmed := strings.TrimSpace(NormalizeLineEndings(src))
	defer func() {
		if recover() != nil {
			out = trimmed
		}
	}()

	s := StripCodeFence(trimmed)
	s = RepairLabels(s)
	s = TrimTrailingProse(s)
	return strings.TrimSpace(s)
}

// NormalizeLineEndings converts CRLF and lone CR to LF.
func NormalizeLineEndings(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// StripCodeFence removes a leading fence opener, with or without a language
// tag, and the first bare closer after it. Text after the closer is kept.
// Nested wrappers are peeled too.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	for {
		loc := fenceOpen.FindStringIndex(s)
		if loc == nil {
			return s
		}
		body := s[loc[1]:]
		if start, end := closingFence(body); start >= 0 {
			body = body[:start] + body[end:]
		}
		s = strings.TrimSpace(body)
	}
}

// StripOuterFence removes a fence that wraps the whole of s: the opener on the
// first line and a bare closer on the last non-blank line. Fences inside s are
// left alone.
func StripOuterFence(s string) string {
	s = strings.TrimSpace(s)
	loc := fenceOpen.FindStringIndex(s)
	if loc == nil {
		return s
	}
	body := strings.TrimSpace(s[loc[1]:])
	last := strings.LastIndexByte(body, '\n')
	if strings.TrimSpace(body[last+1:]) == "```" {
		body = body[:max(last, 0)]
	}
	return strings.TrimSpace(body)
}

// IsFenceLine reports whether line is a fence opener or closer.
func IsFenceLine(line string) bool {
	return fenceOpen.MatchString(strings.TrimSpace(line))
}

// closingFence returns the byte range of the first line that is a bare
// fence, or -1, -1.
func closingFence(body string) (int, int) {
	offset := 0
	for _, line := range strings.SplitAfter(body, "\n") {
		if strings.TrimSpace(line) == "```" {
			return offset, offset + len(line)
		}
		offset += len(line)
	}
	return -1, -1
}

// RepairLabels finds bracket labels and runs both parenthesis passes over each
// label body. Quoted labels are left untouched.
func RepairLabels(s string) string {
	if !strings.ContainsAny(s, "()") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		lbl, ok := scanLabel(s, i)
		if !ok {
			b.WriteByte(s[i])
			i++
			continue
		}
		b.WriteString(s[i:lbl.bodyStart])
		b.WriteString(StripParens(RewriteParenClauses(s[lbl.bodyStart:lbl.bodyEnd])))
		b.WriteString(s[lbl.bodyEnd:lbl.end])
		i = lbl.end
	}
	return b.String()
}

// label marks a bracket label inside the source. The body excludes the
// opener and closer tokens.
type label struct {
	bodyStart, bodyEnd, end int
}

// labelForms lists bracket openers with their closers, longest first.
var labelForms = []struct{ open, close string }{
	{"[[", "]]"},
	{"[(", ")]"},
	{"[/", "/]"},
	{"[/", `\]`},
	{`[\`, `\]`},
	{`[\`, "/]"},
	{"[", "]"},
}

// scanLabel reports whether a label opens at s[i]. A label opener must follow
// a node id character and the label must close on the same line.
func scanLabel(s string, i int) (label, bool) {
	if s[i] != '[' || i == 0 || !isIDChar(s[i-1]) {
		return label{}, false
	}
	lineEnd := strings.IndexByte(s[i:], '\n')
	if lineEnd < 0 {
		lineEnd = len(s)
	} else {
		lineEnd += i
	}
	for _, f := range labelForms {
		if !strings.HasPrefix(s[i:], f.open) {
			continue
		}
		start := i + len(f.open)
		if start < lineEnd && s[start] == '"' {
			return label{}, false
		}
		end := closeIndex(s[start:lineEnd], f.close)
		if end < 0 {
			continue
		}
		return label{bodyStart: start, bodyEnd: start + end, end: start + end + len(f.close)}, true
	}
	return label{}, false
}

// closeIndex finds closer in body. A plain "]" closer is matched by depth so
// nested brackets stay inside the label; unbalanced bodies fall back to the
// last "]" before any edge arrow.
func closeIndex(body, closer string) int {
	if closer != "]" {
		return strings.Index(body, closer)
	}
	depth := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '[':
			depth++
		case ']':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	if arrow := edgeStart(body); arrow >= 0 {
		if i := strings.LastIndex(body[:arrow], "]"); i >= 0 {
			return i
		}
	}
	return strings.Index(body, "]")
}

func edgeStart(s string) int {
	best := -1
	for _, tok := range []string{"-->", "---", "-.-", "==>", "--o", "--x", "&"} {
		if i := strings.Index(s, tok); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

func isIDChar(c byte) bool {
	return c == '_' || c == '-' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// RewriteParenClauses turns each flat "(inner)" group in a label body into a
// dash-delimited clause: "Label (extra info) end" becomes
// "Label - extra info - end". Nested groups are rewritten innermost first;
// whatever still contains parentheses is left for StripParens.
func RewriteParenClauses(body string) string {
	if !strings.ContainsAny(body, "()") {
		return body
	}
	out := flatParens.ReplaceAllStringFunc(body, func(m string) string {
		inner := strings.TrimSpace(m[1 : len(m)-1])
		if inner == "" {
			return " "
		}
		return " - " + inner + " - "
	})
	return tidyClause(out)
}

// StripParens deletes any parenthesis characters left in a label body,
// keeping their inner text.
func StripParens(body string) string {
	if !strings.ContainsAny(body, "()") {
		return body
	}
	out := strings.NewReplacer("(", " ", ")", " ").Replace(body)
	return tidyClause(out)
}

func tidyClause(s string) string {
	s = multiDash.ReplaceAllString(s, " - ")
	s = multiSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimPrefix(s, "- "))
	s = strings.TrimSpace(strings.TrimSuffix(s, " -"))
	if s == "-" {
		return ""
	}
	return s
}

// TrimTrailingProse drops explanatory lines the model appended after the
// diagram. The cutoff is the last line that is non-empty, does not start with
// the delimiter marker and is not a note/explanation/description label line.
func TrimTrailingProse(s string) string {
	lines := strings.Split(s, "\n")
	cut := -1
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, DelimiterMarker) {
			continue
		}
		if proseLabel.MatchString(line) && !directive.MatchString(line) {
			continue
		}
		cut = i
		break
	}
	if cut < 0 {
		return ""
	}
	return strings.TrimRight(strings.Join(lines[:cut+1], "\n"), " \t\n")
}
