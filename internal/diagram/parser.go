package diagram

import (
	"regexp"
	"strings"

	"github.com/rendis/diagen/pkg/schema"
)

// unsupportedKinds lists Mermaid diagram headers that are recognised but not
// rendered.
var unsupportedKinds = map[string]bool{
	"sequencediagram":    true,
	"classdiagram":       true,
	"classdiagram-v2":    true,
	"statediagram":       true,
	"statediagram-v2":    true,
	"erdiagram":          true,
	"gantt":              true,
	"pie":                true,
	"mindmap":            true,
	"timeline":           true,
	"journey":            true,
	"gitgraph":           true,
	"quadrantchart":      true,
	"requirementdiagram": true,
	"sankey-beta":        true,
	"xychart-beta":       true,
	"block-beta":         true,
	"packet-beta":        true,
	"architecture-beta":  true,
	"kanban":             true,
	"radar-beta":         true,
	"treemap-beta":       true,
	"zenuml":             true,
	"c4context":          true,
	"c4container":        true,
	"c4component":        true,
	"c4dynamic":          true,
	"c4deployment":       true,
}

var (
	textEdge  = regexp.MustCompile(`^([<ox]?)(--|==|-\.)\s+(.+?)\s*(-{2,}[>ox]?|={2,}[>ox]?|\.-+[>ox]?)`)
	plainEdge = regexp.MustCompile(`^([<ox]?)(-{2,}[>ox]?|={2,}[>ox]?|-\.+-[>ox]?|~{3,})`)
	brTag     = regexp.MustCompile(`(?i)<br\s*/?>`)
)

// shapeForms lists node label delimiters, longest opener first.
var shapeForms = []struct {
	open, close string
	shape       Shape
}{
	{"(((", ")))", ShapeDoubleCircle},
	{"((", "))", ShapeCircle},
	{"([", "])", ShapeStadium},
	{"(", ")", ShapeRound},
	{"[[", "]]", ShapeSubroutine},
	{"[(", ")]", ShapeCylinder},
	{"[/", "/]", ShapeParallelogram},
	{"[/", `\]`, ShapeTrapezoid},
	{`[\`, `\]`, ShapeParallelogramAlt},
	{`[\`, "/]", ShapeTrapezoidAlt},
	{"[", "]", ShapeRect},
	{"{{", "}}", ShapeHexagon},
	{"{", "}", ShapeDiamond},
	{">", "]", ShapeAsymmetric},
}

// ParseMermaid parses Mermaid flowchart source into a DiagramModel.
// Errors are *schema.DiagenError values; syntax errors name the 1-based line.
func ParseMermaid(source string) (*DiagramModel, error) {
	lines := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
	p := &parser{b: newBuilder()}

	i, err := p.frontMatter(lines)
	if err != nil {
		return nil, err
	}

	header := false
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		p.line = i + 1
		if !header {
			rest, err := p.header(line)
			if err != nil {
				return nil, err
			}
			header = true
			if rest == "" {
				continue
			}
			line = rest
		}
		for _, stmt := range splitStatements(line) {
			if err := p.statement(stmt); err != nil {
				return nil, err
			}
		}
	}

	if !header {
		return nil, schema.NewError(schema.ErrCodeEmptySource, "diagram source is empty")
	}
	if sg := p.b.current(); sg != nil {
		return nil, p.errorf("subgraph %q is not closed", sg.ID)
	}
	return p.b.finish(), nil
}

type parser struct {
	b    *builder
	line int
}

func (p *parser) errorf(format string, args ...any) *schema.DiagenError {
	args = append([]any{p.line}, args...)
	return schema.NewErrorf(schema.ErrCodeSyntax, "line %d: "+format, args...).
		WithDetails(map[string]any{"line": p.line})
}

// frontMatter consumes a leading "---" block and picks up its title.
func (p *parser) frontMatter(lines []string) (int, error) {
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start == len(lines) || strings.TrimSpace(lines[start]) != "---" {
		return start, nil
	}
	for i := start + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "---" {
			return i + 1, nil
		}
		if v, ok := strings.CutPrefix(line, "title:"); ok {
			p.b.model.Title = strings.Trim(strings.TrimSpace(v), `"'`)
		}
	}
	p.line = start + 1
	return 0, p.errorf("front matter is not closed")
}

// header checks the diagram kind and direction. It returns whatever follows
// the header on the same line.
func (p *parser) header(line string) (string, error) {
	stmt, rest, _ := strings.Cut(line, ";")
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return "", p.errorf("expected flowchart header")
	}
	kind := strings.ToLower(fields[0])
	switch kind {
	case "flowchart", "graph", "flowchart-elk", "flowchart-v2":
	default:
		if unsupportedKinds[kind] {
			return "", schema.NewErrorf(schema.ErrCodeUnsupported,
				"%s diagrams are not supported; only flowchart and graph can be rendered", fields[0]).
				WithDetails(map[string]any{"kind": fields[0], "line": p.line})
		}
		return "", p.errorf("expected flowchart header, got %q", fields[0])
	}
	if len(fields) > 2 {
		return "", p.errorf("unexpected %q after flowchart header", strings.Join(fields[2:], " "))
	}
	if len(fields) == 2 {
		d, ok := parseDirection(fields[1])
		if !ok {
			return "", p.errorf("unknown direction %q", fields[1])
		}
		p.b.model.Direction = d
	}
	return strings.TrimSpace(rest), nil
}

func parseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(s) {
	case "TB", "TD":
		return DirectionTB, true
	case "BT":
		return DirectionBT, true
	case "LR":
		return DirectionLR, true
	case "RL":
		return DirectionRL, true
	}
	return "", false
}

func (p *parser) statement(stmt string) error {
	stmt = strings.TrimSpace(stmt)
	if stmt == "" || strings.HasPrefix(stmt, "%%") {
		return nil
	}
	keyword, rest := splitKeyword(stmt)
	switch keyword {
	case "subgraph":
		return p.subgraph(rest)
	case "end":
		if rest != "" {
			break
		}
		if !p.b.closeSubGraph() {
			return p.errorf("unexpected end without subgraph")
		}
		return nil
	case "direction":
		d, ok := parseDirection(rest)
		if !ok {
			return p.errorf("unknown direction %q", rest)
		}
		p.b.setDirection(d)
		return nil
	case "classDef":
		names, props, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(names) == "" {
			return p.errorf("classDef needs a class name and styles")
		}
		p.b.defineClass(splitList(names), parseStyle(props))
		return nil
	case "class":
		ids, class, ok := cutLast(rest)
		if !ok {
			return p.errorf("class needs node ids and a class name")
		}
		p.b.assignClass(splitList(ids), class)
		return nil
	case "style":
		id, props, ok := strings.Cut(rest, " ")
		if !ok {
			return p.errorf("style needs a node id and styles")
		}
		p.b.applyStyle(id, parseStyle(props))
		return nil
	case "linkStyle", "click", "accTitle", "accDescr", "accTitle:", "accDescr:":
		return nil
	}
	return p.chain(stmt)
}

// subgraph handles "subgraph id", "subgraph id[title]", "subgraph id [title]"
// and "subgraph title with spaces".
func (p *parser) subgraph(rest string) error {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return p.errorf("subgraph needs an id or title")
	}
	id, label := rest, rest
	if i := strings.IndexByte(rest, '['); i > 0 && strings.HasSuffix(rest, "]") {
		id = strings.TrimSpace(rest[:i])
		label = cleanLabel(rest[i+1 : len(rest)-1])
	} else if strings.HasPrefix(rest, `"`) {
		label = cleanLabel(rest)
		id = strings.Join(strings.Fields(label), "_")
	} else if strings.ContainsAny(rest, " \t") {
		id = strings.Join(strings.Fields(rest), "_")
	}
	if id == "" {
		return p.errorf("subgraph needs an id or title")
	}
	p.b.openSubGraph(id, label)
	return nil
}

// chain parses "group (edge group)*" where a group is "node (& node)*".
func (p *parser) chain(stmt string) error {
	s := &scanner{src: stmt}
	prev, err := p.group(s)
	if err != nil {
		return err
	}
	for {
		s.skipSpace()
		if s.done() {
			return nil
		}
		edge, ok := s.edge()
		if !ok {
			return p.errorf("unexpected %q", s.rest())
		}
		s.skipSpace()
		if s.done() {
			return p.errorf("edge has no target")
		}
		next, err := p.group(s)
		if err != nil {
			return err
		}
		p.b.connect(prev, next, edge)
		prev = next
	}
}

func (p *parser) group(s *scanner) ([]string, error) {
	var ids []string
	for {
		s.skipSpace()
		id, err := p.node(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		s.skipSpace()
		if !s.consume("&") {
			return ids, nil
		}
	}
}

func (p *parser) node(s *scanner) (string, error) {
	id := s.ident()
	if id == "" {
		if s.done() {
			return "", p.errorf("expected node id")
		}
		return "", p.errorf("expected node id at %q", s.rest())
	}

	if shape, text, ok := s.shape(); ok {
		p.b.define(id, shape, text)
	} else {
		if s.hasPrefix("[") || s.hasPrefix("(") || s.hasPrefix("{") {
			return "", p.errorf("unclosed label for node %q", id)
		}
		p.b.reference(id)
	}

	if s.consume(":::") {
		class := s.ident()
		if class == "" {
			return "", p.errorf("expected class name after ::: on node %q", id)
		}
		p.b.assignClass([]string{id}, class)
	}
	return id, nil
}

// scanner walks a single statement.
type scanner struct {
	src string
	pos int
}

func (s *scanner) done() bool { return s.pos >= len(s.src) }

func (s *scanner) rest() string { return s.src[s.pos:] }

func (s *scanner) hasPrefix(p string) bool { return strings.HasPrefix(s.src[s.pos:], p) }

func (s *scanner) consume(p string) bool {
	if s.hasPrefix(p) {
		s.pos += len(p)
		return true
	}
	return false
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.src) && (s.src[s.pos] == ' ' || s.src[s.pos] == '\t') {
		s.pos++
	}
}

// ident reads a node id. Dashes and dots are allowed inside an id only when
// followed by another id character, so "A-->B" splits at the arrow.
func (s *scanner) ident() string {
	start := s.pos
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if isIdentChar(c) {
			s.pos++
			continue
		}
		if (c == '-' || c == '.') && s.pos > start && s.pos+1 < len(s.src) && isIdentChar(s.src[s.pos+1]) {
			s.pos++
			continue
		}
		break
	}
	return s.src[start:s.pos]
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

// shape reads a shape-delimited label after a node id. Forms sharing an
// opener compete and the nearest closer wins, so "[/a\]" and "[/b/]" on one
// line stay separate.
func (s *scanner) shape() (Shape, string, bool) {
	best := -1
	var bestShape Shape
	var bestText string
	opener := ""
	for _, f := range shapeForms {
		if opener != "" && f.open != opener {
			break
		}
		if !s.hasPrefix(f.open) {
			continue
		}
		text, n, ok := peekLabel(s.src[s.pos+len(f.open):], f.close)
		if !ok {
			continue
		}
		opener = f.open
		if best < 0 || len(f.open)+n < best {
			best, bestShape, bestText = len(f.open)+n, f.shape, text
		}
	}
	if best < 0 {
		return "", "", false
	}
	s.pos += best
	return bestShape, bestText, true
}

// peekLabel reads label text up to closer and reports how many bytes the text
// and closer span. Quoted text may contain the closer.
func peekLabel(rest, closer string) (string, int, bool) {
	trimmed := strings.TrimLeft(rest, " \t")
	if strings.HasPrefix(trimmed, `"`) {
		end := strings.IndexByte(trimmed[1:], '"')
		if end < 0 {
			return "", 0, false
		}
		after := strings.TrimLeft(trimmed[end+2:], " \t")
		if !strings.HasPrefix(after, closer) {
			return "", 0, false
		}
		return cleanLabel(trimmed[1 : end+1]), len(rest) - len(after) + len(closer), true
	}
	end := strings.Index(rest, closer)
	if end < 0 {
		return "", 0, false
	}
	return cleanLabel(rest[:end]), end + len(closer), true
}

// edge reads an edge token with its optional label.
func (s *scanner) edge() (Edge, bool) {
	rest := s.rest()
	if m := textEdge.FindStringSubmatch(rest); m != nil {
		s.pos += len(m[0])
		e := edgeFrom(m[1], m[2]+m[4])
		e.Label = cleanLabel(m[3])
		return e, true
	}
	m := plainEdge.FindStringSubmatch(rest)
	if m == nil {
		return Edge{}, false
	}
	token := m[2]
	// "--o" and "--x" only end in a marker when no id follows directly.
	if last := token[len(token)-1]; (last == 'o' || last == 'x') && len(m[0]) < len(rest) && isIdentChar(rest[len(m[0])]) {
		token = token[:len(token)-1]
	}
	s.pos += len(m[1]) + len(token)
	e := edgeFrom(m[1], token)
	s.skipSpace()
	if s.consume("|") {
		end := strings.IndexByte(s.rest(), '|')
		if end < 0 {
			return Edge{}, false
		}
		e.Label = cleanLabel(s.rest()[:end])
		s.pos += end + 1
	}
	return e, true
}

func edgeFrom(tail, token string) Edge {
	e := Edge{Line: LineSolid, Head: ArrowNone, Tail: ArrowNone}
	switch {
	case strings.HasPrefix(token, "~"):
		e.Line = LineInvisible
	case strings.Contains(token, "="):
		e.Line = LineThick
	case strings.Contains(token, "."):
		e.Line = LineDotted
	}
	e.Head = arrowFor(token[len(token)-1])
	if tail != "" {
		e.Tail = arrowFor(tail[0])
	}
	return e
}

func arrowFor(c byte) ArrowHead {
	switch c {
	case '>', '<':
		return ArrowNormal
	case 'o':
		return ArrowCircle
	case 'x':
		return ArrowCross
	}
	return ArrowNone
}

// cleanLabel trims quotes and markdown backticks and turns <br> into newlines.
func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`' {
		s = s[1 : len(s)-1]
	}
	s = brTag.ReplaceAllString(s, "\n")
	s = strings.NewReplacer("#quot;", `"`, "#amp;", "&", "#lt;", "<", "#gt;", ">").Replace(s)
	return strings.TrimSpace(s)
}

// splitStatements splits a line on semicolons outside labels and quotes.
func splitStatements(line string) []string {
	var out []string
	depth := 0
	quoted := false
	start := 0
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '[' || c == '(' || c == '{':
			depth++
		case c == ']' || c == ')' || c == '}':
			if depth > 0 {
				depth--
			}
		case c == ';' && depth == 0:
			out = append(out, line[start:i])
			start = i + 1
		}
	}
	return append(out, line[start:])
}

func splitKeyword(stmt string) (string, string) {
	keyword, rest, _ := strings.Cut(stmt, " ")
	return keyword, strings.TrimSpace(rest)
}

// cutLast splits "a,b cls" into "a,b" and "cls".
func cutLast(s string) (string, string, bool) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexAny(s, " \t")
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:i]), s[i+1:], true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseStyle reads "fill:#f9f,stroke:#333,stroke-width:2px". Unknown
// properties are ignored.
func parseStyle(props string) Style {
	var s Style
	for _, decl := range strings.FieldsFunc(props, func(r rune) bool { return r == ',' || r == ';' }) {
		key, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "!important"))
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "fill":
			s.Fill = value
		case "stroke":
			s.Stroke = value
		case "color":
			s.Color = value
		case "stroke-width":
			s.StrokeWidth = value
		case "stroke-dasharray":
			s.StrokeDash = value
		}
	}
	return s
}
