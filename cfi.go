package epub

import (
	"cmp"
	"strconv"
	"strings"
)

// StepKind tags the variant held by a Step.
type StepKind uint8

const (
	// StepStructural selects a child node: even indices select elements,
	// odd indices select the text chunks between them.
	StepStructural StepKind = iota

	// StepTerminal is the last step of a path and carries a character,
	// temporal or spatial offset.
	StepTerminal
)

// Side is the side bias of a terminal step (the ";s=" assertion parameter).
type Side uint8

const (
	SideNone Side = iota
	SideBefore
	SideAfter
)

// Step is one step of a CFI path.
type Step struct {
	Kind StepKind

	// Structural fields.
	Index    int
	ID       string // id assertion, "" when absent
	Indirect bool   // preceded by "!"

	// Terminal fields. Offset is -1 when the terminal has no ":" offset.
	Offset      int
	Temporal    float64
	HasTemporal bool
	SpatialX    float64
	SpatialY    float64
	HasSpatial  bool
	TextBefore  string
	TextAfter   string
	Side        Side
}

// ElementStep returns a structural step.
func ElementStep(index int, id string) Step {
	return Step{Kind: StepStructural, Index: index, ID: id}
}

// OffsetStep returns a terminal step at a character offset.
func OffsetStep(offset int, side Side) Step {
	return Step{Kind: StepTerminal, Offset: offset, Side: side}
}

// CFI is a parsed Canonical Fragment Identifier. A point CFI only has
// Parent. A range CFI shares Parent and ends in the local paths Start and End.
type CFI struct {
	Parent []Step
	Start  []Step
	End    []Step
}

// IsRange reports whether c has the two-endpoint form.
func (c CFI) IsRange() bool {
	return len(c.Start) > 0 || len(c.End) > 0
}

// StartPath returns the full path of the start point (the only point of a
// non-range CFI).
func (c CFI) StartPath() []Step {
	return concatSteps(c.Parent, c.Start)
}

// EndPath returns the full path of the end point.
func (c CFI) EndPath() []Step {
	if !c.IsRange() {
		return concatSteps(c.Parent, nil)
	}
	return concatSteps(c.Parent, c.End)
}

// StartPoint returns c collapsed to its start.
func (c CFI) StartPoint() CFI {
	return CFI{Parent: c.StartPath()}
}

// EndPoint returns c collapsed to its end.
func (c CFI) EndPoint() CFI {
	return CFI{Parent: c.EndPath()}
}

func concatSteps(a, b []Step) []Step {
	out := make([]Step, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// Before reports whether c starts before other.
func (c CFI) Before(other CFI) bool {
	return CompareCFI(c, other) < 0
}

// CompareCFI orders two CFIs lexicographically over the steps of their start
// points, then of their end points. A path orders before its extensions and a
// terminal step orders before a structural step at the same depth.
func CompareCFI(a, b CFI) int {
	if c := compareSteps(a.StartPath(), b.StartPath()); c != 0 {
		return c
	}
	return compareSteps(a.EndPath(), b.EndPath())
}

func compareSteps(a, b []Step) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareStep(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

func compareStep(a, b Step) int {
	if a.Kind != b.Kind {
		if a.Kind == StepTerminal {
			return -1
		}
		return 1
	}
	if a.Kind == StepStructural {
		return cmp.Compare(a.Index, b.Index)
	}
	if c := cmp.Compare(max(a.Offset, 0), max(b.Offset, 0)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Temporal, b.Temporal); c != 0 {
		return c
	}
	if c := cmp.Compare(a.SpatialY, b.SpatialY); c != 0 {
		return c
	}
	if c := cmp.Compare(a.SpatialX, b.SpatialX); c != 0 {
		return c
	}
	return cmp.Compare(sideRank(a.Side), sideRank(b.Side))
}

func sideRank(s Side) int {
	switch s {
	case SideBefore:
		return -1
	case SideAfter:
		return 1
	}
	return 0
}

// String returns the canonical textual form, e.g. "epubcfi(/6/4!/4/2,/1:0,/1:10)".
func (c CFI) String() string {
	var sb strings.Builder
	sb.WriteString("epubcfi(")
	writeSteps(&sb, c.Parent)
	if c.IsRange() {
		sb.WriteByte(',')
		writeSteps(&sb, c.Start)
		sb.WriteByte(',')
		writeSteps(&sb, c.End)
	}
	sb.WriteByte(')')
	return sb.String()
}

func writeSteps(sb *strings.Builder, steps []Step) {
	for _, s := range steps {
		if s.Kind == StepStructural {
			if s.Indirect {
				sb.WriteByte('!')
			}
			sb.WriteByte('/')
			sb.WriteString(strconv.Itoa(s.Index))
			if s.ID != "" {
				sb.WriteByte('[')
				sb.WriteString(escapeCFI(s.ID))
				sb.WriteByte(']')
			}
			continue
		}
		if s.Offset >= 0 {
			sb.WriteByte(':')
			sb.WriteString(strconv.Itoa(s.Offset))
		}
		if s.HasTemporal {
			sb.WriteByte('~')
			sb.WriteString(formatCFINumber(s.Temporal))
		}
		if s.HasSpatial {
			sb.WriteByte('@')
			sb.WriteString(formatCFINumber(s.SpatialX))
			sb.WriteByte(':')
			sb.WriteString(formatCFINumber(s.SpatialY))
		}
		if s.TextBefore != "" || s.TextAfter != "" || s.Side != SideNone {
			sb.WriteByte('[')
			sb.WriteString(escapeCFI(s.TextBefore))
			if s.TextAfter != "" {
				sb.WriteByte(',')
				sb.WriteString(escapeCFI(s.TextAfter))
			}
			switch s.Side {
			case SideBefore:
				sb.WriteString(";s=b")
			case SideAfter:
				sb.WriteString(";s=a")
			}
			sb.WriteByte(']')
		}
	}
}

func formatCFINumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// cfiSpecial are the characters escaped with "^" inside assertions.
const cfiSpecial = "^[](),;="

func escapeCFI(s string) string {
	if !strings.ContainsAny(s, cfiSpecial) {
		return s
	}
	var sb strings.Builder
	for _, r := range s {
		if strings.ContainsRune(cfiSpecial, r) {
			sb.WriteByte('^')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ParseCFI parses a CFI in the form "epubcfi(path)" or
// "epubcfi(parent,start,end)". A leading "#" and a bare path without the
// epubcfi wrapper are accepted. Syntax errors are *CFIError values
// matching ErrInvalidCFI.
func ParseCFI(s string) (CFI, error) {
	p := &cfiParser{in: s}
	return p.parse()
}

// MustParseCFI is like ParseCFI but panics on error.
func MustParseCFI(s string) CFI {
	c, err := ParseCFI(s)
	if err != nil {
		panic(err)
	}
	return c
}

type cfiParser struct {
	in  string
	pos int
	end int
}

func (p *cfiParser) fail(reason string) error {
	return &CFIError{Input: p.in, Pos: p.pos, Reason: reason}
}

func (p *cfiParser) peek() byte {
	if p.pos >= p.end {
		return 0
	}
	return p.in[p.pos]
}

func (p *cfiParser) parse() (CFI, error) {
	p.end = len(p.in)
	if strings.HasPrefix(p.in, "#") {
		p.pos++
	}
	if strings.HasPrefix(p.in[p.pos:], "epubcfi(") {
		p.pos += len("epubcfi(")
		if !strings.HasSuffix(p.in, ")") || p.end-1 < p.pos {
			p.pos = p.end
			return CFI{}, p.fail("missing closing parenthesis")
		}
		p.end--
	}
	if p.pos >= p.end {
		return CFI{}, p.fail("empty path")
	}

	var c CFI
	var err error
	if p.peek() != '/' {
		return CFI{}, p.fail("path must start with '/'")
	}
	if c.Parent, err = p.parsePath(); err != nil {
		return CFI{}, err
	}
	if p.pos == p.end {
		return c, nil
	}

	if p.peek() != ',' {
		return CFI{}, p.fail("unexpected character")
	}
	if last := c.Parent[len(c.Parent)-1]; last.Kind == StepTerminal {
		return CFI{}, p.fail("range parent must not end with an offset")
	}
	p.pos++
	if c.Start, err = p.parsePath(); err != nil {
		return CFI{}, err
	}
	if p.peek() != ',' {
		return CFI{}, p.fail("range needs an end path")
	}
	p.pos++
	if c.End, err = p.parsePath(); err != nil {
		return CFI{}, err
	}
	if p.pos != p.end {
		return CFI{}, p.fail("unexpected character after range end")
	}
	return c, nil
}

// parsePath reads structural steps and an optional trailing terminal step,
// stopping before "," or the end of input.
func (p *cfiParser) parsePath() ([]Step, error) {
	var steps []Step
	for p.pos < p.end {
		switch c := p.peek(); c {
		case '!', '/':
			st, err := p.parseStructural()
			if err != nil {
				return nil, err
			}
			steps = append(steps, st)
		case ':', '~', '@':
			st, err := p.parseTerminal()
			if err != nil {
				return nil, err
			}
			steps = append(steps, st)
			if p.pos < p.end && p.peek() != ',' {
				return nil, p.fail("offset must be the last step of a path")
			}
			return steps, nil
		case ',':
			if len(steps) == 0 {
				return nil, p.fail("empty path")
			}
			return steps, nil
		default:
			return nil, p.fail("unexpected character " + strconv.QuoteRune(rune(c)))
		}
	}
	if len(steps) == 0 {
		return nil, p.fail("empty path")
	}
	return steps, nil
}

func (p *cfiParser) parseStructural() (Step, error) {
	st := Step{Kind: StepStructural}
	if p.peek() == '!' {
		st.Indirect = true
		p.pos++
		if p.peek() != '/' {
			return Step{}, p.fail("indirection must be followed by '/'")
		}
	}
	p.pos++ // '/'
	n, err := p.parseInteger()
	if err != nil {
		return Step{}, err
	}
	st.Index = n
	if p.peek() == '[' {
		value, _, err := p.parseAssertion()
		if err != nil {
			return Step{}, err
		}
		st.ID = unescapeCFI(value)
	}
	return st, nil
}

func (p *cfiParser) parseTerminal() (Step, error) {
	st := Step{Kind: StepTerminal, Offset: -1}
	if p.peek() == ':' {
		p.pos++
		n, err := p.parseInteger()
		if err != nil {
			return Step{}, err
		}
		st.Offset = n
	}
	if p.peek() == '~' {
		p.pos++
		f, err := p.parseNumber()
		if err != nil {
			return Step{}, err
		}
		st.Temporal, st.HasTemporal = f, true
	}
	if p.peek() == '@' {
		p.pos++
		x, err := p.parseNumber()
		if err != nil {
			return Step{}, err
		}
		if p.peek() != ':' {
			return Step{}, p.fail("spatial offset needs ':'")
		}
		p.pos++
		y, err := p.parseNumber()
		if err != nil {
			return Step{}, err
		}
		st.SpatialX, st.SpatialY, st.HasSpatial = x, y, true
	}
	if st.Offset < 0 && !st.HasTemporal && !st.HasSpatial {
		return Step{}, p.fail("empty offset")
	}
	if p.peek() == '[' {
		value, params, err := p.parseAssertion()
		if err != nil {
			return Step{}, err
		}
		before, after, _ := splitUnescaped(value, ',')
		st.TextBefore, st.TextAfter = unescapeCFI(before), unescapeCFI(after)
		switch params["s"] {
		case "b":
			st.Side = SideBefore
		case "a":
			st.Side = SideAfter
		case "":
		default:
			return Step{}, p.fail("side bias must be 'a' or 'b'")
		}
	}
	return st, nil
}

// parseInteger reads a non-negative integer without leading zeros.
func (p *cfiParser) parseInteger() (int, error) {
	start := p.pos
	for p.pos < p.end && p.in[p.pos] >= '0' && p.in[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, p.fail("expected integer")
	}
	digits := p.in[start:p.pos]
	if len(digits) > 1 && digits[0] == '0' {
		p.pos = start
		return 0, p.fail("integer has leading zero")
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		p.pos = start
		return 0, p.fail("integer out of range")
	}
	return n, nil
}

// parseNumber reads an integer or a decimal number.
func (p *cfiParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < p.end && (p.in[p.pos] >= '0' && p.in[p.pos] <= '9' || p.in[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, p.fail("expected number")
	}
	f, err := strconv.ParseFloat(p.in[start:p.pos], 64)
	if err != nil {
		p.pos = start
		return 0, p.fail("malformed number")
	}
	return f, nil
}

// parseAssertion reads "[value;k=v;...]". The value is returned still
// escaped so that callers can split it; parameter values are unescaped.
func (p *cfiParser) parseAssertion() (string, map[string]string, error) {
	p.pos++ // '['
	start := p.pos
	for p.pos < p.end {
		switch p.in[p.pos] {
		case '^':
			p.pos += 2
			continue
		case ']':
			body := p.in[start:p.pos]
			p.pos++
			value, rest, _ := splitUnescaped(body, ';')
			params := make(map[string]string)
			for rest != "" {
				var param string
				param, rest, _ = splitUnescaped(rest, ';')
				k, v, _ := strings.Cut(param, "=")
				if k = strings.TrimSpace(k); k != "" {
					params[k] = unescapeCFI(v)
				}
			}
			return value, params, nil
		case '[':
			return "", nil, p.fail("unescaped '[' in assertion")
		}
		p.pos++
	}
	return "", nil, p.fail("unterminated assertion")
}

// splitUnescaped splits s at the first sep not escaped by '^'. Both halves
// are returned raw.
func splitUnescaped(s string, sep byte) (head, tail string, found bool) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '^':
			i++
		case sep:
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func unescapeCFI(s string) string {
	if !strings.Contains(s, "^") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '^' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
