package composer

import (
	"fmt"
	"strings"

	"modelsynth/internal/logging"
	"modelsynth/internal/regex"
)

// Splicer links C translation units at the text level.
type Splicer struct {
	Locator Locator
}

// NewSplicer returns a splicer using l, or the text locator when l is nil.
func NewSplicer(l Locator) *Splicer {
	if l == nil {
		l = TextLocator{}
	}
	return &Splicer{Locator: l}
}

// span is an inclusive range of lines.
type span struct{ start, end int }

// unit is a translation unit split into lines with its functions located.
type unit struct {
	lines []string
	funcs []Func
}

func (s *Splicer) parse(src string) (*unit, error) {
	funcs, err := s.Locator.Functions(src)
	if err != nil {
		return nil, fmt.Errorf("locate functions: %w", err)
	}
	return &unit{lines: strings.Split(src, "\n"), funcs: funcs}, nil
}

// inFunction reports whether line i belongs to a located function.
func (u *unit) inFunction(i int) bool {
	for _, f := range u.funcs {
		if i >= f.Start && i <= f.End {
			return true
		}
	}
	return false
}

// preamble returns the #include lines and typedef statements outside any
// function. A typedef runs until its braces balance and it ends with ';'.
func (u *unit) preamble() []span {
	var out []span
	for i := 0; i < len(u.lines); i++ {
		line := u.lines[i]
		if u.inFunction(i) {
			continue
		}
		switch {
		case strings.HasPrefix(line, "#include"):
			out = append(out, span{i, i})
		case strings.HasPrefix(line, "typedef"):
			end, depth := i, 0
			for ; end < len(u.lines); end++ {
				depth += strings.Count(u.lines[end], "{") - strings.Count(u.lines[end], "}")
				if depth <= 0 && strings.HasSuffix(strings.TrimSpace(u.lines[end]), ";") {
					break
				}
			}
			if end == len(u.lines) {
				end--
			}
			out = append(out, span{i, end})
			i = end
		}
	}
	return out
}

func (u *unit) text(sp span) string {
	return strings.Join(u.lines[sp.start:sp.end+1], "\n")
}

// anchor returns the last line of the last preamble statement before limit,
// or -1.
func (u *unit) anchor(limit int) int {
	last := -1
	for _, sp := range u.preamble() {
		if sp.end < limit {
			last = sp.end
		}
	}
	return last
}

// split separates code into the preamble statements the wrapper lacks and the
// body that follows the last preamble statement.
func split(code, wrapper *unit) (header []string, bodyStart int) {
	have := make(map[string]bool)
	for _, sp := range wrapper.preamble() {
		have[wrapper.text(sp)] = true
	}
	bodyStart = 0
	for _, sp := range code.preamble() {
		t := code.text(sp)
		if !have[t] {
			header = append(header, t)
			have[t] = true
		}
		bodyStart = sp.end + 1
	}
	return header, bodyStart
}

// find locates the site of declaration in u, by signature and then by name.
func (u *unit) find(declaration string) (Func, bool) {
	sig := normalizeSignature(strings.TrimSuffix(strings.TrimSpace(declaration), ";"))
	for _, f := range u.funcs {
		if f.Signature == sig {
			return f, true
		}
	}
	name := functionName(sig)
	for _, f := range u.funcs {
		if name != "" && f.Name == name {
			return f, true
		}
	}
	return Func{}, false
}

func functionName(sig string) string {
	open := strings.IndexByte(sig, '(')
	if open < 0 {
		return ""
	}
	head := strings.TrimRight(sig[:open], " ")
	i := strings.LastIndexAny(head, " *")
	return head[i+1:]
}

// definitions returns the names of the function bodies in u that satisfy
// keep.
func (u *unit) definitions(keep func(Func) bool) map[string]bool {
	out := make(map[string]bool)
	for _, f := range u.funcs {
		if !f.Prototype && keep(f) {
			out[f.Name] = true
		}
	}
	return out
}

// drop marks the bodies of the named functions for removal.
func (u *unit) drop(names map[string]bool, keep []bool, within func(Func) bool) {
	for _, f := range u.funcs {
		if f.Prototype || !names[f.Name] || !within(f) {
			continue
		}
		for i := f.Start; i <= f.End; i++ {
			keep[i] = false
		}
	}
}

// topLevel returns the trimmed lines before limit that are outside every
// function.
func (u *unit) topLevel(limit int) map[string]bool {
	seen := make(map[string]bool)
	for i := 0; i < limit && i < len(u.lines); i++ {
		if !u.inFunction(i) {
			seen[strings.TrimSpace(u.lines[i])] = true
		}
	}
	return seen
}

// body returns the kept lines from start on, without the globals and
// prototypes already declared in seen.
func (u *unit) body(start int, keep []bool, seen map[string]bool) []string {
	var out []string
	for i := start; i < len(u.lines); i++ {
		if !keep[i] {
			continue
		}
		line := strings.TrimSpace(u.lines[i])
		if !u.inFunction(i) && strings.HasSuffix(line, ";") && seen[line] {
			continue
		}
		out = append(out, u.lines[i])
	}
	return trimBlank(out)
}

func allLines(n int) []bool {
	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}
	return keep
}

// Replace substitutes code for the forward declaration of declaration in
// wrapper. Functions code defines that wrapper already defined before the
// site are dropped from code, and functions wrapper defines after the site
// that code also defines are dropped from wrapper, so each name is defined
// once. Preamble statements wrapper lacks are merged into its preamble. A
// missing declaration falls back to Insert.
func (s *Splicer) Replace(wrapper, declaration, code string) (string, error) {
	w, err := s.parse(wrapper)
	if err != nil {
		return "", err
	}
	site, ok := w.find(declaration)
	if !ok {
		logging.Get(logging.CategoryComposer).Warn("declaration %q not found, inserting instead", declaration)
		return s.Insert(wrapper, code)
	}
	cu, err := s.parse(code)
	if err != nil {
		return "", err
	}

	before := w.definitions(func(f Func) bool { return f.End < site.Start })
	keepCode := allLines(len(cu.lines))
	cu.drop(before, keepCode, func(Func) bool { return true })

	provided := cu.definitions(func(f Func) bool { return !before[f.Name] })
	keepWrapper := allLines(len(w.lines))
	w.drop(provided, keepWrapper, func(f Func) bool { return f.Start > site.End })

	header, bodyStart := split(cu, w)
	body := cu.body(bodyStart, keepCode, w.topLevel(site.Start))

	anchor := w.anchor(site.Start)
	var out []string
	if anchor < 0 && len(header) > 0 {
		out = append(out, header...)
		out = append(out, "")
	}
	for i, line := range w.lines {
		if i == site.Start {
			out = append(out, body...)
		}
		if i >= site.Start && i <= site.End {
			continue
		}
		if !keepWrapper[i] {
			continue
		}
		out = append(out, line)
		if i == anchor {
			out = append(out, header...)
		}
	}
	logging.ComposerDebug("replaced %s with %d lines", site.Name, len(body))
	return strings.Join(out, "\n"), nil
}

// Insert places code after the wrapper's preamble. Functions in the wrapper
// that code also defines are removed first.
func (s *Splicer) Insert(wrapper, code string) (string, error) {
	w, err := s.parse(wrapper)
	if err != nil {
		return "", err
	}
	cu, err := s.parse(code)
	if err != nil {
		return "", err
	}
	keepWrapper := allLines(len(w.lines))
	w.drop(cu.definitions(func(Func) bool { return true }), keepWrapper, func(Func) bool { return true })

	header, bodyStart := split(cu, w)
	body := cu.body(bodyStart, allLines(len(cu.lines)), w.topLevel(len(w.lines)))
	insert := append(append([]string(nil), header...), "")
	insert = append(insert, body...)
	insert = append(insert, "")

	anchor := w.anchor(len(w.lines))
	var out []string
	if anchor < 0 {
		out = append(out, insert...)
	}
	for i, line := range w.lines {
		if !keepWrapper[i] {
			continue
		}
		out = append(out, line)
		if i == anchor {
			out = append(out, insert...)
		}
	}
	logging.ComposerDebug("inserted %d lines after line %d", len(body), anchor)
	return strings.Join(out, "\n"), nil
}

// InsertRuntime places the matcher runtime after the last preamble statement
// of src, once.
func (s *Splicer) InsertRuntime(src string) (string, error) {
	if regex.HasRuntime(src) {
		return src, nil
	}
	u, err := s.parse(src)
	if err != nil {
		return "", err
	}
	runtime := strings.Split(strings.TrimRight(regex.Runtime, "\n"), "\n")
	anchor := u.anchor(len(u.lines))
	var out []string
	if anchor < 0 {
		out = append(out, runtime...)
		out = append(out, "")
	}
	for i, line := range u.lines {
		out = append(out, line)
		if i == anchor {
			out = append(out, "")
			out = append(out, runtime...)
		}
	}
	return strings.Join(out, "\n"), nil
}

func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
