package composer

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// Func is a top-level function definition or prototype found in C source.
// Lines are 0-based and End is inclusive.
type Func struct {
	Name      string
	Signature string // normalized header, without the body or semicolon
	Start     int
	End       int
	Prototype bool
}

// Locator finds the top-level functions of a C translation unit.
type Locator interface {
	Functions(src string) ([]Func, error)
}

// LocatorFor returns the locator registered under name: "text" or
// "treesitter". Unknown names fall back to the text locator.
func LocatorFor(name string) Locator {
	if name == "treesitter" {
		return NewTreeSitterLocator()
	}
	return TextLocator{}
}

var headerPattern = regexp.MustCompile(`^([A-Za-z_][\w\s\*]*?[\s\*])([A-Za-z_]\w*)\s*\(([^)]*)\)\s*(.*)$`)

// TextLocator scans lines. A header must start in column 0 and fit on one
// line; a body runs to the next line that starts with a closing brace.
type TextLocator struct{}

func (TextLocator) Functions(src string) ([]Func, error) {
	lines := strings.Split(src, "\n")
	var out []Func
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if line == "" || line[0] == ' ' || line[0] == '\t' || line[0] == '#' || line[0] == '/' ||
			strings.HasPrefix(line, "typedef") {
			continue
		}
		m := headerPattern.FindStringSubmatch(strings.TrimRight(line, " \t\r"))
		if m == nil {
			continue
		}
		head := strings.TrimSpace(m[1]) + " " + m[2] + "(" + m[3] + ")"
		f := Func{Name: m[2], Signature: normalizeSignature(head), Start: i}
		rest := strings.TrimSpace(m[4])
		switch {
		case rest == ";":
			f.Prototype = true
			f.End = i
		case strings.HasPrefix(rest, "{"):
			if strings.Count(rest, "{") == strings.Count(rest, "}") {
				f.End = i
				break
			}
			f.End = closingLine(lines, i+1)
		case rest == "" && i+1 < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i+1]), "{"):
			f.End = closingLine(lines, i+2)
		default:
			continue
		}
		out = append(out, f)
		i = f.End
	}
	return out, nil
}

// closingLine returns the first line from start on that begins with "}", or
// the last line.
func closingLine(lines []string, start int) int {
	for j := start; j < len(lines); j++ {
		if strings.HasPrefix(lines[j], "}") {
			return j
		}
	}
	return len(lines) - 1
}

// TreeSitterLocator parses the source with the tree-sitter C grammar, which
// also handles headers split over several lines.
// It is safe for concurrent use: every call gets its own parser.
type TreeSitterLocator struct{}

// NewTreeSitterLocator creates a locator.
func NewTreeSitterLocator() *TreeSitterLocator {
	return &TreeSitterLocator{}
}

func (l *TreeSitterLocator) Functions(src string) ([]Func, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(c.GetLanguage())

	content := []byte(src)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	getText := func(from, to uint32) string { return string(content[from:to]) }

	root := tree.RootNode()
	var out []Func
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "function_definition":
			decl := functionDeclarator(node.ChildByFieldName("declarator"))
			body := node.ChildByFieldName("body")
			if decl == nil || body == nil {
				continue
			}
			out = append(out, Func{
				Name:      declaratorName(decl, content),
				Signature: normalizeSignature(getText(node.StartByte(), body.StartByte())),
				Start:     int(node.StartPoint().Row),
				End:       int(node.EndPoint().Row),
			})
		case "declaration":
			decl := functionDeclarator(node.ChildByFieldName("declarator"))
			if decl == nil {
				continue
			}
			text := strings.TrimSuffix(strings.TrimSpace(getText(node.StartByte(), node.EndByte())), ";")
			out = append(out, Func{
				Name:      declaratorName(decl, content),
				Signature: normalizeSignature(text),
				Start:     int(node.StartPoint().Row),
				End:       int(node.EndPoint().Row),
				Prototype: true,
			})
		}
	}
	return out, nil
}

// functionDeclarator unwraps pointer declarators down to the function
// declarator, or returns nil when n declares something else.
func functionDeclarator(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "function_declarator":
			return n
		case "pointer_declarator":
			n = n.ChildByFieldName("declarator")
		default:
			return nil
		}
	}
	return nil
}

func declaratorName(decl *sitter.Node, content []byte) string {
	if id := decl.ChildByFieldName("declarator"); id != nil {
		return id.Content(content)
	}
	return ""
}

var (
	spaceRun    = regexp.MustCompile(`\s+`)
	punctSpaces = regexp.MustCompile(`\s*([*(),])\s*`)
)

// normalizeSignature collapses whitespace so that "Point *p" and "Point* p"
// compare equal.
func normalizeSignature(s string) string {
	s = spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	return punctSpaces.ReplaceAllString(s, "$1")
}
