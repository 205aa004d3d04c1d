package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// MaxDependencies caps the dependency list of one element
const MaxDependencies = 10

// branchNodes are the node kinds that add one to cyclomatic complexity
var branchNodes = map[string]bool{
	"if_statement":        true,
	"elif_clause":         true,
	"for_statement":       true, // includes async for
	"while_statement":     true,
	"except_clause":       true,
	"except_group_clause": true,
	"boolean_operator":    true,
}

// complexity is 1 plus the number of branch nodes anywhere in the subtree
func complexity(n *sitter.Node) int {
	score := 1
	walk(n, func(c *sitter.Node) bool {
		if branchNodes[c.Type()] && !chainedBoolean(c) {
			score++
		}
		return true
	})
	return score
}

// chainedBoolean reports a boolean_operator nested in one with the same
// operator. a and b and c is a single boolean operation.
func chainedBoolean(n *sitter.Node) bool {
	if n.Type() != "boolean_operator" {
		return false
	}
	parent := n.Parent()
	if parent == nil || parent.Type() != "boolean_operator" {
		return false
	}
	return booleanOp(parent) == booleanOp(n)
}

func booleanOp(n *sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return op.Type()
	}
	return ""
}

// hasYield reports a yield or yield-from expression at any depth
func hasYield(n *sitter.Node) bool {
	found := false
	walk(n, func(c *sitter.Node) bool {
		if found {
			return false
		}
		if c.IsNamed() && c.Type() == "yield" {
			found = true
			return false
		}
		return true
	})
	return found
}

// walk visits n and its descendants in preorder; fn returning false prunes
func walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), fn)
	}
}

// dependencies returns the first referenced names in the body, in source order
func dependencies(body *sitter.Node, src []byte) []string {
	if body == nil {
		return nil
	}
	c := &depCollector{src: src, seen: make(map[string]struct{})}
	c.collect(body)
	return c.names
}

type depCollector struct {
	src   []byte
	seen  map[string]struct{}
	names []string
}

func (c *depCollector) full() bool {
	return len(c.names) >= MaxDependencies
}

func (c *depCollector) add(name string) {
	if name == "" || name == "self" || name == "cls" || strings.HasPrefix(name, "_") {
		return
	}
	if _, ok := c.seen[name]; ok {
		return
	}
	c.seen[name] = struct{}{}
	c.names = append(c.names, name)
}

func (c *depCollector) collect(n *sitter.Node) {
	if n == nil || c.full() {
		return
	}

	switch n.Type() {
	case "identifier":
		c.add(n.Content(c.src))
		return
	case "attribute":
		// a.b.c references a; member names are not dependencies
		c.collect(n.ChildByFieldName("object"))
		return
	case "keyword_argument":
		c.collect(n.ChildByFieldName("value"))
		return
	case "import_statement", "import_from_statement", "future_import_statement",
		"global_statement", "nonlocal_statement", "parameters", "lambda_parameters":
		return
	case "function_definition", "class_definition":
		name := n.ChildByFieldName("name")
		params := n.ChildByFieldName("parameters")
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if sameNode(child, name) || sameNode(child, params) {
				continue
			}
			c.collect(child)
		}
		return
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		c.collect(n.NamedChild(i))
	}
}

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// signature renders name(params) -> return
func (e *extractor) signature(def *sitter.Node, name string) string {
	var params []string
	if p := def.ChildByFieldName("parameters"); p != nil {
		params = e.parameters(p)
	}

	sig := name + "(" + strings.Join(params, ", ") + ")"
	if ret := def.ChildByFieldName("return_type"); ret != nil {
		sig += " -> " + e.compact(ret)
	}
	return sig
}

func (e *extractor) parameters(params *sitter.Node) []string {
	out := make([]string, 0, params.NamedChildCount())
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p == nil {
			continue
		}
		switch p.Type() {
		case "comment":
			continue
		case "typed_parameter":
			typ := p.ChildByFieldName("type")
			var name string
			for j := 0; j < int(p.NamedChildCount()); j++ {
				if c := p.NamedChild(j); !sameNode(c, typ) {
					name = e.compact(c)
					break
				}
			}
			out = append(out, name+": "+e.compact(typ))
		case "default_parameter":
			out = append(out, e.compact(p.ChildByFieldName("name"))+" = "+e.compact(p.ChildByFieldName("value")))
		case "typed_default_parameter":
			out = append(out, e.compact(p.ChildByFieldName("name"))+": "+
				e.compact(p.ChildByFieldName("type"))+" = "+e.compact(p.ChildByFieldName("value")))
		default:
			// identifier, *args, **kwargs, bare * and / separators
			out = append(out, e.compact(p))
		}
	}
	return out
}

// docstring returns the cleaned first string statement of a block or module
func (e *extractor) docstring(block *sitter.Node) string {
	if block == nil {
		return ""
	}

	var first *sitter.Node
	for i := 0; i < int(block.NamedChildCount()); i++ {
		c := block.NamedChild(i)
		if c != nil && c.Type() != "comment" {
			first = c
			break
		}
	}
	if first == nil || first.Type() != "expression_statement" || first.NamedChildCount() != 1 {
		return ""
	}

	lit := first.NamedChild(0)
	var raw string
	switch lit.Type() {
	case "string":
		s, ok := stringValue(e.text(lit))
		if !ok {
			return ""
		}
		raw = s
	case "concatenated_string":
		var b strings.Builder
		for i := 0; i < int(lit.NamedChildCount()); i++ {
			part := lit.NamedChild(i)
			if part == nil || part.Type() != "string" {
				continue
			}
			s, ok := stringValue(e.text(part))
			if !ok {
				return ""
			}
			b.WriteString(s)
		}
		raw = b.String()
	default:
		return ""
	}

	return cleandoc(raw)
}

// stringValue decodes a Python string literal. Byte strings and f-strings are
// not docstrings and report false.
func stringValue(lit string) (string, bool) {
	i := 0
	for i < len(lit) && lit[i] != '"' && lit[i] != '\'' {
		i++
	}
	prefix := strings.ToLower(lit[:i])
	if strings.ContainsAny(prefix, "bf") {
		return "", false
	}
	body := lit[i:]

	var quote string
	switch {
	case strings.HasPrefix(body, `"""`), strings.HasPrefix(body, `'''`):
		quote = body[:3]
	case len(body) >= 1:
		quote = body[:1]
	default:
		return "", false
	}
	if len(body) < 2*len(quote) || !strings.HasSuffix(body, quote) {
		return "", false
	}
	inner := body[len(quote) : len(body)-len(quote)]

	if strings.Contains(prefix, "r") {
		return inner, true
	}
	return unescape(inner), true
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' || i+1 >= len(s) {
			b.WriteByte(ch)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		case '\'':
			b.WriteByte('\'')
		case '"':
			b.WriteByte('"')
		case '\n':
			// line continuation
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// cleandoc removes the common indentation of docstring lines after the first
// and strips leading and trailing blank lines
func cleandoc(doc string) string {
	lines := strings.Split(expandTabs(doc), "\n")

	margin := -1
	for _, line := range lines[1:] {
		content := strings.TrimLeft(line, " ")
		if content == "" {
			continue
		}
		indent := len(line) - len(content)
		if margin < 0 || indent < margin {
			margin = indent
		}
	}

	lines[0] = strings.TrimLeft(lines[0], " ")
	if margin > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) >= margin {
				lines[i] = lines[i][margin:]
			} else {
				lines[i] = strings.TrimLeft(lines[i], " ")
			}
		}
	}
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}

	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			spaces := 8 - col%8
			b.WriteString(strings.Repeat(" ", spaces))
			col += spaces
		case '\n':
			b.WriteRune(r)
			col = 0
		default:
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}

// recordImports adds the names imported by one statement to the import context
func (e *extractor) recordImports(n *sitter.Node) {
	for _, name := range importNames(n, e.src) {
		if _, ok := e.importSeen[name]; ok {
			continue
		}
		e.importSeen[name] = struct{}{}
		e.imports = append(e.imports, name)
	}
}

func (e *extractor) collectNestedImports(body *sitter.Node) {
	walk(body, func(c *sitter.Node) bool {
		switch c.Type() {
		case "import_statement", "import_from_statement", "future_import_statement":
			e.recordImports(c)
			return false
		}
		return true
	})
}

func (e *extractor) importSnapshot() []string {
	if len(e.imports) == 0 {
		return nil
	}
	out := make([]string, len(e.imports))
	copy(out, e.imports)
	return out
}

// importNames renders `import a.b as c` as a.b and `from m import x` as m.x.
// Relative imports without a module name contribute nothing.
func importNames(n *sitter.Node, src []byte) []string {
	var module string
	var moduleNode *sitter.Node

	switch n.Type() {
	case "import_from_statement":
		moduleNode = n.ChildByFieldName("module_name")
		if moduleNode == nil {
			return nil
		}
		if moduleNode.Type() == "relative_import" {
			for i := 0; i < int(moduleNode.NamedChildCount()); i++ {
				if c := moduleNode.NamedChild(i); c != nil && c.Type() == "dotted_name" {
					module = c.Content(src)
				}
			}
			if module == "" {
				return nil
			}
		} else {
			module = moduleNode.Content(src)
		}
	case "future_import_statement":
		module = "__future__"
	}

	var names []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil || sameNode(c, moduleNode) {
			continue
		}
		var name string
		switch c.Type() {
		case "dotted_name":
			name = c.Content(src)
		case "aliased_import":
			name = c.ChildByFieldName("name").Content(src)
		case "wildcard_import":
			name = "*"
		default:
			continue
		}
		if module != "" {
			name = module + "." + name
		}
		names = append(names, name)
	}
	return names
}
