package parser

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/pyingest/pkg/types"
)

// scope is the immutable class-nesting context threaded through the traversal
type scope struct {
	classPath string // qualified name of the innermost open class, "" at module level
}

func (s scope) inClass() bool {
	return s.classPath != ""
}

func (s scope) qualify(name string) string {
	if s.classPath == "" {
		return name
	}
	return s.classPath + "." + name
}

// extractor collects elements during one parse of one file
type extractor struct {
	src      []byte
	filePath string

	elements []*types.CodeElement
	warnings []string

	imports    []string
	importSeen map[string]struct{}
	qualified  map[string]int
}

func newExtractor(src []byte, filePath string) *extractor {
	return &extractor{
		src:        src,
		filePath:   filePath,
		elements:   make([]*types.CodeElement, 0),
		importSeen: make(map[string]struct{}),
		qualified:  make(map[string]int),
	}
}

// visit dispatches on the node kind
func (e *extractor) visit(n *sitter.Node, sc scope) {
	switch n.Type() {
	case "function_definition":
		e.function(n, n, nil, sc)
	case "class_definition":
		e.class(n, n, nil, sc)
	case "decorated_definition":
		e.decorated(n, sc)
	case "import_statement", "import_from_statement", "future_import_statement":
		e.recordImports(n)
	default:
		e.visitChildren(n, sc)
	}
}

func (e *extractor) visitChildren(n *sitter.Node, sc scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil {
			e.visit(c, sc)
		}
	}
}

// decorated unwraps a decorated_definition; the outer node supplies source and lines
func (e *extractor) decorated(n *sitter.Node, sc scope) {
	def := n.ChildByFieldName("definition")
	if def == nil {
		e.visitChildren(n, sc)
		return
	}

	var decorators []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c != nil && c.Type() == "decorator" {
			decorators = append(decorators, c)
		}
	}

	switch def.Type() {
	case "function_definition":
		e.function(def, n, decorators, sc)
	case "class_definition":
		e.class(def, n, decorators, sc)
	default:
		e.visit(def, sc)
	}
}

func (e *extractor) class(def, outer *sitter.Node, decorators []*sitter.Node, sc scope) {
	name := e.text(def.ChildByFieldName("name"))
	qualified := e.unique(sc.qualify(name))

	bases := e.classBases(def)
	tags := []string{"class"}
	if len(bases) > 0 {
		tags = append(tags, "inheritance")
	}
	deps := bases
	if len(deps) > MaxDependencies {
		deps = deps[:MaxDependencies]
	}

	el := types.NewCodeElement(types.ElementSpec{
		Type:          types.ElementClass,
		Name:          name,
		QualifiedName: qualified,
		SourceText:    e.text(outer),
		Docstring:     e.docstring(def.ChildByFieldName("body")),
		FilePath:      e.filePath,
		LineStart:     int(outer.StartPoint().Row) + 1,
		LineEnd:       int(outer.EndPoint().Row) + 1,
		Complexity:    complexity(def),
		Dependencies:  deps,
		Decorators:    e.decoratorTexts(decorators),
		ParentClass:   sc.classPath,
		Tags:          tags,
		Imports:       e.importSnapshot(),
	})
	e.elements = append(e.elements, el)

	if body := def.ChildByFieldName("body"); body != nil {
		e.visitChildren(body, scope{classPath: qualified})
	}
}

func (e *extractor) function(def, outer *sitter.Node, decorators []*sitter.Node, sc scope) {
	name := e.text(def.ChildByFieldName("name"))
	qualified := e.unique(sc.qualify(name))
	async := isAsync(def)

	kind := types.ElementFunction
	if async {
		kind = types.ElementAsyncFunction
	}
	if sc.inClass() {
		if async {
			kind = types.ElementAsyncMethod
		} else {
			kind = methodKind(decorators, e.src)
		}
	}

	tags := []string{"function"}
	if async {
		tags = append(tags, "async")
	}
	if sc.inClass() {
		tags = append(tags, "method")
	}
	if len(decorators) > 0 {
		tags = append(tags, "decorated")
	}
	if hasYield(def) {
		tags = append(tags, "generator")
	}

	body := def.ChildByFieldName("body")
	el := types.NewCodeElement(types.ElementSpec{
		Type:          kind,
		Name:          name,
		QualifiedName: qualified,
		SourceText:    e.text(outer),
		Docstring:     e.docstring(body),
		Signature:     e.signature(def, name),
		FilePath:      e.filePath,
		LineStart:     int(outer.StartPoint().Row) + 1,
		LineEnd:       int(outer.EndPoint().Row) + 1,
		Complexity:    complexity(def),
		Dependencies:  dependencies(body, e.src),
		Decorators:    e.decoratorTexts(decorators),
		ParentClass:   sc.classPath,
		Tags:          tags,
		Imports:       e.importSnapshot(),
	})
	e.elements = append(e.elements, el)

	// Nested definitions are not emitted, but their imports still feed the context
	if body != nil {
		e.collectNestedImports(body)
	}
}

// moduleElement builds the synthetic Module element covering the whole file
func (e *extractor) moduleElement(root *sitter.Node, name string, totalLines int) *types.CodeElement {
	return types.NewCodeElement(types.ElementSpec{
		Type:          types.ElementModule,
		Name:          name,
		QualifiedName: e.moduleQualifiedName(name),
		SourceText:    string(e.src),
		Docstring:     e.docstring(root),
		FilePath:      e.filePath,
		LineStart:     1,
		LineEnd:       totalLines,
		Complexity:    1,
		Tags:          []string{"module", "top-level"},
		Imports:       e.importSnapshot(),
	})
}

// unique suffixes repeated qualified names (conditional redefinitions) with #N
func (e *extractor) unique(qualified string) string {
	e.qualified[qualified]++
	n := e.qualified[qualified]
	if n == 1 {
		return qualified
	}
	candidate := fmt.Sprintf("%s#%d", qualified, n)
	e.warnings = append(e.warnings, fmt.Sprintf("duplicate definition %s renamed to %s", qualified, candidate))
	e.qualified[candidate]++
	return candidate
}

// moduleQualifiedName names the Module element after the traversal. A stem
// already taken by a definition (main.py defining main) gets the #module
// suffix, which no definition can produce; this is not a duplicate.
func (e *extractor) moduleQualifiedName(stem string) string {
	name := stem
	if e.qualified[stem] > 0 {
		name = stem + "#module"
	}
	e.qualified[name]++
	return name
}

func (e *extractor) classBases(def *sitter.Node) []string {
	args := def.ChildByFieldName("superclasses")
	if args == nil {
		return nil
	}
	var bases []string
	for i := 0; i < int(args.NamedChildCount()); i++ {
		c := args.NamedChild(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "keyword_argument", "dictionary_splat", "comment":
			continue
		}
		bases = append(bases, e.text(c))
	}
	return bases
}

func (e *extractor) decoratorTexts(decorators []*sitter.Node) []string {
	if len(decorators) == 0 {
		return nil
	}
	out := make([]string, 0, len(decorators))
	for _, d := range decorators {
		expr := d.NamedChild(0)
		if expr == nil {
			out = append(out, strings.TrimPrefix(e.text(d), "@"))
			continue
		}
		out = append(out, e.text(expr))
	}
	return out
}

// methodKind classifies a non-async method by bare decorator names
func methodKind(decorators []*sitter.Node, src []byte) types.ElementType {
	for _, d := range decorators {
		expr := d.NamedChild(0)
		if expr == nil || expr.Type() != "identifier" {
			continue
		}
		switch expr.Content(src) {
		case "property":
			return types.ElementProperty
		case "staticmethod":
			return types.ElementStaticMethod
		case "classmethod":
			return types.ElementClassMethod
		}
	}
	return types.ElementMethod
}

func isAsync(def *sitter.Node) bool {
	first := def.Child(0)
	return first != nil && first.Type() == "async"
}

func (e *extractor) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(e.src)
}

// compact collapses internal whitespace of a source fragment
func (e *extractor) compact(n *sitter.Node) string {
	return strings.Join(strings.Fields(e.text(n)), " ")
}
