package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ElementType represents the kind of structural unit extracted from source
type ElementType string

const (
	ElementFunction      ElementType = "function"
	ElementAsyncFunction ElementType = "async_function"
	ElementClass         ElementType = "class"
	ElementMethod        ElementType = "method"
	ElementAsyncMethod   ElementType = "async_method"
	ElementProperty      ElementType = "property"
	ElementStaticMethod  ElementType = "staticmethod"
	ElementClassMethod   ElementType = "classmethod"
	ElementModule        ElementType = "module"
)

// IsFunction reports whether the type is a free function
func (t ElementType) IsFunction() bool {
	return t == ElementFunction || t == ElementAsyncFunction
}

// IsMethod reports whether the type is defined inside a class body
func (t ElementType) IsMethod() bool {
	switch t {
	case ElementMethod, ElementAsyncMethod, ElementProperty, ElementStaticMethod, ElementClassMethod:
		return true
	default:
		return false
	}
}

// Validate checks if the element type is known
func (t ElementType) Validate() error {
	switch t {
	case ElementFunction, ElementAsyncFunction, ElementClass, ElementMethod, ElementAsyncMethod,
		ElementProperty, ElementStaticMethod, ElementClassMethod, ElementModule:
		return nil
	default:
		return fmt.Errorf("invalid element type %q", string(t))
	}
}

// CodeElement is one structural unit of Python source code
type CodeElement struct {
	// Identification
	ElementType   ElementType `json:"element_type" yaml:"element_type"`
	Name          string      `json:"name" yaml:"name"`
	QualifiedName string      `json:"qualified_name" yaml:"qualified_name"`

	// Content
	SourceText string `json:"source_text" yaml:"source_text"`
	Docstring  string `json:"docstring,omitempty" yaml:"docstring,omitempty"`
	Signature  string `json:"signature,omitempty" yaml:"signature,omitempty"`

	// Location
	FilePath  string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	LineStart int    `json:"line_start" yaml:"line_start"`
	LineEnd   int    `json:"line_end" yaml:"line_end"`

	// Derived metadata
	Complexity   int      `json:"complexity_score" yaml:"complexity_score"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Decorators   []string `json:"decorators,omitempty" yaml:"decorators,omitempty"`
	ParentClass  string   `json:"parent_class,omitempty" yaml:"parent_class,omitempty"`
	Tags         []string `json:"tags" yaml:"tags"`
	Imports      []string `json:"imports,omitempty" yaml:"imports,omitempty"`

	// ContentHash is a non-cryptographic fingerprint for dedup, not a uniqueness guarantee
	ContentHash string `json:"content_hash" yaml:"content_hash"`
}

// ElementSpec carries the fields needed to build a CodeElement
type ElementSpec struct {
	Type          ElementType
	Name          string
	QualifiedName string
	SourceText    string
	Docstring     string
	Signature     string
	FilePath      string
	LineStart     int
	LineEnd       int
	Complexity    int
	Dependencies  []string
	Decorators    []string
	ParentClass   string
	Tags          []string
	Imports       []string
}

// NewCodeElement builds an element and computes its content hash.
// Tags are deduplicated and sorted; complexity is clamped to at least 1.
func NewCodeElement(spec ElementSpec) *CodeElement {
	complexity := spec.Complexity
	if complexity < 1 {
		complexity = 1
	}

	el := &CodeElement{
		ElementType:   spec.Type,
		Name:          spec.Name,
		QualifiedName: spec.QualifiedName,
		SourceText:    spec.SourceText,
		Docstring:     spec.Docstring,
		Signature:     spec.Signature,
		FilePath:      spec.FilePath,
		LineStart:     spec.LineStart,
		LineEnd:       spec.LineEnd,
		Complexity:    complexity,
		Dependencies:  spec.Dependencies,
		Decorators:    spec.Decorators,
		ParentClass:   spec.ParentClass,
		Tags:          normalizeTags(spec.Tags),
		Imports:       spec.Imports,
	}
	el.ContentHash = ComputeContentHash(el.QualifiedName, el.SourceText)
	return el
}

// ComputeContentHash returns the 16 hex digit xxhash64 of qualified name and source
func ComputeContentHash(qualifiedName, source string) string {
	d := xxhash.New()
	_, _ = d.WriteString(qualifiedName)
	_, _ = d.WriteString(source)
	return fmt.Sprintf("%016x", d.Sum64())
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// HasTag reports whether the element carries the given tag
func (e *CodeElement) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate performs structural validation of the element
func (e *CodeElement) Validate() error {
	if err := e.ElementType.Validate(); err != nil {
		return err
	}
	if e.Name == "" || e.QualifiedName == "" {
		return errors.New("element name and qualified name are required")
	}
	if e.LineStart <= 0 || e.LineEnd <= 0 {
		return errors.New("line numbers must be positive")
	}
	if e.LineStart > e.LineEnd {
		return errors.New("start line must be before or equal to end line")
	}
	if e.Complexity < 1 {
		return errors.New("complexity must be >= 1")
	}
	return nil
}

// SearchableContent renders the element as text for chunking and embedding
func (e *CodeElement) SearchableContent() string {
	parts := []string{fmt.Sprintf("%s: %s", e.ElementType, e.QualifiedName)}

	if e.Signature != "" {
		parts = append(parts, "Signature: "+e.Signature)
	}
	if e.Docstring != "" {
		parts = append(parts, "Documentation: "+e.Docstring)
	}
	if len(e.Decorators) > 0 {
		parts = append(parts, "Decorators: "+strings.Join(e.Decorators, ", "))
	}
	if e.ParentClass != "" {
		parts = append(parts, "Class: "+e.ParentClass)
	}
	if len(e.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(e.Tags, ", "))
	}
	parts = append(parts, "Source Code:\n"+e.SourceText)

	return strings.Join(parts, "\n\n")
}
