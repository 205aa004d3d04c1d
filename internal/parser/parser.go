package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/dshills/pyingest/internal/logging"
	"github.com/dshills/pyingest/pkg/types"
)

const (
	// ModuleStatementThreshold is the number of significant top-level
	// statements that makes a file get a synthetic Module element
	ModuleStatementThreshold = 3

	// DefaultModuleName is used for the Module element when no path is known
	DefaultModuleName = "module"
)

// Parser extracts structural code elements from Python source using tree-sitter.
// It is safe for concurrent use; every call builds its own tree-sitter parser.
type Parser struct {
	logger *logrus.Logger
}

// New creates a new Parser instance. A nil logger discards output.
func New(logger *logrus.Logger) *Parser {
	return &Parser{logger: logging.OrDiscard(logger)}
}

// ParseFile reads and parses a Python file. Read failures are reported in the
// result rather than returned.
func (p *Parser) ParseFile(ctx context.Context, filePath string) *types.ParsingResult {
	start := time.Now()

	content, err := os.ReadFile(filePath)
	if err != nil {
		return &types.ParsingResult{
			FilePath:       filePath,
			Errors:         []string{fmt.Sprintf("failed to read file: %v", err)},
			ProcessingTime: time.Since(start),
		}
	}

	result := p.ParseSource(ctx, content, filePath)
	result.ProcessingTime = time.Since(start)
	return result
}

// ParseSource parses Python source text. Invalid syntax yields Success=false,
// no elements and a SyntaxError message with the offending line.
func (p *Parser) ParseSource(ctx context.Context, src []byte, filePath string) *types.ParsingResult {
	start := time.Now()
	result := &types.ParsingResult{
		FilePath:   filePath,
		Elements:   make([]*types.CodeElement, 0),
		TotalLines: strings.Count(string(src), "\n") + 1,
	}

	tsParser := sitter.NewParser()
	defer tsParser.Close()
	tsParser.SetLanguage(python.GetLanguage())

	tree, err := tsParser.ParseCtx(ctx, nil, src)
	if err != nil {
		result.AddError(fmt.Sprintf("Parsing error: %v", err))
		result.ProcessingTime = time.Since(start)
		return result
	}
	defer tree.Close()

	root := tree.RootNode()
	msg := ""
	if root.HasError() {
		msg = syntaxErrorMessage(root)
	} else {
		msg = invalidConstruct(root)
	}
	if msg != "" {
		result.AddError(msg)
		result.ProcessingTime = time.Since(start)
		p.logger.WithFields(logrus.Fields{
			"file":  displayName(filePath),
			"error": msg,
		}).Warn("Syntax error in source")
		return result
	}

	ex := newExtractor(src, filePath)
	ex.visitChildren(root, scope{})

	elements := ex.elements
	if countSignificantStatements(root) >= ModuleStatementThreshold {
		module := ex.moduleElement(root, moduleName(filePath), result.TotalLines)
		elements = append([]*types.CodeElement{module}, elements...)
	}

	result.Elements = elements
	for _, w := range ex.warnings {
		result.AddWarning(w)
	}
	result.Success = true
	result.ProcessingTime = time.Since(start)

	p.logger.WithFields(logrus.Fields{
		"file":     displayName(filePath),
		"elements": len(result.Elements),
	}).Debug("Parsed source")

	return result
}

// syntaxErrorMessage locates the first error or missing node in preorder
func syntaxErrorMessage(root *sitter.Node) string {
	n := findErrorNode(root)
	if n == nil {
		return "SyntaxError: invalid syntax at line 1"
	}
	line := int(n.StartPoint().Row) + 1
	if n.IsMissing() {
		return fmt.Sprintf("SyntaxError: missing %q at line %d", n.Type(), line)
	}
	return fmt.Sprintf("SyntaxError: invalid syntax at line %d", line)
}

func findErrorNode(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		if c.IsError() || c.IsMissing() || c.HasError() {
			if found := findErrorNode(c); found != nil {
				return found
			}
		}
	}
	return nil
}

// countSignificantStatements counts top-level expression, assignment, if,
// for and while statements, skipping bare string statements
func countSignificantStatements(root *sitter.Node) int {
	count := 0
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		switch stmt.Type() {
		case "expression_statement":
			first := stmt.NamedChild(0)
			if first == nil {
				continue
			}
			switch first.Type() {
			case "string", "concatenated_string", "augmented_assignment":
				continue
			}
			count++
		case "if_statement", "for_statement", "while_statement":
			count++
		}
	}
	return count
}

func moduleName(filePath string) string {
	if filePath == "" {
		return DefaultModuleName
	}
	base := filepath.Base(filePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." {
		return DefaultModuleName
	}
	return stem
}

func displayName(filePath string) string {
	if filePath == "" {
		return "source"
	}
	return filePath
}
