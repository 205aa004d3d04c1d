// Package parser extracts structural code elements from Python source using
// tree-sitter.
//
// # Basic Usage
//
//	p := parser.New(logger)
//	result := p.ParseFile(ctx, "/path/to/module.py")
//	if !result.Success {
//	    log.Println(result.Errors)
//	}
//
//	for _, el := range result.Elements {
//	    fmt.Printf("%s %s (lines %d-%d)\n", el.ElementType, el.QualifiedName, el.LineStart, el.LineEnd)
//	}
//
// # Features
//
// Element extraction includes:
//   - Functions and async functions at any non-function depth
//   - Classes, including nested classes (Outer.Inner)
//   - Methods, properties, static methods, class methods and async methods
//   - Docstrings, signatures with annotations and defaults, decorators
//   - Cyclomatic complexity and the first referenced names of each body
//   - A synthetic Module element for files with top-level logic
//
// Functions nested inside functions are not emitted; their source stays in
// the enclosing element.
//
// # Error Handling
//
// Syntax errors never panic and never return a Go error:
//
//	result := p.ParseSource(ctx, []byte("def broken(:\n"), "broken.py")
//	// result.Success == false
//	// result.Errors[0] == "SyntaxError: invalid syntax at line 1"
//
// ParseDirectory parses every matching file independently, so one broken
// file never stops the rest.
package parser
