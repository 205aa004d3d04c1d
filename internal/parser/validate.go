package parser

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// invalidConstruct finds the first construct the grammar accepts but Python 3
// rejects, and returns its SyntaxError message. Empty means the tree is valid.
func invalidConstruct(root *sitter.Node) string {
	var msg string
	walk(root, func(n *sitter.Node) bool {
		if msg != "" {
			return false
		}
		if reason := rejectReason(n); reason != "" {
			msg = fmt.Sprintf("SyntaxError: %s at line %d", reason, int(n.StartPoint().Row)+1)
			return false
		}
		return true
	})
	return msg
}

func rejectReason(n *sitter.Node) string {
	switch n.Type() {
	case "print_statement":
		// print >>f, x is still a valid Python 3 expression
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == "chevron" {
				return ""
			}
		}
		return "Missing parentheses in call to 'print'"
	case "exec_statement":
		return "Missing parentheses in call to 'exec'"
	case "expression_statement":
		if first := n.NamedChild(0); first != nil && first.Type() == "named_expression" {
			return "invalid syntax"
		}
	case "for_in_clause":
		if !bareIterableTuple(n) {
			return ""
		}
		if gen := n.Parent(); gen != nil && gen.Type() == "generator_expression" {
			if call := gen.Parent(); call != nil && call.Type() == "call" {
				return "Generator expression must be parenthesized"
			}
		}
		return "invalid syntax"
	case "argument_list":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() == "for_in_clause" || (c.Type() == "generator_expression" && c.Child(0).Type() != "(") {
				return "Generator expression must be parenthesized"
			}
		}
	case "delete_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if deletesCall(n.NamedChild(i)) {
				return "cannot delete function call"
			}
		}
	}
	return ""
}

// bareIterableTuple reports a comma after "in" in a comprehension clause, as
// in f(x for x in y, 1) or [x for x in a, b]
func bareIterableTuple(clause *sitter.Node) bool {
	afterIn := false
	for i := 0; i < int(clause.ChildCount()); i++ {
		c := clause.Child(i)
		switch {
		case c.Type() == "in" && !c.IsNamed():
			afterIn = true
		case afterIn && c.Type() == "," && !c.IsNamed():
			return true
		}
	}
	return false
}

func deletesCall(target *sitter.Node) bool {
	switch target.Type() {
	case "call":
		return true
	case "expression_list", "tuple", "list", "parenthesized_expression":
		for i := 0; i < int(target.NamedChildCount()); i++ {
			if deletesCall(target.NamedChild(i)) {
				return true
			}
		}
	}
	return false
}
