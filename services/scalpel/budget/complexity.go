// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package budget

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/lang"
)

// ComplexityCounter measures source complexity.
type ComplexityCounter interface {
	// Complexity returns the decision-point count of source. Unknown
	// languages and empty sources count zero.
	Complexity(ctx context.Context, language, source string) (int, error)
}

// decisionNodes are the node types that add a branch, per grammar.
var decisionNodes = map[string]map[string]bool{
	lang.Python: {
		"if_statement":           true,
		"elif_clause":            true,
		"for_statement":          true,
		"while_statement":        true,
		"except_clause":          true,
		"case_clause":            true,
		"conditional_expression": true,
		"boolean_operator":       true,
		"for_in_clause":          true,
		"if_clause":              true,
	},
	lang.Go: {
		"if_statement":       true,
		"for_statement":      true,
		"expression_case":    true,
		"type_case":          true,
		"communication_case": true,
	},
}

// TreeSitterCounter counts decision points over a tree-sitter parse.
type TreeSitterCounter struct{}

// Complexity implements ComplexityCounter.
func (TreeSitterCounter) Complexity(ctx context.Context, language, source string) (int, error) {
	if source == "" {
		return 0, nil
	}
	cfg, ok := lang.Get(language)
	if !ok {
		return 0, nil
	}
	tree, err := cfg.Parse(ctx, []byte(source))
	if err != nil {
		return 0, err
	}
	defer tree.Close()

	kinds := decisionNodes[cfg.Name]
	count := 0
	walk(tree.RootNode(), func(n *sitter.Node) {
		if kinds[n.Type()] {
			count++
			return
		}
		// Go has no boolean_operator node; && and || are binary_expressions.
		if cfg.Name == lang.Go && n.Type() == "binary_expression" {
			if op := n.ChildByFieldName("operator"); op != nil {
				if t := op.Type(); t == "&&" || t == "||" {
					count++
				}
			}
		}
	})
	return count, nil
}

func walk(n *sitter.Node, visit func(*sitter.Node)) {
	if n == nil {
		return
	}
	visit(n)
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), visit)
	}
}
