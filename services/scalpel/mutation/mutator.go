// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mutation

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/lang"
)

// rules describes how to mutate one language.
type rules struct {
	// conditions maps a node type to the field holding its condition.
	conditions map[string]string

	// bareConditions are node types whose condition is their first named
	// child rather than a field (Go's `for cond {}`).
	bareConditions map[string]bool

	negate func(cond string) string

	// nullLiteral replaces non-trivial return values. Empty disables
	// null-return mutations.
	nullLiteral string
	trivial     map[string]bool
}

var languageRules = map[string]rules{
	lang.Python: {
		conditions: map[string]string{
			"if_statement":    "condition",
			"elif_clause":     "condition",
			"while_statement": "condition",
		},
		negate:      func(c string) string { return "not (" + c + ")" },
		nullLiteral: "None",
		trivial:     map[string]bool{"None": true},
	},
	// Go has no universal zero literal, so only conditions are mutated.
	lang.Go: {
		conditions: map[string]string{
			"if_statement": "condition",
			"for_clause":   "condition",
		},
		bareConditions: map[string]bool{"for_statement": true},
		negate:         func(c string) string { return "!(" + c + ")" },
		trivial:        map[string]bool{"nil": true},
	},
}

// Supports reports whether mutations can be generated for language.
func Supports(language string) bool {
	cfg, ok := lang.Get(language)
	if !ok {
		return false
	}
	_, ok = languageRules[cfg.Name]
	return ok
}

// location is the dedup key: the start of the mutated node in the fixed
// code's parse tree.
type location struct {
	row, col uint32
}

// edit replaces source[start:end] with text.
type edit struct {
	typ         Type
	start, end  uint32
	text        string
	description string
	at          sitter.Point
}

// Generator produces AST mutations of source code.
type Generator struct{}

// Generate returns up to limit mutations of source.
//
// Description:
//
//	Walks the parse tree in document order, negating conditions and
//	nulling non-trivial return values. Candidates are deduplicated by the
//	(row, column) of the node they replace. Each candidate is spliced into
//	the original text and re-parsed; candidates that no longer parse are
//	counted in skipped and dropped.
//
// Outputs:
//
//	[]Mutation - Generated mutations, at most limit.
//	int - Candidates dropped because the mutated source failed to parse.
//	error - lang.ErrUnsupportedLanguage or a parser error.
func (Generator) Generate(ctx context.Context, language, source string, limit int) ([]Mutation, int, error) {
	cfg, ok := lang.Get(language)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", lang.ErrUnsupportedLanguage, language)
	}
	r, ok := languageRules[cfg.Name]
	if !ok || limit <= 0 {
		return nil, 0, nil
	}

	src := []byte(source)
	tree, err := cfg.Parse(ctx, src)
	if err != nil {
		return nil, 0, err
	}
	defer tree.Close()

	var edits []edit
	seen := make(map[location]bool)
	add := func(e edit) {
		key := location{e.at.Row, e.at.Column}
		if seen[key] {
			return
		}
		seen[key] = true
		edits = append(edits, e)
	}

	visit(tree.RootNode(), func(n *sitter.Node) {
		if cond := r.condition(n); cond != nil {
			text := cond.Content(src)
			add(edit{
				typ:         TypeNegateCondition,
				start:       cond.StartByte(),
				end:         cond.EndByte(),
				text:        r.negate(text),
				description: fmt.Sprintf("Negate condition `%s` at line %d", shorten(text), cond.StartPoint().Row+1),
				at:          cond.StartPoint(),
			})
			return
		}
		if r.nullLiteral != "" && n.Type() == "return_statement" && n.NamedChildCount() > 0 {
			value := n.NamedChild(0)
			text := value.Content(src)
			if r.trivial[strings.TrimSpace(text)] {
				return
			}
			add(edit{
				typ:         TypeNullReturn,
				start:       value.StartByte(),
				end:         value.EndByte(),
				text:        r.nullLiteral,
				description: fmt.Sprintf("Replace `return %s` with `return %s` at line %d", shorten(text), r.nullLiteral, value.StartPoint().Row+1),
				at:          value.StartPoint(),
			})
		}
	})

	var (
		out     []Mutation
		skipped int
	)
	for _, e := range edits {
		if len(out) >= limit {
			break
		}
		mutated := splice(src, e.start, e.end, e.text)
		broken, err := cfg.HasSyntaxError(ctx, mutated)
		if err != nil || broken {
			skipped++
			continue
		}
		out = append(out, Mutation{
			Type:        e.typ,
			Code:        string(mutated),
			Description: e.description,
			Line:        int(e.at.Row) + 1,
			Column:      int(e.at.Column) + 1,
		})
	}
	return out, skipped, nil
}

// condition returns n's condition node when n is a mutable branch.
func (r rules) condition(n *sitter.Node) *sitter.Node {
	if field, ok := r.conditions[n.Type()]; ok {
		return n.ChildByFieldName(field)
	}
	if r.bareConditions[n.Type()] && n.NamedChildCount() > 0 {
		first := n.NamedChild(0)
		switch first.Type() {
		case "for_clause", "range_clause", "block":
			return nil
		}
		return first
	}
	return nil
}

func splice(src []byte, start, end uint32, text string) []byte {
	out := make([]byte, 0, len(src)-int(end-start)+len(text))
	out = append(out, src[:start]...)
	out = append(out, text...)
	out = append(out, src[end:]...)
	return out
}

func visit(n *sitter.Node, fn func(*sitter.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for i := 0; i < int(n.ChildCount()); i++ {
		visit(n.Child(i), fn)
	}
}

func shorten(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}
