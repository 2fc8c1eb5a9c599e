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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeScalpel/services/scalpel/lang"
)

const pySource = `def classify(x):
    if x > 0:
        return "pos"
    elif x < 0:
        return "neg"
    while False:
        return
    return None
`

const goSource = `package solution

func Sum(xs []int) int {
	total := 0
	for i := 0; i < len(xs); i++ {
		total += xs[i]
	}
	for total > 100 {
		total -= 100
	}
	for {
		break
	}
	if total < 0 {
		return 0
	}
	return total
}
`

func TestGenerate_Python(t *testing.T) {
	muts, skipped, err := Generator{}.Generate(context.Background(), lang.Python, pySource, 10)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, muts, 5)

	wantTypes := []Type{TypeNegateCondition, TypeNullReturn, TypeNegateCondition, TypeNullReturn, TypeNegateCondition}
	wantLines := []int{2, 3, 4, 5, 6}
	for i, m := range muts {
		assert.Equal(t, wantTypes[i], m.Type, "mutation %d", i)
		assert.Equal(t, wantLines[i], m.Line, "mutation %d", i)
		assert.NotEqual(t, pySource, m.Code)
	}

	assert.Contains(t, muts[0].Code, "    if not (x > 0):\n")
	assert.Equal(t, 8, muts[0].Column)
	assert.Contains(t, muts[1].Code, "        return None\n    elif x < 0:")
	assert.Contains(t, muts[2].Code, "    elif not (x < 0):\n")
	assert.Contains(t, muts[4].Code, "    while not (False):\n")
	assert.Contains(t, muts[0].Description, "x > 0")
}

func TestGenerate_PythonSkipsTrivialReturns(t *testing.T) {
	src := "def f():\n    return\n\ndef g():\n    return None\n"
	muts, _, err := Generator{}.Generate(context.Background(), lang.Python, src, 10)
	require.NoError(t, err)
	assert.Empty(t, muts)
}

func TestGenerate_Go(t *testing.T) {
	muts, skipped, err := Generator{}.Generate(context.Background(), lang.Go, goSource, 10)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, muts, 3)

	for _, m := range muts {
		assert.Equal(t, TypeNegateCondition, m.Type)
	}
	assert.Contains(t, muts[0].Code, "for i := 0; !(i < len(xs)); i++ {")
	assert.Contains(t, muts[1].Code, "for !(total > 100) {")
	assert.Contains(t, muts[2].Code, "if !(total < 0) {")
}

func TestGenerate_Limit(t *testing.T) {
	muts, _, err := Generator{}.Generate(context.Background(), lang.Python, pySource, 2)
	require.NoError(t, err)
	assert.Len(t, muts, 2)

	muts, _, err = Generator{}.Generate(context.Background(), lang.Python, pySource, 0)
	require.NoError(t, err)
	assert.Empty(t, muts)
}

func TestGenerate_UnsupportedLanguage(t *testing.T) {
	_, _, err := Generator{}.Generate(context.Background(), "cobol", "IDENTIFICATION DIVISION.", 10)
	assert.ErrorIs(t, err, lang.ErrUnsupportedLanguage)
	assert.False(t, Supports("cobol"))
	assert.True(t, Supports(lang.Python))
	assert.True(t, Supports(lang.Go))
}

func TestSplice(t *testing.T) {
	assert.Equal(t, "if not (x):", string(splice([]byte("if x:"), 3, 4, "not (x)")))
	assert.Equal(t, "abc", string(splice([]byte("abc"), 1, 1, "")))
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "a and b", shorten("a   and\n  b"))
	long := shorten(string(make([]byte, 100)))
	assert.Len(t, long, 60)
}
