// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package blast

import (
	"path"
	"regexp"
	"strings"
)

// pattern is one compiled critical-path entry.
//
// Matching semantics follow shell fnmatch, not filepath.Match:
//   - * matches any sequence including '/'
//   - ? matches any single character
//   - [abc] and [!abc] are character classes
//
// A path also matches when it starts with the raw pattern text, so
// "src/security/" covers everything below it.
type pattern struct {
	raw string
	re  *regexp.Regexp
}

func compilePattern(raw string) pattern {
	p := pattern{raw: raw}
	// An unbalanced class makes a pattern prefix-only rather than invalid.
	if re, err := regexp.Compile(fnmatchToRegexp(raw)); err == nil {
		p.re = re
	}
	return p
}

// match reports whether the normalized path matches by glob or prefix.
func (p pattern) match(normalized string) bool {
	if p.raw == "" {
		return false
	}
	if p.re != nil && p.re.MatchString(normalized) {
		return true
	}
	return strings.HasPrefix(normalized, p.raw)
}

// fnmatchToRegexp translates an fnmatch pattern into an anchored regexp.
func fnmatchToRegexp(glob string) string {
	var b strings.Builder
	b.WriteString(`^(?s:`)

	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '[':
			j := i + 1
			if j < len(glob) && glob[j] == '!' {
				j++
			}
			if j < len(glob) && glob[j] == ']' {
				j++
			}
			for j < len(glob) && glob[j] != ']' {
				j++
			}
			if j >= len(glob) {
				// No closing bracket: literal '['.
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : j]
			b.WriteByte('[')
			if strings.HasPrefix(class, "!") {
				b.WriteByte('^')
				class = class[1:]
			} else if strings.HasPrefix(class, "^") {
				b.WriteByte('\\')
			}
			b.WriteString(strings.ReplaceAll(class, `\`, `\\`))
			b.WriteByte(']')
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	b.WriteString(`)$`)
	return b.String()
}

// NormalizePath converts a file path to POSIX form with no leading "./".
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if p == "" {
		return p
	}
	trailing := strings.HasSuffix(p, "/")
	p = path.Clean(p)
	if trailing && p != "/" {
		p += "/"
	}
	return p
}
