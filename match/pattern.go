/*
Copyright 2026 The Flux authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package match

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/gobwas/glob"
)

// Pattern is a compiled wildcard expression. The grammar knows two
// wildcards: '*' matches any run of characters (including '/') and '?'
// matches exactly one character. Every other character is a literal.
type Pattern struct {
	expr string
	g    glob.Glob
}

// caseInsensitive follows the host filesystem convention.
var caseInsensitive = runtime.GOOS == "windows"

// ParsePattern compiles the given wildcard expression.
func ParsePattern(expr string) (Pattern, error) {
	if strings.TrimSpace(expr) == "" {
		return Pattern{}, fmt.Errorf("empty pattern")
	}
	g, err := glob.Compile(quote(fold(expr)))
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid pattern %q: %w", expr, err)
	}
	return Pattern{expr: expr, g: g}, nil
}

// Match reports whether s matches the pattern in its entirety.
func (p Pattern) Match(s string) bool {
	if p.g == nil {
		return false
	}
	return p.g.Match(fold(s))
}

// String returns the expression the pattern was compiled from.
func (p Pattern) String() string {
	return p.expr
}

// quote escapes everything gobwas/glob treats as syntax, except for the
// two wildcards we support.
func quote(expr string) string {
	var b strings.Builder
	for _, r := range expr {
		switch r {
		case '*', '?':
			b.WriteRune(r)
		default:
			b.WriteString(glob.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

func fold(s string) string {
	if caseInsensitive {
		return strings.ToLower(s)
	}
	return s
}
