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
	"path"

	kerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Matcher defines a multi-pattern matcher. A candidate matches as soon as
// one of the patterns does.
type Matcher interface {
	Match(candidate string) bool
}

// NewMatcher constructs a matcher for the given compiled patterns.
// A matcher without patterns never matches.
func NewMatcher(ps []Pattern) Matcher {
	return &matcher{ps}
}

type matcher struct {
	patterns []Pattern
}

func (m *matcher) Match(candidate string) bool {
	for _, p := range m.patterns {
		if p.Match(candidate) {
			return true
		}
	}
	return false
}

// Compile parses all expressions and returns a Matcher for them. All
// invalid expressions are reported at once.
func Compile(exprs []string) (Matcher, error) {
	ps := make([]Pattern, 0, len(exprs))
	var errs []error
	for _, e := range exprs {
		p, err := ParsePattern(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ps = append(ps, p)
	}
	if len(errs) > 0 {
		return nil, kerrors.NewAggregate(errs)
	}
	return NewMatcher(ps), nil
}

// Matches reports whether the file name component of candidatePath
// matches any of the mask patterns. Invalid masks never match.
func Matches(candidatePath string, masks []string) bool {
	name := path.Base(candidatePath)
	for _, m := range masks {
		if p, err := ParsePattern(m); err == nil && p.Match(name) {
			return true
		}
	}
	return false
}

// IsExcluded reports whether the full candidatePath matches any of the
// exclude patterns. Invalid patterns never match.
func IsExcluded(candidatePath string, excludes []string) bool {
	for _, e := range excludes {
		if p, err := ParsePattern(e); err == nil && p.Match(candidatePath) {
			return true
		}
	}
	return false
}
