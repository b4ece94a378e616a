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

package retention

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	kerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Day is the unit keep days are expressed in.
const Day = 24 * time.Hour

// Rule overrides the retention period for a directory and everything
// below it.
type Rule struct {
	// Path is the directory the rule applies to, relative to the root of
	// the mirror. Absolute paths inside the root are accepted as well.
	Path string `json:"path"`

	// KeepDays is the number of days files may stay in the directory.
	KeepDays int `json:"keep_days"`
}

// Policy resolves the retention period of local directories. The zero
// value is not usable, use NewPolicy.
type Policy struct {
	root            string
	defaultKeepDays int

	// rules are normalised and sorted by descending path length.
	rules []Rule
}

// NewPolicy validates and normalises the rules. Two rules for the same
// directory are rejected, as there would be no way to tell which one is
// more specific.
func NewPolicy(root string, defaultKeepDays int, rules []Rule) (*Policy, error) {
	var errs []error
	if defaultKeepDays < 0 {
		errs = append(errs, fmt.Errorf("default keep days must not be negative, got %d", defaultKeepDays))
	}

	seen := make(map[string]string, len(rules))
	normalised := make([]Rule, 0, len(rules))
	for _, r := range rules {
		p, err := normaliseRulePath(root, r.Path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if r.KeepDays < 0 {
			errs = append(errs, fmt.Errorf("rule '%s': keep days must not be negative, got %d", r.Path, r.KeepDays))
			continue
		}
		if prev, ok := seen[p]; ok {
			errs = append(errs, fmt.Errorf("rules '%s' and '%s' target the same directory", prev, r.Path))
			continue
		}
		seen[p] = r.Path
		normalised = append(normalised, Rule{Path: p, KeepDays: r.KeepDays})
	}
	if len(errs) > 0 {
		return nil, kerrors.NewAggregate(errs)
	}

	sort.SliceStable(normalised, func(i, j int) bool {
		return len(normalised[i].Path) > len(normalised[j].Path)
	})

	return &Policy{
		root:            root,
		defaultKeepDays: defaultKeepDays,
		rules:           normalised,
	}, nil
}

// DefaultKeepDays returns the retention applied when no rule matches.
func (p *Policy) DefaultKeepDays() int {
	return p.defaultKeepDays
}

// Rules returns a copy of the normalised rules, most specific first.
func (p *Policy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// KeepDays returns the retention in days for the given directory,
// relative to the root. The rule with the longest path that equals
// relPath, or is a parent directory of it, wins. Without a matching rule
// the default applies.
func (p *Policy) KeepDays(relPath string) int {
	rel, err := Normalise(relPath)
	if err != nil {
		return p.defaultKeepDays
	}
	for _, r := range p.rules {
		if covers(r.Path, rel) {
			return r.KeepDays
		}
	}
	return p.defaultKeepDays
}

// Resolve returns the retention in days for a local directory, which
// must be inside the root.
func (p *Policy) Resolve(dir string) (int, error) {
	rel, err := filepath.Rel(p.root, dir)
	if err != nil {
		return 0, err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return 0, fmt.Errorf("'%s' is outside of '%s'", dir, p.root)
	}
	return p.KeepDays(rel), nil
}

// Normalise returns the slash separated, cleaned form of a relative
// path, without leading or trailing slashes. The root is "".
func Normalise(p string) (string, error) {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	p = strings.Trim(p, "/")
	if p == "." {
		return "", nil
	}
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("path '%s' escapes the root", p)
	}
	return p, nil
}

func normaliseRulePath(root, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("rule path must not be empty")
	}
	if filepath.IsAbs(p) {
		if root == "" {
			return "", fmt.Errorf("rule '%s': absolute paths need a root", p)
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return "", fmt.Errorf("rule '%s': %w", p, err)
		}
		p = rel
	}
	n, err := Normalise(p)
	if err != nil {
		return "", fmt.Errorf("rule '%s': %w", p, err)
	}
	return n, nil
}

// covers reports whether the rule path is rel itself or one of its
// parent directories. The root rule covers everything.
func covers(rulePath, rel string) bool {
	if rulePath == "" || rulePath == rel {
		return true
	}
	return strings.HasPrefix(rel, rulePath+"/")
}
