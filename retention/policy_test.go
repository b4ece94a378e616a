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
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"
)

func TestPolicy_KeepDays(t *testing.T) {
	policy, err := NewPolicy("", 14, []Rule{
		{Path: "a", KeepDays: 30},
		{Path: "a/b", KeepDays: 7},
		{Path: "libs-release/app/nightly/", KeepDays: 2},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want int
	}{
		{path: "a/b/c", want: 7},
		{path: "a/b", want: 7},
		{path: "a/x", want: 30},
		{path: "a", want: 30},
		{path: "z", want: 14},
		{path: "ab/x", want: 14},
		{path: "a/bc", want: 30},
		{path: "", want: 14},
		{path: "./a//b/../b/c", want: 7},
		{path: "libs-release/app/nightly/2026-01-01", want: 2},
		{path: "libs-release/app", want: 14},
		{path: "../a/b", want: 14},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			g := NewWithT(t)
			g.Expect(policy.KeepDays(tt.path)).To(Equal(tt.want))
		})
	}
}

func TestPolicy_RootRule(t *testing.T) {
	g := NewWithT(t)

	policy, err := NewPolicy("", 14, []Rule{
		{Path: ".", KeepDays: 60},
		{Path: "a", KeepDays: 1},
	})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(policy.KeepDays("z")).To(Equal(60))
	g.Expect(policy.KeepDays("")).To(Equal(60))
	g.Expect(policy.KeepDays("a/b")).To(Equal(1))
}

func TestPolicy_Resolve(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	policy, err := NewPolicy(root, 14, []Rule{
		{Path: "repo/a", KeepDays: 30},
		{Path: filepath.Join(root, "repo", "a", "b"), KeepDays: 7},
	})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(policy.Rules()).To(Equal([]Rule{
		{Path: "repo/a/b", KeepDays: 7},
		{Path: "repo/a", KeepDays: 30},
	}))

	days, err := policy.Resolve(filepath.Join(root, "repo", "a", "b", "c"))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(days).To(Equal(7))

	days, err = policy.Resolve(root)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(days).To(Equal(14))

	_, err = policy.Resolve(filepath.Dir(root))
	g.Expect(err).To(HaveOccurred())
}

func TestNewPolicy_Invalid(t *testing.T) {
	tests := []struct {
		name            string
		root            string
		defaultKeepDays int
		rules           []Rule
		wantErr         string
	}{
		{
			name:            "negative default",
			defaultKeepDays: -1,
			wantErr:         "default keep days must not be negative",
		},
		{
			name:    "negative rule",
			rules:   []Rule{{Path: "a", KeepDays: -3}},
			wantErr: "keep days must not be negative",
		},
		{
			name:    "empty path",
			rules:   []Rule{{Path: " ", KeepDays: 3}},
			wantErr: "rule path must not be empty",
		},
		{
			name:    "escaping path",
			rules:   []Rule{{Path: "a/../../b", KeepDays: 3}},
			wantErr: "escapes the root",
		},
		{
			name: "same directory",
			rules: []Rule{
				{Path: "a/b", KeepDays: 3},
				{Path: "a/b/", KeepDays: 5},
			},
			wantErr: "target the same directory",
		},
		{
			name: "same directory after cleaning",
			rules: []Rule{
				{Path: "a/b", KeepDays: 3},
				{Path: "./a/c/../b", KeepDays: 3},
			},
			wantErr: "target the same directory",
		},
		{
			name:    "absolute path outside root",
			root:    "/srv/mirror",
			rules:   []Rule{{Path: "/srv/other", KeepDays: 3}},
			wantErr: "escapes the root",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			_, err := NewPolicy(tt.root, tt.defaultKeepDays, tt.rules)
			g.Expect(err).To(HaveOccurred())
			g.Expect(err.Error()).To(ContainSubstring(tt.wantErr))
		})
	}
}

func TestNormalise(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ""},
		{in: ".", want: ""},
		{in: "/", want: ""},
		{in: "a/b/", want: "a/b"},
		{in: `a\b`, want: "a/b"},
		{in: "a/./b//c", want: "a/b/c"},
		{in: "..", wantErr: true},
		{in: "a/../../b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			g := NewWithT(t)

			got, err := Normalise(tt.in)
			if tt.wantErr {
				g.Expect(err).To(HaveOccurred())
				return
			}
			g.Expect(err).ToNot(HaveOccurred())
			g.Expect(got).To(Equal(tt.want))
		})
	}
}
