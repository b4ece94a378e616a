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
	"time"

	kerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/fluxcd/artifactory-mirror/artifactory"
)

// Reason explains the outcome of a selection.
type Reason string

const (
	Selected Reason = "selected"
	NoMask   Reason = "no matching file mask"
	Excluded Reason = "excluded path"
	TooOld   Reason = "older than max artifact age"
)

// Selector decides which artifacts are downloaded.
type Selector struct {
	masks    Matcher
	excludes Matcher
	maxAge   time.Duration
}

// NewSelector compiles the masks and exclude patterns. At least one mask
// is required and maxAgeDays must be positive.
func NewSelector(masks, excludes []string, maxAgeDays int) (*Selector, error) {
	var errs []error
	if len(masks) == 0 {
		errs = append(errs, fmt.Errorf("at least one file mask is required"))
	}
	if maxAgeDays <= 0 {
		errs = append(errs, fmt.Errorf("max artifact age must be positive, got %d", maxAgeDays))
	}
	m, err := Compile(masks)
	if err != nil {
		errs = append(errs, fmt.Errorf("file masks: %w", err))
	}
	e, err := Compile(excludes)
	if err != nil {
		errs = append(errs, fmt.Errorf("exclude paths: %w", err))
	}
	if len(errs) > 0 {
		return nil, kerrors.NewAggregate(errs)
	}
	return &Selector{
		masks:    m,
		excludes: e,
		maxAge:   time.Duration(maxAgeDays) * 24 * time.Hour,
	}, nil
}

// Select reports whether the artifact must be downloaded: its name
// matches a mask, its path matches no exclude pattern, and it was
// modified within the max age. Exclude patterns are evaluated against
// both the repository relative path and the path including the
// repository key.
func (s *Selector) Select(d artifactory.Descriptor, now time.Time) (bool, Reason) {
	if !s.masks.Match(d.Name) {
		return false, NoMask
	}
	if s.excludes.Match(d.RepoPath()) || s.excludes.Match(d.FullPath()) {
		return false, Excluded
	}
	if d.Age(now) > s.maxAge {
		return false, TooOld
	}
	return true, Selected
}
