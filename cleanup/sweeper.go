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

package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	kerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/fluxcd/artifactory-mirror/download"
	"github.com/fluxcd/artifactory-mirror/logger"
	"github.com/fluxcd/artifactory-mirror/retention"
)

// CleanupError is recorded for every entry the sweep failed to process.
type CleanupError struct {
	Path string
	Op   string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("failed to %s '%s': %v", e.Op, e.Path, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// Summary is the outcome of a sweep.
type Summary struct {
	// DryRun is true when nothing was actually removed.
	DryRun bool

	// Deleted lists the expired files.
	Deleted []string

	// RemovedDirs lists the directories removed because they were empty,
	// deepest first.
	RemovedDirs []string

	// Kept is the number of files that have not expired.
	Kept int

	// FreedBytes is the total size of the deleted files.
	FreedBytes int64

	// Errors holds a *CleanupError per entry that could not be processed.
	Errors []error
}

// Err returns the aggregated errors of the sweep, or nil.
func (s *Summary) Err() error {
	return kerrors.NewAggregate(s.Errors)
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock sets the function used to read the current time.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// WithDryRun makes the sweeper report what it would remove without
// touching the filesystem.
func WithDryRun(dryRun bool) Option {
	return func(s *Sweeper) {
		s.dryRun = dryRun
	}
}

// WithLogger sets the logger used to report removals.
func WithLogger(log logr.Logger) Option {
	return func(s *Sweeper) {
		s.log = log
	}
}

// Sweeper removes expired files from the download directory and prunes
// the directories left empty.
type Sweeper struct {
	root   string
	policy *retention.Policy
	now    func() time.Time
	dryRun bool
	log    logr.Logger
}

// New returns a Sweeper for the given root. The policy must have been
// created for the same root.
func New(root string, policy *retention.Policy, opts ...Option) *Sweeper {
	s := &Sweeper{
		root:   root,
		policy: policy,
		now:    time.Now,
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep walks the root depth first. In every directory, files older than
// the retention resolved for that directory are deleted, the checksum
// manifest is pruned of files that no longer exist, and the directory is
// removed if nothing is left in it. The root itself is never removed.
//
// Symbolic links are neither followed nor deleted. Failures are recorded
// per entry and do not stop the sweep; the returned error aggregates them.
func (s *Sweeper) Sweep(ctx context.Context) (*Summary, error) {
	sum := &Summary{DryRun: s.dryRun}

	info, err := os.Stat(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sum, nil
		}
		sum.Errors = append(sum.Errors, &CleanupError{Path: s.root, Op: "stat", Err: err})
		return sum, sum.Err()
	}
	if !info.IsDir() {
		sum.Errors = append(sum.Errors, &CleanupError{Path: s.root, Op: "sweep", Err: fmt.Errorf("not a directory")})
		return sum, sum.Err()
	}

	s.sweepDir(ctx, s.root, s.now(), sum)
	if err := ctx.Err(); err != nil {
		sum.Errors = append(sum.Errors, err)
	}
	return sum, sum.Err()
}

// sweepDir processes the entries of dir and reports whether dir is, or in
// dry-run mode would be, empty afterwards.
func (s *Sweeper) sweepDir(ctx context.Context, dir string, now time.Time, sum *Summary) bool {
	if ctx.Err() != nil {
		return false
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		sum.Errors = append(sum.Errors, &CleanupError{Path: dir, Op: "read directory", Err: err})
		return false
	}

	keepDays, err := s.policy.Resolve(dir)
	if err != nil {
		sum.Errors = append(sum.Errors, &CleanupError{Path: dir, Op: "resolve retention for", Err: err})
		return false
	}
	ttl := time.Duration(keepDays) * retention.Day

	remaining := 0
	present := make(map[string]bool)
	hasManifest := false
	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		switch {
		case entry.Type()&fs.ModeSymlink != 0:
			s.log.V(logger.DebugLevel).Info("skipping symlink", "path", p)
			present[entry.Name()] = true
			remaining++
		case entry.IsDir():
			if !s.sweepDir(ctx, p, now, sum) || !s.removeDir(p, sum) {
				remaining++
			}
		case download.IsManifestFile(entry.Name()):
			hasManifest = true
		default:
			if !s.sweepFile(p, entry, now, ttl, keepDays, sum) {
				present[entry.Name()] = true
				remaining++
			}
		}
	}

	if hasManifest {
		remaining += s.pruneManifest(dir, present, remaining, sum)
	}
	return remaining == 0
}

// sweepFile deletes the file if it has expired and reports whether it is
// gone.
func (s *Sweeper) sweepFile(p string, entry fs.DirEntry, now time.Time, ttl time.Duration, keepDays int, sum *Summary) bool {
	info, err := entry.Info()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true
		}
		sum.Errors = append(sum.Errors, &CleanupError{Path: p, Op: "stat", Err: err})
		return false
	}

	age := now.Sub(info.ModTime())
	if !Expired(age, ttl) {
		sum.Kept++
		return false
	}

	if !s.dryRun {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			sum.Errors = append(sum.Errors, &CleanupError{Path: p, Op: "delete", Err: err})
			return false
		}
	}
	sum.Deleted = append(sum.Deleted, p)
	sum.FreedBytes += info.Size()
	s.log.Info(s.verb("deleted file"), "path", p,
		"age", age.Truncate(time.Second).String(), "keepDays", keepDays)
	return true
}

// pruneManifest drops the entries of deleted files from the checksum
// manifest of dir and returns how many manifest files remain.
func (s *Sweeper) pruneManifest(dir string, present map[string]bool, remaining int, sum *Summary) int {
	if s.dryRun {
		// Once every file is gone the manifest would be deleted as well.
		if remaining == 0 {
			return 0
		}
		return 1
	}

	m := download.OpenManifest(dir, s.log)
	pruned, err := m.Prune(func(name string) bool { return present[name] })
	if err != nil {
		sum.Errors = append(sum.Errors, &CleanupError{Path: m.Path(), Op: "prune", Err: err})
	}
	if len(pruned) > 0 {
		s.log.V(logger.DebugLevel).Info("pruned checksum manifest", "path", m.Path(), "entries", pruned)
	}

	left := 0
	for _, p := range []string{m.Path(), m.Path() + download.LockSuffix} {
		if _, err := os.Lstat(p); err == nil {
			left++
		}
	}
	return left
}

func (s *Sweeper) removeDir(p string, sum *Summary) bool {
	if !s.dryRun {
		if err := os.Remove(p); err != nil {
			sum.Errors = append(sum.Errors, &CleanupError{Path: p, Op: "remove directory", Err: err})
			return false
		}
	}
	sum.RemovedDirs = append(sum.RemovedDirs, p)
	s.log.Info(s.verb("removed empty directory"), "path", p)
	return true
}

func (s *Sweeper) verb(msg string) string {
	if s.dryRun {
		return "[dry-run] " + msg
	}
	return msg
}

// Expired reports whether a file of the given age exceeds the ttl. A file
// exactly as old as the ttl is kept.
func Expired(age, ttl time.Duration) bool {
	return age > ttl
}

// DiskUsage returns the total size and number of regular files under
// root. A missing root is reported as empty.
func DiskUsage(root string) (int64, int, error) {
	var size int64
	var files int
	var errs []error
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			errs = append(errs, err)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		size += info.Size()
		files++
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	return size, files, kerrors.NewAggregate(errs)
}
