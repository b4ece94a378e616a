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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/gomega"

	"github.com/fluxcd/artifactory-mirror/download"
	"github.com/fluxcd/artifactory-mirror/retention"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// createFile writes a file under root with its mtime set to now minus age.
func createFile(t *testing.T, root, rel string, age time.Duration) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(rel), 0o644); err != nil {
		t.Fatal(err)
	}
	mtime := now.Add(-age)
	if err := os.Chtimes(p, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return p
}

func newSweeper(t *testing.T, root string, defaultKeepDays int, rules []retention.Rule, opts ...Option) *Sweeper {
	t.Helper()
	policy, err := retention.NewPolicy(root, defaultKeepDays, rules)
	if err != nil {
		t.Fatal(err)
	}
	return New(root, policy, append([]Option{WithClock(clock)}, opts...)...)
}

func TestSweep_LongestPrefixRetention(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	nested := createFile(t, root, "a/b/c/app.zip", 8*retention.Day)
	sibling := createFile(t, root, "a/x/app.zip", 8*retention.Day)
	other := createFile(t, root, "z/app.zip", 15*retention.Day)
	prefixOnly := createFile(t, root, "ab/app.zip", 8*retention.Day)

	s := newSweeper(t, root, 14, []retention.Rule{
		{Path: "a/b", KeepDays: 7},
		{Path: "a", KeepDays: 30},
	})

	sum, err := s.Sweep(context.TODO())
	g.Expect(err).ToNot(HaveOccurred())

	g.Expect(nested).ToNot(BeAnExistingFile())
	g.Expect(sibling).To(BeAnExistingFile())
	g.Expect(other).ToNot(BeAnExistingFile())
	g.Expect(prefixOnly).To(BeAnExistingFile())
	g.Expect(sum.Deleted).To(ConsistOf(nested, other))
	g.Expect(sum.Kept).To(Equal(2))
	g.Expect(sum.RemovedDirs).To(ConsistOf(
		filepath.Join(root, "a", "b", "c"),
		filepath.Join(root, "a", "b"),
		filepath.Join(root, "z"),
	))
}

func TestSweep_AgeBoundary(t *testing.T) {
	tests := []struct {
		name        string
		keepDays    int
		age         time.Duration
		wantDeleted bool
	}{
		{name: "younger than keep days", keepDays: 3, age: 2 * retention.Day},
		{name: "exactly keep days", keepDays: 3, age: 3 * retention.Day},
		{name: "one second past keep days", keepDays: 3, age: 3*retention.Day + time.Second, wantDeleted: true},
		{name: "one day past keep days", keepDays: 3, age: 4 * retention.Day, wantDeleted: true},
		{name: "zero keep days", keepDays: 0, age: time.Second, wantDeleted: true},
		{name: "future modification time", keepDays: 0, age: -retention.Day},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			root := t.TempDir()
			p := createFile(t, root, "repo/app.zip", tt.age)

			sum, err := newSweeper(t, root, tt.keepDays, nil).Sweep(context.TODO())
			g.Expect(err).ToNot(HaveOccurred())

			if tt.wantDeleted {
				g.Expect(p).ToNot(BeAnExistingFile())
				g.Expect(sum.Deleted).To(ConsistOf(p))
				return
			}
			g.Expect(p).To(BeAnExistingFile())
			g.Expect(sum.Deleted).To(BeEmpty())
			g.Expect(sum.Kept).To(Equal(1))
		})
	}
}

func TestSweep_Idempotent(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	createFile(t, root, "repo/old/app.zip", 20*retention.Day)
	createFile(t, root, "repo/new/app.zip", retention.Day)

	s := newSweeper(t, root, 14, nil)

	first, err := s.Sweep(context.TODO())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(first.Deleted).To(HaveLen(1))
	g.Expect(first.RemovedDirs).To(HaveLen(1))

	second, err := s.Sweep(context.TODO())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(second.Deleted).To(BeEmpty())
	g.Expect(second.RemovedDirs).To(BeEmpty())
	g.Expect(second.Kept).To(Equal(1))
}

func TestSweep_RemovesEmptyDirectoriesButNotRoot(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	createFile(t, root, "repo/a/b/c/app.zip", 20*retention.Day)
	g.Expect(os.MkdirAll(filepath.Join(root, "repo", "empty", "nested"), 0o755)).To(Succeed())

	sum, err := newSweeper(t, root, 14, nil).Sweep(context.TODO())
	g.Expect(err).ToNot(HaveOccurred())

	g.Expect(sum.RemovedDirs).To(Equal([]string{
		filepath.Join(root, "repo", "a", "b", "c"),
		filepath.Join(root, "repo", "a", "b"),
		filepath.Join(root, "repo", "a"),
		filepath.Join(root, "repo", "empty", "nested"),
		filepath.Join(root, "repo", "empty"),
		filepath.Join(root, "repo"),
	}))
	g.Expect(root).To(BeADirectory())

	entries, err := os.ReadDir(root)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(entries).To(BeEmpty())
}

func TestSweep_PrunesChecksumManifest(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	expired := createFile(t, root, "repo/app/old.zip", 20*retention.Day)
	current := createFile(t, root, "repo/app/new.zip", retention.Day)

	dir := filepath.Dir(expired)
	m := download.OpenManifest(dir, logr.Discard())
	g.Expect(m.Set("old.zip", "aaa")).To(Succeed())
	g.Expect(m.Set("new.zip", "bbb")).To(Succeed())

	s := newSweeper(t, root, 14, nil)
	_, err := s.Sweep(context.TODO())
	g.Expect(err).ToNot(HaveOccurred())

	g.Expect(current).To(BeAnExistingFile())
	entries, err := m.Entries()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(entries).To(Equal(map[string]string{"new.zip": "bbb"}))

	// Once the last file expires, the manifest goes with the directory.
	later := now.Add(30 * retention.Day)
	s = New(root, s.policy, WithClock(func() time.Time { return later }))
	sum, err := s.Sweep(context.TODO())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(sum.Deleted).To(ConsistOf(current))
	g.Expect(dir).ToNot(BeADirectory())
	g.Expect(filepath.Join(root, "repo")).ToNot(BeADirectory())
}

func TestSweep_SkipsSymlinks(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	outside := t.TempDir()
	target := createFile(t, outside, "target.zip", 20*retention.Day)

	link := filepath.Join(root, "repo", "link.zip")
	g.Expect(os.MkdirAll(filepath.Dir(link), 0o755)).To(Succeed())
	g.Expect(os.Symlink(target, link)).To(Succeed())
	g.Expect(os.Symlink(outside, filepath.Join(root, "repo", "linked-dir"))).To(Succeed())

	sum, err := newSweeper(t, root, 0, nil).Sweep(context.TODO())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(sum.Deleted).To(BeEmpty())
	g.Expect(sum.RemovedDirs).To(BeEmpty())

	_, err = os.Lstat(link)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(target).To(BeAnExistingFile())
}

func TestSweep_DryRun(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	old := createFile(t, root, "repo/a/b/app.zip", 20*retention.Day)
	m := download.OpenManifest(filepath.Dir(old), logr.Discard())
	g.Expect(m.Set("app.zip", "aaa")).To(Succeed())

	sum, err := newSweeper(t, root, 14, nil, WithDryRun(true)).Sweep(context.TODO())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(sum.DryRun).To(BeTrue())
	g.Expect(sum.Deleted).To(ConsistOf(old))
	g.Expect(sum.FreedBytes).To(Equal(int64(len("repo/a/b/app.zip"))))
	g.Expect(sum.RemovedDirs).To(Equal([]string{
		filepath.Join(root, "repo", "a", "b"),
		filepath.Join(root, "repo", "a"),
		filepath.Join(root, "repo"),
	}))

	g.Expect(old).To(BeAnExistingFile())
	g.Expect(m.Path()).To(BeAnExistingFile())
}

func TestSweep_MissingRoot(t *testing.T) {
	g := NewWithT(t)

	root := filepath.Join(t.TempDir(), "missing")
	sum, err := newSweeper(t, root, 14, nil).Sweep(context.TODO())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(sum.Deleted).To(BeEmpty())
	g.Expect(root).ToNot(BeADirectory())
}

func TestSweep_Cancelled(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	p := createFile(t, root, "repo/app.zip", 20*retention.Day)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSweeper(t, root, 14, nil).Sweep(ctx)
	g.Expect(err).To(MatchError(ContainSubstring("context canceled")))
	g.Expect(p).To(BeAnExistingFile())
}

func TestDiskUsage(t *testing.T) {
	g := NewWithT(t)

	root := t.TempDir()
	createFile(t, root, "a/one", 0)
	createFile(t, root, "a/b/three", 0)

	size, files, err := DiskUsage(root)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(files).To(Equal(2))
	g.Expect(size).To(Equal(int64(len("a/one") + len("a/b/three"))))

	size, files, err = DiskUsage(filepath.Join(root, "missing"))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(size).To(BeZero())
	g.Expect(files).To(BeZero())
}

func TestExpired(t *testing.T) {
	g := NewWithT(t)

	g.Expect(Expired(retention.Day, retention.Day)).To(BeFalse())
	g.Expect(Expired(retention.Day+time.Nanosecond, retention.Day)).To(BeTrue())
	g.Expect(Expired(-time.Hour, 0)).To(BeFalse())
}
