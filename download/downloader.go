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

package download

import (
	"context"
	_ "crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/go-logr/logr"
	"github.com/opencontainers/go-digest"

	"github.com/fluxcd/artifactory-mirror/artifactory"
)

// PartSuffix is appended to the destination of a download in progress.
const PartSuffix = ".part"

// Result describes the outcome of a successful Download.
type Result struct {
	// LocalPath is the location of the verified file.
	LocalPath string

	// Skipped is true when a verified copy was already present and
	// nothing was transferred.
	Skipped bool

	// Size is the number of bytes transferred.
	Size int64

	// Digest is the SHA256 of the local file.
	Digest digest.Digest
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithMaxDownloadSize limits the number of bytes accepted per artifact.
// Zero means no limit.
func WithMaxDownloadSize(n int64) Option {
	return func(d *Downloader) {
		d.maxDownloadSize = n
	}
}

// WithLogger sets the logger used for non-fatal conditions.
func WithLogger(log logr.Logger) Option {
	return func(d *Downloader) {
		d.log = log
	}
}

// Downloader stores artifacts under a local directory, mirroring the
// repository layout as <dir>/<repo>/<path>/<name>.
type Downloader struct {
	dir             string
	fetcher         artifactory.Fetcher
	maxDownloadSize int64
	log             logr.Logger
}

// New returns a Downloader writing into dir. The directory is created by
// the first download, not by New.
func New(dir string, fetcher artifactory.Fetcher, opts ...Option) (*Downloader, error) {
	if dir == "" {
		return nil, fmt.Errorf("download directory must not be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	d := &Downloader{
		dir:     abs,
		fetcher: fetcher,
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dir returns the absolute download directory.
func (d *Downloader) Dir() string {
	return d.dir
}

// LocalPath returns the destination of the given artifact. Descriptor
// paths that would resolve outside of the download directory are
// rejected, and so are names reserved for the checksum manifest, its lock
// and in-flight downloads.
func (d *Downloader) LocalPath(a artifactory.Descriptor) (string, error) {
	if a.Repo == "" || a.Name == "" || strings.ContainsAny(a.Name, `/\`) {
		return "", fmt.Errorf("invalid artifact path '%s'", a.FullPath())
	}
	if IsManifestFile(a.Name) || strings.HasSuffix(a.Name, PartSuffix) {
		return "", fmt.Errorf("artifact name '%s' is reserved for local bookkeeping", a.Name)
	}
	rel := a.FullPath()
	if rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return "", fmt.Errorf("artifact path '%s' escapes the download directory", rel)
	}
	return securejoin.SecureJoin(d.dir, filepath.FromSlash(rel))
}

// Download transfers the artifact into the download directory and verifies
// its SHA256 against the advertised checksum. When a file with the
// expected checksum already exists, nothing is transferred.
//
// The content is written to a temporary file next to the destination,
// which is renamed into place only after verification. A checksum
// mismatch removes the temporary file and returns a *ChecksumError; any
// other failure is returned as a *DownloadError.
func (d *Downloader) Download(ctx context.Context, a artifactory.Descriptor) (*Result, error) {
	name := a.FullPath()
	localPath, err := d.LocalPath(a)
	if err != nil {
		return nil, &DownloadError{Artifact: name, Err: err}
	}

	if dig, ok := verified(localPath, a.SHA256); ok {
		return &Result{LocalPath: localPath, Skipped: true, Digest: dig}, nil
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return nil, &DownloadError{Artifact: name, Err: err}
	}

	body, err := d.fetcher.Fetch(ctx, a)
	if err != nil {
		return nil, &DownloadError{Artifact: name, Err: err}
	}
	defer body.Close()

	partPath := localPath + PartSuffix
	n, dig, err := d.writePart(partPath, body)
	if err != nil {
		os.Remove(partPath)
		return nil, &DownloadError{Artifact: name, Err: err}
	}

	expected := strings.ToLower(a.SHA256)
	if dig.Encoded() != expected {
		if err := os.Remove(partPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.log.Error(err, "failed to remove unverified download", "path", partPath)
		}
		return nil, &ChecksumError{Artifact: name, Expected: expected, Actual: dig.Encoded()}
	}

	if err := os.Rename(partPath, localPath); err != nil {
		os.Remove(partPath)
		return nil, &DownloadError{Artifact: name, Err: err}
	}

	if err := OpenManifest(filepath.Dir(localPath), d.log).Set(a.Name, dig.Encoded()); err != nil {
		d.log.Error(err, "failed to record checksum", "path", localPath)
	}

	return &Result{LocalPath: localPath, Size: n, Digest: dig}, nil
}

// writePart copies r into path while computing its digest.
func (d *Downloader) writePart(path string, r io.Reader) (int64, digest.Digest, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, "", err
	}

	digester := digest.SHA256.Digester()
	mw := io.MultiWriter(f, digester.Hash())

	var n int64
	if d.maxDownloadSize > 0 {
		n, err = io.Copy(mw, io.LimitReader(r, d.maxDownloadSize))
		if err == nil {
			// Anything left in the stream means the artifact is too large.
			var extra int64
			extra, err = io.Copy(io.Discard, io.LimitReader(r, 1))
			if err == nil && extra > 0 {
				err = fmt.Errorf("artifact exceeds the max download size of %d bytes", d.maxDownloadSize)
			}
		}
	} else {
		n, err = io.Copy(mw, r)
	}
	if err != nil {
		f.Close()
		return n, "", err
	}
	if err := f.Close(); err != nil {
		return n, "", err
	}
	return n, digester.Digest(), nil
}

// verified reports whether path exists and hashes to the expected SHA256.
func verified(path, expected string) (digest.Digest, bool) {
	if expected == "" {
		return "", false
	}
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()
	dig, err := digest.SHA256.FromReader(f)
	if err != nil {
		return "", false
	}
	return dig, dig.Encoded() == strings.ToLower(expected)
}
