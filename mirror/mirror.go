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

package mirror

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/fluxcd/artifactory-mirror/artifactory"
	"github.com/fluxcd/artifactory-mirror/cleanup"
	"github.com/fluxcd/artifactory-mirror/config"
	"github.com/fluxcd/artifactory-mirror/download"
	"github.com/fluxcd/artifactory-mirror/logger"
	"github.com/fluxcd/artifactory-mirror/metrics"
	"github.com/fluxcd/artifactory-mirror/retention"
)

// Option configures a Mirror.
type Option func(*Mirror)

// WithClock sets the function used to read the current time. It drives
// both the max artifact age and the retention of local files.
func WithClock(now func() time.Time) Option {
	return func(m *Mirror) {
		m.now = now
	}
}

// WithDryRun disables downloads and deletions, the run only reports what
// it would do.
func WithDryRun(dryRun bool) Option {
	return func(m *Mirror) {
		m.dryRun = dryRun
	}
}

// WithRecorder records the outcome of every run in the given metrics.
func WithRecorder(rec *metrics.Recorder) Option {
	return func(m *Mirror) {
		m.recorder = rec
	}
}

// Mirror downloads the selected artifacts of a repository path and
// applies the retention policy to the download directory.
type Mirror struct {
	cfg        *config.Config
	searcher   artifactory.Searcher
	downloader *download.Downloader
	log        logr.Logger
	now        func() time.Time
	dryRun     bool
	recorder   *metrics.Recorder
}

// New returns a Mirror for the given configuration. Nothing is written to
// disk before Run.
func New(cfg *config.Config, searcher artifactory.Searcher, fetcher artifactory.Fetcher, log logr.Logger, opts ...Option) (*Mirror, error) {
	if cfg.Selector() == nil || cfg.Policy() == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	m := &Mirror{
		cfg:      cfg,
		searcher: searcher,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	d, err := download.New(cfg.DownloadDir, fetcher,
		download.WithMaxDownloadSize(cfg.MaxDownloadSize),
		download.WithLogger(log.WithName("download")))
	if err != nil {
		return nil, err
	}
	m.downloader = d
	return m, nil
}

// Run queries Artifactory, downloads every selected artifact and sweeps
// the download directory. A failed query is returned as is and nothing
// else happens. Download and cleanup failures don't stop the run, they
// are recorded in the Report.
func (m *Mirror) Run(ctx context.Context) (*Report, error) {
	start := m.now()
	report := &Report{RunID: uuid.NewString()}
	log := m.log.WithValues("run", report.RunID)
	log.Info("run started", "url", m.cfg.ArtifactoryURL, "repo", m.cfg.Repo, "path", m.cfg.Path, "dryRun", m.dryRun)

	since := start.Add(-time.Duration(m.cfg.MaxArtifactAgeDays) * retention.Day)
	artifacts, err := m.searcher.Search(ctx, m.cfg.Repo, m.cfg.Path, since)
	if err != nil {
		log.Error(err, "artifact query failed")
		report.Duration = m.now().Sub(start)
		m.record(report, start)
		return report, err
	}
	report.Found = len(artifacts)
	log.Info("artifact query finished", "found", report.Found, "since", since.UTC().Format(time.RFC3339))

	for _, a := range artifacts {
		m.mirror(ctx, log, a, start, report)
	}

	report.Cleanup = m.sweep(ctx, log, start)
	if size, files, err := cleanup.DiskUsage(m.repoDir()); err != nil {
		log.Error(err, "failed to compute disk usage")
	} else {
		report.DiskUsage = size
		if m.recorder != nil {
			m.recorder.RecordDiskUsage(size, files)
		}
		log.Info("disk usage", "dir", m.repoDir(), "size", humanize.Bytes(uint64(size)), "files", files)
	}

	report.Duration = m.now().Sub(start)
	logSummary(log, report)
	m.record(report, start)
	return report, nil
}

// mirror selects and downloads a single artifact, logging its outcome.
func (m *Mirror) mirror(ctx context.Context, log logr.Logger, a artifactory.Descriptor, now time.Time, report *Report) {
	log = log.WithValues("artifact", a.FullPath())

	ok, reason := m.cfg.Selector().Select(a, now)
	if !ok {
		log.V(logger.DebugLevel).Info("not selected", "reason", string(reason))
		return
	}
	report.Selected++

	if m.dryRun {
		log.Info("[dry-run] would download", "size", humanize.Bytes(uint64(a.Size)))
		return
	}

	res, err := m.downloader.Download(ctx, a)
	var checksumErr *download.ChecksumError
	switch {
	case errors.As(err, &checksumErr):
		report.Failures = append(report.Failures, err)
		log.Error(err, "checksum mismatch", "expected", checksumErr.Expected, "actual", checksumErr.Actual)
	case err != nil:
		report.Failures = append(report.Failures, err)
		log.Error(err, "download failed")
	case res.Skipped:
		report.Skipped++
		log.Info("skipped", "reason", "verified copy exists", "path", res.LocalPath)
	default:
		report.Downloaded++
		log.Info("downloaded", "path", res.LocalPath, "size", humanize.Bytes(uint64(res.Size)), "digest", res.Digest.String())
	}
}

// repoDir is the local mirror of the configured repository. Only this
// directory is swept, anything else in the download directory is left
// alone.
func (m *Mirror) repoDir() string {
	return filepath.Join(m.downloader.Dir(), m.cfg.Repo)
}

func (m *Mirror) sweep(ctx context.Context, log logr.Logger, now time.Time) *cleanup.Summary {
	root := m.repoDir()
	if size, _, err := cleanup.DiskUsage(root); err == nil {
		log.V(logger.DebugLevel).Info("disk usage before cleanup", "dir", root, "size", humanize.Bytes(uint64(size)))
	}

	s := cleanup.New(root, m.cfg.Policy(),
		cleanup.WithClock(func() time.Time { return now }),
		cleanup.WithDryRun(m.dryRun),
		cleanup.WithLogger(log.WithName("cleanup")))
	sum, err := s.Sweep(ctx)
	if err != nil {
		log.Error(err, "cleanup finished with errors", "errors", len(sum.Errors))
	}
	return sum
}

func logSummary(log logr.Logger, r *Report) {
	kv := []any{
		"found", r.Found,
		"selected", r.Selected,
		"downloaded", r.Downloaded,
		"skipped", r.Skipped,
		"failed", len(r.Failures),
		"duration", r.Duration.Round(time.Millisecond).String(),
	}
	if c := r.Cleanup; c != nil {
		kv = append(kv,
			"deleted", len(c.Deleted),
			"removedDirs", len(c.RemovedDirs),
			"freed", humanize.Bytes(uint64(c.FreedBytes)),
			"cleanupErrors", len(c.Errors))
	}
	if r.Failed() {
		log.Error(r.Err(), "run finished with failures", kv...)
		return
	}
	log.Info("run finished", kv...)
}

func (m *Mirror) record(r *Report, start time.Time) {
	if m.recorder == nil {
		return
	}
	m.recorder.RecordArtifacts(metrics.OutcomeFound, r.Found)
	m.recorder.RecordArtifacts(metrics.OutcomeSelected, r.Selected)
	m.recorder.RecordArtifacts(metrics.OutcomeDownloaded, r.Downloaded)
	m.recorder.RecordArtifacts(metrics.OutcomeSkipped, r.Skipped)
	m.recorder.RecordArtifacts(metrics.OutcomeFailed, len(r.Failures))
	if c := r.Cleanup; c != nil {
		m.recorder.RecordCleanup(len(c.Deleted), len(c.RemovedDirs), c.Kept, len(c.Errors), c.FreedBytes)
	}
	success := r.Cleanup != nil && !r.Failed()
	m.recorder.RecordRun(start, start.Add(r.Duration), success)

	if m.cfg.MetricsFile == "" {
		return
	}
	if err := m.recorder.WriteToTextfile(m.cfg.MetricsFile); err != nil {
		m.log.Error(fmt.Errorf("failed to write metrics to '%s': %w", filepath.Clean(m.cfg.MetricsFile), err), "metrics not written")
	}
}
