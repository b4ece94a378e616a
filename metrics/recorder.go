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

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeFound      = "found"
	OutcomeSelected   = "selected"
	OutcomeDownloaded = "downloaded"
	OutcomeSkipped    = "skipped"
	OutcomeFailed     = "failed"
)

// Recorder holds the metrics of a single mirror run. Every run is a
// separate process, so all metrics are gauges describing the last run.
type Recorder struct {
	artifactsGauge   *prometheus.GaugeVec
	cleanupGauge     *prometheus.GaugeVec
	freedBytesGauge  prometheus.Gauge
	diskUsageGauge   *prometheus.GaugeVec
	durationGauge    prometheus.Gauge
	lastRunGauge     prometheus.Gauge
	lastSuccessGauge prometheus.Gauge
}

func NewRecorder() *Recorder {
	return &Recorder{
		artifactsGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "artifactory_mirror_artifacts",
				Help: "The number of artifacts per outcome in the last run.",
			},
			[]string{"outcome"},
		),
		cleanupGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "artifactory_mirror_cleanup_entries",
				Help: "The number of local entries per cleanup action in the last run.",
			},
			[]string{"action"},
		),
		freedBytesGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "artifactory_mirror_cleanup_freed_bytes",
				Help: "The number of bytes freed by the cleanup of the last run.",
			},
		),
		diskUsageGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "artifactory_mirror_disk_usage",
				Help: "The size and file count of the download directory after the last run.",
			},
			[]string{"unit"},
		),
		durationGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "artifactory_mirror_run_duration_seconds",
				Help: "The duration in seconds of the last run.",
			},
		),
		lastRunGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "artifactory_mirror_last_run_timestamp_seconds",
				Help: "The time the last run finished.",
			},
		),
		lastSuccessGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "artifactory_mirror_last_run_success",
				Help: "Whether the last run completed without failures.",
			},
		),
	}
}

func (r *Recorder) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.artifactsGauge,
		r.cleanupGauge,
		r.freedBytesGauge,
		r.diskUsageGauge,
		r.durationGauge,
		r.lastRunGauge,
		r.lastSuccessGauge,
	}
}

func (r *Recorder) RecordArtifacts(outcome string, n int) {
	r.artifactsGauge.WithLabelValues(outcome).Set(float64(n))
}

func (r *Recorder) RecordCleanup(deleted, removedDirs, kept, errors int, freedBytes int64) {
	r.cleanupGauge.WithLabelValues("deleted").Set(float64(deleted))
	r.cleanupGauge.WithLabelValues("removed_dirs").Set(float64(removedDirs))
	r.cleanupGauge.WithLabelValues("kept").Set(float64(kept))
	r.cleanupGauge.WithLabelValues("errors").Set(float64(errors))
	r.freedBytesGauge.Set(float64(freedBytes))
}

func (r *Recorder) RecordDiskUsage(bytes int64, files int) {
	r.diskUsageGauge.WithLabelValues("bytes").Set(float64(bytes))
	r.diskUsageGauge.WithLabelValues("files").Set(float64(files))
}

func (r *Recorder) RecordRun(start, end time.Time, success bool) {
	var value float64
	if success {
		value = 1
	}
	r.durationGauge.Set(end.Sub(start).Seconds())
	r.lastRunGauge.Set(float64(end.Unix()))
	r.lastSuccessGauge.Set(value)
}

// WriteToTextfile writes all metrics to path in the Prometheus text
// format, as read by the node exporter textfile collector. The file is
// replaced atomically.
func (r *Recorder) WriteToTextfile(path string) error {
	reg := prometheus.NewRegistry()
	if err := registerAll(reg, r.Collectors()); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, reg)
}

func registerAll(reg prometheus.Registerer, cs []prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
