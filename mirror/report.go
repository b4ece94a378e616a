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
	"time"

	kerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/fluxcd/artifactory-mirror/cleanup"
)

// Report summarises a mirror run.
type Report struct {
	// RunID identifies the run in the log lines it produced.
	RunID string

	// Found is the number of artifacts returned by the query.
	Found int

	// Selected is the number of artifacts that passed the masks, the
	// exclude patterns and the max age.
	Selected int

	// Downloaded is the number of artifacts transferred and verified.
	Downloaded int

	// Skipped is the number of artifacts already present locally.
	Skipped int

	// Failures holds one error per artifact that could not be
	// downloaded.
	Failures []error

	// Cleanup is the outcome of the sweep, nil if it did not run.
	Cleanup *cleanup.Summary

	// DiskUsage is the size in bytes of the mirrored repository
	// directory after the run.
	DiskUsage int64

	Duration time.Duration
}

// Failed reports whether any selected artifact failed to download.
func (r *Report) Failed() bool {
	return len(r.Failures) > 0
}

// Err returns the aggregated download failures, or nil.
func (r *Report) Err() error {
	return kerrors.NewAggregate(r.Failures)
}
