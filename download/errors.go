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
	"fmt"
)

// DownloadError is returned when an artifact could not be transferred or
// written, it includes the artifact path and the underlying Err.
type DownloadError struct {
	Artifact string
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download '%s': %v", e.Artifact, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// ChecksumError is returned when the SHA256 computed over the downloaded
// content does not match the checksum advertised by Artifactory. The
// downloaded content has been removed when this error is returned.
type ChecksumError struct {
	Artifact string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("failed to verify '%s': computed checksum '%s' doesn't match advertised '%s'",
		e.Artifact, e.Actual, e.Expected)
}
