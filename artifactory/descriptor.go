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

package artifactory

import (
	"path"
	"time"
)

// Descriptor describes a single artifact returned by an AQL search.
type Descriptor struct {
	// Repo is the Artifactory repository key.
	Repo string `json:"repo"`

	// Path is the directory of the artifact inside the repository,
	// "." for the repository root.
	Path string `json:"path"`

	// Name is the file name of the artifact.
	Name string `json:"name"`

	// Size is the size of the artifact in bytes.
	Size int64 `json:"size"`

	// SHA256 is the lower-case hex encoded SHA256 checksum advertised by
	// Artifactory.
	SHA256 string `json:"sha256"`

	// Created is the time the artifact was first deployed.
	Created time.Time `json:"created"`

	// Modified is the time the artifact content was last changed.
	Modified time.Time `json:"modified"`
}

// RepoPath returns the artifact path relative to its repository, in the
// form of '<path>/<name>'.
func (d Descriptor) RepoPath() string {
	return path.Join(d.Path, d.Name)
}

// FullPath returns the artifact path in the form of '<repo>/<path>/<name>'.
func (d Descriptor) FullPath() string {
	return path.Join(d.Repo, d.Path, d.Name)
}

// Age returns the time elapsed between the last modification of the
// artifact and now.
func (d Descriptor) Age(now time.Time) time.Duration {
	return now.Sub(d.Modified)
}
