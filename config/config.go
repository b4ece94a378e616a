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

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/drone/envsubst"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	kerrors "k8s.io/apimachinery/pkg/util/errors"
	"sigs.k8s.io/yaml"

	"github.com/fluxcd/artifactory-mirror/artifactory"
	"github.com/fluxcd/artifactory-mirror/match"
	"github.com/fluxcd/artifactory-mirror/retention"
)

// ConfigError is returned when the configuration cannot be read or is
// invalid. It carries every problem found.
type ConfigError struct {
	Path string
	Errs []error
}

func (e *ConfigError) Error() string {
	msg := kerrors.NewAggregate(e.Errs).Error()
	if e.Path == "" {
		return "invalid configuration: " + msg
	}
	return fmt.Sprintf("invalid configuration '%s': %s", e.Path, msg)
}

func (e *ConfigError) Unwrap() []error {
	return e.Errs
}

// Config holds the settings of a mirror run. It is loaded once and not
// modified afterwards.
type Config struct {
	// ArtifactoryURL is the base URL of the Artifactory instance.
	ArtifactoryURL string `json:"artifactory_url"`

	// Repo is the repository key to mirror from.
	Repo string `json:"repo"`

	// Path is the directory inside the repository to search under.
	Path string `json:"path"`

	// FileMasks are wildcard patterns matched against file names. An
	// artifact must match at least one of them.
	FileMasks []string `json:"file_masks"`

	// ExcludePaths are wildcard patterns matched against artifact paths.
	// A matching artifact is never downloaded.
	ExcludePaths []string `json:"exclude_paths,omitempty"`

	// MaxArtifactAgeDays bounds how long ago an artifact may have been
	// modified to be downloaded.
	MaxArtifactAgeDays int `json:"max_artifact_age_days"`

	// DownloadDir is the root of the local mirror. Relative paths are
	// resolved against the directory of the configuration file.
	DownloadDir string `json:"download_dir"`

	// KeepFilesDays is the default retention of downloaded files.
	KeepFilesDays *int `json:"keep_files_days"`

	// FolderRetention overrides KeepFilesDays per directory.
	FolderRetention []retention.Rule `json:"folder_retention,omitempty"`

	// LogsDir enables the rotated log file when set.
	LogsDir string `json:"logs_dir,omitempty"`

	// HTTPTimeout bounds the wait for a response from Artifactory.
	HTTPTimeout *metav1.Duration `json:"http_timeout,omitempty"`

	// HTTPRetries is the number of retries of a failed request.
	HTTPRetries int `json:"http_retries,omitempty"`

	// MaxDownloadSize is the max size in bytes of a single artifact, zero
	// means no limit.
	MaxDownloadSize int64 `json:"max_download_size,omitempty"`

	// MetricsFile is written in the Prometheus text format after every
	// run when set.
	MetricsFile string `json:"metrics_file,omitempty"`

	file     string
	selector *match.Selector
	policy   *retention.Policy
}

// Load reads the JSON or YAML configuration file at path and validates it.
// References to environment variables in the form of ${VAR} are replaced
// before decoding. Unknown keys are rejected. Any problem is returned as a
// *ConfigError.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Errs: []error{err}}
	}

	expanded, err := envsubst.EvalEnv(string(b))
	if err != nil {
		return nil, &ConfigError{Path: path, Errs: []error{fmt.Errorf("variable substitution failed: %w", err)}}
	}

	cfg := &Config{}
	if err := yaml.UnmarshalStrict([]byte(expanded), cfg); err != nil {
		return nil, &ConfigError{Path: path, Errs: []error{err}}
	}
	if cfg.file, err = filepath.Abs(path); err != nil {
		return nil, &ConfigError{Path: path, Errs: []error{err}}
	}

	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		if cfgErr, ok := err.(*ConfigError); ok {
			cfgErr.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.DownloadDir, &c.LogsDir, &c.MetricsFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// Validate checks every setting, compiles the patterns and the retention
// rules, and returns all problems in a single *ConfigError.
func (c *Config) Validate() error {
	var errs []error
	required := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("'%s' is required", key))
		}
	}

	required("artifactory_url", c.ArtifactoryURL)
	if c.ArtifactoryURL != "" {
		if u, err := url.Parse(c.ArtifactoryURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("'artifactory_url' must be an absolute http(s) URL, got '%s'", c.ArtifactoryURL))
		}
	}
	required("repo", c.Repo)
	if strings.ContainsAny(c.Repo, `/\`) {
		errs = append(errs, fmt.Errorf("'repo' must be a repository key, got '%s'", c.Repo))
	}
	required("path", c.Path)
	required("download_dir", c.DownloadDir)

	selector, err := match.NewSelector(c.FileMasks, c.ExcludePaths, c.MaxArtifactAgeDays)
	if err != nil {
		errs = append(errs, err)
	}

	var root string
	if c.DownloadDir != "" {
		if root, err = filepath.Abs(c.DownloadDir); err != nil {
			errs = append(errs, err)
		}
	}

	if c.KeepFilesDays == nil {
		errs = append(errs, fmt.Errorf("'keep_files_days' is required"))
	} else if root != "" {
		policy, err := retention.NewPolicy(root, *c.KeepFilesDays, c.FolderRetention)
		if err != nil {
			errs = append(errs, fmt.Errorf("folder retention: %w", err))
		}
		c.policy = policy
	}

	if root != "" && c.Repo != "" {
		errs = append(errs, c.validateOutside(filepath.Join(root, c.Repo))...)
	}

	if c.HTTPTimeout != nil && c.HTTPTimeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("'http_timeout' must not be negative"))
	}
	if c.HTTPRetries < 0 {
		errs = append(errs, fmt.Errorf("'http_retries' must not be negative"))
	}
	if c.MaxDownloadSize < 0 {
		errs = append(errs, fmt.Errorf("'max_download_size' must not be negative"))
	}

	if len(errs) > 0 {
		return &ConfigError{Errs: kerrors.Flatten(kerrors.NewAggregate(errs)).Errors()}
	}
	c.selector = selector
	return nil
}

// validateOutside rejects local files of the tool that would be swept as
// part of the mirrored repository directory.
func (c *Config) validateOutside(repoDir string) []error {
	var errs []error
	for _, f := range []struct{ key, path string }{
		{"logs_dir", c.LogsDir},
		{"metrics_file", c.MetricsFile},
		{"config file", c.file},
	} {
		if f.path != "" && within(repoDir, f.path) {
			errs = append(errs, fmt.Errorf("%s '%s' must not be inside the mirrored directory '%s'", f.key, f.path, repoDir))
		}
	}
	return errs
}

// within reports whether p is dir or below it.
func within(dir, p string) bool {
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Selector returns the artifact selector compiled by Validate.
func (c *Config) Selector() *match.Selector {
	return c.selector
}

// Policy returns the retention policy compiled by Validate.
func (c *Config) Policy() *retention.Policy {
	return c.policy
}

// Timeout returns the configured HTTP timeout or the default.
func (c *Config) Timeout() time.Duration {
	if c.HTTPTimeout == nil || c.HTTPTimeout.Duration == 0 {
		return artifactory.DefaultTimeout
	}
	return c.HTTPTimeout.Duration
}
