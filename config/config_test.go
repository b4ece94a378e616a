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

package config_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/fluxcd/artifactory-mirror/config"
	"github.com/fluxcd/artifactory-mirror/retention"
)

const validJSON = `{
  "artifactory_url": "https://artifactory.example.com",
  "repo": "generic-local",
  "path": "builds/app",
  "file_masks": ["*.tar.gz", "*.zip"],
  "exclude_paths": ["*dirty*"],
  "max_artifact_age_days": 7,
  "download_dir": "mirror",
  "keep_files_days": 14,
  "folder_retention": [
    {"path": "generic-local/builds/app/nightly", "keep_days": 2}
  ],
  "logs_dir": "logs"
}`

const validYAML = `
artifactory_url: https://artifactory.example.com/artifactory/
repo: generic-local
path: /
file_masks:
  - "*.rpm"
max_artifact_age_days: 30
download_dir: /srv/mirror
keep_files_days: 0
http_timeout: 2m
http_retries: 3
max_download_size: 1048576
metrics_file: /var/lib/node-exporter/artifactory-mirror.prom
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_JSON(t *testing.T) {
	g := NewWithT(t)

	p := writeConfig(t, "config.json", validJSON)
	cfg, err := config.Load(p)
	g.Expect(err).ToNot(HaveOccurred())

	dir := filepath.Dir(p)
	g.Expect(cfg.Repo).To(Equal("generic-local"))
	g.Expect(cfg.FileMasks).To(Equal([]string{"*.tar.gz", "*.zip"}))
	g.Expect(cfg.DownloadDir).To(Equal(filepath.Join(dir, "mirror")))
	g.Expect(cfg.LogsDir).To(Equal(filepath.Join(dir, "logs")))
	g.Expect(*cfg.KeepFilesDays).To(Equal(14))
	g.Expect(cfg.FolderRetention).To(Equal([]retention.Rule{
		{Path: "generic-local/builds/app/nightly", KeepDays: 2},
	}))
	g.Expect(cfg.Timeout()).To(Equal(60 * time.Second))
	g.Expect(cfg.HTTPRetries).To(BeZero())

	g.Expect(cfg.Selector()).ToNot(BeNil())
	g.Expect(cfg.Policy()).ToNot(BeNil())
	g.Expect(cfg.Policy().KeepDays("generic-local/builds/app/nightly/42")).To(Equal(2))
	g.Expect(cfg.Policy().KeepDays("generic-local/builds/app")).To(Equal(14))
}

func TestLoad_YAML(t *testing.T) {
	g := NewWithT(t)

	cfg, err := config.Load(writeConfig(t, "config.yaml", validYAML))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(cfg.DownloadDir).To(Equal("/srv/mirror"))
	g.Expect(*cfg.KeepFilesDays).To(BeZero())
	g.Expect(cfg.Timeout()).To(Equal(2 * time.Minute))
	g.Expect(cfg.HTTPRetries).To(Equal(3))
	g.Expect(cfg.MaxDownloadSize).To(Equal(int64(1048576)))
	g.Expect(cfg.MetricsFile).To(Equal("/var/lib/node-exporter/artifactory-mirror.prom"))
}

func TestLoad_Substitution(t *testing.T) {
	g := NewWithT(t)

	t.Setenv("MIRROR_ROOT", "/srv/artifacts")
	t.Setenv("MIRROR_REPO", "libs-release")

	cfg, err := config.Load(writeConfig(t, "config.yaml", `
artifactory_url: https://artifactory.example.com
repo: ${MIRROR_REPO}
path: app
file_masks: ["*.jar"]
max_artifact_age_days: 3
download_dir: ${MIRROR_ROOT}/mirror
keep_files_days: 7
`))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(cfg.Repo).To(Equal("libs-release"))
	g.Expect(cfg.DownloadDir).To(Equal("/srv/artifacts/mirror"))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErrs []string
	}{
		{
			name:     "unknown key",
			content:  `{"artifactory_url": "https://a.example.com", "keep_file_days": 3}`,
			wantErrs: []string{"keep_file_days"},
		},
		{
			name:     "malformed",
			content:  `{"repo": `,
			wantErrs: []string{"invalid configuration"},
		},
		{
			name:    "everything missing",
			content: `{}`,
			wantErrs: []string{
				"'artifactory_url' is required",
				"'repo' is required",
				"'path' is required",
				"'download_dir' is required",
				"at least one file mask is required",
				"max artifact age must be positive",
				"'keep_files_days' is required",
			},
		},
		{
			name: "invalid values",
			content: `{
  "artifactory_url": "artifactory.example.com",
  "repo": "generic-local/builds",
  "path": "app",
  "file_masks": ["*.zip"],
  "max_artifact_age_days": 0,
  "download_dir": "/srv/mirror",
  "keep_files_days": -1,
  "http_retries": -2
}`,
			wantErrs: []string{
				"must be an absolute http(s) URL",
				"must be a repository key",
				"max artifact age must be positive",
				"default keep days must not be negative",
				"'http_retries' must not be negative",
			},
		},
		{
			name: "duplicate folder rules",
			content: `{
  "artifactory_url": "https://artifactory.example.com",
  "repo": "generic-local",
  "path": "app",
  "file_masks": ["*.zip"],
  "max_artifact_age_days": 3,
  "download_dir": "/srv/mirror",
  "keep_files_days": 3,
  "folder_retention": [
    {"path": "generic-local/app", "keep_days": 1},
    {"path": "/srv/mirror/generic-local/app/", "keep_days": 5}
  ]
}`,
			wantErrs: []string{"target the same directory"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			p := writeConfig(t, "config.json", tt.content)
			_, err := config.Load(p)
			g.Expect(err).To(HaveOccurred())

			var cfgErr *config.ConfigError
			g.Expect(errors.As(err, &cfgErr)).To(BeTrue())
			g.Expect(cfgErr.Path).To(Equal(p))
			for _, want := range tt.wantErrs {
				g.Expect(err.Error()).To(ContainSubstring(want))
			}
		})
	}
}

func TestLoad_LocalFilesInsideMirror(t *testing.T) {
	const base = `
artifactory_url: https://artifactory.example.com
repo: %s
path: app
file_masks: ["*.zip"]
max_artifact_age_days: 3
download_dir: %s
keep_files_days: 7
`
	tests := []struct {
		name    string
		repo    string
		dir     string
		extra   string
		wantErr string
	}{
		{
			name: "download dir next to the config",
			repo: "generic-local",
			dir:  ".",
			extra: `logs_dir: logs
metrics_file: mirror.prom`,
		},
		{
			name:    "logs inside the repository mirror",
			repo:    "generic-local",
			dir:     ".",
			extra:   "logs_dir: generic-local/logs",
			wantErr: "logs_dir",
		},
		{
			name:    "metrics file inside the repository mirror",
			repo:    "generic-local",
			dir:     "mirror",
			extra:   "metrics_file: mirror/generic-local/mirror.prom",
			wantErr: "metrics_file",
		},
		{
			name:    "config inside the repository mirror",
			dir:     "..",
			wantErr: "config file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			dir := t.TempDir()
			repo := tt.repo
			if repo == "" {
				repo = filepath.Base(dir)
			}
			p := filepath.Join(dir, "config.yaml")
			content := fmt.Sprintf(base, repo, tt.dir) + tt.extra + "\n"
			g.Expect(os.WriteFile(p, []byte(content), 0o600)).To(Succeed())

			_, err := config.Load(p)
			if tt.wantErr == "" {
				g.Expect(err).ToNot(HaveOccurred())
				return
			}
			var cfgErr *config.ConfigError
			g.Expect(errors.As(err, &cfgErr)).To(BeTrue())
			g.Expect(err.Error()).To(ContainSubstring(tt.wantErr))
			g.Expect(err.Error()).To(ContainSubstring("must not be inside the mirrored directory"))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	g := NewWithT(t)

	_, err := config.Load(filepath.Join(t.TempDir(), "config.json"))
	g.Expect(err).To(HaveOccurred())
	g.Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())
}
