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

package testserver

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
)

const (
	// APIKeyHeader is the header the server reads API keys from.
	APIKeyHeader = "X-JFrog-Art-Api"

	aqlTimeFormat = "2006-01-02T15:04:05.000Z"
)

// NewTempArtifactoryServer returns an ArtifactoryServer with a newly
// created temp dir as the docroot.
func NewTempArtifactoryServer() (*ArtifactoryServer, error) {
	srv, err := NewTempHTTPServer()
	if err != nil {
		return nil, err
	}
	s := &ArtifactoryServer{
		HTTPServer: srv,
		downloads:  make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/artifactory/api/search/aql", s.handleSearch)
	mux.Handle("/artifactory/", http.StripPrefix("/artifactory", s.countDownloads(http.FileServer(http.Dir(srv.Root())))))
	srv.handler = mux
	return s, nil
}

// ArtifactoryServer is a fake Artifactory for testing purposes. It answers
// AQL item searches from the artifacts added to it, and serves their
// content from the docroot at /artifactory/<repo>/<path>/<name>.
type ArtifactoryServer struct {
	*HTTPServer

	mu           sync.Mutex
	items        []item
	queries      []string
	searchStatus int
	downloads    map[string]int
}

// Artifact describes a file to be served.
type Artifact struct {
	Repo     string
	Path     string
	Name     string
	Body     string
	Modified time.Time

	// SHA256 overrides the checksum advertised in search results, it
	// defaults to the checksum of Body.
	SHA256 string
}

type item struct {
	Repo     string `json:"repo"`
	Path     string `json:"path"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256"`
	Created  string `json:"created"`
	Modified string `json:"modified"`

	modified time.Time
}

// AddArtifact writes the artifact to the docroot and makes it available
// to searches. It returns the actual SHA256 of the body.
func (s *ArtifactoryServer) AddArtifact(a Artifact) (string, error) {
	p := a.Path
	if p == "" {
		p = "."
	}
	filePath := filepath.Join(s.Root(), a.Repo, filepath.FromSlash(p), a.Name)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filePath, []byte(a.Body), 0o644); err != nil {
		return "", err
	}

	sum := fmt.Sprintf("%x", sha256.Sum256([]byte(a.Body)))
	advertised := sum
	if a.SHA256 != "" {
		advertised = a.SHA256
	}
	modified := a.Modified.UTC()
	if modified.IsZero() {
		modified = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item{
		Repo:     a.Repo,
		Path:     p,
		Name:     a.Name,
		Type:     "file",
		Size:     int64(len(a.Body)),
		SHA256:   advertised,
		Created:  modified.Format(aqlTimeFormat),
		Modified: modified.Format(aqlTimeFormat),
		modified: modified,
	})
	return sum, nil
}

// FailSearch makes all following searches fail with the given status
// code. Zero restores normal operation.
func (s *ArtifactoryServer) FailSearch(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchStatus = status
}

// Queries returns the AQL queries received so far.
func (s *ArtifactoryServer) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Downloads returns how many times the artifact at
// <repo>/<path>/<name> was requested.
func (s *ArtifactoryServer) Downloads(fullPath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads[path.Clean("/"+fullPath)]
}

// APIKeyMiddleware rejects requests that don't carry the given API key.
func APIKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(APIKeyHeader) != key {
				http.Error(w, `{"errors":[{"status":401,"message":"Bad credentials"}]}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *ArtifactoryServer) countDownloads(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.downloads[path.Clean(r.URL.Path)]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type criteria struct {
	repo     string
	path     glob.Glob
	since    time.Time
	fileOnly bool
}

func (s *ArtifactoryServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	query := string(body)

	s.mu.Lock()
	s.queries = append(s.queries, query)
	status := s.searchStatus
	items := append([]item(nil), s.items...)
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	c, err := parseQuery(query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	results := make([]item, 0, len(items))
	for _, it := range items {
		if c.repo != "" && it.Repo != c.repo {
			continue
		}
		if c.path != nil && !c.path.Match(it.Path) {
			continue
		}
		if !c.since.IsZero() && it.modified.Before(c.since) {
			continue
		}
		if c.fileOnly && it.Type != "file" {
			continue
		}
		results = append(results, it)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"results": results,
		"range": map[string]int{
			"start_pos": 0,
			"end_pos":   len(results),
			"total":     len(results),
		},
	})
}

// parseQuery extracts the criteria of an items.find() query. Only the
// operators used for mirroring are understood.
func parseQuery(query string) (*criteria, error) {
	const prefix = "items.find("
	start := strings.Index(query, prefix)
	end := strings.LastIndex(query, ").include(")
	if start < 0 || end < start {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}

	var find struct {
		And []map[string]json.RawMessage `json:"$and"`
	}
	if err := json.Unmarshal([]byte(query[start+len(prefix):end]), &find); err != nil {
		return nil, fmt.Errorf("invalid criteria: %w", err)
	}

	c := &criteria{}
	for _, cond := range find.And {
		for field, raw := range cond {
			var err error
			switch field {
			case "repo":
				err = json.Unmarshal(raw, &c.repo)
			case "type":
				var t string
				err = json.Unmarshal(raw, &t)
				c.fileOnly = t == "file"
			case "path":
				var op map[string]string
				if err = json.Unmarshal(raw, &op); err == nil {
					c.path, err = glob.Compile(op["$match"])
				}
			case "modified":
				var op map[string]string
				if err = json.Unmarshal(raw, &op); err == nil {
					c.since, err = time.Parse(aqlTimeFormat, op["$gte"])
				}
			default:
				err = fmt.Errorf("unsupported field %q", field)
			}
			if err != nil {
				return nil, fmt.Errorf("invalid criteria for %s: %w", field, err)
			}
		}
	}
	return c, nil
}
