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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// TimeFormat is the timestamp layout AQL expects in comparisons.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// includedFields are the item fields requested from AQL.
var includedFields = []string{"repo", "path", "name", "size", "sha256", "created", "modified"}

// BuildQuery returns an AQL query for all files in repo, under path, that
// were modified at or after since.
func BuildQuery(repo, path string, since time.Time) string {
	pathMatch := strings.Trim(path, "/") + "*"
	criteria := map[string]any{
		"$and": []any{
			map[string]any{"repo": repo},
			map[string]any{"path": map[string]any{"$match": pathMatch}},
			map[string]any{"modified": map[string]any{"$gte": since.UTC().Format(TimeFormat)}},
			map[string]any{"type": "file"},
		},
	}
	// Marshalling a map of strings cannot fail.
	find, _ := json.Marshal(criteria)

	fields := make([]string, 0, len(includedFields))
	for _, f := range includedFields {
		fields = append(fields, fmt.Sprintf("%q", f))
	}
	return fmt.Sprintf("items.find(%s).include(%s)", find, strings.Join(fields, ","))
}

// ErrMalformedResponse is returned when the AQL response can't be decoded
// into artifact descriptors.
var ErrMalformedResponse = errors.New("malformed AQL response")

type aqlResponse struct {
	Results *[]aqlItem `json:"results"`
}

type aqlItem struct {
	Repo     string `json:"repo"`
	Path     string `json:"path"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256"`
	Created  string `json:"created"`
	Modified string `json:"modified"`
}

// ParseResults decodes an AQL search response into descriptors. The order
// of the returned descriptors is the order of the response and carries no
// meaning.
func ParseResults(r io.Reader) ([]Descriptor, error) {
	var resp aqlResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.Results == nil {
		return nil, fmt.Errorf("%w: missing results", ErrMalformedResponse)
	}

	descriptors := make([]Descriptor, 0, len(*resp.Results))
	for i, item := range *resp.Results {
		if item.Name == "" {
			return nil, fmt.Errorf("%w: result %d has no name", ErrMalformedResponse, i)
		}
		created, err := parseTime(item.Created)
		if err != nil {
			return nil, fmt.Errorf("%w: result %d created: %v", ErrMalformedResponse, i, err)
		}
		modified, err := parseTime(item.Modified)
		if err != nil {
			return nil, fmt.Errorf("%w: result %d modified: %v", ErrMalformedResponse, i, err)
		}
		// Older Artifactory versions don't track modification separately.
		if modified.IsZero() {
			modified = created
		}
		descriptors = append(descriptors, Descriptor{
			Repo:     item.Repo,
			Path:     item.Path,
			Name:     item.Name,
			Size:     item.Size,
			SHA256:   strings.ToLower(item.SHA256),
			Created:  created,
			Modified: modified,
		})
	}
	return descriptors, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
