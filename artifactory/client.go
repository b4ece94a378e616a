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
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	// APIKeyHeader is the header Artifactory reads API keys from.
	APIKeyHeader = "X-JFrog-Art-Api"

	// DefaultTimeout is the per-request timeout used when none is configured.
	DefaultTimeout = 60 * time.Second

	searchEndpoint = "/artifactory/api/search/aql"
	contentPrefix  = "/artifactory/"

	// maxErrorBody caps how much of an error response ends up in messages.
	maxErrorBody = 512
)

// Searcher runs artifact searches against a remote repository.
type Searcher interface {
	Search(ctx context.Context, repo, path string, since time.Time) ([]Descriptor, error)
}

// Fetcher opens the content of a remote artifact.
type Fetcher interface {
	Fetch(ctx context.Context, d Descriptor) (io.ReadCloser, error)
}

// Options configures a Client.
type Options struct {
	// URL is the base URL of the Artifactory instance, without the
	// '/artifactory' context path.
	URL string

	// APIKey is sent in the X-JFrog-Art-Api header of every request.
	APIKey string

	// Timeout bounds the wait for the response headers of every request.
	// Reading the body is not bounded, artifacts may be large.
	Timeout time.Duration

	// Retries is the number of times a failed request is retried with back
	// off. Zero disables retries.
	Retries int

	Logger logr.Logger
}

// Client talks to the Artifactory search and content endpoints.
type Client struct {
	httpClient *retryablehttp.Client
	baseURL    string
	apiKey     string
}

// NewClient configures the retryable http client used for searching and
// fetching artifacts.
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.URL))
	if err != nil {
		return nil, fmt.Errorf("invalid Artifactory URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid Artifactory URL '%s': must be an absolute http(s) URL", opts.URL)
	}
	// Accept URLs that already include the context path.
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/artifactory")

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryWaitMin = 5 * time.Second
	httpClient.RetryWaitMax = 30 * time.Second
	httpClient.RetryMax = opts.Retries
	if t, ok := httpClient.HTTPClient.Transport.(*http.Transport); ok {
		t.ResponseHeaderTimeout = timeout
	}
	// Hand the last response back instead of a generic "giving up" error,
	// so the status code can be reported.
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	httpClient.Logger = newLeveledLogger(opts.Logger)

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(u.String(), "/"),
		apiKey:     opts.APIKey,
	}, nil
}

// Search queries Artifactory for all files in repo under path that were
// modified after since. Any failure is returned as a *QueryError.
func (c *Client) Search(ctx context.Context, repo, path string, since time.Time) ([]Descriptor, error) {
	endpoint := c.baseURL + searchEndpoint
	query := BuildQuery(repo, path, since)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, []byte(query))
	if err != nil {
		return nil, &QueryError{URL: endpoint, Err: fmt.Errorf("failed to create a new request: %w", err)}
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &QueryError{URL: endpoint, Err: maskToken(err, c.apiKey)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &QueryError{URL: endpoint, Err: c.httpError(resp)}
	}

	descriptors, err := ParseResults(resp.Body)
	if err != nil {
		return nil, &QueryError{URL: endpoint, Err: err}
	}
	return descriptors, nil
}

// Fetch opens the content stream of the given artifact. The caller must
// close the returned reader. If Artifactory responds with 404, the
// returned error wraps ErrNotFound.
func (c *Client) Fetch(ctx context.Context, d Descriptor) (io.ReadCloser, error) {
	artifactURL := c.ContentURL(d)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, artifactURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create a new request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download artifact: %w", maskToken(err, c.apiKey))
	}

	if code := resp.StatusCode; code != http.StatusOK {
		defer resp.Body.Close()
		if code == http.StatusNotFound {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("%s: %w", artifactURL, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to download artifact from %s: %w", artifactURL, c.httpError(resp))
	}
	return resp.Body, nil
}

// ContentURL returns the download URL of the given artifact.
func (c *Client) ContentURL(d Descriptor) string {
	segments := strings.Split(d.FullPath(), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.baseURL + contentPrefix + strings.Join(segments, "/")
}

func (c *Client) authorize(req *retryablehttp.Request) {
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
}

func (c *Client) httpError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	return maskToken(&HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}, c.apiKey)
}
