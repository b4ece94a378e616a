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
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned when Artifactory responds with 404 to a
// content request.
var ErrNotFound = errors.New("artifact not found")

// QueryError is returned when the AQL search can't be performed, either
// because Artifactory is unreachable or because it returned an error or a
// malformed response. No artifact is known after a QueryError.
type QueryError struct {
	URL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("artifact query to '%s' failed: %v", e.URL, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// HTTPError is returned for unexpected HTTP status codes, it includes the
// start of the response body to help diagnose the failure.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: %s", e.Status)
	}
	return fmt.Sprintf("unexpected status: %s: %s", e.Status, e.Body)
}

// maskedError hides the API key from the message of the wrapped error,
// while keeping the chain intact for errors.Is and errors.As.
type maskedError struct {
	msg string
	err error
}

func (e *maskedError) Error() string {
	return e.msg
}

func (e *maskedError) Unwrap() error {
	return e.err
}

// maskToken redacts all matches for the given token from the error
// message, replacing them with "*****".
func maskToken(err error, token string) error {
	if err == nil || token == "" {
		return err
	}
	re, rerr := regexp.Compile(fmt.Sprintf("%s*", regexp.QuoteMeta(token)))
	if rerr != nil {
		return err
	}
	msg := err.Error()
	redacted := re.ReplaceAllString(msg, "*****")
	if redacted == msg {
		return err
	}
	return &maskedError{msg: redacted, err: err}
}
