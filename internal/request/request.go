// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package request makes outgoing GET requests with a bounded body size.
package request

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.astrophena.name/herald/internal/version"
)

// DefaultClient is used when [Params] has no client.
var DefaultClient = &http.Client{Timeout: 20 * time.Second}

// MaxBodySize is the largest response body [Get] accepts.
const MaxBodySize = 8 << 20

// ErrTooLarge is returned when a response body exceeds [MaxBodySize].
var ErrTooLarge = errors.New("response body too large")

// Params describe a GET request.
type Params struct {
	URL string
	// Headers are added to the request. A User-Agent here replaces the
	// default one.
	Headers map[string]string
	// Client defaults to DefaultClient.
	Client *http.Client
}

// StatusError is returned by [Get] for responses other than 200 OK.
type StatusError struct {
	URL        string
	StatusCode int
	// Body is the response body, which is often still useful.
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, http.StatusText(e.StatusCode))
}

// Get fetches p.URL and returns the response body.
func Get(ctx context.Context, p Params) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	c := p.Client
	if c == nil {
		c = DefaultClient
	}
	res, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("GET %s: reading body: %w", p.URL, err)
	}
	if len(b) > MaxBodySize {
		return nil, fmt.Errorf("GET %s: %w", p.URL, ErrTooLarge)
	}
	if res.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: p.URL, StatusCode: res.StatusCode, Body: b}
	}
	return b, nil
}
