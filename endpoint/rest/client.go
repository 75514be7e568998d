/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package rest serves query endpoints from an HTTP list API. Each fetch
// POSTs the query specification as JSON and expects a page document
// {"items": [...], "totalCount": n} in return.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/listkit/query"
	"github.com/tomoncle/listkit/types"
	"github.com/tomoncle/listkit/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const maxErrorBody = 4 << 10

// StatusError is returned when the list API answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("rest: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("rest: unexpected status %d: %s", e.Code, e.Body)
}

type Option func(*client)

// WithHTTPClient replaces the default otelhttp instrumented client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithRateLimiter makes every fetch wait on limiter first.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(cl *client) { cl.limiter = limiter }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(cl *client) { cl.header.Add(key, value) }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(cl *client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

type client struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
	header  http.Header
	logger  logrus.FieldLogger
}

func newDefaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// NewEndpoint returns a list endpoint backed by the API at url.
func NewEndpoint[T any](url string, opts ...Option) query.Endpoint[T] {
	cl := &client{
		url:    url,
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(cl)
	}
	if cl.http == nil {
		cl.http = newDefaultHTTPClient()
	}
	if cl.logger == nil {
		cl.logger = utils.NewLogger("REST")
	}
	cl.logger = cl.logger.WithField("url", url)

	return func(ctx context.Context, spec *types.QuerySpecification) (*types.PageResult[T], error) {
		result := new(types.PageResult[T])
		if err := cl.do(ctx, spec, result); err != nil {
			return nil, err
		}
		if result.Items == nil {
			result.Items = make([]T, 0)
		}
		return result, nil
	}
}

func (cl *client) do(ctx context.Context, spec *types.QuerySpecification, out interface{}) error {
	if cl.limiter != nil {
		if err := cl.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if spec == nil {
		spec = &types.QuerySpecification{}
	}

	body, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cl.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for k, v := range cl.header {
		req.Header[k] = append([]string(nil), v...)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := cl.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	cl.logger.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("list request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rest: decode page: %w", err)
	}
	return nil
}
