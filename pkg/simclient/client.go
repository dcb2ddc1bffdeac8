/*
 * Copyright 2025 Carver Automation Corporation.
 *
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

// Package simclient talks to the simulation backend: lifecycle commands,
// logger dumps and run history.
package simclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/carverauto/nodesim/pkg/logger"
	"github.com/carverauto/nodesim/pkg/models"
)

const (
	startPath       = "/services/start"
	stopPath        = "/services/stop"
	loggerPath      = "/logger/"
	simulationsPath = "/simulations/"

	maxDumpBytes  = 64 << 20
	maxErrorBytes = 512
)

// Client is an HTTP client for the simulation backend.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
	logger    logger.Logger
}

// New creates a client for the backend at baseURL. A nil httpClient uses
// http.DefaultClient.
func New(baseURL string, httpClient *http.Client, userAgent string, log logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      httpClient,
		userAgent: userAgent,
		logger:    log,
	}
}

// Start sends PUT /services/start. A nil error means the backend
// acknowledged the command.
func (c *Client) Start(ctx context.Context, items []models.StartItem) error {
	return c.put(ctx, startPath, items)
}

// Stop sends PUT /services/stop.
func (c *Client) Stop(ctx context.Context, items []models.StopItem) error {
	return c.put(ctx, stopPath, items)
}

// LoggerDump fetches the current logger dump as raw bytes.
func (c *Client) LoggerDump(ctx context.Context) ([]byte, error) {
	return c.fetch(ctx, http.MethodGet, loggerPath, nil)
}

// LoggerDumpAt fetches the dump recorded for the run started at timestamp.
func (c *Client) LoggerDumpAt(ctx context.Context, timestamp models.RunTimestamp) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"timestamp": string(timestamp)})
	if err != nil {
		return nil, err
	}

	return c.fetch(ctx, http.MethodPost, loggerPath, body)
}

// Simulations lists the backend's run history.
func (c *Client) Simulations(ctx context.Context) ([]models.SimulationRecord, error) {
	raw, err := c.fetch(ctx, http.MethodGet, simulationsPath, nil)
	if err != nil {
		return nil, err
	}

	var records []models.SimulationRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: decode simulations: %w", ErrTransport, err)
	}

	return records, nil
}

func (c *Client) put(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPut, path, body)
	if err != nil {
		return err
	}
	defer c.closeResponse(resp)

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDumpBytes))

	return nil
}

func (c *Client) fetch(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer c.closeResponse(resp)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDumpBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrTransport, path, err)
	}

	return data, nil
}

// do issues the request and returns the response for any 2xx status.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		c.closeResponse(resp)

		return nil, fmt.Errorf("%w: %s %s: %w: %d, response: %s",
			ErrTransport, method, path, errUnexpectedStatusCode, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	return resp, nil
}

// closeResponse closes the HTTP response body, logging any errors.
func (c *Client) closeResponse(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to close response body")
	}
}
