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

// Package catalog reads node, vertical and parameter listings from the
// read-only catalog service.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/nodesim/pkg/logger"
	"github.com/carverauto/nodesim/pkg/models"
)

var (
	// ErrUnavailable wraps any failure reading from the catalog service.
	ErrUnavailable = errors.New("catalog service unavailable")

	errUnexpectedStatusCode = errors.New("unexpected status code")
)

const (
	defaultPageSize    = 1000
	defaultConcurrency = 8
)

// Client is an HTTP client for the catalog service.
type Client struct {
	baseURL     string
	http        *http.Client
	userAgent   string
	logger      logger.Logger
	concurrency int
}

// New creates a client. concurrency bounds parallel per-node detail fetches;
// zero selects the default.
func New(baseURL string, httpClient *http.Client, userAgent string, concurrency int, log logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        httpClient,
		userAgent:   userAgent,
		logger:      log,
		concurrency: concurrency,
	}
}

// Nodes lists one page of nodes.
func (c *Client) Nodes(ctx context.Context, skip, limit int) ([]models.Node, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}

	q := url.Values{}
	q.Set("skip", strconv.Itoa(max(skip, 0)))
	q.Set("limit", strconv.Itoa(limit))

	var nodes []models.Node
	if err := c.get(ctx, "/nodes/?"+q.Encode(), &nodes); err != nil {
		return nil, err
	}

	return nodes, nil
}

// NodesByVertical lists the nodes of one vertical.
func (c *Client) NodesByVertical(ctx context.Context, verticalID int) ([]models.Node, error) {
	var nodes []models.Node
	if err := c.get(ctx, "/nodes/vertical/"+strconv.Itoa(verticalID), &nodes); err != nil {
		return nil, err
	}

	return nodes, nil
}

type nodeDetail struct {
	Parameters []models.ParameterBinding `json:"parameters"`
	Parameter  []models.ParameterBinding `json:"parameter"`
}

// NodeParameters fetches the parameter bindings of one node.
func (c *Client) NodeParameters(ctx context.Context, nodeID string) ([]models.ParameterBinding, error) {
	var detail nodeDetail
	if err := c.get(ctx, "/nodes/all/"+url.PathEscape(nodeID), &detail); err != nil {
		return nil, err
	}

	if len(detail.Parameters) > 0 {
		return detail.Parameters, nil
	}

	if detail.Parameter == nil {
		return []models.ParameterBinding{}, nil
	}

	return detail.Parameter, nil
}

// WithParameters returns a copy of nodes with each node's bindings fetched
// from its detail endpoint. Fetches run concurrently, bounded by the
// client's concurrency. The first failure cancels the rest.
func (c *Client) WithParameters(ctx context.Context, nodes []models.Node) ([]models.Node, error) {
	out := append([]models.Node(nil), nodes...)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i := range out {
		id := out[i].NodeID

		g.Go(func() error {
			bindings, err := c.NodeParameters(ctx, id)
			if err != nil {
				return fmt.Errorf("node %s: %w", id, err)
			}

			out[i].Parameters = bindings

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Debug().Int("nodes", len(out)).Msg("Fetched node parameter bindings")

	return out, nil
}

// Fleet lists up to limit nodes with their parameter bindings.
func (c *Client) Fleet(ctx context.Context, limit int) ([]models.Node, error) {
	nodes, err := c.Nodes(ctx, 0, limit)
	if err != nil {
		return nil, err
	}

	return c.WithParameters(ctx, nodes)
}

// VerticalFleet lists the nodes of one vertical with their parameter bindings.
func (c *Client) VerticalFleet(ctx context.Context, verticalID int) ([]models.Node, error) {
	nodes, err := c.NodesByVertical(ctx, verticalID)
	if err != nil {
		return nil, err
	}

	return c.WithParameters(ctx, nodes)
}

// Verticals lists all verticals.
func (c *Client) Verticals(ctx context.Context) ([]models.Vertical, error) {
	var verticals []models.Vertical
	if err := c.get(ctx, "/verticals/", &verticals); err != nil {
		return nil, err
	}

	return verticals, nil
}

// Parameters lists the parameter definitions of one vertical.
func (c *Client) Parameters(ctx context.Context, verticalID int) ([]models.ParameterBinding, error) {
	q := url.Values{}
	q.Set("vertical_id", strconv.Itoa(verticalID))

	var bindings []models.ParameterBinding
	if err := c.get(ctx, "/parameters/?"+q.Encode(), &bindings); err != nil {
		return nil, err
	}

	return bindings, nil
}

// Platforms returns the distinct platforms of nodes, sorted.
func Platforms(nodes []models.Node) []models.Platform {
	seen := make(map[models.Platform]struct{})

	for i := range nodes {
		if nodes[i].Platform != "" {
			seen[nodes[i].Platform] = struct{}{}
		}
	}

	out := make([]models.Platform, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %w", ErrUnavailable, path, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug().Err(cerr).Msg("Failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET %s: %w: %d", ErrUnavailable, path, errUnexpectedStatusCode, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrUnavailable, path, err)
	}

	return nil
}
