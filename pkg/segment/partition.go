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

// Package segment splits ordered node collections into fixed-count batches
// for bulk lifecycle operations.
package segment

import (
	"errors"
	"sort"

	"github.com/carverauto/nodesim/pkg/models"
)

// ErrInvalidRange is returned by SelectRange for a range that selects nothing.
var ErrInvalidRange = errors.New("invalid node range")

// Partition splits items into exactly k contiguous segments of ceil(n/k)
// items each. Trailing segments absorb the shortfall and may be empty, but
// are never nil. k below 1 is treated as 1.
func Partition[T any](items []T, k int) [][]T {
	if k < 1 {
		k = 1
	}

	n := len(items)
	size := (n + k - 1) / k

	out := make([][]T, k)

	for i := 0; i < k; i++ {
		lo := min(i*size, n)
		hi := min(lo+size, n)

		out[i] = append(make([]T, 0, hi-lo), items[lo:hi]...)
	}

	return out
}

// Group is the partition of the nodes sharing one platform.
type Group struct {
	Platform models.Platform
	Segments [][]models.Node
}

// ByPlatform partitions each platform's nodes independently into k segments.
// Groups are ordered by platform name; within a group nodes keep input order.
func ByPlatform(nodes []models.Node, k int) []Group {
	byPlatform := make(map[models.Platform][]models.Node)

	for i := range nodes {
		p := nodes[i].Platform
		byPlatform[p] = append(byPlatform[p], nodes[i])
	}

	platforms := make([]models.Platform, 0, len(byPlatform))
	for p := range byPlatform {
		platforms = append(platforms, p)
	}

	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })

	groups := make([]Group, 0, len(platforms))
	for _, p := range platforms {
		groups = append(groups, Group{Platform: p, Segments: Partition(byPlatform[p], k)})
	}

	return groups
}

// SelectRange returns nodes from..to, 1-based and inclusive. A to past the
// end clamps to the last node.
func SelectRange(nodes []models.Node, from, to int) ([]models.Node, error) {
	if from < 1 || to < from || from > len(nodes) {
		return nil, ErrInvalidRange
	}

	to = min(to, len(nodes))

	return append([]models.Node(nil), nodes[from-1:to]...), nil
}
