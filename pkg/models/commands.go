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

package models

// StartParameter is one aggregated {name, min, max} triple of a start command.
type StartParameter struct {
	Name string  `json:"name"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// StartItem is the per-node entry of a PUT /services/start body.
type StartItem struct {
	NodeID     string           `json:"node_id"`
	Frequency  int              `json:"frequency"`
	Parameters []StartParameter `json:"parameters"`
	Platform   Platform         `json:"platform"`
	Protocol   Protocol         `json:"protocol"`
}

// StopItem is the per-node entry of a PUT /services/stop body.
type StopItem struct {
	NodeID string `json:"node_id"`
}

// StopItems builds a stop body from node identifiers.
func StopItems(ids []string) []StopItem {
	items := make([]StopItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, StopItem{NodeID: id})
	}

	return items
}
