package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// SimulationRecord is one entry of the backend's run history (GET /simulations/).
type SimulationRecord struct {
	NodeIDs   string          `json:"node_ids"`
	Timestamp RunTimestamp    `json:"timestamp"`
	Platform  Platform        `json:"platform"`
	Parameter json.RawMessage `json:"parameter,omitempty"`
}

// IDs splits the comma separated node_ids field.
func (r *SimulationRecord) IDs() []string {
	if strings.TrimSpace(r.NodeIDs) == "" {
		return nil
	}

	parts := strings.Split(r.NodeIDs, ",")
	ids := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}

	return ids
}

// RunTimestamp is the opaque run key used by POST /logger/. The backend emits it
// as either a JSON number or a string.
type RunTimestamp string

func (t *RunTimestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = RunTimestamp(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}

	*t = RunTimestamp(n.String())

	return nil
}
