package simclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/carverauto/nodesim/pkg/models"
)

// DecodeDump splits a logger dump into its JSON objects. The backend emits
// objects back to back, optionally separated by commas and with a trailing
// comma; a dump that is a single JSON array yields its elements.
func DecodeDump(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []json.RawMessage{}, nil
	}

	if trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err == nil {
			return arr, nil
		}
	}

	out := []json.RawMessage{}

	offset := 0
	for {
		offset = skipSeparators(trimmed, offset)
		if offset >= len(trimmed) {
			return out, nil
		}

		dec := json.NewDecoder(bytes.NewReader(trimmed[offset:]))

		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: at byte %d: %w", ErrNotJSON, offset, err)
		}

		if v[0] != '{' && v[0] != '[' {
			return nil, fmt.Errorf("%w: at byte %d: not an object", ErrNotJSON, offset)
		}

		out = append(out, v)
		offset += int(dec.InputOffset())
	}
}

func skipSeparators(b []byte, i int) int {
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\r', '\n', ',':
			i++
		default:
			return i
		}
	}

	return i
}

// WriteDump writes raw to w as an indented JSON array when it decodes as JSON
// values, and verbatim otherwise. It reports whether the JSON form was used.
func WriteDump(w io.Writer, raw []byte) (bool, error) {
	values, err := DecodeDump(raw)
	if err != nil {
		_, werr := w.Write(raw)
		return false, werr
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(values); err != nil {
		return false, err
	}

	return true, nil
}

// DecodeParameters reads a run history parameter field. It accepts a JSON
// array of {name, min, max} or a JSON string holding one; anything else is
// the legacy format.
func DecodeParameters(r *models.SimulationRecord) ([]models.StartParameter, error) {
	raw := bytes.TrimSpace(r.Parameter)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []models.StartParameter{}, nil
	}

	var params []models.StartParameter
	if err := json.Unmarshal(raw, &params); err == nil {
		return params, nil
	}

	var inner string
	if err := json.Unmarshal(raw, &inner); err == nil {
		if inner == "" {
			return []models.StartParameter{}, nil
		}

		if err := json.Unmarshal([]byte(inner), &params); err == nil {
			return params, nil
		}
	}

	return nil, ErrLegacyParameterFormat
}
