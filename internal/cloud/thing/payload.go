package thing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Payload is one decoded JSON object received from the device cloud.
// Numbers are kept as json.Number so integer fields round-trip exactly.
type Payload map[string]any

// DecodePayload parses a UTF-8 JSON object. An empty body decodes to an
// empty payload.
func DecodePayload(data []byte) (Payload, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Payload{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("decoding payload: not a JSON object")
	}
	return p, nil
}

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// toInt extracts an integer from a decoded JSON value. Booleans map to 0/1
// because the devices report some toggles either way.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil || f != float64(int(f)) {
			return 0, false
		}
		return int(f), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	i, ok := toInt(v)
	if !ok {
		return false, false
	}
	return i != 0, true
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	default:
		return "", false
	}
}
