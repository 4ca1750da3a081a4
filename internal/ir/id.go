package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an opaque product or variant identifier.
//
// The host cart emits ids as JSON numbers ("product_id": 123), the admin
// config as strings ("P1") or numbers. Both decode to the same ID so that
// comparisons never depend on the producer.
type ID string

// String returns the id as a plain string.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the id is empty.
func (id ID) IsZero() bool {
	return id == ""
}

// UnmarshalJSON accepts a JSON string, a JSON integer, or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("id: %w", err)
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: expected string or number, got %s", data)
	}
	// Integers keep their exact digits; "12.0" style ids are rejected
	// rather than silently truncated.
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id: non-integer numeric id %s", n)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON always emits the id as a JSON string.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}
