package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// IndexVersion is the schema version written to dedup index files.
const IndexVersion = 1

// MessageID identifies a published message. Numeric ids are stored as JSON
// numbers to stay compatible with indexes written by earlier tooling.
type MessageID string

// MarshalJSON writes numeric ids as numbers and everything else as strings.
func (id MessageID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a number, a string or null.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	*id = MessageID(n.String())
	return nil
}

// IndexEntry is one previously published (or recorded) item in the dedup index.
// Entries are append-only; Keywords are computed from Topic at insertion time.
type IndexEntry struct {
	ID       MessageID `json:"msgId,omitempty"`
	Topic    string    `json:"topic"`
	Links    []string  `json:"links"`
	Keywords []string  `json:"keywords"`
}
