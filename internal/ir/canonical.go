package ir

import (
	"bytes"
	"encoding/json"
)

// CompactPayload returns the compact form of a JSON payload.
// Whitespace differences never make two payloads distinct. Invalid JSON is
// returned unchanged so callers can still compare it byte for byte; the verb
// handlers reject it later.
func CompactPayload(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
