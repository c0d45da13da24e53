package session

import (
	"encoding/base64"
	"encoding/json"
)

// Encode serializes the state into a token safe to embed in a URL query
// parameter.
func Encode(s State) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode reverses Encode. A missing or malformed token yields the zero State:
// the call is treated as freshly started rather than failed, so a garbled or
// truncated parameter can never wedge a leg.
func Decode(token string) State {
	if token == "" {
		return State{}
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return State{}
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}
	}
	return s
}
