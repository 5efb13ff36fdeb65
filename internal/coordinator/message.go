package coordinator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
)

// DefaultTokenKey is the payload key carrying the browser-issued token.
const DefaultTokenKey = "utoken"

// maxMessageSize bounds a single inbound frame.
const maxMessageSize = 64 * 1024

// decodeToken extracts the token from one inbound frame.
//
// Frames are JSON objects; comments and trailing commas are tolerated.
// A well-formed object without the key yields ("", nil). Anything that is
// not an object, or a non-string token value, is ErrMalformedMessage.
func decodeToken(data []byte, key string) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("%w: empty frame", ErrMalformedMessage)
	}
	if trimmed[0] != '{' && trimmed[0] != '/' {
		return "", fmt.Errorf("%w: not a JSON object", ErrMalformedMessage)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON(trimmed), &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	raw, ok := payload[key]
	if !ok {
		return "", nil
	}

	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", fmt.Errorf("%w: %q is not a string", ErrMalformedMessage, key)
	}
	return strings.TrimSpace(token), nil
}
