// pkg/graph/errors.go
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
)

// RemoteError is the single normalized shape for platform rejections and
// transport failures. Transient marks failures the platform flags as
// retryable (rate limits, momentary unavailability).
type RemoteError struct {
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode,omitempty"`
	Message   string `json:"message"`
	Transient bool   `json:"is_transient"`
}

func (e *RemoteError) Error() string {
	if e.Transient {
		return fmt.Sprintf("graph: transient error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("graph: error %d: %s", e.Code, e.Message)
}

// IsTransient reports whether err is a RemoteError the platform marked retryable.
func IsTransient(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Transient
}

// envelope matches the platform's error wrapper:
// {"error":{"message","type","code","error_subcode","is_transient"}}
type envelope struct {
	Error *struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		Transient bool   `json:"is_transient"`
	} `json:"error"`
}

// decodeEnvelope parses raw as JSON and surfaces an embedded error object as
// *RemoteError. A body that is not valid JSON becomes a permanent RemoteError
// carrying the raw text.
func decodeEnvelope(raw []byte) (map[string]any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &RemoteError{Message: fmt.Sprintf("unparseable response: %s", truncate(raw, 200))}
	}
	if env.Error != nil {
		return nil, &RemoteError{
			Code:      env.Error.Code,
			Subcode:   env.Error.Subcode,
			Message:   env.Error.Message,
			Transient: env.Error.Transient,
		}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &RemoteError{Message: fmt.Sprintf("unexpected response shape: %s", truncate(raw, 200))}
	}
	return out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
