package apiclient

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
)

// envelopeKeys are the only keys allowed next to "data" for a body to be
// treated as an envelope.
var envelopeKeys = map[string]struct{}{
	"data":    {},
	"success": {},
	"message": {},
	"meta":    {},
}

// unwrapEnvelope returns the "data" member when body is {"data": X, ...}.
// Any other body is returned unchanged.
func unwrapEnvelope(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return body
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return body
	}
	data, ok := fields["data"]
	if !ok {
		return body
	}
	for k := range fields {
		if _, allowed := envelopeKeys[k]; !allowed {
			return body
		}
	}
	return data
}

type errorBody struct {
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Errors  map[string][]string `json:"errors"`
}

// decodeError builds an *APIError from a non-2xx response body.
func decodeError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var eb errorBody
	if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &eb) == nil {
		apiErr.Message = strings.TrimSpace(eb.Message)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(eb.Error)
		}
		if len(eb.Errors) > 0 {
			apiErr.FieldErrors = eb.Errors
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	if apiErr.Message == "" {
		apiErr.Message = "request failed"
	}
	return apiErr
}
