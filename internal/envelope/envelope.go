// Package envelope implements the response envelope protocol used for
// internal communication between daemon components: every reply is a
// {data, error, message?} document regardless of which component produced
// it.
package envelope

import (
	"encoding/json"
	"fmt"
)

// Error codes recognized by the core. Additional codes may pass through
// opaquely from other components.
const (
	OK                  = 0
	UnknownError        = 1
	InvalidJSONRequest  = 2
	InvalidMsgSize      = 3
)

// Response is the {data, error, message?} document exchanged between
// components. It is immutable from the caller's perspective once built;
// the setter methods exist only for callers assembling a response
// incrementally.
type Response struct {
	data    json.RawMessage
	error   int
	message *string
}

var emptyObject = json.RawMessage(`{}`)

// New builds a response from already-structured data. data must marshal
// to a JSON object or array; callers that need that guarantee checked
// should call IsValid afterward.
func New(data interface{}, code int, message string) (Response, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Response{}, fmt.Errorf("envelope: marshal data: %w", err)
	}
	r := Response{data: raw, error: code}
	if message != "" {
		r.message = &message
	}
	return r, nil
}

// NewFromRaw builds a response from an already-encoded JSON data value.
func NewFromRaw(data json.RawMessage, code int, message string) Response {
	r := Response{data: append(json.RawMessage(nil), data...), error: code}
	if message != "" {
		r.message = &message
	}
	return r
}

// NewMessage builds a response carrying only a message: data is the empty
// object, error is OK.
func NewMessage(message string) Response {
	return Response{data: emptyObject, error: OK, message: &message}
}

// Default returns the zero-value response: empty object, error OK, no
// message.
func Default() Response {
	return Response{data: emptyObject, error: OK}
}

// Data returns the response's data payload as raw JSON.
func (r Response) Data() json.RawMessage { return r.data }

// Error returns the response's error code.
func (r Response) Error() int { return r.error }

// Message returns the response's message, if any.
func (r Response) Message() (string, bool) {
	if r.message == nil {
		return "", false
	}
	return *r.message, true
}

// SetData overwrites the response's data.
func (r *Response) SetData(data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("envelope: marshal data: %w", err)
	}
	r.data = raw
	return nil
}

// SetError overwrites the response's error code.
func (r *Response) SetError(code int) { r.error = code }

// SetMessage overwrites the response's message.
func (r *Response) SetMessage(message string) { r.message = &message }

// IsValid reports whether data is a JSON object or array. Primitives,
// null, strings, numbers, and booleans are invalid as data.
func (r Response) IsValid() bool {
	return isObjectOrArray(r.data)
}

// String serializes the response per the wire protocol: data, error,
// message (when present) in that exact key order.
func (r Response) String() string {
	data := r.data
	if len(data) == 0 {
		data = emptyObject
	}
	if r.message != nil {
		msg, _ := json.Marshal(*r.message)
		return fmt.Sprintf(`{"data":%s,"error":%d,"message":%s}`, data, r.error, msg)
	}
	return fmt.Sprintf(`{"data":%s,"error":%d}`, data, r.error)
}

// MarshalJSON makes Response satisfy json.Marshaler using the same fixed
// key order as String.
func (r Response) MarshalJSON() ([]byte, error) {
	return []byte(r.String()), nil
}

type wireResponse struct {
	Error   *int             `json:"error"`
	Data    *json.RawMessage `json:"data"`
	Message *json.RawMessage `json:"message"`
}

// FromString parses a textual envelope document, failing with a
// descriptive error on the first offending condition: malformed JSON,
// a missing or ill-typed /error, a missing /data, a /data that is not an
// object or array, or a /message present but not a string.
func FromString(s string) (Response, error) {
	var raw wireResponse
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Response{}, fmt.Errorf("envelope: invalid response: %w", err)
	}
	if raw.Error == nil {
		return Response{}, fmt.Errorf("envelope: error field not found or is not an integer")
	}
	if raw.Data == nil {
		return Response{}, fmt.Errorf("envelope: data field not found")
	}
	if !isObjectOrArray(*raw.Data) {
		return Response{}, fmt.Errorf("envelope: data field is not a json object or array")
	}

	resp := Response{data: append(json.RawMessage(nil), *raw.Data...), error: *raw.Error}
	if raw.Message != nil {
		var msg string
		if err := json.Unmarshal(*raw.Message, &msg); err != nil {
			return Response{}, fmt.Errorf("envelope: message field is not a string")
		}
		resp.message = &msg
	}
	return resp, nil
}

func isObjectOrArray(raw json.RawMessage) bool {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return true
	default:
		return false
	}
}

// InvalidRequest returns the predefined "malformed JSON" response.
func InvalidRequest() Response {
	return Response{data: emptyObject, error: InvalidJSONRequest, message: strPtr("Invalid request, malformed JSON")}
}

// InvalidSize returns the predefined "invalid size" response.
func InvalidSize() Response {
	return Response{data: emptyObject, error: InvalidMsgSize, message: strPtr("Invalid Size")}
}

// UnknownErrorResponse returns the predefined "unknown error" response.
func UnknownErrorResponse() Response {
	return Response{data: emptyObject, error: UnknownError, message: strPtr("Unknown error")}
}

func strPtr(s string) *string { return &s }
