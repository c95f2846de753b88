// Package protocol defines the JSON-RPC 2.0 wire types exchanged with
// MCP clients.
//
// Requests keep their id as raw JSON so it can be echoed back byte for
// byte. A request without an id member is a notification and never gets
// a response; a request with an explicit null id is answered with null.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Version is the JSON-RPC version carried in every message.
const Version = mcp.JSONRPC_VERSION

// Standard JSON-RPC error codes, plus the server-defined execution code.
const (
	CodeParseError     = mcp.PARSE_ERROR
	CodeInvalidRequest = mcp.INVALID_REQUEST
	CodeMethodNotFound = mcp.METHOD_NOT_FOUND
	CodeInvalidParams  = mcp.INVALID_PARAMS
	CodeInternalError  = mcp.INTERNAL_ERROR
	CodeToolExecution  = -32000
)

// Method names understood by the dispatcher.
const (
	MethodInitialize    = "initialize"
	MethodInitialized   = "notifications/initialized"
	MethodPing          = "ping"
	MethodShutdown      = "shutdown"
	MethodToolsList     = "tools/list"
	MethodToolsCall     = "tools/call"
	MethodResourcesList = "resources/list"
	MethodResourcesRead = "resources/read"
	MethodComplete      = "completion/complete"
)

var nullID = json.RawMessage("null")

// ErrNotObject is returned when a message decodes as JSON but is not an object.
var ErrNotObject = errors.New("protocol: message is not a JSON object")

// MemberError reports a request member carrying the wrong JSON type. The
// message is valid JSON, so it is answered as an invalid request.
type MemberError struct {
	Member string
	ID     json.RawMessage
	Err    error
}

func (e *MemberError) Error() string {
	return fmt.Sprintf("protocol: member %q: %v", e.Member, e.Err)
}

func (e *MemberError) Unwrap() error { return e.Err }

// ResponseID returns the id of the offending request, null when absent.
func (e *MemberError) ResponseID() json.RawMessage {
	if len(e.ID) == 0 {
		return nullID
	}
	return e.ID
}

// Request is an incoming JSON-RPC request or notification.
type Request struct {
	JSONRPC string
	ID      json.RawMessage
	Method  string
	Params  json.RawMessage

	hasID bool
}

// UnmarshalJSON records whether the id member was present at all, which
// is the only thing separating a notification from a request with a null id.
func (r *Request) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ErrNotObject
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &object); err != nil {
		return err
	}

	*r = Request{}
	if raw, ok := object["id"]; ok {
		r.hasID = true
		r.ID = json.RawMessage(bytes.TrimSpace(raw))
	}
	for _, m := range []struct {
		name string
		dst  *string
	}{
		{"jsonrpc", &r.JSONRPC},
		{"method", &r.Method},
	} {
		raw, ok := object[m.name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, m.dst); err != nil {
			return &MemberError{Member: m.name, ID: r.ID, Err: err}
		}
	}
	if raw, ok := object["params"]; ok && !bytes.Equal(bytes.TrimSpace(raw), nullID) {
		r.Params = raw
	}
	return nil
}

// NewRequest builds a request with the given id; a nil id builds a notification.
func NewRequest(id any, method string, params any) (*Request, error) {
	req := &Request{JSONRPC: Version, Method: method}
	if id != nil {
		raw, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		req.ID = raw
		req.hasID = true
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = raw
	}
	return req, nil
}

// IsNotification reports whether the request carries no id member.
func (r *Request) IsNotification() bool {
	return !r.hasID
}

// ResponseID returns the id to echo in the response, null when absent.
func (r *Request) ResponseID() json.RawMessage {
	if len(r.ID) == 0 {
		return nullID
	}
	return r.ID
}

// DecodeParams unmarshals the request params into v. Missing params leave
// v untouched.
func (r *Request) DecodeParams(v any) error {
	if len(r.Params) == 0 {
		return nil
	}
	return json.Unmarshal(r.Params, v)
}

// ErrorObject is the error member of a failed response.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string {
	return e.Message
}

// NewError builds an ErrorObject.
func NewError(code int, message string) *ErrorObject {
	return &ErrorObject{Code: code, Message: message}
}

// Response is an outgoing JSON-RPC response. Exactly one of Result and
// Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// NewResult builds a success response. A nil result is sent as {}.
func NewResult(id json.RawMessage, result any) *Response {
	if result == nil {
		result = struct{}{}
	}
	return &Response{JSONRPC: Version, ID: normalizeID(id), Result: result}
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id json.RawMessage, err *ErrorObject) *Response {
	return &Response{JSONRPC: Version, ID: normalizeID(id), Error: err}
}

// ParseError is the response sent for undecodable input; its id is always null.
func ParseError(detail string) *Response {
	msg := "Parse error"
	if detail != "" {
		msg += ": " + detail
	}
	return NewErrorResponse(nil, NewError(CodeParseError, msg))
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nullID
	}
	return id
}
