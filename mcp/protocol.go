package mcp

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// JSONRPCVersion is the only jsonrpc value this package will emit or accept.
const JSONRPCVersion = "2.0"

// ProtocolVersion is the MCP revision this library speaks.
const ProtocolVersion = "2025-11-25"

// The three JSON-RPC envelope shapes. Field presence is what tells them
// apart on the wire: a request carries both id and method, a notification
// carries only a method, a response carries an id plus result or error.

// RequestMessage expects a response correlated by ID.
type RequestMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	Meta    Meta            `json:"_meta,omitempty"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NotificationMessage is fire-and-forget: no ID, no reply.
type NotificationMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	Meta    Meta            `json:"_meta,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ResponseMessage answers a request. Result and Error are mutually
// exclusive; serialization omits whichever is absent.
type ResponseMessage struct {
	JSONRPC string       `json:"jsonrpc"`
	Meta    Meta         `json:"_meta,omitempty"`
	ID      any          `json:"id"`
	Result  any          `json:"result,omitempty"`
	Error   *ErrorObject `json:"error,omitempty"`
}

// ErrorObject is the JSON-RPC error payload carried by failed responses.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Request, Response, Error and Notification are the short names used
// throughout handler signatures.
type (
	Request      = RequestMessage
	Response     = ResponseMessage
	Error        = ErrorObject
	Notification = NotificationMessage
)

// NewRequestMessage assembles a request envelope, encoding params up front
// so a marshal failure surfaces at call time rather than at send time.
func NewRequestMessage(id any, method string, params any) (RequestMessage, error) {
	payload, err := encodeParams(params)
	if err != nil {
		return RequestMessage{}, err
	}
	return RequestMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  payload,
	}, nil
}

// NewNotificationMessage assembles a notification envelope.
func NewNotificationMessage(method string, params any) (NotificationMessage, error) {
	payload, err := encodeParams(params)
	if err != nil {
		return NotificationMessage{}, err
	}
	return NotificationMessage{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  payload,
	}, nil
}

// SuccessResponse answers id with a result body.
func SuccessResponse(id, result any) ResponseMessage {
	return ResponseMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  result,
	}
}

// ErrorResponse answers id with an error body. An optional first data value
// becomes the error's data field.
func ErrorResponse(id any, code int, message string, data ...any) ResponseMessage {
	errObj := &ErrorObject{Code: code, Message: message}
	if len(data) > 0 {
		errObj.Data = data[0]
	}
	return ResponseMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   errObj,
	}
}

func encodeParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return raw, nil
}

// checkVersion rejects any jsonrpc value other than the 2.0 literal.
func checkVersion(v string) error {
	switch v {
	case JSONRPCVersion:
		return nil
	case "":
		return fmt.Errorf("jsonrpc version missing")
	default:
		return fmt.Errorf("jsonrpc version %q not supported", v)
	}
}

// stringifyID canonicalizes a request ID for use as a table key. The same
// logical ID can reach us spelled differently — int64 when we allocate it,
// float64 once it has round-tripped through encoding/json — and every
// spelling must land on one key.
func stringifyID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Meta is the open-ended `_meta` object that may ride along on any
// envelope. Spec-defined keys like progressToken get typed accessors;
// everything else passes through untouched.
type Meta map[string]any

// ProgressToken reads `_meta.progressToken`, reporting whether a non-empty
// token is present.
func (m Meta) ProgressToken() (string, bool) {
	token, ok := m["progressToken"].(string)
	return token, ok && token != ""
}

// WithProgressToken returns a copy of the metadata carrying the token; the
// receiver is never mutated. An empty token strips the field instead.
func (m Meta) WithProgressToken(token string) Meta {
	clone := maps.Clone(m)
	if clone == nil {
		clone = make(Meta)
	}
	if token == "" {
		delete(clone, "progressToken")
	} else {
		clone["progressToken"] = token
	}
	return clone
}
