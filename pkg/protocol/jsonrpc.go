package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// JSONRPCVersion is the only accepted jsonrpc envelope version.
const JSONRPCVersion = "2.0"

// A2A method names.
const (
	MethodSendMessage          = "SendMessage"
	MethodSendStreamingMessage = "SendStreamingMessage"
	MethodGetTask              = "GetTask"
	MethodListTasks            = "ListTasks"
	MethodCancelTask           = "CancelTask"
	MethodSubscribeToTask      = "SubscribeToTask"
	MethodCreatePushConfig     = "CreateTaskPushNotificationConfig"
	MethodGetPushConfig        = "GetTaskPushNotificationConfig"
	MethodListPushConfigs      = "ListTaskPushNotificationConfig"
	MethodDeletePushConfig     = "DeleteTaskPushNotificationConfig"
	MethodGetExtendedAgentCard = "GetExtendedAgentCard"
)

// Request is a JSON-RPC 2.0 request envelope. ID and Params stay raw so
// envelope validation can precede method-specific decoding.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ValidateEnvelope checks the JSON-RPC envelope rules independent of the
// method: version string, method presence, id type, params shape.
func (r *Request) ValidateEnvelope() *Error {
	if r.JSONRPC != JSONRPCVersion {
		return ErrInvalidRequest("jsonrpc must be %q", JSONRPCVersion)
	}
	if r.Method == "" {
		return ErrInvalidRequest("method is required")
	}
	if err := validateRequestID(r.ID); err != nil {
		return err
	}
	if len(r.Params) > 0 {
		trimmed := bytes.TrimSpace(r.Params)
		if len(trimmed) > 0 && trimmed[0] != '{' && !bytes.Equal(trimmed, []byte("null")) {
			return ErrInvalidRequest("params must be an object")
		}
	}
	return nil
}

// validateRequestID accepts a string, an integer, null, or an absent id.
func validateRequestID(id json.RawMessage) *Error {
	if len(id) == 0 {
		return nil
	}
	raw := strings.TrimSpace(string(id))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(id, &s); err != nil {
			return ErrInvalidRequest("id must be a string, integer, or null")
		}
		return nil
	}
	if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
		return ErrInvalidRequest("id must be a string, integer, or null")
	}
	return nil
}

// Response is a JSON-RPC 2.0 response envelope. Exactly one of Result and
// Err is set. The id is always emitted; a nil raw id marshals as null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Err     *Error          `json:"error,omitempty"`
}

// NewResult builds a success response. Marshal failures of the result value
// degrade to an internal error response rather than a broken frame.
func NewResult(id json.RawMessage, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return NewError(id, ErrInternal("encode result").WithData(err.Error()))
	}
	return Response{JSONRPC: JSONRPCVersion, ID: normalizeID(id), Result: data}
}

// NewError builds an error response from any error, coercing non-protocol
// errors to INTERNAL_ERROR.
func NewError(id json.RawMessage, err error) Response {
	return Response{JSONRPC: JSONRPCVersion, ID: normalizeID(id), Err: AsError(err)}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
