package protocol

import (
	"errors"
	"fmt"
)

// JSON-RPC and A2A error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeTaskNotFound                = -32001
	CodeTaskNotCancelable           = -32002
	CodePushNotificationUnsupported = -32003
	CodeUnsupportedOperation        = -32004
	CodeContentTypeNotSupported     = -32005
	CodeInvalidAgentResponse        = -32006
	CodeExtendedCardNotConfigured   = -32007
	CodeExtensionSupportRequired    = -32008
	CodeVersionNotSupported         = -32009
	CodeAuthenticationRequired      = -32010
)

// Error is a protocol-level error carried on both bindings: as the JSON-RPC
// error object, and as the REST error body.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("a2a error %d: %s", e.Code, e.Message)
}

// WithData returns a copy of e carrying supplemental data.
func (e *Error) WithData(data any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Data: data}
}

func newError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func ErrParse(format string, args ...any) *Error {
	return newError(CodeParseError, format, args...)
}

func ErrInvalidRequest(format string, args ...any) *Error {
	return newError(CodeInvalidRequest, format, args...)
}

func ErrMethodNotFound(method string) *Error {
	return newError(CodeMethodNotFound, "method not found: %s", method)
}

func ErrInvalidParams(format string, args ...any) *Error {
	return newError(CodeInvalidParams, format, args...)
}

func ErrInternal(format string, args ...any) *Error {
	return newError(CodeInternalError, format, args...)
}

func ErrTaskNotFound(taskID string) *Error {
	return newError(CodeTaskNotFound, "task not found: %s", taskID)
}

func ErrTaskNotCancelable(taskID string) *Error {
	return newError(CodeTaskNotCancelable, "task cannot be canceled: %s", taskID)
}

func ErrPushNotificationUnsupported() *Error {
	return newError(CodePushNotificationUnsupported, "push notifications are not supported")
}

func ErrUnsupportedOperation(op string) *Error {
	return newError(CodeUnsupportedOperation, "operation not supported: %s", op)
}

func ErrContentTypeNotSupported(mediaType string) *Error {
	return newError(CodeContentTypeNotSupported, "content type not supported: %s", mediaType)
}

func ErrInvalidAgentResponse(format string, args ...any) *Error {
	return newError(CodeInvalidAgentResponse, format, args...)
}

func ErrExtendedCardNotConfigured() *Error {
	return newError(CodeExtendedCardNotConfigured, "extended agent card is not configured")
}

func ErrExtensionSupportRequired(uri string) *Error {
	return newError(CodeExtensionSupportRequired, "required extension is not supported: %s", uri)
}

func ErrVersionNotSupported(version string) *Error {
	return newError(CodeVersionNotSupported, "protocol version not supported: %s", version)
}

func ErrAuthenticationRequired() *Error {
	return newError(CodeAuthenticationRequired, "authentication required")
}

// AsError coerces any error into a protocol *Error. Non-protocol errors
// become INTERNAL_ERROR with the original message as data.
func AsError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return ErrInternal("internal error").WithData(err.Error())
}
