package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// restErrorBody is the REST binding's error envelope.
type restErrorBody struct {
	Error *protocol.Error `json:"error"`
}

// httpStatusFor maps a protocol error code onto a REST status. The JSON-RPC
// binding never uses this: there protocol errors ride in a 200 response.
func httpStatusFor(code int) int {
	switch code {
	case protocol.CodeTaskNotFound, protocol.CodeMethodNotFound, protocol.CodeExtendedCardNotConfigured:
		return http.StatusNotFound
	case protocol.CodeTaskNotCancelable:
		return http.StatusConflict
	case protocol.CodeContentTypeNotSupported:
		return http.StatusUnprocessableEntity
	case protocol.CodeAuthenticationRequired:
		return http.StatusUnauthorized
	case protocol.CodePushNotificationUnsupported, protocol.CodeUnsupportedOperation:
		return http.StatusNotImplemented
	case protocol.CodeInternalError, protocol.CodeInvalidAgentResponse:
		return http.StatusInternalServerError
	default:
		// Parse, invalid request/params, version, extension.
		return http.StatusBadRequest
	}
}

// writeRESTError renders any error as the REST error envelope.
func writeRESTError(c *echo.Context, err error) error {
	perr := protocol.AsError(err)
	return c.JSON(httpStatusFor(perr.Code), restErrorBody{Error: perr})
}
