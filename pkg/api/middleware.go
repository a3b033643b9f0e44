package api

import (
	echo "github.com/labstack/echo/v5"

	"github.com/agentmesh/agentmesh/pkg/protocol"
)

// versionHeader negotiates the protocol dialect per request.
const versionHeader = "A2A-Version"

// supportedVersion reports whether a request's A2A-Version header is
// acceptable. An absent header means the current version.
func supportedVersion(v string) bool {
	switch v {
	case "", "0.3", "1.0":
		return true
	}
	return false
}

// versionNegotiation rejects unsupported protocol versions on the REST
// binding. The JSON-RPC endpoint performs its own check so the error can
// ride a JSON-RPC frame.
func (s *Server) versionNegotiation(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if c.Request().URL.Path == "/a2a" {
			return next(c)
		}
		if v := c.Request().Header.Get(versionHeader); !supportedVersion(v) {
			return writeRESTError(c, protocol.ErrVersionNotSupported(v))
		}
		return next(c)
	}
}

// securityHeaders returns middleware that sets standard security response
// headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}
