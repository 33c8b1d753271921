package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	persona "github.com/pilab-dev/persona-client"
)

// EchoRequireToken is RequireToken for echo. Claims are stored under ClaimsKey
// and in the request context.
func EchoRequireToken(v Validator, scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			claims, rejection := check(req.Context(), v, persona.NewInboundRequest(req), scope)
			if rejection != nil {
				if rejection.Status != http.StatusServiceUnavailable {
					c.Response().Header().Set(echo.HeaderWWWAuthenticate, authenticateHeader(rejection))
				}
				return c.JSON(rejection.Status, rejection)
			}

			c.Set(ClaimsKey, claims)
			c.SetRequest(req.WithContext(ContextWithClaims(req.Context(), claims)))

			return next(c)
		}
	}
}
