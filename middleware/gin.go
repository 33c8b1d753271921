package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	persona "github.com/pilab-dev/persona-client"
)

// GinRequireToken is RequireToken for gin.
func GinRequireToken(v Validator, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, rejection := check(c.Request.Context(), v, persona.NewInboundRequest(c.Request), scope)
		if rejection != nil {
			if rejection.Status != http.StatusServiceUnavailable {
				c.Header("WWW-Authenticate", authenticateHeader(rejection))
			}
			c.AbortWithStatusJSON(rejection.Status, rejection)

			return
		}

		c.Set(ClaimsKey, claims)
		c.Request = c.Request.WithContext(ContextWithClaims(c.Request.Context(), claims))

		c.Next()
	}
}

// GinClaims returns the claims stored by GinRequireToken.
func GinClaims(c *gin.Context) (*persona.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*persona.Claims)
	return claims, ok
}
