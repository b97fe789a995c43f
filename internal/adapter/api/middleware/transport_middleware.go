package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// TransportSecret guards the inbound message webhook: the chat transport
// signs every call with a shared secret header instead of a user token.
func TransportSecret(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				// No secret configured (local development).
				return next(c)
			}

			got := c.Request().Header.Get("X-Transport-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid transport secret")
			}
			return next(c)
		}
	}
}
