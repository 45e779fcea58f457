package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// HeaderAPIKey is the request header carrying the client API key.
const HeaderAPIKey = "X-API-KEY"

// APIKey returns middleware that rejects API requests without a valid key.
// Non-API routes (metrics, health) are left open for scraping.
func APIKey(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(c.Path(), "/api") {
				return next(c)
			}
			got := c.Request().Header.Get(HeaderAPIKey)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"status":  http.StatusUnauthorized,
					"message": "Unauthorized: Invalid API Key",
				})
			}
			return next(c)
		}
	}
}
