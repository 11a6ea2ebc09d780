package middleware

import (
	"github.com/labstack/echo/v4"
)

const (
	// UIDKey is the echo context key holding the caller id.
	UIDKey         = "uid"
	HeaderCallerID = "X-User-Id"
	DefaultCaller  = "U_DEV_DEFAULT"
)

// CallerID tags each request with the caller id. Identity is asserted by
// whatever sits in front of the service; it is read from the X-User-Id
// header, then the uid query parameter, then falls back to a dev user.
func CallerID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := c.Request().Header.Get(HeaderCallerID)
			if uid == "" {
				uid = c.QueryParam("uid")
			}
			if uid == "" {
				uid = DefaultCaller
			}
			c.Set(UIDKey, uid)
			return next(c)
		}
	}
}

// UID returns the caller id set by CallerID.
func UID(c echo.Context) string {
	if v, ok := c.Get(UIDKey).(string); ok && v != "" {
		return v
	}
	return DefaultCaller
}
