package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/tally/pkg/context"
)

// TestAuth takes the acting official from the X-User-ID and X-User-Role headers.
//
// WARNING: Only use this when AUTH_ENABLED=false. Do not enable in production.
func TestAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			if userID := c.Request().Header.Get(HeaderUserID); userID != "" {
				ctx = context.SetActorID(ctx, userID)
			}
			if role := c.Request().Header.Get(HeaderUserRole); role != "" {
				ctx = context.SetActorRole(ctx, role)
			}

			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
