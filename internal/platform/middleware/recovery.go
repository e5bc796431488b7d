package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/audit"
	"github.com/clinic/clinic/internal/platform/auth"
)

// Recovery turns a handler panic into a 500 and logs it together with the
// request context. http.ErrAbortHandler is re-raised for net/http.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				stack := make([]byte, 4<<10)
				stack = stack[:runtime.Stack(stack, false)]
				ctx := c.Request().Context()

				logger.Error().
					Str("request_id", audit.RequestIDFromContext(ctx)).
					Str("method", c.Request().Method).
					Str("route", c.Path()).
					Str("user_id", auth.UserIDFromContext(ctx)).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", stack).
					Msg("handler panicked")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error").
					SetInternal(fmt.Errorf("panic: %v", r))
			}()
			return next(c)
		}
	}
}
