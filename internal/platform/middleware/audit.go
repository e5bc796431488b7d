package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
)

// Audit writes an access line for every /api/v1 request: who touched which
// resource and with what outcome. Domain-level change events are recorded
// separately by the services through audit.Sink.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditablePath(req.URL.Path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if httpErr, ok := err.(*echo.HTTPError); ok {
				status = httpErr.Code
			}
			rid, _ := c.Get("request_id").(string)
			ctx := req.Context()

			logger.Info().
				Str("type", "access").
				Str("request_id", rid).
				Str("user_id", auth.UserIDFromContext(ctx)).
				Strs("user_roles", auth.RolesFromContext(ctx)).
				Str("resource_type", extractResourceType(req.URL.Path)).
				Str("action", httpMethodToAction(req.Method)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("remote_ip", c.RealIP()).
				Int("status", status).
				Msg("api_access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/")
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractResourceType returns the innermost collection named in path:
//   - /api/v1/branches/<id>/schedule    -> schedule
//   - /api/v1/schedules/<id>/entries    -> entries
//   - /api/v1/schedule-entries/<id>     -> schedule-entries
func extractResourceType(path string) string {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown"
	}
	if len(segments)%2 == 1 {
		return segments[len(segments)-1]
	}
	return segments[len(segments)-2]
}
