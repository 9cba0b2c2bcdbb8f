package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/ebook-storefront/internal/metrics"
)

// RequestLogger writes one structured line per request and records the
// request in m.  The route template (c.Path) is used as the metric label so
// ids in URLs do not explode cardinality.
func RequestLogger(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let echo's error handler write the response so the status
				// below is the one the client sees.
				c.Error(err)
			}
			elapsed := time.Since(start)
			req, res := c.Request(), c.Response()

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveHTTP(route, req.Method, res.Status, elapsed)

			fields := log.Fields{
				"method":     req.Method,
				"path":       req.URL.Path,
				"route":      route,
				"status":     res.Status,
				"latency_ms": elapsed.Milliseconds(),
				"bytes_out":  res.Size,
				"remote_ip":  c.RealIP(),
				"request_id": res.Header().Get(echo.HeaderXRequestID),
			}
			if uid, ok := UserID(c); ok {
				fields["user_id"] = uid
			}
			entry := log.WithFields(fields)
			if err != nil {
				entry = entry.WithError(err)
			}
			switch {
			case res.Status >= 500:
				entry.Error("request")
			case res.Status >= 400:
				entry.Warn("request")
			default:
				entry.Info("request")
			}
			return nil
		}
	}
}
