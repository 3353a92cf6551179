package middleware

import (
	"context"
	"strings"
	"time"

	awspkg "github.com/RemoteKing-Interns/allremotes-sub000/pkg/aws"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records request count, latency and errors per route, tagged with the
// active catalog backend. Multipart uploads also report their declared body size.
func MetricsMiddleware(recorder awspkg.MetricsRecorder, serviceName, backend string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if recorder == nil || !recorder.IsEnabled() {
			c.Next()
			return
		}

		start := time.Now()
		uploadBytes := int64(0)
		if strings.HasPrefix(c.ContentType(), "multipart/") && c.Request.ContentLength > 0 {
			uploadBytes = c.Request.ContentLength
		}

		c.Next()

		took := time.Since(start)
		statusCode := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		dims := map[string]string{
			"Service": serviceName,
			"Backend": backend,
			"Method":  c.Request.Method,
			"Path":    route,
			"Status":  statusCodeToRange(statusCode),
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = recorder.RecordCount(ctx, awspkg.MetricHTTPRequests, dims)
			if statusCode >= 400 {
				_ = recorder.RecordCount(ctx, awspkg.MetricHTTPErrors, dims)
			}
			if uploadBytes > 0 {
				_ = recorder.RecordValue(ctx, awspkg.MetricUploadBytes, float64(uploadBytes), dims)
			}
			_ = recorder.RecordLatency(ctx, awspkg.MetricHTTPLatency, took, dims)
		}()
	}
}

// statusCodeToRange buckets a status code as 2xx, 3xx, 4xx or 5xx.
func statusCodeToRange(statusCode int) string {
	switch {
	case statusCode < 200 || statusCode >= 600:
		return "unknown"
	case statusCode >= 500:
		return "5xx"
	case statusCode >= 400:
		return "4xx"
	case statusCode >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
