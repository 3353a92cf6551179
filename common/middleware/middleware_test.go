package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.POST("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestSecurityHeaders(t *testing.T) {
	r := newRouter(SecurityHeaders())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRateLimitMiddleware_BlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(rate.Every(time.Hour), 2, time.Minute)
	r := newRouter(RateLimitMiddleware(limiter))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ping", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRequestLogger_LevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(&buf), zap.DebugLevel)
	r := newRouter(RequestLogger(zap.New(core)))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"status":404`)
}

func TestTimeout_SetsDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Timeout(time.Second))

	var hasDeadline bool
	r.GET("/", func(c *gin.Context) {
		_, hasDeadline = c.Request.Context().Deadline()
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, hasDeadline)
}

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAdminAuth(t *testing.T) {
	r := newRouter(AdminAuth("s3cret"))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signed(t, "other", jwt.MapClaims{"role": "admin"}), http.StatusUnauthorized},
		{"not admin", "Bearer " + signed(t, "s3cret", jwt.MapClaims{"role": "customer"}), http.StatusUnauthorized},
		{"admin", "Bearer " + signed(t, "s3cret", jwt.MapClaims{"role": "admin", "sub": "ops"}), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestAdminAuth_DisabledWithoutSecret(t *testing.T) {
	r := newRouter(AdminAuth(""))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

type fakeRecorder struct {
	mu     sync.Mutex
	counts map[string]int
	values map[string]float64
	dims   map[string]string
	done   chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{counts: map[string]int{}, values: map[string]float64{}, done: make(chan struct{})}
}

func (f *fakeRecorder) IsEnabled() bool { return true }

func (f *fakeRecorder) RecordCount(_ context.Context, name string, dims map[string]string) error {
	f.mu.Lock()
	f.counts[name]++
	f.dims = dims
	f.mu.Unlock()
	return nil
}

func (f *fakeRecorder) RecordLatency(_ context.Context, _ string, _ time.Duration, _ map[string]string) error {
	close(f.done)
	return nil
}

func (f *fakeRecorder) RecordValue(_ context.Context, name string, v float64, _ map[string]string) error {
	f.mu.Lock()
	f.values[name] = v
	f.mu.Unlock()
	return nil
}

func (f *fakeRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("metrics were not recorded")
	}
}

func TestMetricsMiddleware_RecordsRequest(t *testing.T) {
	rec := newFakeRecorder()
	r := newRouter(MetricsMiddleware(rec, "catalog", "mongo"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.counts["HTTPRequests"])
	assert.Equal(t, 0, rec.counts["HTTPErrors"])
	assert.Equal(t, "mongo", rec.dims["Backend"])
	assert.Equal(t, "/ping", rec.dims["Path"])
	assert.Empty(t, rec.values)
}

func TestMetricsMiddleware_RecordsUploadSize(t *testing.T) {
	rec := newFakeRecorder()
	r := newRouter(MetricsMiddleware(rec, "catalog", "file"))

	body := bytes.NewBufferString("--x\r\n\r\n--x--\r\n")
	req := httptest.NewRequest(http.MethodPost, "/ping", body)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	r.ServeHTTP(httptest.NewRecorder(), req)
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, float64(req.ContentLength), rec.values["CatalogUploadBytes"])
}

func TestStatusCodeToRange(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToRange(201))
	assert.Equal(t, "4xx", statusCodeToRange(413))
	assert.Equal(t, "5xx", statusCodeToRange(500))
	assert.Equal(t, "3xx", statusCodeToRange(304))
	assert.Equal(t, "unknown", statusCodeToRange(100))
	assert.Equal(t, "unknown", statusCodeToRange(600))
}
