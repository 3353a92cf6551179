package routes

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RemoteKing-Interns/allremotes-sub000/common/middleware"
	"github.com/RemoteKing-Interns/allremotes-sub000/controllers"
	"github.com/RemoteKing-Interns/allremotes-sub000/repository"
	"github.com/RemoteKing-Interns/allremotes-sub000/services"
	"github.com/RemoteKing-Interns/allremotes-sub000/upload"
)

func newCatalogRouter(t *testing.T, guards Guards) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	store := repository.NewFileStore(filepath.Join(dir, "products.json"))
	imports := services.NewImportService(services.ImportDeps{
		Store:  store,
		Upload: upload.Options{Dir: filepath.Join(dir, "uploads"), MaxBytes: 1 << 20},
	})
	v := controllers.NewRequestValidator()

	r := gin.New()
	RegisterRoutes(r,
		controllers.NewUploadController(imports, v, 1<<20, ""),
		controllers.NewProductController(services.NewProductService(store), v),
		guards,
	)
	return r
}

func uploadRequest(t *testing.T, csv string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("csv", "products.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/upload-products", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadThenList(t *testing.T) {
	r := newCatalogRouter(t, Guards{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "Product Code,Product Description,Sell Price\nAB-1,Garage Remote,19.95\n"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"created":1,"updated":0,"failed":0,"totalRows":1,"failures":[]}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var products []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &products))
	require.Len(t, products, 1)
	assert.Equal(t, "AB-1", products[0]["sku"])
	assert.Equal(t, "ab-1", products[0]["skuKey"])
	assert.Equal(t, 19.95, products[0]["price"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/upload-products/last", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBulkSaveOnFileBackend(t *testing.T) {
	r := newCatalogRouter(t, Guards{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/admin/products", bytes.NewBufferString(`[{"id":"p1"}]`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "MongoDB is not configured. Set MONGODB_URI.")
}

func TestAdminGuard(t *testing.T) {
	secret := "test-secret"
	r := newCatalogRouter(t, Guards{Admin: middleware.AdminAuth(secret)})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/upload-products/template.csv", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "admin-1",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/upload-products/template.csv", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, controllers.DefaultTemplate, w.Body.String())
}

func TestUploadGuardRuns(t *testing.T) {
	limiter := middleware.NewRateLimiter(0, 0, time.Minute)
	r := newCatalogRouter(t, Guards{Upload: middleware.RateLimitMiddleware(limiter)})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "Product Code,Product Description\nA1,Remote\n"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
