package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, BackendFile, cfg.Backend)
	assert.Equal(t, "products.json", cfg.ProductsJSONPath)
	assert.Equal(t, DefaultMaxUploadBytes, cfg.MaxUploadBytes)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.UploadLockWait)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:3001"}, cfg.AllowedOrigins)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"PORT":             "8080",
		"MONGODB_URI":      "mongodb://localhost:27017",
		"MAX_UPLOAD_BYTES": "1024",
		"UPLOAD_LOCK_WAIT": "5",
		"REQUEST_TIMEOUT":  "2m",
		"ALLOWED_ORIGINS":  " https://admin.example , ",
	}))
	require.NoError(t, err)

	assert.Equal(t, BackendMongo, cfg.Backend)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, 5*time.Second, cfg.UploadLockWait)
	assert.Equal(t, 2*time.Minute, cfg.RequestTimeout)
	assert.Equal(t, []string{"https://admin.example"}, cfg.AllowedOrigins)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_BadNumber(t *testing.T) {
	_, err := FromEnv(envOf(map[string]string{"MAX_UPLOAD_BYTES": "lots"}))
	assert.ErrorContains(t, err, "MAX_UPLOAD_BYTES")
}

func TestResolveBackend(t *testing.T) {
	cases := []struct {
		explicit string
		uri      string
		disabled bool
		want     string
	}{
		{"", "", false, BackendFile},
		{"", "mongodb://x", false, BackendMongo},
		{"", "mongodb://x", true, BackendFile},
		{"collection", "mongodb://x", false, BackendMongo},
		{"FILE", "mongodb://x", false, BackendFile},
		{"dynamodb", "", false, BackendDynamo},
	}
	for _, tc := range cases {
		got, err := ResolveBackend(tc.explicit, tc.uri, tc.disabled)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "explicit=%q uri=%q", tc.explicit, tc.uri)
	}

	_, err := ResolveBackend("postgres", "", false)
	assert.Error(t, err)
}

func TestValidate_MongoNeedsURI(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{"STORE_BACKEND": "mongo"}))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

type fakeSecrets struct {
	values map[string]string
	err    error
}

func (f fakeSecrets) LookupCatalogSecret(_ context.Context, key string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func TestApplySecrets(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{"ADMIN_JWT_SECRET": "from-env"}))
	require.NoError(t, err)

	require.NoError(t, cfg.ApplySecrets(context.Background(), fakeSecrets{values: map[string]string{
		"MONGODB_URI": "mongodb://secret:27017",
	}}))
	assert.Equal(t, "mongodb://secret:27017", cfg.MongoURI)
	assert.Equal(t, "from-env", cfg.AdminJWTSecret)

	err = cfg.ApplySecrets(context.Background(), fakeSecrets{err: errors.New("access denied")})
	assert.ErrorContains(t, err, "MONGODB_URI")
	assert.Equal(t, "mongodb://secret:27017", cfg.MongoURI)
}
