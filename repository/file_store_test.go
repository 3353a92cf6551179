package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RemoteKing-Interns/allremotes-sub000/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s := NewFileStore(filepath.Join(t.TempDir(), "data", "products.json"))
	clock := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return s
}

func writeSnapshot(t *testing.T, s *FileStore, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(body), 0o644))
}

func priceOf(v float64) *float64 { return &v }

func TestFileStore_EnsureCreatesEmptyArray(t *testing.T) {
	s := newTestFileStore(t)
	require.NoError(t, s.Ensure())

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(raw))

	products, err := s.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.NotNil(t, products)
}

func TestFileStore_NullSnapshotIsEmpty(t *testing.T) {
	s := newTestFileStore(t)
	writeSnapshot(t, s, "null")

	products, err := s.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestFileStore_CorruptedSnapshotFails(t *testing.T) {
	s := newTestFileStore(t)
	writeSnapshot(t, s, `{"not":"an array"}`)

	_, err := s.ListAll(context.Background())
	require.Error(t, err)

	_, err = s.Begin(context.Background())
	require.Error(t, err)

	raw, _ := os.ReadFile(s.Path())
	assert.Equal(t, `{"not":"an array"}`, string(raw), "a broken snapshot must not be overwritten")
}

func TestFileStore_UpsertCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	batch, err := s.Begin(ctx)
	require.NoError(t, err)
	created, err := batch.Upsert(ctx, "abc-123", models.ProductFields{
		SKU: "ABC-123", Brand: "ABC-123", Name: "Remote", Description: "Remote", Price: priceOf(12.5),
	})
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, batch.Commit(ctx))

	got, err := s.FindByKey(ctx, "abc-123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "id-1", got.ID)
	assert.Equal(t, "ABC-123", got.Brand)
	assert.Equal(t, "2024-05-01T09:30:00.000Z", got.CreatedAt)

	s.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	batch, err = s.Begin(ctx)
	require.NoError(t, err)
	created, err = batch.Upsert(ctx, "abc-123", models.ProductFields{
		SKU: "abc-123", Brand: "abc-123", Name: "Remote v2", Description: "Remote v2",
	})
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, batch.Commit(ctx))

	products, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "id-1", products[0].ID)
	assert.Equal(t, "abc-123", products[0].SKU)
	assert.Equal(t, "ABC-123", products[0].Brand)
	assert.Equal(t, "Remote v2", products[0].Name)
	assert.Nil(t, products[0].Price)
	assert.Equal(t, "2024-05-01T09:30:00.000Z", products[0].CreatedAt)
	assert.Equal(t, "2024-06-01T00:00:00.000Z", products[0].UpdatedAt)
}

func TestFileStore_NothingWrittenWithoutCommit(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	batch, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = batch.Upsert(ctx, "a1", models.ProductFields{SKU: "A1", Name: "A"})
	require.NoError(t, err)

	products, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestFileStore_PreservesUnmanagedFields(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)
	writeSnapshot(t, s, `[{"id":"p1","sku":"A1","brand":"Acme","name":"Old","category":"garage",
		"price":5,"inStock":true,"image":"","description":"Old","createdAt":"c","updatedAt":"u",
		"featured":true,"specs":{"freq":"433MHz"}}]`)

	batch, err := s.Begin(ctx)
	require.NoError(t, err)
	created, err := batch.Upsert(ctx, "a1", models.ProductFields{SKU: "A1", Brand: "A1", Name: "New", Description: "New"})
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, batch.Commit(ctx))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var docs []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, true, docs[0]["featured"])
	assert.Equal(t, map[string]interface{}{"freq": "433MHz"}, docs[0]["specs"])
	assert.Equal(t, "Acme", docs[0]["brand"])
	assert.Equal(t, "New", docs[0]["name"])
	assert.Equal(t, "a1", docs[0]["skuKey"])
	assert.Nil(t, docs[0]["inStock"])
	assert.Equal(t, "c", docs[0]["createdAt"])
}

func TestFileStore_LegacyKeysAndDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)
	writeSnapshot(t, s, `[
		{"id":"p1","sku":"","brand":"Acme","name":"Legacy code","product_code":"LC-1"},
		{"id":"p2","sku":"","brand":"BR-9","name":"Brand as code"},
		{"id":"p3","sku":"X 1","brand":"x","name":"First"},
		{"id":"p4","sku":"x1","brand":"x","name":"Second"},
		{"id":"p5","sku":"","brand":"Plain Brand","name":"Keyless"}
	]`)

	got, err := s.FindByKey(ctx, "lc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "p1", got.ID)

	got, err = s.FindByKey(ctx, "br-9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "p2", got.ID)

	batch, err := s.Begin(ctx)
	require.NoError(t, err)
	created, err := batch.Upsert(ctx, "x1", models.ProductFields{SKU: "X1", Name: "Updated"})
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, batch.Commit(ctx))

	products, err := s.ListAll(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"p1", "p2", "p3", "p5"}, ids)
	assert.Equal(t, "Updated", products[2].Name)
}

func TestFileStore_SaveAllUnsupported(t *testing.T) {
	s := newTestFileStore(t)
	_, err := s.SaveAll(context.Background(), []models.CatalogProduct{{ID: "p1"}})
	assert.ErrorIs(t, err, ErrBulkSaveUnsupported)
}

func TestFileStore_NoTempFileLeftBehind(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	batch, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = batch.Upsert(ctx, "a1", models.ProductFields{SKU: "A1", Name: "A"})
	require.NoError(t, err)
	require.NoError(t, batch.Commit(ctx))

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "products.json", entries[0].Name())
}

func TestProductKey(t *testing.T) {
	tests := []struct {
		name string
		in   models.CatalogProduct
		want string
	}{
		{"sku", models.CatalogProduct{SKU: " ABC 123 "}, "abc123"},
		{"product_code", models.CatalogProduct{Extra: map[string]interface{}{"product_code": "PC-1"}}, "pc-1"},
		{"brand that looks like a code", models.CatalogProduct{Brand: "RM_42"}, "rm_42"},
		{"brand name", models.CatalogProduct{Brand: "Acme Remotes"}, ""},
		{"empty", models.CatalogProduct{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProductKey(tt.in))
		})
	}
}
