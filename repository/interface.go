package repository

import (
	"context"
	"errors"

	"github.com/RemoteKing-Interns/allremotes-sub000/importer"
	"github.com/RemoteKing-Interns/allremotes-sub000/models"
)

// ErrBulkSaveUnsupported is returned by backends that cannot take a direct product list.
var ErrBulkSaveUnsupported = errors.New("bulk product save requires a document backend")

// CatalogStore defines the catalog persistence used by the import service and the
// product endpoints. Implementations guarantee at most one record per normalized key.
type CatalogStore interface {
	Backend() string
	ListAll(ctx context.Context) ([]models.CatalogProduct, error)
	// FindByKey returns nil, nil when no record has key.
	FindByKey(ctx context.Context, key string) (*models.CatalogProduct, error)
	// Begin starts a unit of upserts. Nothing is guaranteed durable until Commit.
	Begin(ctx context.Context) (CatalogBatch, error)
	// SaveAll upserts products by id and returns how many were written.
	SaveAll(ctx context.Context, products []models.CatalogProduct) (int, error)
}

// CatalogBatch applies upserts keyed by normalized SKU.
type CatalogBatch interface {
	// Upsert updates the record for key or inserts a new one, reporting which happened.
	Upsert(ctx context.Context, key string, fields models.ProductFields) (created bool, err error)
	Commit(ctx context.Context) error
}

// SKUForKey returns the value a stored record is keyed by: its sku, else a legacy
// product_code field, else a brand that looks like a product code.
func SKUForKey(p models.CatalogProduct) string {
	if p.SKU != "" {
		return p.SKU
	}
	if code := p.ExtraString("product_code"); code != "" {
		return code
	}
	if importer.LooksLikeSKU(p.Brand) {
		return p.Brand
	}
	return ""
}

// ProductKey returns the normalized lookup key of a stored record, or "".
func ProductKey(p models.CatalogProduct) string {
	return importer.NormalizeSKUKey(SKUForKey(p))
}
