package controllers

import (
	"context"
	"io"
	"time"

	"github.com/RemoteKing-Interns/allremotes-sub000/models"
)

// DefaultContextTimeout bounds a single upload when the router sets no deadline.
const DefaultContextTimeout = 60 * time.Second

// ImportServiceAPI defines the catalog upload operations
type ImportServiceAPI interface {
	Import(ctx context.Context, contentType string, body io.Reader) (*models.ImportReport, error)
	LastReport(ctx context.Context) (*models.ImportRecord, error)
}

// ProductServiceAPI defines the catalog read and bulk-save operations
type ProductServiceAPI interface {
	List(ctx context.Context) ([]models.CatalogProduct, error)
	SaveAll(ctx context.Context, products []models.CatalogProduct) (int, error)
}
