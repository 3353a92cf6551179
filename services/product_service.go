package services

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/RemoteKing-Interns/allremotes-sub000/common/errors"
	"github.com/RemoteKing-Interns/allremotes-sub000/models"
	"github.com/RemoteKing-Interns/allremotes-sub000/repository"
)

const (
	MsgLoadFailed          = "Failed to load products"
	MsgSaveFailed          = "Failed to save products"
	MsgDocumentStoreNeeded = "MongoDB is not configured. Set MONGODB_URI."
)

// ProductService serves the catalog read and bulk-save endpoints.
type ProductService struct {
	store repository.CatalogStore
}

func NewProductService(store repository.CatalogStore) *ProductService {
	return &ProductService{store: store}
}

// List returns the whole catalog.
func (s *ProductService) List(ctx context.Context) ([]models.CatalogProduct, error) {
	products, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, apperrors.Internal(MsgLoadFailed, err)
	}
	return products, nil
}

// SaveAll upserts the submitted products by id. Only document backends support it.
func (s *ProductService) SaveAll(ctx context.Context, products []models.CatalogProduct) (int, error) {
	n, err := s.store.SaveAll(ctx, products)
	if errors.Is(err, repository.ErrBulkSaveUnsupported) {
		return 0, apperrors.New(http.StatusBadRequest, MsgDocumentStoreNeeded, nil)
	}
	if err != nil {
		return 0, apperrors.Internal(MsgSaveFailed, err)
	}
	return n, nil
}
