package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/RemoteKing-Interns/allremotes-sub000/models"
)

// ErrNotProductArray is returned when a bulk save body is not a JSON array of objects.
var ErrNotProductArray = errors.New("body must be an array of products")

// TemplateQuery holds the template download parameters
type TemplateQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv xlsx"`
}

// RequestValidator handles all input validation
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{
		validate: validator.New(),
	}
}

// ParseTemplateQuery validates the template format, defaulting to csv.
func (rv *RequestValidator) ParseTemplateQuery(c *gin.Context) (TemplateQuery, error) {
	var q TemplateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return q, fmt.Errorf("invalid query: %w", err)
	}
	if err := rv.validate.Struct(&q); err != nil {
		return q, errors.New("format must be csv or xlsx")
	}
	if q.Format == "" {
		q.Format = "csv"
	}
	return q, nil
}

// ParseProductArray decodes a bulk save body. Anything but an array of objects is rejected.
func (rv *RequestValidator) ParseProductArray(raw []byte) ([]models.CatalogProduct, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, ErrNotProductArray
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, ErrNotProductArray
	}

	products := make([]models.CatalogProduct, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return nil, ErrNotProductArray
		}
		var p models.CatalogProduct
		if err := json.Unmarshal(item, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotProductArray, err)
		}
		products = append(products, p)
	}
	return products, nil
}
