package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/RemoteKing-Interns/allremotes-sub000/common/errors"
)

// MsgNotProductArray is the error body for a malformed bulk save.
const MsgNotProductArray = "Body must be an array of products."

// ProductController serves the catalog to the storefront and the admin bulk editor
type ProductController struct {
	products  ProductServiceAPI
	validator *RequestValidator
}

func NewProductController(products ProductServiceAPI, validator *RequestValidator) *ProductController {
	return &ProductController{products: products, validator: validator}
}

// GetProducts returns the whole catalog as a JSON array
func (h *ProductController) GetProducts(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	products, err := h.products.List(c.Request.Context())
	if err != nil {
		zap.L().Error("Error loading products", zap.Error(err))
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// SaveProducts upserts a submitted product array by id
func (h *ProductController) SaveProducts(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	products, err := h.validator.ParseProductArray(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": MsgNotProductArray})
		return
	}

	saved, err := h.products.SaveAll(c.Request.Context(), products)
	if err != nil {
		zap.L().Error("Error saving products", zap.Int("count", len(products)), zap.Error(err))
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "saved": saved})
}
