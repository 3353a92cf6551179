package importer

import (
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Row-level validation messages.
const (
	ErrMissingSKU       = "Missing required field: Product Code"
	ErrMissingName      = "Missing required field: Name (Product Description)"
	ErrPriceNotNumber   = "Price must be a number (SellPrice/DefaultSellPrice)"
	ErrPriceNotPositive = "Price must be greater than 0 (SellPrice/DefaultSellPrice)"
	ErrDuplicateSKU     = "Duplicate Product Code in uploaded CSV"
)

// Candidate is the normalized product produced from one data row.
type Candidate struct {
	SKU         string
	Name        string
	Brand       string
	Category    *string
	Price       *float64
	Image       string
	Description string
}

// Result is the outcome of validating one row.
type Result struct {
	OK      bool
	Errors  []string
	Key     string
	Product Candidate
}

// isSpace covers Unicode white space (NBSP and the other Zs runes included) plus the
// zero-width no-break space that spreadsheet exports leave behind.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

// NormalizeSKUKey folds a product code into its lookup key: lower-cased with all
// whitespace removed. "ABC-123", " abc-123 " and "Abc\u00a0123" style codes share one key.
func NormalizeSKUKey(sku string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(sku), isSpace), "")
}

// LooksLikeSKU reports whether v plausibly is a product code rather than a brand
// name: short, no whitespace, and containing a digit, '-' or '_'.
func LooksLikeSKU(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || len([]rune(v)) > 80 || strings.IndexFunc(v, isSpace) >= 0 {
		return false
	}
	return strings.ContainsAny(v, "0123456789-_")
}

// InferCategory maps vendor group text onto a storefront category. Group text that
// matches no keyword is kept verbatim; blank text yields nil.
func InferCategory(group string) *string {
	group = strings.TrimSpace(group)
	if group == "" {
		return nil
	}

	g := strings.ToLower(group)
	category := group
	switch {
	case strings.Contains(g, "garage"), strings.Contains(g, "gate"):
		category = "garage"
	case strings.Contains(g, "auto"), strings.Contains(g, "car"):
		category = "car"
	}
	return &category
}

// CoercePrice parses "12.34" or "$12.34". ok is false when s is not a finite number,
// including exponent forms such as "1e400" that overflow a float64.
func CoercePrice(s string) (price float64, ok bool) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(s), "$")
	d, err := decimal.NewFromString(strings.TrimSpace(cleaned))
	if err != nil {
		return 0, false
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// resolvePrice returns the first parseable of the sell and default sell prices.
// present is true when either column held text.
func resolvePrice(sell, fallback string) (price *float64, present bool) {
	for _, raw := range []string{sell, fallback} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		present = true
		if p, ok := CoercePrice(raw); ok {
			return &p, true
		}
	}
	return nil, present
}

// MapRow builds a Candidate from row through h.
func MapRow(row []string, h HeaderMap) (Candidate, bool) {
	sku := strings.TrimSpace(h.Value(row, ColProductCode))
	name := strings.TrimSpace(h.Value(row, ColProductDescription))
	price, pricePresent := resolvePrice(h.Value(row, ColSellPrice), h.Value(row, ColDefaultSellPrice))

	return Candidate{
		SKU:         sku,
		Name:        name,
		Brand:       sku,
		Category:    InferCategory(h.Value(row, ColProductGroup)),
		Price:       price,
		Image:       strings.TrimSpace(h.Value(row, ColImageURL)),
		Description: name,
	}, pricePresent
}

// ValidateRow maps row and collects every rule it breaks. seen holds the keys of earlier
// rows in the same upload; the caller adds Result.Key to it when the SKU is non-empty.
func ValidateRow(row []string, h HeaderMap, seen map[string]struct{}) Result {
	product, pricePresent := MapRow(row, h)
	key := NormalizeSKUKey(product.SKU)

	var errs []string
	if product.SKU == "" {
		errs = append(errs, ErrMissingSKU)
	}
	if product.Name == "" {
		errs = append(errs, ErrMissingName)
	}
	switch {
	case product.Price == nil && pricePresent:
		errs = append(errs, ErrPriceNotNumber)
	case product.Price != nil && *product.Price <= 0:
		errs = append(errs, ErrPriceNotPositive)
	}
	if product.SKU != "" {
		if _, dup := seen[key]; dup {
			errs = append(errs, ErrDuplicateSKU)
		}
	}

	return Result{OK: len(errs) == 0, Errors: errs, Key: key, Product: product}
}
