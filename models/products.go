package models

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// TimestampLayout renders UTC instants with millisecond precision, e.g. 2024-05-01T09:30:00.000Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t for createdAt / updatedAt.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CatalogProduct is a persisted catalog record. Keys the service does not manage are
// kept in Extra and written back unchanged.
type CatalogProduct struct {
	ID          string   `json:"id" bson:"id"`
	SKU         string   `json:"sku" bson:"sku"`
	SKUKey      string   `json:"skuKey,omitempty" bson:"skuKey,omitempty"`
	Brand       string   `json:"brand" bson:"brand"`
	Name        string   `json:"name" bson:"name"`
	Category    *string  `json:"category" bson:"category"`
	Price       *float64 `json:"price" bson:"price"`
	InStock     *bool    `json:"inStock" bson:"inStock"`
	Image       string   `json:"image" bson:"image"`
	Description string   `json:"description" bson:"description"`
	CreatedAt   string   `json:"createdAt" bson:"createdAt"`
	UpdatedAt   string   `json:"updatedAt" bson:"updatedAt"`

	Extra map[string]interface{} `json:"-" bson:",inline"`
}

// ProductFields are the values an import row sets on a catalog record.
type ProductFields struct {
	SKU         string
	Brand       string // used only when the record is created or has no brand
	Name        string
	Category    *string
	Price       *float64
	InStock     *bool
	Image       string
	Description string
}

var managedKeys = map[string]bool{
	"id": true, "sku": true, "skuKey": true, "brand": true, "name": true,
	"category": true, "price": true, "inStock": true, "image": true,
	"description": true, "createdAt": true, "updatedAt": true,
}

// IsManagedKey reports whether k is one of the CatalogProduct JSON keys.
func IsManagedKey(k string) bool {
	return managedKeys[k]
}

type catalogProductJSON CatalogProduct

// MarshalJSON writes the managed fields followed by Extra in key order.
func (p CatalogProduct) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(catalogProductJSON(p))
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		if !managedKeys[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return base, nil
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(base[:len(base)-1])
	for _, k := range keys {
		kb, _ := json.Marshal(k)
		vb, err := json.Marshal(p.Extra[k])
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the managed fields and collects the rest into Extra.
func (p *CatalogProduct) UnmarshalJSON(data []byte) error {
	var base catalogProductJSON
	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var all map[string]interface{}
	if err := dec.Decode(&all); err != nil {
		return err
	}

	base.Extra = nil
	for k, v := range all {
		if managedKeys[k] {
			continue
		}
		if base.Extra == nil {
			base.Extra = make(map[string]interface{})
		}
		base.Extra[k] = v
	}
	*p = CatalogProduct(base)
	return nil
}

// ExtraString returns Extra[k] when it is a non-empty string.
func (p CatalogProduct) ExtraString(k string) string {
	if s, ok := p.Extra[k].(string); ok {
		return s
	}
	return ""
}

// Apply overwrites the import-managed fields with f. A brand already on the record
// is kept.
func (p *CatalogProduct) Apply(f ProductFields, key, now string) {
	p.SKU = f.SKU
	p.SKUKey = key
	if p.Brand == "" {
		p.Brand = f.Brand
		if p.Brand == "" {
			p.Brand = f.SKU
		}
	}
	p.Name = f.Name
	p.Category = f.Category
	p.Price = f.Price
	p.InStock = f.InStock
	p.Image = f.Image
	p.Description = f.Description
	p.UpdatedAt = now
}

// NewCatalogProduct builds a fresh record for key.
func NewCatalogProduct(id string, f ProductFields, key, now string) CatalogProduct {
	p := CatalogProduct{ID: id, CreatedAt: now}
	p.Apply(f, key, now)
	return p
}
