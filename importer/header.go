// Package importer maps tokenized catalog exports onto candidate products: it locates
// the header row, normalizes column names and validates each data row.
package importer

import (
	"regexp"
	"strings"

	"github.com/RemoteKing-Interns/allremotes-sub000/csvparse"
)

// Canonical column names.
const (
	ColProductCode        = "product_code"
	ColProductDescription = "product_description"
	ColProductGroup       = "product_group"
	ColSellPrice          = "sell_price"
	ColDefaultSellPrice   = "default_sell_price"
	ColImageURL           = "image_url"
	ColBasePack           = "base_pack"
	ColOnHand             = "on_hand"
)

// RequiredHeaders must all be present in the header row.
var RequiredHeaders = []string{ColProductCode, ColProductDescription}

// publicColumns are echoed back in failure reports.
var publicColumns = []string{
	ColProductCode, ColProductDescription, ColProductGroup,
	ColSellPrice, ColDefaultSellPrice, ColImageURL,
}

// HeaderScanLimit is how many leading rows are searched for the header.
const HeaderScanLimit = 25

var (
	nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

	// keyed by the normalized name with underscores removed
	synonyms = map[string]string{
		"productgroupgroupname": ColProductGroup,
		"productgroup":          ColProductGroup,
		"productcode":           ColProductCode,
		"productdescription":    ColProductDescription,
		"basepack":              ColBasePack,
		"onhand":                ColOnHand,
		"sellprice":             ColSellPrice,
		"defaultsellprice":      ColDefaultSellPrice,
		"imageurl":              ColImageURL,
	}
)

// NormalizeHeader maps a raw header cell to its canonical name, e.g.
// "Product Code" (with or without a byte-order mark) and "ProductCode" both become "product_code".
// Unknown headers are returned in snake_case.
func NormalizeHeader(raw string) string {
	h := strings.TrimSpace(raw)
	h = strings.TrimPrefix(h, "\uFEFF")
	h = strings.ToLower(h)
	h = nonAlnum.ReplaceAllString(h, "_")
	h = strings.Trim(h, "_")

	if canonical, ok := synonyms[strings.ReplaceAll(h, "_", "")]; ok {
		return canonical
	}
	return h
}

// HeaderMap resolves canonical column names to grid column indexes.
type HeaderMap struct {
	// RowIndex is the grid index of the header row.
	RowIndex int
	// Headers are the normalized names in column order.
	Headers []string
	columns map[string]int
}

// Has reports whether name is one of the header columns.
func (h HeaderMap) Has(name string) bool {
	_, ok := h.columns[name]
	return ok
}

// Missing returns the required headers absent from the map, in RequiredHeaders order.
func (h HeaderMap) Missing() []string {
	var missing []string
	for _, r := range RequiredHeaders {
		if !h.Has(r) {
			missing = append(missing, r)
		}
	}
	return missing
}

// Value returns row's cell for column name, or "" when the column or cell is absent.
func (h HeaderMap) Value(row []string, name string) string {
	idx, ok := h.columns[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// RowNumber converts a data record index into the 1-based line number shown to operators.
func (h HeaderMap) RowNumber(recordIndex int) int {
	return h.RowIndex + 2 + recordIndex
}

// NewHeaderMap builds a map from one header row. When a name repeats the
// right-most column wins.
func NewHeaderMap(rowIndex int, row []string) HeaderMap {
	h := HeaderMap{
		RowIndex: rowIndex,
		Headers:  make([]string, len(row)),
		columns:  make(map[string]int, len(row)),
	}
	for i, cell := range row {
		name := NormalizeHeader(cell)
		h.Headers[i] = name
		h.columns[name] = i
	}
	return h
}

// LocateHeader searches the first HeaderScanLimit rows for one with more than one
// column that contains every required header. Row 0 is the fallback.
func LocateHeader(grid csvparse.Grid) HeaderMap {
	limit := len(grid)
	if limit > HeaderScanLimit {
		limit = HeaderScanLimit
	}

	for i := 0; i < limit; i++ {
		if len(grid[i]) <= 1 {
			continue
		}
		h := NewHeaderMap(i, grid[i])
		if len(h.Missing()) == 0 {
			return h
		}
	}

	if len(grid) == 0 {
		return NewHeaderMap(0, nil)
	}
	return NewHeaderMap(0, grid[0])
}

// DataRecords returns the rows after the header, skipping fully blank ones.
func DataRecords(grid csvparse.Grid, h HeaderMap) [][]string {
	var records [][]string
	for i := h.RowIndex + 1; i < len(grid); i++ {
		if csvparse.IsBlankRow(grid[i]) {
			continue
		}
		records = append(records, grid[i])
	}
	return records
}

// PublicRow returns the reportable columns of row keyed by canonical name. Only
// columns present in the header are included.
func PublicRow(row []string, h HeaderMap) map[string]string {
	out := make(map[string]string, len(publicColumns))
	for _, col := range publicColumns {
		if h.Has(col) {
			out[col] = h.Value(row, col)
		}
	}
	return out
}
