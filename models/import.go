package models

// ImportReport is the response body of a catalog upload.
type ImportReport struct {
	Created   int          `json:"created"`
	Updated   int          `json:"updated"`
	Failed    int          `json:"failed"`
	TotalRows int          `json:"totalRows"`
	Failures  []RowFailure `json:"failures"`
}

// NewImportReport returns an empty report whose failures encode as [].
func NewImportReport() *ImportReport {
	return &ImportReport{Failures: []RowFailure{}}
}

// AddFailure appends f and keeps Failed in sync.
func (r *ImportReport) AddFailure(f RowFailure) {
	r.Failures = append(r.Failures, f)
	r.Failed = len(r.Failures)
}

// RowFailure describes one rejected data row.
type RowFailure struct {
	RowNumber int               `json:"rowNumber"`
	Key       string            `json:"key"`
	SKU       *string           `json:"sku"`
	Brand     *string           `json:"brand"`
	Name      *string           `json:"name"`
	Errors    []string          `json:"errors"`
	Row       map[string]string `json:"row"`
}

// ImportRecord is the stored summary of the most recent upload.
type ImportRecord struct {
	RequestID  string       `json:"requestId"`
	FileName   string       `json:"fileName"`
	Backend    string       `json:"backend"`
	ArchiveKey string       `json:"archiveKey,omitempty"`
	FinishedAt string       `json:"finishedAt"`
	Report     ImportReport `json:"report"`
}

// CatalogImportedEvent is published after a successful upload.
type CatalogImportedEvent struct {
	Type       string `json:"type"`
	RequestID  string `json:"requestId"`
	Backend    string `json:"backend"`
	FileName   string `json:"fileName"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Failed     int    `json:"failed"`
	TotalRows  int    `json:"totalRows"`
	OccurredAt string `json:"occurredAt"`
}
