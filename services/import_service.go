package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	apperrors "github.com/RemoteKing-Interns/allremotes-sub000/common/errors"
	"github.com/RemoteKing-Interns/allremotes-sub000/common/logger"
	"github.com/RemoteKing-Interns/allremotes-sub000/csvparse"
	"github.com/RemoteKing-Interns/allremotes-sub000/importer"
	"github.com/RemoteKing-Interns/allremotes-sub000/models"
	awspkg "github.com/RemoteKing-Interns/allremotes-sub000/pkg/aws"
	"github.com/RemoteKing-Interns/allremotes-sub000/repository"
	"github.com/RemoteKing-Interns/allremotes-sub000/upload"
	"go.uber.org/zap"
)

// Response messages of the upload endpoint.
const (
	MsgUploadFailed   = "Failed to process CSV upload"
	MsgNoDataRows     = "CSV contains no data rows"
	MsgMissingHeaders = "CSV is missing required headers"
)

// Stage is a step of one upload's lifecycle.
type Stage string

const (
	StageReceived       Stage = "received"
	StageExtracted      Stage = "extracted"
	StageTokenized      Stage = "tokenized"
	StageHeaderResolved Stage = "header_resolved"
	StageRowsValidated  Stage = "rows_validated"
	StagePersisted      Stage = "persisted"
	StageCleanedUp      Stage = "cleaned_up"
	StageFailed         Stage = "failed"
)

// Archiver keeps a copy of accepted upload files.
type Archiver interface {
	Archive(ctx context.Context, localPath, name string) (string, error)
}

// ImportDeps wires the import service. Store and Upload are required; the other
// collaborators are optional.
type ImportDeps struct {
	Store    repository.CatalogStore
	Upload   upload.Options
	Lock     UploadLock
	LockWait time.Duration
	Reports  ReportStore
	Archiver Archiver
	Events   EventPublisher
	Metrics  awspkg.MetricsRecorder
}

// ImportService runs the catalog upload pipeline against one store.
type ImportService struct {
	store    repository.CatalogStore
	upload   upload.Options
	lock     UploadLock
	lockWait time.Duration
	reports  ReportStore
	archiver Archiver
	events   EventPublisher
	metrics  awspkg.MetricsRecorder
	now      func() time.Time
}

func NewImportService(deps ImportDeps) *ImportService {
	s := &ImportService{
		store:    deps.Store,
		upload:   deps.Upload,
		lock:     deps.Lock,
		lockWait: deps.LockWait,
		reports:  deps.Reports,
		archiver: deps.Archiver,
		events:   deps.Events,
		metrics:  deps.Metrics,
		now:      time.Now,
	}
	if s.lock == nil {
		s.lock = NewLocalUploadLock()
	}
	if s.lockWait <= 0 {
		s.lockWait = 30 * time.Second
	}
	if s.reports == nil {
		s.reports = NewMemoryReportStore()
	}
	return s
}

// Backend names the store uploads are written to.
func (s *ImportService) Backend() string { return s.store.Backend() }

// detailError renders a fixed operator-facing message while keeping the cause.
type detailError struct {
	msg string
	err error
}

func (e *detailError) Error() string { return e.msg }
func (e *detailError) Unwrap() error { return e.err }

func uploadFailure(code int, detail string, cause error) *apperrors.Error {
	return apperrors.New(code, MsgUploadFailed, &detailError{msg: detail, err: cause})
}

// classifyExtractError maps extractor failures onto HTTP errors.
func classifyExtractError(err error) *apperrors.Error {
	switch {
	case errors.Is(err, upload.ErrMissingBoundary):
		return uploadFailure(http.StatusBadRequest, "Expected multipart/form-data with boundary", err)
	case errors.Is(err, upload.ErrTooLarge):
		return uploadFailure(http.StatusRequestEntityTooLarge, "Upload too large", err)
	case errors.Is(err, upload.ErrUnsupportedType):
		return uploadFailure(http.StatusBadRequest, "Only .csv files are allowed", err)
	case errors.Is(err, upload.ErrMissingFile):
		return uploadFailure(http.StatusBadRequest, `Missing file field "csv"`, err)
	default:
		return apperrors.Internal(MsgUploadFailed, err)
	}
}

// Import extracts the csv field from a multipart body and upserts every valid row.
// The temp upload file is removed on every path.
func (s *ImportService) Import(ctx context.Context, contentType string, body io.Reader) (report *models.ImportReport, err error) {
	log := logger.FromContext(ctx).With(zap.String("backend", s.store.Backend()))
	start := s.now()
	stage := StageReceived
	log.Debug("Catalog upload stage", zap.String("stage", string(stage)))

	defer func() {
		if err != nil {
			log.Warn("Catalog upload failed",
				zap.String("stage", string(StageFailed)),
				zap.String("last_stage", string(stage)),
				zap.Error(err),
			)
			s.recordRejected(stage)
		}
	}()

	file, err := upload.Extract(contentType, body, s.upload)
	if err != nil {
		return nil, classifyExtractError(err)
	}
	defer func() {
		if rmErr := file.Remove(); rmErr != nil {
			log.Warn("Failed to remove upload file", zap.String("path", file.Path), zap.Error(rmErr))
		}
		log.Debug("Catalog upload stage", zap.String("stage", string(StageCleanedUp)))
	}()
	stage = s.advance(log, StageExtracted, zap.String("file", file.OriginalName), zap.Int64("bytes", file.Size))

	raw, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, apperrors.Internal(MsgUploadFailed, fmt.Errorf("read upload: %w", err))
	}
	grid, err := csvparse.Parse(string(raw))
	if err != nil {
		return nil, uploadFailure(http.StatusBadRequest, err.Error(), err)
	}
	stage = s.advance(log, StageTokenized, zap.Int("rows", len(grid)))

	header := importer.LocateHeader(grid)
	if missing := header.Missing(); len(missing) > 0 {
		return nil, apperrors.BadRequest(MsgMissingHeaders, nil).
			With("missingHeaders", missing).
			With("requiredHeaders", importer.RequiredHeaders).
			With("foundHeaders", header.Headers)
	}
	records := importer.DataRecords(grid, header)
	if len(records) == 0 {
		return nil, apperrors.BadRequest(MsgNoDataRows, nil)
	}
	stage = s.advance(log, StageHeaderResolved, zap.Int("header_row", header.RowIndex), zap.Int("records", len(records)))

	archiveKey := s.archive(ctx, log, file)

	release, err := s.lock.Acquire(ctx, s.store.Backend(), s.lockWait)
	if err != nil {
		if errors.Is(err, ErrLockTimeout) {
			return nil, uploadFailure(http.StatusConflict, err.Error(), err)
		}
		return nil, apperrors.Internal(MsgUploadFailed, err)
	}
	defer release()

	batch, report, err := s.apply(ctx, header, records)
	if err != nil {
		return nil, apperrors.Internal(MsgUploadFailed, err)
	}
	stage = s.advance(log, StageRowsValidated,
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
	)

	if err := batch.Commit(ctx); err != nil {
		return nil, apperrors.Internal(MsgUploadFailed, fmt.Errorf("write catalog: %w", err))
	}
	stage = s.advance(log, StagePersisted)

	s.finish(ctx, log, file, archiveKey, report, s.now().Sub(start))
	return report, nil
}

// apply validates records in file order and upserts the valid ones into a new batch.
// The caller commits the batch.
func (s *ImportService) apply(ctx context.Context, header importer.HeaderMap, records [][]string) (repository.CatalogBatch, *models.ImportReport, error) {
	batch, err := s.store.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog: %w", err)
	}

	report := models.NewImportReport()
	report.TotalRows = len(records)
	seen := make(map[string]struct{}, len(records))

	for idx, row := range records {
		res := importer.ValidateRow(row, header, seen)
		if res.Product.SKU != "" {
			seen[res.Key] = struct{}{}
		}

		if !res.OK {
			report.AddFailure(models.RowFailure{
				RowNumber: header.RowNumber(idx),
				Key:       res.Key,
				SKU:       optional(res.Product.SKU),
				Brand:     optional(res.Product.Brand),
				Name:      optional(res.Product.Name),
				Errors:    res.Errors,
				Row:       importer.PublicRow(row, header),
			})
			continue
		}

		created, err := batch.Upsert(ctx, res.Key, productFields(res.Product))
		if err != nil {
			return nil, nil, err
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}
	}
	return batch, report, nil
}

func productFields(c importer.Candidate) models.ProductFields {
	return models.ProductFields{
		SKU:         c.SKU,
		Brand:       c.Brand,
		Name:        c.Name,
		Category:    c.Category,
		Price:       c.Price,
		Image:       c.Image,
		Description: c.Description,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *ImportService) advance(log *zap.Logger, stage Stage, fields ...zap.Field) Stage {
	log.Debug("Catalog upload stage", append([]zap.Field{zap.String("stage", string(stage))}, fields...)...)
	return stage
}

// archive copies a structurally valid upload to S3 when configured. Failures only cost
// the copy.
func (s *ImportService) archive(ctx context.Context, log *zap.Logger, file *upload.File) string {
	if s.archiver == nil {
		return ""
	}
	key, err := s.archiver.Archive(ctx, file.Path, file.OriginalName)
	if err != nil {
		log.Warn("Failed to archive upload", zap.Error(err))
		return ""
	}
	return key
}

// finish records the report, publishes the import event and emits metrics.
func (s *ImportService) finish(ctx context.Context, log *zap.Logger, file *upload.File, archiveKey string, report *models.ImportReport, took time.Duration) {
	requestID := logger.RequestIDFrom(ctx)
	finishedAt := models.Timestamp(s.now())

	rec := models.ImportRecord{
		RequestID:  requestID,
		FileName:   file.OriginalName,
		Backend:    s.store.Backend(),
		ArchiveKey: archiveKey,
		FinishedAt: finishedAt,
		Report:     *report,
	}
	if err := s.reports.Save(ctx, rec); err != nil {
		log.Warn("Failed to store import report", zap.Error(err))
	}

	if s.events != nil {
		ev := models.CatalogImportedEvent{
			Type:       EventCatalogImported,
			RequestID:  requestID,
			Backend:    s.store.Backend(),
			FileName:   file.OriginalName,
			Created:    report.Created,
			Updated:    report.Updated,
			Failed:     report.Failed,
			TotalRows:  report.TotalRows,
			OccurredAt: finishedAt,
		}
		if err := s.events.PublishImported(ctx, ev); err != nil {
			log.Warn("Failed to publish import event", zap.Error(err))
		}
	}

	if s.metrics != nil && s.metrics.IsEnabled() {
		dims := map[string]string{"Backend": s.store.Backend()}
		go func() {
			mctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.metrics.RecordValue(mctx, awspkg.MetricImportRowsCreated, float64(report.Created), dims)
			_ = s.metrics.RecordValue(mctx, awspkg.MetricImportRowsUpdated, float64(report.Updated), dims)
			_ = s.metrics.RecordValue(mctx, awspkg.MetricImportRowsFailed, float64(report.Failed), dims)
			_ = s.metrics.RecordLatency(mctx, awspkg.MetricImportDuration, took, dims)
		}()
	}

	log.Info("Catalog upload processed",
		zap.String("file", file.OriginalName),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
		zap.Int("total_rows", report.TotalRows),
		zap.Duration("took", took),
	)
}

func (s *ImportService) recordRejected(stage Stage) {
	if s.metrics == nil || !s.metrics.IsEnabled() {
		return
	}
	dims := map[string]string{"Backend": s.store.Backend(), "Stage": string(stage)}
	go func() {
		mctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.metrics.RecordCount(mctx, awspkg.MetricImportRejected, dims)
	}()
}

// LastReport returns the most recent upload summary, or nil.
func (s *ImportService) LastReport(ctx context.Context) (*models.ImportRecord, error) {
	rec, err := s.reports.Last(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to load last import", err)
	}
	return rec, nil
}
