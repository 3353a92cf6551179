package controllers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	apperrors "github.com/RemoteKing-Interns/allremotes-sub000/common/errors"
	"github.com/RemoteKing-Interns/allremotes-sub000/csvparse"
	"github.com/RemoteKing-Interns/allremotes-sub000/importer"
)

// DefaultTemplate is served when no template file is configured or readable.
const DefaultTemplate = "Product Code,Product Description,Product Group,Sell Price,Default Sell Price,Image Url\n"

// UploadController handles catalog CSV uploads
type UploadController struct {
	imports      ImportServiceAPI
	validator    *RequestValidator
	maxBytes     int64
	templatePath string
}

func NewUploadController(imports ImportServiceAPI, validator *RequestValidator, maxBytes int64, templatePath string) *UploadController {
	return &UploadController{
		imports:      imports,
		validator:    validator,
		maxBytes:     maxBytes,
		templatePath: templatePath,
	}
}

// UploadProducts ingests the multipart field "csv" and returns the import report
func (h *UploadController) UploadProducts(c *gin.Context) {
	ctx := c.Request.Context()
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultContextTimeout)
		defer cancel()
	}

	body := c.Request.Body
	if h.maxBytes > 0 {
		body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	report, err := h.imports.Import(ctx, c.GetHeader("Content-Type"), body)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// LastImport returns the summary of the most recent upload
func (h *UploadController) LastImport(c *gin.Context) {
	rec, err := h.imports.LastReport(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No catalog upload has finished yet"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// DownloadTemplate serves the example CSV, or the same columns as a workbook with ?format=xlsx
func (h *UploadController) DownloadTemplate(c *gin.Context) {
	q, err := h.validator.ParseTemplateQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	template := h.loadTemplate()
	if q.Format == "xlsx" {
		h.writeXLSXTemplate(c, template)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", `attachment; filename="products-template.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(template))
}

func (h *UploadController) loadTemplate() string {
	if h.templatePath == "" {
		return DefaultTemplate
	}
	raw, err := os.ReadFile(h.templatePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			zap.L().Warn("Failed to read CSV template, serving default", zap.String("path", h.templatePath), zap.Error(err))
		}
		return DefaultTemplate
	}
	return string(raw)
}

// templateColumns returns the header cells of the first row of template.
func templateColumns(template string) []string {
	grid, err := csvparse.Parse(template)
	if err != nil || len(grid) == 0 {
		grid, _ = csvparse.Parse(DefaultTemplate)
	}
	return grid[0]
}

func (h *UploadController) writeXLSXTemplate(c *gin.Context, template string) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Products"
	f.SetSheetName("Sheet1", sheetName)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
	})

	required := make(map[string]bool, len(importer.RequiredHeaders))
	for _, r := range importer.RequiredHeaders {
		required[r] = true
	}

	for i, name := range templateColumns(template) {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, name)
		if required[importer.NormalizeHeader(name)] {
			f.SetCellStyle(sheetName, cell, cell, requiredStyle)
		} else {
			f.SetCellStyle(sheetName, cell, cell, headerStyle)
		}
		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 22)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		zap.L().Error("Failed to render XLSX template", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate template"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="products-template.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
