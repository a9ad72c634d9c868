package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/localnerve/benchtop/internal/docsync"
	"github.com/localnerve/benchtop/internal/events"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format, expected .xlsx or .csv")
	ErrMissingColumns    = errors.New("header must name reference and quantity columns")
	ErrEmptyFile         = errors.New("file has no rows")
)

// Column header aliases, compared lowercased
var importColumns = map[string]string{
	"reference":                "reference",
	"designator":               "reference",
	"references":               "reference",
	"quantity":                 "quantity",
	"qty":                      "quantity",
	"sku":                      "sku",
	"mpn":                      "mpn",
	"manufacturer part number": "mpn",
	"value":                    "value",
	"footprint":                "footprint",
}

// BomLine is one parsed import row
type BomLine struct {
	Row       int    `json:"row"`
	Reference string `json:"reference" validate:"required,max=255"`
	Quantity  int    `json:"quantity" validate:"min=1"`
	SKU       string `json:"sku,omitempty" validate:"max=64"`
	MPN       string `json:"mpn,omitempty" validate:"max=128"`
	Value     string `json:"value,omitempty" validate:"max=128"`
	Footprint string `json:"footprint,omitempty" validate:"max=128"`
}

// RowError is an import row that was skipped
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportResult summarizes a BOM import
type ImportResult struct {
	BomID     uint       `json:"bom_id"`
	Rows      int        `json:"rows"`
	Created   int        `json:"created"`
	Unmatched int        `json:"unmatched"`
	FilePath  string     `json:"file_path"`
	Errors    []RowError `json:"errors,omitempty"`
}

// ImportService turns spreadsheets into BOM items and attaches the source
// file to the BOM
type ImportService struct {
	Store    *events.Store
	Storage  *docsync.LocalStorage
	Logger   logrus.FieldLogger
	validate *validator.Validate
	now      func() time.Time
}

// NewImportService creates an import service
func NewImportService(store *events.Store, storage *docsync.LocalStorage, logger logrus.FieldLogger) *ImportService {
	return &ImportService{
		Store:    store,
		Storage:  storage,
		Logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Import parses r as filename and adds one item per valid row to the BOM
func (s *ImportService) Import(ctx context.Context, bomID uint, filename string, r io.Reader) (*ImportResult, error) {
	db := s.Store.DB().WithContext(ctx)

	var bom models.ProjectBom
	if err := db.First(&bom, bomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("bom %d: %w", bomID, ErrNotFound)
		}
		return nil, err
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	lines, rowErrors, err := s.ParseBomFile(ext, content)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{BomID: bomID, Rows: len(lines) + len(rowErrors), Errors: rowErrors}
	for _, line := range lines {
		componentID, err := matchComponent(db, line)
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: line.Row, Reason: err.Error()})
			continue
		}
		if componentID == nil {
			result.Unmatched++
		}

		item := &models.ProjectBomItem{
			BomID:       bomID,
			Reference:   line.Reference,
			Value:       line.Value,
			Footprint:   line.Footprint,
			ComponentID: componentID,
			Quantity:    line.Quantity,
		}
		if err := s.Store.Create(ctx, item); err != nil {
			result.Errors = append(result.Errors, RowError{Row: line.Row, Reason: err.Error()})
			continue
		}
		result.Created++
	}

	rel := fmt.Sprintf("boms/%d/%s_%s%s", bomID,
		docsync.Sanitize(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))),
		s.now().UTC().Format("20060102_150405"), ext)
	if err := s.Storage.Save(rel, bytes.NewReader(content)); err != nil {
		return result, err
	}
	if err := s.Store.Update(ctx, &bom, map[string]any{"file_path": rel}); err != nil {
		return result, err
	}
	result.FilePath = rel

	s.Logger.WithFields(logrus.Fields{
		"bomId":     bomID,
		"created":   result.Created,
		"unmatched": result.Unmatched,
		"errors":    len(result.Errors),
	}).Info("BOM imported")

	return result, nil
}

// ParseBomFile reads the header and rows of an .xlsx or .csv file. Rows
// that fail validation are returned as row errors.
func (s *ImportService) ParseBomFile(ext string, content []byte) ([]BomLine, []RowError, error) {
	var rows [][]string
	switch ext {
	case ".xlsx":
		f, err := excelize.OpenReader(bytes.NewReader(content))
		if err != nil {
			return nil, nil, fmt.Errorf("open workbook: %w", err)
		}
		defer f.Close()

		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil, ErrEmptyFile
		}
		rows, err = f.GetRows(sheets[0])
		if err != nil {
			return nil, nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
		}

	case ".csv":
		reader := csv.NewReader(bytes.NewReader(content))
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		var err error
		rows, err = reader.ReadAll()
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}

	default:
		return nil, nil, ErrUnsupportedFormat
	}

	if len(rows) == 0 {
		return nil, nil, ErrEmptyFile
	}

	header := map[string]int{}
	for i, name := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if column, ok := importColumns[key]; ok {
			if _, seen := header[column]; !seen {
				header[column] = i
			}
		}
	}
	if _, ok := header["reference"]; !ok {
		return nil, nil, ErrMissingColumns
	}
	if _, ok := header["quantity"]; !ok {
		return nil, nil, ErrMissingColumns
	}

	var lines []BomLine
	var rowErrors []RowError
	for i, cells := range rows[1:] {
		rowNumber := i + 2
		cell := func(column string) string {
			idx, ok := header[column]
			if !ok || idx >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[idx])
		}
		if isBlank(cells) {
			continue
		}

		line := BomLine{
			Row:       rowNumber,
			Reference: cell("reference"),
			SKU:       cell("sku"),
			MPN:       cell("mpn"),
			Value:     cell("value"),
			Footprint: cell("footprint"),
		}
		qty, err := strconv.Atoi(cell("quantity"))
		if err != nil {
			rowErrors = append(rowErrors, RowError{Row: rowNumber, Reason: fmt.Sprintf("invalid quantity %q", cell("quantity"))})
			continue
		}
		line.Quantity = qty

		if err := s.validate.Struct(line); err != nil {
			rowErrors = append(rowErrors, RowError{Row: rowNumber, Reason: validationReason(err)})
			continue
		}
		lines = append(lines, line)
	}

	return lines, rowErrors, nil
}

// matchComponent finds the catalog entry of a line by SKU, then MPN
func matchComponent(db *gorm.DB, line BomLine) (*uint, error) {
	lookups := []struct {
		column string
		value  string
	}{
		{"sku", line.SKU},
		{"manufacturer_part_number", line.MPN},
	}
	for _, lookup := range lookups {
		if lookup.value == "" {
			continue
		}
		var component models.Component
		err := db.Where(lookup.column+" = ?", lookup.value).Order("id").First(&component).Error
		if err == nil {
			return &component.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// validationReason renders validator errors as "field: tag" pairs
func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
