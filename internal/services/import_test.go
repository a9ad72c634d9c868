package services

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/localnerve/benchtop/internal/docsync"
	"github.com/localnerve/benchtop/internal/events"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/xuri/excelize/v2"
)

func newImportService(t *testing.T, f *bomFixture) *ImportService {
	t.Helper()
	store := events.NewStore(f.db, events.NewBus(testLogger()))
	s := NewImportService(store, docsync.NewLocalStorage(t.TempDir()), testLogger())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC) }
	return s
}

func TestImportCSV(t *testing.T) {
	f := newBomFixture(t)
	f.db.Model(&f.mcu).UpdateColumn("manufacturer_part_number", "STM32G031K8T6")
	s := newImportService(t, f)

	csv := strings.Join([]string{
		"Designator,Qty,SKU,MPN,Value,Footprint",
		"R1,4,R-10K,,10k,0603",
		"U1,1,,STM32G031K8T6,,LQFP32",
		"J1,1,,,USB-C,",
		"R2,abc,R-10K,,,",
		",2,R-10K,,,",
		",,,,,",
	}, "\n")

	result, err := s.Import(context.Background(), f.bom.ID, "main board.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if result.Created != 3 || result.Unmatched != 1 {
		t.Errorf("Expected 3 created and 1 unmatched, got %+v", result)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("Expected 2 row errors, got %+v", result.Errors)
	}
	if result.Errors[0].Row != 5 || !strings.Contains(result.Errors[0].Reason, "quantity") {
		t.Errorf("Unexpected first row error %+v", result.Errors[0])
	}
	if result.Errors[1].Row != 6 || !strings.Contains(result.Errors[1].Reason, "reference") {
		t.Errorf("Unexpected second row error %+v", result.Errors[1])
	}

	var items []models.ProjectBomItem
	f.db.Where("bom_id = ?", f.bom.ID).Order("id").Find(&items)
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}
	if items[0].ComponentID == nil || *items[0].ComponentID != f.resistor.ID {
		t.Error("Expected R1 matched by SKU")
	}
	if items[1].ComponentID == nil || *items[1].ComponentID != f.mcu.ID {
		t.Error("Expected U1 matched by MPN")
	}
	if items[2].ComponentID != nil {
		t.Error("Expected J1 unmatched")
	}

	if result.FilePath != "boms/1/main board_20260301_101500.csv" {
		t.Errorf("Unexpected file path %s", result.FilePath)
	}
	if !s.Storage.Exists(result.FilePath) {
		t.Error("Expected import file to be stored locally")
	}
	var bom models.ProjectBom
	f.db.First(&bom, f.bom.ID)
	if !bom.HasLocalFile() || *bom.FilePath != result.FilePath {
		t.Errorf("Expected BOM file_path to be set, got %v", bom.FilePath)
	}
}

func TestImportXLSX(t *testing.T) {
	f := newBomFixture(t)
	s := newImportService(t, f)

	wb := excelize.NewFile()
	wb.SetSheetRow("Sheet1", "A1", &[]any{"Reference", "Quantity", "SKU"})
	wb.SetSheetRow("Sheet1", "A2", &[]any{"R1", 2, "R-10K"})
	wb.SetSheetRow("Sheet1", "A3", &[]any{"U1", 1, "MCU-STM32"})
	buf, err := wb.WriteToBuffer()
	if err != nil {
		t.Fatalf("Failed to build workbook: %v", err)
	}

	result, err := s.Import(context.Background(), f.bom.ID, "Main.XLSX", buf)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Created != 2 || result.Unmatched != 0 || len(result.Errors) != 0 {
		t.Errorf("Unexpected result %+v", result)
	}
	if !strings.HasSuffix(result.FilePath, ".xlsx") {
		t.Errorf("Expected lowercased extension, got %s", result.FilePath)
	}
	if _, err := os.Stat(s.Storage.Path(result.FilePath)); err != nil {
		t.Errorf("Expected stored workbook: %v", err)
	}
}

func TestImportRejectsBadFiles(t *testing.T) {
	f := newBomFixture(t)
	s := newImportService(t, f)
	ctx := context.Background()

	if _, err := s.Import(ctx, f.bom.ID, "bom.txt", strings.NewReader("x")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := s.Import(ctx, f.bom.ID, "bom.csv", strings.NewReader("Value,Footprint\n10k,0603\n")); !errors.Is(err, ErrMissingColumns) {
		t.Errorf("Expected ErrMissingColumns, got %v", err)
	}
	if _, err := s.Import(ctx, f.bom.ID, "bom.csv", strings.NewReader("")); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("Expected ErrEmptyFile, got %v", err)
	}
	if _, err := s.Import(ctx, 9999, "bom.csv", strings.NewReader("Reference,Qty\nR1,1\n")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	var count int64
	f.db.Model(&models.ProjectBomItem{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected no items from rejected files, got %d", count)
	}
}
