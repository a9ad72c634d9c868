package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/localnerve/benchtop/internal/models"
	"github.com/shopspring/decimal"
)

func TestAreCostsUpToDate(t *testing.T) {
	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	tests := []struct {
		name      string
		costsAt   *time.Time
		priceAt   *time.Time
		component bool
		want      bool
	}{
		{name: "never computed", costsAt: nil, priceAt: &earlier, component: true, want: false},
		{name: "price changed after", costsAt: &earlier, priceAt: &later, component: true, want: false},
		{name: "computed after price", costsAt: &later, priceAt: &earlier, component: true, want: true},
		{name: "same instant", costsAt: &earlier, priceAt: &earlier, component: true, want: true},
		{name: "no component", costsAt: &earlier, component: false, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &models.ProjectBomItem{CostsUpdatedAt: tt.costsAt}
			var component *models.Component
			if tt.component {
				component = &models.Component{PriceUpdatedAt: tt.priceAt}
			}
			if got := AreCostsUpToDate(item, component); got != tt.want {
				t.Errorf("AreCostsUpToDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpdateActualCostsUsesAllocationSnapshot(t *testing.T) {
	f := newBomFixture(t)
	r1 := f.addItem(t, "R1", &f.resistor, 4)
	ctx := context.Background()

	if _, err := f.service.AllocateBomItem(ctx, r1.ID, 1); err != nil {
		t.Fatalf("AllocateBomItem failed: %v", err)
	}
	if err := f.db.Model(&models.Component{}).Where("id = ?", f.resistor.ID).
		UpdateColumn("unit_price", decimal.RequireFromString("0.05")).Error; err != nil {
		t.Fatalf("Failed to change price: %v", err)
	}

	costs := NewCostService(f.db, testLogger())
	item, err := costs.UpdateActualCosts(ctx, r1.ID)
	if err != nil {
		t.Fatalf("UpdateActualCosts failed: %v", err)
	}
	if !item.ActualUnitCost.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("Expected snapshot cost 0.02, got %s", item.ActualUnitCost)
	}
	if !item.EstimatedUnitCost.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("Expected estimated cost filled from catalog 0.05, got %s", item.EstimatedUnitCost)
	}
	if item.CostsUpdatedAt == nil {
		t.Error("Expected CostsUpdatedAt to be set")
	}
}

func TestUpdateActualCostsUnallocated(t *testing.T) {
	f := newBomFixture(t)
	u1 := f.addItem(t, "U1", &f.mcu, 1)
	j1 := f.addItem(t, "J1", nil, 1)
	costs := NewCostService(f.db, testLogger())
	ctx := context.Background()

	item, err := costs.UpdateActualCosts(ctx, u1.ID)
	if err != nil {
		t.Fatalf("UpdateActualCosts failed: %v", err)
	}
	if !item.ActualUnitCost.Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("Expected catalog price 3.5, got %s", item.ActualUnitCost)
	}

	var stored models.ProjectBomItem
	f.db.First(&stored, u1.ID)
	if !stored.ActualUnitCost.Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("Expected stored actual cost 3.5, got %s", stored.ActualUnitCost)
	}

	if _, err := costs.UpdateActualCosts(ctx, j1.ID); !errors.Is(err, ErrNoComponent) {
		t.Errorf("Expected ErrNoComponent, got %v", err)
	}
	if _, err := costs.UpdateActualCosts(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCalculateTotalCosts(t *testing.T) {
	f := newBomFixture(t)
	r1 := f.addItem(t, "R1", &f.resistor, 10)
	u1 := f.addItem(t, "U1", &f.mcu, 2)

	f.db.Model(&models.ProjectBomItem{}).Where("id = ?", r1.ID).UpdateColumns(map[string]any{
		"estimated_unit_cost": decimal.RequireFromString("0.03"),
		"actual_unit_cost":    decimal.RequireFromString("0.02"),
	})
	f.db.Model(&models.ProjectBomItem{}).Where("id = ?", u1.ID).UpdateColumns(map[string]any{
		"estimated_unit_cost": decimal.RequireFromString("4"),
		"actual_unit_cost":    decimal.RequireFromString("3.5"),
	})

	costs := NewCostService(f.db, testLogger())
	estimated, actual, err := costs.CalculateTotalCosts(context.Background(), f.bom.ID)
	if err != nil {
		t.Fatalf("CalculateTotalCosts failed: %v", err)
	}
	if !estimated.Equal(decimal.RequireFromString("8.3")) {
		t.Errorf("Expected estimated 8.3, got %s", estimated)
	}
	if !actual.Equal(decimal.RequireFromString("7.2")) {
		t.Errorf("Expected actual 7.2, got %s", actual)
	}

	var bom models.ProjectBom
	f.db.First(&bom, f.bom.ID)
	if !bom.TotalActualCost.Equal(actual) {
		t.Errorf("Expected stored actual total %s, got %s", actual, bom.TotalActualCost)
	}
}

func TestUpdateCostsBatch(t *testing.T) {
	f := newBomFixture(t)
	f.addItem(t, "R1", &f.resistor, 10)
	f.addItem(t, "J1", nil, 1)
	costs := NewCostService(f.db, testLogger())
	ctx := context.Background()

	report, err := costs.UpdateCosts(ctx, CostUpdateOptions{BomID: &f.bom.ID})
	if err != nil {
		t.Fatalf("UpdateCosts failed: %v", err)
	}
	if len(report.Rows) != 1 {
		t.Fatalf("Expected one row, got %d", len(report.Rows))
	}
	row := report.Rows[0]
	if row.Updated != 1 || row.Failed != 0 || row.Skipped != 1 {
		t.Errorf("Unexpected first run %+v", row)
	}
	if len(row.Unbound) != 1 || row.Unbound[0] != "J1" {
		t.Errorf("Expected J1 reported as unbound, got %v", row.Unbound)
	}
	if report.HasFailures() {
		t.Errorf("Expected an unbound line not to fail the batch, got %v", row.Errors)
	}
	if !row.Actual.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("Expected actual total 0.2, got %s", row.Actual)
	}
	if row.Project != "Controller" {
		t.Errorf("Expected project name, got %q", row.Project)
	}

	report, err = costs.UpdateCosts(ctx, CostUpdateOptions{ProjectID: &f.project.ID})
	if err != nil {
		t.Fatalf("Second UpdateCosts failed: %v", err)
	}
	if row := report.Rows[0]; row.Skipped != 2 || row.Updated != 0 {
		t.Errorf("Expected current and unbound lines to be skipped, got %+v", row)
	}

	report, err = costs.UpdateCosts(ctx, CostUpdateOptions{BomID: &f.bom.ID, Force: true})
	if err != nil {
		t.Fatalf("Forced UpdateCosts failed: %v", err)
	}
	if row := report.Rows[0]; row.Updated != 1 || row.Skipped != 1 || row.Failed != 0 {
		t.Errorf("Expected forced update, got %+v", row)
	}

	missing := uint(9999)
	if _, err := costs.UpdateCosts(ctx, CostUpdateOptions{BomID: &missing}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestExportCostReport(t *testing.T) {
	report := &CostReport{Rows: []CostReportRow{{
		BomID:     1,
		BomName:   "Main",
		Project:   "Controller",
		Updated:   3,
		Estimated: decimal.RequireFromString("10.5"),
		Actual:    decimal.RequireFromString("9.25"),
	}}}

	f, err := ExportCostReport(report)
	if err != nil {
		t.Fatalf("ExportCostReport failed: %v", err)
	}
	defer f.Close()

	if got, _ := f.GetCellValue("Costs", "A1"); got != "BOM ID" {
		t.Errorf("Expected header BOM ID, got %q", got)
	}
	if got, _ := f.GetCellValue("Costs", "B2"); got != "Main" {
		t.Errorf("Expected BOM name, got %q", got)
	}
	if got, _ := f.GetCellValue("Costs", "H2"); got != "9.25" {
		t.Errorf("Expected actual 9.25, got %q", got)
	}
}
