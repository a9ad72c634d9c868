// costs.go
//
// Workshop BOM allocation and document sync service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of benchtop.
// benchtop is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// benchtop is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with benchtop.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/localnerve/benchtop/internal/config"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// CostService reconciles BOM line costs with allocations and the catalog
type CostService struct {
	DB     *gorm.DB
	Logger logrus.FieldLogger
}

// NewCostService creates a cost service
func NewCostService(db *gorm.DB, logger logrus.FieldLogger) *CostService {
	return &CostService{DB: db, Logger: logger}
}

// CostUpdateOptions filters a batch cost update
type CostUpdateOptions struct {
	ProjectID *uint
	BomID     *uint
	Force     bool
}

// CostReportRow is the outcome for one BOM
type CostReportRow struct {
	BomID     uint            `json:"bom_id"`
	BomName   string          `json:"bom"`
	ProjectID uint            `json:"project_id"`
	Project   string          `json:"project"`
	Updated   int             `json:"updated"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Unbound   []string        `json:"unbound,omitempty"`
	Estimated decimal.Decimal `json:"total_estimated_cost"`
	Actual    decimal.Decimal `json:"total_actual_cost"`
	Errors    []string        `json:"errors,omitempty"`
}

// CostReport collects the rows of a batch cost update
type CostReport struct {
	Rows []CostReportRow `json:"rows"`
}

// HasFailures reports whether any line failed
func (r *CostReport) HasFailures() bool {
	for _, row := range r.Rows {
		if row.Failed > 0 {
			return true
		}
	}
	return false
}

// Totals sums the rows
func (r *CostReport) Totals() (updated, skipped, failed int) {
	for _, row := range r.Rows {
		updated += row.Updated
		skipped += row.Skipped
		failed += row.Failed
	}
	return updated, skipped, failed
}

// AreCostsUpToDate reports whether the line costs were refreshed after the
// last catalog price change of its component
func AreCostsUpToDate(item *models.ProjectBomItem, component *models.Component) bool {
	if item.CostsUpdatedAt == nil {
		return false
	}
	if component == nil || component.PriceUpdatedAt == nil {
		return true
	}
	return !component.PriceUpdatedAt.After(*item.CostsUpdatedAt)
}

// UpdateActualCosts refreshes the actual unit cost of a line. An allocated
// line costs what its reservation snapshotted, otherwise the current price.
func (s *CostService) UpdateActualCosts(ctx context.Context, itemID uint) (*models.ProjectBomItem, error) {
	var item models.ProjectBomItem
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Component").First(&item, itemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("bom item %d: %w", itemID, ErrNotFound)
			}
			return err
		}
		return updateItemCosts(tx, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// updateItemCosts expects item.Component to be loaded
func updateItemCosts(tx *gorm.DB, item *models.ProjectBomItem) error {
	if item.ComponentID == nil || item.Component == nil {
		return ErrNoComponent
	}

	actual := item.Component.UnitPrice
	if item.Allocated {
		allocation, err := CurrentAllocation(tx, item.ID)
		switch {
		case err == nil:
			actual = allocation.UnitCost
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
	}

	now := time.Now().UTC()
	columns := map[string]any{
		"actual_unit_cost": actual,
		"costs_updated_at": now,
	}
	if item.EstimatedUnitCost.IsZero() {
		columns["estimated_unit_cost"] = item.Component.UnitPrice
		item.EstimatedUnitCost = item.Component.UnitPrice
	}
	if err := tx.Model(&models.ProjectBomItem{}).Where("id = ?", item.ID).UpdateColumns(columns).Error; err != nil {
		return err
	}

	item.ActualUnitCost = actual
	item.CostsUpdatedAt = &now
	return nil
}

// CalculateTotalCosts recomputes and stores the BOM totals from its lines
func (s *CostService) CalculateTotalCosts(ctx context.Context, bomID uint) (estimated, actual decimal.Decimal, err error) {
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		estimated, actual, err = calculateTotals(tx, bomID)
		return err
	})
	return estimated, actual, err
}

func calculateTotals(tx *gorm.DB, bomID uint) (decimal.Decimal, decimal.Decimal, error) {
	var items []models.ProjectBomItem
	if err := tx.Where("bom_id = ?", bomID).Find(&items).Error; err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	estimated, actual := decimal.Zero, decimal.Zero
	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		estimated = estimated.Add(item.EstimatedUnitCost.Mul(qty))
		actual = actual.Add(item.ActualUnitCost.Mul(qty))
	}

	res := tx.Model(&models.ProjectBom{}).Where("id = ?", bomID).UpdateColumns(map[string]any{
		"total_estimated_cost": estimated,
		"total_actual_cost":    actual,
	})
	if res.Error != nil {
		return decimal.Zero, decimal.Zero, res.Error
	}
	if res.RowsAffected == 0 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("bom %d: %w", bomID, ErrNotFound)
	}
	return estimated, actual, nil
}

// UpdateCosts refreshes every line of the selected BOMs and their totals.
// Current lines are skipped unless Force is set. A failing line is counted
// and the batch goes on.
func (s *CostService) UpdateCosts(ctx context.Context, opts CostUpdateOptions) (*CostReport, error) {
	query := s.DB.WithContext(ctx).Preload("Project").Order("id")
	if opts.BomID != nil {
		query = query.Where("id = ?", *opts.BomID)
	}
	if opts.ProjectID != nil {
		query = query.Where("project_id = ?", *opts.ProjectID)
	}

	var boms []models.ProjectBom
	if err := query.Find(&boms).Error; err != nil {
		return nil, err
	}
	if opts.BomID != nil && len(boms) == 0 {
		return nil, fmt.Errorf("bom %d: %w", *opts.BomID, ErrNotFound)
	}

	report := &CostReport{Rows: make([]CostReportRow, 0, len(boms))}
	for _, bom := range boms {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Rows = append(report.Rows, s.updateBomCosts(ctx, &bom, opts.Force))
	}

	updated, skipped, failed := report.Totals()
	s.Logger.WithFields(logrus.Fields{
		"boms":    len(report.Rows),
		"updated": updated,
		"skipped": skipped,
		"failed":  failed,
	}).Info("Cost update finished")

	return report, nil
}

func (s *CostService) updateBomCosts(ctx context.Context, bom *models.ProjectBom, force bool) CostReportRow {
	row := CostReportRow{BomID: bom.ID, BomName: bom.Name, ProjectID: bom.ProjectID}
	if bom.Project != nil {
		row.Project = bom.Project.Name
	}

	var items []models.ProjectBomItem
	if err := s.DB.WithContext(ctx).Preload("Component").Where("bom_id = ?", bom.ID).Order("id").Find(&items).Error; err != nil {
		row.Failed++
		row.Errors = append(row.Errors, err.Error())
		return row
	}

	for i := range items {
		item := &items[i]
		// Lines without a component have nothing to cost
		if item.ComponentID == nil || item.Component == nil {
			row.Skipped++
			row.Unbound = append(row.Unbound, item.Reference)
			s.Logger.WithFields(logrus.Fields{
				"bomId":     bom.ID,
				"itemId":    item.ID,
				"reference": item.Reference,
			}).Debug("Skipped cost update of unbound line")
			continue
		}
		if !force && AreCostsUpToDate(item, item.Component) {
			row.Skipped++
			continue
		}

		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return updateItemCosts(tx, item)
		})
		if err != nil {
			row.Failed++
			row.Errors = append(row.Errors, fmt.Sprintf("%s: %v", item.Reference, err))
			config.LogError(s.Logger, "services", "updateBomCosts", "item", logrus.Fields{
				"bomId":     bom.ID,
				"itemId":    item.ID,
				"reference": item.Reference,
			}, err)
			continue
		}
		row.Updated++
	}

	estimated, actual, err := s.CalculateTotalCosts(ctx, bom.ID)
	if err != nil {
		row.Failed++
		row.Errors = append(row.Errors, err.Error())
		return row
	}
	row.Estimated = estimated
	row.Actual = actual
	return row
}

// ExportCostReport renders a report as a single sheet workbook
func ExportCostReport(report *CostReport) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "Costs"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}

	headers := []string{"BOM ID", "BOM", "Project", "Updated", "Skipped", "Failed", "Estimated", "Actual"}
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue(sheet, col+"1", h)
		f.SetCellStyle(sheet, col+"1", col+"1", headerStyle)
	}

	for r, row := range report.Rows {
		line := r + 2
		estimated, _ := row.Estimated.Float64()
		actual, _ := row.Actual.Float64()
		values := []any{row.BomID, row.BomName, row.Project, row.Updated, row.Skipped, row.Failed, estimated, actual}
		for i, v := range values {
			col, _ := excelize.ColumnNumberToName(i + 1)
			f.SetCellValue(sheet, fmt.Sprintf("%s%d", col, line), v)
		}
	}

	f.SetColWidth(sheet, "B", "C", 30)
	f.SetColWidth(sheet, "G", "H", 14)
	return f, nil
}
