package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CatalogEntry is one component of a seed catalog
type CatalogEntry struct {
	SKU             string          `json:"sku" validate:"required,max=64"`
	Manufacturer    string          `json:"manufacturer" validate:"max=128"`
	MPN             string          `json:"mpn" validate:"max=128"`
	Description     string          `json:"description" validate:"max=512"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	StockQuantity   int             `json:"stock_quantity" validate:"min=0"`
	MinStockLevel   int             `json:"min_stock_level" validate:"min=0"`
	StorageLocation string          `json:"storage_location" validate:"max=128"`
}

// SeedResult counts what a seed run changed
type SeedResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Errors  []RowError `json:"errors,omitempty"`
}

// SeedComponents upserts the catalog by SKU. Existing stock is never
// touched, new components start with the catalog stock.
func SeedComponents(ctx context.Context, db *gorm.DB, catalog []byte) (*SeedResult, error) {
	var entries []CatalogEntry
	if err := json.Unmarshal(catalog, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	validate := validator.New()
	result := &SeedResult{}
	for i, entry := range entries {
		if err := validate.Struct(entry); err != nil {
			result.Errors = append(result.Errors, RowError{Row: i + 1, Reason: validationReason(err)})
			continue
		}
		if entry.UnitPrice.IsNegative() {
			result.Errors = append(result.Errors, RowError{Row: i + 1, Reason: "unit_price: min"})
			continue
		}

		created, err := upsertComponent(db.WithContext(ctx), entry)
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: i + 1, Reason: err.Error()})
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}
	return result, nil
}

func upsertComponent(db *gorm.DB, entry CatalogEntry) (bool, error) {
	var existing models.Component
	err := db.Unscoped().Where("sku = ?", entry.SKU).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		component := models.Component{
			SKU:                    entry.SKU,
			Manufacturer:           entry.Manufacturer,
			ManufacturerPartNumber: entry.MPN,
			Description:            entry.Description,
			UnitPrice:              entry.UnitPrice,
			StockQuantity:          entry.StockQuantity,
			MinStockLevel:          entry.MinStockLevel,
			StorageLocation:        entry.StorageLocation,
		}
		return true, db.Create(&component).Error
	}
	if err != nil {
		return false, err
	}

	return false, db.Unscoped().Model(&existing).Updates(map[string]any{
		"manufacturer":             entry.Manufacturer,
		"manufacturer_part_number": entry.MPN,
		"description":              entry.Description,
		"unit_price":               entry.UnitPrice,
		"min_stock_level":          entry.MinStockLevel,
		"storage_location":         entry.StorageLocation,
		"deleted_at":               nil,
	}).Error
}
