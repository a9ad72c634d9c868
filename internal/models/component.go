package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Component is an inventory item. StockQuantity is the on-hand quantity not
// reserved by any allocation.
type Component struct {
	ID                     uint            `gorm:"primaryKey;autoIncrement"`
	SKU                    string          `gorm:"column:sku;size:64;uniqueIndex;not null"`
	Manufacturer           string          `gorm:"size:128"`
	ManufacturerPartNumber string          `gorm:"size:128;index"`
	Description            string          `gorm:"size:512"`
	UnitPrice              decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0"`
	PriceUpdatedAt         *time.Time
	StockQuantity          int    `gorm:"not null;default:0;check:chk_components_stock,stock_quantity >= 0"`
	MinStockLevel          int    `gorm:"not null;default:0"`
	StorageLocation        string `gorm:"size:128"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
	DeletedAt              gorm.DeletedAt `gorm:"index"`
}

func (c *Component) EntityKind() Kind { return KindComponent }
func (c *Component) EntityID() uint { return c.ID }
func (Component) TableName() string { return "components" }

// BelowMinimum reports whether stock has dropped under the reorder level
func (c *Component) BelowMinimum() bool {
	return c.StockQuantity < c.MinStockLevel
}

// BeforeCreate stamps the initial price timestamp
func (c *Component) BeforeCreate(tx *gorm.DB) error {
	if c.PriceUpdatedAt == nil {
		now := time.Now().UTC()
		c.PriceUpdatedAt = &now
	}
	return nil
}

// BeforeUpdate stamps PriceUpdatedAt whenever the catalog price changes
func (c *Component) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("UnitPrice") {
		tx.Statement.SetColumn("PriceUpdatedAt", time.Now().UTC())
	}
	return nil
}
