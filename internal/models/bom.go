package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BOM statuses. pending, partially_allocated and allocated are derived from
// the items, processing and completed are set by production.
const (
	BomStatusPending            = "pending"
	BomStatusPartiallyAllocated = "partially_allocated"
	BomStatusAllocated          = "allocated"
	BomStatusProcessing         = "processing"
	BomStatusCompleted          = "completed"
)

// Allocation statuses
const (
	AllocationStatusPending   = "pending"
	AllocationStatusCompleted = "completed"
)

// ProjectBom is the bill of materials of one project design
type ProjectBom struct {
	ID                 uint             `gorm:"primaryKey;autoIncrement"`
	ProjectID          uint             `gorm:"not null;index"`
	Project            *Project         `gorm:"foreignKey:ProjectID"`
	Name               string           `gorm:"size:255;not null"`
	Status             string           `gorm:"size:32;not null;default:pending"`
	TotalEstimatedCost decimal.Decimal  `gorm:"type:decimal(14,4);not null;default:0"`
	TotalActualCost    decimal.Decimal  `gorm:"type:decimal(14,4);not null;default:0"`
	Items              []ProjectBomItem `gorm:"foreignKey:BomID"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          gorm.DeletedAt `gorm:"index"`
	RemoteSync
}

func (b *ProjectBom) EntityKind() Kind { return KindBom }
func (b *ProjectBom) EntityID() uint { return b.ID }
func (b *ProjectBom) Remote() *RemoteSync { return &b.RemoteSync }
func (ProjectBom) TableName() string { return "project_boms" }

// BeforeCreate defaults the status
func (b *ProjectBom) BeforeCreate(tx *gorm.DB) error {
	if b.Status == "" {
		b.Status = BomStatusPending
	}
	return nil
}

// IsDerivedStatus reports whether the status is recomputed from allocation
// state. Manual production states are left alone.
func IsDerivedStatus(status string) bool {
	switch status {
	case "", BomStatusPending, BomStatusPartiallyAllocated, BomStatusAllocated:
		return true
	}
	return false
}

// DeriveBomStatus maps allocated/total item counts to a BOM status
func DeriveBomStatus(allocated, total int64) string {
	switch {
	case total == 0 || allocated == 0:
		return BomStatusPending
	case allocated >= total:
		return BomStatusAllocated
	default:
		return BomStatusPartiallyAllocated
	}
}

// ProjectBomItem is one BOM line. Quantity is per board.
type ProjectBomItem struct {
	ID                uint            `gorm:"primaryKey;autoIncrement"`
	BomID             uint            `gorm:"not null;index"`
	Bom               *ProjectBom     `gorm:"foreignKey:BomID"`
	Reference         string          `gorm:"size:255;not null"`
	Value             string          `gorm:"size:128"`
	Footprint         string          `gorm:"size:128"`
	ComponentID       *uint           `gorm:"index"`
	Component         *Component      `gorm:"foreignKey:ComponentID"`
	Quantity          int             `gorm:"not null;default:1"`
	Allocated         bool            `gorm:"not null;default:false;index"`
	AllocatedQuantity int             `gorm:"not null;default:0"`
	EstimatedUnitCost decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0"`
	ActualUnitCost    decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0"`
	CostsUpdatedAt    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (i *ProjectBomItem) EntityKind() Kind { return KindBomItem }
func (i *ProjectBomItem) EntityID() uint { return i.ID }
func (ProjectBomItem) TableName() string { return "project_bom_items" }

// ProjectComponentAllocation reserves component stock for one BOM item.
// UnitCost and TotalCost are snapshots taken when the stock was reserved.
type ProjectComponentAllocation struct {
	ID                uint            `gorm:"primaryKey;autoIncrement"`
	ProjectID         uint            `gorm:"not null;index"`
	ComponentID       uint            `gorm:"not null;index"`
	Component         *Component      `gorm:"foreignKey:ComponentID"`
	BomItemID         uint            `gorm:"not null;index"`
	QuantityAllocated int             `gorm:"not null;default:0"`
	QuantityUsed      int             `gorm:"not null;default:0"`
	QuantityRemaining int             `gorm:"not null;default:0"`
	UnitCost          decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0"`
	TotalCost         decimal.Decimal `gorm:"type:decimal(14,4);not null;default:0"`
	Status            string          `gorm:"size:32;not null;default:pending"`
	SourceInvoiceID   *uint
	AllocatedAt       time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (a *ProjectComponentAllocation) EntityKind() Kind { return KindAllocation }
func (a *ProjectComponentAllocation) EntityID() uint { return a.ID }
func (ProjectComponentAllocation) TableName() string { return "project_component_allocations" }

// BeforeSave keeps QuantityRemaining consistent with allocated and used
func (a *ProjectComponentAllocation) BeforeSave(tx *gorm.DB) error {
	a.QuantityRemaining = a.QuantityAllocated - a.QuantityUsed
	if a.Status == "" {
		a.Status = AllocationStatusPending
	}
	return nil
}
