package models

import (
	"time"

	"gorm.io/gorm"
)

// Project statuses
const (
	ProjectStatusDraft      = "draft"
	ProjectStatusInProgress = "in_progress"
	ProjectStatusCompleted  = "completed"
	ProjectStatusCancelled  = "cancelled"
)

// Customer owns projects, quotations, invoices and contracts
type Customer struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Code      string `gorm:"size:32;uniqueIndex;not null"`
	Name      string `gorm:"size:255;not null"`
	Email     string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
	RemoteSync
}

func (c *Customer) EntityKind() Kind { return KindCustomer }
func (c *Customer) EntityID() uint { return c.ID }
func (c *Customer) Remote() *RemoteSync { return &c.RemoteSync }
func (Customer) TableName() string { return "customers" }

// Project is a design/assembly job for a customer
type Project struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	CustomerID  uint      `gorm:"not null;index"`
	Customer    *Customer `gorm:"foreignKey:CustomerID"`
	Code        string    `gorm:"size:32;uniqueIndex;not null"`
	Name        string    `gorm:"size:255;not null"`
	Status      string    `gorm:"size:32;not null;default:draft"`
	BoardsCount int       `gorm:"not null;default:1"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
	RemoteSync
}

func (p *Project) EntityKind() Kind { return KindProject }
func (p *Project) EntityID() uint { return p.ID }
func (p *Project) Remote() *RemoteSync { return &p.RemoteSync }
func (Project) TableName() string { return "projects" }

// BeforeCreate defaults status and board count
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.Status == "" {
		p.Status = ProjectStatusDraft
	}
	if p.BoardsCount < 1 {
		p.BoardsCount = 1
	}
	return nil
}
