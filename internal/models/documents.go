package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Quotation statuses
const (
	QuotationStatusDraft    = "draft"
	QuotationStatusSent     = "sent"
	QuotationStatusAccepted = "accepted"
	QuotationStatusRejected = "rejected"
	QuotationStatusExpired  = "expired"
)

// Invoice statuses
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusIssued    = "issued"
	InvoiceStatusReceived  = "received"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusCancelled = "cancelled"
)

// Contract statuses
const (
	ContractStatusActive     = "active"
	ContractStatusExpired    = "expired"
	ContractStatusTerminated = "terminated"
)

// Project document types
const (
	DocumentTypeDatasheet = "datasheet"
	DocumentTypeSchematic = "schematic"
	DocumentTypePCB       = "pcb"
	DocumentTypeGerber    = "gerber"
	DocumentTypeQC        = "qc"
	DocumentTypeManual    = "manual"
	DocumentTypeOther     = "other"
)

// Assembly statuses
const (
	AssemblyStatusInProgress = "in_progress"
	AssemblyStatusPassed     = "passed"
	AssemblyStatusFailed     = "failed"
)

// Quotation is an offer sent to a customer
type Quotation struct {
	ID         uint            `gorm:"primaryKey;autoIncrement"`
	CustomerID uint            `gorm:"not null;index"`
	Customer   *Customer       `gorm:"foreignKey:CustomerID"`
	ProjectID  *uint           `gorm:"index"`
	Number     string          `gorm:"size:64;uniqueIndex;not null"`
	Status     string          `gorm:"size:32;not null;default:draft"`
	Total      decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	ValidUntil *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
	RemoteSync
}

func (q *Quotation) EntityKind() Kind { return KindQuotation }
func (q *Quotation) EntityID() uint { return q.ID }
func (q *Quotation) Remote() *RemoteSync { return &q.RemoteSync }
func (Quotation) TableName() string { return "quotations" }

// InvoiceIssued is an invoice sent to a customer
type InvoiceIssued struct {
	ID         uint            `gorm:"primaryKey;autoIncrement"`
	CustomerID uint            `gorm:"not null;index"`
	Customer   *Customer       `gorm:"foreignKey:CustomerID"`
	ProjectID  *uint           `gorm:"index"`
	Number     string          `gorm:"size:64;uniqueIndex;not null"`
	IssueDate  time.Time       `gorm:"not null"`
	Status     string          `gorm:"size:32;not null;default:draft"`
	Total      decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
	RemoteSync
}

func (i *InvoiceIssued) EntityKind() Kind { return KindInvoiceIssued }
func (i *InvoiceIssued) EntityID() uint { return i.ID }
func (i *InvoiceIssued) Remote() *RemoteSync { return &i.RemoteSync }
func (InvoiceIssued) TableName() string { return "invoices_issued" }

// InvoiceReceived is a supplier invoice, usually the source of stock
type InvoiceReceived struct {
	ID           uint            `gorm:"primaryKey;autoIncrement"`
	SupplierName string          `gorm:"size:255;not null"`
	Number       string          `gorm:"size:64;not null;index"`
	IssueDate    time.Time       `gorm:"not null"`
	Status       string          `gorm:"size:32;not null;default:received"`
	Total        decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
	RemoteSync
}

func (i *InvoiceReceived) EntityKind() Kind { return KindInvoiceReceived }
func (i *InvoiceReceived) EntityID() uint { return i.ID }
func (i *InvoiceReceived) Remote() *RemoteSync { return &i.RemoteSync }
func (InvoiceReceived) TableName() string { return "invoices_received" }

// ProjectDocument is a datasheet, schematic, QC report or other project file
type ProjectDocument struct {
	ID           uint     `gorm:"primaryKey;autoIncrement"`
	ProjectID    uint     `gorm:"not null;index"`
	Project      *Project `gorm:"foreignKey:ProjectID"`
	Type         string   `gorm:"size:32;not null;default:other"`
	Title        string   `gorm:"size:255"`
	OriginalName string   `gorm:"size:255;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
	RemoteSync
}

func (d *ProjectDocument) EntityKind() Kind { return KindProjectDocument }
func (d *ProjectDocument) EntityID() uint { return d.ID }
func (d *ProjectDocument) Remote() *RemoteSync { return &d.RemoteSync }
func (ProjectDocument) TableName() string { return "project_documents" }

// CustomerContract is a signed framework or service agreement
type CustomerContract struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	CustomerID uint      `gorm:"not null;index"`
	Customer   *Customer `gorm:"foreignKey:CustomerID"`
	Number     string    `gorm:"size:64;uniqueIndex;not null"`
	Status     string    `gorm:"size:32;not null;default:active"`
	StartsOn   *time.Time
	EndsOn     *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
	RemoteSync
}

func (c *CustomerContract) EntityKind() Kind { return KindContract }
func (c *CustomerContract) EntityID() uint { return c.ID }
func (c *CustomerContract) Remote() *RemoteSync { return &c.RemoteSync }
func (CustomerContract) TableName() string { return "customer_contracts" }

// BoardAssemblyLog records one assembled batch. TraceCode is the payload of
// the QR label stuck on every board of the batch.
type BoardAssemblyLog struct {
	ID              uint     `gorm:"primaryKey;autoIncrement"`
	ProjectID       uint     `gorm:"not null;index"`
	Project         *Project `gorm:"foreignKey:ProjectID"`
	BatchNumber     string   `gorm:"size:64;not null;index"`
	BoardsAssembled int      `gorm:"not null;default:0"`
	Operator        string   `gorm:"size:128"`
	TraceCode       string   `gorm:"size:36;uniqueIndex;not null"`
	Status          string   `gorm:"size:32;not null;default:in_progress"`
	Measurements    JSON
	AssembledAt     time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`
	RemoteSync
}

func (l *BoardAssemblyLog) EntityKind() Kind { return KindAssemblyLog }
func (l *BoardAssemblyLog) EntityID() uint { return l.ID }
func (l *BoardAssemblyLog) Remote() *RemoteSync { return &l.RemoteSync }
func (BoardAssemblyLog) TableName() string { return "board_assembly_logs" }

// BeforeCreate assigns the trace code printed on the QR label
func (l *BoardAssemblyLog) BeforeCreate(tx *gorm.DB) error {
	if l.TraceCode == "" {
		l.TraceCode = uuid.NewString()
	}
	if l.AssembledAt.IsZero() {
		l.AssembledAt = time.Now().UTC()
	}
	return nil
}
