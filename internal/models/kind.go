package models

// Kind tags every entity type that takes part in lifecycle events.
// Handlers and sync resolvers are selected by Kind, never by Go type.
type Kind string

const (
	KindCustomer        Kind = "customer"
	KindProject         Kind = "project"
	KindComponent       Kind = "component"
	KindBom             Kind = "project_bom"
	KindBomItem         Kind = "project_bom_item"
	KindAllocation      Kind = "project_component_allocation"
	KindQuotation       Kind = "quotation"
	KindInvoiceIssued   Kind = "invoice_issued"
	KindInvoiceReceived Kind = "invoice_received"
	KindProjectDocument Kind = "project_document"
	KindContract        Kind = "customer_contract"
	KindAssemblyLog     Kind = "board_assembly_log"
)

// Entity is a persisted row that publishes lifecycle events
type Entity interface {
	EntityKind() Kind
	EntityID() uint
}

// Documentable is an entity mirrored to the remote file store
type Documentable interface {
	Entity
	Remote() *RemoteSync
}

// DocumentKinds lists every kind handled by the document synchronizer
var DocumentKinds = []Kind{
	KindCustomer,
	KindProject,
	KindQuotation,
	KindInvoiceIssued,
	KindInvoiceReceived,
	KindProjectDocument,
	KindBom,
	KindContract,
	KindAssemblyLog,
}

// ParseKind validates a kind received from an API path or CLI flag
func ParseKind(value string) (Kind, bool) {
	k := Kind(value)
	switch k {
	case KindCustomer, KindProject, KindComponent, KindBom, KindBomItem, KindAllocation,
		KindQuotation, KindInvoiceIssued, KindInvoiceReceived, KindProjectDocument,
		KindContract, KindAssemblyLog:
		return k, true
	}
	return "", false
}

// NewDocumentable returns an empty model for a document kind
func NewDocumentable(kind Kind) (Documentable, bool) {
	switch kind {
	case KindCustomer:
		return &Customer{}, true
	case KindProject:
		return &Project{}, true
	case KindQuotation:
		return &Quotation{}, true
	case KindInvoiceIssued:
		return &InvoiceIssued{}, true
	case KindInvoiceReceived:
		return &InvoiceReceived{}, true
	case KindProjectDocument:
		return &ProjectDocument{}, true
	case KindBom:
		return &ProjectBom{}, true
	case KindContract:
		return &CustomerContract{}, true
	case KindAssemblyLog:
		return &BoardAssemblyLog{}, true
	}
	return nil, false
}
