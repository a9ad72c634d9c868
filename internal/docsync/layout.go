// Package docsync mirrors document-bearing entities to the remote store,
// keeping each remote folder or file where the entity's state says it belongs.
package docsync

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/localnerve/benchtop/internal/models"
	"github.com/localnerve/benchtop/internal/nextcloud"
)

// Folder names of the remote tree
const (
	DirCustomers        = "Clienti"
	DirDeleted          = "_Eliminati"
	DirQuotations       = "01_Preventivi"
	DirContracts        = "02_Contratti"
	DirInvoices         = "03_Fatture"
	DirProjects         = "04_Progetti"
	DirReceivedInvoices = "Fatture_Ricevute"
	DirCancelled        = "Annullate"
	DirExpired          = "Scaduti"
	DirCompleted        = "_Completati"
	DirAbandoned        = "_Annullati"
	DirDocumentation    = "01_Documentazione"
	DirDesign           = "02_Progettazione"
	DirProduction       = "03_Produzione"
	DirDelivery         = "04_Consegna"
)

// CustomerSubfolders are created under every customer folder
var CustomerSubfolders = []string{
	DirQuotations + "/Bozze",
	DirQuotations + "/Inviati",
	DirQuotations + "/Accettati",
	DirQuotations + "/Rifiutati",
	DirQuotations + "/Scaduti",
	DirContracts,
	DirInvoices,
	DirProjects,
}

// ProjectSubfolders are created under every project folder
var ProjectSubfolders = []string{
	DirDocumentation,
	DirDesign + "/BOM",
	DirDesign + "/Schemi",
	DirDesign + "/PCB",
	DirProduction + "/Assemblaggi",
	DirProduction + "/QC",
	DirDelivery,
}

var quotationFolders = map[string]string{
	models.QuotationStatusDraft:    "Bozze",
	models.QuotationStatusSent:     "Inviati",
	models.QuotationStatusAccepted: "Accettati",
	models.QuotationStatusRejected: "Rifiutati",
	models.QuotationStatusExpired:  "Scaduti",
}

var documentFolders = map[string]string{
	models.DocumentTypeDatasheet: DirDocumentation,
	models.DocumentTypeManual:    DirDocumentation,
	models.DocumentTypeOther:     DirDocumentation,
	models.DocumentTypeSchematic: DirDesign + "/Schemi",
	models.DocumentTypePCB:       DirDesign + "/PCB",
	models.DocumentTypeGerber:    DirDesign + "/PCB",
	models.DocumentTypeQC:        DirProduction + "/QC",
}

// Layout computes remote paths under Root
type Layout struct {
	Root string
}

// NewLayout creates a layout rooted at root
func NewLayout(root string) Layout {
	return Layout{Root: nextcloud.Clean(root)}
}

var unsafeChars = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_",
)

// Sanitize makes name safe as a single path segment
func Sanitize(name string) string {
	name = strings.TrimSpace(unsafeChars.Replace(name))
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

func codeName(code, name string) string {
	return Sanitize(fmt.Sprintf("%s_%s", code, name))
}

// CustomerFolder is the live folder of a customer
func (l Layout) CustomerFolder(c *models.Customer) string {
	return path.Join(l.Root, DirCustomers, codeName(c.Code, c.Name))
}

// CustomerDeletedFolder is where a soft deleted customer folder goes
func (l Layout) CustomerDeletedFolder(c *models.Customer) string {
	return path.Join(l.Root, DirCustomers, DirDeleted, codeName(c.Code, c.Name))
}

// ProjectFolder places a project under its customer base, archived
// projects go under _Completati or _Annullati
func (l Layout) ProjectFolder(customerBase string, p *models.Project) (string, bool) {
	base := path.Join(customerBase, DirProjects)
	name := codeName(p.Code, p.Name)
	switch p.Status {
	case models.ProjectStatusCompleted:
		return path.Join(base, DirCompleted, name), true
	case models.ProjectStatusCancelled:
		return path.Join(base, DirAbandoned, name), true
	}
	return path.Join(base, name), false
}

// ProjectDeletedFolder is where a soft deleted project folder goes
func (l Layout) ProjectDeletedFolder(customerBase string, p *models.Project) string {
	return path.Join(customerBase, DirProjects, DirDeleted, codeName(p.Code, p.Name))
}

// QuotationFile places a quotation in the folder of its status
func (l Layout) QuotationFile(customerBase string, q *models.Quotation) string {
	folder, ok := quotationFolders[q.Status]
	if !ok {
		folder = quotationFolders[models.QuotationStatusDraft]
	}
	return path.Join(customerBase, DirQuotations, folder, quotationName(q))
}

func (l Layout) QuotationDeletedFile(customerBase string, q *models.Quotation) string {
	return path.Join(customerBase, DirQuotations, DirDeleted, quotationName(q))
}

func quotationName(q *models.Quotation) string {
	return Sanitize("preventivo-" + q.Number + ".pdf")
}

// InvoiceIssuedFile files an invoice by issue year, cancelled ones apart
func (l Layout) InvoiceIssuedFile(customerBase string, inv *models.InvoiceIssued) (string, bool) {
	name := Sanitize("fattura-" + inv.Number + ".pdf")
	if inv.Status == models.InvoiceStatusCancelled {
		return path.Join(customerBase, DirInvoices, DirCancelled, name), true
	}
	return path.Join(customerBase, DirInvoices, yearOf(inv.IssueDate), name), false
}

func (l Layout) InvoiceIssuedDeletedFile(customerBase string, inv *models.InvoiceIssued) string {
	return path.Join(customerBase, DirInvoices, DirDeleted, Sanitize("fattura-"+inv.Number+".pdf"))
}

// InvoiceReceivedFile files a supplier invoice by issue year
func (l Layout) InvoiceReceivedFile(inv *models.InvoiceReceived) (string, bool) {
	name := receivedName(inv)
	if inv.Status == models.InvoiceStatusCancelled {
		return path.Join(l.Root, DirReceivedInvoices, DirCancelled, name), true
	}
	return path.Join(l.Root, DirReceivedInvoices, yearOf(inv.IssueDate), name), false
}

func (l Layout) InvoiceReceivedDeletedFile(inv *models.InvoiceReceived) string {
	return path.Join(l.Root, DirReceivedInvoices, DirDeleted, receivedName(inv))
}

func receivedName(inv *models.InvoiceReceived) string {
	return Sanitize(inv.SupplierName + "_" + inv.Number + ".pdf")
}

// ProjectDocumentFile places a document in the project subfolder of its type
func (l Layout) ProjectDocumentFile(projectBase string, d *models.ProjectDocument) string {
	folder, ok := documentFolders[d.Type]
	if !ok {
		folder = DirDocumentation
	}
	return path.Join(projectBase, folder, Sanitize(d.OriginalName))
}

func (l Layout) ProjectDocumentDeletedFile(projectBase string, d *models.ProjectDocument) string {
	return path.Join(projectBase, DirDeleted, Sanitize(d.OriginalName))
}

// BomFolder holds every uploaded BOM file of a project
func (l Layout) BomFolder(projectBase string) string {
	return path.Join(projectBase, DirDesign, "BOM")
}

// BomFileName names a BOM upload after the BOM and the upload time
func BomFileName(b *models.ProjectBom, ext string, at time.Time) string {
	if ext == "" {
		ext = ".csv"
	}
	return Sanitize(b.Name) + "_" + at.Format("20060102_150405") + ext
}

// ContractFile places a contract, expired and terminated ones under Scaduti
func (l Layout) ContractFile(customerBase string, c *models.CustomerContract) (string, bool) {
	name := Sanitize("contratto-" + c.Number + ".pdf")
	switch c.Status {
	case models.ContractStatusExpired, models.ContractStatusTerminated:
		return path.Join(customerBase, DirContracts, DirExpired, name), true
	}
	return path.Join(customerBase, DirContracts, name), false
}

func (l Layout) ContractDeletedFile(customerBase string, c *models.CustomerContract) string {
	return path.Join(customerBase, DirContracts, DirDeleted, Sanitize("contratto-"+c.Number+".pdf"))
}

// AssemblyFolder holds assembly reports and their metadata
func (l Layout) AssemblyFolder(projectBase string) string {
	return path.Join(projectBase, DirProduction, "Assemblaggi")
}

// AssemblyFileName is the report name of a batch, ext includes the dot
func AssemblyFileName(a *models.BoardAssemblyLog, ext string) string {
	return Sanitize("assembly-" + a.BatchNumber + ext)
}

func yearOf(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return fmt.Sprintf("%04d", t.Year())
}
