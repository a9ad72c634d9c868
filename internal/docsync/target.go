package docsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/localnerve/benchtop/internal/models"
)

// ErrUnknownKind is returned for kinds without a resolver
var ErrUnknownKind = errors.New("kind is not synchronized")

// Target is where an entity belongs in the remote tree given its current
// state. Folder-owning kinds set Folder, file kinds set File.
type Target struct {
	Entity     models.Documentable
	Folder     string
	Subfolders []string
	File       string
	// Deleted is the soft delete destination of the folder or file
	Deleted  string
	Archived bool
	// Parents are the folder-owning ancestors, outermost first
	Parents []*Target
	// Metadata is an optional sidecar uploaded next to File
	Metadata []byte
	// Revision marks an upload that gets its own File and leaves the
	// stored copy in place
	Revision bool
}

// Resolver computes the target of an entity of one kind
type Resolver func(ctx context.Context, entity models.Documentable) (*Target, error)

// OwnsFolder reports whether the target is a folder
func (t *Target) OwnsFolder() bool {
	return t.Folder != ""
}

// Desired is the path the entity should occupy now
func (t *Target) Desired() string {
	if isDeleted(t.Entity) {
		return t.Deleted
	}
	if t.OwnsFolder() {
		return t.Folder
	}
	return t.File
}

// Base is the folder children of this target live in. A deleted parent
// keeps its children wherever its folder actually is.
func (t *Target) Base() string {
	if stored := t.Entity.Remote().StoredFolder(); stored != "" && isDeleted(t.Entity) {
		return stored
	}
	return t.Desired()
}

// Stored is the path the remote copy was last confirmed at
func (t *Target) Stored() string {
	if t.OwnsFolder() {
		return t.Entity.Remote().StoredFolder()
	}
	return t.Entity.Remote().StoredPath()
}

func metadataPath(file string) string {
	if file == "" {
		return ""
	}
	return strings.TrimSuffix(file, path.Ext(file)) + ".json"
}

func (s *Synchronizer) registerResolvers() {
	s.resolvers = map[models.Kind]Resolver{
		models.KindCustomer:        s.resolveCustomer,
		models.KindProject:         s.resolveProject,
		models.KindQuotation:       s.resolveQuotation,
		models.KindInvoiceIssued:   s.resolveInvoiceIssued,
		models.KindInvoiceReceived: s.resolveInvoiceReceived,
		models.KindProjectDocument: s.resolveProjectDocument,
		models.KindBom:             s.resolveBom,
		models.KindContract:        s.resolveContract,
		models.KindAssemblyLog:     s.resolveAssemblyLog,
	}
}

// Resolve computes the target of entity
func (s *Synchronizer) Resolve(ctx context.Context, entity models.Documentable) (*Target, error) {
	resolve, ok := s.resolvers[entity.EntityKind()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", entity.EntityKind(), ErrUnknownKind)
	}
	return resolve(ctx, entity)
}

func (s *Synchronizer) load(ctx context.Context, entity models.Documentable, id uint) error {
	if err := s.db.WithContext(ctx).Unscoped().First(entity, id).Error; err != nil {
		return fmt.Errorf("load %s %d: %w", entity.EntityKind(), id, err)
	}
	return nil
}

func (s *Synchronizer) customerTarget(ctx context.Context, id uint) (*Target, error) {
	customer := &models.Customer{}
	if err := s.load(ctx, customer, id); err != nil {
		return nil, err
	}
	return s.resolveCustomer(ctx, customer)
}

func (s *Synchronizer) projectTarget(ctx context.Context, id uint) (*Target, error) {
	project := &models.Project{}
	if err := s.load(ctx, project, id); err != nil {
		return nil, err
	}
	return s.resolveProject(ctx, project)
}

func (s *Synchronizer) resolveCustomer(ctx context.Context, entity models.Documentable) (*Target, error) {
	c := entity.(*models.Customer)
	return &Target{
		Entity:     c,
		Folder:     s.layout.CustomerFolder(c),
		Subfolders: CustomerSubfolders,
		Deleted:    s.layout.CustomerDeletedFolder(c),
	}, nil
}

func (s *Synchronizer) resolveProject(ctx context.Context, entity models.Documentable) (*Target, error) {
	p := entity.(*models.Project)
	customer, err := s.customerTarget(ctx, p.CustomerID)
	if err != nil {
		return nil, err
	}
	folder, archived := s.layout.ProjectFolder(customer.Base(), p)
	return &Target{
		Entity:     p,
		Folder:     folder,
		Subfolders: ProjectSubfolders,
		Deleted:    s.layout.ProjectDeletedFolder(customer.Base(), p),
		Archived:   archived,
		Parents:    []*Target{customer},
	}, nil
}

func (s *Synchronizer) resolveQuotation(ctx context.Context, entity models.Documentable) (*Target, error) {
	q := entity.(*models.Quotation)
	customer, err := s.customerTarget(ctx, q.CustomerID)
	if err != nil {
		return nil, err
	}
	return &Target{
		Entity:  q,
		File:    s.layout.QuotationFile(customer.Base(), q),
		Deleted: s.layout.QuotationDeletedFile(customer.Base(), q),
		Parents: []*Target{customer},
	}, nil
}

func (s *Synchronizer) resolveInvoiceIssued(ctx context.Context, entity models.Documentable) (*Target, error) {
	inv := entity.(*models.InvoiceIssued)
	customer, err := s.customerTarget(ctx, inv.CustomerID)
	if err != nil {
		return nil, err
	}
	file, archived := s.layout.InvoiceIssuedFile(customer.Base(), inv)
	return &Target{
		Entity:   inv,
		File:     file,
		Deleted:  s.layout.InvoiceIssuedDeletedFile(customer.Base(), inv),
		Archived: archived,
		Parents:  []*Target{customer},
	}, nil
}

func (s *Synchronizer) resolveInvoiceReceived(ctx context.Context, entity models.Documentable) (*Target, error) {
	inv := entity.(*models.InvoiceReceived)
	file, archived := s.layout.InvoiceReceivedFile(inv)
	return &Target{
		Entity:   inv,
		File:     file,
		Deleted:  s.layout.InvoiceReceivedDeletedFile(inv),
		Archived: archived,
	}, nil
}

func (s *Synchronizer) resolveProjectDocument(ctx context.Context, entity models.Documentable) (*Target, error) {
	d := entity.(*models.ProjectDocument)
	project, err := s.projectTarget(ctx, d.ProjectID)
	if err != nil {
		return nil, err
	}
	return &Target{
		Entity:  d,
		File:    s.layout.ProjectDocumentFile(project.Base(), d),
		Deleted: s.layout.ProjectDocumentDeletedFile(project.Base(), d),
		Parents: append(append([]*Target{}, project.Parents...), project),
	}, nil
}

func (s *Synchronizer) resolveBom(ctx context.Context, entity models.Documentable) (*Target, error) {
	b := entity.(*models.ProjectBom)
	project, err := s.projectTarget(ctx, b.ProjectID)
	if err != nil {
		return nil, err
	}

	// Every upload is named when it is sent. Earlier uploads stay in the
	// BOM folder as revisions.
	stored := b.StoredPath()
	name := path.Base(stored)
	revision := false
	if stored == "" || b.HasLocalFile() {
		ext := ""
		if b.HasLocalFile() {
			ext = strings.ToLower(filepath.Ext(*b.FilePath))
		}
		name = BomFileName(b, ext, s.now())
		revision = stored != ""
	}
	deletedName := name
	if stored != "" {
		deletedName = path.Base(stored)
	}

	folder := s.layout.BomFolder(project.Base())
	return &Target{
		Entity:   b,
		File:     path.Join(folder, name),
		Deleted:  path.Join(folder, DirDeleted, deletedName),
		Parents:  append(append([]*Target{}, project.Parents...), project),
		Revision: revision,
	}, nil
}

func (s *Synchronizer) resolveContract(ctx context.Context, entity models.Documentable) (*Target, error) {
	c := entity.(*models.CustomerContract)
	customer, err := s.customerTarget(ctx, c.CustomerID)
	if err != nil {
		return nil, err
	}
	file, archived := s.layout.ContractFile(customer.Base(), c)
	return &Target{
		Entity:   c,
		File:     file,
		Deleted:  s.layout.ContractDeletedFile(customer.Base(), c),
		Archived: archived,
		Parents:  []*Target{customer},
	}, nil
}

type assemblyMetadata struct {
	TraceCode       string          `json:"trace_code"`
	BatchNumber     string          `json:"batch_number"`
	BoardsAssembled int             `json:"boards_assembled"`
	Operator        string          `json:"operator,omitempty"`
	Status          string          `json:"status"`
	AssembledAt     string          `json:"assembled_at"`
	Measurements    json.RawMessage `json:"measurements,omitempty"`
}

func (s *Synchronizer) resolveAssemblyLog(ctx context.Context, entity models.Documentable) (*Target, error) {
	a := entity.(*models.BoardAssemblyLog)
	project, err := s.projectTarget(ctx, a.ProjectID)
	if err != nil {
		return nil, err
	}

	meta := assemblyMetadata{
		TraceCode:       a.TraceCode,
		BatchNumber:     a.BatchNumber,
		BoardsAssembled: a.BoardsAssembled,
		Operator:        a.Operator,
		Status:          a.Status,
		AssembledAt:     a.AssembledAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if len(a.Measurements.JSON) > 0 {
		meta.Measurements = json.RawMessage(a.Measurements.JSON)
	}
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode assembly metadata: %w", err)
	}

	folder := s.layout.AssemblyFolder(project.Base())
	name := AssemblyFileName(a, ".pdf")
	return &Target{
		Entity:   a,
		File:     path.Join(folder, name),
		Deleted:  path.Join(folder, DirDeleted, name),
		Parents:  append(append([]*Target{}, project.Parents...), project),
		Metadata: payload,
	}, nil
}
