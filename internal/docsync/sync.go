// sync.go
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

package docsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/localnerve/benchtop/internal/events"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/localnerve/benchtop/internal/nextcloud"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Synchronizer applies entity lifecycle events to the remote store.
// Sync pointers are written only after the remote confirmed the operation,
// a failed call leaves the entity as it was so a later resync can retry.
type Synchronizer struct {
	db        *gorm.DB
	remote    nextcloud.RemoteStore
	layout    Layout
	storage   *LocalStorage
	resolvers map[models.Kind]Resolver
	logger    logrus.FieldLogger
	now       func() time.Time
}

// New creates a synchronizer
func New(db *gorm.DB, remote nextcloud.RemoteStore, layout Layout, storage *LocalStorage, logger logrus.FieldLogger) *Synchronizer {
	s := &Synchronizer{
		db:      db,
		remote:  remote,
		layout:  layout,
		storage: storage,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.registerResolvers()
	return s
}

// Storage returns the local storage documents are read from
func (s *Synchronizer) Storage() *LocalStorage {
	return s.storage
}

// Enabled reports whether a remote store is configured
func (s *Synchronizer) Enabled() bool {
	return !nextcloud.IsDisabled(s.remote)
}

// Register subscribes the synchronizer to every document kind on bus.
// Nothing is subscribed without a remote store.
func (s *Synchronizer) Register(bus *events.Bus) {
	if !s.Enabled() {
		return
	}
	for _, kind := range models.DocumentKinds {
		bus.Subscribe(kind, events.Created, "docsync.created", s.handle(s.OnCreated, false))
		bus.Subscribe(kind, events.Updated, "docsync.updated", s.handle(s.OnUpdated, false))
		bus.Subscribe(kind, events.Deleted, "docsync.deleted", s.handle(s.OnDeleted, false))
		bus.Subscribe(kind, events.ForceDeleted, "docsync.force_deleted", s.handle(s.OnForceDeleted, true))
	}
}

func (s *Synchronizer) handle(fn func(context.Context, models.Documentable) error, useBefore bool) events.Handler {
	return func(ctx context.Context, ev events.Event) error {
		entity := ev.After
		if useBefore {
			entity = ev.Before
		}
		doc, ok := entity.(models.Documentable)
		if !ok {
			return fmt.Errorf("%s: %w", ev.Kind, ErrUnknownKind)
		}
		return fn(ctx, doc)
	}
}

// OnCreated ensures parent folders, the entity's own folder and uploads a
// pending local file
func (s *Synchronizer) OnCreated(ctx context.Context, doc models.Documentable) error {
	return s.reconcile(ctx, doc)
}

// OnUpdated moves the remote copy when the entity's state places it
// elsewhere, then uploads a pending local file
func (s *Synchronizer) OnUpdated(ctx context.Context, doc models.Documentable) error {
	return s.reconcile(ctx, doc)
}

// OnDeleted moves the remote copy into the deleted archive
func (s *Synchronizer) OnDeleted(ctx context.Context, doc models.Documentable) error {
	t, err := s.Resolve(ctx, doc)
	if err != nil {
		return err
	}

	stored := t.Stored()
	if stored == "" || stored == t.Deleted {
		return nil
	}
	return s.relocate(ctx, t, stored, t.Deleted, true)
}

// OnForceDeleted removes the remote copy permanently. doc is the snapshot
// taken before the row was deleted.
func (s *Synchronizer) OnForceDeleted(ctx context.Context, doc models.Documentable) error {
	r := doc.Remote()
	log := s.entityLogger(doc).WithField("state", StateDeleted)

	if folder := r.StoredFolder(); folder != "" {
		if err := s.remote.DeleteFolder(ctx, folder); err != nil {
			return fmt.Errorf("delete folder %s: %w", folder, err)
		}
		log.WithField("path", folder).Info("Removed remote folder")
	}
	if file := r.StoredPath(); file != "" {
		if err := s.remote.DeleteFile(ctx, file); err != nil {
			return fmt.Errorf("delete file %s: %w", file, err)
		}
		if doc.EntityKind() == models.KindAssemblyLog {
			if err := s.remote.DeleteFile(ctx, metadataPath(file)); err != nil {
				log.WithError(err).Warn("Failed to remove metadata sidecar")
			}
		}
		log.WithField("path", file).Info("Removed remote file")
	}
	if r.HasLocalFile() {
		if err := s.storage.Remove(*r.FilePath); err != nil {
			log.WithError(err).Warn("Failed to remove local file")
		}
	}
	return nil
}

// Resync reloads an entity and runs the logic of its current state again
func (s *Synchronizer) Resync(ctx context.Context, kind models.Kind, id uint) error {
	doc, ok := models.NewDocumentable(kind)
	if !ok {
		return fmt.Errorf("%s: %w", kind, ErrUnknownKind)
	}
	if !s.Enabled() {
		return fmt.Errorf("resync %s %d: %w", kind, id, nextcloud.ErrDisabled)
	}
	if err := s.load(ctx, doc, id); err != nil {
		return err
	}
	if isDeleted(doc) {
		return s.OnDeleted(ctx, doc)
	}
	return s.reconcile(ctx, doc)
}

func (s *Synchronizer) reconcile(ctx context.Context, doc models.Documentable) error {
	if isDeleted(doc) {
		return s.OnDeleted(ctx, doc)
	}

	t, err := s.Resolve(ctx, doc)
	if err != nil {
		return err
	}

	for _, parent := range t.Parents {
		if isDeleted(parent.Entity) {
			continue
		}
		if err := s.placeFolder(ctx, parent); err != nil {
			return err
		}
	}

	if t.OwnsFolder() {
		return s.placeFolder(ctx, t)
	}

	if err := s.placeFile(ctx, t); err != nil {
		return err
	}
	if doc.Remote().HasLocalFile() {
		if err := s.upload(ctx, t); err != nil {
			return err
		}
	}
	if t.Metadata != nil {
		if err := s.remote.UploadContent(ctx, t.Metadata, metadataPath(t.File)); err != nil {
			return fmt.Errorf("upload metadata %s: %w", metadataPath(t.File), err)
		}
	}
	return nil
}

// placeFolder creates the folder of t or moves it to where it now belongs
func (s *Synchronizer) placeFolder(ctx context.Context, t *Target) error {
	r := t.Entity.Remote()
	stored, desired := r.StoredFolder(), t.Desired()

	if stored != "" && stored != desired {
		err := s.relocate(ctx, t, stored, desired, false)
		if !errors.Is(err, nextcloud.ErrNotFound) {
			return err
		}
	} else if stored == desired && r.NextcloudFolderCreated {
		return nil
	}

	if err := s.remote.CreateDirectory(ctx, desired); err != nil {
		return fmt.Errorf("create folder %s: %w", desired, err)
	}
	for _, sub := range t.Subfolders {
		if err := s.remote.CreateDirectory(ctx, path.Join(desired, sub)); err != nil {
			return fmt.Errorf("create folder %s: %w", path.Join(desired, sub), err)
		}
	}

	err := s.persist(ctx, t.Entity, func(r *models.RemoteSync) {
		r.NextcloudFolder = models.StringPtr(desired)
		r.NextcloudFolderCreated = true
		r.NextcloudArchivedAt = s.archivedAt(r, t.Archived)
	})
	if err != nil {
		return err
	}
	s.entityLogger(t.Entity).WithField("path", desired).Info("Created remote folder")
	return nil
}

// placeFile makes sure the parent folder exists and moves a stored file
// that no longer sits where the entity's state places it
func (s *Synchronizer) placeFile(ctx context.Context, t *Target) error {
	r := t.Entity.Remote()
	stored := r.StoredPath()

	if stored != "" && stored != t.File && !t.Revision {
		err := s.relocate(ctx, t, stored, t.File, false)
		if !errors.Is(err, nextcloud.ErrNotFound) {
			return err
		}
	}

	if r.NextcloudFolderCreated && r.StoredPath() != "" {
		return nil
	}
	dir := path.Dir(t.File)
	if err := s.remote.CreateDirectory(ctx, dir); err != nil {
		return fmt.Errorf("create folder %s: %w", dir, err)
	}
	return s.persist(ctx, t.Entity, func(r *models.RemoteSync) {
		r.NextcloudFolderCreated = true
	})
}

// relocate moves the remote copy of t from one path to another. A copy that
// vanished remotely is forgotten and ErrNotFound returned so the caller can
// recreate it.
func (s *Synchronizer) relocate(ctx context.Context, t *Target, from, to string, deleted bool) error {
	log := s.entityLogger(t.Entity).WithFields(logrus.Fields{"from": from, "to": to})

	if err := s.remote.Move(ctx, from, to); err != nil {
		if !errors.Is(err, nextcloud.ErrNotFound) {
			return fmt.Errorf("move %s: %w", from, err)
		}
		log.Warn("Remote copy missing, forgetting stored location")
		if perr := s.persist(ctx, t.Entity, func(r *models.RemoteSync) {
			if t.OwnsFolder() {
				r.NextcloudFolder = nil
				r.NextcloudFolderCreated = false
			} else {
				r.NextcloudPath = nil
				r.UploadedToNextcloud = false
			}
			r.NextcloudArchivedAt = nil
		}); perr != nil {
			return perr
		}
		return err
	}

	if t.OwnsFolder() {
		if err := s.rebase(ctx, from, to); err != nil {
			return err
		}
	} else if t.Metadata != nil {
		if err := s.remote.Move(ctx, metadataPath(from), metadataPath(to)); err != nil {
			log.WithError(err).Warn("Failed to move metadata sidecar")
		}
	}

	archived := t.Archived || deleted
	err := s.persist(ctx, t.Entity, func(r *models.RemoteSync) {
		if t.OwnsFolder() {
			r.NextcloudFolder = models.StringPtr(to)
		} else {
			r.NextcloudPath = models.StringPtr(to)
		}
		r.NextcloudArchivedAt = s.archivedAt(r, archived)
	})
	if err != nil {
		return err
	}
	log.Info("Moved remote copy")
	return nil
}

// upload sends the local file of t and drops it once the remote has it
func (s *Synchronizer) upload(ctx context.Context, t *Target) error {
	r := t.Entity.Remote()
	rel := *r.FilePath
	if !s.storage.Exists(rel) {
		return fmt.Errorf("local file %s: %w", rel, fs.ErrNotExist)
	}

	dir := path.Dir(t.File)
	if err := s.remote.CreateDirectory(ctx, dir); err != nil {
		return fmt.Errorf("create folder %s: %w", dir, err)
	}
	if err := s.remote.UploadFile(ctx, s.storage.Path(rel), t.File); err != nil {
		return fmt.Errorf("upload %s: %w", t.File, err)
	}

	err := s.persist(ctx, t.Entity, func(r *models.RemoteSync) {
		r.NextcloudPath = models.StringPtr(t.File)
		r.UploadedToNextcloud = true
		r.NextcloudFolderCreated = true
		r.FilePath = nil
		r.NextcloudArchivedAt = s.archivedAt(r, t.Archived)
	})
	if err != nil {
		return err
	}

	log := s.entityLogger(t.Entity).WithField("path", t.File)
	if err := s.storage.Remove(rel); err != nil {
		log.WithError(err).Warn("Failed to remove uploaded local file")
	}
	log.Info("Uploaded document")
	return nil
}

type pointerRow struct {
	ID              uint
	NextcloudPath   *string
	NextcloudFolder *string
}

// rebase rewrites the stored pointers of everything below a moved folder
func (s *Synchronizer) rebase(ctx context.Context, from, to string) error {
	db := s.db.WithContext(ctx).Unscoped()
	pattern := from + "/%"

	for _, kind := range models.DocumentKinds {
		model, _ := models.NewDocumentable(kind)
		var rows []pointerRow
		err := db.Model(model).
			Select("id", "nextcloud_path", "nextcloud_folder").
			Where("nextcloud_path LIKE ? OR nextcloud_folder LIKE ?", pattern, pattern).
			Find(&rows).Error
		if err != nil {
			return fmt.Errorf("rebase %s: %w", kind, err)
		}

		for _, row := range rows {
			columns := map[string]any{}
			if moved, ok := rebasePath(row.NextcloudPath, from, to); ok {
				columns["nextcloud_path"] = moved
			}
			if moved, ok := rebasePath(row.NextcloudFolder, from, to); ok {
				columns["nextcloud_folder"] = moved
			}
			if len(columns) == 0 {
				continue
			}
			if err := db.Model(model).Where("id = ?", row.ID).UpdateColumns(columns).Error; err != nil {
				return fmt.Errorf("rebase %s %d: %w", kind, row.ID, err)
			}
		}
	}
	return nil
}

func rebasePath(p *string, from, to string) (string, bool) {
	if p == nil || !strings.HasPrefix(*p, from+"/") {
		return "", false
	}
	return to + strings.TrimPrefix(*p, from), true
}

// persist applies fn to the sync pointers and writes them, restoring the
// previous values when the write fails
func (s *Synchronizer) persist(ctx context.Context, entity models.Documentable, fn func(r *models.RemoteSync)) error {
	r := entity.Remote()
	previous := *r
	fn(r)

	err := s.db.WithContext(ctx).Unscoped().Model(entity).UpdateColumns(map[string]any{
		"file_path":                r.FilePath,
		"nextcloud_path":           r.NextcloudPath,
		"nextcloud_folder":         r.NextcloudFolder,
		"nextcloud_folder_created": r.NextcloudFolderCreated,
		"uploaded_to_nextcloud":    r.UploadedToNextcloud,
		"nextcloud_archived_at":    r.NextcloudArchivedAt,
	}).Error
	if err != nil {
		*r = previous
		return fmt.Errorf("save sync state of %s %d: %w", entity.EntityKind(), entity.EntityID(), err)
	}
	return nil
}

func (s *Synchronizer) archivedAt(r *models.RemoteSync, archived bool) *time.Time {
	if !archived {
		return nil
	}
	if r.NextcloudArchivedAt != nil {
		return r.NextcloudArchivedAt
	}
	now := s.now()
	return &now
}

func (s *Synchronizer) entityLogger(doc models.Documentable) logrus.FieldLogger {
	return s.logger.WithFields(logrus.Fields{
		"module": "docsync",
		"kind":   doc.EntityKind(),
		"id":     doc.EntityID(),
	})
}
