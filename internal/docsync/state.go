package docsync

import (
	"reflect"

	"github.com/localnerve/benchtop/internal/models"
	"gorm.io/gorm"
)

// State is the remote mirror state derived from an entity's sync pointers
type State string

const (
	StateNoFolder   State = "NO_FOLDER"
	StateFolderOnly State = "FOLDER_ONLY"
	StateSynced     State = "SYNCED"
	StateArchived   State = "ARCHIVED"
	// StateDeleted follows a hard delete. No stored row carries it.
	StateDeleted State = "DELETED"
)

// StateOf derives the state of entity. A soft deleted entity with a remote
// copy is archived under the deleted folder.
func StateOf(entity models.Documentable) State {
	r := entity.Remote()
	hasRemote := r.StoredPath() != "" || r.StoredFolder() != ""
	switch {
	case hasRemote && (isDeleted(entity) || r.NextcloudArchivedAt != nil):
		return StateArchived
	case r.UploadedToNextcloud:
		return StateSynced
	case r.NextcloudFolderCreated:
		return StateFolderOnly
	}
	return StateNoFolder
}

func isDeleted(entity any) bool {
	v := reflect.Indirect(reflect.ValueOf(entity))
	if v.Kind() != reflect.Struct {
		return false
	}
	f := v.FieldByName("DeletedAt")
	if !f.IsValid() {
		return false
	}
	deletedAt, ok := f.Interface().(gorm.DeletedAt)
	return ok && deletedAt.Valid
}
