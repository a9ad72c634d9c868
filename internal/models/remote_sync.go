package models

import "time"

// RemoteSync is embedded in every document-bearing entity and records where
// the remote copy is believed to live. Pointers are only written after the
// remote store confirmed the operation.
type RemoteSync struct {
	FilePath               *string `gorm:"size:1024"`
	NextcloudPath          *string `gorm:"size:1024"`
	NextcloudFolder        *string `gorm:"size:1024"`
	NextcloudFolderCreated bool    `gorm:"not null;default:false"`
	UploadedToNextcloud    bool    `gorm:"not null;default:false"`
	NextcloudArchivedAt    *time.Time
}

// HasLocalFile reports whether a local file is attached
func (r *RemoteSync) HasLocalFile() bool {
	return r.FilePath != nil && *r.FilePath != ""
}

// StoredPath returns the remote file pointer or ""
func (r *RemoteSync) StoredPath() string {
	if r.NextcloudPath == nil {
		return ""
	}
	return *r.NextcloudPath
}

// StoredFolder returns the remote folder pointer or ""
func (r *RemoteSync) StoredFolder() string {
	if r.NextcloudFolder == nil {
		return ""
	}
	return *r.NextcloudFolder
}

// StringPtr returns a pointer to s, or nil for ""
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
