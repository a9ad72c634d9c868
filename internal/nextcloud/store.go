// Package nextcloud holds the remote file store used to mirror documents.
// Paths are absolute within the store, "/" separated.
package nextcloud

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned when a remote path does not exist
var ErrNotFound = errors.New("remote path not found")

// RemoteStore is the set of primitives the document synchronizer relies on.
// A nil error means the remote confirmed the operation.
type RemoteStore interface {
	// CreateDirectory creates path and any missing parents
	CreateDirectory(ctx context.Context, dir string) error
	// UploadFile copies a local file to remotePath
	UploadFile(ctx context.Context, localPath, remotePath string) error
	// UploadContent writes content to remotePath
	UploadContent(ctx context.Context, content []byte, remotePath string) error
	// DeleteFile removes a file, a missing file is not an error
	DeleteFile(ctx context.Context, remotePath string) error
	// DeleteFolder removes a folder recursively, a missing folder is not an error
	DeleteFolder(ctx context.Context, dir string) error
	// Move renames from to to, creating the destination parent
	Move(ctx context.Context, from, to string) error
	// Exists reports whether remotePath is present
	Exists(ctx context.Context, remotePath string) (bool, error)
}

// Clean normalizes a remote path to an absolute, slash separated form
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

// ErrDisabled is returned by every call of a DisabledStore
var ErrDisabled = errors.New("nextcloud is not configured")

// DisabledStore stands in when no Nextcloud is configured. Nothing is ever
// confirmed, so local files are never handed off.
type DisabledStore struct{}

func (DisabledStore) CreateDirectory(context.Context, string) error       { return ErrDisabled }
func (DisabledStore) UploadFile(context.Context, string, string) error    { return ErrDisabled }
func (DisabledStore) UploadContent(context.Context, []byte, string) error { return ErrDisabled }
func (DisabledStore) DeleteFile(context.Context, string) error            { return ErrDisabled }
func (DisabledStore) DeleteFolder(context.Context, string) error          { return ErrDisabled }
func (DisabledStore) Move(context.Context, string, string) error          { return ErrDisabled }
func (DisabledStore) Exists(context.Context, string) (bool, error)        { return false, ErrDisabled }

// IsDisabled reports whether store never reaches a remote
func IsDisabled(store RemoteStore) bool {
	switch store.(type) {
	case nil, DisabledStore, *DisabledStore:
		return true
	}
	return false
}
