// webdav.go
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

package nextcloud

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/studio-b12/gowebdav"
)

// WebDAVStore talks to the Nextcloud WebDAV endpoint of one user
type WebDAVStore struct {
	client *gowebdav.Client
}

// DAVRoot returns the WebDAV files endpoint for user on baseURL
func DAVRoot(baseURL, user string) string {
	return fmt.Sprintf("%s/remote.php/dav/files/%s", baseURL, url.PathEscape(user))
}

// NewWebDAVStore creates a store rooted at the user's files endpoint
func NewWebDAVStore(baseURL, user, password string, timeout time.Duration) *WebDAVStore {
	return NewWebDAVStoreAt(DAVRoot(baseURL, user), user, password, timeout)
}

// NewWebDAVStoreAt creates a store rooted at an explicit WebDAV URL
func NewWebDAVStoreAt(root, user, password string, timeout time.Duration) *WebDAVStore {
	client := gowebdav.NewClient(root, user, password)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &WebDAVStore{client: client}
}

// Ping verifies the endpoint and credentials
func (s *WebDAVStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("nextcloud connect: %w", err)
	}
	return nil
}

func (s *WebDAVStore) CreateDirectory(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.MkdirAll(Clean(dir), 0o755); err != nil {
		return fmt.Errorf("mkcol %s: %w", dir, err)
	}
	return nil
}

func (s *WebDAVStore) UploadFile(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	if err := s.client.WriteStream(Clean(remotePath), file, 0o644); err != nil {
		return fmt.Errorf("put %s: %w", remotePath, err)
	}
	return nil
}

func (s *WebDAVStore) UploadContent(ctx context.Context, content []byte, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.Write(Clean(remotePath), content, 0o644); err != nil {
		return fmt.Errorf("put %s: %w", remotePath, err)
	}
	return nil
}

func (s *WebDAVStore) DeleteFile(ctx context.Context, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.Remove(Clean(remotePath)); err != nil && !gowebdav.IsErrNotFound(err) {
		return fmt.Errorf("delete %s: %w", remotePath, err)
	}
	return nil
}

func (s *WebDAVStore) DeleteFolder(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.RemoveAll(Clean(dir)); err != nil && !gowebdav.IsErrNotFound(err) {
		return fmt.Errorf("delete %s: %w", dir, err)
	}
	return nil
}

func (s *WebDAVStore) Move(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, to = Clean(from), Clean(to)
	if err := s.client.MkdirAll(path.Dir(to), 0o755); err != nil {
		return fmt.Errorf("mkcol %s: %w", path.Dir(to), err)
	}
	if err := s.client.Rename(from, to, true); err != nil {
		if gowebdav.IsErrNotFound(err) {
			return fmt.Errorf("move %s: %w", from, ErrNotFound)
		}
		return fmt.Errorf("move %s to %s: %w", from, to, err)
	}
	return nil
}

func (s *WebDAVStore) Exists(ctx context.Context, remotePath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := s.client.Stat(Clean(remotePath)); err != nil {
		if gowebdav.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("propfind %s: %w", remotePath, err)
	}
	return true, nil
}
