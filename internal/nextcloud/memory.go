package nextcloud

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process RemoteStore used as the remote in tests
type MemoryStore struct {
	mu       sync.Mutex
	dirs     map[string]bool
	files    map[string][]byte
	failures map[string]error
}

// NewMemoryStore creates an empty store containing only the root
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		dirs:     map[string]bool{"/": true},
		files:    make(map[string][]byte),
		failures: make(map[string]error),
	}
}

// FailOn makes every call of op ("mkdir", "upload", "delete", "move",
// "exists") return err until cleared with a nil err.
func (m *MemoryStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// IsDir reports whether dir exists
func (m *MemoryStore) IsDir(dir string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[Clean(dir)]
}

// File returns the content stored at p
func (m *MemoryStore) File(p string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[Clean(p)]
	return content, ok
}

// Files lists every stored file path, sorted
func (m *MemoryStore) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (m *MemoryStore) CreateDirectory(ctx context.Context, dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "mkdir"); err != nil {
		return err
	}
	m.mkdirAll(Clean(dir))
	return nil
}

func (m *MemoryStore) UploadFile(ctx context.Context, localPath, remotePath string) error {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	return m.UploadContent(ctx, content, remotePath)
}

func (m *MemoryStore) UploadContent(ctx context.Context, content []byte, remotePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "upload"); err != nil {
		return err
	}
	p := Clean(remotePath)
	if !m.dirs[path.Dir(p)] {
		return fmt.Errorf("put %s: parent %w", p, ErrNotFound)
	}
	m.files[p] = append([]byte(nil), content...)
	return nil
}

func (m *MemoryStore) DeleteFile(ctx context.Context, remotePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "delete"); err != nil {
		return err
	}
	delete(m.files, Clean(remotePath))
	return nil
}

func (m *MemoryStore) DeleteFolder(ctx context.Context, dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "delete"); err != nil {
		return err
	}
	root := Clean(dir)
	for p := range m.files {
		if within(p, root) {
			delete(m.files, p)
		}
	}
	for p := range m.dirs {
		if p != "/" && within(p, root) {
			delete(m.dirs, p)
		}
	}
	return nil
}

func (m *MemoryStore) Move(ctx context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "move"); err != nil {
		return err
	}
	from, to = Clean(from), Clean(to)

	if content, ok := m.files[from]; ok {
		m.mkdirAll(path.Dir(to))
		delete(m.files, from)
		m.files[to] = content
		return nil
	}
	if !m.dirs[from] {
		return fmt.Errorf("move %s: %w", from, ErrNotFound)
	}

	m.mkdirAll(path.Dir(to))
	dirs := make(map[string]bool)
	for p := range m.dirs {
		if within(p, from) {
			delete(m.dirs, p)
			dirs[to+strings.TrimPrefix(p, from)] = true
		}
	}
	files := make(map[string][]byte)
	for p, content := range m.files {
		if within(p, from) {
			delete(m.files, p)
			files[to+strings.TrimPrefix(p, from)] = content
		}
	}
	for p := range dirs {
		m.dirs[p] = true
	}
	for p, content := range files {
		m.files[p] = content
	}
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, remotePath string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "exists"); err != nil {
		return false, err
	}
	p := Clean(remotePath)
	_, isFile := m.files[p]
	return isFile || m.dirs[p], nil
}

func (m *MemoryStore) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.failures[op]
}

func (m *MemoryStore) mkdirAll(dir string) {
	for dir != "/" && !m.dirs[dir] {
		m.dirs[dir] = true
		dir = path.Dir(dir)
	}
}

func within(p, root string) bool {
	return p == root || strings.HasPrefix(p, root+"/")
}
