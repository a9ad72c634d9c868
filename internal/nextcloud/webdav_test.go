package nextcloud

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/net/webdav"
)

const testDAVPrefix = "/remote.php/dav/files/erp"

func newTestWebDAV(t *testing.T) *WebDAVStore {
	t.Helper()

	handler := &webdav.Handler{
		Prefix:     testDAVPrefix,
		FileSystem: webdav.NewMemFS(),
		LockSystem: webdav.NewMemLS(),
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewWebDAVStore(server.URL, "erp", "secret", 5*time.Second)
}

func TestDAVRoot(t *testing.T) {
	got := DAVRoot("https://cloud.example.com", "erp user")
	if got != "https://cloud.example.com/remote.php/dav/files/erp%20user" {
		t.Errorf("Unexpected DAV root %s", got)
	}
}

func TestWebDAVStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestWebDAV(t)

	if err := store.CreateDirectory(ctx, "/ERP/Clienti/C001_Acme/01_Preventivi/Bozze"); err != nil {
		t.Fatalf("CreateDirectory failed: %v", err)
	}

	local := filepath.Join(t.TempDir(), "q.pdf")
	if err := os.WriteFile(local, []byte("%PDF"), 0o600); err != nil {
		t.Fatalf("Failed to write local file: %v", err)
	}
	draft := "/ERP/Clienti/C001_Acme/01_Preventivi/Bozze/preventivo-Q1.pdf"
	if err := store.UploadFile(ctx, local, draft); err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}

	ok, err := store.Exists(ctx, draft)
	if err != nil || !ok {
		t.Fatalf("Expected uploaded file to exist, got %v %v", ok, err)
	}

	sent := "/ERP/Clienti/C001_Acme/01_Preventivi/Inviati/preventivo-Q1.pdf"
	if err := store.Move(ctx, draft, sent); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if ok, _ := store.Exists(ctx, draft); ok {
		t.Error("Expected source to be gone after move")
	}
	if ok, _ := store.Exists(ctx, sent); !ok {
		t.Error("Expected destination to exist after move")
	}

	if err := store.UploadContent(ctx, []byte(`{"trace":"x"}`), "/ERP/Clienti/C001_Acme/meta.json"); err != nil {
		t.Fatalf("UploadContent failed: %v", err)
	}

	if err := store.DeleteFolder(ctx, "/ERP/Clienti/C001_Acme"); err != nil {
		t.Fatalf("DeleteFolder failed: %v", err)
	}
	if ok, _ := store.Exists(ctx, sent); ok {
		t.Error("Expected folder contents removed")
	}

	if ok, err := store.Exists(ctx, "/ERP/nothing"); err != nil || ok {
		t.Errorf("Expected missing path to report false without error, got %v %v", ok, err)
	}
}
