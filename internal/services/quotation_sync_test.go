package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/localnerve/benchtop/internal/database"
	"github.com/localnerve/benchtop/internal/docsync"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/localnerve/benchtop/internal/nextcloud"
)

func TestSyncMissingQuotations(t *testing.T) {
	db := database.OpenTestDB(t)
	remote := nextcloud.NewMemoryStore()
	storage := docsync.NewLocalStorage(t.TempDir())
	sync := docsync.New(db, remote, docsync.NewLayout("/ERP"), storage, testLogger())
	service := NewQuotationSyncService(db, sync, testLogger())

	customer := models.Customer{Code: "C001", Name: "Acme"}
	mustCreate(t, db, &customer)

	if err := storage.Save("quotations/Q-1.pdf", strings.NewReader("%PDF")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	withFile := models.Quotation{CustomerID: customer.ID, Number: "Q-1", RemoteSync: models.RemoteSync{FilePath: models.StringPtr("quotations/Q-1.pdf")}}
	mustCreate(t, db, &withFile)
	noFile := models.Quotation{CustomerID: customer.ID, Number: "Q-2"}
	mustCreate(t, db, &noFile)
	missing := models.Quotation{CustomerID: customer.ID, Number: "Q-3", RemoteSync: models.RemoteSync{FilePath: models.StringPtr("quotations/gone.pdf")}}
	mustCreate(t, db, &missing)

	summary, err := service.SyncMissing(context.Background(), nil)
	if err != nil {
		t.Fatalf("SyncMissing failed: %v", err)
	}
	if summary.Synced != 1 || summary.Skipped != 2 || summary.Failed != 0 {
		t.Errorf("Unexpected summary %+v", summary)
	}

	want := "/ERP/Clienti/C001_Acme/01_Preventivi/Bozze/preventivo-Q-1.pdf"
	if _, ok := remote.File(want); !ok {
		t.Errorf("Expected %s uploaded, have %v", want, remote.Files())
	}
	if summary.Details[0].Path != want {
		t.Errorf("Expected detail path %s, got %s", want, summary.Details[0].Path)
	}

	summary, err = service.SyncMissing(context.Background(), nil)
	if err != nil {
		t.Fatalf("Second SyncMissing failed: %v", err)
	}
	if summary.Synced != 0 || len(summary.Details) != 2 {
		t.Errorf("Expected only unsynced quotations scanned, got %+v", summary)
	}
}

func TestSyncMissingSingleQuotation(t *testing.T) {
	db := database.OpenTestDB(t)
	remote := nextcloud.NewMemoryStore()
	storage := docsync.NewLocalStorage(t.TempDir())
	sync := docsync.New(db, remote, docsync.NewLayout("/ERP"), storage, testLogger())
	service := NewQuotationSyncService(db, sync, testLogger())

	customer := models.Customer{Code: "C001", Name: "Acme"}
	mustCreate(t, db, &customer)
	storage.Save("q.pdf", strings.NewReader("%PDF"))
	q := models.Quotation{CustomerID: customer.ID, Number: "Q-9", RemoteSync: models.RemoteSync{FilePath: models.StringPtr("q.pdf")}}
	mustCreate(t, db, &q)

	remote.FailOn("upload", errors.New("507 insufficient storage"))
	summary, err := service.SyncMissing(context.Background(), &q.ID)
	if err != nil {
		t.Fatalf("SyncMissing failed: %v", err)
	}
	if summary.Failed != 1 || !strings.Contains(summary.Details[0].Reason, "insufficient storage") {
		t.Errorf("Expected failure with reason, got %+v", summary)
	}
	if !storage.Exists("q.pdf") {
		t.Error("Expected local file kept after failed upload")
	}

	missingID := uint(9999)
	if _, err := service.SyncMissing(context.Background(), &missingID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
