package app_test

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/localnerve/benchtop/internal/app"
	"github.com/localnerve/benchtop/internal/config"
	"github.com/localnerve/benchtop/internal/locking"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/localnerve/benchtop/internal/services"
	"github.com/localnerve/benchtop/internal/testenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TestAllocationWithMariaDBAndRedis runs concurrent BOM allocations against
// real containers
func TestAllocationWithMariaDBAndRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if os.Getenv("BENCHTOP_INTEGRATION") == "" {
		t.Skip("Set BENCHTOP_INTEGRATION=1 to run container tests")
	}

	tc, err := testenv.CreateAllTestContainers(t)
	if err != nil {
		t.Fatalf("Failed to start containers: %v", err)
	}
	t.Cleanup(func() { tc.Terminate(t) })

	for k, v := range tc.Env() {
		t.Setenv(k, v)
	}
	t.Setenv("LOCAL_STORAGE_PATH", t.TempDir())
	t.Setenv("NEXTCLOUD_URL", "")
	t.Setenv("AUTHZ_URL", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("app.New failed: %v", err)
	}
	defer a.Close()

	if _, ok := a.Locker.(*locking.RedisLocker); !ok {
		t.Fatalf("Expected redis locks, got %T", a.Locker)
	}

	customer := &models.Customer{Code: "C100", Name: "Integration"}
	if err := a.Store.Create(ctx, customer); err != nil {
		t.Fatalf("Create customer failed: %v", err)
	}
	project := &models.Project{CustomerID: customer.ID, Code: "P100", Name: "Rig", BoardsCount: 5}
	if err := a.Store.Create(ctx, project); err != nil {
		t.Fatalf("Create project failed: %v", err)
	}
	bom := &models.ProjectBom{ProjectID: project.ID, Name: "Main"}
	if err := a.Store.Create(ctx, bom); err != nil {
		t.Fatalf("Create bom failed: %v", err)
	}
	part := &models.Component{SKU: "C-100N", UnitPrice: decimal.RequireFromString("0.01"), StockQuantity: 60}
	if err := a.DB.Create(part).Error; err != nil {
		t.Fatalf("Create component failed: %v", err)
	}
	// Bypass the created handler so the batch does the allocating
	for _, ref := range []string{"C1", "C2", "C3"} {
		item := &models.ProjectBomItem{BomID: bom.ID, Reference: ref, ComponentID: &part.ID, Quantity: 4}
		if err := a.DB.Create(item).Error; err != nil {
			t.Fatalf("Create item failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allocated, locked := 0, 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := a.Allocation.AllocateBom(ctx, bom.ID, project.BoardsCount)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, locking.ErrNotObtained):
				locked++
			case err != nil:
				t.Errorf("AllocateBom failed: %v", err)
			default:
				allocated += summary.Allocated
			}
		}()
	}
	wg.Wait()

	// Three lines of 20 fit exactly once in a stock of 60
	if allocated != 3 {
		t.Errorf("Expected 3 lines allocated across all runs, got %d (%d locked out)", allocated, locked)
	}
	var fresh models.Component
	if err := a.DB.First(&fresh, part.ID).Error; err != nil {
		t.Fatalf("Failed to load component: %v", err)
	}
	if fresh.StockQuantity != 0 {
		t.Errorf("Expected stock 0, got %d", fresh.StockQuantity)
	}

	var stored models.ProjectBom
	a.DB.First(&stored, bom.ID)
	if stored.Status != models.BomStatusAllocated {
		t.Errorf("Expected allocated status, got %s", stored.Status)
	}

	summary, err := a.Allocation.DeallocateBom(ctx, bom.ID)
	if err != nil {
		t.Fatalf("DeallocateBom failed: %v", err)
	}
	if summary.Released != 3 || summary.Units != 60 {
		t.Errorf("Expected 3 lines and 60 units released, got %+v", summary)
	}
	health := services.HealthCheck(ctx, cfg, a.DB, a.HealthDeps(), logger)
	if health.Status != services.HealthHealthy || health.Redis != "ok" {
		t.Errorf("Unexpected health %+v", health)
	}
}
