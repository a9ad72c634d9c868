package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/benchtop/internal/app"
	"github.com/localnerve/benchtop/internal/config"
	"github.com/localnerve/benchtop/internal/database"
	"github.com/localnerve/benchtop/internal/handlers"
	"github.com/localnerve/benchtop/internal/locking"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/localnerve/benchtop/internal/nextcloud"
	"github.com/localnerve/benchtop/internal/services"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type testServer struct {
	server   *fiber.App
	app      *app.App
	remote   *nextcloud.MemoryStore
	customer *models.Customer
	project  *models.Project
	bom      *models.ProjectBom
	part     *models.Component
}

// setupTestServer wires the API on an in-memory database with one customer,
// project, BOM and component
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	remote := nextcloud.NewMemoryStore()
	cfg := &config.Config{
		DBType:             "sqlite",
		DBDatabase:         "test",
		NextcloudBasePath:  "/ERP",
		LocalStoragePath:   t.TempDir(),
		DefaultBoardsCount: 1,
	}
	a := app.Wire(cfg, logger, app.Deps{
		DB:     database.OpenTestDB(t),
		Locker: locking.NewLocalLocker(),
		Remote: remote,
	})

	server := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	api := server.Group("/api")
	handlers.Routes(api, a, func(c *fiber.Ctx) error { return c.Next() })
	server.Use(handlers.NotFound)

	ts := &testServer{server: server, app: a, remote: remote}
	ts.customer = &models.Customer{Code: "C001", Name: "Acme"}
	ts.create(t, ts.customer)
	ts.project = &models.Project{CustomerID: ts.customer.ID, Code: "P001", Name: "Controller", BoardsCount: 2}
	ts.create(t, ts.project)
	ts.bom = &models.ProjectBom{ProjectID: ts.project.ID, Name: "Main"}
	ts.create(t, ts.bom)
	ts.part = &models.Component{SKU: "R-10K", UnitPrice: decimal.RequireFromString("0.02"), StockQuantity: 100}
	if err := a.DB.Create(ts.part).Error; err != nil {
		t.Fatalf("Failed to create component: %v", err)
	}
	return ts
}

func (ts *testServer) create(t *testing.T, entity models.Entity) {
	t.Helper()
	if err := ts.app.Store.Create(context.Background(), entity); err != nil {
		t.Fatalf("Create %s failed: %v", entity.EntityKind(), err)
	}
}

// rawItem inserts a bound line without publishing events, so it stays unallocated
func (ts *testServer) rawItem(t *testing.T, reference string, qty int) *models.ProjectBomItem {
	t.Helper()
	item := &models.ProjectBomItem{BomID: ts.bom.ID, Reference: reference, ComponentID: &ts.part.ID, Quantity: qty}
	if err := ts.app.DB.Create(item).Error; err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}
	return item
}

func (ts *testServer) stock(t *testing.T) int {
	t.Helper()
	var c models.Component
	if err := ts.app.DB.First(&c, ts.part.ID).Error; err != nil {
		t.Fatalf("Failed to load component: %v", err)
	}
	return c.StockQuantity
}

func (ts *testServer) do(t *testing.T, method, target string, body any) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return ts.send(t, req)
}

func (ts *testServer) send(t *testing.T, req *http.Request) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := ts.server.Test(req, -1)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	result := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &result); err != nil {
			t.Fatalf("Failed to decode response %s: %v", raw, err)
		}
	}
	result["_raw"] = string(raw)
	return resp, result
}

func TestGetBom(t *testing.T) {
	ts := setupTestServer(t)
	ts.create(t, &models.ProjectBomItem{BomID: ts.bom.ID, Reference: "J1", Quantity: 1})
	ts.create(t, &models.ProjectBomItem{BomID: ts.bom.ID, Reference: "R1", ComponentID: &ts.part.ID, Quantity: 3})

	resp, result := ts.do(t, "GET", "/api/boms/1", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d: %v", resp.StatusCode, result["_raw"])
	}

	var view handlers.BomView
	if err := json.Unmarshal([]byte(result["_raw"].(string)), &view); err != nil {
		t.Fatalf("Failed to decode bom: %v", err)
	}
	if view.TotalItems != 2 || view.AllocatedItems != 1 {
		t.Errorf("Expected 1 of 2 items allocated, got %d of %d", view.AllocatedItems, view.TotalItems)
	}
	if view.Status != models.BomStatusPartiallyAllocated {
		t.Errorf("Expected partially_allocated, got %s", view.Status)
	}
	if view.Items[0].Reference != "J1" || view.Items[0].Allocated {
		t.Errorf("Expected unbound J1 first and unallocated, got %+v", view.Items[0])
	}
	if view.Items[1].ComponentSKU != "R-10K" || view.Items[1].AllocatedQuantity != 6 {
		t.Errorf("Expected R1 reserved for 2 boards, got %+v", view.Items[1])
	}
}

func TestGetBomErrors(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantType   string
	}{
		{"missing bom", "/api/boms/99", fiber.StatusNotFound, "not_found"},
		{"invalid id", "/api/boms/abc", fiber.StatusBadRequest, "params"},
		{"zero id", "/api/boms/0", fiber.StatusBadRequest, "params"},
		{"unknown route", "/api/nothing", fiber.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, result := ts.do(t, "GET", tt.target, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if result["type"] != tt.wantType {
				t.Errorf("Expected type %s, got %v", tt.wantType, result["type"])
			}
			if result["ok"] != false {
				t.Error("Expected ok false")
			}
		})
	}
}

func TestAllocateAndDeallocateBom(t *testing.T) {
	ts := setupTestServer(t)
	ts.rawItem(t, "R1", 10)
	ts.rawItem(t, "R2", 5)

	resp, result := ts.do(t, "POST", "/api/boms/1/allocate", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d: %v", resp.StatusCode, result["_raw"])
	}
	if result["allocated"] != float64(2) || result["boards_count"] != float64(2) {
		t.Errorf("Expected 2 allocated with the project's 2 boards, got %v", result["_raw"])
	}
	if result["status"] != models.BomStatusAllocated {
		t.Errorf("Expected allocated status, got %v", result["status"])
	}
	if got := ts.stock(t); got != 70 {
		t.Errorf("Expected stock 70, got %d", got)
	}

	resp, result = ts.do(t, "POST", "/api/boms/1/deallocate", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d: %v", resp.StatusCode, result["_raw"])
	}
	summary := result["result"].(map[string]interface{})
	if summary["released"] != float64(2) || summary["units"] != float64(30) {
		t.Errorf("Expected 2 lines and 30 units released, got %v", summary)
	}
	if got := ts.stock(t); got != 100 {
		t.Errorf("Expected stock restored to 100, got %d", got)
	}
}

func TestAllocateBomExplicitBoards(t *testing.T) {
	ts := setupTestServer(t)
	ts.rawItem(t, "R1", 30)

	resp, result := ts.do(t, "POST", "/api/boms/1/allocate", map[string]int{"boards_count": 4})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if result["insufficient_stock"] != float64(1) {
		t.Errorf("Expected 120 > 100 to be insufficient, got %v", result["_raw"])
	}
	if got := ts.stock(t); got != 100 {
		t.Errorf("Expected stock untouched, got %d", got)
	}

	resp, result = ts.do(t, "POST", "/api/boms/1/allocate", map[string]int{"boards_count": 0})
	if resp.StatusCode != fiber.StatusBadRequest || result["type"] != "validation" {
		t.Errorf("Expected 400 validation for zero boards, got %d %v", resp.StatusCode, result["type"])
	}

	req := httptest.NewRequest("POST", "/api/boms/1/allocate", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, result = ts.send(t, req)
	if resp.StatusCode != fiber.StatusBadRequest || result["type"] != "body" {
		t.Errorf("Expected 400 body error, got %d %v", resp.StatusCode, result["type"])
	}
}

func TestAllocateBomLocked(t *testing.T) {
	ts := setupTestServer(t)
	ts.rawItem(t, "R1", 1)

	lock, err := ts.app.Locker.Obtain(context.Background(), services.BomLockKey(ts.bom.ID), ts.app.Allocation.LockTTL)
	if err != nil {
		t.Fatalf("Obtain failed: %v", err)
	}
	defer lock.Release(context.Background())

	resp, result := ts.do(t, "POST", "/api/boms/1/allocate", nil)
	if resp.StatusCode != fiber.StatusConflict || result["type"] != "locked" {
		t.Errorf("Expected 409 locked, got %d %v", resp.StatusCode, result["type"])
	}
}

func TestItemAllocationRoutes(t *testing.T) {
	ts := setupTestServer(t)
	item := ts.rawItem(t, "R1", 4)

	resp, result := ts.do(t, "POST", "/api/bom-items/1/allocate", nil)
	if resp.StatusCode != fiber.StatusOK || result["reason"] != services.ReasonAllocated {
		t.Fatalf("Expected allocated, got %d %v", resp.StatusCode, result["_raw"])
	}
	if got := ts.stock(t); got != 92 {
		t.Errorf("Expected stock 92, got %d", got)
	}

	var allocation models.ProjectComponentAllocation
	if err := ts.app.DB.Where("bom_item_id = ?", item.ID).First(&allocation).Error; err != nil {
		t.Fatalf("Expected allocation row: %v", err)
	}

	resp, result = ts.do(t, "POST", "/api/allocations/1/usage", map[string]int{"quantity": 9})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Expected 400 when usage exceeds the reservation, got %d %v", resp.StatusCode, result["_raw"])
	}
	resp, _ = ts.do(t, "POST", "/api/allocations/1/usage", map[string]int{})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Expected 400 without quantity, got %d", resp.StatusCode)
	}

	resp, result = ts.do(t, "POST", "/api/allocations/1/usage", map[string]int{"quantity": 3})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d %v", resp.StatusCode, result["_raw"])
	}
	usage := result["result"].(map[string]interface{})
	if usage["quantity_used"] != float64(3) || usage["quantity_remaining"] != float64(5) {
		t.Errorf("Unexpected usage %v", usage)
	}

	resp, result = ts.do(t, "DELETE", "/api/bom-items/1/allocation", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d %v", resp.StatusCode, result["_raw"])
	}
	if got := ts.stock(t); got != 97 {
		t.Errorf("Expected the 5 unused returned to stock, got %d", got)
	}

	resp, _ = ts.do(t, "POST", "/api/bom-items/99/allocate", nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected 404 for a missing item, got %d", resp.StatusCode)
	}
}

func TestUpdateCostsRoute(t *testing.T) {
	ts := setupTestServer(t)
	ts.create(t, &models.ProjectBomItem{BomID: ts.bom.ID, Reference: "R1", ComponentID: &ts.part.ID, Quantity: 5})

	resp, result := ts.do(t, "POST", "/api/boms/1/costs", map[string]bool{"force": true})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d %v", resp.StatusCode, result["_raw"])
	}
	if result["updated"] != float64(1) {
		t.Errorf("Expected 1 updated line, got %v", result["_raw"])
	}
	actual, ok := result["total_actual_cost"].(string)
	if !ok || !decimal.RequireFromString(actual).Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("Expected actual total 0.1, got %v", result["total_actual_cost"])
	}

	resp, _ = ts.do(t, "POST", "/api/boms/42/costs", nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected 404 for a missing bom, got %d", resp.StatusCode)
	}
}

func TestImportRoute(t *testing.T) {
	ts := setupTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "main.csv")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	io.WriteString(fw, "Reference,Qty,SKU\nR1,2,R-10K\nJ1,1,\n")
	mw.Close()

	req := httptest.NewRequest("POST", "/api/boms/1/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, result := ts.send(t, req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d %v", resp.StatusCode, result["_raw"])
	}
	if result["created"] != float64(2) || result["unmatched"] != float64(1) {
		t.Errorf("Expected 2 created and 1 unmatched, got %v", result["_raw"])
	}
	if got := ts.stock(t); got != 96 {
		t.Errorf("Expected the matched line allocated on import, got stock %d", got)
	}

	resp, result = ts.do(t, "POST", "/api/boms/1/import", nil)
	if resp.StatusCode != fiber.StatusBadRequest || result["type"] != "importBom" {
		t.Errorf("Expected 400 without a file, got %d %v", resp.StatusCode, result["type"])
	}
}

func TestQuotationRoutes(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	if err := ts.app.Sync.Storage().Save("quotations/q1.pdf", strings.NewReader("%PDF")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	quote := &models.Quotation{CustomerID: ts.customer.ID, Number: "Q-1", RemoteSync: models.RemoteSync{FilePath: models.StringPtr("quotations/q1.pdf")}}
	if err := ts.app.Store.Create(ctx, quote); err != nil {
		t.Fatalf("Create quotation failed: %v", err)
	}

	base := "/ERP/Clienti/C001_Acme/01_Preventivi"
	if _, ok := ts.remote.File(base + "/Bozze/preventivo-Q-1.pdf"); !ok {
		t.Fatalf("Expected draft uploaded, got %v", ts.remote.Files())
	}

	resp, result := ts.do(t, "PATCH", "/api/quotations/1/status", map[string]string{"status": "sent"})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d %v", resp.StatusCode, result["_raw"])
	}
	sent := base + "/Inviati/preventivo-Q-1.pdf"
	view := result["result"].(map[string]interface{})
	if view["status"] != "sent" || view["nextcloud_path"] != sent {
		t.Errorf("Unexpected quotation %v", view)
	}
	if _, ok := ts.remote.File(sent); !ok {
		t.Errorf("Expected file moved to %s, got %v", sent, ts.remote.Files())
	}

	resp, result = ts.do(t, "PATCH", "/api/quotations/1/status", map[string]string{"status": "lost"})
	if resp.StatusCode != fiber.StatusBadRequest || result["type"] != "validation" {
		t.Errorf("Expected 400 validation, got %d %v", resp.StatusCode, result["type"])
	}
	resp, _ = ts.do(t, "PATCH", "/api/quotations/7/status", map[string]string{"status": "sent"})
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestQuotationSyncRoute(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	// Created while the remote store refused uploads
	ts.remote.FailOn("upload", io.ErrUnexpectedEOF)
	if err := ts.app.Sync.Storage().Save("q.pdf", strings.NewReader("%PDF")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	quote := &models.Quotation{CustomerID: ts.customer.ID, Number: "Q-5", RemoteSync: models.RemoteSync{FilePath: models.StringPtr("q.pdf")}}
	if err := ts.app.Store.Create(ctx, quote); err != nil {
		t.Fatalf("Create quotation failed: %v", err)
	}
	ts.remote.FailOn("upload", nil)

	// A single id given as a string
	resp, result := ts.do(t, "POST", "/api/quotations/sync", map[string]any{"quotation_id": "1"})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d %v", resp.StatusCode, result["_raw"])
	}
	if result["synced"] != float64(1) {
		t.Errorf("Expected 1 synced, got %v", result["_raw"])
	}

	resp, result = ts.do(t, "POST", "/api/quotations/sync", nil)
	if resp.StatusCode != fiber.StatusOK || result["skipped"] != float64(0) || result["synced"] != float64(0) {
		t.Errorf("Expected nothing left to sync, got %d %v", resp.StatusCode, result["_raw"])
	}

	resp, _ = ts.do(t, "POST", "/api/quotations/sync", map[string]any{"quotation_id": []int{1, 99}})
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected 404 for an unknown id, got %d", resp.StatusCode)
	}
	resp, _ = ts.do(t, "POST", "/api/quotations/sync", map[string]any{"quotation_id": -1})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for a negative id, got %d", resp.StatusCode)
	}
}

func TestResyncRoute(t *testing.T) {
	ts := setupTestServer(t)

	// Inserted without events, so never mirrored
	initech := &models.Customer{Code: "C009", Name: "Initech"}
	if err := ts.app.DB.Create(initech).Error; err != nil {
		t.Fatalf("Failed to create customer: %v", err)
	}
	folder := "/ERP/Clienti/C009_Initech"
	if ts.remote.IsDir(folder) {
		t.Fatalf("Expected %s absent before resync", folder)
	}

	resp, result := ts.do(t, "POST", "/api/sync/customer/2", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d %v", resp.StatusCode, result["_raw"])
	}
	if !ts.remote.IsDir(folder) {
		t.Errorf("Expected %s created, got %v", folder, ts.remote.Files())
	}

	resp, result = ts.do(t, "POST", "/api/sync/spaceship/1", nil)
	if resp.StatusCode != fiber.StatusBadRequest || result["type"] != "params" {
		t.Errorf("Expected 400 params, got %d %v", resp.StatusCode, result["type"])
	}
	resp, _ = ts.do(t, "POST", "/api/sync/component/1", nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for a kind without documents, got %d", resp.StatusCode)
	}
	resp, _ = ts.do(t, "POST", "/api/sync/customer/50", nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestEventsRoute(t *testing.T) {
	ts := setupTestServer(t)
	if err := ts.app.Store.Update(context.Background(), ts.bom, map[string]any{"name": "Main rev B"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	resp, result := ts.do(t, "GET", "/api/events/project_bom/1", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d %v", resp.StatusCode, result["_raw"])
	}
	var rows []handlers.EventView
	if err := json.Unmarshal([]byte(result["_raw"].(string)), &rows); err != nil {
		t.Fatalf("Failed to decode events: %v", err)
	}
	if len(rows) != 2 || rows[0].Type != "created" || rows[1].Type != "updated" {
		t.Fatalf("Expected created then updated, got %+v", rows)
	}
	if !strings.Contains(string(rows[1].ChangedFields), "name") {
		t.Errorf("Expected name in changed fields, got %s", rows[1].ChangedFields)
	}
}

func TestHealthRoute(t *testing.T) {
	ts := setupTestServer(t)

	resp, result := ts.do(t, "GET", "/api/health", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d %v", resp.StatusCode, result["_raw"])
	}
	if result["status"] != services.HealthHealthy || result["nextcloud"] != "disabled" {
		t.Errorf("Unexpected health %v", result["_raw"])
	}
}
