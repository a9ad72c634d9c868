package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/benchtop/internal/app"
)

// Routes mounts every API route on api. Mutating routes run behind guard.
func Routes(api fiber.Router, a *app.App, guard fiber.Handler) {
	health := &HealthHandler{Config: a.Config, DB: a.DB, Deps: a.HealthDeps(), Logger: a.Logger}
	boms := &BomHandler{DB: a.DB, Allocation: a.Allocation, Costs: a.Costs, Imports: a.Imports}
	allocations := &AllocationHandler{Allocation: a.Allocation}
	quotations := &QuotationHandler{Store: a.Store, Quotations: a.Quotations}
	syncs := &SyncHandler{Sync: a.Sync}
	journal := &EventHandler{Journal: a.Journal}

	api.Get("/health", health.Check)

	// BOM routes (public GET, guarded mutations)
	api.Get("/boms/:id", boms.GetBom)
	api.Post("/boms/:id/allocate", guard, boms.Allocate)
	api.Post("/boms/:id/deallocate", guard, boms.Deallocate)
	api.Post("/boms/:id/costs", guard, boms.UpdateCosts)
	api.Post("/boms/:id/import", guard, boms.Import)

	api.Post("/bom-items/:id/allocate", guard, allocations.AllocateItem)
	api.Delete("/bom-items/:id/allocation", guard, allocations.DeallocateItem)
	api.Post("/allocations/:id/usage", guard, allocations.RecordUsage)

	// Document routes
	api.Patch("/quotations/:id/status", guard, quotations.UpdateStatus)
	api.Post("/quotations/sync", guard, quotations.Sync)
	api.Post("/sync/:kind/:id", guard, syncs.Resync)

	api.Get("/events/:kind/:id", guard, journal.List)
}
