package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/localnerve/benchtop/data"
	"github.com/localnerve/benchtop/internal/app"
	"github.com/localnerve/benchtop/internal/config"
	"github.com/localnerve/benchtop/internal/locking"
	"github.com/localnerve/benchtop/internal/models"
	"github.com/localnerve/benchtop/internal/nextcloud"
	"github.com/localnerve/benchtop/internal/services"
	"github.com/urfave/cli/v2"
)

// Upper bound of a single command run, the lock expires after it
const commandLockTTL = 30 * time.Minute

func newCLI() *cli.App {
	return &cli.App{
		Name:  "benchtop",
		Usage: "BOM allocation, costing and document sync maintenance",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env", Aliases: []string{"f"}, Usage: "path to the .env file"},
		},
		Commands: []*cli.Command{
			{
				Name:  "bom:update-costs",
				Usage: "refresh actual costs and totals of BOMs",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "project-id", Usage: "only BOMs of this project"},
					&cli.UintFlag{Name: "bom-id", Usage: "only this BOM"},
					&cli.BoolFlag{Name: "force", Usage: "recompute lines that look current"},
					&cli.StringFlag{Name: "xlsx", Usage: "also write the report to this workbook"},
				},
				Action: withApp(updateCosts),
			},
			{
				Name:  "quotations:sync-nextcloud",
				Usage: "upload quotations missing on Nextcloud",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "quotation-id", Usage: "only this quotation"},
				},
				Action: withApp(syncQuotations),
			},
			{
				Name:  "bom:allocate",
				Usage: "reserve stock for every line of a BOM",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "bom-id", Required: true},
					&cli.IntFlag{Name: "boards", Usage: "board count, defaults to the project's"},
				},
				Action: withApp(allocateBom),
			},
			{
				Name:  "bom:deallocate",
				Usage: "return the reserved stock of a BOM",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "bom-id", Required: true},
				},
				Action: withApp(deallocateBom),
			},
			{
				Name:  "bom:import",
				Usage: "add lines to a BOM from an .xlsx or .csv file",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "bom-id", Required: true},
					&cli.StringFlag{Name: "file", Required: true},
				},
				Action: withApp(importBom),
			},
			{
				Name:  "components:seed",
				Usage: "upsert the component catalog by SKU",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "catalog JSON, defaults to the embedded one"},
				},
				Action: withApp(seedComponents),
			},
			{
				Name:  "nextcloud:resync",
				Usage: "reconcile the remote copy of one entity",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "kind", Required: true},
					&cli.UintFlag{Name: "id", Required: true},
				},
				Action: withApp(resync),
			},
		},
	}
}

type commandFunc func(ctx context.Context, c *cli.Context, a *app.App) error

// withApp wires the services and runs fn holding the command's lock
func withApp(fn commandFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		if err := config.LoadEnvFile(c.String("env")); err != nil {
			return cli.Exit(err.Error(), 2)
		}
		cfg, err := config.Load()
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		logger := config.NewLogger(cfg)
		logger.SetOutput(c.App.ErrWriter)

		a, err := app.New(c.Context, cfg, logger)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		defer a.Close()

		key := "cmd:" + c.Command.Name
		err = locking.WithLock(c.Context, a.Locker, key, commandLockTTL, func(ctx context.Context) error {
			return fn(ctx, c, a)
		})
		if errors.Is(err, locking.ErrNotObtained) {
			return cli.Exit(fmt.Sprintf("%s is already running", c.Command.Name), 1)
		}
		return err
	}
}

func optionalUint(c *cli.Context, name string) *uint {
	if !c.IsSet(name) {
		return nil
	}
	v := c.Uint(name)
	return &v
}

func updateCosts(ctx context.Context, c *cli.Context, a *app.App) error {
	report, err := a.Costs.UpdateCosts(ctx, services.CostUpdateOptions{
		ProjectID: optionalUint(c, "project-id"),
		BomID:     optionalUint(c, "bom-id"),
		Force:     c.Bool("force"),
	})
	if err != nil {
		return err
	}
	printCostReport(c.App.Writer, report)

	if path := c.String("xlsx"); path != "" {
		f, err := services.ExportCostReport(report)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := f.SaveAs(path); err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
		fmt.Fprintf(c.App.Writer, "Report written to %s\n", path)
	}

	if report.HasFailures() {
		return cli.Exit("cost update finished with failures", 1)
	}
	return nil
}

func syncQuotations(ctx context.Context, c *cli.Context, a *app.App) error {
	if !a.Sync.Enabled() {
		return cli.Exit(nextcloud.ErrDisabled.Error(), 2)
	}
	summary, err := a.Quotations.SyncMissing(ctx, optionalUint(c, "quotation-id"))
	if err != nil {
		return err
	}
	printSyncSummary(c.App.Writer, summary)
	if summary.Failed > 0 {
		return cli.Exit(fmt.Sprintf("%d quotations failed to sync", summary.Failed), 1)
	}
	return nil
}

func allocateBom(ctx context.Context, c *cli.Context, a *app.App) error {
	bomID := c.Uint("bom-id")
	boards := c.Int("boards")
	if !c.IsSet("boards") {
		var err error
		if boards, err = a.Allocation.BoardsCountFor(ctx, bomID); err != nil {
			return err
		}
	}

	summary, err := a.Allocation.AllocateBom(ctx, bomID, boards)
	if err != nil {
		return err
	}
	printAllocationSummary(c.App.Writer, summary)
	if summary.Errors > 0 {
		return cli.Exit(fmt.Sprintf("%d lines failed", summary.Errors), 1)
	}
	return nil
}

func deallocateBom(ctx context.Context, c *cli.Context, a *app.App) error {
	bomID := c.Uint("bom-id")
	summary, err := a.Allocation.DeallocateBom(ctx, bomID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "BOM %d: released %d lines, %d units returned to stock\n", bomID, summary.Released, summary.Units)
	for _, f := range summary.Failures {
		fmt.Fprintf(c.App.Writer, "  %s: %s\n", f.Reference, f.Error)
	}
	if summary.Errors > 0 {
		return cli.Exit(fmt.Sprintf("%d lines failed to deallocate", summary.Errors), 1)
	}
	return nil
}

func importBom(ctx context.Context, c *cli.Context, a *app.App) error {
	path := c.String("file")
	f, err := os.Open(path)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer f.Close()

	result, err := a.Imports.Import(ctx, c.Uint("bom-id"), filepath.Base(path), f)
	if err != nil {
		return err
	}
	printImportResult(c.App.Writer, result)
	return nil
}

func seedComponents(ctx context.Context, c *cli.Context, a *app.App) error {
	catalog := data.SeedComponents
	if path := c.String("file"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		catalog = raw
	}

	result, err := services.SeedComponents(ctx, a.DB, catalog)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Components: %d created, %d updated\n", result.Created, result.Updated)
	printRowErrors(c.App.Writer, result.Errors)
	if len(result.Errors) > 0 {
		return cli.Exit(fmt.Sprintf("%d catalog entries rejected", len(result.Errors)), 1)
	}
	return nil
}

func resync(ctx context.Context, c *cli.Context, a *app.App) error {
	kind, ok := models.ParseKind(c.String("kind"))
	if !ok {
		return cli.Exit(fmt.Sprintf("unknown kind %q", c.String("kind")), 2)
	}
	if !a.Sync.Enabled() {
		return cli.Exit(nextcloud.ErrDisabled.Error(), 2)
	}
	id := c.Uint("id")
	if err := a.Sync.Resync(ctx, kind, id); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s %d resynced\n", kind, id)
	return nil
}
