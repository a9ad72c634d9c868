package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/localnerve/benchtop/internal/services"
)

func printCostReport(w io.Writer, report *services.CostReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BOM\tNAME\tPROJECT\tUPDATED\tSKIPPED\tFAILED\tESTIMATED\tACTUAL")
	for _, row := range report.Rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			row.BomID, row.BomName, row.Project, row.Updated, row.Skipped, row.Failed,
			row.Estimated.StringFixed(2), row.Actual.StringFixed(2))
	}
	tw.Flush()

	updated, skipped, failed := report.Totals()
	fmt.Fprintf(w, "Total: %d boms, %d updated, %d skipped, %d failed\n", len(report.Rows), updated, skipped, failed)
	for _, row := range report.Rows {
		for _, msg := range row.Errors {
			fmt.Fprintf(w, "  bom %d: %s\n", row.BomID, msg)
		}
		if len(row.Unbound) > 0 {
			fmt.Fprintf(w, "  bom %d: no component for %s\n", row.BomID, strings.Join(row.Unbound, ", "))
		}
	}
}

func printSyncSummary(w io.Writer, summary *services.SyncSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tOUTCOME\tDETAIL")
	for _, d := range summary.Details {
		detail := d.Path
		if d.Reason != "" {
			detail = d.Reason
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.QuotationID, d.Number, d.Outcome, detail)
	}
	tw.Flush()
	fmt.Fprintf(w, "Synced: %d, skipped: %d, failed: %d\n", summary.Synced, summary.Skipped, summary.Failed)
}

func printAllocationSummary(w io.Writer, summary *services.AllocationSummary) {
	fmt.Fprintf(w, "BOM %d for %d boards: %s\n", summary.BomID, summary.BoardsCount, summary.Status)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "allocated\t%d\n", summary.Allocated)
	fmt.Fprintf(tw, "already allocated\t%d\n", summary.AlreadyAllocated)
	fmt.Fprintf(tw, "insufficient stock\t%d\n", summary.InsufficientStock)
	fmt.Fprintf(tw, "no component\t%d\n", summary.NoComponent)
	fmt.Fprintf(tw, "errors\t%d\n", summary.Errors)
	tw.Flush()

	if len(summary.Insufficient) > 0 {
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "REFERENCE\tCOMPONENT\tREQUIRED\tAVAILABLE")
		for _, line := range summary.Insufficient {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", line.Reference, line.Component, line.Required, line.Available)
		}
		tw.Flush()
	}
	for _, f := range summary.Failures {
		fmt.Fprintf(w, "  %s: %s\n", f.Reference, f.Error)
	}
}

func printImportResult(w io.Writer, result *services.ImportResult) {
	fmt.Fprintf(w, "BOM %d: %d rows, %d created, %d unmatched\n", result.BomID, result.Rows, result.Created, result.Unmatched)
	fmt.Fprintf(w, "File stored at %s\n", result.FilePath)
	printRowErrors(w, result.Errors)
}

func printRowErrors(w io.Writer, rows []services.RowError) {
	for _, row := range rows {
		fmt.Fprintf(w, "  row %d: %s\n", row.Row, row.Reason)
	}
}
