package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"crane-availability-backend/internal/accounting"
	"crane-availability-backend/internal/db"
	"crane-availability-backend/internal/model"
	"crane-availability-backend/internal/shiftcalc"
	"crane-availability-backend/internal/store"
)

func reportCmd() *cobra.Command {
	var (
		start   string
		end     string
		craneID int64
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print availability, utilisation and usage per crane for a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := shiftcalc.ParseDate(start)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			to, err := shiftcalc.ParseDate(end)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}

			gormDB, err := db.Init(&app.cfg.Database, app.logger.Named("db"))
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}

			var filter *int64
			if craneID > 0 {
				filter = &craneID
			}

			engine := accounting.NewEngine(store.NewGormStore(gormDB), app.logger.Named("accounting"))
			report, err := engine.ComputeMetrics(cmd.Context(), from, to, filter)
			if err != nil {
				return err
			}

			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "First day of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Last day of the range (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&craneID, "crane", 0, "Only report this crane id")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

// printReport writes one row per crane followed by the fleet averages.
func printReport(out io.Writer, report *accounting.Report) {
	fmt.Fprintf(out, "\nCrane metrics %s .. %s\n\n", report.StartDate, report.EndDate)

	if len(report.PerCrane) == 0 {
		fmt.Fprintln(out, "No cranes found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCRANE\tSTATUS\tMAINT H\tBOOKED H\tOPER H\tDELAY H\tSTANDBY H\tAVAIL %\tUTIL %\tUSAGE %")
	for _, m := range report.PerCrane {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			m.CraneID,
			m.CraneName,
			statusLabel(m.Status),
			m.MaintenanceHours,
			m.BookedHours,
			m.OperatingHours,
			m.DelayHours,
			m.StandbyHours,
			m.AvailabilityPct,
			m.UtilisationPct,
			m.UsagePct,
		)
	}
	_ = w.Flush()

	o := report.Overall
	fmt.Fprintf(out, "\n%d cranes (%d available, %d in maintenance)\n", o.TotalCranes, o.AvailableCranes, o.MaintenanceCranes)
	fmt.Fprintf(out, "Average availability %.2f%%, utilisation %.2f%%, usage %.2f%%\n", o.AvailabilityPct, o.UtilisationPct, o.UsagePct)
}

func statusLabel(status model.CraneStatus) string {
	switch status {
	case model.CraneStatusMaintenance:
		return color.New(color.FgYellow).Sprint(status)
	case model.CraneStatusAvailable:
		return color.New(color.FgHiGreen).Sprint(status)
	default:
		return color.New(color.FgWhite).Sprint(status)
	}
}
