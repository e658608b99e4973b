package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/arap/internal/installments"
	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/obligations"
)

func newInstallmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "installments",
		Short: "Installment planning helpers",
	}
	preview := &cobra.Command{
		Use:     "preview",
		Short:   "Print how a payable total would be split",
		Example: `  arapctl installments preview --total 1000.00 --count 3 --first 2024-03-10 --every 30`,
		RunE:    runInstallmentsPreview,
	}
	preview.Flags().String("total", "", "Total amount, e.g. 1250.00")
	preview.Flags().Int("count", 1, "Number of installments")
	preview.Flags().String("first", "", "First due date (YYYY-MM-DD)")
	preview.Flags().Int("every", 30, "Days between due dates")
	_ = preview.MarkFlagRequired("total")
	_ = preview.MarkFlagRequired("first")
	cmd.AddCommand(preview)
	return cmd
}

func runInstallmentsPreview(cmd *cobra.Command, args []string) error {
	totalStr, _ := cmd.Flags().GetString("total")
	count, _ := cmd.Flags().GetInt("count")
	firstStr, _ := cmd.Flags().GetString("first")
	every, _ := cmd.Flags().GetInt("every")

	total, err := money.Parse(totalStr)
	if err != nil {
		return fmt.Errorf("invalid total: %w", err)
	}
	first, err := time.Parse(time.DateOnly, firstStr)
	if err != nil {
		return fmt.Errorf("invalid first due date, use YYYY-MM-DD: %w", err)
	}
	if count > obligations.MaxInstallments {
		return fmt.Errorf("count must not exceed %d", obligations.MaxInstallments)
	}
	plan := installments.Split(total, count, first, every)
	if len(plan) == 0 {
		return fmt.Errorf("nothing to split: total must be positive and count at least 1")
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tDUE\tAMOUNT")
	for _, inst := range plan {
		fmt.Fprintf(w, "%d/%d\t%s\t%s\n", inst.Number, inst.Total, inst.DueDate.Format(time.DateOnly), inst.Amount)
	}
	fmt.Fprintf(w, "\tTOTAL\t%s\n", installments.Sum(plan))
	return w.Flush()
}
