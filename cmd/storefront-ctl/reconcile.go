package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var reconcileResume string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "List or finish refunds whose payment and order disagree",
	Long: `Without flags, lists refunded payments whose order was never canceled and
refund claims that went stale.

With --resume, finishes the refund of one payment: a refunded payment gets its
order canceled and restocked; a stale claim on a completed payment is released
so the refund can be requested again. Confirm with the gateway that no money
was returned before releasing a claim.

Examples:
  storefront-ctl reconcile
  storefront-ctl reconcile --resume 7b0c1e9e-...`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileResume, "resume", "", "payment id to reconcile")
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	app, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()
	out := cmd.OutOrStdout()

	if reconcileResume != "" {
		res, err := app.Reconciler.Resume(cmd.Context(), reconcileResume)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", reconcileResume, err)
		}
		fmt.Fprintf(out, "%s\norder %s (%s): %s, payment %s\n",
			res.Message, res.OrderNumber, res.OrderID, res.OrderStatus, res.PaymentStatus)
		return nil
	}

	items, err := app.Reconciler.Pending(cmd.Context())
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "nothing to reconcile")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PAYMENT\tORDER\tPAYMENT STATUS\tORDER STATUS\tPENDING\tCLAIMED AT")
	for _, it := range items {
		claimed := "-"
		if it.RefundClaimedAt != nil {
			claimed = it.RefundClaimedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			it.PaymentID, it.OrderID, it.PaymentStatus, it.OrderStatus, it.ReconciliationPending, claimed)
	}
	return w.Flush()
}
