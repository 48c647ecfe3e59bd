package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Apply outstanding deployment outcomes",
	Long: `Collects the receipts the host has produced since the last run and
resolves the matching pending records: successes become active, explicit
failures are recorded and their deposits refunded. Running reconcile twice
is safe; outcomes already applied are skipped.`,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	sum, err := ws.svc.Reconcile(ctx)
	if err != nil {
		ws.close(ctx, false)
		return err
	}

	if err := ws.close(ctx, true); err != nil {
		return err
	}

	fmt.Printf("Reconciled: %d activated, %d failed, %d skipped\n", sum.Activated, sum.Failed, sum.Skipped)
	return nil
}
