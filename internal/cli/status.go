package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/subforge-io/subforge/internal/ledger"
)

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show the state of a deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.close(ctx, false)

	rec, err := ws.svc.ResourceStatus(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Resource:  %s\n", rec.ID)
	fmt.Printf("Owner:     %s\n", rec.Owner)
	fmt.Printf("State:     %s\n", rec.State)
	fmt.Printf("Template:  %s\n", rec.TemplateVersion)
	fmt.Printf("Deposit:   %d\n", rec.Deposit)
	fmt.Printf("Created:   height %d\n", rec.CreatedAt)
	switch rec.State {
	case ledger.StateActive:
		fmt.Printf("Address:   %s\n", rec.DeployedAddress)
		fmt.Printf("Resolved:  height %d\n", rec.ResolvedAt)
	case ledger.StateFailed:
		fmt.Printf("Resolved:  height %d (deposit refunded)\n", rec.ResolvedAt)
	case ledger.StateOrphaned:
		fmt.Printf("Resolved:  height %d (outcome unknown)\n", rec.ResolvedAt)
	}
	return nil
}
