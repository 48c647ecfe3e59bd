package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Retire deployments whose outcome never arrived",
	Long: `Marks records that have been pending longer than the configured
orphan window as orphaned. An orphaned record means the outcome is unknown,
not that the deployment failed; its deposit is not refunded automatically.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	sum, err := ws.svc.Sweep(ctx)
	if err != nil {
		ws.close(ctx, false)
		return err
	}

	if err := ws.close(ctx, true); err != nil {
		return err
	}

	fmt.Printf("Swept %d orphaned deployment(s)\n", sum.Orphaned)
	return nil
}
