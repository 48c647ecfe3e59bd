package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	deployOwner   string
	deployDeposit uint64
	deployArgs    string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a new resource contract",
	Long: `Issues a deployment of the latest published template to a fresh
sub-address. The command returns as soon as the deploy call is issued; the
printed id starts out pending and resolves on a later 'reconcile'.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVar(&deployOwner, "owner", "", "Account that owns the new resource")
	deployCmd.Flags().Uint64Var(&deployDeposit, "deposit", 0, "Deposit attached to cover deployment storage")
	deployCmd.Flags().StringVar(&deployArgs, "args", "", "Initialization arguments as a JSON object")
	deployCmd.MarkFlagRequired("owner")
	deployCmd.MarkFlagRequired("deposit")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var initArgs json.RawMessage
	if deployArgs != "" {
		if !json.Valid([]byte(deployArgs)) {
			return fmt.Errorf("--args is not valid JSON")
		}
		initArgs = json.RawMessage(deployArgs)
	}

	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	id, err := ws.svc.DeployResource(ctx, deployOwner, initArgs, deployDeposit)
	if err != nil {
		ws.close(ctx, false)
		return err
	}

	if err := ws.close(ctx, true); err != nil {
		return err
	}

	fmt.Printf("Deployment issued: %s\n", id)
	fmt.Println("The resource is pending until 'subforge reconcile' observes its outcome.")
	return nil
}
