package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var transferCaller string

var ownerCmd = &cobra.Command{
	Use:   "owner",
	Short: "Show the factory owner",
	RunE:  runOwner,
}

var transferCmd = &cobra.Command{
	Use:   "transfer <new-owner>",
	Short: "Transfer factory ownership",
	Args:  cobra.ExactArgs(1),
	RunE:  runTransfer,
}

func init() {
	transferCmd.Flags().StringVar(&transferCaller, "as", "", "Calling account (defaults to the configured owner)")
	ownerCmd.AddCommand(transferCmd)
}

func runOwner(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.close(ctx, false)

	fmt.Println(ws.svc.Owner())
	return nil
}

func runTransfer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	caller := transferCaller
	if caller == "" {
		caller = ws.svc.Owner()
	}

	if err := ws.svc.TransferOwnership(caller, args[0]); err != nil {
		ws.close(ctx, false)
		return err
	}

	if err := ws.close(ctx, true); err != nil {
		return err
	}

	fmt.Printf("Factory owner is now %s\n", args[0])
	return nil
}
