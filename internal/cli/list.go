package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all deployment records",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.close(ctx, false)

	records := ws.led.All()
	if len(records) == 0 {
		fmt.Println("No deployments recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOWNER\tSTATE\tTEMPLATE\tADDRESS")
	for _, rec := range records {
		addr := rec.DeployedAddress
		if addr == "" {
			addr = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.Owner, rec.State, rec.TemplateVersion, addr)
	}
	return w.Flush()
}
