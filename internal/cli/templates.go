package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List published template versions",
	RunE:  runTemplates,
}

func runTemplates(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.close(ctx, false)

	versions, err := ws.store.Versions()
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Println("No templates published.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSIZE\tPUBLISHED\tDIGEST")
	for _, m := range versions {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", m.Version, m.Size, m.PublishedAt.Format("2006-01-02 15:04:05"), m.Digest)
	}
	return w.Flush()
}
