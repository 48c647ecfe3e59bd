package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var publishCaller string

var publishCmd = &cobra.Command{
	Use:   "publish <version> <file>",
	Short: "Publish a new template version",
	Long: `Registers a resource contract binary under a new version. Versions
are append-only: published code is immutable and deployments already pending
keep the code they were issued with.`,
	Args: cobra.ExactArgs(2),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishCaller, "as", "", "Calling account (defaults to the configured owner)")
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	version := args[0]

	code, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read template binary: %w", err)
	}

	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.close(ctx, false)

	caller := publishCaller
	if caller == "" {
		caller = ws.cfg.Factory.Owner
	}

	meta, err := ws.svc.PublishTemplate(caller, version, code)
	if err != nil {
		return err
	}

	fmt.Printf("Published template %s (%d bytes, sha256 %s)\n", meta.Version, meta.Size, meta.Digest)
	return nil
}
