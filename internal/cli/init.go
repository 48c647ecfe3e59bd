package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new Subforge workspace",
	Long:  `Creates a starter workspace configuration in the current directory.`,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	content := `// Subforge workspace configuration

factory {
  account = "factory.test"
  owner = "owner.test"
  // Pending deployments older than this many height units are swept
  // to orphaned.
  orphanAfter = 100
}

host {
  type = "sim"
  settings {
    ["balance.owner.test"] = "1000"
  }
}

ledger {
  backend = "local"
  settings {
    ["path"] = ".subforge/ledger.json"
  }
}

templates {
  dir = ".subforge/templates"
}

logLevel = "info"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create %s: %w", configPath, err)
	}
	fmt.Printf("Created %s\n", configPath)

	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration for your factory account and host")
	fmt.Println("  2. Run 'subforge publish <version> <binary>' to register a template")
	fmt.Println("  3. Run 'subforge deploy --owner <account> --deposit <amount>'")
	fmt.Println("  4. Run 'subforge reconcile' to apply deployment outcomes")
	return nil
}
