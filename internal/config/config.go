// Package config loads the workspace configuration from a Pkl module.
package config

import (
	"context"
	"fmt"

	"github.com/apple/pkl-go/pkl"
)

// DefaultFile is the workspace entry point evaluated by Load.
const DefaultFile = "subforge.pkl"

// Workspace is the top-level workspace configuration.
type Workspace struct {
	Factory   *Factory   `pkl:"factory"`
	Host      *Host      `pkl:"host"`
	Ledger    *Ledger    `pkl:"ledger"`
	Templates *Templates `pkl:"templates"`
	LogLevel  string     `pkl:"logLevel"`
}

// Factory identifies the factory account and its deployment policy.
type Factory struct {
	Account string `pkl:"account"`
	Owner   string `pkl:"owner"`
	// OrphanAfter is the pending age, in host height units, after which a
	// deployment with no outcome is swept to orphaned.
	OrphanAfter uint64 `pkl:"orphanAfter"`
}

// Host selects the deployment runtime.
type Host struct {
	Type     string            `pkl:"type"` // "sim" or "docker"
	Settings map[string]string `pkl:"settings"`
}

// Ledger selects where the deployment ledger is persisted.
type Ledger struct {
	Backend  string            `pkl:"backend"` // "local" or "s3"
	Settings map[string]string `pkl:"settings"`
}

// Templates locates the template store directory.
type Templates struct {
	Dir string `pkl:"dir"`
}

// Load evaluates path into a Workspace and validates it.
func Load(ctx context.Context, path string) (*Workspace, error) {
	evaluator, err := pkl.NewEvaluator(ctx, pkl.PreconfiguredOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var ws Workspace
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(path), &ws); err != nil {
		return nil, fmt.Errorf("failed to evaluate config: %w", err)
	}

	if err := ws.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return &ws, nil
}

func (w *Workspace) validate() error {
	if w.Factory == nil || w.Factory.Account == "" {
		return fmt.Errorf("factory.account is required")
	}
	if w.Factory.Owner == "" {
		return fmt.Errorf("factory.owner is required")
	}
	if w.Factory.OrphanAfter == 0 {
		return fmt.Errorf("factory.orphanAfter must be at least 1")
	}
	if w.Host == nil || w.Host.Type == "" {
		return fmt.Errorf("host.type is required")
	}
	if w.Ledger == nil || w.Ledger.Backend == "" {
		return fmt.Errorf("ledger.backend is required")
	}
	if w.Templates == nil || w.Templates.Dir == "" {
		return fmt.Errorf("templates.dir is required")
	}
	return nil
}
