package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/subforge-io/subforge/hosts/docker"
	"github.com/subforge-io/subforge/hosts/sim"
	"github.com/subforge-io/subforge/internal/config"
	"github.com/subforge-io/subforge/internal/factory"
	"github.com/subforge-io/subforge/internal/host"
	"github.com/subforge-io/subforge/internal/ledger"
	"github.com/subforge-io/subforge/internal/template"
)

// workspace bundles everything a command needs: the evaluated configuration,
// the locked ledger backend, and the factory service wired to a host.
type workspace struct {
	cfg     *config.Workspace
	backend ledger.Backend
	led     *ledger.Ledger
	store   *template.Store
	svc     *factory.Service
}

// openWorkspace evaluates the configuration, locks and reads the ledger, and
// wires up the factory service. Callers must invoke close exactly once.
func openWorkspace(ctx context.Context) (*workspace, error) {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return nil, err
	}

	backend, err := ledger.NewBackend(&ledger.BackendConfig{
		Type:   cfg.Ledger.Backend,
		Config: cfg.Ledger.Settings,
	})
	if err != nil {
		return nil, err
	}

	if err := backend.Lock(); err != nil {
		return nil, err
	}

	led, err := backend.Read(ctx)
	if err != nil {
		backend.Unlock()
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	if led.FactoryOwner() == "" {
		led.SetOwner(cfg.Factory.Owner)
	}

	store, err := template.Open(cfg.Templates.Dir)
	if err != nil {
		backend.Unlock()
		return nil, err
	}

	h, err := newHost(cfg.Host)
	if err != nil {
		backend.Unlock()
		return nil, err
	}

	return &workspace{
		cfg:     cfg,
		backend: backend,
		led:     led,
		store:   store,
		svc:     factory.New(led, store, h, cfg.Factory.Account, cfg.Factory.OrphanAfter),
	}, nil
}

// close releases the ledger lock, first persisting the ledger when the
// command mutated it.
func (w *workspace) close(ctx context.Context, persist bool) error {
	defer w.backend.Unlock()
	if persist {
		if err := w.backend.Write(ctx, w.led); err != nil {
			return fmt.Errorf("failed to write ledger: %w", err)
		}
	}
	return nil
}

// newHost constructs the configured deployment host. Sim host settings may
// fund accounts up front with "balance.<account>" keys.
func newHost(cfg *config.Host) (host.Host, error) {
	switch cfg.Type {
	case "sim":
		h := sim.New()
		for key, val := range cfg.Settings {
			account, ok := strings.CutPrefix(key, "balance.")
			if !ok {
				continue
			}
			amount, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid balance for %s: %w", account, err)
			}
			h.SetBalance(account, amount)
		}
		return h, nil
	case "docker":
		return docker.New(), nil
	default:
		return nil, fmt.Errorf("unknown host type: %s", cfg.Type)
	}
}
