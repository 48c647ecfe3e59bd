// Package factory orchestrates resource deployments: it allocates ids,
// records ledger entries, issues deploy calls against a host, and later
// reconciles the receipts those calls produce.
package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/subforge-io/subforge/internal/host"
	"github.com/subforge-io/subforge/internal/ledger"
	"github.com/subforge-io/subforge/internal/logging"
	"github.com/subforge-io/subforge/internal/template"
)

var (
	// ErrNotOwner is returned when a caller other than the factory owner
	// attempts an owner-only operation.
	ErrNotOwner = errors.New("caller is not the factory owner")

	// ErrIDCollision is returned when a freshly derived resource id already
	// exists in the ledger. The derivation is deterministic over owner and
	// nonce, so a collision means the ledger and nonce counters have
	// diverged and nothing should be deployed until that is resolved.
	ErrIDCollision = errors.New("derived resource id already exists")
)

// InitMethod is the initialization entry point invoked on freshly deployed
// resource code.
const InitMethod = "init"

// Service wires the ledger, the template store, and a host into the
// deployment protocol.
type Service struct {
	ledger      *ledger.Ledger
	templates   *template.Store
	host        host.Host
	account     string
	orphanAfter uint64
	retry       *host.RetryPolicy
}

// New returns a Service rooted at the given factory account. orphanAfter is
// the number of height units a record may stay pending before the sweep
// marks it orphaned.
func New(l *ledger.Ledger, templates *template.Store, h host.Host, account string, orphanAfter uint64) *Service {
	return &Service{
		ledger:      l,
		templates:   templates,
		host:        h,
		account:     account,
		orphanAfter: orphanAfter,
		retry:       host.DefaultRetryPolicy(),
	}
}

// DeployResource allocates a resource id for owner, records it as pending,
// and issues the deploy call carrying the latest published template. It
// returns the new id immediately; the deployment outcome only becomes
// visible through Reconcile. If the call cannot be issued at all the
// pending record is rolled back so the failed attempt leaves no trace.
func (s *Service) DeployResource(ctx context.Context, owner string, initArgs json.RawMessage, deposit uint64) (string, error) {
	if owner == "" {
		return "", fmt.Errorf("owner account is required")
	}
	if deposit == 0 {
		return "", fmt.Errorf("a non-zero deposit is required")
	}
	if len(initArgs) > 0 && !json.Valid(initArgs) {
		return "", fmt.Errorf("init args are not valid JSON")
	}

	meta, err := s.templates.Latest()
	if err != nil {
		return "", fmt.Errorf("no template available to deploy: %w", err)
	}
	code, _, err := s.templates.Fetch(meta.Version)
	if err != nil {
		return "", fmt.Errorf("failed to load template %s: %w", meta.Version, err)
	}

	height, err := s.host.Height(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read host height: %w", err)
	}

	nonce := s.ledger.NextNonce(owner)
	id := ResourceID(owner, nonce)

	if _, err := s.ledger.Create(id, owner, meta.Version, deposit, height); err != nil {
		if errors.Is(err, ledger.ErrDuplicateID) {
			return "", fmt.Errorf("%w: %s", ErrIDCollision, id)
		}
		return "", err
	}

	call := host.DeployCall{
		ID:         id,
		Origin:     s.account,
		Payer:      owner,
		Target:     id + "." + s.account,
		Code:       code,
		InitMethod: InitMethod,
		InitArgs:   initArgs,
		Deposit:    deposit,
		Returns:    host.DeployReturns,
		Callback: host.CallbackSpec{
			Receiver: s.account,
			Param:    host.DeployReturns,
		},
	}

	err = host.RetryWithBackoff(ctx, s.retry, func() error {
		return s.host.Deploy(ctx, call)
	}, host.IsTransientError)
	if err != nil {
		if abortErr := s.ledger.Abort(id); abortErr != nil {
			logging.Error("failed to roll back unissued deployment", "id", id, "error", abortErr)
		}
		return "", fmt.Errorf("failed to issue deploy call for %s: %w", id, err)
	}

	logging.Info("issued deploy call", "id", id, "owner", owner, "template", meta.Version, "deposit", deposit)
	return id, nil
}

// ResourceStatus returns the ledger record for id.
func (s *Service) ResourceStatus(id string) (*ledger.Record, error) {
	rec, ok := s.ledger.Get(id)
	if !ok {
		return nil, fmt.Errorf("status %s: %w", id, ledger.ErrUnknownID)
	}
	return rec, nil
}

// ContainsResource reports whether id exists in the ledger, in any state.
func (s *Service) ContainsResource(id string) bool {
	return s.ledger.Contains(id)
}

// PublishTemplate registers a new template version. Owner only.
func (s *Service) PublishTemplate(caller, version string, code []byte) (template.Meta, error) {
	if caller != s.ledger.FactoryOwner() {
		return template.Meta{}, fmt.Errorf("%w: %s", ErrNotOwner, caller)
	}
	return s.templates.Publish(version, code)
}

// Owner returns the current factory owner account.
func (s *Service) Owner() string {
	return s.ledger.FactoryOwner()
}

// TransferOwnership hands the factory to newOwner. Owner only, and the new
// owner must differ from the current one.
func (s *Service) TransferOwnership(caller, newOwner string) error {
	current := s.ledger.FactoryOwner()
	if caller != current {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller)
	}
	if newOwner == "" {
		return fmt.Errorf("new owner account is required")
	}
	if newOwner == current {
		return fmt.Errorf("account %s is already the owner", newOwner)
	}
	s.ledger.SetOwner(newOwner)
	logging.Info("transferred factory ownership", "from", current, "to", newOwner)
	return nil
}
