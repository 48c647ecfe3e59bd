// Package ledger is the factory's durable registry of requested deployments.
// It owns the record state machine: every mutation goes through the narrow
// Create/Resolve API and the ledger itself enforces the lifecycle invariants
// rather than trusting callers.
package ledger

import "errors"

// State is a deployment record's lifecycle state.
type State string

const (
	// StatePending is the only initial state: the deploy call is issued
	// and its outcome is not yet reconciled.
	StatePending State = "PENDING"
	// StateActive means the deployment succeeded; DeployedAddress is set.
	StateActive State = "ACTIVE"
	// StateFailed means the host reported an explicit failure.
	StateFailed State = "FAILED"
	// StateOrphaned means no outcome arrived within the configured window.
	// Surfaced to owners as "outcome unknown", never as a false result.
	StateOrphaned State = "ORPHANED"
)

// Terminal reports whether s has no outgoing transitions.
func (s State) Terminal() bool {
	return s == StateActive || s == StateFailed || s == StateOrphaned
}

var (
	// ErrDuplicateID is returned by Create when the id already exists.
	ErrDuplicateID = errors.New("record with this id already exists")
	// ErrUnknownID is returned when no record exists for the id.
	ErrUnknownID = errors.New("no record with this id")
	// ErrAlreadyResolved is returned by Resolve for a non-Pending record.
	// Re-delivered callbacks hit this; callers treat it as a no-op signal.
	ErrAlreadyResolved = errors.New("record already resolved")
)

// Record tracks one requested deployment from issuance to its terminal state.
// Records are never deleted: Failed and Orphaned entries are retained for
// audit and to block retries under the same id.
type Record struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	State State  `json:"state"`

	// DeployedAddress is set exactly when State is Active.
	DeployedAddress string `json:"deployed_address,omitempty"`

	TemplateVersion string `json:"template_version"`
	Deposit         uint64 `json:"deposit"`

	// CreatedAt and ResolvedAt are host heights, for audit and for the
	// orphan sweep's age check.
	CreatedAt  uint64 `json:"created_at"`
	ResolvedAt uint64 `json:"resolved_at,omitempty"`
}
