package ledger

import (
	"fmt"
	"sync"
)

// Ledger is the factory's durable state: deployment records, per-owner
// nonces, and the factory owner account. Transitions are atomic and isolated
// per id; the mutex makes the ledger safe for a host delivering receipts
// concurrently with new deploy requests. There are no multi-id transactions.
type Ledger struct {
	mu sync.Mutex

	// Version identifies the serialized layout.
	Version int `json:"version"`
	// Owner is the factory owner account, authorized for privileged calls.
	Owner string `json:"owner"`

	Records []*Record         `json:"records"`
	Nonces  map[string]uint64 `json:"nonces"`

	index map[string]*Record
}

// CurrentVersion is the serialized ledger layout version.
const CurrentVersion = 1

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		Version: CurrentVersion,
		Nonces:  make(map[string]uint64),
		index:   make(map[string]*Record),
	}
}

// reindex rebuilds the id index after deserialization.
func (l *Ledger) reindex() {
	l.index = make(map[string]*Record, len(l.Records))
	for _, rec := range l.Records {
		l.index[rec.ID] = rec
	}
	if l.Nonces == nil {
		l.Nonces = make(map[string]uint64)
	}
}

// NextNonce reserves the next monotonically increasing nonce for owner.
func (l *Ledger) NextNonce(owner string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Nonces[owner]++
	return l.Nonces[owner]
}

// Create adds a Pending record for id. Creation is the only path to Pending
// and Pending is the only initial state.
func (l *Ledger) Create(id, owner, templateVersion string, deposit, height uint64) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id == "" {
		return nil, fmt.Errorf("record id is required")
	}
	if owner == "" {
		return nil, fmt.Errorf("record owner is required")
	}
	if _, exists := l.index[id]; exists {
		return nil, fmt.Errorf("create %s: %w", id, ErrDuplicateID)
	}

	rec := &Record{
		ID:              id,
		Owner:           owner,
		State:           StatePending,
		TemplateVersion: templateVersion,
		Deposit:         deposit,
		CreatedAt:       height,
	}
	l.Records = append(l.Records, rec)
	l.index[id] = rec
	return l.snapshot(rec), nil
}

// Resolve moves a Pending record to a terminal state. Terminal states are
// immutable: a second Resolve for the same id fails with ErrAlreadyResolved,
// which is how re-delivered callbacks are rejected. DeployedAddress must be
// provided exactly when the target state is Active.
func (l *Ledger) Resolve(id string, target State, deployedAddress string, height uint64) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, exists := l.index[id]
	if !exists {
		return nil, fmt.Errorf("resolve %s: %w", id, ErrUnknownID)
	}
	if rec.State != StatePending {
		return nil, fmt.Errorf("resolve %s from %s: %w", id, rec.State, ErrAlreadyResolved)
	}
	if !target.Terminal() {
		return nil, fmt.Errorf("resolve %s: target state %s is not terminal", id, target)
	}
	if target == StateActive && deployedAddress == "" {
		return nil, fmt.Errorf("resolve %s: active record requires a deployed address", id)
	}
	if target != StateActive && deployedAddress != "" {
		return nil, fmt.Errorf("resolve %s: deployed address is only valid for active records", id)
	}

	rec.State = target
	rec.DeployedAddress = deployedAddress
	rec.ResolvedAt = height
	return l.snapshot(rec), nil
}

// Abort backs out a Pending entry whose deploy call could not be issued. The
// aborted entry never becomes visible to callers; this is the transactional
// rollback of a Create, not a state transition.
func (l *Ledger) Abort(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, exists := l.index[id]
	if !exists {
		return fmt.Errorf("abort %s: %w", id, ErrUnknownID)
	}
	if rec.State != StatePending {
		return fmt.Errorf("abort %s from %s: %w", id, rec.State, ErrAlreadyResolved)
	}
	delete(l.index, id)
	for i, r := range l.Records {
		if r.ID == id {
			l.Records = append(l.Records[:i], l.Records[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a copy of the record for id.
func (l *Ledger) Get(id string) (*Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, exists := l.index[id]
	if !exists {
		return nil, false
	}
	return l.snapshot(rec), true
}

// Contains reports whether a record exists for id, in any state.
func (l *Ledger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, exists := l.index[id]
	return exists
}

// Pending returns copies of all records still awaiting an outcome, in
// creation order.
func (l *Ledger) Pending() []*Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	var pending []*Record
	for _, rec := range l.Records {
		if rec.State == StatePending {
			pending = append(pending, l.snapshot(rec))
		}
	}
	return pending
}

// All returns copies of every record in creation order.
func (l *Ledger) All() []*Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Record, 0, len(l.Records))
	for _, rec := range l.Records {
		out = append(out, l.snapshot(rec))
	}
	return out
}

// SetOwner records a new factory owner account.
func (l *Ledger) SetOwner(owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Owner = owner
}

// FactoryOwner returns the current factory owner account.
func (l *Ledger) FactoryOwner() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Owner
}

// snapshot copies rec so callers cannot mutate ledger state in place.
// Callers must hold l.mu.
func (l *Ledger) snapshot(rec *Record) *Record {
	cp := *rec
	return &cp
}
