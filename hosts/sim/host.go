// Package sim provides an in-memory host for tests and local development.
// It models the protocol surface the factory depends on: a height counter,
// asynchronous deploy calls whose outcomes only surface through receipt
// collection, at-most-once delivery, native balances, and the delivery-time
// shape check between a call's declared return type and its callback's
// declared parameter type.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/subforge-io/subforge/internal/host"
	"github.com/subforge-io/subforge/internal/logging"
)

// Verdict scripts how the sim resolves a deploy call.
type Verdict int

const (
	// VerdictSucceed resolves the call successfully (the default).
	VerdictSucceed Verdict = iota
	// VerdictFail resolves the call with an explicit failure; the attached
	// deposit bounces back to the calling factory account.
	VerdictFail
	// VerdictStall never resolves the call: the host-fault case where no
	// callback ever fires.
	VerdictStall
)

type verdict struct {
	kind   Verdict
	reason string
}

type resolvedCall struct {
	receipt  host.Receipt
	returns  host.TypeRef
	callback host.CallbackSpec
}

// Host is the in-memory simulated host.
type Host struct {
	mu             sync.Mutex
	height         uint64
	accounts       map[string]uint64
	verdicts       map[string]verdict
	defaultVerdict verdict
	calls          map[string]bool
	resolved       []resolvedCall
	dropped        []string
	delivered      map[string]bool
}

// New returns a sim host at height 1 with no accounts.
func New() *Host {
	return &Host{
		height:    1,
		accounts:  make(map[string]uint64),
		verdicts:  make(map[string]verdict),
		calls:     make(map[string]bool),
		delivered: make(map[string]bool),
	}
}

// SetBalance funds an account.
func (h *Host) SetBalance(account string, amount uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accounts[account] = amount
}

// SetVerdict scripts the outcome for deploy calls against target.
// Unscripted targets succeed.
func (h *Host) SetVerdict(target string, v Verdict, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.verdicts[target] = verdict{kind: v, reason: reason}
}

// SetDefaultVerdict scripts the outcome for deploy calls whose target has no
// verdict of its own.
func (h *Host) SetDefaultVerdict(v Verdict, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.defaultVerdict = verdict{kind: v, reason: reason}
}

// AdvanceHeight moves the chain forward n blocks without any transaction,
// standing in for unrelated traffic.
func (h *Host) AdvanceHeight(n uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.height += n
}

// Dropped returns call ids whose receipts were discarded because the
// callback's declared parameter type did not match the call's declared
// return type.
func (h *Host) Dropped() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.dropped...)
}

// Height implements host.Host.
func (h *Host) Height(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.height, nil
}

// Deploy implements host.Host. The call is validated and funded
// synchronously; its outcome is scripted by SetVerdict and surfaces only
// through CollectReceipts.
func (h *Host) Deploy(ctx context.Context, call host.DeployCall) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if call.ID == "" {
		return fmt.Errorf("deploy call requires an id")
	}
	if call.Target == "" {
		return fmt.Errorf("deploy call requires a target address")
	}
	if len(call.Code) == 0 {
		return fmt.Errorf("deploy call requires a code binary")
	}
	if call.Callback.Receiver == "" {
		return fmt.Errorf("deploy call requires a callback receiver")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.calls[call.ID] {
		return fmt.Errorf("call %s already issued", call.ID)
	}
	if call.Deposit > 0 {
		if h.accounts[call.Payer] < call.Deposit {
			return fmt.Errorf("account %s has insufficient balance for deposit %d", call.Payer, call.Deposit)
		}
		h.accounts[call.Payer] -= call.Deposit
	}

	h.calls[call.ID] = true
	h.height++

	v, ok := h.verdicts[call.Target]
	if !ok {
		v = h.defaultVerdict
	}
	switch v.kind {
	case VerdictStall:
		// No receipt, ever. The deposit is consumed by the half-finished
		// transaction; only the orphan sweep accounts for the record.
		logging.Debug("sim host stalling call", "call", call.ID, "target", call.Target)
		return nil

	case VerdictFail:
		h.height++
		if call.Deposit > 0 {
			// Failed deployments bounce the attached deposit back to the
			// calling contract, which owns the compensation from there.
			h.accounts[call.Origin] += call.Deposit
		}
		h.resolved = append(h.resolved, resolvedCall{
			receipt: host.Receipt{
				CallID:        call.ID,
				Outcome:       host.OutcomeFailure,
				FailureReason: v.reason,
				Height:        h.height,
			},
			returns:  call.Returns,
			callback: call.Callback,
		})
		return nil

	default:
		h.height++
		result, err := json.Marshal(host.DeployResult{
			Address: call.Target,
			Height:  h.height,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal deploy result: %w", err)
		}
		h.resolved = append(h.resolved, resolvedCall{
			receipt: host.Receipt{
				CallID:  call.ID,
				Outcome: host.OutcomeSuccess,
				Result:  result,
				Height:  h.height,
			},
			returns:  call.Returns,
			callback: call.Callback,
		})
		return nil
	}
}

// CollectReceipts implements host.Host. Receipts whose callback parameter
// type does not match the call's declared return type are dropped here, at
// delivery time: the mismatch is invisible until the callback would fire.
func (h *Host) CollectReceipts(ctx context.Context) ([]host.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var out []host.Receipt
	for _, rc := range h.resolved {
		if h.delivered[rc.receipt.CallID] {
			continue
		}
		h.delivered[rc.receipt.CallID] = true
		if !rc.returns.Matches(rc.callback.Param) {
			logging.Warn("dropping receipt: callback parameter type does not match declared return type",
				"call", rc.receipt.CallID, "receiver", rc.callback.Receiver)
			h.dropped = append(h.dropped, rc.receipt.CallID)
			continue
		}
		out = append(out, rc.receipt)
	}
	h.resolved = nil
	return out, nil
}

// Transfer implements host.Bank.
func (h *Host) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.accounts[from] < amount {
		return fmt.Errorf("account %s has insufficient balance for transfer %d", from, amount)
	}
	h.accounts[from] -= amount
	h.accounts[to] += amount
	h.height++
	return nil
}

// Balance implements host.Bank.
func (h *Host) Balance(ctx context.Context, account string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.accounts[account], nil
}

var (
	_ host.Host = (*Host)(nil)
	_ host.Bank = (*Host)(nil)
)
