// Package host defines the interface between the factory and the chain-like
// runtime that executes deployments. A deploy call and its outcome are two
// separate events: Deploy registers the call and returns before the outcome
// is known, and the outcome surfaces later as a Receipt collected by the
// reconciler. Nothing in this package blocks waiting for a deployment.
package host

import "context"

// DeployResult is the declared return value of a resource contract's init
// call. It is the single canonical definition both sides of the async
// boundary import: the call site declares it as the remote return type and
// the callback declares it as its parameter type, both via DeployReturns.
type DeployResult struct {
	// Address is the on-host account the resource contract was deployed to.
	Address string `json:"address"`
	// Height is the host height at which the deployment took effect.
	Height uint64 `json:"height"`
}

// DeployReturns is the canonical TypeRef for DeployResult. Every deploy call
// and its paired callback must use this value; deriving both from the one
// shared type is what keeps the pairing mechanical instead of a copy rule.
var DeployReturns = TypeOf[DeployResult]()

// CallbackSpec registers the receiver of a call's outcome. Param must equal
// the call's declared return TypeRef or the host will never deliver the
// receipt; the record then stays Pending until the orphan sweep claims it.
type CallbackSpec struct {
	Receiver string
	Param    TypeRef
}

// DeployCall is a deploy-and-initialize request against a fresh sub-address.
type DeployCall struct {
	// ID is the durable correlation id; receipts carry it back.
	ID string
	// Origin is the factory account issuing the call.
	Origin string
	// Payer is the account whose funds are attached as Deposit.
	Payer string
	// Target is the derived sub-address the code is deployed to.
	Target string
	// Code is the compiled resource contract binary.
	Code []byte
	// InitMethod and InitArgs initialize the freshly deployed contract.
	InitMethod string
	InitArgs   []byte
	// Deposit is attached to cover the deployment's storage cost.
	Deposit uint64
	// Returns is the declared return type of the init call.
	Returns TypeRef
	// Callback receives the outcome, keyed by ID.
	Callback CallbackSpec
}

// Outcome distinguishes how a call resolved on the host.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// Receipt carries a resolved call's outcome back to the registered callback.
// A host delivers at most one receipt per call id, and only after the call's
// effect is final on the host.
type Receipt struct {
	CallID        string
	Outcome       Outcome
	Result        []byte // declared return value as JSON, success only
	FailureReason string
	Height        uint64
}

// Host is the asynchronous deployment runtime.
type Host interface {
	// Height returns the host's current sequence counter (block height).
	Height(ctx context.Context) (uint64, error)

	// Deploy issues a deploy-and-initialize call. It returns once the call
	// is accepted; the outcome arrives later via CollectReceipts.
	Deploy(ctx context.Context, call DeployCall) error

	// CollectReceipts drains outcomes whose callbacks are deliverable.
	// Each receipt is returned exactly once. Outcomes whose callback
	// parameter type does not match the call's declared return type are
	// dropped, never returned.
	CollectReceipts(ctx context.Context) ([]Receipt, error)
}

// Bank is an optional host capability for native balances. Hosts without it
// cannot compensate deposits; the reconciler then records the failure and
// skips the refund.
type Bank interface {
	Transfer(ctx context.Context, from, to string, amount uint64) error
	Balance(ctx context.Context, account string) (uint64, error)
}
