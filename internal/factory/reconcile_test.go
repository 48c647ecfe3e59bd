package factory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subforge-io/subforge/hosts/sim"
	"github.com/subforge-io/subforge/internal/host"
	"github.com/subforge-io/subforge/internal/ledger"
)

func TestReconcile_ActivatesSuccessfulDeployment(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.DeployResource(ctx, aliceAccount, nil, 100)
	require.NoError(t, err)

	sum, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Activated)

	rec, err := svc.ResourceStatus(id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateActive, rec.State)
	assert.Equal(t, id+"."+factoryAccount, rec.DeployedAddress)
	assert.NotZero(t, rec.ResolvedAt)
}

func TestReconcile_FailedDeploymentRefundsDeposit(t *testing.T) {
	svc, h, _ := newTestService(t)
	ctx := context.Background()

	h.SetDefaultVerdict(sim.VerdictFail, "init method panicked")

	id, err := svc.DeployResource(ctx, aliceAccount, nil, 100)
	require.NoError(t, err)

	// The deposit left the owner's account at issuance.
	balance, err := h.Balance(ctx, aliceAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), balance)

	sum, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)

	rec, err := svc.ResourceStatus(id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateFailed, rec.State)
	assert.Empty(t, rec.DeployedAddress)

	// Reconciling the failure returned the deposit to the owner.
	balance, err = h.Balance(ctx, aliceAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), balance)
	factoryBalance, err := h.Balance(ctx, factoryAccount)
	require.NoError(t, err)
	assert.Zero(t, factoryBalance)
}

func TestReconcile_ConcurrentDeploymentsResolveIndependently(t *testing.T) {
	svc, h, _ := newTestService(t)
	ctx := context.Background()

	// Ids are deterministic over owner and nonce, so the second deployment's
	// target can be scripted to fail before it is even issued.
	failingTarget := ResourceID(aliceAccount, 2) + "." + factoryAccount
	h.SetVerdict(failingTarget, sim.VerdictFail, "init method panicked")

	id1, err := svc.DeployResource(ctx, aliceAccount, nil, 100)
	require.NoError(t, err)
	id2, err := svc.DeployResource(ctx, aliceAccount, nil, 100)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	// Both deposits left the owner at issuance.
	balance, err := h.Balance(ctx, aliceAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(800), balance)

	sum, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Activated)
	assert.Equal(t, 1, sum.Failed)

	// Each record resolved on its own outcome.
	rec1, err := svc.ResourceStatus(id1)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateActive, rec1.State)
	assert.Equal(t, id1+"."+factoryAccount, rec1.DeployedAddress)

	rec2, err := svc.ResourceStatus(id2)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateFailed, rec2.State)
	assert.Empty(t, rec2.DeployedAddress)

	// Only the failed deployment's deposit came back.
	balance, err = h.Balance(ctx, aliceAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), balance)
	factoryBalance, err := h.Balance(ctx, factoryAccount)
	require.NoError(t, err)
	assert.Zero(t, factoryBalance)
}

func TestReconcile_EmptyHost(t *testing.T) {
	svc, _, _ := newTestService(t)
	sum, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Activated)
	assert.Zero(t, sum.Failed)
	assert.Zero(t, sum.Skipped)
}

func TestSweep_OrphansOnlyAfterWindow(t *testing.T) {
	svc, h, _ := newTestService(t)
	ctx := context.Background()

	h.SetDefaultVerdict(sim.VerdictStall, "")

	id, err := svc.DeployResource(ctx, aliceAccount, nil, 100)
	require.NoError(t, err)

	// No receipt arrives, so reconcile leaves the record pending.
	sum, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Activated+sum.Failed)

	// Inside the window the sweep must not touch it either.
	sum, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Orphaned)
	rec, err := svc.ResourceStatus(id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatePending, rec.State)

	h.AdvanceHeight(orphanWindow)

	sum, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Orphaned)

	rec, err = svc.ResourceStatus(id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateOrphaned, rec.State)
	assert.Empty(t, rec.DeployedAddress)

	// A second sweep finds nothing left to do.
	sum, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Orphaned)
}

func TestSweep_IgnoresResolvedRecords(t *testing.T) {
	svc, h, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.DeployResource(ctx, aliceAccount, nil, 100)
	require.NoError(t, err)
	_, err = svc.Reconcile(ctx)
	require.NoError(t, err)

	h.AdvanceHeight(orphanWindow * 2)

	sum, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Orphaned)

	rec, err := svc.ResourceStatus(id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateActive, rec.State)
}

func TestReconcile_MismatchedCallbackStaysPendingUntilSwept(t *testing.T) {
	type wrongParam struct {
		Address string `json:"addr"`
	}

	svc, h, led := newTestService(t)
	ctx := context.Background()

	// A call registered with a mismatched callback parameter: the host
	// resolves it, but the receipt is never delivered.
	id := ResourceID(aliceAccount, led.NextNonce(aliceAccount))
	height, err := h.Height(ctx)
	require.NoError(t, err)
	_, err = led.Create(id, aliceAccount, "v1", 100, height)
	require.NoError(t, err)

	require.NoError(t, h.Deploy(ctx, host.DeployCall{
		ID:         id,
		Origin:     factoryAccount,
		Payer:      aliceAccount,
		Target:     id + "." + factoryAccount,
		Code:       []byte("contract-binary-v1"),
		InitMethod: InitMethod,
		Deposit:    100,
		Returns:    host.DeployReturns,
		Callback: host.CallbackSpec{
			Receiver: factoryAccount,
			Param:    host.TypeOf[wrongParam](),
		},
	}))

	// Reconcile observes nothing, however often it runs.
	for i := 0; i < 3; i++ {
		sum, err := svc.Reconcile(ctx)
		require.NoError(t, err)
		assert.Zero(t, sum.Activated+sum.Failed)
	}
	assert.Equal(t, []string{id}, h.Dropped())

	rec, err := svc.ResourceStatus(id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatePending, rec.State)

	// Only the sweep ends the permanent pending state.
	h.AdvanceHeight(orphanWindow)
	sum, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Orphaned)
}

// scriptedHost replays a fixed set of receipts on every collection, standing
// in for a host that re-delivers outcomes.
type scriptedHost struct {
	height   uint64
	receipts []host.Receipt
}

func (s *scriptedHost) Height(ctx context.Context) (uint64, error) { return s.height, nil }

func (s *scriptedHost) Deploy(ctx context.Context, call host.DeployCall) error { return nil }

func (s *scriptedHost) CollectReceipts(ctx context.Context) ([]host.Receipt, error) {
	return s.receipts, nil
}

func TestReconcile_RedeliveredReceiptIsRejected(t *testing.T) {
	led := ledger.New()
	led.SetOwner(ownerAccount)
	_, err := led.Create("res-1", aliceAccount, "v1", 100, 10)
	require.NoError(t, err)

	result, err := json.Marshal(host.DeployResult{Address: "res-1." + factoryAccount, Height: 12})
	require.NoError(t, err)

	h := &scriptedHost{
		height: 12,
		receipts: []host.Receipt{{
			CallID:  "res-1",
			Outcome: host.OutcomeSuccess,
			Result:  result,
			Height:  12,
		}},
	}
	svc := New(led, nil, h, factoryAccount, orphanWindow)
	ctx := context.Background()

	sum, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Activated)

	// The same receipt arrives again: rejected, record untouched.
	sum, err = svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Activated)
	assert.Equal(t, 1, sum.Skipped)

	rec, ok := led.Get("res-1")
	require.True(t, ok)
	assert.Equal(t, ledger.StateActive, rec.State)
	assert.Equal(t, uint64(12), rec.ResolvedAt)
}

func TestReconcile_AddresslessResultDoesNotPoisonBatch(t *testing.T) {
	led := ledger.New()
	led.SetOwner(ownerAccount)
	_, err := led.Create("res-bad", aliceAccount, "v1", 100, 10)
	require.NoError(t, err)
	_, err = led.Create("res-good", aliceAccount, "v1", 100, 10)
	require.NoError(t, err)

	result, err := json.Marshal(host.DeployResult{Address: "res-good." + factoryAccount, Height: 12})
	require.NoError(t, err)

	// The host drains receipts at most once, so both arrive in one batch
	// with the defective one first.
	h := &scriptedHost{
		height: 12,
		receipts: []host.Receipt{
			{CallID: "res-bad", Outcome: host.OutcomeSuccess, Result: []byte(`{}`), Height: 12},
			{CallID: "res-good", Outcome: host.OutcomeSuccess, Result: result, Height: 12},
		},
	}
	svc := New(led, nil, h, factoryAccount, orphanWindow)

	sum, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Activated)
	assert.Equal(t, 1, sum.Skipped)

	// The valid receipt in the same batch was applied.
	good, ok := led.Get("res-good")
	require.True(t, ok)
	assert.Equal(t, ledger.StateActive, good.State)
	assert.Equal(t, "res-good."+factoryAccount, good.DeployedAddress)

	// The defective one stays pending for the sweep.
	bad, ok := led.Get("res-bad")
	require.True(t, ok)
	assert.Equal(t, ledger.StatePending, bad.State)
}

func TestReconcile_UnknownAndMalformedReceipts(t *testing.T) {
	led := ledger.New()
	led.SetOwner(ownerAccount)
	_, err := led.Create("res-1", aliceAccount, "v1", 100, 10)
	require.NoError(t, err)

	h := &scriptedHost{
		height: 12,
		receipts: []host.Receipt{
			{CallID: "ghost", Outcome: host.OutcomeSuccess, Result: []byte(`{}`), Height: 12},
			{CallID: "res-1", Outcome: host.OutcomeSuccess, Result: []byte(`not-json`), Height: 12},
		},
	}
	svc := New(led, nil, h, factoryAccount, orphanWindow)

	sum, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Activated)
	assert.Equal(t, 2, sum.Skipped)

	// The record with the malformed result is still pending.
	rec, ok := led.Get("res-1")
	require.True(t, ok)
	assert.Equal(t, ledger.StatePending, rec.State)
}
