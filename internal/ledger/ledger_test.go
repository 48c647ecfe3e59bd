package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_CreateAndGet(t *testing.T) {
	l := New()

	rec, err := l.Create("res-1", "alice.test", "v1", 500, 10)
	require.NoError(t, err)
	assert.Equal(t, StatePending, rec.State)
	assert.Equal(t, uint64(10), rec.CreatedAt)
	assert.Empty(t, rec.DeployedAddress)

	got, ok := l.Get("res-1")
	require.True(t, ok)
	assert.Equal(t, "alice.test", got.Owner)
	assert.True(t, l.Contains("res-1"))
	assert.False(t, l.Contains("res-2"))
}

func TestLedger_CreateDuplicateID(t *testing.T) {
	l := New()

	_, err := l.Create("res-1", "alice.test", "v1", 500, 10)
	require.NoError(t, err)

	_, err = l.Create("res-1", "bob.test", "v1", 500, 11)
	assert.ErrorIs(t, err, ErrDuplicateID)

	// The original record is untouched.
	got, ok := l.Get("res-1")
	require.True(t, ok)
	assert.Equal(t, "alice.test", got.Owner)
}

func TestLedger_ResolveActive(t *testing.T) {
	l := New()
	_, err := l.Create("res-1", "alice.test", "v1", 500, 10)
	require.NoError(t, err)

	rec, err := l.Resolve("res-1", StateActive, "res-1.factory.test", 12)
	require.NoError(t, err)
	assert.Equal(t, StateActive, rec.State)
	assert.Equal(t, "res-1.factory.test", rec.DeployedAddress)
	assert.Equal(t, uint64(12), rec.ResolvedAt)
}

func TestLedger_ResolveRequiresAddressOnlyWhenActive(t *testing.T) {
	l := New()
	_, err := l.Create("res-1", "alice.test", "v1", 500, 10)
	require.NoError(t, err)
	_, err = l.Create("res-2", "alice.test", "v1", 500, 10)
	require.NoError(t, err)

	// Active without an address is invalid.
	_, err = l.Resolve("res-1", StateActive, "", 12)
	assert.Error(t, err)

	// Failed with an address is invalid.
	_, err = l.Resolve("res-2", StateFailed, "res-2.factory.test", 12)
	assert.Error(t, err)

	// Both records are still pending after the rejected transitions.
	for _, id := range []string{"res-1", "res-2"} {
		got, ok := l.Get(id)
		require.True(t, ok)
		assert.Equal(t, StatePending, got.State)
	}
}

func TestLedger_TerminalStatesAreImmutable(t *testing.T) {
	l := New()

	cases := []struct {
		id      string
		state   State
		address string
	}{
		{"res-active", StateActive, "res-active.factory.test"},
		{"res-failed", StateFailed, ""},
		{"res-orphaned", StateOrphaned, ""},
	}

	for _, tc := range cases {
		_, err := l.Create(tc.id, "alice.test", "v1", 500, 10)
		require.NoError(t, err)
		_, err = l.Resolve(tc.id, tc.state, tc.address, 12)
		require.NoError(t, err)

		// A re-delivered outcome must be rejected, whatever it claims.
		_, err = l.Resolve(tc.id, StateActive, "other.factory.test", 13)
		assert.ErrorIs(t, err, ErrAlreadyResolved)
		_, err = l.Resolve(tc.id, StateFailed, "", 13)
		assert.ErrorIs(t, err, ErrAlreadyResolved)

		got, ok := l.Get(tc.id)
		require.True(t, ok)
		assert.Equal(t, tc.state, got.State)
		assert.Equal(t, tc.address, got.DeployedAddress)
		assert.Equal(t, uint64(12), got.ResolvedAt)
	}
}

func TestLedger_ResolveUnknownID(t *testing.T) {
	l := New()
	_, err := l.Resolve("nope", StateActive, "nope.factory.test", 5)
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestLedger_ResolveToNonTerminal(t *testing.T) {
	l := New()
	_, err := l.Create("res-1", "alice.test", "v1", 500, 10)
	require.NoError(t, err)

	_, err = l.Resolve("res-1", StatePending, "", 12)
	assert.Error(t, err)
}

func TestLedger_Abort(t *testing.T) {
	l := New()
	_, err := l.Create("res-1", "alice.test", "v1", 500, 10)
	require.NoError(t, err)

	require.NoError(t, l.Abort("res-1"))
	assert.False(t, l.Contains("res-1"))
	assert.Empty(t, l.All())

	// Aborting again is an unknown id.
	assert.ErrorIs(t, l.Abort("res-1"), ErrUnknownID)
}

func TestLedger_AbortResolvedRecord(t *testing.T) {
	l := New()
	_, err := l.Create("res-1", "alice.test", "v1", 500, 10)
	require.NoError(t, err)
	_, err = l.Resolve("res-1", StateFailed, "", 12)
	require.NoError(t, err)

	assert.ErrorIs(t, l.Abort("res-1"), ErrAlreadyResolved)
	assert.True(t, l.Contains("res-1"))
}

func TestLedger_NextNonceIsMonotonicPerOwner(t *testing.T) {
	l := New()

	assert.Equal(t, uint64(1), l.NextNonce("alice.test"))
	assert.Equal(t, uint64(2), l.NextNonce("alice.test"))
	assert.Equal(t, uint64(1), l.NextNonce("bob.test"))
	assert.Equal(t, uint64(3), l.NextNonce("alice.test"))
}

func TestLedger_PendingFiltersTerminalRecords(t *testing.T) {
	l := New()
	_, err := l.Create("res-1", "alice.test", "v1", 500, 10)
	require.NoError(t, err)
	_, err = l.Create("res-2", "alice.test", "v1", 500, 11)
	require.NoError(t, err)
	_, err = l.Resolve("res-1", StateFailed, "", 12)
	require.NoError(t, err)

	pending := l.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "res-2", pending[0].ID)
	assert.Len(t, l.All(), 2)
}

func TestLedger_SnapshotsAreCopies(t *testing.T) {
	l := New()
	_, err := l.Create("res-1", "alice.test", "v1", 500, 10)
	require.NoError(t, err)

	got, ok := l.Get("res-1")
	require.True(t, ok)
	got.State = StateActive
	got.DeployedAddress = "tampered"

	fresh, ok := l.Get("res-1")
	require.True(t, ok)
	assert.Equal(t, StatePending, fresh.State)
	assert.Empty(t, fresh.DeployedAddress)
}

func TestLedger_Owner(t *testing.T) {
	l := New()
	assert.Empty(t, l.FactoryOwner())
	l.SetOwner("owner.test")
	assert.Equal(t, "owner.test", l.FactoryOwner())
}
