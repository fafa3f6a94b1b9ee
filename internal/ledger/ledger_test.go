package ledger

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdictlabs/casemarket/internal/domain"
)

func TestEscrowAccount(t *testing.T) {
	a := EscrowAccount("case-1")
	b := EscrowAccount("case-1")
	c := EscrowAccount("case-2")

	assert.Equal(t, a, b, "derivation must be deterministic")
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "0x"))
	assert.Len(t, a, 42)
}

func TestMemoryTransfer(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	require.NoError(t, l.Deposit(ctx, "alice", 100))

	require.NoError(t, l.Transfer(ctx, "alice", "bob", 60))

	got, err := l.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(40), got)
	got, err = l.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(60), got)

	err = l.Transfer(ctx, "alice", "bob", 41)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	got, err = l.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(40), got, "failed transfer must not move funds")
}

func TestMemoryEscrowAuthority(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	escrow := EscrowAccount("case-1")
	require.NoError(t, l.Deposit(ctx, escrow, 1_000))

	// A forged authority naming another market does not cover this escrow.
	forged := domain.EscrowAuthority{CaseID: "case-1", Escrow: EscrowAccount("case-2")}
	err := l.TransferFromEscrow(ctx, forged, "mallory", 500)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, l.TransferFromEscrow(ctx, AuthorityFor("case-1"), "bob", 500))
	got, err := l.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), got)
}
