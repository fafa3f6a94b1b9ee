package domain

import "context"

// EscrowAuthority is the capability to move funds out of one market's escrow
// account. It is issued when the market is created and checked structurally by
// the ledger: no signature scheme, just possession of the matching value.
type EscrowAuthority struct {
	CaseID string
	Escrow string // derived escrow account address
}

// Covers reports whether the authority grants withdrawal rights over the
// given escrow account.
func (a EscrowAuthority) Covers(escrow string) bool {
	return a.Escrow != "" && a.Escrow == escrow
}

// Ledger moves custody balances between accounts. Implementations must make
// each transfer atomic: either both balances change or neither does.
//
// Ordinary transfers are user-initiated (bet stakes into escrow). Withdrawals
// from an escrow account additionally require the market's EscrowAuthority.
type Ledger interface {
	Transfer(ctx context.Context, from, to string, amount uint64) error
	TransferFromEscrow(ctx context.Context, auth EscrowAuthority, to string, amount uint64) error
	Balance(ctx context.Context, account string) (uint64, error)
	// Deposit credits an account from outside the ledger (funding ramp).
	Deposit(ctx context.Context, account string, amount uint64) error
}
