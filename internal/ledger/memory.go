package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/verdictlabs/casemarket/internal/domain"
)

// Memory is an in-process ledger keyed by account string. It backs tests and
// single-node deployments; production custody uses the database-backed ledger
// so transfers survive restarts.
type Memory struct {
	mu       sync.Mutex
	balances map[string]uint64
}

var _ domain.Ledger = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{balances: make(map[string]uint64)}
}

func (l *Memory) Deposit(_ context.Context, account string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.balances[account] + amount
	if next < l.balances[account] {
		return fmt.Errorf("ledger: deposit to %s: %w", account, domain.ErrArithmeticOverflow)
	}
	l.balances[account] = next
	return nil
}

func (l *Memory) Balance(_ context.Context, account string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

func (l *Memory) Transfer(_ context.Context, from, to string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(from, to, amount)
}

// TransferFromEscrow moves payout funds out of a market escrow. The caller
// must hold the authority issued for that market at creation.
func (l *Memory) TransferFromEscrow(_ context.Context, auth domain.EscrowAuthority, to string, amount uint64) error {
	if !auth.Covers(EscrowAccount(auth.CaseID)) {
		return fmt.Errorf("ledger: escrow withdrawal for %s: %w", auth.CaseID, domain.ErrUnauthorized)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(auth.Escrow, to, amount)
}

func (l *Memory) transferLocked(from, to string, amount uint64) error {
	if from == to {
		return nil
	}
	bal := l.balances[from]
	if bal < amount {
		return fmt.Errorf("ledger: %s holds %d, needs %d: %w", from, bal, amount, domain.ErrInsufficientFunds)
	}
	next := l.balances[to] + amount
	if next < l.balances[to] {
		return fmt.Errorf("ledger: credit to %s: %w", to, domain.ErrArithmeticOverflow)
	}
	l.balances[from] = bal - amount
	l.balances[to] = next
	return nil
}
