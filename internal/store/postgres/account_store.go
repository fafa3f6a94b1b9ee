package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdictlabs/casemarket/internal/domain"
	"github.com/verdictlabs/casemarket/internal/ledger"
)

// AccountStore implements domain.Ledger on the accounts table. Transfers run
// as a single transaction with a conditional debit, so a transfer either moves
// the full amount or fails without touching either balance.
type AccountStore struct {
	pool *pgxpool.Pool
}

var _ domain.Ledger = (*AccountStore)(nil)

// NewAccountStore creates a new AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Deposit credits an account, creating it on first use.
func (s *AccountStore) Deposit(ctx context.Context, account string, amount uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (account, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account) DO UPDATE SET
			balance    = accounts.balance + EXCLUDED.balance,
			updated_at = NOW()`,
		account, int64(amount),
	)
	if err != nil {
		return fmt.Errorf("postgres: deposit to %s: %w", account, err)
	}
	return nil
}

// Balance returns an account's balance; unknown accounts hold zero.
func (s *AccountStore) Balance(ctx context.Context, account string) (uint64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE account = $1`, account).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: balance of %s: %w", account, err)
	}
	return uint64(balance), nil
}

// Transfer moves amount from one account to another atomically.
func (s *AccountStore) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if from == to {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	// Conditional debit: zero rows means the balance was insufficient (or the
	// account does not exist, which is the same thing here).
	tag, err := tx.Exec(ctx, `
		UPDATE accounts SET balance = balance - $2, updated_at = NOW()
		WHERE account = $1 AND balance >= $2`,
		from, int64(amount),
	)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("postgres: debit %s: %w", from, domain.ErrInsufficientFunds)
		}
		return fmt.Errorf("postgres: debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: debit %s of %d: %w", from, amount, domain.ErrInsufficientFunds)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (account, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account) DO UPDATE SET
			balance    = accounts.balance + EXCLUDED.balance,
			updated_at = NOW()`,
		to, int64(amount),
	)
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", to, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit transfer %s -> %s: %w", from, to, err)
	}
	return nil
}

// TransferFromEscrow moves payout funds out of a market escrow. The caller
// must hold the authority issued for that market at creation.
func (s *AccountStore) TransferFromEscrow(ctx context.Context, auth domain.EscrowAuthority, to string, amount uint64) error {
	if !auth.Covers(ledger.EscrowAccount(auth.CaseID)) {
		return fmt.Errorf("postgres: escrow withdrawal for %s: %w", auth.CaseID, domain.ErrUnauthorized)
	}
	return s.Transfer(ctx, auth.Escrow, to, amount)
}

// isCheckViolation reports whether err is a check-constraint violation
// (SQLSTATE 23514), raised when a balance would go negative.
func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}
