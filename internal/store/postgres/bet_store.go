package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdictlabs/casemarket/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

var _ domain.BetStore = (*BetStore)(nil)

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// Create inserts a bet record.
func (s *BetStore) Create(ctx context.Context, b domain.Bet) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bets (
			id, case_id, user_account, outcome_index,
			amount, shares, entry_price, seq, claimed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.CaseID, b.User, int16(b.OutcomeIndex),
		int64(b.Amount), int64(b.Shares), int64(b.EntryPrice), int64(b.Seq),
		b.Claimed, b.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create bet %s: %w", b.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create bet %s: %w", b.ID, err)
	}
	return nil
}

const betCols = `id, case_id, user_account, outcome_index,
	amount, shares, entry_price, seq, claimed, created_at`

// GetByID retrieves a bet by its identifier.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+betCols+` FROM bets WHERE id = $1`, id)
	b, err := scanBet(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

// ListByMarket returns a market's bets in placement order.
func (s *BetStore) ListByMarket(ctx context.Context, caseID string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets WHERE case_id = $1 ORDER BY seq ASC`
	args := []any{caseID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for market %s: %w", caseID, err)
	}
	defer rows.Close()

	return collectBets(rows)
}

// ListByUser returns a user's bets, newest first.
func (s *BetStore) ListByUser(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets WHERE user_account = $1 ORDER BY created_at DESC`
	args := []any{user}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for user %s: %w", user, err)
	}
	defer rows.Close()

	return collectBets(rows)
}

// MarkClaimed flips the claimed flag exactly once. The conditional update
// makes concurrent claims race on the database row: exactly one sees a
// rows-affected of 1, every other caller gets ErrAlreadyClaimed.
func (s *BetStore) MarkClaimed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET claimed = TRUE WHERE id = $1 AND claimed = FALSE`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark bet %s claimed: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM bets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check bet %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrAlreadyClaimed
}

func scanBet(row pgx.Row) (domain.Bet, error) {
	var (
		b          domain.Bet
		outcome    int16
		amount     int64
		shares     int64
		entryPrice int64
		seq        int64
	)
	err := row.Scan(
		&b.ID, &b.CaseID, &b.User, &outcome,
		&amount, &shares, &entryPrice, &seq, &b.Claimed, &b.Timestamp,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	b.OutcomeIndex = uint8(outcome)
	b.Amount = uint64(amount)
	b.Shares = uint64(shares)
	b.EntryPrice = uint64(entryPrice)
	b.Seq = uint64(seq)
	return b, nil
}

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: bet rows: %w", err)
	}
	return bets, nil
}
