package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdictlabs/casemarket/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. A market and its
// pool are written in one transaction so readers never observe one without the
// other.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Create inserts a market together with its pool.
func (s *MarketStore) Create(ctx context.Context, m domain.Market, p domain.LiquidityPool) error {
	outcomes, err := json.Marshal(m.Outcomes)
	if err != nil {
		return fmt.Errorf("postgres: marshal outcomes for %s: %w", m.CaseID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin create market %s: %w", m.CaseID, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO markets (
			case_id, creator, oracle, outcomes,
			total_liquidity, total_bets, status, settlement_time,
			winning_outcome, fee_bps, created_at, settled_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())`,
		m.CaseID, m.Creator, m.Oracle, outcomes,
		int64(m.TotalLiquidity), int64(m.TotalBets), string(m.Status), m.SettlementTime,
		winningOutcomeArg(m.WinningOutcome), int16(m.FeeBps), m.CreatedAt, m.SettledAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create market %s: %w", m.CaseID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create market %s: %w", m.CaseID, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO pools (case_id, reserves, total_lp_tokens, k_constant, updated_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		p.CaseID, reservesToInt64(p.Reserves), int64(p.TotalLPTokens), p.KConstant.Dec(),
	)
	if err != nil {
		return fmt.Errorf("postgres: create pool %s: %w", p.CaseID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit create market %s: %w", m.CaseID, err)
	}
	return nil
}

// Update persists a new market and pool state under one transaction.
func (s *MarketStore) Update(ctx context.Context, m domain.Market, p domain.LiquidityPool) error {
	outcomes, err := json.Marshal(m.Outcomes)
	if err != nil {
		return fmt.Errorf("postgres: marshal outcomes for %s: %w", m.CaseID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin update market %s: %w", m.CaseID, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE markets SET
			outcomes        = $2,
			total_liquidity = $3,
			total_bets      = $4,
			status          = $5,
			winning_outcome = $6,
			settled_at      = $7,
			updated_at      = NOW()
		WHERE case_id = $1`,
		m.CaseID, outcomes, int64(m.TotalLiquidity), int64(m.TotalBets),
		string(m.Status), winningOutcomeArg(m.WinningOutcome), m.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.CaseID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update market %s: %w", m.CaseID, domain.ErrNotFound)
	}

	_, err = tx.Exec(ctx, `
		UPDATE pools SET
			reserves        = $2,
			total_lp_tokens = $3,
			k_constant      = $4,
			updated_at      = NOW()
		WHERE case_id = $1`,
		p.CaseID, reservesToInt64(p.Reserves), int64(p.TotalLPTokens), p.KConstant.Dec(),
	)
	if err != nil {
		return fmt.Errorf("postgres: update pool %s: %w", p.CaseID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit update market %s: %w", m.CaseID, err)
	}
	return nil
}

const marketCols = `case_id, creator, oracle, outcomes,
	total_liquidity, total_bets, status, settlement_time,
	winning_outcome, fee_bps, created_at, settled_at`

// GetByCaseID retrieves a market and its pool.
func (s *MarketStore) GetByCaseID(ctx context.Context, caseID string) (domain.Market, domain.LiquidityPool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE case_id = $1`, caseID)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.LiquidityPool{}, domain.ErrNotFound
		}
		return domain.Market{}, domain.LiquidityPool{}, fmt.Errorf("postgres: get market %s: %w", caseID, err)
	}

	var (
		p        domain.LiquidityPool
		reserves []int64
		lpTokens int64
		kDec     string
	)
	err = s.pool.QueryRow(ctx,
		`SELECT case_id, reserves, total_lp_tokens, k_constant FROM pools WHERE case_id = $1`,
		caseID,
	).Scan(&p.CaseID, &reserves, &lpTokens, &kDec)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.LiquidityPool{}, domain.ErrNotFound
		}
		return domain.Market{}, domain.LiquidityPool{}, fmt.Errorf("postgres: get pool %s: %w", caseID, err)
	}

	p.Reserves = make([]uint64, len(reserves))
	for i, r := range reserves {
		p.Reserves[i] = uint64(r)
	}
	p.TotalLPTokens = uint64(lpTokens)
	k, err := uint256.FromDecimal(kDec)
	if err != nil {
		return domain.Market{}, domain.LiquidityPool{}, fmt.Errorf("postgres: parse k for %s: %w", caseID, err)
	}
	p.KConstant = k

	return m, p, nil
}

// ListByStatus returns markets in the given status, newest first.
func (s *MarketStore) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE status = $1`
	args := []any{string(status)}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list markets by status: %w", err)
	}
	defer rows.Close()

	return collectMarkets(rows)
}

// ListExpired returns active markets whose settlement deadline has passed.
func (s *MarketStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+marketCols+` FROM markets
		WHERE status = 'active' AND settlement_time <= $1
		ORDER BY settlement_time ASC
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired markets: %w", err)
	}
	defer rows.Close()

	return collectMarkets(rows)
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m        domain.Market
		outcomes []byte
		totalLiq int64
		bets     int64
		status   string
		winning  *int16
		feeBps   int16
	)
	err := row.Scan(
		&m.CaseID, &m.Creator, &m.Oracle, &outcomes,
		&totalLiq, &bets, &status, &m.SettlementTime,
		&winning, &feeBps, &m.CreatedAt, &m.SettledAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	if err := json.Unmarshal(outcomes, &m.Outcomes); err != nil {
		return domain.Market{}, fmt.Errorf("unmarshal outcomes: %w", err)
	}
	m.TotalLiquidity = uint64(totalLiq)
	m.TotalBets = uint64(bets)
	m.Status = domain.MarketStatus(status)
	m.FeeBps = uint16(feeBps)
	if winning != nil {
		w := uint8(*winning)
		m.WinningOutcome = &w
	}
	return m, nil
}

func collectMarkets(rows pgx.Rows) ([]domain.Market, error) {
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: market rows: %w", err)
	}
	return markets, nil
}

func reservesToInt64(reserves []uint64) []int64 {
	out := make([]int64, len(reserves))
	for i, r := range reserves {
		out[i] = int64(r)
	}
	return out
}

func winningOutcomeArg(w *uint8) *int16 {
	if w == nil {
		return nil
	}
	v := int16(*w)
	return &v
}
