package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/verdictlabs/casemarket/internal/domain"
	"github.com/verdictlabs/casemarket/internal/engine"
	"github.com/verdictlabs/casemarket/internal/ledger"
)

// BetService handles stake placement and payout claims.
type BetService struct {
	markets domain.MarketStore
	bets    domain.BetStore
	funds   domain.Ledger
	locks   domain.LockManager
	bus     domain.SignalBus
	audit   domain.AuditStore
	clock   domain.Clock
	shared  *MarketService
	logger  *slog.Logger
}

// NewBetService creates a BetService. The MarketService is shared for cache
// and price fan-out after a bet moves the market.
func NewBetService(
	markets domain.MarketStore,
	bets domain.BetStore,
	funds domain.Ledger,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	clock domain.Clock,
	shared *MarketService,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		markets: markets,
		bets:    bets,
		funds:   funds,
		locks:   locks,
		bus:     bus,
		audit:   audit,
		clock:   clock,
		shared:  shared,
		logger:  logger,
	}
}

// PlaceBet applies a stake under the market's lock. The stake moves into
// escrow before the new state is written; a failed write refunds the stake so
// funds and records never disagree.
func (s *BetService) PlaceBet(ctx context.Context, caseID string, p engine.BetParams) (domain.Bet, error) {
	unlock, err := s.locks.Acquire(ctx, caseID, defaultLockTTL)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: place on %q: %w", caseID, err)
	}
	defer unlock()

	market, pool, err := s.markets.GetByCaseID(ctx, caseID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: place on %q: %w", caseID, err)
	}

	now := s.clock.Now()
	nextMarket := market.Clone()
	nextPool := pool.Clone()
	bet, err := engine.PlaceBet(nextMarket, nextPool, p, now)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: place on %q: %w", caseID, err)
	}

	escrow := ledger.EscrowAccount(caseID)
	if err := s.funds.Transfer(ctx, p.User, escrow, p.Amount); err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: stake transfer for %q: %w", caseID, err)
	}

	if err := s.persistBet(ctx, *nextMarket, *nextPool, *bet); err != nil {
		if refundErr := s.funds.TransferFromEscrow(ctx, ledger.AuthorityFor(caseID), p.User, p.Amount); refundErr != nil {
			s.logger.ErrorContext(ctx, "bet_service: stake refund failed",
				slog.String("case_id", caseID),
				slog.String("user", p.User),
				slog.String("error", refundErr.Error()),
			)
		}
		return domain.Bet{}, err
	}

	s.shared.cacheMarket(ctx, *nextMarket)
	s.shared.publishPrices(ctx, *nextPool)
	s.publishBet(ctx, *bet)

	s.logger.InfoContext(ctx, "bet_service: bet placed",
		slog.String("bet_id", bet.ID),
		slog.String("case_id", caseID),
		slog.Uint64("amount", bet.Amount),
		slog.Uint64("shares", bet.Shares),
	)
	return *bet, nil
}

func (s *BetService) persistBet(ctx context.Context, m domain.Market, p domain.LiquidityPool, b domain.Bet) error {
	if err := s.markets.Update(ctx, m, p); err != nil {
		return fmt.Errorf("bet_service: persist market %q: %w", m.CaseID, err)
	}
	if err := s.bets.Create(ctx, b); err != nil {
		return fmt.Errorf("bet_service: persist bet %q: %w", b.ID, err)
	}
	return nil
}

// Claim pays out a winning bet. The conditional claimed-flag update is the
// mutual exclusion point: of any number of concurrent claims for the same
// bet, exactly one reaches the transfers. The net payout goes to the bet's
// owner and the fee to the platform treasury, both from the market escrow.
func (s *BetService) Claim(ctx context.Context, betID, caller string) (engine.Payout, error) {
	bet, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		return engine.Payout{}, fmt.Errorf("bet_service: claim %q: %w", betID, err)
	}
	if bet.User != caller {
		return engine.Payout{}, fmt.Errorf("bet_service: claim %q: %w", betID, domain.ErrUnauthorized)
	}

	unlock, err := s.locks.Acquire(ctx, bet.CaseID, defaultLockTTL)
	if err != nil {
		return engine.Payout{}, fmt.Errorf("bet_service: claim %q: %w", betID, err)
	}
	defer unlock()

	market, _, err := s.markets.GetByCaseID(ctx, bet.CaseID)
	if err != nil {
		return engine.Payout{}, fmt.Errorf("bet_service: claim %q: %w", betID, err)
	}

	payout, err := engine.Claim(&market, &bet)
	if err != nil {
		return engine.Payout{}, fmt.Errorf("bet_service: claim %q: %w", betID, err)
	}

	if err := s.bets.MarkClaimed(ctx, betID); err != nil {
		return engine.Payout{}, fmt.Errorf("bet_service: claim %q: %w", betID, err)
	}

	auth := ledger.AuthorityFor(bet.CaseID)
	if err := s.funds.TransferFromEscrow(ctx, auth, bet.User, payout.Net); err != nil {
		return engine.Payout{}, fmt.Errorf("bet_service: payout for %q: %w", betID, err)
	}
	if payout.Fee > 0 {
		if err := s.funds.TransferFromEscrow(ctx, auth, ledger.TreasuryAccount(), payout.Fee); err != nil {
			return engine.Payout{}, fmt.Errorf("bet_service: fee transfer for %q: %w", betID, err)
		}
	}

	if err := s.audit.Log(ctx, "bet.claimed", map[string]any{
		"bet_id":  betID,
		"case_id": bet.CaseID,
		"user":    bet.User,
		"gross":   payout.Gross,
		"fee":     payout.Fee,
		"net":     payout.Net,
	}); err != nil {
		s.logger.WarnContext(ctx, "bet_service: audit log failed",
			slog.String("bet_id", betID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "bet_service: bet claimed",
		slog.String("bet_id", betID),
		slog.Uint64("net", payout.Net),
		slog.Uint64("fee", payout.Fee),
	)
	return payout, nil
}

// Get retrieves a bet by id.
func (s *BetService) Get(ctx context.Context, betID string) (domain.Bet, error) {
	bet, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: get %q: %w", betID, err)
	}
	return bet, nil
}

// ListByMarket returns a market's bets in placement order.
func (s *BetService) ListByMarket(ctx context.Context, caseID string, opts domain.ListOpts) ([]domain.Bet, error) {
	bets, err := s.bets.ListByMarket(ctx, caseID, opts)
	if err != nil {
		return nil, fmt.Errorf("bet_service: list for market %q: %w", caseID, err)
	}
	return bets, nil
}

// ListByUser returns a user's bets, newest first.
func (s *BetService) ListByUser(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Bet, error) {
	bets, err := s.bets.ListByUser(ctx, user, opts)
	if err != nil {
		return nil, fmt.Errorf("bet_service: list for user %q: %w", user, err)
	}
	return bets, nil
}

func (s *BetService) publishBet(ctx context.Context, b domain.Bet) {
	payload, err := json.Marshal(BetEvent{
		BetID:        b.ID,
		CaseID:       b.CaseID,
		User:         b.User,
		OutcomeIndex: b.OutcomeIndex,
		Amount:       b.Amount,
		Shares:       b.Shares,
		Occurred:     b.Timestamp,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, ChannelBets, payload); err != nil {
		s.logger.WarnContext(ctx, "bet_service: publish failed",
			slog.String("channel", ChannelBets),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, StreamBets, payload); err != nil {
		s.logger.WarnContext(ctx, "bet_service: stream append failed",
			slog.String("stream", StreamBets),
			slog.String("error", err.Error()),
		)
	}
}
