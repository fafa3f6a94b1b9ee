package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdictlabs/casemarket/internal/domain"
	"github.com/verdictlabs/casemarket/internal/engine"
	"github.com/verdictlabs/casemarket/internal/ledger"
)

// ---------------------------------------------------------------------------
// in-memory fakes
// ---------------------------------------------------------------------------

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeMarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
	pools   map[string]domain.LiquidityPool
	// updateErr, when set, fails the next Update call.
	updateErr error
}

func newFakeMarketStore() *fakeMarketStore {
	return &fakeMarketStore{
		markets: make(map[string]domain.Market),
		pools:   make(map[string]domain.LiquidityPool),
	}
}

func (s *fakeMarketStore) Create(_ context.Context, m domain.Market, p domain.LiquidityPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.CaseID]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[m.CaseID] = *m.Clone()
	s.pools[p.CaseID] = *p.Clone()
	return nil
}

func (s *fakeMarketStore) Update(_ context.Context, m domain.Market, p domain.LiquidityPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		err := s.updateErr
		s.updateErr = nil
		return err
	}
	if _, ok := s.markets[m.CaseID]; !ok {
		return domain.ErrNotFound
	}
	s.markets[m.CaseID] = *m.Clone()
	s.pools[p.CaseID] = *p.Clone()
	return nil
}

func (s *fakeMarketStore) GetByCaseID(_ context.Context, caseID string) (domain.Market, domain.LiquidityPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[caseID]
	if !ok {
		return domain.Market{}, domain.LiquidityPool{}, domain.ErrNotFound
	}
	p := s.pools[caseID]
	return *m.Clone(), *p.Clone(), nil
}

func (s *fakeMarketStore) ListByStatus(_ context.Context, status domain.MarketStatus, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == status {
			out = append(out, *m.Clone())
		}
	}
	return out, nil
}

func (s *fakeMarketStore) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == domain.MarketStatusActive && !now.Before(m.SettlementTime) && len(out) < limit {
			out = append(out, *m.Clone())
		}
	}
	return out, nil
}

func (s *fakeMarketStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

type fakeBetStore struct {
	mu   sync.Mutex
	bets map[string]domain.Bet
}

func newFakeBetStore() *fakeBetStore {
	return &fakeBetStore{bets: make(map[string]domain.Bet)}
}

func (s *fakeBetStore) Create(_ context.Context, b domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bets[b.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.bets[b.ID] = b
	return nil
}

func (s *fakeBetStore) GetByID(_ context.Context, id string) (domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *fakeBetStore) ListByMarket(_ context.Context, caseID string, _ domain.ListOpts) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bet
	for _, b := range s.bets {
		if b.CaseID == caseID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeBetStore) ListByUser(_ context.Context, user string, _ domain.ListOpts) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bet
	for _, b := range s.bets {
		if b.User == user {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeBetStore) MarkClaimed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Claimed {
		return domain.ErrAlreadyClaimed
	}
	b.Claimed = true
	s.bets[id] = b
	return nil
}

type fakeMarketCache struct {
	mu      sync.Mutex
	entries map[string]domain.Market
}

func newFakeMarketCache() *fakeMarketCache {
	return &fakeMarketCache{entries: make(map[string]domain.Market)}
}

func (c *fakeMarketCache) Get(_ context.Context, caseID string) (domain.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[caseID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *fakeMarketCache) Set(_ context.Context, m domain.Market) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[m.CaseID] = *m.Clone()
	return nil
}

func (c *fakeMarketCache) Invalidate(_ context.Context, caseID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, caseID)
	return nil
}

type fakePriceCache struct {
	mu     sync.Mutex
	prices map[string][]uint64
}

func newFakePriceCache() *fakePriceCache {
	return &fakePriceCache{prices: make(map[string][]uint64)}
}

func (c *fakePriceCache) SetPrices(_ context.Context, caseID string, prices []uint64, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[caseID] = append([]uint64(nil), prices...)
	return nil
}

func (c *fakePriceCache) GetPrices(_ context.Context, caseID string) ([]uint64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[caseID]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	return p, time.Time{}, nil
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{held: make(map[string]bool)}
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published: make(map[string][][]byte),
		streamed:  make(map[string][][]byte),
	}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []string
}

func (a *fakeArchiver) ArchiveSettlement(_ context.Context, m domain.Market, _ []domain.Bet) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	path := "settlements/" + m.CaseID + ".json"
	a.archived = append(a.archived, path)
	return path, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

// ---------------------------------------------------------------------------
// harness
// ---------------------------------------------------------------------------

type harness struct {
	markets  *fakeMarketStore
	bets     *fakeBetStore
	funds    *ledger.Memory
	cache    *fakeMarketCache
	prices   *fakePriceCache
	locks    *fakeLocks
	bus      *fakeBus
	archiver *fakeArchiver
	audit    *fakeAudit
	clock    *fakeClock

	marketSvc    *MarketService
	betSvc       *BetService
	liquiditySvc *LiquidityService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		markets:  newFakeMarketStore(),
		bets:     newFakeBetStore(),
		funds:    ledger.NewMemory(),
		cache:    newFakeMarketCache(),
		prices:   newFakePriceCache(),
		locks:    newFakeLocks(),
		bus:      newFakeBus(),
		archiver: &fakeArchiver{},
		audit:    &fakeAudit{},
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.marketSvc = NewMarketService(
		h.markets, h.bets, h.funds, h.cache, h.prices, h.locks, h.bus,
		h.archiver, h.audit, h.clock, logger,
	)
	h.betSvc = NewBetService(
		h.markets, h.bets, h.funds, h.locks, h.bus, h.audit, h.clock,
		h.marketSvc, logger,
	)
	h.liquiditySvc = NewLiquidityService(
		h.markets, h.funds, h.locks, h.audit, h.clock, h.marketSvc, logger,
	)
	return h
}

func (h *harness) createMarket(t *testing.T) domain.Market {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.funds.Deposit(ctx, "alice", 10_000_000_000))
	m, err := h.marketSvc.Create(ctx, engine.CreateParams{
		CaseID:           "case-1",
		Creator:          "alice",
		Oracle:           "oracle-1",
		Outcomes:         []string{"plaintiff", "defendant"},
		SettlementTime:   h.clock.now.Add(48 * time.Hour),
		InitialLiquidity: 2_000_000_000,
	})
	require.NoError(t, err)
	return m
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestCreateMovesSeedIntoEscrow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t)

	assert.Equal(t, domain.MarketStatusActive, m.Status)

	bal, err := h.funds.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(8_000_000_000), bal)

	bal, err = h.funds.Balance(ctx, ledger.EscrowAccount("case-1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000_000), bal)

	// The market is readable cache-first and prices were published.
	got, err := h.marketSvc.Get(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, m.CaseID, got.CaseID)
	assert.Len(t, h.bus.published[ChannelMarkets], 1)
	assert.Len(t, h.bus.published[ChannelPrices], 1)
}

func TestCreateInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.funds.Deposit(ctx, "alice", 100))

	_, err := h.marketSvc.Create(ctx, engine.CreateParams{
		CaseID:           "case-1",
		Creator:          "alice",
		Oracle:           "oracle-1",
		Outcomes:         []string{"yes", "no"},
		SettlementTime:   h.clock.now.Add(time.Hour),
		InitialLiquidity: 2_000_000_000,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, _, err = h.markets.GetByCaseID(ctx, "case-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPlaceBet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createMarket(t)
	require.NoError(t, h.funds.Deposit(ctx, "bob", 100_000_000))

	bet, err := h.betSvc.PlaceBet(ctx, "case-1", engine.BetParams{
		User:         "bob",
		OutcomeIndex: 0,
		Amount:       10_000_000,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(9_900_991), bet.Shares)

	bal, err := h.funds.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(90_000_000), bal)

	m, pool, err := h.markets.GetByCaseID(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.TotalBets)
	assert.Equal(t, uint64(1_010_000_000), pool.Reserves[0])

	assert.Len(t, h.bus.published[ChannelBets], 1)
	assert.Len(t, h.bus.streamed[StreamBets], 1)
}

func TestPlaceBetRefundsOnPersistFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createMarket(t)
	require.NoError(t, h.funds.Deposit(ctx, "bob", 100_000_000))

	h.markets.updateErr = errors.New("connection reset")
	_, err := h.betSvc.PlaceBet(ctx, "case-1", engine.BetParams{
		User:         "bob",
		OutcomeIndex: 0,
		Amount:       10_000_000,
	})
	require.Error(t, err)

	// Stake came back and the market never moved.
	bal, err := h.funds.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), bal)

	m, _, err := h.markets.GetByCaseID(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), m.TotalBets)
}

func TestPlaceBetLockHeld(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createMarket(t)

	unlock, err := h.locks.Acquire(ctx, "case-1", time.Second)
	require.NoError(t, err)
	defer unlock()

	_, err = h.betSvc.PlaceBet(ctx, "case-1", engine.BetParams{
		User:         "bob",
		OutcomeIndex: 0,
		Amount:       10_000_000,
	})
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestSettleAndClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createMarket(t)
	require.NoError(t, h.funds.Deposit(ctx, "bob", 100_000_000))

	bet, err := h.betSvc.PlaceBet(ctx, "case-1", engine.BetParams{
		User:         "bob",
		OutcomeIndex: 0,
		Amount:       10_000_000,
	})
	require.NoError(t, err)

	h.clock.now = h.clock.now.Add(72 * time.Hour)

	settled, err := h.marketSvc.Settle(ctx, "case-1", "oracle-1", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusSettled, settled.Status)
	assert.Equal(t, []string{"settlements/case-1.json"}, h.archiver.archived)
	assert.Len(t, h.bus.published[ChannelSettlements], 1)

	payout, err := h.betSvc.Claim(ctx, bet.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(19_213_237), payout.Net)
	assert.Equal(t, uint64(492_647), payout.Fee)

	bal, err := h.funds.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(90_000_000+19_213_237), bal)

	bal, err = h.funds.Balance(ctx, ledger.TreasuryAccount())
	require.NoError(t, err)
	assert.Equal(t, uint64(492_647), bal)

	// Second claim fails and pays nothing more.
	_, err = h.betSvc.Claim(ctx, bet.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestClaimRejectsNonOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createMarket(t)
	require.NoError(t, h.funds.Deposit(ctx, "bob", 100_000_000))

	bet, err := h.betSvc.PlaceBet(ctx, "case-1", engine.BetParams{
		User:         "bob",
		OutcomeIndex: 0,
		Amount:       10_000_000,
	})
	require.NoError(t, err)

	h.clock.now = h.clock.now.Add(72 * time.Hour)
	_, err = h.marketSvc.Settle(ctx, "case-1", "oracle-1", 0)
	require.NoError(t, err)

	_, err = h.betSvc.Claim(ctx, bet.ID, "mallory")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSettleRejectsWrongOracle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createMarket(t)

	h.clock.now = h.clock.now.Add(72 * time.Hour)
	_, err := h.marketSvc.Settle(ctx, "case-1", "mallory", 0)
	assert.ErrorIs(t, err, domain.ErrOracleNotAuthorized)
}

func TestAddAndRemoveLiquidity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createMarket(t)
	require.NoError(t, h.funds.Deposit(ctx, "lp-1", 2_000_000_000))

	minted, err := h.liquiditySvc.Add(ctx, "case-1", "lp-1", []uint64{500_000_000, 500_000_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), minted)

	bal, err := h.funds.Balance(ctx, "lp-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), bal)

	withdrawn, err := h.liquiditySvc.Remove(ctx, "case-1", "lp-1", 1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, []uint64{500_000_000, 500_000_000}, withdrawn)

	bal, err = h.funds.Balance(ctx, "lp-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000_000), bal)
}

func TestSweeperClosesExpiredMarkets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createMarket(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sweeper := NewSweeper(h.markets, h.marketSvc, h.clock, time.Second, 10, logger)

	// Nothing expired yet.
	require.NoError(t, sweeper.SweepOnce(ctx))
	m, _, err := h.markets.GetByCaseID(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusActive, m.Status)

	h.clock.now = h.clock.now.Add(72 * time.Hour)
	require.NoError(t, sweeper.SweepOnce(ctx))

	m, _, err = h.markets.GetByCaseID(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusClosed, m.Status)

	// Closed markets still settle.
	_, err = h.marketSvc.Settle(ctx, "case-1", "oracle-1", 1)
	require.NoError(t, err)
}
