package domain

import "errors"

// Lifecycle and settlement errors. The first failing check aborts the whole
// operation with no partial mutation.
var (
	ErrMarketNotActive          = errors.New("market is not active")
	ErrMarketAlreadySettled     = errors.New("market already settled")
	ErrMarketNotSettled         = errors.New("market not settled yet")
	ErrSettlementTimeNotReached = errors.New("settlement time not reached")
	ErrInvalidOutcomeIndex      = errors.New("invalid outcome index")
	ErrOracleNotAuthorized      = errors.New("oracle not authorized")
)

// Bet and payout errors.
var (
	ErrBetAmountTooSmall = errors.New("bet amount too small")
	ErrBetAmountTooLarge = errors.New("bet amount too large")
	ErrSlippageExceeded  = errors.New("slippage tolerance exceeded")
	ErrAlreadyClaimed    = errors.New("winnings already claimed")
	ErrNotWinningBet     = errors.New("not a winning bet")
)

// Market creation and liquidity errors.
var (
	ErrTooManyOutcomes         = errors.New("outcome count out of range")
	ErrInsufficientLiquidity   = errors.New("insufficient initial liquidity")
	ErrInvalidLiquidityAmounts = errors.New("invalid liquidity amounts")
	ErrInsufficientLPTokens    = errors.New("insufficient lp tokens")
	ErrCaseIDTooLong           = errors.New("case id too long")
	ErrOutcomeNameTooLong      = errors.New("outcome name too long")
)

// Arithmetic errors. Every fallible numeric step is checked explicitly.
var (
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrArithmeticUnderflow = errors.New("arithmetic underflow")
)

// Ambient errors shared across stores, caches, and the custody ledger.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrLockHeld          = errors.New("lock already held")
	ErrInsufficientFunds = errors.New("insufficient funds")
)
