package domain

import "github.com/holiman/uint256"

// LiquidityPool holds the AMM reserves for one market. Reserves are index
// aligned with the market's outcomes and always have the same length.
//
// KConstant is the product of all reserves as of the last liquidity-affecting
// event (creation, add/remove liquidity). It is deliberately NOT recomputed
// after a bet: the shares formula prices every trade against this snapshot
// until the next liquidity event. Recomputing it per trade would change the
// market's economics.
type LiquidityPool struct {
	CaseID        string       `json:"case_id"` // back-reference to the owning market
	Reserves      []uint64     `json:"reserves"`
	TotalLPTokens uint64       `json:"total_lp_tokens"`
	KConstant     *uint256.Int `json:"k_constant"`
}

// Clone returns a deep copy of the pool, so engine operations can compute a
// candidate next state without touching the original.
func (p *LiquidityPool) Clone() *LiquidityPool {
	cp := &LiquidityPool{
		CaseID:        p.CaseID,
		Reserves:      make([]uint64, len(p.Reserves)),
		TotalLPTokens: p.TotalLPTokens,
	}
	copy(cp.Reserves, p.Reserves)
	if p.KConstant != nil {
		cp.KConstant = new(uint256.Int).Set(p.KConstant)
	}
	return cp
}
