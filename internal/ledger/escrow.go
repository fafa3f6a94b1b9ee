// Package ledger provides custody accounting for market funds: deterministic
// escrow account derivation and a balance ledger that moves stakes in and
// payouts out under the market's escrow authority.
package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/verdictlabs/casemarket/internal/domain"
)

// Derivation tags separate the escrow and treasury address spaces from any
// other hash use.
var (
	escrowDomainTag   = []byte("casemarket/escrow/v1")
	treasuryDomainTag = []byte("casemarket/treasury/v1")
)

// EscrowAccount derives the escrow account address for a market. The
// derivation is deterministic over the case id, so any component can recompute
// it without a lookup: keccak256(tag || caseID), taken as an address.
func EscrowAccount(caseID string) string {
	h := crypto.Keccak256(escrowDomainTag, []byte(caseID))
	return common.BytesToAddress(h[12:]).Hex()
}

// TreasuryAccount is the platform account that collects claim fees.
func TreasuryAccount() string {
	h := crypto.Keccak256(treasuryDomainTag)
	return common.BytesToAddress(h[12:]).Hex()
}

// AuthorityFor issues the withdrawal capability for a market's escrow.
// Handed only to the settlement path, never to request handlers.
func AuthorityFor(caseID string) domain.EscrowAuthority {
	return domain.EscrowAuthority{
		CaseID: caseID,
		Escrow: EscrowAccount(caseID),
	}
}
