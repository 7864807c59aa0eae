package domain

import "github.com/ethereum/go-ethereum/common"

// LedgerSnapshot is a serialisable copy of every non-empty account.
type LedgerSnapshot struct {
	Accounts []AccountSnapshot `json:"accounts"`
}

// AccountSnapshot holds one account's balances in base units.
// Collateral is keyed by the asset's hex address.
type AccountSnapshot struct {
	Account    common.Address    `json:"account"`
	Debt       string            `json:"debt"`
	Collateral map[string]string `json:"collateral,omitempty"`
}
