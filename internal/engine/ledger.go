package engine

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// accountRecord holds one account's balances. collateral is indexed by the
// asset's position in the engine config.
type accountRecord struct {
	collateral []uint256.Int
	debt       uint256.Int
}

func (r *accountRecord) isEmpty() bool {
	if !r.debt.IsZero() {
		return false
	}
	for i := range r.collateral {
		if !r.collateral[i].IsZero() {
			return false
		}
	}

	return true
}

// ledger is the committed state: an arena of account records keyed by
// account address. Records are never removed, only zeroed.
type ledger struct {
	assetCount int
	accounts   map[common.Address]*accountRecord
}

func newLedger(assetCount int) *ledger {
	return &ledger{
		assetCount: assetCount,
		accounts:   make(map[common.Address]*accountRecord),
	}
}

// ledgerView is read access shared by the committed ledger and a pending
// unit of work.
type ledgerView interface {
	collateralOf(user common.Address, asset int) *uint256.Int
	debtOf(user common.Address) *uint256.Int
}

func (l *ledger) collateralOf(user common.Address, asset int) *uint256.Int {
	r, ok := l.accounts[user]
	if !ok {
		return new(uint256.Int)
	}

	return r.collateral[asset].Clone()
}

func (l *ledger) debtOf(user common.Address) *uint256.Int {
	r, ok := l.accounts[user]
	if !ok {
		return new(uint256.Int)
	}

	return r.debt.Clone()
}

func (l *ledger) record(user common.Address) *accountRecord {
	r, ok := l.accounts[user]
	if !ok {
		r = &accountRecord{collateral: make([]uint256.Int, l.assetCount)}
		l.accounts[user] = r
	}

	return r
}

func (l *ledger) setCollateral(user common.Address, asset int, v *uint256.Int) {
	l.record(user).collateral[asset].Set(v)
}

func (l *ledger) setDebt(user common.Address, v *uint256.Int) {
	l.record(user).debt.Set(v)
}

// addresses returns every account with a record, sorted by address.
func (l *ledger) addresses() []common.Address {
	out := make([]common.Address, 0, len(l.accounts))
	for addr := range l.accounts {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})

	return out
}
