package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/cdpengine/internal/domain"
)

// Accounts returns every account that ever held collateral or debt, sorted
// by address.
func (e *Engine) Accounts() []common.Address {
	return e.ledger.addresses()
}

// Snapshot copies the committed ledger. Zeroed accounts are left out.
func (e *Engine) Snapshot() domain.LedgerSnapshot {
	snap := domain.LedgerSnapshot{Accounts: []domain.AccountSnapshot{}}
	for _, addr := range e.ledger.addresses() {
		r := e.ledger.accounts[addr]
		if r.isEmpty() {
			continue
		}

		acc := domain.AccountSnapshot{
			Account:    addr,
			Debt:       r.debt.Dec(),
			Collateral: make(map[string]string),
		}
		for i := range r.collateral {
			if r.collateral[i].IsZero() {
				continue
			}
			acc.Collateral[e.assets[i].Hex()] = r.collateral[i].Dec()
		}
		snap.Accounts = append(snap.Accounts, acc)
	}

	return snap
}

// Restore replaces the committed ledger with snap. The engine keeps its
// previous state if snap references an unsupported asset or holds an invalid
// amount.
func (e *Engine) Restore(snap domain.LedgerSnapshot) error {
	release, err := e.guard.enter()
	if err != nil {
		return err
	}
	defer release()

	restored := newLedger(len(e.assets))
	for _, acc := range snap.Accounts {
		debt, err := domain.ParseBaseUnits(acc.Debt)
		if err != nil {
			return errors.Wrapf(err, "debt of %s", acc.Account.Hex())
		}
		restored.setDebt(acc.Account, debt)

		for assetHex, amount := range acc.Collateral {
			if !common.IsHexAddress(assetHex) {
				return errors.Wrapf(ErrUnsupportedAsset, "asset %q", assetHex)
			}
			i, ok := e.assetIndex[common.HexToAddress(assetHex)]
			if !ok {
				return errors.Wrapf(ErrUnsupportedAsset, "asset %s", assetHex)
			}
			v, err := domain.ParseBaseUnits(amount)
			if err != nil {
				return errors.Wrapf(err, "collateral of %s", acc.Account.Hex())
			}
			restored.setCollateral(acc.Account, i, v)
		}
	}
	e.ledger = restored

	return nil
}
