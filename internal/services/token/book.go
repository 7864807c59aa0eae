// Package token implements in-process reference tokens: a multi-asset Bank
// holding collateral tokens and a Stablecoin whose supply is controlled by a
// single mint authority. Both follow ERC-20 balance and allowance rules.
package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// book holds the balances and allowances of one token. It does no locking.
type book struct {
	balances   map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	supply     uint256.Int
}

func newBook() *book {
	return &book{
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
	}
}

func (b *book) balanceOf(owner common.Address) *uint256.Int {
	if v, ok := b.balances[owner]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func (b *book) allowance(owner, spender common.Address) *uint256.Int {
	if v, ok := b.allowances[allowanceKey{owner, spender}]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func (b *book) approve(owner, spender common.Address, amount *uint256.Int) {
	b.allowances[allowanceKey{owner, spender}] = amount.Clone()
}

func (b *book) mint(to common.Address, amount *uint256.Int) error {
	supply, overflow := new(uint256.Int).AddOverflow(&b.supply, amount)
	if overflow {
		return errors.New("total supply overflows")
	}
	b.supply.Set(supply)
	b.balances[to] = new(uint256.Int).Add(b.balanceOf(to), amount)

	return nil
}

func (b *book) burn(from common.Address, amount *uint256.Int) bool {
	bal := b.balanceOf(from)
	if bal.Lt(amount) {
		return false
	}
	b.balances[from] = bal.Sub(bal, amount)
	b.supply.Sub(&b.supply, amount)

	return true
}

// transfer moves amount and reports false if from cannot cover it.
func (b *book) transfer(from, to common.Address, amount *uint256.Int) bool {
	bal := b.balanceOf(from)
	if bal.Lt(amount) {
		return false
	}
	b.balances[from] = bal.Sub(bal, amount)
	b.balances[to] = new(uint256.Int).Add(b.balanceOf(to), amount)

	return true
}

// transferFrom spends the allowance spender holds over from.
// An all-ones allowance is never decremented.
func (b *book) transferFrom(spender, from, to common.Address, amount *uint256.Int) bool {
	allowed := b.allowance(from, spender)
	if allowed.Lt(amount) {
		return false
	}
	if !b.transfer(from, to, amount) {
		return false
	}
	if !allowed.Eq(new(uint256.Int).SetAllOne()) {
		b.allowances[allowanceKey{from, spender}] = allowed.Sub(allowed, amount)
	}

	return true
}

func (b *book) snapshot() map[string]string {
	out := make(map[string]string, len(b.balances))
	for owner, v := range b.balances {
		if v.IsZero() {
			continue
		}
		out[owner.Hex()] = v.Dec()
	}
	return out
}

func restoreBook(balances map[string]string) (*book, error) {
	b := newBook()
	for ownerHex, amount := range balances {
		if !common.IsHexAddress(ownerHex) {
			return nil, errors.Errorf("invalid owner %q", ownerHex)
		}
		v, err := uint256.FromDecimal(amount)
		if err != nil {
			return nil, errors.Wrapf(err, "balance of %s", ownerHex)
		}
		if err := b.mint(common.HexToAddress(ownerHex), v); err != nil {
			return nil, err
		}
	}
	return b, nil
}
