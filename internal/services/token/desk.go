package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// ErrFaucetStablecoin is returned when the faucet is asked for stablecoin,
// which only the engine may mint.
var ErrFaucetStablecoin = errors.New("stablecoin can only be minted against collateral")

// Desk routes wallet operations to the collateral bank or to the stablecoin
// depending on the token address, and reports every state change to
// onChange.
type Desk struct {
	bank     *Bank
	coin     *Stablecoin
	coinAddr common.Address
	onChange func()
}

func NewDesk(bank *Bank, coin *Stablecoin, coinAddr common.Address, onChange func()) *Desk {
	if onChange == nil {
		onChange = func() {}
	}
	return &Desk{bank: bank, coin: coin, coinAddr: coinAddr, onChange: onChange}
}

// StablecoinAddress is the token address under which the stablecoin is
// addressed.
func (d *Desk) StablecoinAddress() common.Address { return d.coinAddr }

func (d *Desk) isStablecoin(token common.Address) bool {
	return token == d.coinAddr
}

func (d *Desk) BalanceOf(token, owner common.Address) *uint256.Int {
	if d.isStablecoin(token) {
		return d.coin.BalanceOf(owner)
	}
	return d.bank.BalanceOf(token, owner)
}

func (d *Desk) Allowance(token, owner, spender common.Address) *uint256.Int {
	if d.isStablecoin(token) {
		return d.coin.Allowance(owner, spender)
	}
	return d.bank.Allowance(token, owner, spender)
}

// Approve sets owner's allowance for spender on token.
func (d *Desk) Approve(token, owner, spender common.Address, amount *uint256.Int) {
	if d.isStablecoin(token) {
		d.coin.Approve(owner, spender, amount)
	} else {
		d.bank.Approve(token, owner, spender, amount)
	}
	d.onChange()
}

// Faucet credits collateral tokens out of thin air.
func (d *Desk) Faucet(token, to common.Address, amount *uint256.Int) error {
	if d.isStablecoin(token) {
		return ErrFaucetStablecoin
	}
	if err := d.bank.Faucet(token, to, amount); err != nil {
		return err
	}
	d.onChange()
	return nil
}
