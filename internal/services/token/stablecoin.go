package token

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Stablecoin is the synthetic USD token minted against collateral. Only the
// owner, through Authority, can mint and burn.
type Stablecoin struct {
	mu     sync.RWMutex
	owner  common.Address
	book   *book
	logger *zap.Logger
}

func NewStablecoin(owner common.Address, logger *zap.Logger) *Stablecoin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stablecoin{
		owner:  owner,
		book:   newBook(),
		logger: logger.With(zap.String("component", "stablecoin")),
	}
}

func (s *Stablecoin) Owner() common.Address { return s.owner }

func (s *Stablecoin) BalanceOf(owner common.Address) *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.book.balanceOf(owner)
}

func (s *Stablecoin) TotalSupply() *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.book.supply.Clone()
}

func (s *Stablecoin) Allowance(owner, spender common.Address) *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.book.allowance(owner, spender)
}

func (s *Stablecoin) Approve(owner, spender common.Address, amount *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.book.approve(owner, spender, amount)
}

// Transfer moves from's own stablecoin.
func (s *Stablecoin) Transfer(from, to common.Address, amount *uint256.Int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.book.transfer(from, to, amount)
}

// Snapshot returns non-zero balances keyed by owner hex.
func (s *Stablecoin) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.book.snapshot()
}

// Restore replaces all balances with snap. Allowances are reset.
func (s *Stablecoin) Restore(snap map[string]string) error {
	bk, err := restoreBook(snap)
	if err != nil {
		return errors.Wrap(err, "stablecoin")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.book = bk

	return nil
}

// Authority returns the owner's mint authority.
func (s *Stablecoin) Authority() *MintAuthority {
	return &MintAuthority{coin: s}
}

// MintAuthority acts on a Stablecoin as its owner.
type MintAuthority struct {
	coin *Stablecoin
}

func (a *MintAuthority) Mint(ctx context.Context, to common.Address, amount *uint256.Int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if amount == nil || amount.IsZero() {
		return false, nil
	}

	a.coin.mu.Lock()
	defer a.coin.mu.Unlock()

	if err := a.coin.book.mint(to, amount); err != nil {
		return false, err
	}
	a.coin.logger.Debug("minted", zap.String("to", to.Hex()), zap.String("amount", amount.Dec()))

	return true, nil
}

// Burn destroys amount of the owner's own balance.
func (a *MintAuthority) Burn(ctx context.Context, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.coin.mu.Lock()
	defer a.coin.mu.Unlock()

	if !a.coin.book.burn(a.coin.owner, amount) {
		return errors.Errorf("burn of %s exceeds owner balance %s", amount.Dec(), a.coin.book.balanceOf(a.coin.owner).Dec())
	}
	a.coin.logger.Debug("burned", zap.String("amount", amount.Dec()))

	return nil
}

// TransferFrom pulls from's stablecoin using the owner's allowance.
func (a *MintAuthority) TransferFrom(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	a.coin.mu.Lock()
	defer a.coin.mu.Unlock()

	return a.coin.book.transferFrom(a.coin.owner, from, to, amount), nil
}

// Transfer sends from the owner's balance.
func (a *MintAuthority) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	a.coin.mu.Lock()
	defer a.coin.mu.Unlock()

	return a.coin.book.transfer(a.coin.owner, to, amount), nil
}
