package token

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Bank keeps the balances of several collateral tokens, keyed by token
// address. It is safe for concurrent use.
type Bank struct {
	mu     sync.RWMutex
	books  map[common.Address]*book
	logger *zap.Logger
}

func NewBank(logger *zap.Logger) *Bank {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bank{books: make(map[common.Address]*book), logger: logger.With(zap.String("component", "bank"))}
}

func (b *Bank) book(asset common.Address) *book {
	bk, ok := b.books[asset]
	if !ok {
		bk = newBook()
		b.books[asset] = bk
	}
	return bk
}

// Faucet mints amount of asset to to.
func (b *Bank) Faucet(asset, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return errors.New("faucet amount must be positive")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.book(asset).mint(to, amount); err != nil {
		return errors.Wrapf(err, "faucet %s", asset.Hex())
	}
	b.logger.Info("faucet", zap.String("asset", asset.Hex()), zap.String("to", to.Hex()), zap.String("amount", amount.Dec()))

	return nil
}

func (b *Bank) BalanceOf(asset, owner common.Address) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if bk, ok := b.books[asset]; ok {
		return bk.balanceOf(owner)
	}
	return new(uint256.Int)
}

func (b *Bank) TotalSupply(asset common.Address) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if bk, ok := b.books[asset]; ok {
		return bk.supply.Clone()
	}
	return new(uint256.Int)
}

func (b *Bank) Allowance(asset, owner, spender common.Address) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if bk, ok := b.books[asset]; ok {
		return bk.allowance(owner, spender)
	}
	return new(uint256.Int)
}

// Approve lets spender move up to amount of owner's asset.
func (b *Bank) Approve(asset, owner, spender common.Address, amount *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.book(asset).approve(owner, spender, amount)
}

// Transfer moves owner's own tokens.
func (b *Bank) Transfer(asset, from, to common.Address, amount *uint256.Int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.book(asset).transfer(from, to, amount)
}

// Snapshot returns non-zero balances as asset hex -> owner hex -> amount.
func (b *Bank) Snapshot() map[string]map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]map[string]string, len(b.books))
	for asset, bk := range b.books {
		if balances := bk.snapshot(); len(balances) > 0 {
			out[asset.Hex()] = balances
		}
	}
	return out
}

// Restore replaces all balances with snap. Allowances are reset.
func (b *Bank) Restore(snap map[string]map[string]string) error {
	books := make(map[common.Address]*book, len(snap))
	for assetHex, balances := range snap {
		if !common.IsHexAddress(assetHex) {
			return errors.Errorf("invalid asset %q", assetHex)
		}
		bk, err := restoreBook(balances)
		if err != nil {
			return errors.Wrapf(err, "asset %s", assetHex)
		}
		books[common.HexToAddress(assetHex)] = bk
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.books = books

	return nil
}

// Spender returns the handle through which spender moves tokens: pulls
// spend its allowance and pushes send from its own balance. The engine
// holds such a handle as its collateral transfer.
func (b *Bank) Spender(spender common.Address) *BankSpender {
	return &BankSpender{bank: b, spender: spender}
}

// BankSpender acts on a Bank as one spender.
type BankSpender struct {
	bank    *Bank
	spender common.Address
}

// TransferFrom moves amount of asset from from to to using the spender's
// allowance. It reports false if the allowance or balance is short.
func (s *BankSpender) TransferFrom(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.bank.mu.Lock()
	defer s.bank.mu.Unlock()

	ok := s.bank.book(asset).transferFrom(s.spender, from, to, amount)
	if !ok {
		s.bank.logger.Debug("transferFrom refused",
			zap.String("asset", asset.Hex()), zap.String("from", from.Hex()), zap.String("amount", amount.Dec()))
	}
	return ok, nil
}

// Transfer sends amount of asset from the spender's balance to to.
func (s *BankSpender) Transfer(ctx context.Context, asset, to common.Address, amount *uint256.Int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.bank.mu.Lock()
	defer s.bank.mu.Unlock()

	return s.bank.book(asset).transfer(s.spender, to, amount), nil
}
