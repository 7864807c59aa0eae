package engine

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/vadiminshakov/cdpengine/internal/domain"
)

// CommitHook is called with the ledger after every committed mutation, while
// the write lock is still held.
type CommitHook func(snap domain.LedgerSnapshot)

// Serialized gives concurrent callers the one-at-a-time execution the engine
// expects from its host. Collaborators that call back into the engine during
// a unit of work must hold the *Engine, not the Serialized wrapper: the
// wrapper would block on its own lock instead of failing with
// ErrReentrancyDetected.
type Serialized struct {
	mu     sync.RWMutex
	engine *Engine
	hooks  []CommitHook
}

// NewSerialized wraps e. hooks run after each successful mutation.
func NewSerialized(e *Engine, hooks ...CommitHook) *Serialized {
	return &Serialized{engine: e, hooks: hooks}
}

func (s *Serialized) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(); err != nil {
		return err
	}
	if len(s.hooks) > 0 {
		snap := s.engine.Snapshot()
		for _, h := range s.hooks {
			h(snap)
		}
	}

	return nil
}

func (s *Serialized) DepositCollateral(ctx context.Context, user, asset common.Address, amount *uint256.Int) error {
	return s.mutate(func() error { return s.engine.DepositCollateral(ctx, user, asset, amount) })
}

func (s *Serialized) MintDebt(ctx context.Context, user common.Address, amount *uint256.Int) error {
	return s.mutate(func() error { return s.engine.MintDebt(ctx, user, amount) })
}

func (s *Serialized) RedeemCollateral(ctx context.Context, user, asset common.Address, amount *uint256.Int) error {
	return s.mutate(func() error { return s.engine.RedeemCollateral(ctx, user, asset, amount) })
}

func (s *Serialized) BurnDebt(ctx context.Context, user common.Address, amount *uint256.Int) error {
	return s.mutate(func() error { return s.engine.BurnDebt(ctx, user, amount) })
}

func (s *Serialized) DepositCollateralAndMint(ctx context.Context, user, asset common.Address, collateral, debt *uint256.Int) error {
	return s.mutate(func() error { return s.engine.DepositCollateralAndMint(ctx, user, asset, collateral, debt) })
}

func (s *Serialized) RedeemCollateralForBurn(ctx context.Context, user, asset common.Address, collateral, debt *uint256.Int) error {
	return s.mutate(func() error { return s.engine.RedeemCollateralForBurn(ctx, user, asset, collateral, debt) })
}

func (s *Serialized) Liquidate(ctx context.Context, liquidator, asset, user common.Address, debtToCover *uint256.Int) (*LiquidationResult, error) {
	var res *LiquidationResult
	err := s.mutate(func() error {
		var err error
		res, err = s.engine.Liquidate(ctx, liquidator, asset, user, debtToCover)
		return err
	})

	return res, err
}

func (s *Serialized) Restore(snap domain.LedgerSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.engine.Restore(snap)
}

func (s *Serialized) HealthFactor(ctx context.Context, user common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.engine.HealthFactor(ctx, user)
}

func (s *Serialized) AccountInformation(ctx context.Context, user common.Address) (AccountInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.engine.AccountInformation(ctx, user)
}

func (s *Serialized) CollateralBalance(user, asset common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.engine.CollateralBalance(user, asset)
}

func (s *Serialized) DebtOf(user common.Address) *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.engine.DebtOf(user)
}

func (s *Serialized) IsLiquidatable(ctx context.Context, user common.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.engine.IsLiquidatable(ctx, user)
}

func (s *Serialized) Accounts() []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.engine.Accounts()
}

func (s *Serialized) Snapshot() domain.LedgerSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.engine.Snapshot()
}

// Exclusive runs fn with the current ledger while holding the write lock,
// so that no mutation or commit hook interleaves with it.
func (s *Serialized) Exclusive(fn func(snap domain.LedgerSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.engine.Snapshot())
}

func (s *Serialized) USDValue(ctx context.Context, asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return s.engine.USDValue(ctx, asset, amount)
}

func (s *Serialized) TokenAmountFromUSD(ctx context.Context, asset common.Address, usd *uint256.Int) (*uint256.Int, error) {
	return s.engine.TokenAmountFromUSD(ctx, asset, usd)
}

// Address, CollateralAssets, PriceFeed and IsSupported read immutable config.

func (s *Serialized) Address() common.Address { return s.engine.Address() }

func (s *Serialized) CollateralAssets() []common.Address { return s.engine.CollateralAssets() }

func (s *Serialized) PriceFeed(asset common.Address) (string, bool) { return s.engine.PriceFeed(asset) }

func (s *Serialized) IsSupported(asset common.Address) bool { return s.engine.IsSupported(asset) }
