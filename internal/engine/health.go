package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// AccountInfo is the valuation of one account at current prices.
type AccountInfo struct {
	Debt            *uint256.Int
	CollateralValue *uint256.Int
	HealthFactor    *uint256.Int
}

// CalculateHealthFactor returns floor(collateralUSD * 50 / 100) * 1e18 / debt,
// or MaxHealthFactor when debt is zero.
func CalculateHealthFactor(debt, collateralUSD *uint256.Int) (*uint256.Int, error) {
	if debt == nil || debt.IsZero() {
		return MaxHealthFactor(), nil
	}
	if collateralUSD == nil {
		collateralUSD = new(uint256.Int)
	}

	adjusted, overflow := new(uint256.Int).MulDivOverflow(collateralUSD, uint256.NewInt(LiquidationThreshold), uint256.NewInt(LiquidationPrecision))
	if overflow {
		return nil, errors.Wrap(ErrOverflow, "adjusted collateral")
	}

	hf, overflow := new(uint256.Int).MulDivOverflow(adjusted, precision, debt)
	if overflow {
		// Only reachable for dust debt against huge collateral.
		return MaxHealthFactor(), nil
	}

	return hf, nil
}

func (e *Engine) collateralValue(ctx context.Context, view ledgerView, user common.Address) (*uint256.Int, error) {
	total := new(uint256.Int)
	for i, asset := range e.assets {
		amount := view.collateralOf(user, i)
		if amount.IsZero() {
			continue
		}
		value, err := e.oracle.valueInUSD(ctx, asset, amount)
		if err != nil {
			return nil, err
		}
		if _, overflow := total.AddOverflow(total, value); overflow {
			return nil, errors.Wrapf(ErrOverflow, "collateral value of %s", user.Hex())
		}
	}

	return total, nil
}

func (e *Engine) accountInfo(ctx context.Context, view ledgerView, user common.Address) (AccountInfo, error) {
	value, err := e.collateralValue(ctx, view, user)
	if err != nil {
		return AccountInfo{}, err
	}
	debt := view.debtOf(user)
	hf, err := CalculateHealthFactor(debt, value)
	if err != nil {
		return AccountInfo{}, err
	}

	return AccountInfo{Debt: debt, CollateralValue: value, HealthFactor: hf}, nil
}

func (e *Engine) healthFactor(ctx context.Context, view ledgerView, user common.Address) (*uint256.Int, error) {
	debt := view.debtOf(user)
	if debt.IsZero() {
		return MaxHealthFactor(), nil
	}
	value, err := e.collateralValue(ctx, view, user)
	if err != nil {
		return nil, err
	}

	return CalculateHealthFactor(debt, value)
}

func (e *Engine) assertHealthy(ctx context.Context, view ledgerView, user common.Address) error {
	hf, err := e.healthFactor(ctx, view, user)
	if err != nil {
		return err
	}
	if hf.Lt(minHealthFactor) {
		return &BreaksHealthFactorError{HealthFactor: hf}
	}

	return nil
}

// HealthFactor returns the committed health factor of user.
func (e *Engine) HealthFactor(ctx context.Context, user common.Address) (*uint256.Int, error) {
	return e.healthFactor(ctx, e.ledger, user)
}

// AccountInformation returns debt, collateral value and health factor of user.
func (e *Engine) AccountInformation(ctx context.Context, user common.Address) (AccountInfo, error) {
	return e.accountInfo(ctx, e.ledger, user)
}

// AccountCollateralValue returns the 18-decimal USD value of all collateral of user.
func (e *Engine) AccountCollateralValue(ctx context.Context, user common.Address) (*uint256.Int, error) {
	return e.collateralValue(ctx, e.ledger, user)
}

// CollateralBalance returns the deposited amount of asset held for user.
func (e *Engine) CollateralBalance(user, asset common.Address) (*uint256.Int, error) {
	i, ok := e.assetIndex[asset]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedAsset, "asset %s", asset.Hex())
	}

	return e.ledger.collateralOf(user, i), nil
}

// DebtOf returns the minted debt of user.
func (e *Engine) DebtOf(user common.Address) *uint256.Int {
	return e.ledger.debtOf(user)
}

// IsLiquidatable reports whether the health factor of user is below the minimum.
func (e *Engine) IsLiquidatable(ctx context.Context, user common.Address) (bool, error) {
	hf, err := e.healthFactor(ctx, e.ledger, user)
	if err != nil {
		return false, err
	}

	return hf.Lt(minHealthFactor), nil
}
