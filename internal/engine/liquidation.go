package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cdpengine/internal/domain"
)

// LiquidationResult describes a committed liquidation.
type LiquidationResult struct {
	User         common.Address
	Liquidator   common.Address
	Asset        common.Address
	DebtCovered  *uint256.Int
	Seized       *uint256.Int
	Bonus        *uint256.Int
	HealthBefore *uint256.Int
	HealthAfter  *uint256.Int
}

// Liquidate repays debtToCover of user's debt with the liquidator's
// stablecoin and transfers the USD equivalent of asset collateral plus
// LiquidationBonus percent to the liquidator. user must be below the minimum
// health factor, must end strictly healthier, and the liquidator must remain
// healthy.
func (e *Engine) Liquidate(ctx context.Context, liquidator, asset, user common.Address, debtToCover *uint256.Int) (*LiquidationResult, error) {
	var res *LiquidationResult
	err := e.execute(ctx, "liquidate", func(u *unitOfWork) error {
		if debtToCover == nil || debtToCover.IsZero() {
			return ErrNeedsMoreThanZero
		}
		if _, err := u.index(asset); err != nil {
			return err
		}

		before, err := e.healthFactor(ctx, u, user)
		if err != nil {
			return err
		}
		if !before.Lt(minHealthFactor) {
			return errors.Wrapf(ErrHealthFactorOk, "health factor of %s is %s", user.Hex(), domain.FormatUnits(before, domain.Decimals))
		}

		seized, err := e.oracle.quantityForUSD(ctx, asset, debtToCover)
		if err != nil {
			return err
		}
		bonus, _ := new(uint256.Int).MulDivOverflow(seized, uint256.NewInt(LiquidationBonus), uint256.NewInt(LiquidationPrecision))
		total, overflow := new(uint256.Int).AddOverflow(seized, bonus)
		if overflow {
			return errors.Wrapf(ErrOverflow, "seized collateral %s", seized.Dec())
		}

		if err := e.stageRedeem(u, user, liquidator, asset, total); err != nil {
			return err
		}
		if err := e.stageBurn(u, user, liquidator, debtToCover); err != nil {
			return err
		}

		after, err := e.healthFactor(ctx, u, user)
		if err != nil {
			return err
		}
		if !after.Gt(before) {
			return errors.Wrapf(ErrHealthFactorNotImproved, "health factor of %s went from %s to %s", user.Hex(),
				domain.FormatUnits(before, domain.Decimals), domain.FormatUnits(after, domain.Decimals))
		}
		if err := e.assertHealthy(ctx, u, liquidator); err != nil {
			return err
		}

		u.emit(domain.NewLiquidated(user, liquidator, asset, debtToCover, total, before, after))
		res = &LiquidationResult{
			User:         user,
			Liquidator:   liquidator,
			Asset:        asset,
			DebtCovered:  debtToCover.Clone(),
			Seized:       total,
			Bonus:        bonus,
			HealthBefore: before,
			HealthAfter:  after,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("account liquidated",
		zap.String("user", user.Hex()),
		zap.String("liquidator", liquidator.Hex()),
		zap.String("asset", asset.Hex()),
		zap.String("debt_covered", res.DebtCovered.Dec()),
		zap.String("seized", res.Seized.Dec()))

	return res, nil
}
