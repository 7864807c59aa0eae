package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DepositCollateral credits amount of asset to user and pulls it from user
// into the engine.
func (e *Engine) DepositCollateral(ctx context.Context, user, asset common.Address, amount *uint256.Int) error {
	return e.execute(ctx, "deposit_collateral", func(u *unitOfWork) error {
		return e.stageDeposit(u, user, asset, amount)
	})
}

// MintDebt records amount of new debt for user and mints the stablecoin to
// user. It fails if user would end up below the minimum health factor.
func (e *Engine) MintDebt(ctx context.Context, user common.Address, amount *uint256.Int) error {
	return e.execute(ctx, "mint_debt", func(u *unitOfWork) error {
		if err := e.stageMint(u, user, amount); err != nil {
			return err
		}
		return e.assertHealthy(ctx, u, user)
	})
}

// RedeemCollateral returns amount of asset from the engine to user.
func (e *Engine) RedeemCollateral(ctx context.Context, user, asset common.Address, amount *uint256.Int) error {
	return e.execute(ctx, "redeem_collateral", func(u *unitOfWork) error {
		if err := e.stageRedeem(u, user, user, asset, amount); err != nil {
			return err
		}
		return e.assertHealthy(ctx, u, user)
	})
}

// BurnDebt pulls amount of stablecoin from user, burns it and reduces the
// debt of user by the same amount.
func (e *Engine) BurnDebt(ctx context.Context, user common.Address, amount *uint256.Int) error {
	return e.execute(ctx, "burn_debt", func(u *unitOfWork) error {
		if err := e.stageBurn(u, user, user, amount); err != nil {
			return err
		}
		return e.assertHealthy(ctx, u, user)
	})
}

// DepositCollateralAndMint deposits collateral and mints debt in one unit of work.
func (e *Engine) DepositCollateralAndMint(ctx context.Context, user, asset common.Address, collateral, debt *uint256.Int) error {
	return e.execute(ctx, "deposit_collateral_and_mint", func(u *unitOfWork) error {
		if err := e.stageDeposit(u, user, asset, collateral); err != nil {
			return err
		}
		if err := e.stageMint(u, user, debt); err != nil {
			return err
		}
		return e.assertHealthy(ctx, u, user)
	})
}

// RedeemCollateralForBurn burns debt and redeems collateral in one unit of work.
func (e *Engine) RedeemCollateralForBurn(ctx context.Context, user, asset common.Address, collateral, debt *uint256.Int) error {
	return e.execute(ctx, "redeem_collateral_for_burn", func(u *unitOfWork) error {
		if err := e.stageBurn(u, user, user, debt); err != nil {
			return err
		}
		if err := e.stageRedeem(u, user, user, asset, collateral); err != nil {
			return err
		}
		return e.assertHealthy(ctx, u, user)
	})
}

func (e *Engine) stageDeposit(u *unitOfWork, user, asset common.Address, amount *uint256.Int) error {
	if err := u.deposit(user, asset, amount); err != nil {
		return err
	}
	u.schedule(e.pullCollateral(user, asset, amount))

	return nil
}

func (e *Engine) stageMint(u *unitOfWork, user common.Address, amount *uint256.Int) error {
	if err := u.mintDebt(user, amount); err != nil {
		return err
	}
	u.schedule(e.mintStablecoin(user, amount))

	return nil
}

func (e *Engine) stageRedeem(u *unitOfWork, from, to, asset common.Address, amount *uint256.Int) error {
	if err := u.withdraw(from, to, asset, amount); err != nil {
		return err
	}
	u.schedule(e.pushCollateral(to, asset, amount))

	return nil
}

// stageBurn reduces the debt of onBehalfOf with stablecoin paid by payer.
func (e *Engine) stageBurn(u *unitOfWork, onBehalfOf, payer common.Address, amount *uint256.Int) error {
	if err := u.burnDebt(onBehalfOf, payer, amount); err != nil {
		return err
	}
	u.schedule(e.pullStablecoin(payer, amount))
	u.schedule(e.burnStablecoin(amount))

	return nil
}
