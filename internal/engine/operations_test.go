package engine

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/cdpengine/internal/domain"
)

func collateralOf(t *testing.T, env *testEnv, user, asset common.Address) *uint256.Int {
	t.Helper()
	v, err := env.engine.CollateralBalance(user, asset)
	require.NoError(t, err)
	return v
}

func TestDepositCollateral(t *testing.T) {
	env := newTestEnv()
	env.collateral.fund(weth, alice, units(20))

	require.NoError(t, env.engine.DepositCollateral(context.Background(), alice, weth, units(15)))

	assert.Equal(t, units(15), collateralOf(t, env, alice, weth))
	assert.True(t, env.engine.DebtOf(alice).IsZero())
	assert.Equal(t, units(5), env.collateral.balanceOf(weth, alice))
	assert.Equal(t, units(15), env.collateral.balanceOf(weth, engineAddr))

	value, err := env.engine.AccountCollateralValue(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, units(30000), value)

	require.Len(t, env.sink.events, 1)
	ev := env.sink.events[0]
	assert.Equal(t, domain.EventCollateralDeposited, ev.Kind)
	assert.Equal(t, alice, ev.User)
	assert.Equal(t, weth, ev.Asset)
	assert.Equal(t, units(15).Dec(), ev.Amount)
	assert.Equal(t, testNow, ev.Timestamp)
	assert.NotEmpty(t, ev.TxID)

	require.NoError(t, env.engine.DepositCollateral(context.Background(), alice, weth, units(5)))
	assert.Equal(t, units(20), collateralOf(t, env, alice, weth))
}

func TestDepositCollateral_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		asset   common.Address
		amount  *uint256.Int
		wantErr error
	}{
		{name: "zero amount", asset: weth, amount: new(uint256.Int), wantErr: ErrNeedsMoreThanZero},
		{name: "nil amount", asset: weth, amount: nil, wantErr: ErrNeedsMoreThanZero},
		{name: "unsupported asset", asset: bob, amount: units(1), wantErr: ErrUnsupportedAsset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.collateral.fund(weth, alice, units(1))

			err := env.engine.DepositCollateral(context.Background(), alice, tt.asset, tt.amount)
			require.ErrorIs(t, err, tt.wantErr)

			assert.True(t, collateralOf(t, env, alice, weth).IsZero())
			assert.Equal(t, units(1), env.collateral.balanceOf(weth, alice))
			assert.Empty(t, env.sink.events)
			assert.Empty(t, env.engine.Accounts())
		})
	}
}

func TestDepositCollateral_TransferFailure(t *testing.T) {
	env := newTestEnv()

	// alice holds nothing, so the pull is refused
	err := env.engine.DepositCollateral(context.Background(), alice, weth, units(1))
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.True(t, collateralOf(t, env, alice, weth).IsZero())
	assert.Empty(t, env.sink.events)

	env.collateral.fund(weth, alice, units(1))
	env.collateral.refuseTransferFrom = true
	err = env.engine.DepositCollateral(context.Background(), alice, weth, units(1))
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.True(t, collateralOf(t, env, alice, weth).IsZero())
	assert.Equal(t, units(1), env.collateral.balanceOf(weth, alice))
}

func TestMintDebt(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.collateral.fund(weth, alice, units(10))
	require.NoError(t, env.engine.DepositCollateral(ctx, alice, weth, units(10)))

	// $20000 of collateral supports exactly $10000 of debt
	require.NoError(t, env.engine.MintDebt(ctx, alice, units(10000)))
	assert.Equal(t, units(10000), env.engine.DebtOf(alice))
	assert.Equal(t, units(10000), env.stablecoin.balanceOf(alice))

	hf, err := env.engine.HealthFactor(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, MinHealthFactor(), hf)

	last := env.sink.events[len(env.sink.events)-1]
	assert.Equal(t, domain.EventDebtMinted, last.Kind)
	assert.Equal(t, units(10000).Dec(), last.Amount)
}

func TestMintDebt_BreaksHealthFactor(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.collateral.fund(weth, alice, units(10))
	require.NoError(t, env.engine.DepositCollateral(ctx, alice, weth, units(10)))
	events := len(env.sink.events)

	err := env.engine.MintDebt(ctx, alice, units(10001))
	require.ErrorIs(t, err, ErrBreaksHealthFactor)

	var hfErr *BreaksHealthFactorError
	require.True(t, errors.As(err, &hfErr))
	assert.True(t, hfErr.HealthFactor.Lt(MinHealthFactor()))
	assert.Equal(t, uint256.NewInt(999900009999000099), hfErr.HealthFactor)

	assert.True(t, env.engine.DebtOf(alice).IsZero())
	assert.True(t, env.stablecoin.supply.IsZero())
	assert.Len(t, env.sink.events, events)
}

func TestMintDebt_WithoutCollateral(t *testing.T) {
	env := newTestEnv()

	err := env.engine.MintDebt(context.Background(), alice, units(1))
	require.ErrorIs(t, err, ErrBreaksHealthFactor)

	require.ErrorIs(t, env.engine.MintDebt(context.Background(), alice, new(uint256.Int)), ErrNeedsMoreThanZero)
}

func TestDepositCollateralAndMint_MintFailureRefundsCollateral(t *testing.T) {
	env := newTestEnv()
	env.collateral.fund(weth, alice, units(10))
	env.stablecoin.refuseMint = true

	err := env.engine.DepositCollateralAndMint(context.Background(), alice, weth, units(10), units(1000))
	require.ErrorIs(t, err, ErrMintFailed)

	assert.True(t, collateralOf(t, env, alice, weth).IsZero())
	assert.True(t, env.engine.DebtOf(alice).IsZero())
	assert.Equal(t, units(10), env.collateral.balanceOf(weth, alice), "pulled collateral is refunded")
	assert.True(t, env.collateral.balanceOf(weth, engineAddr).IsZero())
	assert.Empty(t, env.sink.events)
}

func TestDepositCollateralAndMint(t *testing.T) {
	env := newTestEnv()
	env.collateral.fund(weth, alice, units(10))

	require.NoError(t, env.engine.DepositCollateralAndMint(context.Background(), alice, weth, units(10), units(4000)))
	assert.Equal(t, units(10), collateralOf(t, env, alice, weth))
	assert.Equal(t, units(4000), env.engine.DebtOf(alice))
	assert.Equal(t, units(4000), env.stablecoin.balanceOf(alice))

	require.Len(t, env.sink.events, 2)
	assert.Equal(t, domain.EventCollateralDeposited, env.sink.events[0].Kind)
	assert.Equal(t, domain.EventDebtMinted, env.sink.events[1].Kind)
	assert.Equal(t, env.sink.events[0].TxID, env.sink.events[1].TxID, "one unit of work")
}

func TestRedeemCollateral(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.collateral.fund(weth, alice, units(10))
	require.NoError(t, env.engine.DepositCollateralAndMint(ctx, alice, weth, units(10), units(5000)))

	require.NoError(t, env.engine.RedeemCollateral(ctx, alice, weth, units(5)))
	assert.Equal(t, units(5), collateralOf(t, env, alice, weth))
	assert.Equal(t, units(5), env.collateral.balanceOf(weth, alice))

	last := env.sink.events[len(env.sink.events)-1]
	assert.Equal(t, domain.EventCollateralRedeemed, last.Kind)
	assert.Equal(t, alice, last.From)
	assert.Equal(t, alice, last.To)
	assert.Equal(t, units(5).Dec(), last.Amount)

	hf, err := env.engine.HealthFactor(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, MinHealthFactor(), hf)
}

func TestRedeemCollateral_Rejected(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.collateral.fund(weth, alice, units(10))
	require.NoError(t, env.engine.DepositCollateralAndMint(ctx, alice, weth, units(10), units(5000)))
	events := len(env.sink.events)

	err := env.engine.RedeemCollateral(ctx, alice, weth, units(6))
	require.ErrorIs(t, err, ErrBreaksHealthFactor)

	err = env.engine.RedeemCollateral(ctx, alice, weth, units(11))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	err = env.engine.RedeemCollateral(ctx, alice, wbtc, units(1))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	err = env.engine.RedeemCollateral(ctx, alice, weth, new(uint256.Int))
	require.ErrorIs(t, err, ErrNeedsMoreThanZero)

	err = env.engine.RedeemCollateral(ctx, alice, bob, units(1))
	require.ErrorIs(t, err, ErrUnsupportedAsset)

	assert.Equal(t, units(10), collateralOf(t, env, alice, weth))
	assert.True(t, env.collateral.balanceOf(weth, alice).IsZero())
	assert.Len(t, env.sink.events, events)
}

func TestRedeemCollateral_TransferFailure(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.collateral.fund(weth, alice, units(10))
	require.NoError(t, env.engine.DepositCollateral(ctx, alice, weth, units(10)))

	cause := errors.New("token paused")
	env.collateral.transferErr = cause
	err := env.engine.RedeemCollateral(ctx, alice, weth, units(1))
	require.ErrorIs(t, err, ErrTransferFailed)
	require.ErrorIs(t, err, cause)
	assert.Equal(t, units(10), collateralOf(t, env, alice, weth))

	env.collateral.transferErr = nil
	env.collateral.refuseTransfer = true
	err = env.engine.RedeemCollateral(ctx, alice, weth, units(1))
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, units(10), collateralOf(t, env, alice, weth))
}

func TestBurnDebt(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.collateral.fund(weth, alice, units(10))
	require.NoError(t, env.engine.DepositCollateralAndMint(ctx, alice, weth, units(10), units(5000)))

	require.NoError(t, env.engine.BurnDebt(ctx, alice, units(2000)))
	assert.Equal(t, units(3000), env.engine.DebtOf(alice))
	assert.Equal(t, units(3000), env.stablecoin.balanceOf(alice))
	assert.Equal(t, units(3000), env.stablecoin.supply)
	assert.True(t, env.stablecoin.balanceOf(engineAddr).IsZero())

	last := env.sink.events[len(env.sink.events)-1]
	assert.Equal(t, domain.EventDebtBurned, last.Kind)
	assert.Equal(t, alice, last.User)
	assert.Equal(t, alice, last.From)

	err := env.engine.BurnDebt(ctx, alice, units(3001))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, units(3000), env.engine.DebtOf(alice))
}

func TestBurnDebt_BurnFailureRefundsStablecoin(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.collateral.fund(weth, alice, units(10))
	require.NoError(t, env.engine.DepositCollateralAndMint(ctx, alice, weth, units(10), units(5000)))

	env.stablecoin.burnErr = errors.New("burn paused")
	err := env.engine.BurnDebt(ctx, alice, units(2000))
	require.ErrorIs(t, err, ErrBurnFailed)

	assert.Equal(t, units(5000), env.engine.DebtOf(alice))
	assert.Equal(t, units(5000), env.stablecoin.balanceOf(alice))
	assert.True(t, env.stablecoin.balanceOf(engineAddr).IsZero())
	assert.Equal(t, units(5000), env.stablecoin.supply)
}

func TestBurnDebt_PullFailure(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.collateral.fund(weth, alice, units(10))
	require.NoError(t, env.engine.DepositCollateralAndMint(ctx, alice, weth, units(10), units(5000)))

	// alice spent her stablecoin elsewhere
	_, err := env.stablecoin.TransferFrom(ctx, alice, bob, units(5000))
	require.NoError(t, err)

	err = env.engine.BurnDebt(ctx, alice, units(1000))
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, units(5000), env.engine.DebtOf(alice))
	assert.Equal(t, units(5000), env.stablecoin.supply)
}

func TestRedeemCollateralForBurn(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.collateral.fund(weth, alice, units(10))
	require.NoError(t, env.engine.DepositCollateralAndMint(ctx, alice, weth, units(10), units(5000)))
	events := len(env.sink.events)

	require.NoError(t, env.engine.RedeemCollateralForBurn(ctx, alice, weth, units(10), units(5000)))
	assert.True(t, collateralOf(t, env, alice, weth).IsZero())
	assert.True(t, env.engine.DebtOf(alice).IsZero())
	assert.Equal(t, units(10), env.collateral.balanceOf(weth, alice))
	assert.True(t, env.stablecoin.supply.IsZero())

	emitted := env.sink.events[events:]
	require.Len(t, emitted, 2)
	assert.Equal(t, domain.EventDebtBurned, emitted[0].Kind)
	assert.Equal(t, domain.EventCollateralRedeemed, emitted[1].Kind)
}

func TestRedeemCollateralForBurn_BreaksHealthFactor(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.collateral.fund(weth, alice, units(10))
	require.NoError(t, env.engine.DepositCollateralAndMint(ctx, alice, weth, units(10), units(5000)))

	err := env.engine.RedeemCollateralForBurn(ctx, alice, weth, units(9), units(1000))
	require.ErrorIs(t, err, ErrBreaksHealthFactor)

	assert.Equal(t, units(10), collateralOf(t, env, alice, weth))
	assert.Equal(t, units(5000), env.engine.DebtOf(alice))
	assert.Equal(t, units(5000), env.stablecoin.balanceOf(alice))
}

func TestOperations_RejectReentrantCall(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.collateral.fund(weth, alice, units(20))

	var nested error
	env.collateral.onTransferFrom = func() {
		nested = env.engine.DepositCollateral(ctx, alice, weth, units(1))
	}

	require.NoError(t, env.engine.DepositCollateral(ctx, alice, weth, units(10)))
	require.ErrorIs(t, nested, ErrReentrancyDetected)
	assert.Equal(t, units(10), collateralOf(t, env, alice, weth))

	env.collateral.onTransferFrom = nil
	require.NoError(t, env.engine.DepositCollateral(ctx, alice, weth, units(1)), "guard is released after the outer call")
	assert.Equal(t, units(11), collateralOf(t, env, alice, weth))
}

func TestOperations_ReentrantCallDuringFailedUnit(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.collateral.fund(weth, alice, units(20))
	env.collateral.refuseTransferFrom = true

	var nested error
	env.collateral.onTransferFrom = func() {
		_, nested = env.engine.Liquidate(ctx, bob, weth, alice, units(1))
	}

	require.ErrorIs(t, env.engine.DepositCollateral(ctx, alice, weth, units(10)), ErrTransferFailed)
	require.ErrorIs(t, nested, ErrReentrancyDetected)

	env.collateral.onTransferFrom = nil
	env.collateral.refuseTransferFrom = false
	require.NoError(t, env.engine.DepositCollateral(ctx, alice, weth, units(10)))
}

func TestOperations_CancelledContext(t *testing.T) {
	env := newTestEnv()
	env.collateral.fund(weth, alice, units(10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.engine.DepositCollateral(ctx, alice, weth, units(10))
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, collateralOf(t, env, alice, weth).IsZero())
	assert.Equal(t, units(10), env.collateral.balanceOf(weth, alice))
}
