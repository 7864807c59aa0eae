package engine

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// settlementStage orders collaborator calls inside a unit of work. Pulls run
// first and pushes last so that only pulls and burns ever need undoing; an
// operation schedules at most one push.
type settlementStage int

const (
	stagePull settlementStage = iota
	stageBurn
	stagePush
)

// settlement is one collaborator call. undo reverses it after a later call
// of the same unit of work failed.
type settlement struct {
	stage settlementStage
	name  string
	run   func(ctx context.Context) error
	undo  func(ctx context.Context) error
}

// settle runs the scheduled calls in stage order. On failure it undoes the
// calls that already succeeded, newest first, and returns the failure.
func (e *Engine) settle(ctx context.Context, u *unitOfWork) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "settle")
	}

	sort.SliceStable(u.settlements, func(i, j int) bool {
		return u.settlements[i].stage < u.settlements[j].stage
	})

	for i, s := range u.settlements {
		if err := s.run(ctx); err != nil {
			e.compensate(ctx, u, u.settlements[:i])
			return err
		}
	}

	return nil
}

func (e *Engine) compensate(ctx context.Context, u *unitOfWork, done []settlement) {
	// undo must run even if the caller's context is already cancelled.
	ctx = context.WithoutCancel(ctx)
	for i := len(done) - 1; i >= 0; i-- {
		s := done[i]
		if s.undo == nil {
			continue
		}
		if err := s.undo(ctx); err != nil {
			e.logger.Error("failed to undo settlement",
				zap.String("tx", u.id),
				zap.String("settlement", s.name),
				zap.Error(err))
		}
	}
}

func (e *Engine) pullCollateral(from, asset common.Address, amount *uint256.Int) settlement {
	amount = amount.Clone()
	return settlement{
		stage: stagePull,
		name:  "pull_collateral",
		run: func(ctx context.Context) error {
			ok, err := e.collateral.TransferFrom(ctx, asset, from, e.address, amount)
			if err != nil || !ok {
				return withCause(ErrTransferFailed, err, "pull %s of %s from %s", amount.Dec(), asset.Hex(), from.Hex())
			}
			return nil
		},
		undo: func(ctx context.Context) error {
			ok, err := e.collateral.Transfer(ctx, asset, from, amount)
			if err != nil || !ok {
				return withCause(ErrTransferFailed, err, "refund %s of %s to %s", amount.Dec(), asset.Hex(), from.Hex())
			}
			return nil
		},
	}
}

func (e *Engine) pushCollateral(to, asset common.Address, amount *uint256.Int) settlement {
	amount = amount.Clone()
	return settlement{
		stage: stagePush,
		name:  "push_collateral",
		run: func(ctx context.Context) error {
			ok, err := e.collateral.Transfer(ctx, asset, to, amount)
			if err != nil || !ok {
				return withCause(ErrTransferFailed, err, "send %s of %s to %s", amount.Dec(), asset.Hex(), to.Hex())
			}
			return nil
		},
	}
}

func (e *Engine) pullStablecoin(from common.Address, amount *uint256.Int) settlement {
	amount = amount.Clone()
	return settlement{
		stage: stagePull,
		name:  "pull_stablecoin",
		run: func(ctx context.Context) error {
			ok, err := e.stablecoin.TransferFrom(ctx, from, e.address, amount)
			if err != nil || !ok {
				return withCause(ErrTransferFailed, err, "pull %s stablecoin from %s", amount.Dec(), from.Hex())
			}
			return nil
		},
		undo: func(ctx context.Context) error {
			ok, err := e.stablecoin.Transfer(ctx, from, amount)
			if err != nil || !ok {
				return withCause(ErrTransferFailed, err, "refund %s stablecoin to %s", amount.Dec(), from.Hex())
			}
			return nil
		},
	}
}

func (e *Engine) burnStablecoin(amount *uint256.Int) settlement {
	amount = amount.Clone()
	return settlement{
		stage: stageBurn,
		name:  "burn_stablecoin",
		run: func(ctx context.Context) error {
			if err := e.stablecoin.Burn(ctx, amount); err != nil {
				return withCause(ErrBurnFailed, err, "burn %s stablecoin", amount.Dec())
			}
			return nil
		},
		undo: func(ctx context.Context) error {
			ok, err := e.stablecoin.Mint(ctx, e.address, amount)
			if err != nil || !ok {
				return withCause(ErrMintFailed, err, "re-mint %s burned stablecoin", amount.Dec())
			}
			return nil
		},
	}
}

func (e *Engine) mintStablecoin(to common.Address, amount *uint256.Int) settlement {
	amount = amount.Clone()
	return settlement{
		stage: stagePush,
		name:  "mint_stablecoin",
		run: func(ctx context.Context) error {
			ok, err := e.stablecoin.Mint(ctx, to, amount)
			if err != nil || !ok {
				return withCause(ErrMintFailed, err, "mint %s stablecoin to %s", amount.Dec(), to.Hex())
			}
			return nil
		},
	}
}
