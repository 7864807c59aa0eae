package engine

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/cdpengine/internal/domain"
)

type positionKey struct {
	user  common.Address
	asset int
}

// unitOfWork buffers ledger writes, events and collaborator calls of one
// operation. Reads see the buffered writes on top of the committed ledger.
// Nothing reaches the ledger before commit.
type unitOfWork struct {
	id         string
	now        time.Time
	base       *ledger
	assetIndex map[common.Address]int

	collateral map[positionKey]*uint256.Int
	debt       map[common.Address]*uint256.Int

	events      []domain.Event
	settlements []settlement
}

func newUnitOfWork(id string, now time.Time, base *ledger, assetIndex map[common.Address]int) *unitOfWork {
	return &unitOfWork{
		id:         id,
		now:        now,
		base:       base,
		assetIndex: assetIndex,
		collateral: make(map[positionKey]*uint256.Int),
		debt:       make(map[common.Address]*uint256.Int),
	}
}

func (u *unitOfWork) collateralOf(user common.Address, asset int) *uint256.Int {
	if v, ok := u.collateral[positionKey{user: user, asset: asset}]; ok {
		return v.Clone()
	}

	return u.base.collateralOf(user, asset)
}

func (u *unitOfWork) debtOf(user common.Address) *uint256.Int {
	if v, ok := u.debt[user]; ok {
		return v.Clone()
	}

	return u.base.debtOf(user)
}

func (u *unitOfWork) index(asset common.Address) (int, error) {
	i, ok := u.assetIndex[asset]
	if !ok {
		return 0, errors.Wrapf(ErrUnsupportedAsset, "asset %s", asset.Hex())
	}

	return i, nil
}

func (u *unitOfWork) deposit(user, asset common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrNeedsMoreThanZero
	}
	i, err := u.index(asset)
	if err != nil {
		return err
	}

	balance, overflow := new(uint256.Int).AddOverflow(u.collateralOf(user, i), amount)
	if overflow {
		return errors.Wrapf(ErrOverflow, "collateral of %s", user.Hex())
	}
	u.collateral[positionKey{user: user, asset: i}] = balance
	u.emit(domain.NewCollateralDeposited(user, asset, amount))

	return nil
}

func (u *unitOfWork) withdraw(from, to, asset common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrNeedsMoreThanZero
	}
	i, err := u.index(asset)
	if err != nil {
		return err
	}

	current := u.collateralOf(from, i)
	if current.Lt(amount) {
		return errors.Wrapf(ErrInsufficientBalance, "collateral of %s is %s, need %s", from.Hex(), current.Dec(), amount.Dec())
	}
	u.collateral[positionKey{user: from, asset: i}] = new(uint256.Int).Sub(current, amount)
	u.emit(domain.NewCollateralRedeemed(from, to, asset, amount))

	return nil
}

func (u *unitOfWork) mintDebt(user common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrNeedsMoreThanZero
	}

	debt, overflow := new(uint256.Int).AddOverflow(u.debtOf(user), amount)
	if overflow {
		return errors.Wrapf(ErrOverflow, "debt of %s", user.Hex())
	}
	u.debt[user] = debt
	u.emit(domain.NewDebtMinted(user, amount))

	return nil
}

func (u *unitOfWork) burnDebt(onBehalfOf, payer common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrNeedsMoreThanZero
	}

	current := u.debtOf(onBehalfOf)
	if current.Lt(amount) {
		return errors.Wrapf(ErrInsufficientBalance, "debt of %s is %s, burning %s", onBehalfOf.Hex(), current.Dec(), amount.Dec())
	}
	u.debt[onBehalfOf] = new(uint256.Int).Sub(current, amount)
	u.emit(domain.NewDebtBurned(onBehalfOf, payer, amount))

	return nil
}

func (u *unitOfWork) emit(event domain.Event) {
	event.TxID = u.id
	event.Timestamp = u.now
	u.events = append(u.events, event)
}

func (u *unitOfWork) schedule(s settlement) {
	u.settlements = append(u.settlements, s)
}

// commit applies the buffered writes to the ledger.
func (u *unitOfWork) commit() {
	for key, v := range u.collateral {
		u.base.setCollateral(key.user, key.asset, v)
	}
	for user, v := range u.debt {
		u.base.setDebt(user, v)
	}
}
