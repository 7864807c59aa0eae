package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind names a committed ledger change.
type EventKind string

const (
	EventCollateralDeposited EventKind = "collateral_deposited"
	EventCollateralRedeemed  EventKind = "collateral_redeemed"
	EventDebtMinted          EventKind = "debt_minted"
	EventDebtBurned          EventKind = "debt_burned"
	EventLiquidated          EventKind = "liquidated"
)

// Event is emitted by the engine once the unit of work that produced it has
// committed. Quantities are decimal strings in base units so that consumers
// never round through floats.
//
// Field usage per kind:
//   - collateral_deposited: User, Asset, Amount
//   - collateral_redeemed: From, To, Asset, Amount
//   - debt_minted: User, Amount
//   - debt_burned: User (on behalf of), From (payer), Amount
//   - liquidated: User, To (liquidator), Asset, Amount (debt covered),
//     Collateral, HealthBefore, HealthAfter
type Event struct {
	Kind         EventKind      `json:"kind"`
	TxID         string         `json:"tx_id"`
	Timestamp    time.Time      `json:"ts"`
	User         common.Address `json:"user"`
	From         common.Address `json:"from"`
	To           common.Address `json:"to"`
	Asset        common.Address `json:"asset"`
	Amount       string         `json:"amount"`
	Collateral   string         `json:"collateral,omitempty"`
	HealthBefore string         `json:"health_before,omitempty"`
	HealthAfter  string         `json:"health_after,omitempty"`
}

// NewCollateralDeposited builds a collateral_deposited event.
func NewCollateralDeposited(user, asset common.Address, amount *uint256.Int) Event {
	return Event{Kind: EventCollateralDeposited, User: user, Asset: asset, Amount: amount.Dec()}
}

// NewCollateralRedeemed builds a collateral_redeemed event.
func NewCollateralRedeemed(from, to, asset common.Address, amount *uint256.Int) Event {
	return Event{Kind: EventCollateralRedeemed, User: from, From: from, To: to, Asset: asset, Amount: amount.Dec()}
}

// NewDebtMinted builds a debt_minted event.
func NewDebtMinted(user common.Address, amount *uint256.Int) Event {
	return Event{Kind: EventDebtMinted, User: user, Amount: amount.Dec()}
}

// NewDebtBurned builds a debt_burned event.
func NewDebtBurned(onBehalfOf, payer common.Address, amount *uint256.Int) Event {
	return Event{Kind: EventDebtBurned, User: onBehalfOf, From: payer, Amount: amount.Dec()}
}

// NewLiquidated builds a liquidated event.
func NewLiquidated(user, liquidator, asset common.Address, debtCovered, seized, before, after *uint256.Int) Event {
	return Event{
		Kind:         EventLiquidated,
		User:         user,
		To:           liquidator,
		Asset:        asset,
		Amount:       debtCovered.Dec(),
		Collateral:   seized.Dec(),
		HealthBefore: before.Dec(),
		HealthAfter:  after.Dec(),
	}
}

// EventRecord bundles an event with its journal index.
type EventRecord struct {
	Index uint64
	Event Event
}
