package engine

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/cdpengine/internal/domain"
)

var (
	engineAddr = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	weth       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	wbtc       = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000b2")

	testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

// units returns n whole units in 18-decimal base units.
func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

func mustUnits(s string) *uint256.Int {
	v, err := domain.ParseUnits(s, domain.Decimals)
	if err != nil {
		panic(err)
	}
	return v
}

type stubPrices struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
	err    error
}

func newStubPrices() *stubPrices {
	return &stubPrices{quotes: make(map[string]domain.Quote)}
}

// set stores a whole-dollar price as an 8-decimal answer.
func (p *stubPrices) set(feed string, usd int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[feed] = domain.Quote{Answer: new(big.Int).Mul(big.NewInt(usd), big.NewInt(1e8)), UpdatedAt: testNow}
}

func (p *stubPrices) setQuote(feed string, q domain.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[feed] = q
}

func (p *stubPrices) LatestQuote(_ context.Context, feed string) (domain.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return domain.Quote{}, p.err
	}
	q, ok := p.quotes[feed]
	if !ok {
		return domain.Quote{}, errors.Errorf("no quote for %s", feed)
	}
	return q, nil
}

type balanceKey struct {
	asset common.Address
	owner common.Address
}

// fakeCollateral keeps token balances. Users are assumed to have approved
// the engine.
type fakeCollateral struct {
	balances map[balanceKey]*uint256.Int

	refuseTransferFrom bool
	refuseTransfer     bool
	transferErr        error
	onTransferFrom     func()
}

func newFakeCollateral() *fakeCollateral {
	return &fakeCollateral{balances: make(map[balanceKey]*uint256.Int)}
}

func (c *fakeCollateral) fund(asset, owner common.Address, amount *uint256.Int) {
	c.balances[balanceKey{asset, owner}] = new(uint256.Int).Add(c.balanceOf(asset, owner), amount)
}

func (c *fakeCollateral) balanceOf(asset, owner common.Address) *uint256.Int {
	if v, ok := c.balances[balanceKey{asset, owner}]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func (c *fakeCollateral) move(asset, from, to common.Address, amount *uint256.Int) bool {
	bal := c.balanceOf(asset, from)
	if bal.Lt(amount) {
		return false
	}
	c.balances[balanceKey{asset, from}] = new(uint256.Int).Sub(bal, amount)
	c.balances[balanceKey{asset, to}] = new(uint256.Int).Add(c.balanceOf(asset, to), amount)
	return true
}

func (c *fakeCollateral) TransferFrom(_ context.Context, asset, from, to common.Address, amount *uint256.Int) (bool, error) {
	if c.onTransferFrom != nil {
		c.onTransferFrom()
	}
	if c.refuseTransferFrom {
		return false, nil
	}
	return c.move(asset, from, to, amount), nil
}

func (c *fakeCollateral) Transfer(_ context.Context, asset, to common.Address, amount *uint256.Int) (bool, error) {
	if c.transferErr != nil {
		return false, c.transferErr
	}
	if c.refuseTransfer {
		return false, nil
	}
	return c.move(asset, engineAddr, to, amount), nil
}

// fakeStablecoin is a stablecoin ledger whose mint authority is the engine.
type fakeStablecoin struct {
	balances map[common.Address]*uint256.Int
	supply   *uint256.Int

	refuseMint bool
	burnErr    error
}

func newFakeStablecoin() *fakeStablecoin {
	return &fakeStablecoin{balances: make(map[common.Address]*uint256.Int), supply: new(uint256.Int)}
}

func (s *fakeStablecoin) balanceOf(owner common.Address) *uint256.Int {
	if v, ok := s.balances[owner]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func (s *fakeStablecoin) move(from, to common.Address, amount *uint256.Int) bool {
	bal := s.balanceOf(from)
	if bal.Lt(amount) {
		return false
	}
	s.balances[from] = new(uint256.Int).Sub(bal, amount)
	s.balances[to] = new(uint256.Int).Add(s.balanceOf(to), amount)
	return true
}

func (s *fakeStablecoin) Mint(_ context.Context, to common.Address, amount *uint256.Int) (bool, error) {
	if s.refuseMint {
		return false, nil
	}
	s.balances[to] = new(uint256.Int).Add(s.balanceOf(to), amount)
	s.supply.Add(s.supply, amount)
	return true, nil
}

func (s *fakeStablecoin) Burn(_ context.Context, amount *uint256.Int) error {
	if s.burnErr != nil {
		return s.burnErr
	}
	bal := s.balanceOf(engineAddr)
	if bal.Lt(amount) {
		return errors.New("burn exceeds balance")
	}
	s.balances[engineAddr] = new(uint256.Int).Sub(bal, amount)
	s.supply.Sub(s.supply, amount)
	return nil
}

func (s *fakeStablecoin) TransferFrom(_ context.Context, from, to common.Address, amount *uint256.Int) (bool, error) {
	return s.move(from, to, amount), nil
}

func (s *fakeStablecoin) Transfer(_ context.Context, to common.Address, amount *uint256.Int) (bool, error) {
	return s.move(engineAddr, to, amount), nil
}

type recordingSink struct {
	events []domain.Event
}

func (r *recordingSink) Publish(event domain.Event) error {
	r.events = append(r.events, event)
	return nil
}

type testEnv struct {
	engine     *Engine
	prices     *stubPrices
	collateral *fakeCollateral
	stablecoin *fakeStablecoin
	sink       *recordingSink
}

// newTestEnv builds an engine accepting weth (ETH_USD at $2000) and wbtc
// (BTC_USD at $60000).
func newTestEnv(opts ...Option) *testEnv {
	env := &testEnv{
		prices:     newStubPrices(),
		collateral: newFakeCollateral(),
		stablecoin: newFakeStablecoin(),
		sink:       &recordingSink{},
	}
	env.prices.set("ETH_USD", 2000)
	env.prices.set("BTC_USD", 60000)

	opts = append([]Option{WithClock(func() time.Time { return testNow }), WithEventSinks(env.sink)}, opts...)
	e, err := New(Config{
		Address:     engineAddr,
		Assets:      []common.Address{weth, wbtc},
		PriceFeeds:  []string{"ETH_USD", "BTC_USD"},
		PriceSource: env.prices,
		Collateral:  env.collateral,
		Stablecoin:  env.stablecoin,
	}, opts...)
	if err != nil {
		panic(err)
	}
	env.engine = e

	return env
}
