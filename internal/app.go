package internal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/cdpengine/config"
	"github.com/vadiminshakov/cdpengine/internal/domain"
	"github.com/vadiminshakov/cdpengine/internal/engine"
	"github.com/vadiminshakov/cdpengine/internal/events"
	"github.com/vadiminshakov/cdpengine/internal/services/monitor"
	"github.com/vadiminshakov/cdpengine/internal/services/pricer"
	"github.com/vadiminshakov/cdpengine/internal/services/token"
	"github.com/vadiminshakov/cdpengine/internal/storage/eventlog"
	"github.com/vadiminshakov/cdpengine/internal/storage/ledgerstate"
	"github.com/vadiminshakov/cdpengine/internal/web"
)

const broadcastBuffer = 256

// App wires the engine to its price source, the reference tokens, the
// persistence layers, the health monitor and the HTTP API.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	engine      *engine.Serialized
	bank        *token.Bank
	coin        *token.Stablecoin
	desk        *token.Desk
	journal     *eventlog.WALStore
	broadcaster *events.Broadcaster
	state       *ledgerstate.Store
	monitor     *monitor.Monitor
	server      *web.Server
}

// NewApp builds the application and restores the last saved state.
func NewApp(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	client, err := newClient(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create price client")
	}
	provider, err := newServiceProvider(client, logger)
	if err != nil {
		return nil, err
	}
	prices, err := provider.Pricer()
	if err != nil {
		return nil, errors.Wrap(err, "create pricer")
	}

	a.bank = token.NewBank(logger)
	a.coin = token.NewStablecoin(cfg.EngineAddress, logger)
	a.broadcaster = events.NewBroadcaster(broadcastBuffer)

	if a.journal, err = eventlog.NewWALStore(cfg.WALDir); err != nil {
		return nil, err
	}
	if a.state, err = ledgerstate.NewStore(cfg.StatePath); err != nil {
		_ = a.journal.Close()
		return nil, err
	}

	e, err := engine.New(engine.Config{
		Address:     cfg.EngineAddress,
		Assets:      cfg.AssetAddresses(),
		PriceFeeds:  cfg.Feeds(),
		PriceSource: pricer.NewSource(prices),
		Collateral:  a.bank.Spender(cfg.EngineAddress),
		Stablecoin:  a.coin.Authority(),
	},
		engine.WithLogger(logger),
		engine.WithEventSinks(a.journal, a.broadcaster),
		engine.WithMaxQuoteAge(cfg.MaxQuoteAge),
	)
	if err != nil {
		_ = a.journal.Close()
		return nil, errors.Wrap(err, "create engine")
	}

	if err := a.restore(e); err != nil {
		_ = a.journal.Close()
		return nil, err
	}

	a.engine = engine.NewSerialized(e, a.persist)
	a.desk = token.NewDesk(a.bank, a.coin, cfg.StablecoinAddress, func() { a.engine.Exclusive(a.persist) })
	a.monitor = monitor.New(a.engine, cfg.MonitorInterval, logger)

	opts := web.Options{
		Addr:     cfg.HTTPAddr,
		Assets:   cfg.Assets,
		Engine:   a.engine,
		Wallet:   a.desk,
		Monitor:  a.monitor,
		Events:   a.journal,
		Notifier: a.broadcaster,
		Faucet:   cfg.Simulate(),
		Logger:   logger,
	}
	if static, ok := client.(*pricer.StaticPricer); ok {
		opts.Prices = static
	}
	a.server = web.NewServer(opts)

	return a, nil
}

// restore loads the saved ledger and token balances into e, or applies the
// configured faucet grants when nothing was saved yet.
func (a *App) restore(e *engine.Engine) error {
	saved, err := a.state.Load()
	if err != nil {
		return err
	}

	if saved == nil {
		for _, g := range a.cfg.Faucet {
			amount, err := domain.ParseUnits(g.Amount.String(), domain.Decimals)
			if err != nil {
				return errors.Wrapf(err, "faucet grant for %s", g.Account.Hex())
			}
			if err := a.bank.Faucet(g.Asset, g.Account, amount); err != nil {
				return err
			}
		}
		a.persist(e.Snapshot())
		return nil
	}

	if err := a.bank.Restore(saved.Collateral); err != nil {
		return errors.Wrap(err, "restore collateral tokens")
	}
	if err := a.coin.Restore(saved.Stablecoin); err != nil {
		return errors.Wrap(err, "restore stablecoin")
	}
	if err := e.Restore(saved.Ledger); err != nil {
		return errors.Wrap(err, "restore ledger")
	}

	a.logger.Info("state restored",
		zap.String("path", a.state.Path()),
		zap.Time("saved_at", saved.SavedAt),
		zap.Int("accounts", len(saved.Ledger.Accounts)))

	return nil
}

// persist saves the ledger with the current token balances. It runs under
// the engine write lock, so saves are ordered with commits.
func (a *App) persist(snap domain.LedgerSnapshot) {
	state := ledgerstate.State{
		SavedAt:    time.Now().UTC(),
		Ledger:     snap,
		Collateral: a.bank.Snapshot(),
		Stablecoin: a.coin.Snapshot(),
	}
	if err := a.state.Save(state); err != nil {
		a.logger.Error("failed to save state", zap.String("path", a.state.Path()), zap.Error(err))
	}
}

// Engine returns the serialized engine.
func (a *App) Engine() *engine.Serialized { return a.engine }

// Desk returns the token wallet desk.
func (a *App) Desk() *token.Desk { return a.desk }

// Run starts the health monitor and the HTTP API and blocks until ctx is
// done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("failed to close event log", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.monitor.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if len(a.cfg.TLSDomains) > 0 {
			return a.server.StartWithAutoTLS(gctx, a.cfg.TLSDomains, a.cfg.TLSCacheDir)
		}
		return a.server.Start(gctx)
	})

	a.logger.Info("engine started",
		zap.String("platform", a.cfg.Platform),
		zap.String("engine", a.cfg.EngineAddress.Hex()),
		zap.Int("assets", len(a.cfg.Assets)))

	return g.Wait()
}

// Close releases the event log without running.
func (a *App) Close() error {
	return a.journal.Close()
}
