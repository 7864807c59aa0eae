// Package web exposes the engine over a JSON HTTP API and streams committed
// events over SSE.
package web

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/cdpengine/config"
	"github.com/vadiminshakov/cdpengine/internal/domain"
	"github.com/vadiminshakov/cdpengine/internal/engine"
	"github.com/vadiminshakov/cdpengine/internal/services/monitor"
)

const (
	heartbeatInterval = 30 * time.Second
	streamBatchSize   = 500
)

// cdpEngine is the engine surface served over HTTP.
type cdpEngine interface {
	Address() common.Address
	DepositCollateral(ctx context.Context, user, asset common.Address, amount *uint256.Int) error
	MintDebt(ctx context.Context, user common.Address, amount *uint256.Int) error
	RedeemCollateral(ctx context.Context, user, asset common.Address, amount *uint256.Int) error
	BurnDebt(ctx context.Context, user common.Address, amount *uint256.Int) error
	DepositCollateralAndMint(ctx context.Context, user, asset common.Address, collateral, debt *uint256.Int) error
	RedeemCollateralForBurn(ctx context.Context, user, asset common.Address, collateral, debt *uint256.Int) error
	Liquidate(ctx context.Context, liquidator, asset, user common.Address, debtToCover *uint256.Int) (*engine.LiquidationResult, error)
	AccountInformation(ctx context.Context, user common.Address) (engine.AccountInfo, error)
	CollateralBalance(user, asset common.Address) (*uint256.Int, error)
	USDValue(ctx context.Context, asset common.Address, amount *uint256.Int) (*uint256.Int, error)
}

type wallet interface {
	StablecoinAddress() common.Address
	BalanceOf(token, owner common.Address) *uint256.Int
	Allowance(token, owner, spender common.Address) *uint256.Int
	Approve(token, owner, spender common.Address, amount *uint256.Int)
	Faucet(token, to common.Address, amount *uint256.Int) error
}

type healthReporter interface {
	Latest() monitor.Report
	Scan(ctx context.Context) (monitor.Report, error)
}

type eventReader interface {
	EventsAfter(index uint64, limit int) ([]domain.EventRecord, error)
}

type priceSetter interface {
	SetPrice(pair domain.Pair, price decimal.Decimal)
}

type eventNotifier interface {
	Subscribe() chan domain.Event
	Unsubscribe(ch chan domain.Event)
}

// Options wires the server to the rest of the application. Monitor, Events
// and Notifier are optional; the endpoints that need them answer 503 when
// they are absent.
type Options struct {
	Addr     string
	Assets   []config.Asset
	Engine   cdpEngine
	Wallet   wallet
	Monitor  healthReporter
	Events   eventReader
	Notifier eventNotifier
	// Faucet enables POST /api/v1/faucet.
	Faucet bool
	// Prices enables POST /api/v1/prices for operator-set prices.
	Prices priceSetter
	Logger *zap.Logger
}

// Server exposes the engine API and the event stream.
type Server struct {
	addr     string
	assets   []config.Asset
	engine   cdpEngine
	wallet   wallet
	monitor  healthReporter
	events   eventReader
	notifier eventNotifier
	faucet   bool
	prices   priceSetter
	logger   *zap.Logger

	heartbeat time.Duration
}

// NewServer creates a new web server instance.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:      opts.Addr,
		assets:    opts.Assets,
		engine:    opts.Engine,
		wallet:    opts.Wallet,
		monitor:   opts.Monitor,
		events:    opts.Events,
		notifier:  opts.Notifier,
		faucet:    opts.Faucet,
		prices:    opts.Prices,
		logger:    logger.With(zap.String("component", "web")),
		heartbeat: heartbeatInterval,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/assets", s.handleAssets)
	mux.HandleFunc("GET /api/v1/accounts/{address}", s.handleAccount)
	mux.HandleFunc("GET /api/v1/liquidatable", s.handleLiquidatable)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/events/stream", s.handleEventStream)

	mux.HandleFunc("POST /api/v1/deposit", s.handleDeposit)
	mux.HandleFunc("POST /api/v1/mint", s.handleMint)
	mux.HandleFunc("POST /api/v1/redeem", s.handleRedeem)
	mux.HandleFunc("POST /api/v1/burn", s.handleBurn)
	mux.HandleFunc("POST /api/v1/deposit-and-mint", s.handleDepositAndMint)
	mux.HandleFunc("POST /api/v1/redeem-for-burn", s.handleRedeemForBurn)
	mux.HandleFunc("POST /api/v1/liquidate", s.handleLiquidate)
	mux.HandleFunc("POST /api/v1/approve", s.handleApprove)
	if s.faucet {
		mux.HandleFunc("POST /api/v1/faucet", s.handleFaucet)
	}
	if s.prices != nil {
		mux.HandleFunc("POST /api/v1/prices", s.handleSetPrice)
	}

	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting http api", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via ACME.
// It also starts an HTTP server on port 80 to handle ACME HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = config.DefaultTLSCacheDir
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("acme server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("acme server", zap.Error(err))
		}
	}()

	s.logger.Info("starting https api", zap.String("addr", s.addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
