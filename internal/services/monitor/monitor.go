// Package monitor periodically values every account at current prices and
// reports the ones that can be liquidated.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cdpengine/internal/domain"
	"github.com/vadiminshakov/cdpengine/internal/engine"
)

const DefaultInterval = time.Minute

type ledgerReader interface {
	Accounts() []common.Address
	AccountInformation(ctx context.Context, user common.Address) (engine.AccountInfo, error)
}

// AccountHealth is the valuation of one account. Amounts are 18-decimal
// human readable strings; HealthFactor is "max" for accounts without debt.
type AccountHealth struct {
	Account         common.Address `json:"account"`
	Debt            string         `json:"debt"`
	CollateralValue string         `json:"collateral_value"`
	HealthFactor    string         `json:"health_factor"`
	Liquidatable    bool           `json:"liquidatable"`
	Error           string         `json:"error,omitempty"`
}

// Report is the result of one scan.
type Report struct {
	ScannedAt    time.Time        `json:"scanned_at"`
	Accounts     []AccountHealth  `json:"accounts"`
	Liquidatable []common.Address `json:"liquidatable"`
	Failed       int              `json:"failed"`
}

type Monitor struct {
	engine   ledgerReader
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	latest Report
}

func New(e ledgerReader, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		engine:   e,
		interval: interval,
		logger:   logger.With(zap.String("component", "monitor")),
		now:      time.Now,
	}
}

// FormatHealthFactor renders hf with 18 decimals, or "max" for the
// no-debt sentinel.
func FormatHealthFactor(info engine.AccountInfo) string {
	if info.HealthFactor == nil {
		return ""
	}
	if info.HealthFactor.Eq(engine.MaxHealthFactor()) {
		return "max"
	}
	return domain.FormatUnits(info.HealthFactor, domain.Decimals)
}

// Scan values every account once and stores the report. Accounts whose
// valuation fails are reported with the error and counted in Failed.
func (m *Monitor) Scan(ctx context.Context) (Report, error) {
	report := Report{
		ScannedAt:    m.now(),
		Accounts:     []AccountHealth{},
		Liquidatable: []common.Address{},
	}

	for _, account := range m.engine.Accounts() {
		if err := ctx.Err(); err != nil {
			return Report{}, errors.Wrap(err, "scan accounts")
		}

		info, err := m.engine.AccountInformation(ctx, account)
		if err != nil {
			m.logger.Warn("failed to value account", zap.String("account", account.Hex()), zap.Error(err))
			report.Accounts = append(report.Accounts, AccountHealth{Account: account, Error: err.Error()})
			report.Failed++
			continue
		}
		if info.Debt.IsZero() && info.CollateralValue.IsZero() {
			continue
		}

		health := AccountHealth{
			Account:         account,
			Debt:            domain.FormatUnits(info.Debt, domain.Decimals),
			CollateralValue: domain.FormatUnits(info.CollateralValue, domain.Decimals),
			HealthFactor:    FormatHealthFactor(info),
			Liquidatable:    info.HealthFactor.Lt(engine.MinHealthFactor()),
		}
		report.Accounts = append(report.Accounts, health)
		if health.Liquidatable {
			report.Liquidatable = append(report.Liquidatable, account)
		}
	}

	m.mu.Lock()
	m.latest = report
	m.mu.Unlock()

	return report, nil
}

// Latest returns the last stored report.
func (m *Monitor) Latest() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Run scans on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("starting health monitor", zap.Duration("interval", m.interval))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("context done, stopping health monitor")
			return ctx.Err()
		case <-ticker.C:
			report, err := m.Scan(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				m.logger.Error("health scan failed", zap.Error(err))
				continue
			}

			for _, account := range report.Liquidatable {
				m.logger.Warn("account is liquidatable", zap.String("account", account.Hex()))
			}
			m.logger.Debug("health scan done",
				zap.Int("accounts", len(report.Accounts)),
				zap.Int("liquidatable", len(report.Liquidatable)),
				zap.Int("failed", report.Failed))
		}
	}
}
