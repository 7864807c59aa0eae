package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cdpengine/internal/domain"
	"github.com/vadiminshakov/cdpengine/internal/engine"
	"github.com/vadiminshakov/cdpengine/internal/services/monitor"
)

const (
	stablecoinKeyword = "stablecoin"
	unlimitedKeyword  = "max"
	maxBodyBytes      = 1 << 16
)

var errBadRequest = errors.New("bad request")

type positionRequest struct {
	Account    string `json:"account"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	Collateral string `json:"collateral"`
	Debt       string `json:"debt"`
}

type liquidateRequest struct {
	Liquidator  string `json:"liquidator"`
	User        string `json:"user"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debt_to_cover"`
}

type approveRequest struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type priceRequest struct {
	Feed  string `json:"feed"`
	Price string `json:"price"`
}

type assetView struct {
	Address    common.Address `json:"address"`
	Symbol     string         `json:"symbol"`
	Feed       string         `json:"feed"`
	PriceUSD   string         `json:"price_usd,omitempty"`
	PriceError string         `json:"price_error,omitempty"`
}

type accountView struct {
	Account         common.Address    `json:"account"`
	Debt            string            `json:"debt"`
	CollateralValue string            `json:"collateral_value"`
	HealthFactor    string            `json:"health_factor"`
	Liquidatable    bool              `json:"liquidatable"`
	Collateral      map[string]string `json:"collateral"`
	Wallet          map[string]string `json:"wallet,omitempty"`
}

type liquidationView struct {
	User         common.Address `json:"user"`
	Liquidator   common.Address `json:"liquidator"`
	Asset        common.Address `json:"asset"`
	DebtCovered  string         `json:"debt_covered"`
	Seized       string         `json:"seized"`
	Bonus        string         `json:"bonus"`
	HealthBefore string         `json:"health_before"`
	HealthAfter  string         `json:"health_after"`
}

type errorView struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	HealthFactor string `json:"health_factor,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	views := make([]assetView, 0, len(s.assets))
	for _, a := range s.assets {
		view := assetView{Address: a.Address, Symbol: a.Symbol, Feed: a.Feed}
		price, err := s.engine.USDValue(r.Context(), a.Address, engine.Precision())
		if err != nil {
			view.PriceError = err.Error()
		} else {
			view.PriceUSD = formatUnits(price)
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	info, err := s.engine.AccountInformation(r.Context(), account)
	if err != nil {
		s.writeError(w, err)
		return
	}

	view := accountView{
		Account:         account,
		Debt:            formatUnits(info.Debt),
		CollateralValue: formatUnits(info.CollateralValue),
		HealthFactor:    formatHealth(info.HealthFactor),
		Liquidatable:    info.HealthFactor.Lt(engine.MinHealthFactor()),
		Collateral:      make(map[string]string, len(s.assets)),
	}
	for _, a := range s.assets {
		balance, err := s.engine.CollateralBalance(account, a.Address)
		if err != nil {
			s.writeError(w, err)
			return
		}
		view.Collateral[a.Symbol] = formatUnits(balance)
	}
	if s.wallet != nil {
		view.Wallet = make(map[string]string, len(s.assets)+1)
		for _, a := range s.assets {
			view.Wallet[a.Symbol] = formatUnits(s.wallet.BalanceOf(a.Address, account))
		}
		view.Wallet[stablecoinKeyword] = formatUnits(s.wallet.BalanceOf(s.wallet.StablecoinAddress(), account))
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLiquidatable(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorView{Error: "health monitor not available", Code: "unavailable"})
		return
	}

	report := s.monitor.Latest()
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh || report.ScannedAt.IsZero() {
		var err error
		if report, err = s.monitor.Scan(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	account, asset, ok := s.decodePosition(w, r, &req)
	if !ok {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeCommitted(w, s.engine.DepositCollateral(r.Context(), account, asset, amount))
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	account, asset, ok := s.decodePosition(w, r, &req)
	if !ok {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeCommitted(w, s.engine.RedeemCollateral(r.Context(), account, asset, amount))
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeCommitted(w, s.engine.MintDebt(r.Context(), account, amount))
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeCommitted(w, s.engine.BurnDebt(r.Context(), account, amount))
}

func (s *Server) handleDepositAndMint(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	account, asset, ok := s.decodePosition(w, r, &req)
	if !ok {
		return
	}
	collateral, debt, err := parseCollateralAndDebt(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeCommitted(w, s.engine.DepositCollateralAndMint(r.Context(), account, asset, collateral, debt))
}

func (s *Server) handleRedeemForBurn(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	account, asset, ok := s.decodePosition(w, r, &req)
	if !ok {
		return
	}
	collateral, debt, err := parseCollateralAndDebt(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeCommitted(w, s.engine.RedeemCollateralForBurn(r.Context(), account, asset, collateral, debt))
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	liquidator, err := parseAddress("liquidator", req.Liquidator)
	if err != nil {
		s.writeError(w, err)
		return
	}
	user, err := parseAddress("user", req.User)
	if err != nil {
		s.writeError(w, err)
		return
	}
	asset, err := s.resolveAsset(req.Asset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	debt, err := parseAmount("debt_to_cover", req.DebtToCover)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.engine.Liquidate(r.Context(), liquidator, asset, user, debt)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, liquidationView{
		User:         res.User,
		Liquidator:   res.Liquidator,
		Asset:        res.Asset,
		DebtCovered:  formatUnits(res.DebtCovered),
		Seized:       formatUnits(res.Seized),
		Bonus:        formatUnits(res.Bonus),
		HealthBefore: formatHealth(res.HealthBefore),
		HealthAfter:  formatHealth(res.HealthAfter),
	})
}

// handleApprove lets owner allow the engine to pull a token. The amount
// "max" grants an allowance that is never decremented.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if s.wallet == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorView{Error: "token wallet not available", Code: "unavailable"})
		return
	}

	var req approveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tokenAddr, err := s.resolveToken(req.Asset)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var amount *uint256.Int
	if strings.EqualFold(strings.TrimSpace(req.Amount), unlimitedKeyword) {
		amount = new(uint256.Int).SetAllOne()
	} else if amount, err = parseAmountOrZero("amount", req.Amount); err != nil {
		s.writeError(w, err)
		return
	}

	spender := s.engine.Address()
	s.wallet.Approve(tokenAddr, owner, spender, amount)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "approved",
		"spender":   spender.Hex(),
		"allowance": s.wallet.Allowance(tokenAddr, owner, spender).Dec(),
	})
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	if s.wallet == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorView{Error: "token wallet not available", Code: "unavailable"})
		return
	}

	var req positionRequest
	account, asset, ok := s.decodePosition(w, r, &req)
	if !ok {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.wallet.Faucet(asset, account, amount); err != nil {
		s.writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "credited",
		"balance": formatUnits(s.wallet.BalanceOf(asset, account)),
	})
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	pair, err := domain.ParsePair(req.Feed)
	if err != nil {
		s.writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	configured := false
	for _, a := range s.assets {
		configured = configured || a.Feed == pair.String()
	}
	if !configured {
		s.writeError(w, errors.Wrapf(errBadRequest, "feed %s is not configured", pair))
		return
	}
	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil || !price.IsPositive() {
		s.writeError(w, errors.Wrapf(errBadRequest, "price %q must be a positive decimal", req.Price))
		return
	}

	s.prices.SetPrice(pair, price)
	s.logger.Info("price set", zap.String("feed", pair.String()), zap.String("price", price.String()))
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "feed": pair.String(), "price": price.String()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorView{Error: "event log not available", Code: "unavailable"})
		return
	}

	q := r.URL.Query()
	after, err := parseUintParam("after", q.Get("after"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, err := parseUintParam("limit", q.Get("limit"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if limit == 0 || limit > streamBatchSize {
		limit = streamBatchSize
	}

	records, err := s.events.EventsAfter(after, int(limit))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.EventRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) decodePosition(w http.ResponseWriter, r *http.Request, req *positionRequest) (common.Address, common.Address, bool) {
	if err := decodeJSON(r, req); err != nil {
		s.writeError(w, err)
		return common.Address{}, common.Address{}, false
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		s.writeError(w, err)
		return common.Address{}, common.Address{}, false
	}
	asset, err := s.resolveAsset(req.Asset)
	if err != nil {
		s.writeError(w, err)
		return common.Address{}, common.Address{}, false
	}
	return account, asset, true
}

// resolveAsset accepts a configured symbol or any hex address. Unknown
// addresses are passed through so that the engine rejects them.
func (s *Server) resolveAsset(v string) (common.Address, error) {
	v = strings.TrimSpace(v)
	for _, a := range s.assets {
		if strings.EqualFold(a.Symbol, v) {
			return a.Address, nil
		}
	}
	return parseAddress("asset", v)
}

func (s *Server) resolveToken(v string) (common.Address, error) {
	if strings.EqualFold(strings.TrimSpace(v), stablecoinKeyword) {
		return s.wallet.StablecoinAddress(), nil
	}
	return s.resolveAsset(v)
}

func (s *Server) writeCommitted(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	view := errorView{Error: err.Error(), Code: code}

	var breaks *engine.BreaksHealthFactorError
	if errors.As(err, &breaks) {
		view.HealthFactor = formatUnits(breaks.HealthFactor)
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, view)
}

// classify maps an error to an HTTP status and a stable machine readable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, engine.ErrNeedsMoreThanZero):
		return http.StatusBadRequest, "needs_more_than_zero"
	case errors.Is(err, engine.ErrUnsupportedAsset):
		return http.StatusBadRequest, "unsupported_asset"
	case errors.Is(err, engine.ErrBreaksHealthFactor):
		return http.StatusUnprocessableEntity, "breaks_health_factor"
	case errors.Is(err, engine.ErrHealthFactorOk):
		return http.StatusUnprocessableEntity, "health_factor_ok"
	case errors.Is(err, engine.ErrHealthFactorNotImproved):
		return http.StatusUnprocessableEntity, "health_factor_not_improved"
	case errors.Is(err, engine.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, engine.ErrTransferFailed):
		return http.StatusUnprocessableEntity, "transfer_failed"
	case errors.Is(err, engine.ErrOverflow):
		return http.StatusUnprocessableEntity, "overflow"
	case errors.Is(err, engine.ErrReentrancyDetected):
		return http.StatusConflict, "reentrancy_detected"
	case errors.Is(err, engine.ErrStaleOrInvalidQuote):
		return http.StatusServiceUnavailable, "stale_or_invalid_quote"
	case errors.Is(err, engine.ErrMintFailed):
		return http.StatusBadGateway, "mint_failed"
	case errors.Is(err, engine.ErrBurnFailed):
		return http.StatusBadGateway, "burn_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrapf(errBadRequest, "decode body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseAddress(field, v string) (common.Address, error) {
	v = strings.TrimSpace(v)
	if !common.IsHexAddress(v) {
		return common.Address{}, errors.Wrapf(errBadRequest, "%s %q is not a hex address", field, v)
	}
	return common.HexToAddress(v), nil
}

// parseAmount reads a human readable 18-decimal amount. Zero is passed
// through for the engine to reject.
func parseAmount(field, v string) (*uint256.Int, error) {
	if strings.TrimSpace(v) == "" {
		return nil, errors.Wrapf(errBadRequest, "%s is required", field)
	}
	return parseAmountOrZero(field, v)
}

func parseAmountOrZero(field, v string) (*uint256.Int, error) {
	amount, err := domain.ParseUnits(strings.TrimSpace(v), domain.Decimals)
	if err != nil {
		return nil, errors.Wrapf(errBadRequest, "%s: %v", field, err)
	}
	return amount, nil
}

func parseCollateralAndDebt(req positionRequest) (*uint256.Int, *uint256.Int, error) {
	collateral, err := parseAmount("collateral", req.Collateral)
	if err != nil {
		return nil, nil, err
	}
	debt, err := parseAmount("debt", req.Debt)
	if err != nil {
		return nil, nil, err
	}
	return collateral, debt, nil
}

func parseUintParam(name, v string) (uint64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(errBadRequest, "query param %s: %v", name, err)
	}
	return n, nil
}

func formatHealth(v *uint256.Int) string {
	return monitor.FormatHealthFactor(engine.AccountInfo{HealthFactor: v})
}

func formatUnits(v *uint256.Int) string {
	return domain.FormatUnits(v, domain.Decimals)
}
