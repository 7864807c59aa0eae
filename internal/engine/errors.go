package engine

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/cdpengine/internal/domain"
)

var (
	ErrNeedsMoreThanZero       = errors.New("amount needs more than zero")
	ErrUnsupportedAsset        = errors.New("asset is not supported as collateral")
	ErrConfigLengthMismatch    = errors.New("asset and price feed lists differ in length")
	ErrInvalidConfig           = errors.New("invalid engine config")
	ErrTransferFailed          = errors.New("transfer failed")
	ErrMintFailed              = errors.New("mint failed")
	ErrBurnFailed              = errors.New("burn failed")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrBreaksHealthFactor      = errors.New("breaks health factor")
	ErrHealthFactorOk          = errors.New("health factor is ok")
	ErrHealthFactorNotImproved = errors.New("health factor not improved")
	ErrStaleOrInvalidQuote     = errors.New("stale or invalid price quote")
	ErrReentrancyDetected      = errors.New("reentrant call detected")
	ErrOverflow                = errors.New("arithmetic overflow")
)

// BreaksHealthFactorError carries the health factor an operation would have
// left behind. It matches ErrBreaksHealthFactor with errors.Is.
type BreaksHealthFactorError struct {
	HealthFactor *uint256.Int
}

func (e *BreaksHealthFactorError) Error() string {
	return fmt.Sprintf("%s: %s", ErrBreaksHealthFactor, domain.FormatUnits(e.HealthFactor, domain.Decimals))
}

func (e *BreaksHealthFactorError) Is(target error) bool {
	return target == ErrBreaksHealthFactor
}

// withCause attaches a collaborator error to a typed engine error so that
// both stay matchable.
func withCause(typed error, cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return errors.Wrap(typed, msg)
	}

	return fmt.Errorf("%s: %w: %w", msg, typed, cause)
}
