package pricer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cdpengine/internal/domain"
	"github.com/vadiminshakov/cdpengine/pkg/retrier"
)

// RetryingPricer retries failed price requests of the wrapped pricer.
// Context cancellation and missing static prices are not retried.
type RetryingPricer struct {
	next    Pricer
	retrier *retrier.Retrier
	logger  *zap.Logger
}

func NewRetryingPricer(next Pricer, logger *zap.Logger, opts ...retrier.Option) *RetryingPricer {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &RetryingPricer{next: next, logger: logger}

	opts = append([]retrier.Option{
		retrier.WithRetryIf(retryable),
		retrier.WithOnRetry(func(attempt int, err error) {
			p.logger.Warn("retrying price request", zap.Int("attempt", attempt), zap.Error(err))
		}),
	}, opts...)
	p.retrier = retrier.New(opts...)

	return p
}

func (p *RetryingPricer) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	return retrier.DoWithData(p.retrier, ctx, func(ctx context.Context) (decimal.Decimal, error) {
		return p.next.GetPrice(ctx, pair)
	})
}

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, ErrNoPrice)
}
