package engine

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// execute runs fn as one unit of work. fn stages ledger writes and schedules
// collaborator calls on u; execute settles the calls, commits the writes and
// publishes the events. Any error leaves the ledger untouched.
func (e *Engine) execute(ctx context.Context, op string, fn func(u *unitOfWork) error) error {
	release, err := e.guard.enter()
	if err != nil {
		e.logger.Warn("rejected nested call", zap.String("op", op))
		return err
	}
	defer release()

	u := newUnitOfWork(uuid.NewString(), e.clock(), e.ledger, e.assetIndex)
	log := e.logger.With(zap.String("op", op), zap.String("tx", u.id))

	if err := fn(u); err != nil {
		log.Debug("unit of work rejected", zap.Error(err))
		return err
	}
	if err := e.settle(ctx, u); err != nil {
		log.Warn("settlement failed, unit of work discarded", zap.Error(err))
		return err
	}
	u.commit()

	for _, event := range u.events {
		for _, sink := range e.sinks {
			if err := sink.Publish(event); err != nil {
				log.Error("failed to publish event", zap.String("kind", string(event.Kind)), zap.Error(err))
			}
		}
	}
	log.Info("unit of work committed", zap.Int("events", len(u.events)))

	return nil
}
