package query

import (
	"context"

	"github.com/jeffrey-bowles/uspto/internal/infrastructure/messaging/kafka"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
)

// HandleIndexRebuilt reloads the state when an index.rebuilt event arrives.
// A partial reload still swaps the state, so the error is not returned to the
// consumer.
func (s *Service) HandleIndexRebuilt(ctx context.Context, msg *kafka.Message) error {
	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		s.logger.Warn("dropping undecodable index event", logging.Err(err))
		return nil
	}
	if env.EventType != kafka.EventIndexRebuilt {
		return nil
	}
	var payload kafka.IndexRebuiltPayload
	if err := env.DecodePayload(&payload); err != nil {
		s.logger.Warn("index event without payload", logging.Err(err))
	}
	s.logger.Info("index rebuilt, reloading",
		logging.String("run_id", payload.RunID), logging.Time("built_at", payload.BuiltAt))
	if err := s.Reload(ctx); err != nil {
		s.logger.Warn("reload after index rebuild is partial",
			logging.String("run_id", payload.RunID), logging.Err(err))
	}
	return nil
}
