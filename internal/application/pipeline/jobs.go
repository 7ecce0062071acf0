package pipeline

import (
	"context"
	"time"

	"github.com/jeffrey-bowles/uspto/internal/infrastructure/messaging/kafka"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

func errUnknownJob(job string) error {
	return errors.New(errors.ErrCodePipelineJobUnknown, "unknown pipeline job").WithDetail(job)
}

// SubmitJob publishes a request to run kind on the jobs topic.
func SubmitJob(ctx context.Context, pub Publisher, topic, kind, requestedBy string) error {
	if !kafka.ValidJobKind(kind) {
		return errUnknownJob(kind)
	}
	payload := kafka.JobPayload{Kind: kind, RequestedAt: time.Now().UTC(), RequestedBy: requestedBy}
	return pub.PublishEvent(ctx, topic, kafka.EventPipelineJob, payload)
}

// HandleJob runs the job named by a jobs topic message. Messages that can
// never succeed are logged and acknowledged; run errors are returned so the
// consumer can retry them.
func (r *Runner) HandleJob(ctx context.Context, msg *kafka.Message) error {
	log := r.logger.With(logging.Int64("offset", msg.Offset))

	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		log.Warn("dropping undecodable job message", logging.Err(err))
		return nil
	}
	if env.EventType != kafka.EventPipelineJob {
		log.Warn("dropping message of unexpected type", logging.String("event_type", env.EventType))
		return nil
	}
	var job kafka.JobPayload
	if err := env.DecodePayload(&job); err != nil {
		log.Warn("dropping job with bad payload", logging.Err(err))
		return nil
	}
	if !kafka.ValidJobKind(job.Kind) {
		log.Warn("dropping unknown job", logging.String("kind", job.Kind))
		return nil
	}

	log.Info("job requested",
		logging.String("kind", job.Kind),
		logging.String("requested_by", job.RequestedBy),
		logging.String("event_id", env.EventID))
	_, err = r.Run(ctx, job.Kind)
	return err
}
