package service

import (
	"context"
	"encoding/json"

	"github.com/klasio/klasio-backend/internal/config"
	"github.com/klasio/klasio-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AttemptEvents fans attempt lifecycle events out to live proctor monitors
// and into the durable audit trail. Both paths are best-effort: the attempt
// state machine never fails a request because an event could not be emitted.
type AttemptEvents interface {
	// Publish pushes the event to the exam's live monitor channel.
	Publish(ctx context.Context, evt *model.AttemptEvent)
	// EnqueueAudit queues the event for the batch worker that persists the
	// audit trail.
	EnqueueAudit(ctx context.Context, evt *model.AttemptEvent)
}

// RedisAttemptEvents publishes via Redis Pub/Sub and queues audit rows on a
// Redis list drained by worker.EventWorker.
type RedisAttemptEvents struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisAttemptEvents creates a RedisAttemptEvents.
func NewRedisAttemptEvents(rdb *redis.Client, log zerolog.Logger) *RedisAttemptEvents {
	return &RedisAttemptEvents{
		rdb: rdb,
		log: log.With().Str("component", "attempt_events").Logger(),
	}
}

// Publish implements AttemptEvents.
func (e *RedisAttemptEvents) Publish(ctx context.Context, evt *model.AttemptEvent) {
	raw, err := json.Marshal(evt)
	if err != nil {
		e.log.Error().Err(err).Msg("Marshal monitor event")
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(evt.ExamID.String())
	if err := e.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		e.log.Warn().Err(err).Str("channel", channel).Msg("Monitor publish failed")
	}
}

// EnqueueAudit implements AttemptEvents.
func (e *RedisAttemptEvents) EnqueueAudit(ctx context.Context, evt *model.AttemptEvent) {
	raw, err := json.Marshal(evt)
	if err != nil {
		e.log.Error().Err(err).Msg("Marshal audit event")
		return
	}
	if err := e.rdb.RPush(ctx, config.WorkerKey.PersistEventsQueue, raw).Err(); err != nil {
		e.log.Warn().Err(err).Msg("Audit enqueue failed")
	}
}
