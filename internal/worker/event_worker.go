package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klasio/klasio-backend/internal/config"
	"github.com/klasio/klasio-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// EventWorker drains the audit queue and persists attempt events in batches.
// The attempt state machine only ever enqueues, so a slow database never
// blocks an exam in progress.
type EventWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewEventWorker creates a new EventWorker.
func NewEventWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *EventWorker {
	return &EventWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "event_worker").Logger(),
	}
}

// Start runs the drain loop until ctx is canceled. Call in a goroutine.
func (w *EventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("EventWorker started")

	buffer := make([]*model.AttemptEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age.
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown.
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. BLPop blocks for 1 second, returns immediately
		// if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistEventsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		evt := &model.AttemptEvent{}
		if err := json.Unmarshal([]byte(result[1]), evt); err != nil {
			// Malformed JSON can never succeed on retry. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, evt)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue.
func (w *EventWorker) flushSafe(ctx context.Context, batch []*model.AttemptEvent) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *EventWorker) bulkInsert(ctx context.Context, batch []*model.AttemptEvent) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, evt := range batch {
		rows = append(rows, []interface{}{
			evt.AttemptID, evt.ExamID, evt.StudentID, string(evt.Type), eventDetail(evt), time.Unix(evt.Timestamp, 0),
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_events"},
		[]string{"attempt_id", "exam_id", "student_id", "event_type", "detail", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *EventWorker) fallbackInsert(ctx context.Context, batch []*model.AttemptEvent) {
	requeueList := make([]*model.AttemptEvent, 0)

	for _, evt := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO attempt_events (attempt_id, exam_id, student_id, event_type, detail, recorded_at)
			 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
			evt.AttemptID, evt.ExamID, evt.StudentID, string(evt.Type), eventDetail(evt), time.Unix(evt.Timestamp, 0),
		)
		if err != nil {
			// Could be a data error or the DB being down. Requeue either way;
			// a poison row keeps failing but never blocks fresh events.
			w.log.Error().Err(err).Str("attempt_id", evt.AttemptID.String()).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, evt)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *EventWorker) requeue(ctx context.Context, items []*model.AttemptEvent) {
	pipe := w.rdb.Pipeline()
	for _, evt := range items {
		data, _ := json.Marshal(evt)
		pipe.RPush(ctx, config.WorkerKey.PersistEventsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
		// Avoid thrashing while the DB is down hard.
		time.Sleep(2 * time.Second)
	}
}

func (w *EventWorker) shutdown(buffer []*model.AttemptEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

// eventDetail normalizes the detail column: an absent detail is stored as an
// empty JSON object, not NULL.
func eventDetail(evt *model.AttemptEvent) string {
	if len(evt.Detail) == 0 {
		return "{}"
	}
	return string(evt.Detail)
}
