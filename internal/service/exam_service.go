package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/klasio/klasio-backend/internal/config"
	"github.com/klasio/klasio-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrExamNotPublished — the exam exists but is not open to students.
var ErrExamNotPublished = errors.New("exam is not published")

// paperTTL bounds how stale a cached exam paper can get. Authoring lives
// outside this service, so there is no invalidation hook — only expiry.
const paperTTL = 5 * time.Minute

// ExamService serves the student-facing exam paper through a Redis
// read-through cache. The paper never contains correct flags, so a cache leak
// cannot expose the answer key.
type ExamService struct {
	exams ExamStore
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(exams ExamStore, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams: exams,
		rdb:   rdb,
		log:   log.With().Str("component", "exam_service").Logger(),
	}
}

// StudentPaper returns the exam paper for students: cache hit if fresh,
// otherwise built from the live definition and written back.
func (s *ExamService) StudentPaper(ctx context.Context, examID uuid.UUID) (*model.ExamView, error) {
	key := config.CacheKey.ExamPaperKey(examID.String())

	raw, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		view := &model.ExamView{}
		if jsonErr := json.Unmarshal([]byte(raw), view); jsonErr == nil {
			return view, nil
		}
		// Corrupt cache entry: fall through to the DB and overwrite it.
		s.log.Warn().Str("key", key).Msg("Dropping corrupt cached paper")
	} else if !errors.Is(err, redis.Nil) {
		// Redis down is a degradation, not an outage — serve from Postgres.
		s.log.Warn().Err(err).Msg("Paper cache read failed")
	}

	def, err := s.exams.GetDefinition(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !def.IsPublished {
		return nil, ErrExamNotPublished
	}

	view := def.StudentView()

	if raw, err := json.Marshal(view); err == nil {
		if err := s.rdb.Set(ctx, key, raw, paperTTL).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Paper cache write failed")
		}
	}

	return view, nil
}

// InvalidatePaper drops the cached paper, forcing the next read to rebuild.
func (s *ExamService) InvalidatePaper(ctx context.Context, examID uuid.UUID) error {
	return s.rdb.Del(ctx, config.CacheKey.ExamPaperKey(examID.String())).Err()
}
