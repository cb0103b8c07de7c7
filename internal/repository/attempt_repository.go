package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klasio/klasio-backend/internal/grading"
	"github.com/klasio/klasio-backend/internal/model"
)

// nilSession matches the COALESCE default of the attempts identity index.
const nilSession = "00000000-0000-0000-0000-000000000000"

const attemptColumns = `id, exam_id, student_id, session_id, status, started_at,
	submitted_at, tab_switch_count, score, total_possible, percentage, passed, grade_breakdown`

// AttemptRepository is the attempt ledger: the durable record of every
// attempt plus its answer map. All writes to a single attempt are serialized
// through row locks or compare-and-swap updates on status.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.SessionID, &a.Status,
		&a.StartedAt, &a.SubmittedAt, &a.TabSwitchCount,
		&a.Score, &a.TotalPossible, &a.Percentage, &a.Passed, &a.GradeBreakdown)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// FindByID retrieves an attempt by its ID.
func (r *AttemptRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// FindByIdentity retrieves the attempt for a student+exam (+ optional
// scheduled session) identity, whatever its status.
func (r *AttemptRepository) FindByIdentity(ctx context.Context, examID uuid.UUID, studentID int, sessionID *uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE exam_id = $1 AND student_id = $2
		   AND COALESCE(session_id, $4::uuid) = COALESCE($3::uuid, $4::uuid)`,
		examID, studentID, sessionID, nilSession))
}

// Create inserts a new IN_PROGRESS attempt. Returns model.ErrDuplicateAttempt
// when another attempt already holds this identity (concurrent start).
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO attempts (id, exam_id, student_id, session_id, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (exam_id, student_id, COALESCE(session_id, '`+nilSession+`'::uuid)) DO NOTHING
		 RETURNING started_at`,
		a.ID, a.ExamID, a.StudentID, a.SessionID, model.AttemptStatusInProgress,
	).Scan(&a.StartedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrDuplicateAttempt
		}
		return err
	}
	a.Status = model.AttemptStatusInProgress
	return nil
}

// Answers returns the attempt's question → selected choice map.
func (r *AttemptRepository) Answers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	return answersQuery(ctx, r.pool, attemptID)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func answersQuery(ctx context.Context, q queryer, attemptID uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	rows, err := q.Query(ctx,
		`SELECT question_id, choice_id FROM attempt_answers WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[uuid.UUID]uuid.UUID)
	for rows.Next() {
		var qid, cid uuid.UUID
		if err := rows.Scan(&qid, &cid); err != nil {
			return nil, err
		}
		answers[qid] = cid
	}
	return answers, rows.Err()
}

// lockStatus locks the attempt row and returns its current status.
func lockStatus(ctx context.Context, tx pgx.Tx, attemptID uuid.UUID) (model.AttemptStatus, error) {
	var status model.AttemptStatus
	err := tx.QueryRow(ctx,
		`SELECT status FROM attempts WHERE id = $1 FOR UPDATE`, attemptID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", model.ErrNotFound
	}
	return status, err
}

// UpsertAnswer records the selected choice for a question, last write wins.
// The attempt row is locked first so a save racing a finalization either
// lands before the grade snapshot or is rejected as not active.
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, attemptID, questionID, choiceID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	status, err := lockStatus(ctx, tx, attemptID)
	if err != nil {
		return err
	}
	if status != model.AttemptStatusInProgress {
		return model.ErrAttemptNotActive
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, choice_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET choice_id = EXCLUDED.choice_id, updated_at = NOW()`,
		attemptID, questionID, choiceID,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// IncrementTabSwitch bumps the counter by one, only while IN_PROGRESS, and
// returns the new count. The single conditional UPDATE makes concurrent
// increments serialize on the row without an explicit transaction.
func (r *AttemptRepository) IncrementTabSwitch(ctx context.Context, attemptID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET tab_switch_count = tab_switch_count + 1
		 WHERE id = $1 AND status = $2
		 RETURNING tab_switch_count`,
		attemptID, model.AttemptStatusInProgress,
	).Scan(&count)
	if err == nil {
		return count, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// Distinguish a missing attempt from a terminal one.
	var status model.AttemptStatus
	err = r.pool.QueryRow(ctx, `SELECT status FROM attempts WHERE id = $1`, attemptID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, model.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return 0, model.ErrAttemptNotActive
}

// Finalize moves an IN_PROGRESS attempt to a terminal status and persists the
// grade computed by score() over the answer map read under the row lock. The
// status transition and the score fields commit together or not at all;
// a concurrent finalizer loses with model.ErrAttemptNotActive.
func (r *AttemptRepository) Finalize(
	ctx context.Context,
	attemptID uuid.UUID,
	status model.AttemptStatus,
	submittedAt time.Time,
	score func(answers map[uuid.UUID]uuid.UUID) (*grading.Result, error),
) (*grading.Result, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockStatus(ctx, tx, attemptID)
	if err != nil {
		return nil, err
	}
	if current != model.AttemptStatusInProgress {
		return nil, model.ErrAttemptNotActive
	}

	answers, err := answersQuery(ctx, tx, attemptID)
	if err != nil {
		return nil, err
	}

	result, err := score(answers)
	if err != nil {
		return nil, err
	}

	breakdown, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal breakdown: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE attempts
		 SET status = $2, submitted_at = $3, score = $4, total_possible = $5,
		     percentage = $6, passed = $7, grade_breakdown = $8
		 WHERE id = $1`,
		attemptID, status, submittedAt,
		result.Score, result.TotalPossible, result.Percentage, result.Passed, breakdown,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}
