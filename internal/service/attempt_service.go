package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klasio/klasio-backend/internal/grading"
	"github.com/klasio/klasio-backend/internal/integrity"
	"github.com/klasio/klasio-backend/internal/model"
	"github.com/rs/zerolog"
)

// State machine errors surfaced to the transport layer.
var (
	// ErrInvalidState — the operation targeted a terminal attempt, or lost a
	// finalization race. Clients should switch to fetching the result.
	ErrInvalidState = errors.New("attempt is no longer in progress")

	// ErrAlreadyCompleted — start/submit against an attempt that already
	// finished. Structurally the same guard as ErrInvalidState, kept distinct
	// for user-facing messaging.
	ErrAlreadyCompleted = errors.New("attempt was already completed")
)

// ExamStore is the exam definition read path.
type ExamStore interface {
	GetDefinition(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error)
}

// AttemptStore is the attempt ledger. Implementations must serialize writes
// per attempt: UpsertAnswer and IncrementTabSwitch only apply while the
// attempt is IN_PROGRESS, and Finalize must let exactly one caller win.
type AttemptStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	FindByIdentity(ctx context.Context, examID uuid.UUID, studentID int, sessionID *uuid.UUID) (*model.Attempt, error)
	Create(ctx context.Context, a *model.Attempt) error
	Answers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
	UpsertAnswer(ctx context.Context, attemptID, questionID, choiceID uuid.UUID) error
	IncrementTabSwitch(ctx context.Context, attemptID uuid.UUID) (int, error)
	Finalize(ctx context.Context, attemptID uuid.UUID, status model.AttemptStatus, submittedAt time.Time,
		score func(answers map[uuid.UUID]uuid.UUID) (*grading.Result, error)) (*grading.Result, error)
}

// AttemptService is the attempt state machine: it owns every legal transition
// of an attempt and never trusts the client's view of state.
type AttemptService struct {
	exams    ExamStore
	attempts AttemptStore
	events   AttemptEvents
	grace    time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewAttemptService creates a new AttemptService. grace is the tolerance
// added to the exam deadline before late mutations are rejected.
func NewAttemptService(exams ExamStore, attempts AttemptStore, events AttemptEvents, grace time.Duration, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		exams:    exams,
		attempts: attempts,
		events:   events,
		grace:    grace,
		log:      log.With().Str("component", "attempt_service").Logger(),
		now:      time.Now,
	}
}

// StartResult is the attempt-side payload of a start call. The exam paper
// itself comes from ExamService so it can be served from cache.
type StartResult struct {
	Attempt *model.Attempt `json:"attempt"`
	// Answers lets a reloaded client restore its selections.
	Answers map[uuid.UUID]uuid.UUID `json:"answers"`
	// RemainingSeconds is nil for untimed exams and for terminal attempts.
	RemainingSeconds *float64 `json:"remaining_seconds,omitempty"`
}

// TabSwitchResult reports the outcome of one recorded tab switch.
type TabSwitchResult struct {
	TabSwitchCount int  `json:"tab_switch_count"`
	Flagged        bool `json:"flagged"`
	Remaining      int  `json:"remaining"`
}

// Start begins or resumes the student's attempt. Idempotent: an existing
// attempt for the same student+exam(+session) identity is returned as-is,
// terminal ones included, so a finished student lands on their result rather
// than an error.
func (s *AttemptService) Start(ctx context.Context, studentID int, examID uuid.UUID, sessionID *uuid.UUID) (*StartResult, error) {
	def, err := s.exams.GetDefinition(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !def.IsPublished {
		return nil, ErrExamNotPublished
	}

	attempt, err := s.attempts.FindByIdentity(ctx, examID, studentID, sessionID)
	switch {
	case err == nil:
		// Resume.
	case errors.Is(err, model.ErrNotFound):
		attempt = &model.Attempt{
			ID:        uuid.New(),
			ExamID:    examID,
			StudentID: studentID,
			SessionID: sessionID,
			Status:    model.AttemptStatusInProgress,
		}
		if createErr := s.attempts.Create(ctx, attempt); createErr != nil {
			if !errors.Is(createErr, model.ErrDuplicateAttempt) {
				return nil, fmt.Errorf("create attempt: %w", createErr)
			}
			// Lost a concurrent start: adopt the winner's attempt.
			attempt, err = s.attempts.FindByIdentity(ctx, examID, studentID, sessionID)
			if err != nil {
				return nil, fmt.Errorf("refetch after concurrent start: %w", err)
			}
		} else {
			s.emit(ctx, attempt, model.EventAttemptStarted, nil)
		}
	default:
		return nil, err
	}

	attempt, err = s.expireIfOverdue(ctx, attempt, def)
	if err != nil {
		return nil, err
	}

	res := &StartResult{Attempt: attempt, Answers: map[uuid.UUID]uuid.UUID{}}

	if !attempt.Terminal() {
		answers, err := s.attempts.Answers(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("load answers: %w", err)
		}
		res.Answers = answers

		if dl := attempt.Deadline(def.TimeLimitMinutes); dl != nil {
			remaining := dl.Sub(s.now()).Seconds()
			if remaining < 0 {
				remaining = 0
			}
			res.RemainingSeconds = &remaining
		}
	}

	return res, nil
}

// SaveAnswer upserts the selected choice for one question, last write wins.
// Legal only while the attempt is IN_PROGRESS and the question and choice
// belong to the attempt's exam.
func (s *AttemptService) SaveAnswer(ctx context.Context, studentID int, attemptID, questionID, choiceID uuid.UUID) error {
	attempt, err := s.owned(ctx, studentID, attemptID)
	if err != nil {
		return err
	}
	if attempt.Terminal() {
		return ErrInvalidState
	}

	def, err := s.exams.GetDefinition(ctx, attempt.ExamID)
	if err != nil {
		return err
	}

	question := def.QuestionByID(questionID)
	if question == nil {
		return model.ErrNotFound
	}
	if question.ChoiceByID(choiceID) == nil {
		// Choice of another question (or nonexistent): reject untouched.
		return model.ErrNotFound
	}

	attempt, err = s.expireIfOverdue(ctx, attempt, def)
	if err != nil {
		return err
	}
	if attempt.Terminal() {
		return ErrInvalidState
	}

	if err := s.attempts.UpsertAnswer(ctx, attemptID, questionID, choiceID); err != nil {
		if errors.Is(err, model.ErrAttemptNotActive) {
			return ErrInvalidState
		}
		return err
	}
	return nil
}

// RecordTabSwitch bumps the attempt's tab-switch counter. Crossing the exam's
// maximum (count > max, never at the max itself) flags the attempt and runs
// the same finalization as a submit, with FLAGGED as the terminal status.
func (s *AttemptService) RecordTabSwitch(ctx context.Context, studentID int, attemptID uuid.UUID) (*TabSwitchResult, error) {
	attempt, err := s.owned(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Terminal() {
		return nil, ErrInvalidState
	}

	def, err := s.exams.GetDefinition(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	attempt, err = s.expireIfOverdue(ctx, attempt, def)
	if err != nil {
		return nil, err
	}
	if attempt.Terminal() {
		return nil, ErrInvalidState
	}

	count, err := s.attempts.IncrementTabSwitch(ctx, attemptID)
	if err != nil {
		if errors.Is(err, model.ErrAttemptNotActive) {
			return nil, ErrInvalidState
		}
		return nil, err
	}

	detail, _ := json.Marshal(map[string]int{"count": count})
	s.emit(ctx, attempt, model.EventTabSwitch, detail)

	flagged := integrity.Exceeded(count, def.MaxTabSwitches)
	if flagged {
		if _, err := s.finalize(ctx, attempt, def, model.AttemptStatusFlagged); err != nil &&
			!errors.Is(err, model.ErrAttemptNotActive) {
			return nil, err
		}
	}

	return &TabSwitchResult{
		TabSwitchCount: count,
		Flagged:        flagged,
		Remaining:      integrity.Remaining(count, def.MaxTabSwitches),
	}, nil
}

// Submit finalizes the attempt as SUBMITTED and returns the grade. A submit
// fired by the client countdown reaching zero takes this exact same path.
// Not idempotent: a second call fails with ErrAlreadyCompleted and the caller
// should fetch the result instead.
func (s *AttemptService) Submit(ctx context.Context, studentID int, attemptID uuid.UUID) (*grading.Result, error) {
	attempt, err := s.owned(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Terminal() {
		return nil, ErrAlreadyCompleted
	}

	def, err := s.exams.GetDefinition(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	result, err := s.finalize(ctx, attempt, def, model.AttemptStatusSubmitted)
	if err != nil {
		if errors.Is(err, model.ErrAttemptNotActive) {
			// Race loser: someone else finalized first.
			return nil, ErrAlreadyCompleted
		}
		return nil, err
	}
	return result, nil
}

// GetResult returns the grade snapshot persisted at finalization. It never
// regrades, so later edits to the exam definition cannot drift the result.
func (s *AttemptService) GetResult(ctx context.Context, studentID int, attemptID uuid.UUID) (*grading.Result, error) {
	attempt, err := s.owned(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if !attempt.Terminal() {
		return nil, ErrInvalidState
	}

	if len(attempt.GradeBreakdown) == 0 {
		return nil, fmt.Errorf("attempt %s is terminal but has no grade snapshot", attemptID)
	}

	result := &grading.Result{}
	if err := json.Unmarshal(attempt.GradeBreakdown, result); err != nil {
		return nil, fmt.Errorf("unmarshal grade snapshot: %w", err)
	}
	return result, nil
}

// owned fetches an attempt and hides it behind ErrNotFound when the caller is
// not its owner, so attempt IDs cannot be probed.
func (s *AttemptService) owned(ctx context.Context, studentID int, attemptID uuid.UUID) (*model.Attempt, error) {
	attempt, err := s.attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != studentID {
		return nil, model.ErrNotFound
	}
	return attempt, nil
}

// finalize snapshots the definition and answer map, grades, and commits the
// terminal status together with the score fields. The store guarantees the
// answer map is read under the same lock that flips the status, so no save
// can slip between grading and commit.
func (s *AttemptService) finalize(ctx context.Context, attempt *model.Attempt, def *model.ExamDefinition, status model.AttemptStatus) (*grading.Result, error) {
	result, err := s.attempts.Finalize(ctx, attempt.ID, status, s.now(),
		func(answers map[uuid.UUID]uuid.UUID) (*grading.Result, error) {
			return grading.Score(def, answers), nil
		})
	if err != nil {
		return nil, err
	}

	evtType := model.EventAttemptSubmitted
	if status == model.AttemptStatusFlagged {
		evtType = model.EventAttemptFlagged
	}
	detail, _ := json.Marshal(map[string]any{"score": result.Score, "percentage": result.Percentage})
	s.emit(ctx, attempt, evtType, detail)

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("status", string(status)).
		Int("score", result.Score).
		Float64("percentage", result.Percentage).
		Msg("Attempt finalized")

	return result, nil
}

// expireIfOverdue finalizes an IN_PROGRESS attempt whose deadline (plus
// grace) has passed, covering clients that never fired their countdown
// submit. The refreshed attempt is returned either way.
func (s *AttemptService) expireIfOverdue(ctx context.Context, attempt *model.Attempt, def *model.ExamDefinition) (*model.Attempt, error) {
	if attempt.Terminal() {
		return attempt, nil
	}
	dl := attempt.Deadline(def.TimeLimitMinutes)
	if dl == nil || s.now().Before(dl.Add(s.grace)) {
		return attempt, nil
	}

	s.log.Info().Str("attempt_id", attempt.ID.String()).Msg("Deadline passed, forcing submit")
	if _, err := s.finalize(ctx, attempt, def, model.AttemptStatusSubmitted); err != nil &&
		!errors.Is(err, model.ErrAttemptNotActive) {
		return nil, err
	}
	return s.attempts.FindByID(ctx, attempt.ID)
}

func (s *AttemptService) emit(ctx context.Context, attempt *model.Attempt, evtType model.AttemptEventType, detail json.RawMessage) {
	if s.events == nil {
		return
	}
	evt := &model.AttemptEvent{
		AttemptID: attempt.ID,
		ExamID:    attempt.ExamID,
		StudentID: attempt.StudentID,
		Type:      evtType,
		Detail:    detail,
		Timestamp: s.now().Unix(),
	}
	s.events.Publish(ctx, evt)
	s.events.EnqueueAudit(ctx, evt)
}
