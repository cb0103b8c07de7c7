package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states. SUBMITTED and FLAGGED are terminal.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
	AttemptStatusFlagged    AttemptStatus = "FLAGGED"
)

// Attempt is one student's run through an exam. SessionID scopes the attempt
// to a scheduled exam session when present; scheduling itself lives outside
// this service.
type Attempt struct {
	ID             uuid.UUID       `json:"id"`
	ExamID         uuid.UUID       `json:"exam_id"`
	StudentID      int             `json:"student_id"`
	SessionID      *uuid.UUID      `json:"session_id,omitempty"`
	Status         AttemptStatus   `json:"status"`
	StartedAt      time.Time       `json:"started_at"`
	SubmittedAt    *time.Time      `json:"submitted_at,omitempty"`
	TabSwitchCount int             `json:"tab_switch_count"`
	Score          *int            `json:"score,omitempty"`
	TotalPossible  *int            `json:"total_possible,omitempty"`
	Percentage     *float64        `json:"percentage,omitempty"`
	Passed         *bool           `json:"passed,omitempty"`
	GradeBreakdown json.RawMessage `json:"-"`
}

// Terminal reports whether the attempt can no longer be mutated.
func (a *Attempt) Terminal() bool {
	return a.Status != AttemptStatusInProgress
}

// Deadline returns the wall-clock instant the attempt's time limit expires,
// or nil for untimed exams.
func (a *Attempt) Deadline(timeLimitMinutes *int) *time.Time {
	if timeLimitMinutes == nil {
		return nil
	}
	t := a.StartedAt.Add(time.Duration(*timeLimitMinutes) * time.Minute)
	return &t
}

// ─── Request payloads ───────────────────────────────────────────────

// StartAttemptRequest optionally ties the attempt to a scheduled session.
type StartAttemptRequest struct {
	SessionID *uuid.UUID `json:"session_id" binding:"omitempty"`
}

// SaveAnswerRequest upserts one question's selected choice.
type SaveAnswerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	ChoiceID   uuid.UUID `json:"choice_id" binding:"required"`
}

// ─── Monitor events ─────────────────────────────────────────────────

// AttemptEventType classifies attempt lifecycle events.
type AttemptEventType string

const (
	EventAttemptStarted   AttemptEventType = "attempt_started"
	EventTabSwitch        AttemptEventType = "tab_switch"
	EventAttemptFlagged   AttemptEventType = "attempt_flagged"
	EventAttemptSubmitted AttemptEventType = "attempt_submitted"
)

// AttemptEvent is published to proctor monitors and queued for the audit
// trail worker.
type AttemptEvent struct {
	AttemptID uuid.UUID        `json:"attempt_id"`
	ExamID    uuid.UUID        `json:"exam_id"`
	StudentID int              `json:"student_id"`
	Type      AttemptEventType `json:"type"`
	Detail    json.RawMessage  `json:"detail,omitempty"`
	Timestamp int64            `json:"timestamp"`
}
