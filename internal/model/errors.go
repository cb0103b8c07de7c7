package model

import "errors"

// Domain sentinel errors shared by stores and services. Repositories map
// driver-level conditions (e.g. pgx.ErrNoRows, unique violations) onto these
// so the attempt state machine can reason about outcomes without knowing the
// storage backend.
var (
	// ErrNotFound — the referenced exam/attempt/question/choice does not
	// exist, or the pieces do not belong together.
	ErrNotFound = errors.New("resource not found")

	// ErrAttemptNotActive — a write targeted an attempt that is no longer
	// IN_PROGRESS. Also returned to the loser of a finalization race.
	ErrAttemptNotActive = errors.New("attempt is not in progress")

	// ErrDuplicateAttempt — an attempt already exists for this
	// student/exam/session identity.
	ErrDuplicateAttempt = errors.New("attempt already exists")
)
