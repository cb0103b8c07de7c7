// Package grading computes the final grade for a completed attempt. It is a
// pure function of the answer map and the exam definition snapshot taken at
// finalization time, so the same inputs always yield the same result.
package grading

import (
	"math"

	"github.com/google/uuid"
	"github.com/klasio/klasio-backend/internal/model"
)

// PassThreshold is the fixed pass percentage. Per-exam thresholds are a
// possible future extension on the exam definition.
const PassThreshold = 75.0

// QuestionResult is the per-question grading breakdown.
type QuestionResult struct {
	QuestionID     uuid.UUID  `json:"question_id"`
	QuestionText   string     `json:"question_text"`
	Points         int        `json:"points"`
	SelectedChoice *uuid.UUID `json:"selected_choice,omitempty"`
	CorrectChoice  *uuid.UUID `json:"correct_choice,omitempty"`
	Correct        bool       `json:"correct"`
	EarnedPoints   int        `json:"earned_points"`
}

// Result is the derived grade for a terminal attempt.
type Result struct {
	Score         int              `json:"score"`
	TotalPossible int              `json:"total_possible"`
	Percentage    float64          `json:"percentage"`
	Passed        bool             `json:"passed"`
	Questions     []QuestionResult `json:"questions"`
}

// Score grades an attempt's answer map against an exam definition.
//
// Rules: a question earns its full points when the selected choice is the one
// marked correct, otherwise zero — no partial credit, no penalty. Unanswered
// questions earn zero but still count toward the total. A question with no
// correct choice marked can never be answered correctly. When the total is
// zero the percentage is zero and the attempt cannot pass.
func Score(def *model.ExamDefinition, answers map[uuid.UUID]uuid.UUID) *Result {
	res := &Result{
		Questions: make([]QuestionResult, 0, len(def.Questions)),
	}

	for _, q := range def.Questions {
		qr := QuestionResult{
			QuestionID:   q.ID,
			QuestionText: q.QuestionText,
			Points:       q.Points,
		}

		if correct := q.CorrectChoice(); correct != nil {
			id := correct.ID
			qr.CorrectChoice = &id
		}

		if selected, ok := answers[q.ID]; ok {
			id := selected
			qr.SelectedChoice = &id
			if qr.CorrectChoice != nil && selected == *qr.CorrectChoice {
				qr.Correct = true
				qr.EarnedPoints = q.Points
			}
		}

		res.Score += qr.EarnedPoints
		res.TotalPossible += q.Points
		res.Questions = append(res.Questions, qr)
	}

	if res.TotalPossible > 0 {
		pct := float64(res.Score) / float64(res.TotalPossible) * 100
		res.Percentage = math.Round(pct*100) / 100
		res.Passed = res.Percentage >= PassThreshold
	}

	return res
}
