package grading

import (
	"testing"

	"github.com/google/uuid"
	"github.com/klasio/klasio-backend/internal/model"
)

// buildExam creates a two-question exam worth 10 and 20 points. Returns the
// definition plus the IDs needed to select correct/incorrect choices.
func buildExam() (def *model.ExamDefinition, q1, q2, q1Correct, q1Wrong, q2Correct, q2Wrong uuid.UUID) {
	q1, q2 = uuid.New(), uuid.New()
	q1Correct, q1Wrong = uuid.New(), uuid.New()
	q2Correct, q2Wrong = uuid.New(), uuid.New()

	def = &model.ExamDefinition{
		Exam: model.Exam{ID: uuid.New(), Title: "Algebra Basics"},
		Questions: []model.Question{
			{
				ID: q1, QuestionText: "2 + 2 = ?", Points: 10, OrderNum: 1,
				Choices: []model.Choice{
					{ID: q1Correct, QuestionID: q1, ChoiceText: "4", IsCorrect: true, OrderNum: 1},
					{ID: q1Wrong, QuestionID: q1, ChoiceText: "5", OrderNum: 2},
				},
			},
			{
				ID: q2, QuestionText: "3 * 3 = ?", Points: 20, OrderNum: 2,
				Choices: []model.Choice{
					{ID: q2Correct, QuestionID: q2, ChoiceText: "9", IsCorrect: true, OrderNum: 1},
					{ID: q2Wrong, QuestionID: q2, ChoiceText: "6", OrderNum: 2},
				},
			},
		},
	}
	return
}

func TestScorePartiallyCorrect(t *testing.T) {
	def, q1, q2, q1Correct, _, _, q2Wrong := buildExam()

	res := Score(def, map[uuid.UUID]uuid.UUID{
		q1: q1Correct,
		q2: q2Wrong,
	})

	if res.Score != 10 {
		t.Errorf("score = %d, want 10", res.Score)
	}
	if res.TotalPossible != 30 {
		t.Errorf("total = %d, want 30", res.TotalPossible)
	}
	if res.Percentage != 33.33 {
		t.Errorf("percentage = %v, want 33.33", res.Percentage)
	}
	if res.Passed {
		t.Error("passed = true, want false")
	}
}

func TestScoreAllCorrect(t *testing.T) {
	def, q1, q2, q1Correct, _, q2Correct, _ := buildExam()

	res := Score(def, map[uuid.UUID]uuid.UUID{
		q1: q1Correct,
		q2: q2Correct,
	})

	if res.Score != 30 || res.Percentage != 100 || !res.Passed {
		t.Errorf("got score=%d percentage=%v passed=%v, want 30/100/true",
			res.Score, res.Percentage, res.Passed)
	}
}

func TestScoreUnansweredEarnsZero(t *testing.T) {
	def, q1, _, q1Correct, _, _, _ := buildExam()

	res := Score(def, map[uuid.UUID]uuid.UUID{q1: q1Correct})

	if res.Score != 10 {
		t.Errorf("score = %d, want 10", res.Score)
	}
	if res.TotalPossible != 30 {
		t.Errorf("unanswered question must still count toward total, got %d", res.TotalPossible)
	}

	q2res := res.Questions[1]
	if q2res.SelectedChoice != nil || q2res.Correct || q2res.EarnedPoints != 0 {
		t.Errorf("unanswered question graded as %+v", q2res)
	}
}

func TestScoreEmptyExamNoDivideByZero(t *testing.T) {
	def := &model.ExamDefinition{Exam: model.Exam{ID: uuid.New()}}

	res := Score(def, nil)

	if res.Percentage != 0 || res.Passed {
		t.Errorf("empty exam: percentage=%v passed=%v, want 0/false", res.Percentage, res.Passed)
	}
}

func TestScoreNoCorrectChoiceMarked(t *testing.T) {
	qID := uuid.New()
	choice := uuid.New()
	def := &model.ExamDefinition{
		Exam: model.Exam{ID: uuid.New()},
		Questions: []model.Question{
			{
				ID: qID, QuestionText: "orphan", Points: 5,
				Choices: []model.Choice{
					{ID: choice, QuestionID: qID, ChoiceText: "a"},
					{ID: uuid.New(), QuestionID: qID, ChoiceText: "b"},
				},
			},
		},
	}

	// Selecting any choice earns nothing; grading must not error out.
	res := Score(def, map[uuid.UUID]uuid.UUID{qID: choice})

	if res.Score != 0 || res.Questions[0].Correct {
		t.Errorf("question without a correct choice was graded correct: %+v", res.Questions[0])
	}
	if res.Questions[0].CorrectChoice != nil {
		t.Error("correct_choice should be nil when authoring marked none")
	}
	if res.TotalPossible != 5 {
		t.Errorf("total = %d, want 5", res.TotalPossible)
	}
}

func TestScoreDeterministic(t *testing.T) {
	def, q1, q2, q1Correct, _, _, q2Wrong := buildExam()
	answers := map[uuid.UUID]uuid.UUID{q1: q1Correct, q2: q2Wrong}

	first := Score(def, answers)
	second := Score(def, answers)

	if first.Score != second.Score || first.Percentage != second.Percentage ||
		len(first.Questions) != len(second.Questions) {
		t.Error("scoring the same inputs twice produced different results")
	}
}

func TestPassThresholdBoundary(t *testing.T) {
	// Single 4-point question exam: 3/4 = 75% which passes exactly.
	qID := uuid.New()
	c1, c2 := uuid.New(), uuid.New()
	def := &model.ExamDefinition{
		Exam: model.Exam{ID: uuid.New()},
		Questions: []model.Question{
			{ID: qID, Points: 3, Choices: []model.Choice{
				{ID: c1, QuestionID: qID, IsCorrect: true},
				{ID: c2, QuestionID: qID},
			}},
			{ID: uuid.New(), Points: 1, Choices: []model.Choice{
				{ID: uuid.New(), IsCorrect: true},
			}},
		},
	}

	res := Score(def, map[uuid.UUID]uuid.UUID{qID: c1})

	if res.Percentage != 75 {
		t.Fatalf("percentage = %v, want 75", res.Percentage)
	}
	if !res.Passed {
		t.Error("exactly 75%% must pass")
	}
}
