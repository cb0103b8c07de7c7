package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam represents exam metadata as stored. TimeLimitMinutes nil means the
// exam is untimed.
type Exam struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	TimeLimitMinutes *int      `json:"time_limit_minutes,omitempty"`
	MaxTabSwitches   int       `json:"max_tab_switches"`
	IsPublished      bool      `json:"is_published"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Question is a single exam question with its ordered choices.
type Question struct {
	ID           uuid.UUID `json:"id"`
	ExamID       uuid.UUID `json:"exam_id"`
	QuestionText string    `json:"question_text"`
	Points       int       `json:"points"`
	OrderNum     int       `json:"order_num"`
	Choices      []Choice  `json:"choices"`
}

// Choice is one selectable answer of a question.
type Choice struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	ChoiceText string    `json:"choice_text"`
	IsCorrect  bool      `json:"is_correct"`
	OrderNum   int       `json:"order_num"`
}

// ExamDefinition is the full exam read at attempt start and at grading time:
// metadata plus ordered questions with all choices including correct flags.
// Never serialized to students as-is.
type ExamDefinition struct {
	Exam
	Questions []Question `json:"questions"`
}

// QuestionByID returns the question with the given ID, or nil.
func (d *ExamDefinition) QuestionByID(id uuid.UUID) *Question {
	for i := range d.Questions {
		if d.Questions[i].ID == id {
			return &d.Questions[i]
		}
	}
	return nil
}

// ChoiceByID returns the choice with the given ID, or nil.
func (q *Question) ChoiceByID(id uuid.UUID) *Choice {
	for i := range q.Choices {
		if q.Choices[i].ID == id {
			return &q.Choices[i]
		}
	}
	return nil
}

// CorrectChoice returns the choice marked correct, or nil when authoring
// never marked one (such a question can never be answered correctly).
func (q *Question) CorrectChoice() *Choice {
	for i := range q.Choices {
		if q.Choices[i].IsCorrect {
			return &q.Choices[i]
		}
	}
	return nil
}

// ─── Student-facing views (correct flags withheld) ──────────────────

// ExamView is the exam paper sent to students.
type ExamView struct {
	ID               uuid.UUID      `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	TimeLimitMinutes *int           `json:"time_limit_minutes,omitempty"`
	MaxTabSwitches   int            `json:"max_tab_switches"`
	Questions        []QuestionView `json:"questions"`
}

// QuestionView is a question without any grading information.
type QuestionView struct {
	ID           uuid.UUID    `json:"id"`
	QuestionText string       `json:"question_text"`
	Points       int          `json:"points"`
	OrderNum     int          `json:"order_num"`
	Choices      []ChoiceView `json:"choices"`
}

// ChoiceView is a choice with the is_correct flag stripped.
type ChoiceView struct {
	ID         uuid.UUID `json:"id"`
	ChoiceText string    `json:"choice_text"`
	OrderNum   int       `json:"order_num"`
}

// StudentView strips grading information from the definition.
func (d *ExamDefinition) StudentView() *ExamView {
	v := &ExamView{
		ID:               d.ID,
		Title:            d.Title,
		Description:      d.Description,
		TimeLimitMinutes: d.TimeLimitMinutes,
		MaxTabSwitches:   d.MaxTabSwitches,
		Questions:        make([]QuestionView, 0, len(d.Questions)),
	}
	for _, q := range d.Questions {
		qv := QuestionView{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			Points:       q.Points,
			OrderNum:     q.OrderNum,
			Choices:      make([]ChoiceView, 0, len(q.Choices)),
		}
		for _, c := range q.Choices {
			qv.Choices = append(qv.Choices, ChoiceView{
				ID:         c.ID,
				ChoiceText: c.ChoiceText,
				OrderNum:   c.OrderNum,
			})
		}
		v.Questions = append(v.Questions, qv)
	}
	return v
}
