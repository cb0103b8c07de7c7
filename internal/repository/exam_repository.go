package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klasio/klasio-backend/internal/model"
)

// ExamRepository handles exam definition reads. Authoring happens elsewhere
// in the platform; the attempt engine only ever reads definitions.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves exam metadata without questions.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, time_limit_minutes, max_tab_switches,
		        is_published, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Description, &e.TimeLimitMinutes, &e.MaxTabSwitches,
		&e.IsPublished, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// GetDefinition retrieves the full exam definition: metadata plus ordered
// questions with all choices including correct flags. This is the live read
// performed at attempt start and again at grading time.
func (r *ExamRepository) GetDefinition(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	exam, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	def := &model.ExamDefinition{Exam: *exam}

	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_text, points, order_num
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num, id`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.Points, &q.OrderNum); err != nil {
			return nil, err
		}
		index[q.ID] = len(def.Questions)
		def.Questions = append(def.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(def.Questions) == 0 {
		return def, nil
	}

	crows, err := r.pool.Query(ctx,
		`SELECT c.id, c.question_id, c.choice_text, c.is_correct, c.order_num
		 FROM choices c
		 JOIN questions q ON q.id = c.question_id
		 WHERE q.exam_id = $1
		 ORDER BY c.order_num, c.id`, id,
	)
	if err != nil {
		return nil, err
	}
	defer crows.Close()

	for crows.Next() {
		var c model.Choice
		if err := crows.Scan(&c.ID, &c.QuestionID, &c.ChoiceText, &c.IsCorrect, &c.OrderNum); err != nil {
			return nil, err
		}
		if i, ok := index[c.QuestionID]; ok {
			def.Questions[i].Choices = append(def.Questions[i].Choices, c)
		}
	}
	return def, crows.Err()
}
