package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/klasio/klasio-backend/internal/config"
	"github.com/klasio/klasio-backend/internal/model"
	"github.com/rs/zerolog"
)

// countingExamStore tracks how often the definition is rebuilt from the DB.
type countingExamStore struct {
	memExamStore
	calls int
}

func (c *countingExamStore) GetDefinition(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	c.calls++
	return c.memExamStore.GetDefinition(ctx, examID)
}

func publishedDef(examID uuid.UUID) *model.ExamDefinition {
	qID := uuid.New()
	return &model.ExamDefinition{
		Exam: model.Exam{ID: examID, Title: "Finals", IsPublished: true, MaxTabSwitches: 3},
		Questions: []model.Question{
			{ID: qID, ExamID: examID, QuestionText: "Q", Points: 5,
				Choices: []model.Choice{
					{ID: uuid.New(), QuestionID: qID, IsCorrect: true},
					{ID: uuid.New(), QuestionID: qID},
				}},
		},
	}
}

func TestStudentPaperHidesAnswerKey(t *testing.T) {
	_, rdb := newTestRedis(t)
	examID := uuid.New()
	store := &countingExamStore{memExamStore: memExamStore{defs: map[uuid.UUID]*model.ExamDefinition{examID: publishedDef(examID)}}}
	svc := NewExamService(store, rdb, zerolog.Nop())

	paper, err := svc.StudentPaper(context.Background(), examID)
	if err != nil {
		t.Fatalf("student paper: %v", err)
	}
	if len(paper.Questions) != 1 || len(paper.Questions[0].Choices) != 2 {
		t.Fatalf("unexpected paper shape: %+v", paper)
	}

	// The cached JSON must not carry correctness flags either.
	raw := rdb.Get(context.Background(), config.CacheKey.ExamPaperKey(examID.String())).Val()
	if raw == "" {
		t.Fatal("paper was not cached")
	}
	for _, needle := range []string{"is_correct", "IsCorrect"} {
		if strings.Contains(raw, needle) {
			t.Errorf("cached paper leaks %q: %s", needle, raw)
		}
	}
}

func TestStudentPaperServedFromCache(t *testing.T) {
	_, rdb := newTestRedis(t)
	examID := uuid.New()
	store := &countingExamStore{memExamStore: memExamStore{defs: map[uuid.UUID]*model.ExamDefinition{examID: publishedDef(examID)}}}
	svc := NewExamService(store, rdb, zerolog.Nop())

	ctx := context.Background()
	if _, err := svc.StudentPaper(ctx, examID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.StudentPaper(ctx, examID); err != nil {
		t.Fatal(err)
	}

	if store.calls != 1 {
		t.Errorf("definition loaded %d times, want 1 (second read should hit cache)", store.calls)
	}
}

func TestStudentPaperCorruptCacheFallsThrough(t *testing.T) {
	mr, rdb := newTestRedis(t)
	examID := uuid.New()
	store := &countingExamStore{memExamStore: memExamStore{defs: map[uuid.UUID]*model.ExamDefinition{examID: publishedDef(examID)}}}
	svc := NewExamService(store, rdb, zerolog.Nop())

	mr.Set(config.CacheKey.ExamPaperKey(examID.String()), "{not json")

	paper, err := svc.StudentPaper(context.Background(), examID)
	if err != nil {
		t.Fatalf("student paper with corrupt cache: %v", err)
	}
	if paper.ID != examID {
		t.Errorf("paper exam ID = %s, want %s", paper.ID, examID)
	}
}

func TestStudentPaperUnpublished(t *testing.T) {
	_, rdb := newTestRedis(t)
	examID := uuid.New()
	def := publishedDef(examID)
	def.IsPublished = false
	store := &countingExamStore{memExamStore: memExamStore{defs: map[uuid.UUID]*model.ExamDefinition{examID: def}}}
	svc := NewExamService(store, rdb, zerolog.Nop())

	_, err := svc.StudentPaper(context.Background(), examID)
	if !errors.Is(err, ErrExamNotPublished) {
		t.Errorf("err = %v, want ErrExamNotPublished", err)
	}
}

func TestInvalidatePaperForcesRebuild(t *testing.T) {
	_, rdb := newTestRedis(t)
	examID := uuid.New()
	store := &countingExamStore{memExamStore: memExamStore{defs: map[uuid.UUID]*model.ExamDefinition{examID: publishedDef(examID)}}}
	svc := NewExamService(store, rdb, zerolog.Nop())

	ctx := context.Background()
	if _, err := svc.StudentPaper(ctx, examID); err != nil {
		t.Fatal(err)
	}
	if err := svc.InvalidatePaper(ctx, examID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.StudentPaper(ctx, examID); err != nil {
		t.Fatal(err)
	}

	if store.calls != 2 {
		t.Errorf("definition loaded %d times, want 2 after invalidation", store.calls)
	}
}
