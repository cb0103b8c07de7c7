package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/klasio/klasio-backend/internal/grading"
	"github.com/klasio/klasio-backend/internal/middleware"
	"github.com/klasio/klasio-backend/internal/model"
	"github.com/klasio/klasio-backend/internal/response"
	"github.com/klasio/klasio-backend/internal/service"
	"github.com/rs/zerolog"
)

// Minimal store doubles for handler-level status mapping tests. Only the
// paths the test exercises return live data.

type singleAttemptStore struct {
	attempt *model.Attempt
}

func (s *singleAttemptStore) FindByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	if s.attempt == nil || s.attempt.ID != id {
		return nil, model.ErrNotFound
	}
	c := *s.attempt
	return &c, nil
}

func (s *singleAttemptStore) FindByIdentity(context.Context, uuid.UUID, int, *uuid.UUID) (*model.Attempt, error) {
	return nil, model.ErrNotFound
}

func (s *singleAttemptStore) Create(context.Context, *model.Attempt) error { return nil }

func (s *singleAttemptStore) Answers(context.Context, uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	return map[uuid.UUID]uuid.UUID{}, nil
}

func (s *singleAttemptStore) UpsertAnswer(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) error {
	return model.ErrAttemptNotActive
}

func (s *singleAttemptStore) IncrementTabSwitch(context.Context, uuid.UUID) (int, error) {
	return 0, model.ErrAttemptNotActive
}

func (s *singleAttemptStore) Finalize(context.Context, uuid.UUID, model.AttemptStatus, time.Time,
	func(map[uuid.UUID]uuid.UUID) (*grading.Result, error)) (*grading.Result, error) {
	return nil, model.ErrAttemptNotActive
}

type emptyExamStore struct{}

func (emptyExamStore) GetDefinition(context.Context, uuid.UUID) (*model.ExamDefinition, error) {
	return nil, model.ErrNotFound
}

func studentClaims(studentID int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{
			TokenType: service.TokenTypeStudent,
			UserID:    studentID,
		})
		c.Next()
	}
}

func TestGetResultInProgressReturnsGone(t *testing.T) {
	gin.SetMode(gin.TestMode)

	attempt := &model.Attempt{
		ID:        uuid.New(),
		ExamID:    uuid.New(),
		StudentID: 7,
		Status:    model.AttemptStatusInProgress,
		StartedAt: time.Now(),
	}
	svc := service.NewAttemptService(emptyExamStore{}, &singleAttemptStore{attempt: attempt},
		nil, 30*time.Second, zerolog.Nop())
	h := NewAttemptHandler(svc, nil)

	r := gin.New()
	r.GET("/api/v1/student/attempts/:attempt_id/result", studentClaims(7), h.GetResult)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/student/attempts/"+attempt.ID.String()+"/result", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusGone {
		t.Errorf("status = %d, want %d", w.Code, http.StatusGone)
	}

	var body response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Error == nil || body.Error.Code != response.ErrResultNotReady {
		t.Errorf("error = %+v, want code %s", body.Error, response.ErrResultNotReady)
	}
}

func TestGetResultForeignStudentHidden(t *testing.T) {
	gin.SetMode(gin.TestMode)

	attempt := &model.Attempt{
		ID:        uuid.New(),
		ExamID:    uuid.New(),
		StudentID: 7,
		Status:    model.AttemptStatusInProgress,
		StartedAt: time.Now(),
	}
	svc := service.NewAttemptService(emptyExamStore{}, &singleAttemptStore{attempt: attempt},
		nil, 30*time.Second, zerolog.Nop())
	h := NewAttemptHandler(svc, nil)

	r := gin.New()
	r.GET("/api/v1/student/attempts/:attempt_id/result", studentClaims(8), h.GetResult)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/student/attempts/"+attempt.ID.String()+"/result", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
