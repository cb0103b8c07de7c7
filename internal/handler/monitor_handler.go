package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/klasio/klasio-backend/internal/config"
	"github.com/klasio/klasio-backend/internal/middleware"
	"github.com/klasio/klasio-backend/internal/model"
	"github.com/klasio/klasio-backend/internal/response"
	ws "github.com/klasio/klasio-backend/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const monitorPingInterval = 30 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// ExamGetter reads exam metadata for stream validation.
type ExamGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// MonitorHandler streams attempt lifecycle events to proctors over WebSocket.
type MonitorHandler struct {
	rdb      *redis.Client
	exams    ExamGetter
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, exams ExamGetter, log zerolog.Logger, allowedOrigins []string) *MonitorHandler {
	return &MonitorHandler{
		rdb:      rdb,
		exams:    exams,
		log:      log.With().Str("component", "monitor_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// MonitorExamStream godoc
// WS /ws/v1/exams/:exam_id/monitor
// Subscribes the proctor to every attempt event published for the exam:
// starts, tab switches, flags and submissions, as they happen.
func (h *MonitorHandler) MonitorExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if _, err := h.exams.GetByID(c.Request.Context(), examID); err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("staff_id", claims.UserID).
		Str("exam_id", examID.String()).
		Logger()
	wsLog.Info().Msg("Proctor attached to live monitor")

	reqCtx := c.Request.Context()

	channelName := config.CacheKey.ExamMonitorChannel(examID.String())
	pubsub := h.rdb.Subscribe(reqCtx, channelName)
	defer pubsub.Close()

	events := pubsub.Channel()

	// Reader pump: the proctor only ever sends pings, but reading is what
	// detects a closed connection. Pings are handed to the select loop below
	// so the connection keeps a single writer.
	done := make(chan struct{})
	pings := make(chan struct{}, 1)
	go func() {
		defer close(done)
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				return
			}
			if msg.Action == ws.ActionPing {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	pingTicker := time.NewTicker(monitorPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-reqCtx.Done():
			wsLog.Info().Msg("Proctor request context canceled")
			return
		case <-done:
			wsLog.Info().Msg("Proctor disconnected")
			return
		case <-pings:
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				wsLog.Debug().Err(err).Msg("Pong write failed")
				return
			}
		case msg, ok := <-events:
			if !ok {
				wsLog.Warn().Msg("Monitor subscription closed")
				return
			}
			if err := ws.WriteTyped(conn, ws.AttemptEventMessage{
				Event:   ws.EventAttempt,
				Payload: []byte(msg.Payload),
			}); err != nil {
				wsLog.Debug().Err(err).Msg("Monitor write failed")
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				wsLog.Debug().Err(err).Msg("Keepalive ping failed")
				return
			}
		}
	}
}
