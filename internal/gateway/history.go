// Package gateway exposes the retained event log over HTTP: the history
// fetch interface the realtime consumers reconcile against, plus publish
// endpoints for web clients that cannot speak the transport directly.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/examportal/realtime-platform/internal/middleware"
	"github.com/examportal/realtime-platform/internal/model"
	"github.com/examportal/realtime-platform/internal/realtime"
	"github.com/examportal/realtime-platform/pkg/logger"
)

var tracer = otel.Tracer("gateway")

// EventStore is the retained log the gateway serves and writes.
type EventStore interface {
	Publish(ctx context.Context, room realtime.Room, event string, evt model.Event) (model.Event, error)
	Fetch(ctx context.Context, room realtime.Room, limit, offset int, userID string) ([]model.RawRecord, error)
	IsConnected() bool
}

// LogHandler serves the persisted conversation/event log.
type LogHandler struct {
	store EventStore
	log   *logger.Logger
}

// NewLogHandler creates a new log handler.
func NewLogHandler(store EventStore, log *logger.Logger) *LogHandler {
	return &LogHandler{store: store, log: log}
}

// SupportMessages handles GET /api/v1/support/messages
// Query: limit, offset, user_id (narrow to one participant's conversation).
func (h *LogHandler) SupportMessages(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "gateway.SupportMessages")
	defer span.End()

	limit, offset := pagination(r)
	userID := r.URL.Query().Get("user_id")

	records, err := h.store.Fetch(ctx, realtime.SupportChatRoom(), limit, offset, userID)
	if err != nil {
		h.log.Error("failed to fetch support log", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	writeJSON(w, http.StatusOK, model.HistoryEnvelope{Data: records})
}

// ExamEvents handles GET /api/v1/exams/{id}/events
func (h *LogHandler) ExamEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "gateway.ExamEvents")
	defer span.End()

	examID := chi.URLParam(r, "id")
	if err := middleware.ValidateExamID(examID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, offset := pagination(r)

	records, err := h.store.Fetch(ctx, realtime.ExamMonitoringRoom(examID), limit, offset, "")
	if err != nil {
		h.log.Error("failed to fetch exam events", zap.String("exam_id", examID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch events")
		return
	}

	writeJSON(w, http.StatusOK, model.HistoryEnvelope{Data: records})
}

// PostSupportMessage handles POST /api/v1/support/messages
// Identity comes from the verified token, not the request body.
func (h *LogHandler) PostSupportMessage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "gateway.PostSupportMessage")
	defer span.End()

	var req model.OutboundMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	evt := model.Event{
		Kind:               model.KindMessage,
		ParticipantID:      middleware.GetParticipantID(ctx),
		Role:               model.Role(middleware.GetRole(ctx)),
		DisplayName:        middleware.GetDisplayName(ctx),
		Content:            req.Content,
		ConversationTarget: req.ConversationTarget,
		Timestamp:          time.Now().UnixMilli(),
	}

	evt, err := h.store.Publish(ctx, realtime.SupportChatRoom(), realtime.EventSupportMessage, evt)
	if err != nil {
		h.log.Error("failed to publish support message", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to publish message")
		return
	}

	writeJSON(w, http.StatusCreated, evt)
}

// PostExamEventRequest is the body for reporting a monitoring event.
type PostExamEventRequest struct {
	ParticipantID string         `json:"participant_id"`
	DisplayName   string         `json:"display_name"`
	Content       string         `json:"content"`
	EventType     string         `json:"event_type"`
	Severity      model.Severity `json:"severity"`
}

// PostExamEvent handles POST /api/v1/exams/{id}/events
func (h *LogHandler) PostExamEvent(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "gateway.PostExamEvent")
	defer span.End()

	examID := chi.URLParam(r, "id")
	if err := middleware.ValidateExamID(examID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req PostExamEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateParticipantID(req.ParticipantID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	evt := model.Event{
		Kind:          model.KindSystem,
		SystemType:    model.SystemCheating,
		ParticipantID: req.ParticipantID,
		DisplayName:   req.DisplayName,
		Content:       req.Content,
		EventType:     req.EventType,
		Severity:      req.Severity,
		Timestamp:     time.Now().UnixMilli(),
	}

	evt, err := h.store.Publish(ctx, realtime.ExamMonitoringRoom(examID), realtime.EventNewCheatingEvent, evt)
	if err != nil {
		h.log.Error("failed to publish exam event", zap.String("exam_id", examID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to publish event")
		return
	}

	writeJSON(w, http.StatusCreated, evt)
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset
}
