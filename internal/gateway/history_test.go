package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/examportal/realtime-platform/internal/middleware"
	"github.com/examportal/realtime-platform/internal/model"
	"github.com/examportal/realtime-platform/internal/realtime"
	"github.com/examportal/realtime-platform/pkg/logger"
)

type fakeStore struct {
	records   []model.RawRecord
	fetchErr  error
	published []model.Event

	gotRoom   realtime.Room
	gotLimit  int
	gotOffset int
	gotUserID string
}

func (f *fakeStore) Publish(ctx context.Context, room realtime.Room, event string, evt model.Event) (model.Event, error) {
	f.gotRoom = room
	if evt.ID == "" {
		evt.ID = "generated-id"
	}
	f.published = append(f.published, evt)
	return evt, nil
}

func (f *fakeStore) Fetch(ctx context.Context, room realtime.Room, limit, offset int, userID string) ([]model.RawRecord, error) {
	f.gotRoom = room
	f.gotLimit = limit
	f.gotOffset = offset
	f.gotUserID = userID
	return f.records, f.fetchErr
}

func (f *fakeStore) IsConnected() bool { return true }

func newTestRouter(store *fakeStore) http.Handler {
	h := NewLogHandler(store, logger.NewNop())

	r := chi.NewRouter()
	r.Get("/api/v1/support/messages", h.SupportMessages)
	r.Post("/api/v1/support/messages", h.PostSupportMessage)
	r.Get("/api/v1/exams/{id}/events", h.ExamEvents)
	r.Post("/api/v1/exams/{id}/events", h.PostExamEvent)
	return r
}

func TestSupportMessages_ReturnsEnvelope(t *testing.T) {
	req := require.New(t)

	store := &fakeStore{records: []model.RawRecord{
		{ID: "evt-1", UserID: "a", Content: "hello", Timestamp: 1000, MessageType: "message"},
	}}
	router := newTestRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/support/messages?limit=25&user_id=a", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.Equal("support_chat", store.gotRoom.Key())
	req.Equal(25, store.gotLimit)
	req.Equal("a", store.gotUserID)

	var envelope model.HistoryEnvelope
	req.NoError(json.NewDecoder(rec.Body).Decode(&envelope))
	req.Len(envelope.Data, 1)
	req.Equal("evt-1", envelope.Data[0].ID)
}

func TestSupportMessages_LimitCapped(t *testing.T) {
	req := require.New(t)

	store := &fakeStore{}
	router := newTestRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/support/messages?limit=9999", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.Equal(500, store.gotLimit)
}

func TestSupportMessages_StoreError(t *testing.T) {
	req := require.New(t)

	store := &fakeStore{fetchErr: errors.New("stream gone")}
	router := newTestRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/support/messages", nil))

	req.Equal(http.StatusInternalServerError, rec.Code)
}

func TestExamEvents_RoomFromPath(t *testing.T) {
	req := require.New(t)

	store := &fakeStore{}
	router := newTestRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/exams/42/events", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.Equal("exam_monitoring:42", store.gotRoom.Key())
}

func TestPostSupportMessage_IdentityFromToken(t *testing.T) {
	req := require.New(t)

	store := &fakeStore{}
	router := newTestRouter(store)

	body, _ := json.Marshal(model.OutboundMessage{
		Content: "hello",
		// Body identity fields are ignored in favor of the token claims.
		ParticipantID: "spoofed",
	})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/support/messages", bytes.NewReader(body))

	ctx := context.WithValue(r.Context(), middleware.ParticipantIDKey, "student-a")
	ctx = context.WithValue(ctx, middleware.RoleKey, "student")
	ctx = context.WithValue(ctx, middleware.DisplayNameKey, "Student A")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r.WithContext(ctx))

	req.Equal(http.StatusCreated, rec.Code)
	req.Len(store.published, 1)
	req.Equal("student-a", store.published[0].ParticipantID)
	req.Equal(model.RoleStudent, store.published[0].Role)
	req.Equal(model.KindMessage, store.published[0].Kind)
	req.NotZero(store.published[0].Timestamp)

	var evt model.Event
	req.NoError(json.NewDecoder(rec.Body).Decode(&evt))
	req.Equal("generated-id", evt.ID)
}

func TestPostSupportMessage_RejectsBlankContent(t *testing.T) {
	req := require.New(t)

	store := &fakeStore{}
	router := newTestRouter(store)

	body, _ := json.Marshal(model.OutboundMessage{Content: "   "})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/support/messages", bytes.NewReader(body)))

	req.Equal(http.StatusBadRequest, rec.Code)
	req.Empty(store.published)
}

func TestPostExamEvent(t *testing.T) {
	req := require.New(t)

	store := &fakeStore{}
	router := newTestRouter(store)

	body, _ := json.Marshal(PostExamEventRequest{
		ParticipantID: "student-b",
		DisplayName:   "Student B",
		Content:       "tab switch detected",
		EventType:     "tab_switch",
		Severity:      model.SeverityLow,
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/exams/42/events", bytes.NewReader(body)))

	req.Equal(http.StatusCreated, rec.Code)
	req.Equal("exam_monitoring:42", store.gotRoom.Key())
	req.Len(store.published, 1)
	req.Equal(model.SystemCheating, store.published[0].SystemType)
	req.Equal("tab_switch", store.published[0].EventType)
}

func TestPostExamEvent_RejectsMissingParticipant(t *testing.T) {
	req := require.New(t)

	store := &fakeStore{}
	router := newTestRouter(store)

	body, _ := json.Marshal(PostExamEventRequest{Content: "tab switch detected"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/exams/42/events", bytes.NewReader(body)))

	req.Equal(http.StatusBadRequest, rec.Code)
	req.Empty(store.published)
}
