// Package history fetches the persisted event log and reconciles it with the
// live stream.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/examportal/realtime-platform/internal/model"
	"github.com/examportal/realtime-platform/internal/realtime"
	"github.com/examportal/realtime-platform/pkg/metrics"
)

var tracer = otel.Tracer("history")

// Source provides one historical snapshot per consumer mount.
type Source interface {
	Fetch(ctx context.Context, room realtime.Room, limit int, userID string) ([]model.Event, error)
}

// Client fetches history snapshots from the log API.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewClient creates a history API client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch retrieves the persisted log for a room, normalized into the event
// union and in storage order. userID optionally narrows a support-chat fetch
// to one participant's conversation.
func (c *Client) Fetch(ctx context.Context, room realtime.Room, limit int, userID string) ([]model.Event, error) {
	ctx, span := tracer.Start(ctx, "history.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("room", room.Key()))

	start := time.Now()
	events, err := c.fetch(ctx, room, limit, userID)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	metrics.RecordHistoryFetch(string(room.Kind), status, time.Since(start).Seconds())

	return events, err
}

func (c *Client) fetch(ctx context.Context, room realtime.Room, limit int, userID string) ([]model.Event, error) {
	endpoint, err := url.Parse(c.baseURL + historyPath(room))
	if err != nil {
		return nil, fmt.Errorf("invalid history URL: %w", err)
	}

	q := endpoint.Query()
	q.Set("limit", strconv.Itoa(limit))
	if userID != "" {
		q.Set("user_id", userID)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build history request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history fetch returned status %d", resp.StatusCode)
	}

	var envelope model.HistoryEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode history response: %w", err)
	}

	events := make([]model.Event, 0, len(envelope.Data))
	for _, record := range envelope.Data {
		events = append(events, record.Normalize())
	}
	return events, nil
}

func historyPath(room realtime.Room) string {
	if room.Kind == realtime.RoomKindExamMonitoring {
		return "/api/v1/exams/" + room.ExamID + "/events"
	}
	return "/api/v1/support/messages"
}
