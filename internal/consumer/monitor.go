package consumer

import (
	"context"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/examportal/realtime-platform/internal/dedup"
	"github.com/examportal/realtime-platform/internal/history"
	"github.com/examportal/realtime-platform/internal/model"
	"github.com/examportal/realtime-platform/internal/realtime"
	"github.com/examportal/realtime-platform/pkg/logger"
	"github.com/examportal/realtime-platform/pkg/metrics"
)

// AlertFunc receives a user-visible alert for an incoming monitoring event.
type AlertFunc func(model.Event)

// ParticipantStats aggregates one participant's monitoring events.
type ParticipantStats struct {
	ParticipantID  string
	DisplayName    string
	Total          int
	ByType         map[string]int
	BySeverity     map[model.Severity]int
	FirstTimestamp int64
	LastTimestamp  int64
}

// ExamMonitor is the exam-monitoring surface for one exam session. The room
// is joined once at start; the live flag only controls whether incoming
// events additionally raise alerts, never the membership itself.
type ExamMonitor struct {
	conn    Conn
	source  history.Source
	rec     *history.Reconciler
	local   model.Identity
	room    realtime.Room
	limit   int
	onAlert AlertFunc
	log     *logger.Logger

	mu   sync.Mutex
	live bool
	subs []realtime.Subscription
}

// NewExamMonitor creates the monitoring view for one exam.
func NewExamMonitor(conn Conn, source history.Source, local model.Identity, examID string, limit int, onAlert AlertFunc, log *logger.Logger) *ExamMonitor {
	return &ExamMonitor{
		conn:    conn,
		source:  source,
		rec:     history.NewReconciler(),
		local:   local,
		room:    realtime.ExamMonitoringRoom(examID),
		limit:   limit,
		onAlert: onAlert,
		log:     log.WithRoom(realtime.ExamMonitoringRoom(examID).Key()),
	}
}

// Start joins the exam room, subscribes to cheating events and loads the
// recorded event history for the session.
func (m *ExamMonitor) Start(ctx context.Context) error {
	m.conn.Join(m.room, m.local)

	sub, err := m.conn.Subscribe(m.room, realtime.EventNewCheatingEvent, m.handleEvent)
	if err != nil {
		return err
	}
	m.subs = append(m.subs, sub)

	snapshot, err := m.source.Fetch(ctx, m.room, m.limit, "")
	if err != nil {
		m.log.Error("history fetch failed, proceeding with live events only", zap.Error(err))
		snapshot = nil
	}
	m.rec.Install(snapshot)

	metrics.ConsumersActive.WithLabelValues("exam_monitor").Inc()
	return nil
}

// Stop disposes this monitor's subscriptions and leaves its exam room. The
// shared connection stays up for other consumers.
func (m *ExamMonitor) Stop() {
	unsubscribeAll(m.subs)
	m.subs = nil
	m.conn.Leave(m.room)
	metrics.ConsumersActive.WithLabelValues("exam_monitor").Dec()
}

// SetLive toggles live monitoring. Independent of room membership: events
// keep flowing into the log either way, only alerting is gated.
func (m *ExamMonitor) SetLive(live bool) {
	m.mu.Lock()
	m.live = live
	m.mu.Unlock()
}

// Live reports whether live monitoring is on.
func (m *ExamMonitor) Live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

func (m *ExamMonitor) handleEvent(evt model.Event) {
	if !accept(evt, m.local) {
		return
	}

	_, inserted := m.rec.Push(evt)

	if inserted && m.Live() && m.onAlert != nil {
		m.onAlert(evt)
	}
}

// Log returns the full deduplicated monitoring log.
func (m *ExamMonitor) Log() dedup.Log {
	return m.rec.Log()
}

// Stats recomputes per-participant aggregates from the full log: event
// counts grouped by type and severity plus first/last timestamps.
func (m *ExamMonitor) Stats() []ParticipantStats {
	log := m.rec.Log()

	grouped := lo.GroupBy(log, func(evt model.Event) string {
		return evt.ParticipantID
	})

	stats := make([]ParticipantStats, 0, len(grouped))
	for participantID, events := range grouped {
		s := ParticipantStats{
			ParticipantID: participantID,
			DisplayName:   displayNameFor(events, participantID),
			Total:         len(events),
			ByType:        map[string]int{},
			BySeverity:    map[model.Severity]int{},
		}

		for _, evt := range events {
			if evt.EventType != "" {
				s.ByType[evt.EventType]++
			}
			if evt.Severity != "" {
				s.BySeverity[evt.Severity]++
			}
			if s.FirstTimestamp == 0 || evt.Timestamp < s.FirstTimestamp {
				s.FirstTimestamp = evt.Timestamp
			}
			if evt.Timestamp > s.LastTimestamp {
				s.LastTimestamp = evt.Timestamp
			}
		}

		stats = append(stats, s)
	}
	return stats
}
