// Package store provides the JetStream-backed retained event log serving the
// history API.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/examportal/realtime-platform/internal/model"
	"github.com/examportal/realtime-platform/internal/realtime"
	"github.com/examportal/realtime-platform/pkg/logger"
	"github.com/examportal/realtime-platform/pkg/metrics"
)

// StreamName is the name of the retained realtime event stream.
const StreamName = "REALTIME_EVENTS"

// Store publishes realtime events into a retained stream and reads them back
// for history fetches. The gateway side keeps its own plain connection with
// unbounded reconnects; the client-side bounded policy lives in realtime.
type Store struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log *logger.Logger
}

// Connect establishes the gateway's NATS connection and JetStream context.
func Connect(ctx context.Context, cfg realtime.Config, log *logger.Logger) (*Store, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error("NATS error", zap.Error(err))
		}),
	}

	if cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsConfig, err := realtime.NewTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Store{nc: nc, js: js, log: log}, nil
}

// EnsureStream ensures the event stream exists. Control subjects are not
// retained; only room-scoped push events are.
func (s *Store) EnsureStream(ctx context.Context) error {
	_, err := s.js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = s.js.CreateStream(ctx, jetstream.StreamConfig{
		Name: StreamName,
		Subjects: []string{
			fmt.Sprintf("%s.support_chat.>", realtime.SubjectPrefix),
			fmt.Sprintf("%s.exam_monitoring.>", realtime.SubjectPrefix),
		},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Support chat and exam monitoring events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// Publish persists and fans out one event. Events gain their durable id
// here: this is the moment a live-pushed event becomes addressable by rule-1
// dedup on the client side.
func (s *Store) Publish(ctx context.Context, room realtime.Room, event string, evt model.Event) (model.Event, error) {
	if evt.ID == "" {
		evt.ID = uuid.Must(uuid.NewV7()).String()
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return evt, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := s.js.Publish(ctx, realtime.Subject(room, event), data)
	if err != nil {
		return evt, fmt.Errorf("failed to publish event: %w", err)
	}

	metrics.StreamEventsStored.WithLabelValues(StreamName).Set(float64(ack.Sequence))
	return evt, nil
}

// fetchBatchSize is how many stream messages one Fetch round requests.
const fetchBatchSize = 256

// messageFetcher is the slice of jetstream.Consumer the fetch loop uses.
type messageFetcher interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// Fetch reads the retained log for a room as storage records. userID narrows
// a support-chat fetch to one participant's conversation (their own events
// plus admin replies targeting them).
func (s *Store) Fetch(ctx context.Context, room realtime.Room, limit, offset int, userID string) ([]model.RawRecord, error) {
	filterSubject := fmt.Sprintf("%s.support_chat.>", realtime.SubjectPrefix)
	if room.Kind == realtime.RoomKindExamMonitoring {
		filterSubject = fmt.Sprintf("%s.exam_monitoring.%s.>", realtime.SubjectPrefix, room.ExamID)
	}

	consumer, err := s.js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return collectRecords(ctx, consumer, limit, offset, userID)
}

// collectRecords keeps fetching batches until limit+offset rows survive the
// user filter or the stream is exhausted. A single over-sized fetch is not
// enough: with a sparse user filter the matching rows can sit arbitrarily
// deep in the stream.
func collectRecords(ctx context.Context, consumer messageFetcher, limit, offset int, userID string) ([]model.RawRecord, error) {
	needed := limit + offset

	var records []model.RawRecord
	for len(records) < needed {
		batch, err := consumer.Fetch(fetchBatchSize, jetstream.FetchMaxWait(fetchWait(ctx)))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch events: %w", err)
		}

		received := 0
		for msg := range batch.Messages() {
			received++
			var evt model.Event
			if err := json.Unmarshal(msg.Data(), &evt); err != nil {
				continue
			}
			if userID != "" && evt.ParticipantID != userID && evt.ConversationTarget != userID {
				continue
			}
			records = append(records, model.Denormalize(evt))
		}
		if batch.Error() != nil && batch.Error() != context.DeadlineExceeded {
			return nil, fmt.Errorf("batch error: %w", batch.Error())
		}

		// A short batch means the stream has no more retained messages.
		if received < fetchBatchSize {
			break
		}
	}

	if offset > len(records) {
		offset = len(records)
	}
	records = records[offset:]
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// fetchWait bounds one batch wait, clamped to the caller's deadline.
func fetchWait(ctx context.Context) time.Duration {
	wait := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < wait {
			wait = remaining
		}
	}
	return wait
}

// IsConnected reports whether the gateway connection is up.
func (s *Store) IsConnected() bool {
	return s.nc != nil && s.nc.IsConnected()
}

// Close closes the gateway connection.
func (s *Store) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
