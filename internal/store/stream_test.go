package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/examportal/realtime-platform/internal/model"
)

type fakeMsg struct {
	data []byte
}

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) { return nil, nil }
func (m *fakeMsg) Data() []byte                              { return m.data }
func (m *fakeMsg) Headers() nats.Header                      { return nil }
func (m *fakeMsg) Subject() string                           { return "" }
func (m *fakeMsg) Reply() string                             { return "" }
func (m *fakeMsg) Ack() error                                { return nil }
func (m *fakeMsg) DoubleAck(context.Context) error           { return nil }
func (m *fakeMsg) Nak() error                                { return nil }
func (m *fakeMsg) NakWithDelay(time.Duration) error          { return nil }
func (m *fakeMsg) InProgress() error                         { return nil }
func (m *fakeMsg) Term() error                               { return nil }
func (m *fakeMsg) TermWithReason(string) error               { return nil }

type fakeBatch struct {
	msgs []jetstream.Msg
}

func (b *fakeBatch) Messages() <-chan jetstream.Msg {
	ch := make(chan jetstream.Msg, len(b.msgs))
	for _, m := range b.msgs {
		ch <- m
	}
	close(ch)
	return ch
}

func (b *fakeBatch) Error() error { return nil }

// fakeConsumer replays a fixed message sequence batch by batch, the way an
// ephemeral consumer walks the retained stream.
type fakeConsumer struct {
	msgs  []jetstream.Msg
	pos   int
	calls int
}

func (c *fakeConsumer) Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error) {
	c.calls++
	end := c.pos + batch
	if end > len(c.msgs) {
		end = len(c.msgs)
	}
	out := &fakeBatch{msgs: c.msgs[c.pos:end]}
	c.pos = end
	return out, nil
}

func eventMsg(t *testing.T, participant, content string, ts int64) jetstream.Msg {
	t.Helper()
	data, err := json.Marshal(model.Event{
		Kind:          model.KindMessage,
		ParticipantID: participant,
		Content:       content,
		Timestamp:     ts,
	})
	require.NoError(t, err)
	return &fakeMsg{data: data}
}

func TestCollectRecords_UserFilterScansPastFirstBatch(t *testing.T) {
	req := require.New(t)

	// The target participant's rows sit beyond the first fetch window, behind
	// a block of other participants' traffic.
	consumer := &fakeConsumer{}
	for i := 0; i < fetchBatchSize+40; i++ {
		consumer.msgs = append(consumer.msgs, eventMsg(t, "other", fmt.Sprintf("noise %d", i), int64(i)))
	}
	for i := 0; i < 3; i++ {
		consumer.msgs = append(consumer.msgs, eventMsg(t, "a", fmt.Sprintf("mine %d", i), int64(10000+i)))
	}

	records, err := collectRecords(context.Background(), consumer, 10, 0, "a")
	req.NoError(err)

	req.Len(records, 3)
	req.Equal("mine 0", records[0].Content)
	req.GreaterOrEqual(consumer.calls, 2)
}

func TestCollectRecords_OffsetAndLimit(t *testing.T) {
	req := require.New(t)

	consumer := &fakeConsumer{}
	for i := 0; i < 10; i++ {
		consumer.msgs = append(consumer.msgs, eventMsg(t, "a", fmt.Sprintf("msg %d", i), int64(i)))
	}

	records, err := collectRecords(context.Background(), consumer, 3, 2, "")
	req.NoError(err)

	req.Len(records, 3)
	req.Equal("msg 2", records[0].Content)
	req.Equal("msg 4", records[2].Content)
}

func TestCollectRecords_StopsOnceSatisfied(t *testing.T) {
	req := require.New(t)

	consumer := &fakeConsumer{}
	for i := 0; i < 3*fetchBatchSize; i++ {
		consumer.msgs = append(consumer.msgs, eventMsg(t, "a", fmt.Sprintf("msg %d", i), int64(i)))
	}

	records, err := collectRecords(context.Background(), consumer, 5, 0, "")
	req.NoError(err)

	req.Len(records, 5)
	req.Equal(1, consumer.calls)
}

func TestCollectRecords_ShortBatchEndsScan(t *testing.T) {
	req := require.New(t)

	// Fewer retained messages than requested: the scan terminates instead of
	// polling an exhausted stream.
	consumer := &fakeConsumer{msgs: []jetstream.Msg{
		eventMsg(t, "a", "only one", 1000),
	}}

	records, err := collectRecords(context.Background(), consumer, 50, 0, "")
	req.NoError(err)

	req.Len(records, 1)
	req.Equal(1, consumer.calls)
}
