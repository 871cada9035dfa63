package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/genrelay/pkg/eventstream"
)

type recordingWriter struct {
	messages    []kafkago.Message
	deadlineSet bool
	err         error
	closed      bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	_, w.deadlineSet = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		writer *recordingWriter
		pub    *Publisher
		event  *eventstream.SessionCompletedEvent
	)

	BeforeEach(func() {
		writer = &recordingWriter{}
		pub = newPublisher(writer, 0)
		event = &eventstream.SessionCompletedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeSessionCompleted,
			EventID:       "evt_1",
			EmittedAt:     time.Unix(1735689600, 0).UTC(),
			Session:       eventstream.SessionMeta{ID: "sess_1", Outcome: "result"},
		}
	})

	It("validates its configuration", func() {
		_, err := NewPublisher(Config{Topic: "t"})
		Expect(err).To(MatchError(ContainSubstring("broker")))

		_, err = NewPublisher(Config{Brokers: []string{"localhost:9092"}})
		Expect(err).To(MatchError(ContainSubstring("topic")))

		p, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}, Topic: "t"})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).To(Succeed())
	})

	It("writes one JSON message keyed by session id", func() {
		Expect(pub.PublishSession(context.Background(), event)).To(Succeed())
		Expect(writer.messages).To(HaveLen(1))
		Expect(writer.deadlineSet).To(BeTrue())

		msg := writer.messages[0]
		Expect(string(msg.Key)).To(Equal("sess_1"))
		Expect(msg.Time).To(Equal(event.EmittedAt))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "event_type", Value: []byte("genrelay.session.completed")}))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "schema_version", Value: []byte("1")}))

		var decoded eventstream.SessionCompletedEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.EventID).To(Equal("evt_1"))
		Expect(decoded.Session.Outcome).To(Equal("result"))
	})

	It("rejects nil events without writing", func() {
		Expect(pub.PublishSession(context.Background(), nil)).To(MatchError(eventstream.ErrNilSessionEvent))
		Expect(writer.messages).To(BeEmpty())
	})

	It("wraps writer failures", func() {
		boom := errors.New("leader not available")
		writer.err = boom
		err := pub.PublishSession(context.Background(), event)
		Expect(errors.Is(err, boom)).To(BeTrue())
	})

	It("closes the writer", func() {
		Expect(pub.Close()).To(Succeed())
		Expect(writer.closed).To(BeTrue())
	})
})
