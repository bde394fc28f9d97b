package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// The answer queue is the outbound one-way persistence channel for
// answer captures: the session controller publishes the new canonical
// value and moves on, a single consumer mirrors it upstream. Failures
// are transient by contract: logged, never retried, never surfaced.
// The authoritative save-on-submit reconciles state server-side.

const answersTopic = "attempt.answers"

const saveTimeout = 10 * time.Second

// AnswerSink is the upstream call the queue drains into.
type AnswerSink interface {
	SaveAnswer(ctx context.Context, attemptID, questionID int64, value any) error
}

type saveAnswerMessage struct {
	AttemptID  int64           `json:"attempt_id"`
	QuestionID int64           `json:"question_id"`
	Value      json.RawMessage `json:"value"`
}

// AnswerQueue is an in-process watermill channel between answer
// capture and upstream persistence.
type AnswerQueue struct {
	pubsub *gochannel.GoChannel
	sink   AnswerSink
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAnswerQueue creates the queue. Run must be called before
// enqueued saves reach the sink.
func NewAnswerQueue(sink AnswerSink, logger *slog.Logger) *AnswerQueue {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewSlogLogger(logger),
	)
	return &AnswerQueue{
		pubsub: pubsub,
		sink:   sink,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Enqueue publishes one save. The caller never waits on the upstream
// round trip; a publish failure is itself swallowed by the caller.
func (q *AnswerQueue) Enqueue(ctx context.Context, attemptID, questionID int64, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal answer value: %w", err)
	}
	payload, err := json.Marshal(saveAnswerMessage{
		AttemptID:  attemptID,
		QuestionID: questionID,
		Value:      raw,
	})
	if err != nil {
		return fmt.Errorf("marshal save message: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := q.pubsub.Publish(answersTopic, msg); err != nil {
		return fmt.Errorf("publish save message: %w", err)
	}
	return nil
}

// Run starts draining the queue into the sink until Close is called.
func (q *AnswerQueue) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	messages, err := q.pubsub.Subscribe(ctx, answersTopic)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe answers topic: %w", err)
	}

	go func() {
		defer close(q.done)
		for msg := range messages {
			q.handle(msg)
			msg.Ack()
		}
	}()
	return nil
}

func (q *AnswerQueue) handle(msg *message.Message) {
	var save saveAnswerMessage
	if err := json.Unmarshal(msg.Payload, &save); err != nil {
		q.logger.Warn("Dropping malformed save message", "message_id", msg.UUID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	var value any
	if len(save.Value) > 0 {
		if err := json.Unmarshal(save.Value, &value); err != nil {
			q.logger.Warn("Dropping undecodable answer value", "message_id", msg.UUID, "error", err)
			return
		}
	}

	if err := q.sink.SaveAnswer(ctx, save.AttemptID, save.QuestionID, value); err != nil {
		// Transient by contract: one keystroke-level update at risk,
		// never the attempt.
		q.logger.Warn("Answer save dropped",
			"attempt_id", save.AttemptID,
			"question_id", save.QuestionID,
			"error", err)
	}
}

// Close stops the consumer and the underlying channel.
func (q *AnswerQueue) Close() error {
	if q.cancel != nil {
		q.cancel()
		<-q.done
	}
	return q.pubsub.Close()
}
