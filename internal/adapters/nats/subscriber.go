package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if err := ensureStreams(js); err != nil {
		conn.Close()
		return nil, err
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeMediaJobs consumes the media job queue with a durable consumer.
// Malformed jobs and permanent handler errors are terminated; other handler
// errors are redelivered with backoff up to five attempts.
func (s *Subscriber) SubscribeMediaJobs(ctx context.Context, handler func(ctx context.Context, job *domain.MediaJob) error) error {
	sub, err := s.js.Subscribe(MediaJobSubject, func(msg *nats.Msg) {
		handleMediaJob(ctx, msg, handler)
	},
		nats.Durable(mediaWorkerDurable),
		nats.ManualAck(),
		nats.AckWait(2*time.Minute),
		nats.MaxDeliver(5),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// jobMsg is the part of *nats.Msg a media job settles with.
type jobMsg interface {
	Ack(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

func handleMediaJob(ctx context.Context, msg *nats.Msg, handler func(ctx context.Context, job *domain.MediaJob) error) {
	var job domain.MediaJob
	if err := json.Unmarshal(msg.Data, &job); err != nil || job.MediaID == "" {
		slog.Warn("dropping malformed media job", "error", err)
		_ = msg.Term()
		return
	}
	settle(msg, job.MediaID, handler(ctx, &job))
}

func settle(msg jobMsg, mediaID string, err error) {
	switch {
	case err == nil:
		_ = msg.Ack()
	case permanent(err):
		slog.Error("media job failed permanently", "media_id", mediaID, "error", err)
		_ = msg.Term()
	default:
		slog.Error("media job failed", "media_id", mediaID, "error", err)
		_ = msg.NakWithDelay(5 * time.Second)
	}
}

// permanent reports errors a redelivery cannot fix.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrUnsupportedMedia) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrTooLarge)
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
