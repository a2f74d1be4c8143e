package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// Subjects and streams used by the dashboard and the media worker.
const (
	RecordsStream      = "GEODASH_RECORDS"
	MediaStream        = "GEODASH_MEDIA"
	RecordSubjectAll   = "geodash.records.>"
	MediaJobSubject    = "geodash.media.jobs"
	mediaWorkerDurable = "media-worker"
)

// RecordSubject is the subject a record event is published on, e.g.
// geodash.records.updated.<id>.
func RecordSubject(e *domain.RecordEvent) string {
	action := strings.TrimPrefix(string(e.Type), "record.")
	return "geodash.records." + action + "." + e.RecordID
}

// Streams returns the JetStream configuration ensured on connect.
func Streams() []nats.StreamConfig {
	return []nats.StreamConfig{
		{
			Name:      RecordsStream,
			Subjects:  []string{RecordSubjectAll},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      MediaStream,
			Subjects:  []string{MediaJobSubject},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
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
	return &Publisher{conn: conn, js: js}, nil
}

func ensureStreams(js nats.JetStreamContext) error {
	for _, cfg := range Streams() {
		cfg := cfg
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}
	return nil
}

func (p *Publisher) PublishRecordEvent(ctx context.Context, event *domain.RecordEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(RecordSubject(event), data, nats.Context(ctx))
	return err
}

func (p *Publisher) PublishMediaJob(ctx context.Context, job *domain.MediaJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	// Dedupe redelivered submissions of the same upload.
	_, err = p.js.Publish(MediaJobSubject, data, nats.Context(ctx), nats.MsgId(job.MediaID))
	return err
}

// Submit lets the publisher act as the media pipeline: derivatives are built
// by cmd/mediaworker consuming the job stream.
func (p *Publisher) Submit(ctx context.Context, job *domain.MediaJob) error {
	return p.PublishMediaJob(ctx, job)
}

// Conn exposes the underlying connection for core subscriptions.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("geodash"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
