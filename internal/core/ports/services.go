package ports

import (
	"context"
	"io"
	"time"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishRecordEvent(ctx context.Context, event *domain.RecordEvent) error
	PublishMediaJob(ctx context.Context, job *domain.MediaJob) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeMediaJobs(ctx context.Context, handler func(ctx context.Context, job *domain.MediaJob) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// SessionStore keeps server-side session state indexed by the cookie token.
type SessionStore interface {
	Save(ctx context.Context, s *domain.Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteByPrincipal drops every session of principalID except keepID and
	// returns how many went.
	DeleteByPrincipal(ctx context.Context, principalID, keepID string) (int, error)
}

// PasswordHasher hashes and verifies credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// ObjectStorage stores media blobs.
type ObjectStorage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// StagingArea holds uploads on local disk until they reach object storage.
type StagingArea interface {
	Stage(name string, body io.Reader) (path string, size int64, err error)
	Open(path string) (io.ReadCloser, error)
	Remove(path string) error
}

// MediaPipeline schedules derivative generation for a stored upload.
type MediaPipeline interface {
	Submit(ctx context.Context, job *domain.MediaJob) error
}
