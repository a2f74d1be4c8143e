package ports

import (
	"context"
	"time"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// PrincipalRepository persists accounts.
type PrincipalRepository interface {
	Create(ctx context.Context, p *domain.Principal) error
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	Count(ctx context.Context) (int, error)
}

// RecordRepository persists records. Every read and write takes the caller's
// scope so the row-level policy is also enforced in SQL.
type RecordRepository interface {
	Create(ctx context.Context, r *domain.Record) error
	UpsertBatch(ctx context.Context, records []domain.Record) error
	GetByID(ctx context.Context, scope domain.Scope, id string) (*domain.Record, error)
	List(ctx context.Context, scope domain.Scope, f domain.RecordFilter) ([]domain.Record, int, error)
	FindNearby(ctx context.Context, scope domain.Scope, lat, lon, radiusMeters float64, limit int) ([]domain.Record, error)
	// Update writes r. expectedVersion 0 means last-writer-wins.
	Update(ctx context.Context, scope domain.Scope, r *domain.Record, expectedVersion int) error
	Delete(ctx context.Context, scope domain.Scope, id string) error
	SetCover(ctx context.Context, scope domain.Scope, recordID string, mediaID *string) error
	Stats(ctx context.Context, scope domain.Scope, since time.Time) (*domain.RecordStats, error)
}

// MediaRepository persists media metadata.
type MediaRepository interface {
	Create(ctx context.Context, m *domain.Media) error
	GetByID(ctx context.Context, id string) (*domain.Media, error)
	ListByRecord(ctx context.Context, recordID string) ([]domain.Media, error)
	UpdateStatus(ctx context.Context, id string, status domain.MediaStatus, errMsg string) error
	SetDerivatives(ctx context.Context, id string, derivatives map[string]string) error
	Delete(ctx context.Context, id string) error
}
