package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// MediaRepo implements ports.MediaRepository with pgx.
type MediaRepo struct {
	db *DB
}

// NewMediaRepo creates a new MediaRepo.
func NewMediaRepo(db *DB) *MediaRepo {
	return &MediaRepo{db: db}
}

const mediaColumns = `id, record_id, owner_id, filename, content_type, width, height, size_bytes,
	object_key, derivatives, status, error, created_at`

func scanMedia(row pgx.Row) (*domain.Media, error) {
	var m domain.Media
	err := row.Scan(&m.ID, &m.RecordID, &m.OwnerID, &m.Filename, &m.ContentType, &m.Width, &m.Height,
		&m.SizeBytes, &m.ObjectKey, &m.Derivatives, &m.Status, &m.Error, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts media metadata.
func (r *MediaRepo) Create(ctx context.Context, m *domain.Media) error {
	derivs := m.Derivatives
	if derivs == nil {
		derivs = map[string]string{}
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO media (id, record_id, owner_id, filename, content_type, width, height, size_bytes,
		                   object_key, derivatives, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, m.ID, m.RecordID, m.OwnerID, m.Filename, m.ContentType, m.Width, m.Height, m.SizeBytes,
		m.ObjectKey, derivs, string(m.Status), m.Error, m.CreatedAt)
	return mapErr(err, "media "+m.ID)
}

// GetByID returns media by UUID.
func (r *MediaRepo) GetByID(ctx context.Context, id string) (*domain.Media, error) {
	m, err := scanMedia(r.db.Pool.QueryRow(ctx, `SELECT `+mediaColumns+` FROM media WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "media "+id)
	}
	return m, nil
}

// ListByRecord returns a record's media, oldest first.
func (r *MediaRepo) ListByRecord(ctx context.Context, recordID string) ([]domain.Media, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+mediaColumns+` FROM media WHERE record_id = $1 ORDER BY created_at, id
	`, recordID)
	if err != nil {
		return nil, mapErr(err, "list media")
	}
	defer rows.Close()

	var out []domain.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, mapErr(err, "scan media")
		}
		out = append(out, *m)
	}
	return out, mapErr(rows.Err(), "list media")
}

// UpdateStatus moves media to a new processing state.
func (r *MediaRepo) UpdateStatus(ctx context.Context, id string, status domain.MediaStatus, errMsg string) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE media SET status = $2, error = $3 WHERE id = $1`, id, string(status), errMsg)
	if err != nil {
		return mapErr(err, "media "+id)
	}
	if tag.RowsAffected() == 0 {
		return mapErr(errNoRows, "media "+id)
	}
	return nil
}

// SetDerivatives stores the rendition keys.
func (r *MediaRepo) SetDerivatives(ctx context.Context, id string, derivatives map[string]string) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE media SET derivatives = $2 WHERE id = $1`, id, derivatives)
	if err != nil {
		return mapErr(err, "media "+id)
	}
	if tag.RowsAffected() == 0 {
		return mapErr(errNoRows, "media "+id)
	}
	return nil
}

// Delete removes media metadata.
func (r *MediaRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM media WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "media "+id)
	}
	if tag.RowsAffected() == 0 {
		return mapErr(errNoRows, "media "+id)
	}
	return nil
}
