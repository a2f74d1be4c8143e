package postgres

import (
	"context"
	"time"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// PrincipalRepo implements ports.PrincipalRepository with pgx.
type PrincipalRepo struct {
	db *DB
}

// NewPrincipalRepo creates a new PrincipalRepo.
func NewPrincipalRepo(db *DB) *PrincipalRepo {
	return &PrincipalRepo{db: db}
}

const principalColumns = `id, email, display_name, password_hash, role, created_at, last_login_at`

// Create inserts a principal; a duplicate email is a conflict.
func (r *PrincipalRepo) Create(ctx context.Context, p *domain.Principal) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO principals (id, email, display_name, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Email, p.DisplayName, p.PasswordHash, string(p.Role), p.CreatedAt)
	return mapErr(err, "principal "+p.Email)
}

// GetByID returns a principal by UUID.
func (r *PrincipalRepo) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	var p domain.Principal
	err := r.db.Pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id).
		Scan(&p.ID, &p.Email, &p.DisplayName, &p.PasswordHash, &p.Role, &p.CreatedAt, &p.LastLoginAt)
	if err != nil {
		return nil, mapErr(err, "principal "+id)
	}
	return &p, nil
}

// GetByEmail looks a principal up case-insensitively.
func (r *PrincipalRepo) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	var p domain.Principal
	err := r.db.Pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE lower(email) = lower($1)`, email).
		Scan(&p.ID, &p.Email, &p.DisplayName, &p.PasswordHash, &p.Role, &p.CreatedAt, &p.LastLoginAt)
	if err != nil {
		return nil, mapErr(err, "principal")
	}
	return &p, nil
}

// UpdatePasswordHash replaces a principal's password hash.
func (r *PrincipalRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE principals SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return mapErr(err, "principal "+id)
	}
	if tag.RowsAffected() == 0 {
		return mapErr(errNoRows, "principal "+id)
	}
	return nil
}

// TouchLogin stamps last_login_at.
func (r *PrincipalRepo) TouchLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE principals SET last_login_at = $2 WHERE id = $1`, id, at)
	return mapErr(err, "principal "+id)
}

// Count returns the number of principals.
func (r *PrincipalRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM principals`).Scan(&n); err != nil {
		return 0, mapErr(err, "count principals")
	}
	return n, nil
}
