//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/samirrijal/geodash/internal/adapters/postgres"
	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/pkg/config"
	"github.com/samirrijal/geodash/migrations"
)

// setupTestDB connects to the test database and migrates it to the latest schema.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("geodash-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("goose dialect: %v", err)
	}
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer sqlDB.Close()
	if err := goose.Up(sqlDB, "."); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedPrincipal(t *testing.T, repo *postgres.PrincipalRepo, role domain.Role) domain.Scope {
	t.Helper()
	p := &domain.Principal{
		ID:           uuid.NewString(),
		Email:        uuid.NewString() + "@example.com",
		DisplayName:  "Test",
		PasswordHash: "x",
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("seed principal: %v", err)
	}
	return domain.Scope{PrincipalID: p.ID, Role: role}
}

func TestRecordRepo_RowLevelPolicy(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	principals := postgres.NewPrincipalRepo(db)
	records := postgres.NewRecordRepo(db)

	owner := seedPrincipal(t, principals, domain.RoleEditor)
	other := seedPrincipal(t, principals, domain.RoleEditor)
	admin := seedPrincipal(t, principals, domain.RoleAdmin)

	now := time.Now().UTC()
	rec := &domain.Record{
		ID: uuid.NewString(), OwnerID: owner.PrincipalID, Title: "Secret spot", Category: "it-private",
		Location: domain.GeoPoint{Lat: 43.26, Lon: -2.93}, Visibility: domain.VisibilityPrivate,
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	if err := records.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := records.GetByID(ctx, other, rec.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("other editor reading private row: got %v", err)
	}
	if _, err := records.GetByID(ctx, admin, rec.ID); err != nil {
		t.Errorf("admin read: %v", err)
	}

	rec.Title = "Hijacked"
	if err := records.Update(ctx, other, rec, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("other editor update of unreadable row: got %v", err)
	}

	rec.Title = "Renamed"
	if err := records.Update(ctx, owner, rec, 1); err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if rec.Version != 2 {
		t.Errorf("version = %d, want 2", rec.Version)
	}
	if err := records.Update(ctx, owner, rec, 1); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("stale version: got %v", err)
	}

	got, total, err := records.List(ctx, owner, domain.RecordFilter{Category: "it-private", Sort: domain.SortTitle, Limit: 10})
	if err != nil || total != 1 || len(got) != 1 || got[0].Title != "Renamed" {
		t.Errorf("List: %v total=%d rows=%v", err, total, got)
	}
	_, total, err = records.List(ctx, other, domain.RecordFilter{Category: "it-private", Sort: domain.SortTitle, Limit: 10})
	if err != nil || total != 0 {
		t.Errorf("other's list should be empty: total=%d err=%v", total, err)
	}

	near, err := records.FindNearby(ctx, owner, 43.2601, -2.9301, 500, 10)
	if err != nil || len(near) == 0 || near[0].Distance == nil {
		t.Errorf("FindNearby: %v %v", err, near)
	}

	if err := records.Delete(ctx, other, rec.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("other delete: got %v", err)
	}
	if err := records.Delete(ctx, owner, rec.ID); err != nil {
		t.Errorf("owner delete: %v", err)
	}
}
