package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/samirrijal/geodash/internal/core/domain"
)

func TestListWhere(t *testing.T) {
	scope := domain.Scope{PrincipalID: "p", Role: domain.RoleEditor}
	where, args := listWhere(scope, domain.RecordFilter{
		Category:  "parks",
		Query:     "50%_off",
		OwnerOnly: true,
		Bounds:    &domain.Bounds{MinLat: 1, MinLon: 2, MaxLat: 3, MaxLon: 4},
	})

	if !strings.HasPrefix(where, readablePredicate) {
		t.Errorf("row-level predicate must always apply: %s", where)
	}
	for _, want := range []string{"owner_id = $2::uuid", "category = $3", "title ILIKE $4", "$5 = ANY(tags)", "ST_MakeEnvelope($6, $7, $8, $9, 4326)"} {
		if !strings.Contains(where, want) {
			t.Errorf("where clause missing %q:\n%s", want, where)
		}
	}
	if len(args) != 9 {
		t.Fatalf("args = %d, want 9", len(args))
	}
	if args[3] != `%50\%\_off%` {
		t.Errorf("LIKE pattern not escaped: %v", args[3])
	}
	if args[5] != 2.0 || args[6] != 1.0 {
		t.Errorf("envelope must be lon/lat ordered: %v", args[5:])
	}
}

func TestListWhereAdminWithoutFilters(t *testing.T) {
	where, args := listWhere(domain.Scope{PrincipalID: "a", Role: domain.RoleAdmin}, domain.RecordFilter{})
	if where != readablePredicate {
		t.Errorf("where = %s", where)
	}
	if len(args) != 2 || args[0] != "admin" {
		t.Errorf("args = %v", args)
	}
}

func TestMapErr(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, domain.ErrNotFound},
		{"unique", &pgconn.PgError{Code: uniqueViolation}, domain.ErrConflict},
		{"fk", &pgconn.PgError{Code: foreignKeyViolation, ConstraintName: "media_record_id_fkey"}, domain.ErrInvalidInput},
		{"check", &pgconn.PgError{Code: checkViolation}, domain.ErrInvalidInput},
		{"bad uuid", &pgconn.PgError{Code: invalidTextRep}, domain.ErrNotFound},
		{"wrapped", fmt.Errorf("exec: %w", pgx.ErrNoRows), domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapErr(tt.in, "thing"); !errors.Is(got, tt.want) {
				t.Errorf("mapErr(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if mapErr(nil, "x") != nil {
		t.Error("nil should stay nil")
	}
	other := errors.New("connection reset")
	if got := mapErr(other, "x"); !errors.Is(got, other) {
		t.Errorf("unknown errors must stay wrapped: %v", got)
	}
}
