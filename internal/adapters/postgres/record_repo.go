package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// RecordRepo implements ports.RecordRepository with pgx and PostGIS.
type RecordRepo struct {
	db *DB
}

// NewRecordRepo creates a new RecordRepo.
func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

const recordColumns = `
	id, owner_id, title, description, category,
	ST_Y(location::geometry) AS lat,
	ST_X(location::geometry) AS lon,
	visibility, tags, attributes, cover_media_id, version, created_at, updated_at`

// Row-level predicates. $1 is the caller's role, $2 the caller's id.
const (
	readablePredicate = `($1 = 'admin' OR owner_id = $2::uuid OR visibility = 'shared')`
	writablePredicate = `($1 = 'admin' OR ($1 = 'editor' AND owner_id = $2::uuid))`
)

var sortColumns = map[domain.RecordSort]string{
	domain.SortUpdated:  "updated_at DESC, id",
	domain.SortTitle:    "lower(title), id",
	domain.SortCategory: "category, lower(title), id",
}

func scopeArgs(s domain.Scope) []any {
	return []any{string(s.Role), s.PrincipalID}
}

func scanRecord(row pgx.Row, extra ...any) (*domain.Record, error) {
	var rec domain.Record
	dest := []any{
		&rec.ID, &rec.OwnerID, &rec.Title, &rec.Description, &rec.Category,
		&rec.Location.Lat, &rec.Location.Lon,
		&rec.Visibility, &rec.Tags, &rec.Attributes, &rec.CoverMediaID, &rec.Version,
		&rec.CreatedAt, &rec.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create inserts a record.
func (r *RecordRepo) Create(ctx context.Context, rec *domain.Record) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO records (id, owner_id, title, description, category, location, visibility, tags, attributes, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_MakePoint($6, $7), 4326)::geography, $8, $9, $10, 1, $11, $12)
	`, rec.ID, rec.OwnerID, rec.Title, rec.Description, rec.Category,
		rec.Location.Lon, rec.Location.Lat, string(rec.Visibility), tagsOrEmpty(rec.Tags), attrsOrEmpty(rec.Attributes),
		rec.CreatedAt, rec.UpdatedAt)
	return mapErr(err, "record "+rec.ID)
}

// UpsertBatch inserts many records using pgx.Batch. Existing rows with the
// same id and owner are overwritten and their version bumped.
func (r *RecordRepo) UpsertBatch(ctx context.Context, records []domain.Record) error {
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO records (id, owner_id, title, description, category, location, visibility, tags, attributes, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_MakePoint($6, $7), 4326)::geography, $8, $9, $10, 1, $11, $12)
			ON CONFLICT (id) DO UPDATE
			SET title = EXCLUDED.title, description = EXCLUDED.description,
			    category = EXCLUDED.category, location = EXCLUDED.location,
			    visibility = EXCLUDED.visibility, tags = EXCLUDED.tags,
			    attributes = EXCLUDED.attributes, updated_at = EXCLUDED.updated_at,
			    version = records.version + 1
			WHERE records.owner_id = EXCLUDED.owner_id
		`, rec.ID, rec.OwnerID, rec.Title, rec.Description, rec.Category,
			rec.Location.Lon, rec.Location.Lat, string(rec.Visibility), tagsOrEmpty(rec.Tags), attrsOrEmpty(rec.Attributes),
			rec.CreatedAt, rec.UpdatedAt)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range records {
		if _, err := br.Exec(); err != nil {
			return mapErr(err, fmt.Sprintf("batch row %d", i+1))
		}
	}
	return nil
}

// GetByID returns a record the scope can read.
func (r *RecordRepo) GetByID(ctx context.Context, scope domain.Scope, id string) (*domain.Record, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM records WHERE id = $3 AND `+readablePredicate,
		append(scopeArgs(scope), id)...)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, mapErr(err, "record "+id)
	}
	return rec, nil
}

// List returns a filtered page and the total number of matching rows.
func (r *RecordRepo) List(ctx context.Context, scope domain.Scope, f domain.RecordFilter) ([]domain.Record, int, error) {
	where, args := listWhere(scope, f)
	order, ok := sortColumns[f.Sort]
	if !ok {
		order = sortColumns[domain.SortUpdated]
	}
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT %s, count(*) OVER () AS total
		FROM records
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, recordColumns, where, order, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, mapErr(err, "list records")
	}
	defer rows.Close()

	var (
		out   []domain.Record
		total int
	)
	for rows.Next() {
		rec, err := scanRecord(rows, &total)
		if err != nil {
			return nil, 0, mapErr(err, "scan record")
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapErr(err, "list records")
	}
	if len(out) == 0 && f.Offset > 0 {
		// window count is unavailable past the last page
		if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM records WHERE `+where, args[:len(args)-2]...).Scan(&total); err != nil {
			return nil, 0, mapErr(err, "count records")
		}
	}
	return out, total, nil
}

func listWhere(scope domain.Scope, f domain.RecordFilter) (string, []any) {
	conds := []string{readablePredicate}
	args := scopeArgs(scope)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.OwnerOnly {
		conds = append(conds, "owner_id = $2::uuid")
	}
	if f.Category != "" {
		conds = append(conds, "category = "+next(f.Category))
	}
	if f.Query != "" {
		p := next("%" + escapeLike(f.Query) + "%")
		conds = append(conds, fmt.Sprintf("(title ILIKE %s OR description ILIKE %s OR %s = ANY(tags))", p, p, next(strings.ToLower(f.Query))))
	}
	if b := f.Bounds; b != nil {
		conds = append(conds, fmt.Sprintf("location && ST_MakeEnvelope(%s, %s, %s, %s, 4326)::geography",
			next(b.MinLon), next(b.MinLat), next(b.MaxLon), next(b.MaxLat)))
	}
	return strings.Join(conds, " AND "), args
}

// FindNearby returns readable records within radiusMeters using ST_DWithin.
func (r *RecordRepo) FindNearby(ctx context.Context, scope domain.Scope, lat, lon, radiusMeters float64, limit int) ([]domain.Record, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+recordColumns+`,
		       ST_Distance(location, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography) AS distance
		FROM records
		WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5)
		  AND `+readablePredicate+`
		ORDER BY distance
		LIMIT $6
	`, append(scopeArgs(scope), lon, lat, radiusMeters, limit)...)
	if err != nil {
		return nil, mapErr(err, "nearby records")
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var dist float64
		rec, err := scanRecord(rows, &dist)
		if err != nil {
			return nil, mapErr(err, "scan record")
		}
		rec.Distance = &dist
		out = append(out, *rec)
	}
	return out, mapErr(rows.Err(), "nearby records")
}

// Update writes the editable fields. With expectedVersion > 0 the write only
// applies when the stored version still matches.
func (r *RecordRepo) Update(ctx context.Context, scope domain.Scope, rec *domain.Record, expectedVersion int) error {
	err := r.db.Pool.QueryRow(ctx, `
		UPDATE records
		SET title = $4, description = $5, category = $6,
		    location = ST_SetSRID(ST_MakePoint($7, $8), 4326)::geography,
		    visibility = $9, tags = $10, attributes = $11,
		    updated_at = $12, version = version + 1
		WHERE id = $3 AND `+writablePredicate+` AND ($13 = 0 OR version = $13)
		RETURNING version, updated_at
	`, string(scope.Role), scope.PrincipalID, rec.ID,
		rec.Title, rec.Description, rec.Category, rec.Location.Lon, rec.Location.Lat,
		string(rec.Visibility), tagsOrEmpty(rec.Tags), attrsOrEmpty(rec.Attributes),
		rec.UpdatedAt, expectedVersion,
	).Scan(&rec.Version, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.explainMiss(ctx, scope, rec.ID, expectedVersion)
	}
	return mapErr(err, "update record "+rec.ID)
}

// Delete removes a writable record.
func (r *RecordRepo) Delete(ctx context.Context, scope domain.Scope, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM records WHERE id = $3 AND `+writablePredicate,
		append(scopeArgs(scope), id)...)
	if err != nil {
		return mapErr(err, "delete record "+id)
	}
	if tag.RowsAffected() == 0 {
		return r.explainMiss(ctx, scope, id, 0)
	}
	return nil
}

// SetCover sets or clears the cover image of a writable record.
func (r *RecordRepo) SetCover(ctx context.Context, scope domain.Scope, recordID string, mediaID *string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE records SET cover_media_id = $4, updated_at = now()
		WHERE id = $3 AND `+writablePredicate,
		append(scopeArgs(scope), recordID, mediaID)...)
	if err != nil {
		return mapErr(err, "set cover "+recordID)
	}
	if tag.RowsAffected() == 0 {
		return r.explainMiss(ctx, scope, recordID, 0)
	}
	return nil
}

// explainMiss distinguishes not found, forbidden and stale version after a
// guarded write touched no rows.
func (r *RecordRepo) explainMiss(ctx context.Context, scope domain.Scope, id string, expectedVersion int) error {
	var (
		version  int
		writable bool
	)
	err := r.db.Pool.QueryRow(ctx, `
		SELECT version, `+writablePredicate+`
		FROM records WHERE id = $3 AND `+readablePredicate,
		append(scopeArgs(scope), id)...).Scan(&version, &writable)
	if err != nil {
		return mapErr(err, "record "+id)
	}
	if !writable {
		return fmt.Errorf("record %s: %w", id, domain.ErrForbidden)
	}
	if expectedVersion > 0 && version != expectedVersion {
		return fmt.Errorf("record %s is at version %d, not %d: %w", id, version, expectedVersion, domain.ErrConflict)
	}
	return fmt.Errorf("record %s changed concurrently: %w", id, domain.ErrConflict)
}

// Stats aggregates readable records in one round trip.
func (r *RecordRepo) Stats(ctx context.Context, scope domain.Scope, since time.Time) (*domain.RecordStats, error) {
	args := scopeArgs(scope)
	batch := &pgx.Batch{}
	batch.Queue(`
		SELECT count(*), count(*) FILTER (WHERE visibility = 'shared')
		FROM records WHERE `+readablePredicate, args...)
	batch.Queue(`
		SELECT category, count(*)
		FROM records WHERE `+readablePredicate+`
		GROUP BY category ORDER BY count(*) DESC, category`, args...)
	batch.Queue(`
		SELECT to_char(date_trunc('day', created_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD') AS day, count(*)
		FROM records WHERE `+readablePredicate+` AND created_at >= $3
		GROUP BY day ORDER BY day`, append(args, since)...)

	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()

	var st domain.RecordStats
	if err := br.QueryRow().Scan(&st.Total, &st.Shared); err != nil {
		return nil, mapErr(err, "record totals")
	}
	st.Private = st.Total - st.Shared

	rows, err := br.Query()
	if err != nil {
		return nil, mapErr(err, "records by category")
	}
	st.ByCategory, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CategoryCount, error) {
		var c domain.CategoryCount
		err := row.Scan(&c.Category, &c.Count)
		return c, err
	})
	if err != nil {
		return nil, mapErr(err, "records by category")
	}

	rows, err = br.Query()
	if err != nil {
		return nil, mapErr(err, "records by day")
	}
	st.CreatedByDay, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.DayCount, error) {
		var d domain.DayCount
		err := row.Scan(&d.Day, &d.Count)
		return d, err
	})
	if err != nil {
		return nil, mapErr(err, "records by day")
	}
	return &st, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func attrsOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
