// Package table turns record pages into sortable tabular views and CSV.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// Column describes one table column.
type Column struct {
	Key    string `json:"key"`
	Header string `json:"header"`
	value  func(r *domain.Record) string
}

var columns = []Column{
	{Key: "id", Header: "ID", value: func(r *domain.Record) string { return r.ID }},
	{Key: "title", Header: "Title", value: func(r *domain.Record) string { return r.Title }},
	{Key: "category", Header: "Category", value: func(r *domain.Record) string { return r.Category }},
	{Key: "lat", Header: "Latitude", value: func(r *domain.Record) string { return formatCoord(r.Location.Lat) }},
	{Key: "lon", Header: "Longitude", value: func(r *domain.Record) string { return formatCoord(r.Location.Lon) }},
	{Key: "visibility", Header: "Visibility", value: func(r *domain.Record) string { return string(r.Visibility) }},
	{Key: "tags", Header: "Tags", value: func(r *domain.Record) string { return strings.Join(r.Tags, ";") }},
	{Key: "owner_id", Header: "Owner", value: func(r *domain.Record) string { return r.OwnerID }},
	{Key: "version", Header: "Version", value: func(r *domain.Record) string { return strconv.Itoa(r.Version) }},
	{Key: "created_at", Header: "Created", value: func(r *domain.Record) string { return r.CreatedAt.UTC().Format(time.RFC3339) }},
	{Key: "updated_at", Header: "Updated", value: func(r *domain.Record) string { return r.UpdatedAt.UTC().Format(time.RFC3339) }},
}

// DefaultColumns is used when the caller selects none.
var DefaultColumns = []string{"title", "category", "lat", "lon", "visibility", "updated_at"}

// Table is a rendered grid of string cells.
type Table struct {
	Columns []Column   `json:"columns"`
	Rows    [][]string `json:"rows"`
	IDs     []string   `json:"ids"`
	SortBy  string     `json:"sort_by,omitempty"`
	Desc    bool       `json:"desc,omitempty"`
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool { return len(t.Rows) == 0 }

// Lookup resolves column keys. Unknown keys are an ErrInvalidInput.
func Lookup(keys []string) ([]Column, error) {
	if len(keys) == 0 {
		keys = DefaultColumns
	}
	out := make([]Column, 0, len(keys))
	for _, k := range keys {
		c, ok := find(k)
		if !ok {
			return nil, fmt.Errorf("unknown column %q: %w", k, domain.ErrInvalidInput)
		}
		out = append(out, c)
	}
	return out, nil
}

// Build renders records into a table, optionally sorted by a column key.
// A leading '-' on sortBy sorts descending. Rows for an empty input are empty,
// never nil-valued leftovers.
func Build(records []domain.Record, keys []string, sortBy string) (*Table, error) {
	cols, err := Lookup(keys)
	if err != nil {
		return nil, err
	}
	t := &Table{Columns: cols, Rows: make([][]string, 0, len(records)), IDs: make([]string, 0, len(records))}

	ordered := make([]*domain.Record, len(records))
	for i := range records {
		ordered[i] = &records[i]
	}

	if sortBy != "" {
		desc := strings.HasPrefix(sortBy, "-")
		key := strings.TrimPrefix(sortBy, "-")
		sc, ok := find(key)
		if !ok {
			return nil, fmt.Errorf("unknown sort column %q: %w", key, domain.ErrInvalidInput)
		}
		numeric := key == "lat" || key == "lon" || key == "version"
		sort.SliceStable(ordered, func(i, j int) bool {
			a, b := sc.value(ordered[i]), sc.value(ordered[j])
			if desc {
				a, b = b, a
			}
			if numeric {
				fa, _ := strconv.ParseFloat(a, 64)
				fb, _ := strconv.ParseFloat(b, 64)
				return fa < fb
			}
			return strings.ToLower(a) < strings.ToLower(b)
		})
		t.SortBy, t.Desc = key, desc
	}

	for _, r := range ordered {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = c.value(r)
		}
		t.Rows = append(t.Rows, row)
		t.IDs = append(t.IDs, r.ID)
	}
	return t, nil
}

// WriteCSV writes the header and rows. Cells that a spreadsheet would treat
// as formulas are prefixed with a quote.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Key
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range t.Rows {
		out := make([]string, len(row))
		for i, cell := range row {
			out[i] = escapeFormula(cell)
		}
		if err := cw.Write(out); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func find(key string) (Column, bool) {
	for _, c := range columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func escapeFormula(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '@', '\t', '\r':
		return "'" + s
	case '-':
		// negative coordinates are plain numbers
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return s
		}
		return "'" + s
	}
	return s
}
