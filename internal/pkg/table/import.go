package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// RowError reports a CSV line that could not be parsed.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

// Row is a parsed CSV line. Line is 1-based and counts the header.
type Row struct {
	Line int
	domain.RecordInput
}

// Inputs returns the record inputs of rows, in order.
func Inputs(rows []Row) []domain.RecordInput {
	out := make([]domain.RecordInput, len(rows))
	for i, r := range rows {
		out[i] = r.RecordInput
	}
	return out
}

var requiredHeaders = []string{"title", "category", "lat", "lon"}

// ReadRecords parses a CSV with a header row into record inputs. Recognised
// headers: title, category, lat, lon, description, visibility, tags
// (semicolon separated). Rows that do not parse are collected and skipped.
func ReadRecords(r io.Reader) ([]Row, []RowError, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, h := range requiredHeaders {
		if _, ok := idx[h]; !ok {
			return nil, nil, fmt.Errorf("missing column %q: %w", h, domain.ErrInvalidInput)
		}
	}

	get := func(row []string, key string) string {
		i, ok := idx[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		out     []Row
		badRows []RowError
	)
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			badRows = append(badRows, RowError{Line: line, Err: err})
			continue
		}

		lat, err := strconv.ParseFloat(get(row, "lat"), 64)
		if err != nil {
			badRows = append(badRows, RowError{Line: line, Err: fmt.Errorf("lat: %w", err)})
			continue
		}
		lon, err := strconv.ParseFloat(get(row, "lon"), 64)
		if err != nil {
			badRows = append(badRows, RowError{Line: line, Err: fmt.Errorf("lon: %w", err)})
			continue
		}

		in := domain.RecordInput{
			Title:       get(row, "title"),
			Description: get(row, "description"),
			Category:    get(row, "category"),
			Lat:         lat,
			Lon:         lon,
			Visibility:  domain.Visibility(get(row, "visibility")),
		}
		if tags := get(row, "tags"); tags != "" {
			for _, t := range strings.Split(tags, ";") {
				if t = strings.TrimSpace(t); t != "" {
					in.Tags = append(in.Tags, t)
				}
			}
		}
		out = append(out, Row{Line: line, RecordInput: in})
	}
	return out, badRows, nil
}
