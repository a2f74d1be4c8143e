package table

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/geodash/internal/core/domain"
)

func sampleRecords() []domain.Record {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []domain.Record{
		{ID: "r1", Title: "bravo", Category: "parks", Location: domain.GeoPoint{Lat: 43.26, Lon: -2.93}, Visibility: domain.VisibilityShared, UpdatedAt: ts},
		{ID: "r2", Title: "Alpha", Category: "=cmd()", Location: domain.GeoPoint{Lat: 40.41, Lon: -3.70}, Visibility: domain.VisibilityPrivate, UpdatedAt: ts},
		{ID: "r3", Title: "charlie", Category: "parks", Location: domain.GeoPoint{Lat: 48.85, Lon: 2.35}, Visibility: domain.VisibilityShared, UpdatedAt: ts},
	}
}

func TestBuildDefaultColumns(t *testing.T) {
	tbl, err := Build(sampleRecords(), nil, "")
	require.NoError(t, err)
	require.Len(t, tbl.Columns, len(DefaultColumns))
	assert.Equal(t, []string{"r1", "r2", "r3"}, tbl.IDs)
	assert.Equal(t, "43.260000", tbl.Rows[0][2])
}

func TestBuildSorts(t *testing.T) {
	tbl, err := Build(sampleRecords(), []string{"title"}, "title")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Alpha"}, {"bravo"}, {"charlie"}}, tbl.Rows)

	tbl, err = Build(sampleRecords(), []string{"id"}, "-lat")
	require.NoError(t, err)
	assert.Equal(t, []string{"r3", "r1", "r2"}, tbl.IDs)
	assert.True(t, tbl.Desc)
}

func TestBuildEmpty(t *testing.T) {
	tbl, err := Build(nil, nil, "title")
	require.NoError(t, err)
	assert.True(t, tbl.Empty())
	assert.NotNil(t, tbl.Rows)
}

func TestBuildRejectsUnknownColumns(t *testing.T) {
	_, err := Build(sampleRecords(), []string{"password_hash"}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = Build(sampleRecords(), nil, "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestWriteCSVEscapesFormulas(t *testing.T) {
	tbl, err := Build(sampleRecords(), []string{"id", "category", "lon"}, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteCSV(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "id,category,lon", lines[0])
	assert.Equal(t, "r1,parks,-2.930000", lines[1])
	assert.Equal(t, "r2,'=cmd(),-3.700000", lines[2])
}

func TestReadRecords(t *testing.T) {
	in := "title,category,lat,lon,visibility,tags\n" +
		"Fountain,parks,43.26,-2.93,shared,water; old\n" +
		"Broken,parks,not-a-number,1,,\n" +
		"Plaza,squares,40.4,-3.7,,\n"

	recs, bad, err := ReadRecords(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Fountain", recs[0].Title)
	assert.Equal(t, domain.VisibilityShared, recs[0].Visibility)
	assert.Equal(t, []string{"water", "old"}, recs[0].Tags)
	assert.Equal(t, -3.7, recs[1].Lon)
	assert.Equal(t, 2, recs[0].Line)
	assert.Equal(t, 4, recs[1].Line)
	assert.Equal(t, "Plaza", Inputs(recs)[1].Title)

	require.Len(t, bad, 1)
	assert.Equal(t, 3, bad[0].Line)
}

func TestReadRecordsMissingHeader(t *testing.T) {
	_, _, err := ReadRecords(strings.NewReader("title,lat,lon\nx,1,2\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
