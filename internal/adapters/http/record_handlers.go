package http

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/pkg/table"
)

// recordRequest is the JSON body for create and update. ExpectedVersion is
// optional; when set, a stale update fails with 409.
type recordRequest struct {
	domain.RecordInput
	ExpectedVersion int `json:"expected_version"`
}

type coverRequest struct {
	MediaID *string `json:"media_id"`
}

// ListRecordsHandler returns one filtered page of visible records.
func ListRecordsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := parseFilter(c)
		if err != nil {
			return errFromDomain(c, err)
		}
		page, err := deps.Records.List(c.UserContext(), sessionFrom(c).Scope(), f)
		if err != nil {
			return errFromDomain(c, err)
		}
		pg := Pagination{Offset: page.Offset, Limit: page.Limit, Total: page.Total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page.Records, Pagination: pg})
	}
}

// GetRecordHandler returns a single record.
func GetRecordHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		r, err := deps.Records.Get(c.UserContext(), sessionFrom(c).Scope(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(r)
	}
}

// CreateRecordHandler stores a new record owned by the caller.
func CreateRecordHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req recordRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "malformed body")
		}
		r, err := deps.Records.Create(c.UserContext(), sessionFrom(c).Scope(), req.RecordInput)
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Location("/v1/records/" + r.ID)
		return c.Status(fiber.StatusCreated).JSON(r)
	}
}

// UpdateRecordHandler replaces a record's editable fields.
func UpdateRecordHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req recordRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "malformed body")
		}
		r, err := deps.Records.Update(c.UserContext(), sessionFrom(c).Scope(), c.Params("id"), req.RecordInput, req.ExpectedVersion)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(r)
	}
}

// DeleteRecordHandler removes a record and its media.
func DeleteRecordHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Records.Delete(c.UserContext(), sessionFrom(c).Scope(), c.Params("id")); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// NearbyRecordsHandler returns visible records within a radius of a point.
func NearbyRecordsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
		if errLat != nil || errLon != nil {
			return errBadRequest(c, "lat and lon are required")
		}
		radius := c.QueryFloat("radius", 1000)
		limit := c.QueryInt("limit", 20)

		recs, err := deps.Records.Nearby(c.UserContext(), sessionFrom(c).Scope(), lat, lon, radius, limit)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(recs)
	}
}

// SetCoverHandler picks (or clears, with null) the record's cover image.
func SetCoverHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req coverRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "malformed body")
		}
		scope := sessionFrom(c).Scope()
		var err error
		if req.MediaID == nil || *req.MediaID == "" {
			err = deps.Records.SetCover(c.UserContext(), scope, c.Params("id"), nil)
		} else {
			err = deps.Media.SetCover(c.UserContext(), scope, c.Params("id"), *req.MediaID)
		}
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ExportRecordsHandler streams the filtered listing as CSV. Columns are
// chosen with ?columns=title,lat,... and ordered with ?order=-title.
func ExportRecordsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := parseFilter(c)
		if err != nil {
			return errFromDomain(c, err)
		}
		recs, err := allRecords(c.UserContext(), deps, sessionFrom(c).Scope(), f)
		if err != nil {
			return errFromDomain(c, err)
		}
		t, err := table.Build(recs, splitList(c.Query("columns")), c.Query("order"))
		if err != nil {
			return errFromDomain(c, err)
		}
		var buf bytes.Buffer
		if err := t.WriteCSV(&buf); err != nil {
			return errInternal(c, "csv export failed")
		}
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="records.csv"`)
		c.Set(fiber.HeaderCacheControl, "private, no-store")
		return c.Send(buf.Bytes())
	}
}

// ImportRecordsHandler bulk-loads a CSV (multipart field "file", or a raw
// text/csv body). Rows that fail to parse or validate are reported by line
// and skipped; the valid rows are still imported.
func ImportRecordsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body io.Reader
		if fh, err := c.FormFile("file"); err == nil {
			f, err := fh.Open()
			if err != nil {
				return errBadRequest(c, "unreadable upload")
			}
			defer f.Close()
			body = f
		} else {
			body = bytes.NewReader(c.Body())
		}

		rows, rowErrs, err := table.ReadRecords(body)
		if err != nil {
			return errFromDomain(c, err)
		}
		res, err := deps.Records.Import(c.UserContext(), sessionFrom(c).Scope(), table.Inputs(rows))
		if err != nil {
			return errFromDomain(c, err)
		}
		for _, rj := range res.Rejected {
			rowErrs = append(rowErrs, table.RowError{Line: rows[rj.Index].Line, Err: rj.Err})
		}
		slices.SortFunc(rowErrs, func(a, b table.RowError) int { return a.Line - b.Line })
		problems := make([]string, 0, len(rowErrs))
		for _, re := range rowErrs {
			problems = append(problems, re.Error())
		}
		return c.JSON(fiber.Map{
			"imported": res.Imported,
			"skipped":  len(rowErrs),
			"errors":   problems,
			"message":  fmt.Sprintf("imported %d records", res.Imported),
		})
	}
}
