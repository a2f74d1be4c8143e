package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// PaginatedResponse wraps list results with pagination metadata.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination contains offset-based pagination info.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// SetLinkHeaders adds RFC 8288 Link headers for paginated responses.
// Filter parameters of the current request are carried into every link.
func SetLinkHeaders(c *fiber.Ctx, p Pagination) {
	base := c.Path()
	params := url.Values{}
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		params.Set(string(k), string(v))
	})
	link := func(offset int, rel string) string {
		params.Set("offset", strconv.Itoa(offset))
		params.Set("limit", strconv.Itoa(p.Limit))
		return fmt.Sprintf(`<%s?%s>; rel="%s"`, base, params.Encode(), rel)
	}

	var links []string
	links = append(links, link(0, "first"))

	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-p.Limit, 0), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}

	lastOffset := 0
	if p.Total > 0 && p.Limit > 0 {
		lastOffset = ((p.Total - 1) / p.Limit) * p.Limit
	}
	links = append(links, link(lastOffset, "last"))

	c.Set("Link", strings.Join(links, ", "))
}
