// Package pagination parses limit/offset query parameters and builds the
// list envelope returned by the intake API.
package pagination

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 25
	MaxLimit     = 200
)

// Page is one window into a list.
type Page struct {
	Limit  int
	Offset int
}

// Parse reads limit and offset from the query string. Missing values fall
// back to defaults, limits above MaxLimit are clamped, and anything that is
// not a non-negative integer is rejected with 400.
func Parse(c echo.Context) (Page, error) {
	p := Page{Limit: DefaultLimit}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Page{}, echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		p.Limit = min(n, MaxLimit)
	}
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Page{}, echo.NewHTTPError(http.StatusBadRequest, "offset must be zero or more")
		}
		p.Offset = n
	}
	return p, nil
}

// Envelope is the JSON body of every paged list.
type Envelope[T any] struct {
	Items  []T    `json:"items"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Next   string `json:"next,omitempty"`
	Prev   string `json:"prev,omitempty"`
}

// Wrap builds the envelope for items. Next and Prev keep every other query
// parameter of u so filters survive paging.
func Wrap[T any](items []T, total int, p Page, u *url.URL) Envelope[T] {
	if items == nil {
		items = []T{}
	}
	env := Envelope[T]{Items: items, Total: total, Limit: p.Limit, Offset: p.Offset}
	if u == nil {
		return env
	}
	if p.Offset+p.Limit < total {
		env.Next = link(u, p.Offset+p.Limit, p.Limit)
	}
	if p.Offset > 0 {
		env.Prev = link(u, max(p.Offset-p.Limit, 0), p.Limit)
	}
	return env
}

func link(u *url.URL, offset, limit int) string {
	q := u.Query()
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return u.Path + "?" + q.Encode()
}
