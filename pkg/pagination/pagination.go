package pagination

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxPage keeps Offset()+Limit within int for any allowed limit.
	MaxPage = math.MaxInt / MaxLimit
)

// Params holds pagination and sort parameters extracted from a request.
// Sort is a compact expression such as "-createdAt,lastName".
type Params struct {
	Page  int
	Limit int
	Sort  string
}

// FromContext extracts pagination parameters from the echo context.
// Accepts page, limit (or pageSize), sort, and the sortBy/sortOrder pair.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = DefaultPage
	}
	if page > MaxPage {
		page = MaxPage
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit, _ = strconv.Atoi(c.QueryParam("pageSize"))
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	sort := strings.TrimSpace(c.QueryParam("sort"))
	if by := strings.TrimSpace(c.QueryParam("sortBy")); by != "" {
		if strings.EqualFold(c.QueryParam("sortOrder"), "desc") {
			by = "-" + by
		}
		sort = by
	}

	return Params{Page: page, Limit: limit, Sort: sort}
}

// Offset is the number of rows skipped before the current page.
func (p Params) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset())
}

// TotalPages is ceil(total/limit), and 0 when there is nothing to page.
func (p Params) TotalPages(total int) int {
	if total <= 0 || p.Limit <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset()+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Page > 1
}

// Response wraps a paginated API response.
type Response struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"totalPages"`
	HasMore    bool        `json:"hasMore"`
}

// NewResponse builds the list envelope. A nil slice is rendered as [].
func NewResponse[T any](data []T, total int, p Params) *Response {
	if data == nil {
		data = []T{}
	}
	return &Response{
		Data:       data,
		Total:      total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: p.TotalPages(total),
		HasMore:    p.HasNext(total),
	}
}
