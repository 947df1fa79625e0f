package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"meshbridge/internal/shared/constants"
)

// Pagination is the normalized page window every list endpoint works with.
type Pagination struct {
	Page     int
	PageSize int
}

// ValidatePagination clamps page and pageSize into the allowed window. The cap
// keeps one API call from walking the whole message history.
func ValidatePagination(page, pageSize int) Pagination {
	if page < 1 {
		page = constants.DefaultPage
	}
	switch {
	case pageSize < 1:
		pageSize = constants.DefaultPageSize
	case pageSize > constants.MaxPageSize:
		pageSize = constants.MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// ParsePagination reads page and page_size from the query string. Absent or
// malformed values fall back to the defaults rather than erroring; the page
// window is never worth a 400.
func ParsePagination(c *gin.Context) Pagination {
	return ValidatePagination(queryInt(c, "page"), queryInt(c, "page_size"))
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}

// TotalPages reports how many pages a listing spans; an empty result still
// has one page so clients can render page 1 of 1.
func TotalPages(total int64, pageSize int) int {
	if total == 0 || pageSize == 0 {
		return 1
	}
	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	if pages == 0 {
		return 1
	}
	return pages
}
