package domain

// PaginationMeta envelope returned with every list response.
type PaginationMeta struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"pageSize"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NewPaginationMeta computes a consistent envelope for total rows.
// requestedPage beyond the last page is corrected to the last page;
// with no rows the page is 1 and totalPages is 0.
func NewPaginationMeta(requestedPage, pageSize, total int) PaginationMeta {
	totalPages := 0
	if total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	page := requestedPage
	if page < 1 {
		page = 1
	}
	if totalPages == 0 {
		page = 1
	} else if page > totalPages {
		page = totalPages
	}

	return PaginationMeta{
		Page:        page,
		PageSize:    pageSize,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

// Offset row offset of the page.
func (m PaginationMeta) Offset() int {
	return (m.Page - 1) * m.PageSize
}
