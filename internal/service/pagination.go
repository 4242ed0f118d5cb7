package service

import "github.com/capitalize-ai/conversations-api/internal/model"

const (
	// DefaultPage is the page used when none is requested.
	DefaultPage = 1
	// DefaultLimit is the page size used when none is requested.
	DefaultLimit = 20
	// MaxLimit is the largest page size accepted.
	MaxLimit = 50
)

// Paginate computes listing metadata. There is always at least one page.
func Paginate(page, limit, totalItems int) model.Pagination {
	totalPages := 1
	if limit > 0 && totalItems > 0 {
		totalPages = (totalItems + limit - 1) / limit
	}

	return model.Pagination{
		Page:        page,
		Limit:       limit,
		TotalItems:  totalItems,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
}
