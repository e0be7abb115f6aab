package handler

import "playmatch/rooms/internal/service"

// PaginationMeta defines the structure for pagination metadata.
type PaginationMeta struct {
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
}

// PaginatedResponse defines the structure for a paginated list of any type.
type PaginatedResponse[T any] struct {
	Data []T            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

// NewPaginatedResponse creates a new PaginatedResponse.
func NewPaginatedResponse[T any](data []T, totalItems int64, page, limit int) PaginatedResponse[T] {
	if data == nil {
		data = []T{}
	}
	return PaginatedResponse[T]{
		Data: data,
		Meta: PaginationMeta{
			TotalItems:  totalItems,
			TotalPages:  service.Pages(totalItems, limit),
			CurrentPage: page,
			PageSize:    limit,
		},
	}
}

// ListParams are the query parameters shared by every listing endpoint.
type ListParams struct {
	Page  int    `form:"page" binding:"omitempty,min=1"`
	Size  int    `form:"size" binding:"omitempty,min=1,max=100"`
	Sort  string `form:"sort"`
	Order string `form:"order" binding:"omitempty,oneof=asc desc"`
}

func (p ListParams) query() service.ListQuery {
	q := service.ListQuery{Page: p.Page, Size: p.Size, Sort: p.Sort, Order: p.Order}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Size < 1 {
		q.Size = service.DefaultPageSize
	}
	return q
}
