package repository

const (
	DefaultPage     = 1
	DefaultPageSize = 50
	MaxPageSize     = 200
)

type PageRequest struct {
	Page     int
	PageSize int
}

type PageResult struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func normalizePageRequest(in PageRequest) PageRequest {
	if in.Page < DefaultPage {
		in.Page = DefaultPage
	}
	if in.PageSize <= 0 {
		in.PageSize = DefaultPageSize
	}
	if in.PageSize > MaxPageSize {
		in.PageSize = MaxPageSize
	}
	return in
}

func calcTotalPages(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	pages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		pages++
	}
	return int(pages)
}
