package services

// Page is one page of a paged listing.
type Page[T any] struct {
	CurrentPageNumber int   `json:"currentPageNumber"`
	PageSize          int   `json:"pageSize"`
	TotalPages        int   `json:"totalPages"`
	TotalItems        int64 `json:"totalItems"`
	Items             []T   `json:"items"`
}

const (
	DefaultPageSize = 30
	MaxPageSize     = 100
)

// NewPage builds a page from items of page number page (1 based).
func NewPage[T any](items []T, page, pageSize int, total int64) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		CurrentPageNumber: page,
		PageSize:          pageSize,
		TotalPages:        int((total + int64(pageSize) - 1) / int64(pageSize)),
		TotalItems:        total,
		Items:             items,
	}
}

// MapPage converts the items of p.
func MapPage[T, R any](p *Page[T], fn func(*T) R) *Page[R] {
	items := make([]R, 0, len(p.Items))
	for i := range p.Items {
		items = append(items, fn(&p.Items[i]))
	}
	return &Page[R]{
		CurrentPageNumber: p.CurrentPageNumber,
		PageSize:          p.PageSize,
		TotalPages:        p.TotalPages,
		TotalItems:        p.TotalItems,
		Items:             items,
	}
}

// NormalizePaging clamps page to >= 1 and pageSize to 1..MaxPageSize.
func NormalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}
