package repository

import "gorm.io/gorm"

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize clamps the request to 1-based pages of at most MaxPageSize rows.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	switch {
	case p.PageSize < 1:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

func (p PageRequest) Offset() int { return (p.Page - 1) * p.PageSize }

type PageResult[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func (r PageResult[T]) HasNext() bool { return r.Page < r.TotalPages }

// findPage counts the rows matched by base, then loads one ordered page.
// Scopes such as Preload apply to the page query only. Both queries run on
// session copies, so base is left untouched and may be reused.
func findPage[T any](base *gorm.DB, req PageRequest, order string, scopes ...func(*gorm.DB) *gorm.DB) (PageResult[T], error) {
	req = req.Normalize()
	base = base.Session(&gorm.Session{})
	result := PageResult[T]{Page: req.Page, PageSize: req.PageSize, Items: []T{}}
	if err := base.Count(&result.Total).Error; err != nil {
		return PageResult[T]{}, err
	}
	result.TotalPages = int((result.Total + int64(req.PageSize) - 1) / int64(req.PageSize))
	if result.Total == 0 || req.Offset() >= int(result.Total) {
		return result, nil
	}
	err := base.Scopes(scopes...).Order(order).Offset(req.Offset()).Limit(req.PageSize).Find(&result.Items).Error
	if err != nil {
		return PageResult[T]{}, err
	}
	return result, nil
}
