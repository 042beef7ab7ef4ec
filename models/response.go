package models

// Response is the envelope returned by every JSON endpoint
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PaginatedData wraps a page of results
type PaginatedData struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
	Pages int64       `json:"pages"`
}

// NewPaginatedData builds the page envelope and computes the page count
func NewPaginatedData(items interface{}, total int64, page, limit int) PaginatedData {
	pages := int64(0)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	return PaginatedData{Items: items, Total: total, Page: page, Limit: limit, Pages: pages}
}
