// Package pagination clamps page parameters and computes has_more.
package pagination

const (
	MaxPerPage     = 100
	DefaultPerPage = 20
)

// Page is a clamped page request.
type Page struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// Clamp forces page >= 1 and perPage into [1, MaxPerPage].
func Clamp(page, perPage int) Page {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Page{Page: page, PerPage: perPage, Offset: (page - 1) * perPage}
}

// HasMore compares against the retriever's total, counted before hydration
// drops unresolved ids. A page can therefore hold fewer than PerPage items
// while HasMore is still true.
func (p Page) HasMore(total int) bool {
	return p.Offset+p.PerPage < total
}

// End is the exclusive index of the last item on the page.
func (p Page) End() int {
	return p.Offset + p.PerPage
}
