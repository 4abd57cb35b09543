// ABOUTME: Pure page-window arithmetic for paginated list endpoints
// ABOUTME: Every move clamps into the valid range; no call can leave the window out of bounds

package pagination

import (
	"fmt"
	"net/url"
	"strconv"
)

// DefaultPageSize is used when a window is built with a non-positive size.
const DefaultPageSize = 10

// Window tracks the current page over a known total. The zero value is not
// usable; construct with New. Window is plain state, not safe for concurrent
// use.
type Window struct {
	page     int
	pageSize int
	total    int
}

// New builds a window on page 1 with no items yet. A non-positive pageSize
// falls back to DefaultPageSize.
func New(pageSize int) *Window {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Window{page: 1, pageSize: pageSize}
}

// Page is the current 1-based page.
func (w *Window) Page() int { return w.page }

// PageSize is the number of items per page.
func (w *Window) PageSize() int { return w.pageSize }

// Total is the total item count reported by the server.
func (w *Window) Total() int { return w.total }

// TotalPages is the page count needed to hold Total items. Zero items means
// zero pages, though the current page never drops below 1.
func (w *Window) TotalPages() int {
	if w.total == 0 {
		return 0
	}
	return (w.total + w.pageSize - 1) / w.pageSize
}

// Offset is the item index the current page starts at, for offset-based
// endpoints.
func (w *Window) Offset() int {
	return (w.page - 1) * w.pageSize
}

// CanNext reports whether a later page exists.
func (w *Window) CanNext() bool { return w.page < w.TotalPages() }

// CanPrevious reports whether an earlier page exists.
func (w *Window) CanPrevious() bool { return w.page > 1 }

// Next advances one page, staying on the last page if already there.
func (w *Window) Next() { w.GoTo(w.page + 1) }

// Previous steps back one page, staying on page 1 if already there.
func (w *Window) Previous() { w.GoTo(w.page - 1) }

// First jumps to page 1.
func (w *Window) First() { w.GoTo(1) }

// Last jumps to the final page.
func (w *Window) Last() { w.GoTo(w.TotalPages()) }

// GoTo moves to the given page, clamped into the valid range.
func (w *Window) GoTo(page int) {
	w.page = clamp(page, 1, w.maxPage())
}

// SetTotal records a new total and re-clamps the current page, so a shrinking
// result set never leaves the window past the end.
func (w *Window) SetTotal(total int) {
	if total < 0 {
		total = 0
	}
	w.total = total
	w.page = clamp(w.page, 1, w.maxPage())
}

// SetPageSize changes the page size and returns to page 1; keeping the old
// page number against a new size would land on unrelated items.
func (w *Window) SetPageSize(pageSize int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	w.pageSize = pageSize
	w.page = 1
}

// Range returns the 1-based indexes of the first and last item on the
// current page. Both are zero when there are no items.
func (w *Window) Range() (start, end int) {
	if w.total == 0 {
		return 0, 0
	}
	start = w.Offset() + 1
	end = w.Offset() + w.pageSize
	if end > w.total {
		end = w.total
	}
	return start, end
}

// PageInfo renders the window for display, e.g. "21-25 of 25".
func (w *Window) PageInfo() string {
	if w.total == 0 {
		return "No items"
	}
	start, end := w.Range()
	return fmt.Sprintf("%d-%d of %d", start, end, w.total)
}

// Query renders the window as request parameters for list endpoints.
func (w *Window) Query() url.Values {
	return url.Values{
		"page":     []string{strconv.Itoa(w.page)},
		"pageSize": []string{strconv.Itoa(w.pageSize)},
	}
}

func (w *Window) maxPage() int {
	if tp := w.TotalPages(); tp > 1 {
		return tp
	}
	return 1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
