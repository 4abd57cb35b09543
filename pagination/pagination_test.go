// ABOUTME: Tests for page-window arithmetic: derived values, clamped moves, re-clamping totals
// ABOUTME: Covers the empty set, single page, exact-fit, and shrinking-total edge cases

package pagination

import "testing"

func TestWindow_DerivedValues(t *testing.T) {
	tests := []struct {
		name       string
		pageSize   int
		total      int
		page       int
		totalPages int
		offset     int
		info       string
	}{
		{"partial last page", 10, 25, 3, 3, 20, "21-25 of 25"},
		{"first page", 10, 25, 1, 3, 0, "1-10 of 25"},
		{"exact fit", 10, 30, 3, 3, 20, "21-30 of 30"},
		{"single page", 10, 7, 1, 1, 0, "1-7 of 7"},
		{"single item", 10, 1, 1, 1, 0, "1-1 of 1"},
		{"empty", 10, 0, 1, 0, 0, "No items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(tt.pageSize)
			w.SetTotal(tt.total)
			w.GoTo(tt.page)

			if w.Page() != tt.page {
				t.Errorf("expected page %d, got %d", tt.page, w.Page())
			}
			if w.TotalPages() != tt.totalPages {
				t.Errorf("expected %d total pages, got %d", tt.totalPages, w.TotalPages())
			}
			if w.Offset() != tt.offset {
				t.Errorf("expected offset %d, got %d", tt.offset, w.Offset())
			}
			if w.PageInfo() != tt.info {
				t.Errorf("expected page info %q, got %q", tt.info, w.PageInfo())
			}
		})
	}
}

func TestWindow_MovesClampAtBounds(t *testing.T) {
	w := New(10)
	w.SetTotal(25)

	if w.CanPrevious() {
		t.Error("expected CanPrevious false on page 1")
	}
	w.Previous()
	if w.Page() != 1 {
		t.Errorf("expected Previous on page 1 to stay, got page %d", w.Page())
	}

	w.Next()
	w.Next()
	if w.Page() != 3 || !w.CanPrevious() {
		t.Fatalf("expected page 3 after two Next calls, got %d", w.Page())
	}
	if w.CanNext() {
		t.Error("expected CanNext false on the last page")
	}

	w.Next()
	if w.Page() != 3 {
		t.Errorf("expected Next on the last page to stay, got page %d", w.Page())
	}

	w.First()
	if w.Page() != 1 {
		t.Errorf("expected First to land on page 1, got %d", w.Page())
	}
	w.Last()
	if w.Page() != 3 {
		t.Errorf("expected Last to land on page 3, got %d", w.Page())
	}
}

func TestWindow_GoToClamps(t *testing.T) {
	w := New(10)
	w.SetTotal(25)

	w.GoTo(99)
	if w.Page() != 3 {
		t.Errorf("expected overshoot to clamp to 3, got %d", w.Page())
	}
	w.GoTo(-5)
	if w.Page() != 1 {
		t.Errorf("expected undershoot to clamp to 1, got %d", w.Page())
	}
	w.GoTo(2)
	if w.Page() != 2 {
		t.Errorf("expected in-range GoTo to land exactly, got %d", w.Page())
	}
}

func TestWindow_SetTotalReclampsPage(t *testing.T) {
	w := New(10)
	w.SetTotal(45)
	w.GoTo(5)

	w.SetTotal(25)
	if w.Page() != 3 {
		t.Errorf("expected shrinking total to pull page back to 3, got %d", w.Page())
	}

	w.SetTotal(0)
	if w.Page() != 1 {
		t.Errorf("expected empty total to land on page 1, got %d", w.Page())
	}
	if w.CanNext() || w.CanPrevious() {
		t.Error("expected no movement possible with no items")
	}

	w.SetTotal(-3)
	if w.Total() != 0 {
		t.Errorf("expected negative total to normalize to 0, got %d", w.Total())
	}
}

func TestWindow_SetPageSizeResetsToFirstPage(t *testing.T) {
	w := New(10)
	w.SetTotal(100)
	w.GoTo(7)

	w.SetPageSize(25)
	if w.Page() != 1 {
		t.Errorf("expected page reset after size change, got %d", w.Page())
	}
	if w.TotalPages() != 4 {
		t.Errorf("expected 4 total pages at size 25, got %d", w.TotalPages())
	}

	w.SetPageSize(0)
	if w.PageSize() != DefaultPageSize {
		t.Errorf("expected non-positive size to fall back to %d, got %d", DefaultPageSize, w.PageSize())
	}
}

func TestWindow_DefaultsAndQuery(t *testing.T) {
	w := New(0)
	if w.PageSize() != DefaultPageSize {
		t.Fatalf("expected default page size %d, got %d", DefaultPageSize, w.PageSize())
	}
	if w.Page() != 1 {
		t.Fatalf("expected new window on page 1, got %d", w.Page())
	}

	w.SetTotal(45)
	w.GoTo(2)
	q := w.Query()
	if got := q.Get("page"); got != "2" {
		t.Errorf("expected page param 2, got %q", got)
	}
	if got := q.Get("pageSize"); got != "10" {
		t.Errorf("expected pageSize param 10, got %q", got)
	}
}

func TestWindow_RangeOnEmptySet(t *testing.T) {
	w := New(10)
	start, end := w.Range()
	if start != 0 || end != 0 {
		t.Errorf("expected zero range with no items, got %d-%d", start, end)
	}
}
