// Package page slices ordered result sets into fixed-size pages with stable
// forward/backward navigation references. It is independent of the transport:
// the caller decides how pages and buttons are rendered.
//
// Invariants:
//   - pageCount = ceil(len(items) / size), never below 1
//   - the requested index is clamped into [0, pageCount-1]
//   - item order within a page equals input order
//   - navigation refs step exactly one page from the clamped index, never
//     from the caller-supplied raw value
package page

import "github.com/scoredb/studentdb-bot/internal/domain"

// Page is one window over an ordered result set.
type Page[T any] struct {
	// Items is the slice for this page, aliasing the input slice.
	Items []T
	// Index is the clamped, zero-based page index.
	Index int
	// Count is the total number of pages.
	Count int
	// Total is the length of the input.
	Total int
}

// Paginate slices items into pages of the given size and returns the page at
// index, clamping index into range. A size below 1 is coerced to 1. Empty
// input yields a single empty page; callers normally reject empty result
// sets before paginating.
func Paginate[T any](items []T, index, size int) Page[T] {
	if size < 1 {
		size = 1
	}
	count := (len(items) + size - 1) / size
	if count < 1 {
		count = 1
	}
	if index < 0 {
		index = 0
	}
	if index > count-1 {
		index = count - 1
	}
	start := index * size
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	if start > len(items) {
		start = len(items)
	}
	return Page[T]{Items: items[start:end], Index: index, Count: count, Total: len(items)}
}

// HasPrev reports whether a previous page exists.
func (p Page[T]) HasPrev() bool { return p.Index > 0 }

// HasNext reports whether a following page exists.
func (p Page[T]) HasNext() bool { return p.Index < p.Count-1 }

// PrevRef returns ref pointing one page back from the clamped index.
// Only meaningful when HasPrev is true.
func (p Page[T]) PrevRef(ref domain.PageRef) domain.PageRef {
	ref.Page = p.Index - 1
	return ref
}

// NextRef returns ref pointing one page forward from the clamped index.
// Only meaningful when HasNext is true.
func (p Page[T]) NextRef(ref domain.PageRef) domain.PageRef {
	ref.Page = p.Index + 1
	return ref
}

// Ref returns ref pinned to this page's clamped index, suitable for
// "back to this page" payloads.
func (p Page[T]) Ref(ref domain.PageRef) domain.PageRef {
	ref.Page = p.Index
	return ref
}

// Rows groups items into fixed-width rows, preserving order. The final row
// may be shorter. Width below 1 is coerced to 1.
func Rows[T any](items []T, width int) [][]T {
	if width < 1 {
		width = 1
	}
	rows := make([][]T, 0, (len(items)+width-1)/width)
	for start := 0; start < len(items); start += width {
		end := start + width
		if end > len(items) {
			end = len(items)
		}
		rows = append(rows, items[start:end])
	}
	return rows
}
