package page

import (
	"reflect"
	"testing"

	"github.com/scoredb/studentdb-bot/internal/domain"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestPaginateClamping(t *testing.T) {
	items := seq(25)

	cases := []struct {
		name      string
		index     int
		size      int
		wantIndex int
		wantCount int
		wantFirst int
		wantLen   int
	}{
		{"negative index clamps to zero", -3, 9, 0, 3, 1, 9},
		{"oversized index clamps to last", 99, 9, 2, 3, 19, 7},
		{"middle page", 1, 9, 1, 3, 10, 9},
		{"exact fit", 0, 25, 0, 1, 1, 25},
		{"size one", 24, 1, 24, 25, 25, 1},
	}

	for _, tc := range cases {
		p := Paginate(items, tc.index, tc.size)
		if p.Index != tc.wantIndex || p.Count != tc.wantCount {
			t.Fatalf("%s: got index=%d count=%d; want index=%d count=%d",
				tc.name, p.Index, p.Count, tc.wantIndex, tc.wantCount)
		}
		if len(p.Items) != tc.wantLen || p.Items[0] != tc.wantFirst {
			t.Fatalf("%s: got len=%d first=%d; want len=%d first=%d",
				tc.name, len(p.Items), p.Items[0], tc.wantLen, tc.wantFirst)
		}
		if p.Total != 25 {
			t.Fatalf("%s: Total = %d; want 25", tc.name, p.Total)
		}
	}
}

func TestPaginateLastPageSlice(t *testing.T) {
	p := Paginate(seq(25), 99, 9)
	want := []int{19, 20, 21, 22, 23, 24, 25}
	if !reflect.DeepEqual(p.Items, want) {
		t.Fatalf("last page = %v; want %v", p.Items, want)
	}
}

func TestPaginateEmptyInput(t *testing.T) {
	p := Paginate([]int{}, 3, 9)
	if p.Index != 0 || p.Count != 1 || len(p.Items) != 0 {
		t.Fatalf("empty input: got %+v", p)
	}
	if p.HasPrev() || p.HasNext() {
		t.Fatal("empty input must have no navigation")
	}
}

func TestNavigationRefs(t *testing.T) {
	ref := domain.PageRef{Kind: domain.PageSearch, Key: "zhang", Page: 77}

	// Middle page: both directions, derived from the clamped index.
	p := Paginate(seq(25), 1, 9)
	if !p.HasPrev() || !p.HasNext() {
		t.Fatal("middle page must navigate both ways")
	}
	if got := p.PrevRef(ref); got.Page != 0 || got.Key != "zhang" || got.Kind != domain.PageSearch {
		t.Fatalf("PrevRef = %+v", got)
	}
	if got := p.NextRef(ref); got.Page != 2 {
		t.Fatalf("NextRef.Page = %d; want 2", got.Page)
	}

	// Clamped-to-last page: next ref must not exist, prev derives from the
	// clamped index (2), not the raw request (99).
	p = Paginate(seq(25), 99, 9)
	if p.HasNext() {
		t.Fatal("last page must not offer next")
	}
	if got := p.PrevRef(ref); got.Page != 1 {
		t.Fatalf("PrevRef.Page = %d; want 1", got.Page)
	}

	// First page.
	p = Paginate(seq(25), 0, 9)
	if p.HasPrev() {
		t.Fatal("first page must not offer prev")
	}
	if got := p.Ref(ref); got.Page != 0 {
		t.Fatalf("Ref.Page = %d; want 0", got.Page)
	}
}

func TestRows(t *testing.T) {
	got := Rows(seq(7), 3)
	want := [][]int{{1, 2, 3}, {4, 5, 6}, {7}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Rows = %v; want %v", got, want)
	}
	if got := Rows([]int{}, 3); len(got) != 0 {
		t.Fatalf("Rows(empty) = %v; want empty", got)
	}
	if got := Rows(seq(2), 0); len(got) != 2 {
		t.Fatalf("Rows width 0 coerced to 1: %v", got)
	}
}
