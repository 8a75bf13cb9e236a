package pagination

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   Params
		want Params
	}{
		{Params{}, Params{Page: 1, Limit: DefaultLimit}},
		{Params{Page: -2, Limit: 500}, Params{Page: 1, Limit: MaxLimit}},
		{Params{Page: 4, Limit: 25}, Params{Page: 4, Limit: 25}},
	}
	for _, tc := range cases {
		if got := tc.in.Normalize(); got != tc.want {
			t.Fatalf("Normalize(%+v) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestNewMeta(t *testing.T) {
	meta := NewMeta(Params{Page: 2, Limit: 10}, 3, 25)
	if !meta.HasNext || meta.TotalItems != 25 || meta.Page != 2 {
		t.Fatalf("unexpected meta %+v", meta)
	}
	last := NewMeta(Params{Page: 3, Limit: 10}, 3, 25)
	if last.HasNext {
		t.Fatalf("last page should not have next: %+v", last)
	}
}
