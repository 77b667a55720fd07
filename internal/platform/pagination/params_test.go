package pagination

import (
	"errors"
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.Page != 1 {
		t.Fatalf("expected page 1, got %d", params.Page)
	}
	if params.Limit != DefaultLimit {
		t.Fatalf("expected limit %d, got %d", DefaultLimit, params.Limit)
	}
}

func TestParseExplicitValues(t *testing.T) {
	values := url.Values{"page": []string{"3"}, "limit": []string{"25"}}
	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.Page != 3 || params.Limit != 25 {
		t.Fatalf("unexpected params: %+v", params)
	}
	if got := params.Offset(); got != 50 {
		t.Fatalf("expected offset 50, got %d", got)
	}
}

func TestParseClampsLimit(t *testing.T) {
	params, err := Parse(url.Values{"limit": []string{"500"}}, Options{MaxLimit: 100})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.Limit != 100 {
		t.Fatalf("expected clamped limit 100, got %d", params.Limit)
	}
}

func TestParseRejectsInvalidPage(t *testing.T) {
	for _, raw := range []string{"0", "-1", "abc", "1.5"} {
		if _, err := Parse(url.Values{"page": []string{raw}}, Options{}); !errors.Is(err, ErrInvalidPage) {
			t.Fatalf("page=%q: expected ErrInvalidPage, got %v", raw, err)
		}
	}
}

func TestParseRejectsInvalidLimit(t *testing.T) {
	for _, raw := range []string{"0", "-5", "ten"} {
		if _, err := Parse(url.Values{"limit": []string{raw}}, Options{}); !errors.Is(err, ErrInvalidLimit) {
			t.Fatalf("limit=%q: expected ErrInvalidLimit, got %v", raw, err)
		}
	}
}

func TestPages(t *testing.T) {
	cases := []struct {
		total int64
		limit int
		want  int
	}{
		{total: 0, limit: 10, want: 0},
		{total: 1, limit: 10, want: 1},
		{total: 10, limit: 10, want: 1},
		{total: 11, limit: 10, want: 2},
		{total: 25, limit: 10, want: 3},
	}
	for _, tc := range cases {
		params := Params{Page: 1, Limit: tc.limit}
		if got := params.Pages(tc.total); got != tc.want {
			t.Fatalf("Pages(%d) with limit %d = %d, want %d", tc.total, tc.limit, got, tc.want)
		}
	}
}

func TestMustAppliesDefaults(t *testing.T) {
	params := Must(Params{})
	if params.Page != 1 || params.Limit != DefaultLimit {
		t.Fatalf("unexpected defaults: %+v", params)
	}
}
