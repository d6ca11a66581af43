package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseOffsetParamsDefaults(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	p, err := ParseOffsetParams(r)
	if err != nil {
		t.Fatalf("ParseOffsetParams() error = %v", err)
	}
	if p.Limit != DefaultPageSize {
		t.Errorf("Limit = %d, want %d", p.Limit, DefaultPageSize)
	}
	if p.Offset != 0 {
		t.Errorf("Offset = %d, want 0", p.Offset)
	}
}

func TestParseOffsetParamsCustom(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=10&offset=20", nil)
	p, err := ParseOffsetParams(r)
	if err != nil {
		t.Fatalf("ParseOffsetParams() error = %v", err)
	}
	if p.Limit != 10 || p.Offset != 20 {
		t.Errorf("got Limit=%d Offset=%d, want 10/20", p.Limit, p.Offset)
	}
}

func TestParseOffsetParamsCapsLimit(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=10000", nil)
	p, err := ParseOffsetParams(r)
	if err != nil {
		t.Fatal(err)
	}
	if p.Limit != MaxPageSize {
		t.Errorf("Limit = %d, want capped at %d", p.Limit, MaxPageSize)
	}
}

func TestParseOffsetParamsRejectsInvalid(t *testing.T) {
	cases := []string{"limit=-1", "limit=abc", "offset=-1", "offset=abc"}
	for _, q := range cases {
		r := httptest.NewRequest(http.MethodGet, "/?"+q, nil)
		if _, err := ParseOffsetParams(r); err == nil {
			t.Errorf("query %q: expected an error", q)
		}
	}
}

func TestNewOffsetPageHasMore(t *testing.T) {
	items := make([]string, 10)
	params := OffsetParams{Limit: 10, Offset: 0}

	page := NewOffsetPage(items, params, 25)
	if !page.HasMore {
		t.Error("expected HasMore to be true")
	}
	if page.Total != 25 {
		t.Errorf("Total = %d, want 25", page.Total)
	}

	lastPage := NewOffsetPage(items, OffsetParams{Limit: 10, Offset: 20}, 25)
	if lastPage.HasMore {
		t.Error("expected HasMore to be false on the final page")
	}
}

func TestNewEventPageUsesEventsKey(t *testing.T) {
	events := make([]string, 3)
	page := NewEventPage(events, OffsetParams{Limit: 25, Offset: 0}, 3)
	if len(page.Events) != 3 {
		t.Errorf("Events length = %d, want 3", len(page.Events))
	}
	if page.HasMore {
		t.Error("expected HasMore to be false when offset+len == total")
	}
}
