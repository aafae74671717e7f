package templates

import (
	"context"
	"errors"
	"testing"
)

func TestRender(t *testing.T) {
	got := Render("Thanks for calling {{business_name}}! Hours: {{ hours }}. {{missing}}", map[string]any{
		"business_name": "Acme Dental",
		"hours":         "9-5",
	})
	want := "Thanks for calling Acme Dental! Hours: 9-5. {{missing}}"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if Render("{{a}}", nil) != "{{a}}" {
		t.Fatalf("nil vars must leave text unchanged")
	}
	if Render("{{n}} seats", map[string]any{"n": 3}) != "3 seats" {
		t.Fatalf("expected non-string values formatted")
	}
}

func TestMemoryRepo_ListFiltersAndOrders(t *testing.T) {
	r := NewMemoryRepo()
	dental, legal := "ind-dental", "ind-legal"
	r.PutIndustry(Industry{ID: dental, Slug: "dental"})
	r.PutIndustry(Industry{ID: legal, Slug: "legal"})
	r.Put(Template{ID: "1", Slug: "a", IndustryID: &dental, IsActive: true, UseCount: 5})
	r.Put(Template{ID: "2", Slug: "b", IndustryID: &dental, IsActive: true, IsFeatured: true})
	r.Put(Template{ID: "3", Slug: "c", IndustryID: &legal, IsActive: true, UseCount: 50})
	r.Put(Template{ID: "4", Slug: "d", IndustryID: &dental, IsActive: false})

	got, _ := r.List(context.Background(), Filter{IndustrySlug: "dental"})
	if len(got) != 2 || got[0].ID != "2" {
		t.Fatalf("expected featured dental first, got %+v", got)
	}
	got, _ = r.List(context.Background(), Filter{FeaturedOnly: true})
	if len(got) != 1 {
		t.Fatalf("expected one featured template, got %d", len(got))
	}
	if _, err := r.GetBySlug(context.Background(), "d"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("inactive template must not be served")
	}
}
