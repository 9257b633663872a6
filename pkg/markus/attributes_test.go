package markus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAttributes(t *testing.T) {
	a := newAttributes()
	a.Set("href", "/x")
	a.SetValueless("hidden")
	a.Set("title", `say "hi"`)
	a.Set("href", "/y")

	if diff := cmp.Diff([]string{"href", "hidden", "title"}, a.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
	if want := `href="/y" hidden title="say &quot;hi&quot;"`; a.String() != want {
		t.Errorf("String() = %q, want %q", a.String(), want)
	}
	if v, ok := a.Get("hidden"); !ok || v != "" || !a.Valueless("hidden") {
		t.Errorf("Get(hidden) = %q, %v; want a valueless attribute", v, ok)
	}
	if _, ok := a.Get("missing"); ok || a.Has("missing") {
		t.Error("missing attribute reported as present")
	}

	a.Delete("hidden")
	a.Delete("missing")
	if a.Len() != 2 || a.Has("hidden") {
		t.Errorf("after Delete: Names() = %v", a.Names())
	}
	if diff := cmp.Diff(map[string]string{"href": "/y", "title": `say "hi"`}, a.Map()); diff != "" {
		t.Errorf("Map() mismatch (-want +got):\n%s", diff)
	}
}
