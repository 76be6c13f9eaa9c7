package ui

import "testing"

func TestTemplatesEmbedded(t *testing.T) {
	names := []string{
		"base.html",
		"availability.html",
		"availability_edit.html",
	}
	for _, name := range names {
		if _, err := templateFS.Open("templates/" + name); err != nil {
			t.Fatalf("expected embedded template %s, got error: %v", name, err)
		}
	}
}

func TestTemplateSetsExcludeBase(t *testing.T) {
	if _, ok := templates["base.html"]; ok {
		t.Error("base.html should only be parsed as part of page sets")
	}
	for _, name := range []string{"availability.html", "availability_edit.html"} {
		if templates[name] == nil {
			t.Errorf("missing template set for %s", name)
		}
	}
}
