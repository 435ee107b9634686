package contentfetch

import (
	"strings"
	"testing"
)

func TestRenderPreviewNote_TitleAndAuthorsAndFields(t *testing.T) {
	meta := map[string]interface{}{
		"title":       "A Study of Things",
		"authors":     []string{"Ada Lovelace", "Alan Turing"},
		"date":        "2024-01-01",
		"publication": "Journal of Things",
	}

	html := RenderPreviewNote(meta)

	if html == "" {
		t.Fatal("expected non-empty rendered preview")
	}
	for _, want := range []string{"A Study of Things", "Ada Lovelace", "2024-01-01", "Journal of Things"} {
		if !strings.Contains(html, want) {
			t.Errorf("expected rendered preview to contain %q, got %s", want, html)
		}
	}
}

func TestRenderPreviewNote_EmptyMetadataRendersEmptyOrMinimal(t *testing.T) {
	html := RenderPreviewNote(map[string]interface{}{})
	if strings.Contains(html, "<script") {
		t.Fatalf("sanitizer must never let scripts through: %s", html)
	}
}

func TestRenderPreviewNote_SanitizesEmbeddedMarkup(t *testing.T) {
	meta := map[string]interface{}{
		"title": "<script>alert(1)</script>Safe Title",
	}
	html := RenderPreviewNote(meta)
	if strings.Contains(html, "<script>") {
		t.Fatalf("expected script tag to be stripped, got %s", html)
	}
}
