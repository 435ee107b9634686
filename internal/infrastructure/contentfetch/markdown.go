package contentfetch

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/microcosm-cc/bluemonday"
)

var previewSanitizer = bluemonday.UGCPolicy()

// RenderPreviewNote turns extracted metadata into a small Markdown→HTML
// citation preview, stashed on the processing attempt so a UI can show the
// user what was found without re-fetching the URL. This is additive to the
// core state machine — it never participates in status transitions.
func RenderPreviewNote(meta map[string]interface{}) string {
	var md strings.Builder

	if title, ok := meta["title"].(string); ok && title != "" {
		fmt.Fprintf(&md, "## %s\n\n", title)
	}
	if authors, ok := meta["authors"].([]string); ok && len(authors) > 0 {
		fmt.Fprintf(&md, "*%s*\n\n", strings.Join(authors, ", "))
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		if k == "title" || k == "authors" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&md, "- **%s:** %v\n", k, meta[k])
	}

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &htmlBuf); err != nil {
		return ""
	}
	return previewSanitizer.SanitizeString(htmlBuf.String())
}
