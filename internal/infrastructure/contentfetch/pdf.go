package contentfetch

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/service"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

// maxPDFTextPages bounds how many pages the regex pass runs over — a
// citation's DOI/ISBN/abstract almost always sits on the first couple of
// pages, and full-document extraction is wasted work on large PDFs.
const maxPDFTextPages = 5

// extractPDF runs the PDF-specific extractor stage_content falls back to
// when the fetched content type is application/pdf (§4.4).
func extractPDF(body []byte) (service.FetchResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return service.FetchResult{}, fmt.Errorf("open pdf: %w", err)
	}

	var text bytes.Buffer
	pages := reader.NumPage()
	limit := pages
	if limit > maxPDFTextPages {
		limit = maxPDFTextPages
	}
	for i := 1; i <= limit; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}

	meta := map[string]interface{}{"type": "journalArticle"}
	if title := pdfTitle(reader); title != "" {
		meta["title"] = title
	}

	var ids []valueobject.Identifier
	applyRegexExtractor(text.Bytes(), meta, &ids)

	return service.FetchResult{Identifiers: ids, Metadata: meta}, nil
}

// pdfTitle reads the document info dictionary's Title entry, falling back to
// empty when the PDF carries no metadata (common for scanned documents).
func pdfTitle(reader *pdf.Reader) string {
	trailer := reader.Trailer()
	info := trailer.Key("Info")
	if info.IsNull() {
		return ""
	}
	return info.Key("Title").Text()
}
