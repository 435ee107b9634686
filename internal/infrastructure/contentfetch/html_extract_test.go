package contentfetch

import (
	"testing"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

func TestExtractFromHTML_MetaTagsWinOverOpenGraph(t *testing.T) {
	doc := []byte(`<html><head>
<meta name="citation_title" content="The Real Title">
<meta name="citation_journal_title" content="Journal of Testing">
<meta name="citation_doi" content="10.1234/abcd.5678">
<meta property="og:title" content="The OpenGraph Title">
</head><body>plain text with no identifiers here</body></html>`)

	ids, meta := extractFromHTML(doc)

	if meta["title"] != "The Real Title" {
		t.Fatalf("expected citation_title to win, got %v", meta["title"])
	}
	if meta["publication"] != "Journal of Testing" {
		t.Fatalf("expected publication set, got %v", meta["publication"])
	}
	if !hasKind(ids, valueobject.IdentifierDOI) {
		t.Fatalf("expected a DOI identifier, got %v", ids)
	}
}

func TestExtractFromHTML_OpenGraphFillsGapsNotOverwrites(t *testing.T) {
	doc := []byte(`<html><head>
<meta property="og:title" content="Fallback Title">
<meta property="og:type" content="article">
</head><body></body></html>`)

	_, meta := extractFromHTML(doc)

	if meta["title"] != "Fallback Title" {
		t.Fatalf("expected og:title to fill the gap, got %v", meta["title"])
	}
	if meta["type"] != "webpage" {
		t.Fatalf("expected webpage type from og:type=article, got %v", meta["type"])
	}
}

func TestExtractFromHTML_RegexFallbackIdentifiers(t *testing.T) {
	doc := []byte(`<html><body>See DOI 10.5678/xyz.123 and also arXiv:2301.01234 for details. PMID: 123456.</body></html>`)

	ids, _ := extractFromHTML(doc)

	want := map[valueobject.IdentifierKind]bool{
		valueobject.IdentifierDOI:   true,
		valueobject.IdentifierArXiv: true,
		valueobject.IdentifierPMID:  true,
	}
	for kind := range want {
		if !hasKind(ids, kind) {
			t.Errorf("expected identifier kind %s to be found, got %v", kind, ids)
		}
	}
}

func TestExtractFromHTML_RegexSkipsIdentifierAlreadyFoundByHigherPriorityExtractor(t *testing.T) {
	doc := []byte(`<html><head>
<meta name="citation_doi" content="10.1111/from-meta">
</head><body>Also mentions 10.2222/from-regex in passing.</body></html>`)

	ids, _ := extractFromHTML(doc)

	doiCount := 0
	for _, id := range ids {
		if id.Kind == valueobject.IdentifierDOI {
			doiCount++
		}
	}
	if doiCount != 1 {
		t.Fatalf("expected exactly one DOI (meta-tag wins, regex pass skips), got %d: %v", doiCount, ids)
	}
}

func TestSetIfEmpty(t *testing.T) {
	meta := map[string]interface{}{"title": "first"}
	setIfEmpty(meta, "title", "second")
	if meta["title"] != "first" {
		t.Fatalf("setIfEmpty must not overwrite an existing field, got %v", meta["title"])
	}
	setIfEmpty(meta, "date", "")
	if _, ok := meta["date"]; ok {
		t.Fatalf("setIfEmpty must not set an empty value")
	}
	setIfEmpty(meta, "date", "2024")
	if meta["date"] != "2024" {
		t.Fatalf("expected date to be set, got %v", meta["date"])
	}
}
