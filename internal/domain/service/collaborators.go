package service

import (
	"context"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

// ZoteroClient is the external-collaborator contract §6.2 — the Zotero
// local HTTP server, kept out of this module's scope. Every failure is
// returned as a plain error; the orchestrator classifies it with
// ClassifyError rather than the client constructing categories itself.
type ZoteroClient interface {
	// ProcessIdentifier creates or reuses an item from a bibliographic
	// identifier via the /citationlinker/processidentifier endpoint.
	ProcessIdentifier(ctx context.Context, id valueobject.Identifier) (ZoteroProcessResult, error)

	// ProcessURL uses Zotero's URL translator (/citationlinker/processurl)
	// when no identifier is known.
	ProcessURL(ctx context.Context, url string) (ZoteroProcessResult, error)

	// CreateItem uses the Connector API (POST /connector/saveItems) for the
	// manual-creation path. The Connector API does not return the item key
	// directly; implementations must look it up afterward (§6.2).
	CreateItem(ctx context.Context, payload ItemPayload) (ZoteroProcessResult, error)

	// UpdateItem uses the Local API (PUT /api/users/0/items/{key}) with
	// If-Unmodified-Since-Version optimistic locking.
	UpdateItem(ctx context.Context, itemKey string, partial map[string]interface{}) error

	GetItem(ctx context.Context, itemKey string) (ZoteroItem, error)
	DeleteItem(ctx context.Context, itemKey string) error
	ValidateCitation(ctx context.Context, itemKey string) (CitationValidation, error)
}

// ZoteroProcessResult is the outcome of ProcessIdentifier/ProcessURL/CreateItem.
type ZoteroProcessResult struct {
	Success bool
	ItemKey string
	Items   []ZoteroItem
}

// ZoteroItem is the subset of a Zotero library item the core inspects for
// citation-completeness validation.
type ZoteroItem struct {
	Key         string
	ItemType    string
	Title       string
	Authors     []string
	Date        string
	Publication string
	Publisher   string
	URL         string
	Version     int
}

// ItemPayload is the caller-supplied data for manualCreate.
type ItemPayload struct {
	ItemType    string
	Title       string
	Authors     []string
	Date        string
	Publication string
	Publisher   string
	URL         string
	Extra       map[string]interface{}
}

// CitationValidation is zotero.validateCitation's result (§4.4).
type CitationValidation struct {
	Valid         bool
	MissingFields []string
}

// ContentFetcher is the external-collaborator contract §6.3. Caching is the
// fetcher's own concern — the core never manages it.
type ContentFetcher interface {
	FetchAndExtract(ctx context.Context, url string) (FetchResult, error)
}

// FetchResult is stage_content's raw material.
type FetchResult struct {
	ContentHash        string
	ContentRef         string // opaque reference the LLM extractor can dereference
	Identifiers        []valueobject.Identifier
	Metadata           map[string]interface{}
	IsPdf              bool
	FetchDurationMs    int64
}

// LLMExtractor is the external-collaborator contract §6.4.
type LLMExtractor interface {
	ExtractMetadata(ctx context.Context, contentRef string) (LLMExtraction, error)
}

// LLMExtraction is stage_llm's result.
type LLMExtraction struct {
	Metadata   map[string]interface{}
	Confidence float64
	TokensUsed int
	Provider   string
	Model      string
}
