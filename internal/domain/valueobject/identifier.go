package valueobject

// IdentifierKind is one of the bibliographic external identifiers the
// content and Zotero stages recognise.
type IdentifierKind string

const (
	IdentifierDOI   IdentifierKind = "doi"
	IdentifierPMID  IdentifierKind = "pmid"
	IdentifierArXiv IdentifierKind = "arxiv"
	IdentifierISBN  IdentifierKind = "isbn"
)

// DefaultIdentifierPriority is the order in which identifiers found by
// stage_content are ranked — DOI first, ISBN last.
var DefaultIdentifierPriority = []IdentifierKind{
	IdentifierDOI, IdentifierPMID, IdentifierArXiv, IdentifierISBN,
}

// Identifier pairs a recognised kind with its raw value, e.g. {DOI, "10.1000/xyz"}.
type Identifier struct {
	Kind  IdentifierKind `json:"kind"`
	Value string         `json:"value"`
}

// BestOf picks the highest-priority identifier present in found, according
// to priority. Returns the zero Identifier and false if found is empty or
// none of its members appear in priority.
func BestOf(found []Identifier, priority []IdentifierKind) (Identifier, bool) {
	if len(priority) == 0 {
		priority = DefaultIdentifierPriority
	}
	for _, kind := range priority {
		for _, id := range found {
			if id.Kind == kind {
				return id, true
			}
		}
	}
	return Identifier{}, false
}
