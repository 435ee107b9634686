package service

// Metadata field weights for the quality score (§4.4-quality). A score >= 80
// marks a metadata-path result as eligible for auto-promotion. The core
// does not promote it to stored itself: every metadata-path result goes to
// awaiting_metadata with its score and auto_promote flag, and stored is
// reached only through ApproveMetadata.
const (
	weightTitle        = 20
	weightAuthors      = 20
	weightDate         = 15
	weightIdentifier   = 10
	weightPublication  = 10
	weightType         = 10
	weightAbstract     = 10
	weightCompleteness = 5

	qualityAutoPromoteThreshold = 80
)

// ScoreMetadata assigns the 100-point weighted score to an extracted
// metadata map, keyed by the same field names zotero items use.
func ScoreMetadata(meta map[string]interface{}) int {
	score := 0
	if nonEmptyString(meta["title"]) {
		score += weightTitle
	}
	if nonEmptyList(meta["authors"]) {
		score += weightAuthors
	}
	if nonEmptyString(meta["date"]) {
		score += weightDate
	}
	if nonEmptyString(meta["identifier"]) {
		score += weightIdentifier
	}
	if nonEmptyString(meta["publication"]) {
		score += weightPublication
	}
	if nonEmptyString(meta["type"]) {
		score += weightType
	}
	if nonEmptyString(meta["abstract"]) {
		score += weightAbstract
	}
	if len(meta) >= 5 {
		score += weightCompleteness
	}
	return score
}

// AutoPromotes reports whether a metadata score qualifies for automatic
// promotion toward stored without requiring the manual-review prompt.
// The orchestrator stamps this onto the awaiting_metadata attempt's
// metadata (both the content-extraction and LLM paths) so the caller
// deciding whether to auto-approve doesn't have to re-derive the threshold.
func AutoPromotes(score int) bool {
	return score >= qualityAutoPromoteThreshold
}

func nonEmptyString(v interface{}) bool {
	s, ok := v.(string)
	return ok && s != ""
}

func nonEmptyList(v interface{}) bool {
	switch l := v.(type) {
	case []string:
		return len(l) > 0
	case []interface{}:
		return len(l) > 0
	default:
		return false
	}
}

// requiredFieldsByItemType is the item-type-dependent "required" field list
// §4.4's citation validation consults. Unknown item types default to the
// webpage requirement set (the most permissive), since stage_zotero cannot
// always know the type in advance.
var requiredFieldsByItemType = map[string][]string{
	"journalArticle": {"title", "authors", "date", "publication"},
	"book":           {"title", "authors", "date", "publisher"},
	"webpage":        {"title", "date", "url"},
}

// MissingRequiredFields returns the subset of an item type's required
// fields that item does not satisfy — the check behind the Zotero client's
// ValidateCitation.
func MissingRequiredFields(itemType string, item ZoteroItem) []string {
	required, ok := requiredFieldsByItemType[itemType]
	if !ok {
		required = requiredFieldsByItemType["webpage"]
	}
	var missing []string
	for _, f := range required {
		switch f {
		case "title":
			if item.Title == "" {
				missing = append(missing, f)
			}
		case "authors":
			if len(item.Authors) == 0 {
				missing = append(missing, f)
			}
		case "date":
			if item.Date == "" {
				missing = append(missing, f)
			}
		case "publication":
			if item.Publication == "" {
				missing = append(missing, f)
			}
		case "publisher":
			if item.Publisher == "" {
				missing = append(missing, f)
			}
		case "url":
			if item.URL == "" {
				missing = append(missing, f)
			}
		}
	}
	return missing
}
