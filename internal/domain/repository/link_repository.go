package repository

import (
	"context"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
)

// LinkRepository owns the zoteroItemLinks table (§6.1). Indexed on itemKey
// and urlId per the persistence contract.
type LinkRepository interface {
	FindByID(ctx context.Context, id string) (*entity.ZoteroItemLink, error)

	// FindByURLID returns every link row for a URL (normally zero or one,
	// but the schema does not forbid more — §4.6 only forbids the reverse:
	// more than one URL safely claiming deletion rights over one itemKey).
	FindByURLID(ctx context.Context, urlID string) ([]*entity.ZoteroItemLink, error)

	// FindByItemKey returns every link row referencing a given Zotero item —
	// used by guards.canDeleteZoteroItem to detect sharing.
	FindByItemKey(ctx context.Context, itemKey string) ([]*entity.ZoteroItemLink, error)

	// Save creates or updates a link row (upsert by ID).
	Save(ctx context.Context, link *entity.ZoteroItemLink) error

	// Delete removes a link row. Never deletes the referenced Zotero item —
	// that is the caller's (link manager's) separate responsibility.
	Delete(ctx context.Context, id string) error
}
