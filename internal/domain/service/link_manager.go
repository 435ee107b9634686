package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/repository"
)

// LinkManager owns the ZoteroItemLink relation and enforces the multi-URL
// <-> single-item safety invariant (§4.6). Deletion decisions are delegated
// to Guards — this component only executes what a guard has approved.
type LinkManager struct {
	links  repository.LinkRepository
	urls   repository.URLRepository
	zotero ZoteroClient
	guards *Guards
	logger *zap.Logger
}

// NewLinkManager wires a link manager on its repository and collaborators.
func NewLinkManager(links repository.LinkRepository, urls repository.URLRepository, zotero ZoteroClient, logger *zap.Logger) *LinkManager {
	return &LinkManager{
		links:  links,
		urls:   urls,
		zotero: zotero,
		guards: NewGuards(),
		logger: logger.With(zap.String("component", "link_manager")),
	}
}

// Record inserts a link row and updates the URL's denormalised linkedItemCount.
func (lm *LinkManager) Record(ctx context.Context, urlID, itemKey string, createdByTheodore bool) (*entity.ZoteroItemLink, error) {
	link := &entity.ZoteroItemLink{
		ID:                idOrFallback(urlID, itemKey),
		URLID:             urlID,
		ItemKey:           itemKey,
		CreatedByTheodore: createdByTheodore,
		LinkedAt:          time.Now(),
	}
	if err := lm.links.Save(ctx, link); err != nil {
		return nil, fmt.Errorf("save link: %w", err)
	}
	if err := lm.bumpLinkedItemCount(ctx, urlID); err != nil {
		return nil, err
	}
	lm.logger.Info("link recorded", zap.String("url_id", urlID), zap.String("item_key", itemKey), zap.Bool("created_by_theodore", createdByTheodore))
	return link, nil
}

// Unlink removes the link row without touching Zotero. Updates counts.
func (lm *LinkManager) Unlink(ctx context.Context, urlID string) error {
	links, err := lm.links.FindByURLID(ctx, urlID)
	if err != nil {
		return fmt.Errorf("find links: %w", err)
	}
	for _, l := range links {
		if err := lm.links.Delete(ctx, l.ID); err != nil {
			return fmt.Errorf("delete link: %w", err)
		}
	}
	return lm.bumpLinkedItemCount(ctx, urlID)
}

// DeleteItemAndUnlink is only callable when guards.CanDeleteZoteroItem
// approves. If Zotero reports the item already gone (not_found), proceeds
// with unlink anyway; any other failure leaves both the link and the item
// intact (§4.6).
func (lm *LinkManager) DeleteItemAndUnlink(ctx context.Context, url *entity.URL) error {
	links, err := lm.links.FindByURLID(ctx, url.ID)
	if err != nil {
		return fmt.Errorf("find links: %w", err)
	}
	if len(links) == 0 {
		return entity.ErrLinkNotFound
	}
	link := links[0]

	allForItem, err := lm.links.FindByItemKey(ctx, link.ItemKey)
	if err != nil {
		return fmt.Errorf("find links by item: %w", err)
	}

	result := lm.guards.CanDeleteZoteroItem(url, link, allForItem)
	if !result.Allowed {
		return fmt.Errorf("%w: %s", entity.ErrLinkShared, result.Reason)
	}

	if err := lm.zotero.DeleteItem(ctx, link.ItemKey); err != nil {
		if !errors.Is(err, entity.ErrZoteroItemNotFound) {
			return fmt.Errorf("delete zotero item: %w", err)
		}
		lm.logger.Info("item already absent from zotero, proceeding with unlink", zap.String("item_key", link.ItemKey))
	}

	return lm.Unlink(ctx, url.ID)
}

// MarkUserModified sets the userModifiedInZotero flag on every link
// referencing itemKey. The actual detection is out-of-band (an external
// change detector not specified by this module) — this is just the write
// path it calls.
func (lm *LinkManager) MarkUserModified(ctx context.Context, itemKey string) error {
	links, err := lm.links.FindByItemKey(ctx, itemKey)
	if err != nil {
		return err
	}
	for _, l := range links {
		l.UserModifiedInZotero = true
		if err := lm.links.Save(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (lm *LinkManager) bumpLinkedItemCount(ctx context.Context, urlID string) error {
	links, err := lm.links.FindByURLID(ctx, urlID)
	if err != nil {
		return err
	}
	url, err := lm.urls.FindByID(ctx, urlID)
	if err != nil {
		return err
	}
	url.LinkedItemCount = len(links)
	return lm.urls.Save(ctx, url)
}

func idOrFallback(urlID, itemKey string) string {
	return urlID + ":" + itemKey
}
