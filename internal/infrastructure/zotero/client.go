// Package zotero implements the §6.2 Zotero Local/Connector API client.
package zotero

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/service"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

// Config configures the client's target Zotero instance.
type Config struct {
	BaseURL              string
	APIKey               string
	Timeout              time.Duration
	MaxConcurrentPreview int // Zotero's own 3-in-flight limitation (§5)
}

// Client is a resty-based implementation of service.ZoteroClient against
// Zotero's Local API (citationlinker endpoints) and Connector API.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
	previewSem chan struct{}
}

// New wires a resty client bounded to cfg.MaxConcurrentPreview in-flight
// preview requests, matching the Zotero-side concurrency ceiling.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	maxPreview := cfg.MaxConcurrentPreview
	if maxPreview <= 0 {
		maxPreview = 3
	}

	hc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		hc.SetHeader("Zotero-API-Key", cfg.APIKey)
	}

	return &Client{
		http:       hc,
		logger:     logger.With(zap.String("component", "zotero_client")),
		previewSem: make(chan struct{}, maxPreview),
	}
}

var _ service.ZoteroClient = (*Client)(nil)

type processResponse struct {
	Success bool                  `json:"success"`
	ItemKey string                `json:"itemKey"`
	Items   []zoteroItemResponse  `json:"items"`
}

type zoteroItemResponse struct {
	Key         string   `json:"key"`
	ItemType    string   `json:"itemType"`
	Title       string   `json:"title"`
	Creators    []string `json:"creators"`
	Date        string   `json:"date"`
	Publication string   `json:"publicationTitle"`
	Publisher   string   `json:"publisher"`
	URL         string   `json:"url"`
	Version     int      `json:"version"`
}

func (r zoteroItemResponse) toDomain() service.ZoteroItem {
	return service.ZoteroItem{
		Key:         r.Key,
		ItemType:    r.ItemType,
		Title:       r.Title,
		Authors:     r.Creators,
		Date:        r.Date,
		Publication: r.Publication,
		Publisher:   r.Publisher,
		URL:         r.URL,
		Version:     r.Version,
	}
}

// ProcessIdentifier calls POST /citationlinker/processidentifier.
func (c *Client) ProcessIdentifier(ctx context.Context, id valueobject.Identifier) (service.ZoteroProcessResult, error) {
	c.acquirePreview()
	defer c.releasePreview()

	var out processResponse
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]string{"kind": string(id.Kind), "value": id.Value}).
		SetResult(&out).
		Post("/citationlinker/processidentifier")
	if err := checkResty(resp, err); err != nil {
		return service.ZoteroProcessResult{}, err
	}
	return toProcessResult(out), nil
}

// ProcessURL calls POST /citationlinker/processurl.
func (c *Client) ProcessURL(ctx context.Context, url string) (service.ZoteroProcessResult, error) {
	c.acquirePreview()
	defer c.releasePreview()

	var out processResponse
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]string{"url": url}).
		SetResult(&out).
		Post("/citationlinker/processurl")
	if err := checkResty(resp, err); err != nil {
		return service.ZoteroProcessResult{}, err
	}
	return toProcessResult(out), nil
}

// CreateItem calls POST /connector/saveItems, then looks up the created
// item's key since the Connector API does not return it directly (§6.2).
func (c *Client) CreateItem(ctx context.Context, payload service.ItemPayload) (service.ZoteroProcessResult, error) {
	body := map[string]interface{}{
		"items": []map[string]interface{}{{
			"itemType":         payload.ItemType,
			"title":            payload.Title,
			"creators":         payload.Authors,
			"date":             payload.Date,
			"publicationTitle": payload.Publication,
			"publisher":        payload.Publisher,
			"url":              payload.URL,
			"extra":            payload.Extra,
		}},
	}

	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post("/connector/saveItems")
	if err := checkResty(resp, err); err != nil {
		return service.ZoteroProcessResult{}, err
	}

	var lookup struct {
		Key string `json:"key"`
	}
	resp, err = c.http.R().SetContext(ctx).SetResult(&lookup).
		Get(fmt.Sprintf("/connector/lookupLastSaved?url=%s", payload.URL))
	if err := checkResty(resp, err); err != nil {
		return service.ZoteroProcessResult{}, err
	}
	return service.ZoteroProcessResult{Success: lookup.Key != "", ItemKey: lookup.Key}, nil
}

// UpdateItem calls PUT /api/users/0/items/{key} with optimistic locking via
// the If-Unmodified-Since-Version header (§6.2).
func (c *Client) UpdateItem(ctx context.Context, itemKey string, partial map[string]interface{}) error {
	item, err := c.GetItem(ctx, itemKey)
	if err != nil {
		return err
	}
	resp, err := c.http.R().SetContext(ctx).
		SetHeader("If-Unmodified-Since-Version", fmt.Sprintf("%d", item.Version)).
		SetBody(partial).
		Put(fmt.Sprintf("/api/users/0/items/%s", itemKey))
	return checkResty(resp, err)
}

// GetItem calls GET /api/users/0/items/{key}.
func (c *Client) GetItem(ctx context.Context, itemKey string) (service.ZoteroItem, error) {
	var out zoteroItemResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).
		Get(fmt.Sprintf("/api/users/0/items/%s", itemKey))
	if err := checkResty(resp, err); err != nil {
		return service.ZoteroItem{}, err
	}
	return out.toDomain(), nil
}

// DeleteItem calls DELETE /api/users/0/items/{key}.
func (c *Client) DeleteItem(ctx context.Context, itemKey string) error {
	resp, err := c.http.R().SetContext(ctx).Delete(fmt.Sprintf("/api/users/0/items/%s", itemKey))
	return checkResty(resp, err)
}

// ValidateCitation fetches the item and checks it against the required
// fields for its item type (domain/service.quality.go's rules).
func (c *Client) ValidateCitation(ctx context.Context, itemKey string) (service.CitationValidation, error) {
	item, err := c.GetItem(ctx, itemKey)
	if err != nil {
		return service.CitationValidation{}, err
	}

	missing := service.MissingRequiredFields(item.ItemType, item)
	return service.CitationValidation{Valid: len(missing) == 0, MissingFields: missing}, nil
}

func toProcessResult(r processResponse) service.ZoteroProcessResult {
	items := make([]service.ZoteroItem, len(r.Items))
	for i, it := range r.Items {
		items[i] = it.toDomain()
	}
	return service.ZoteroProcessResult{Success: r.Success, ItemKey: r.ItemKey, Items: items}
}

func checkResty(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("zotero api error: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *Client) acquirePreview() { c.previewSem <- struct{}{} }
func (c *Client) releasePreview() { <-c.previewSem }
