package entity

import "time"

// ZoteroItemLink is the safety-critical relationship between a URL and a
// Zotero library item. createdByTheodore and userModifiedInZotero are the
// two provenance flags guards.canDeleteZoteroItem reasons over — nothing
// else in the system is allowed to make deletion decisions from them.
type ZoteroItemLink struct {
	ID                string    `json:"id"`
	URLID             string    `json:"urlId"`
	ItemKey           string    `json:"itemKey"`
	CreatedByTheodore bool      `json:"createdByTheodore"`
	UserModifiedInZotero bool   `json:"userModifiedInZotero"`
	LinkedAt          time.Time `json:"linkedAt"`
}
