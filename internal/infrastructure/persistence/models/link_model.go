package models

import "time"

// LinkModel is the zotero_item_links table row (§6.1, §4.6).
type LinkModel struct {
	ID                   string `gorm:"primaryKey;size:64"`
	URLID                string `gorm:"size:64;not null;index"`
	ItemKey              string `gorm:"size:64;not null;index"`
	CreatedByTheodore    bool   `gorm:"not null;default:false"`
	UserModifiedInZotero bool   `gorm:"not null;default:false"`
	LinkedAt             time.Time
}

// TableName names the zotero_item_links table.
func (LinkModel) TableName() string {
	return "zotero_item_links"
}
