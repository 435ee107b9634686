package models

import "time"

// URLModel is the urls table row (§6.1). ProcessingHistory and the Version
// column are written under the exclusive row lock that
// service.StateMachine.Transition relies on via WithRowLock.
type URLModel struct {
	ID                   string `gorm:"primaryKey;size:64"`
	URL                  string `gorm:"type:text;not null;index"`
	ProcessingStatus     string `gorm:"size:32;not null;index"`
	UserIntent           string `gorm:"size:32;not null"`
	ProcessingAttempts   int    `gorm:"not null;default:0"`
	ProcessingHistory    string `gorm:"type:text"` // JSON-encoded []entity.ProcessingAttempt
	LastProcessingMethod *string `gorm:"size:64"`
	LinkedItemCount      int    `gorm:"not null;default:0"`
	Version              int    `gorm:"not null;default:0"` // bumped by each WithRowLock write; Save writes 0
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TableName names the urls table.
func (URLModel) TableName() string {
	return "urls"
}
