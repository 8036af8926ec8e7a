package db

import "time"

// SettingRecord is one channel's recurrence definition. UserIDs and
// Questions are newline-joined to keep their order stable across
// round-trips.
type SettingRecord struct {
	ID                uint   `gorm:"primaryKey"`
	TeamID            string `gorm:"uniqueIndex:idx_settings_team_channel;not null"`
	ChannelID         string `gorm:"uniqueIndex:idx_settings_team_channel;not null"`
	UserIDs           string `gorm:"not null"`
	Questions         string `gorm:"not null"`
	CronExpression    string `gorm:"not null"`
	NextFireDate      string `gorm:"index;not null"`
	NextFireTimestamp int64  `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SessionRecord is one participant's one-day session. Questions and Answers
// are JSON-encoded lists; Version guards conditional updates.
type SessionRecord struct {
	ID                uint   `gorm:"primaryKey"`
	TeamID            string `gorm:"uniqueIndex:idx_sessions_key;not null"`
	UserID            string `gorm:"uniqueIndex:idx_sessions_key;not null"`
	Date              string `gorm:"uniqueIndex:idx_sessions_key;not null"`
	ChannelID         string `gorm:"not null"`
	Questions         string `gorm:"not null"`
	Answers           string `gorm:"not null"`
	Status            string `gorm:"not null"`
	FinishedMessageID string
	Version           int64 `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Workspace holds one installed team's credentials. AccessToken is stored
// AES-GCM encrypted.
type Workspace struct {
	ID          uint   `gorm:"primaryKey"`
	TeamID      string `gorm:"uniqueIndex;not null"`
	AccessToken string `gorm:"not null"`
	BotUserID   string
	AdminUserID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
