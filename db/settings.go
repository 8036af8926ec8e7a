package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"StandupBrief/standup"
)

const listSeparator = "\n"

// SettingStore persists recurrence settings keyed by (team, channel).
type SettingStore struct {
	db *gorm.DB
}

func NewSettingStore(g *gorm.DB) *SettingStore {
	return &SettingStore{db: g}
}

// Put creates or replaces the setting for its (team, channel) key.
func (s *SettingStore) Put(set standup.Setting) error {
	rec := settingToRecord(set)
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "team_id"}, {Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_ids", "questions", "cron_expression",
			"next_fire_date", "next_fire_timestamp", "updated_at",
		}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("put setting %s/%s: %w", set.TeamID, set.ChannelID, err)
	}
	return nil
}

// Get fetches the setting for a channel, or nil when none exists.
func (s *SettingStore) Get(teamID, channelID string) (*standup.Setting, error) {
	var rec SettingRecord
	err := s.db.Where("team_id = ? AND channel_id = ?", teamID, channelID).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %s/%s: %w", teamID, channelID, err)
	}
	set := recordToSetting(rec)
	return &set, nil
}

// ByTeam lists every setting of a team, used to enforce the one-config-per
// -participant rule at write time.
func (s *SettingStore) ByTeam(teamID string) ([]standup.Setting, error) {
	var recs []SettingRecord
	if err := s.db.Where("team_id = ?", teamID).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list settings for team %s: %w", teamID, err)
	}

	sets := make([]standup.Setting, len(recs))
	for i, rec := range recs {
		sets[i] = recordToSetting(rec)
	}
	return sets, nil
}

// DueBefore returns settings whose next fire date equals date and whose
// next fire timestamp is at or before ts.
func (s *SettingStore) DueBefore(date string, ts int64) ([]standup.Setting, error) {
	var recs []SettingRecord
	err := s.db.
		Where("next_fire_date = ? AND next_fire_timestamp <= ?", date, ts).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("query due settings for %s: %w", date, err)
	}

	sets := make([]standup.Setting, len(recs))
	for i, rec := range recs {
		sets[i] = recordToSetting(rec)
	}
	return sets, nil
}

// Advance persists only the two schedule fields after a fire.
func (s *SettingStore) Advance(set *standup.Setting, nextDate string, nextTS int64) error {
	err := s.db.Model(&SettingRecord{}).
		Where("team_id = ? AND channel_id = ?", set.TeamID, set.ChannelID).
		Updates(map[string]any{
			"next_fire_date":      nextDate,
			"next_fire_timestamp": nextTS,
		}).Error
	if err != nil {
		return fmt.Errorf("advance setting %s/%s: %w", set.TeamID, set.ChannelID, err)
	}

	set.NextFireDate = nextDate
	set.NextFireTimestamp = nextTS
	return nil
}

func settingToRecord(set standup.Setting) SettingRecord {
	return SettingRecord{
		TeamID:            set.TeamID,
		ChannelID:         set.ChannelID,
		UserIDs:           strings.Join(set.UserIDs, listSeparator),
		Questions:         strings.Join(set.Questions, listSeparator),
		CronExpression:    set.CronExpression,
		NextFireDate:      set.NextFireDate,
		NextFireTimestamp: set.NextFireTimestamp,
	}
}

func recordToSetting(rec SettingRecord) standup.Setting {
	return standup.Setting{
		TeamID:            rec.TeamID,
		ChannelID:         rec.ChannelID,
		UserIDs:           splitList(rec.UserIDs),
		Questions:         splitList(rec.Questions),
		CronExpression:    rec.CronExpression,
		NextFireDate:      rec.NextFireDate,
		NextFireTimestamp: rec.NextFireTimestamp,
	}
}

func splitList(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, listSeparator)
}
