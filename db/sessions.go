package db

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"StandupBrief/standup"
)

// SessionStore is the gorm-backed standup.SessionStore. The version-guarded
// update in Upsert is the single serialization point for concurrent events
// on the same session key.
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(g *gorm.DB) *SessionStore {
	return &SessionStore{db: g}
}

func (s *SessionStore) Get(teamID, userID, date string) (*standup.Session, error) {
	var rec SessionRecord
	err := s.db.Where("team_id = ? AND user_id = ? AND date = ?", teamID, userID, date).
		First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, standup.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s/%s/%s: %w", teamID, userID, date, err)
	}
	return recordToSession(rec)
}

// PutIfAbsent inserts the session unless one already exists for its key.
// Reports whether this call created it.
func (s *SessionStore) PutIfAbsent(sess *standup.Session) (bool, error) {
	rec, err := sessionToRecord(sess)
	if err != nil {
		return false, err
	}

	tx := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "team_id"}, {Name: "user_id"}, {Name: "date"}},
		DoNothing: true,
	}).Create(&rec)
	if tx.Error != nil {
		return false, fmt.Errorf("create session %s/%s/%s: %w", sess.TeamID, sess.UserID, sess.Date, tx.Error)
	}

	return tx.RowsAffected > 0, nil
}

// Upsert writes the session conditionally on expectedVersion and bumps
// sess.Version on success. A concurrent writer surfaces as ErrStaleWrite.
func (s *SessionStore) Upsert(sess *standup.Session, expectedVersion int64) error {
	questions, answers, err := encodeLists(sess)
	if err != nil {
		return err
	}

	tx := s.db.Model(&SessionRecord{}).
		Where("team_id = ? AND user_id = ? AND date = ? AND version = ?",
			sess.TeamID, sess.UserID, sess.Date, expectedVersion).
		Updates(map[string]any{
			"questions":           questions,
			"answers":             answers,
			"status":              string(sess.Status),
			"finished_message_id": sess.FinishedMessageID,
			"version":             expectedVersion + 1,
		})
	if tx.Error != nil {
		return fmt.Errorf("update session %s/%s/%s: %w", sess.TeamID, sess.UserID, sess.Date, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return standup.ErrStaleWrite
	}

	sess.Version = expectedVersion + 1
	return nil
}

func sessionToRecord(sess *standup.Session) (SessionRecord, error) {
	questions, answers, err := encodeLists(sess)
	if err != nil {
		return SessionRecord{}, err
	}

	return SessionRecord{
		TeamID:            sess.TeamID,
		UserID:            sess.UserID,
		Date:              sess.Date,
		ChannelID:         sess.ChannelID,
		Questions:         questions,
		Answers:           answers,
		Status:            string(sess.Status),
		FinishedMessageID: sess.FinishedMessageID,
		Version:           sess.Version,
	}, nil
}

func recordToSession(rec SessionRecord) (*standup.Session, error) {
	var questions []standup.Question
	if err := json.Unmarshal([]byte(rec.Questions), &questions); err != nil {
		return nil, fmt.Errorf("decode questions for %s/%s/%s: %w", rec.TeamID, rec.UserID, rec.Date, err)
	}
	var answers []standup.Answer
	if err := json.Unmarshal([]byte(rec.Answers), &answers); err != nil {
		return nil, fmt.Errorf("decode answers for %s/%s/%s: %w", rec.TeamID, rec.UserID, rec.Date, err)
	}

	return &standup.Session{
		TeamID:            rec.TeamID,
		ChannelID:         rec.ChannelID,
		UserID:            rec.UserID,
		Date:              rec.Date,
		Questions:         questions,
		Answers:           answers,
		Status:            standup.Status(rec.Status),
		FinishedMessageID: rec.FinishedMessageID,
		Version:           rec.Version,
	}, nil
}

func encodeLists(sess *standup.Session) (questions, answers string, err error) {
	qb, err := json.Marshal(sess.Questions)
	if err != nil {
		return "", "", fmt.Errorf("encode questions: %w", err)
	}
	ab, err := json.Marshal(sess.Answers)
	if err != nil {
		return "", "", fmt.Errorf("encode answers: %w", err)
	}
	return string(qb), string(ab), nil
}
