// Package standup holds the per-participant-per-day question/answer session
// and the recurrence setting it is created from.
package standup

import (
	"errors"
	"fmt"
	"strings"

	"StandupBrief/cronclock"
)

// CancelKeyword cancels the current day when a participant sends it as an
// answer. Exact match after trimming, case-sensitive.
const CancelKeyword = "cancel"

// SentinelAnswer fills every slot of a cancelled session.
const SentinelAnswer = "none"

// DateLayout is the calendar-date key format for sessions and fire dates.
const DateLayout = "2006-01-02"

type Status string

const (
	StatusPending   Status = "pending"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

var (
	ErrNoParticipants = errors.New("setting has no participants")
	ErrEmptyQuestions = errors.New("setting has no questions")
)

// Setting is the per-channel recurrence definition: who is asked, what, and
// on which cron cadence. Owned by the settings layer; the scheduler only
// advances the two next-fire fields.
type Setting struct {
	TeamID            string
	ChannelID         string
	UserIDs           []string
	Questions         []string
	CronExpression    string
	NextFireDate      string
	NextFireTimestamp int64
}

// Validate rejects settings that could never run. Called at write time so a
// broken configuration never reaches the scheduler.
func (s Setting) Validate() error {
	if len(s.UserIDs) == 0 {
		return ErrNoParticipants
	}
	seen := make(map[string]struct{}, len(s.UserIDs))
	for _, id := range s.UserIDs {
		if id == "" {
			return fmt.Errorf("%w: blank user ID", ErrNoParticipants)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("duplicate participant %s", id)
		}
		seen[id] = struct{}{}
	}
	if len(s.Questions) == 0 {
		return ErrEmptyQuestions
	}
	return cronclock.Validate(s.CronExpression)
}

// Question is one prompt of a session. PostedAt is the transport timestamp
// of the message that asked it, set the first time it is delivered.
type Question struct {
	Text     string `json:"text"`
	PostedAt string `json:"posted_at,omitempty"`
}

// Answer is one reply. PostedAt is the transport timestamp of the inbound
// message and the join key for later edits to that message.
type Answer struct {
	Text     string `json:"text"`
	PostedAt string `json:"posted_at,omitempty"`
}

// Session is one participant's one-day question/answer exchange. Questions
// are copied from the Setting at creation, so later setting edits never
// alter a running session.
type Session struct {
	TeamID            string
	ChannelID         string
	UserID            string
	Date              string
	Questions         []Question
	Answers           []Answer
	Status            Status
	FinishedMessageID string
	Version           int64
}

// NewSession builds a fresh pending session for userID on date.
func NewSession(set Setting, userID, date string) *Session {
	questions := make([]Question, len(set.Questions))
	for i, text := range set.Questions {
		questions[i] = Question{Text: text}
	}

	return &Session{
		TeamID:    set.TeamID,
		ChannelID: set.ChannelID,
		UserID:    userID,
		Date:      date,
		Questions: questions,
		Answers:   []Answer{},
		Status:    StatusPending,
	}
}

// RecordAnswer appends an answer for the next open slot, or cancels the
// whole day when the cancel keyword arrives. Reports whether the session
// changed; finished and cancelled sessions never reopen.
func (s *Session) RecordAnswer(text, postedAt string) bool {
	if s.Status != StatusPending {
		return false
	}

	if strings.TrimSpace(text) == CancelKeyword {
		answers := make([]Answer, len(s.Questions))
		for i := range answers {
			answers[i] = Answer{Text: SentinelAnswer}
		}
		s.Answers = answers
		s.Status = StatusCancelled
		return true
	}

	if len(s.Answers) >= len(s.Questions) {
		return false
	}

	// A redelivered message carries the timestamp of an answer already
	// recorded; appending it again would duplicate the slot.
	for i := range s.Answers {
		if postedAt != "" && s.Answers[i].PostedAt == postedAt {
			return false
		}
	}

	s.Answers = append(s.Answers, Answer{Text: text, PostedAt: postedAt})
	if len(s.Answers) == len(s.Questions) {
		s.Status = StatusFinished
	}
	return true
}

// EditAnswer replaces the text of the answer whose PostedAt equals postedAt.
// First match wins. Cancelled sessions ignore edits, and an unknown
// timestamp is a no-op.
func (s *Session) EditAnswer(text, postedAt string) bool {
	if s.Status == StatusCancelled || postedAt == "" {
		return false
	}

	for i := range s.Answers {
		if s.Answers[i].PostedAt == postedAt {
			if s.Answers[i].Text == text {
				return false
			}
			s.Answers[i].Text = text
			return true
		}
	}
	return false
}

// NextQuestionToAsk returns the index of the question waiting on an answer,
// if it has not been delivered yet. Prevents double delivery: a question
// with PostedAt set is never returned again.
func (s *Session) NextQuestionToAsk() (int, bool) {
	if s.Status != StatusPending {
		return 0, false
	}

	i := len(s.Answers)
	if i >= len(s.Questions) {
		return 0, false
	}
	if s.Questions[i].PostedAt != "" {
		return 0, false
	}
	return i, true
}

// Renderable returns the question/answer pairs a summary should show,
// omitting sentinel-valued slots.
func (s *Session) Renderable() []QA {
	var pairs []QA
	for i := range s.Answers {
		if i >= len(s.Questions) {
			break
		}
		if s.Answers[i].Text == SentinelAnswer {
			continue
		}
		pairs = append(pairs, QA{Question: s.Questions[i].Text, Answer: s.Answers[i].Text})
	}
	return pairs
}

// QA is one rendered summary row.
type QA struct {
	Question string
	Answer   string
}
