// Package summary keeps the channel summary message consistent with
// session state.
package summary

import (
	"context"
	"errors"
	"fmt"

	log15 "github.com/inconshreveable/log15/v3"

	"StandupBrief/slack"
	"StandupBrief/standup"
)

const cancelledNotice = "Stand-up canceled."

// Publisher reconciles the outward-facing messages (DM questions and the
// channel summary) after every session mutation. All of its operations are
// safe to re-run: an already-delivered question is skipped via its
// PostedAt, and posting/updating the summary is keyed by the stored message
// handle.
type Publisher struct {
	store standup.SessionStore
	gw    slack.Gateway
	log   log15.Logger
}

func NewPublisher(store standup.SessionStore, gw slack.Gateway, logger log15.Logger) *Publisher {
	return &Publisher{store: store, gw: gw, log: logger}
}

// Reconcile drives the message lifecycle for one session:
// deliver the next question while the session is open, post the summary
// once it finishes, update it in place after edits, and delete it when a
// late edit leaves nothing to show.
func (p *Publisher) Reconcile(ctx context.Context, s *standup.Session) error {
	if idx, ok := s.NextQuestionToAsk(); ok {
		return p.deliverQuestion(ctx, s, idx)
	}

	if s.Status == standup.StatusPending {
		// Question already delivered, waiting on the answer.
		return nil
	}

	renderable := s.Renderable()

	if s.FinishedMessageID == "" {
		if len(renderable) == 0 {
			// Cancelled day: notify the participant only, nothing
			// reaches the channel.
			if _, err := p.gw.SendDirect(ctx, s.TeamID, s.UserID, cancelledNotice); err != nil {
				return fmt.Errorf("send cancel notice: %w", err)
			}
			return nil
		}
		return p.postSummary(ctx, s, renderable)
	}

	if len(renderable) == 0 {
		return p.retractSummary(ctx, s)
	}
	return p.updateSummary(ctx, s, renderable)
}

func (p *Publisher) deliverQuestion(ctx context.Context, s *standup.Session, idx int) error {
	ts, err := p.gw.SendDirect(ctx, s.TeamID, s.UserID, s.Questions[idx].Text)
	if err != nil {
		return fmt.Errorf("deliver question %d: %w", idx, err)
	}

	s.Questions[idx].PostedAt = ts
	if err := p.save(s, func(fresh *standup.Session) {
		if idx < len(fresh.Questions) && fresh.Questions[idx].PostedAt == "" {
			fresh.Questions[idx].PostedAt = ts
		}
	}); err != nil {
		return fmt.Errorf("record question delivery: %w", err)
	}

	p.log.Info("question delivered",
		"team", s.TeamID, "user", s.UserID, "date", s.Date, "index", idx)
	return nil
}

func (p *Publisher) postSummary(ctx context.Context, s *standup.Session, pairs []standup.QA) error {
	ident, err := p.gw.FetchDisplayIdentity(ctx, s.TeamID, s.UserID)
	if err != nil {
		return fmt.Errorf("fetch display identity: %w", err)
	}

	ts, err := p.gw.PostChannel(ctx, s.TeamID, s.ChannelID, render(ident, pairs))
	if err != nil {
		return fmt.Errorf("post summary: %w", err)
	}

	s.FinishedMessageID = ts
	if err := p.save(s, func(fresh *standup.Session) {
		if fresh.FinishedMessageID == "" {
			fresh.FinishedMessageID = ts
		}
	}); err != nil {
		return fmt.Errorf("record summary handle: %w", err)
	}

	p.log.Info("summary posted",
		"team", s.TeamID, "user", s.UserID, "date", s.Date, "channel", s.ChannelID)
	return nil
}

func (p *Publisher) updateSummary(ctx context.Context, s *standup.Session, pairs []standup.QA) error {
	ident, err := p.gw.FetchDisplayIdentity(ctx, s.TeamID, s.UserID)
	if err != nil {
		return fmt.Errorf("fetch display identity: %w", err)
	}

	if err := p.gw.UpdateChannel(ctx, s.TeamID, s.ChannelID, s.FinishedMessageID, render(ident, pairs)); err != nil {
		return fmt.Errorf("update summary: %w", err)
	}

	// The handle can exist only in memory when the write after the
	// original post failed and the caller retried. Without writing it
	// through, a later reconciliation from a fresh fetch would post a
	// second summary.
	stored, err := p.store.Get(s.TeamID, s.UserID, s.Date)
	if err != nil {
		return fmt.Errorf("check summary handle: %w", err)
	}
	if stored.FinishedMessageID == s.FinishedMessageID {
		return nil
	}

	handle := s.FinishedMessageID
	if err := p.save(s, func(fresh *standup.Session) {
		if fresh.FinishedMessageID == "" {
			fresh.FinishedMessageID = handle
		}
	}); err != nil {
		return fmt.Errorf("record summary handle: %w", err)
	}

	p.log.Info("summary handle recovered",
		"team", s.TeamID, "user", s.UserID, "date", s.Date)
	return nil
}

// retractSummary handles the late-edit case where every answer turned into
// the sentinel: the stale channel message is deleted and the handle
// cleared, so a later un-cancel posts fresh instead of resurrecting it.
func (p *Publisher) retractSummary(ctx context.Context, s *standup.Session) error {
	if err := p.gw.DeleteChannel(ctx, s.TeamID, s.ChannelID, s.FinishedMessageID); err != nil {
		return fmt.Errorf("delete summary: %w", err)
	}

	s.FinishedMessageID = ""
	if err := p.save(s, func(fresh *standup.Session) {
		fresh.FinishedMessageID = ""
	}); err != nil {
		return fmt.Errorf("clear summary handle: %w", err)
	}

	p.log.Info("summary retracted", "team", s.TeamID, "user", s.UserID, "date", s.Date)
	return nil
}

const saveAttempts = 3

// save upserts the session, and on a stale write re-fetches and re-applies
// the derived-field change through merge.
func (p *Publisher) save(s *standup.Session, merge func(fresh *standup.Session)) error {
	cur := s
	for attempt := 0; ; attempt++ {
		err := p.store.Upsert(cur, cur.Version)
		if err == nil {
			if cur != s {
				*s = *cur
			}
			return nil
		}
		if !errors.Is(err, standup.ErrStaleWrite) || attempt == saveAttempts-1 {
			return err
		}

		fresh, gerr := p.store.Get(s.TeamID, s.UserID, s.Date)
		if gerr != nil {
			return gerr
		}
		merge(fresh)
		cur = fresh
	}
}

func render(ident slack.DisplayIdentity, pairs []standup.QA) slack.Attachment {
	fields := make([]slack.AttachmentField, len(pairs))
	for i, qa := range pairs {
		fields[i] = slack.AttachmentField{Title: qa.Question, Value: qa.Answer}
	}
	return slack.Attachment{AuthorName: ident.Name, AuthorIcon: ident.IconURL, Fields: fields}
}
