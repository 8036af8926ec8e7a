package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/jpillora/backoff"

	"StandupBrief/slack"
	"StandupBrief/standup"
)

const processAttempts = 3

// HandleSlackEvents receives the events webhook: the URL verification
// challenge, new direct messages (answers and settings commands) and edits
// to earlier answers (message_changed subtype).
func (h *Handler) HandleSlackEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "unable to read request body", http.StatusBadRequest)
		return
	}

	var verification urlVerification
	if err := json.Unmarshal(body, &verification); err == nil && verification.Type == "url_verification" {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(verification.Challenge))
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "invalid event format", http.StatusBadRequest)
		return
	}

	if env.Type != "event_callback" || env.Event.Type != "message" || env.Event.ChannelType != "im" {
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()

	if h.dedup.Seen(ctx, env.EventID) {
		h.log.Debug("duplicate event skipped", "event_id", env.EventID, "team", env.TeamID)
		w.WriteHeader(http.StatusOK)
		return
	}

	ws, err := h.workspaces.Get(env.TeamID)
	if err != nil {
		h.log.Warn("event for unknown workspace", "team", env.TeamID, "err", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	ev, ok := toEngineEvent(env)
	if !ok || ev.UserID == ws.BotUserID {
		w.WriteHeader(http.StatusOK)
		return
	}

	// Only the installing admin has a command vocabulary; everyone else's
	// text is a stand-up answer and must reach the engine untouched.
	if !ev.IsEdit && ev.UserID == ws.AdminUserID && isSettingsCommand(ev.Text) {
		h.handleSettingsCommand(ctx, ws, env)
		h.dedup.Mark(ctx, env.EventID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.processEvent(ctx, ev); err != nil {
		// Not marked as seen: Slack redelivers and the idempotent
		// transitions absorb the replay.
		h.log.Error("event processing failed",
			"team", ev.TeamID, "user", ev.UserID, "ts", ev.Timestamp, "err", err)
		http.Error(w, "event processing failed", http.StatusInternalServerError)
		return
	}

	h.dedup.Mark(ctx, env.EventID)
	w.WriteHeader(http.StatusOK)
}

// toEngineEvent flattens the two supported message shapes. A message_changed
// envelope targets the answer whose timestamp matches the edited message.
func toEngineEvent(env envelope) (standup.Event, bool) {
	switch env.Event.Subtype {
	case "message_changed":
		return standup.Event{
			TeamID:              env.TeamID,
			UserID:              env.Event.Message.User,
			Text:                env.Event.Message.Text,
			Timestamp:           env.Event.Message.Timestamp,
			IsEdit:              true,
			EditTargetTimestamp: env.Event.Message.Timestamp,
		}, true
	case "": // plain new message
		return standup.Event{
			TeamID:    env.TeamID,
			UserID:    env.Event.User,
			Text:      env.Event.Text,
			Timestamp: env.Event.Timestamp,
		}, true
	default:
		// see https://api.slack.com/events/message#message_subtypes
		return standup.Event{}, false
	}
}

// processEvent applies the inbound message to its session and reconciles
// the outward messages, retrying transient failures so participants only
// ever see delayed delivery, never an error.
func (h *Handler) processEvent(ctx context.Context, ev standup.Event) error {
	b := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Jitter: true}

	var sess *standup.Session
	var changed bool
	var err error
	for attempt := 0; attempt < processAttempts; attempt++ {
		sess, changed, err = h.engine.OnIncomingMessage(ctx, ev, time.Now())
		if err == nil {
			break
		}
		if !isTransient(err) {
			return err
		}
		time.Sleep(b.Duration())
	}
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}

	// Reconcile runs even when the event was a no-op replay, so a
	// delivery that failed on the first pass gets another chance. The
	// exception is an unchanged cancelled session, which would repeat
	// the cancel notice.
	if !changed && sess.Status == standup.StatusCancelled {
		return nil
	}

	b.Reset()
	for attempt := 0; attempt < processAttempts; attempt++ {
		err = h.publisher.Reconcile(ctx, sess)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		time.Sleep(b.Duration())
	}
	return err
}

// isTransient reports whether err is worth retrying in place: a failed
// chat API call or a lost version race. Anything else, like a record that
// no longer decodes, will not get better by waiting.
func isTransient(err error) bool {
	var apiErr *slack.APIError
	return errors.As(err, &apiErr) || errors.Is(err, standup.ErrStaleWrite)
}
