package standup

import (
	"context"
	"errors"
	"fmt"
	"time"

	log15 "github.com/inconshreveable/log15/v3"
	"github.com/jpillora/backoff"
)

var (
	// ErrSessionNotFound means no session exists for the key. Inbound
	// events for unknown sessions are dropped by the engine rather than
	// creating state out of band.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStaleWrite is returned by SessionStore.Upsert when the expected
	// version no longer matches. The caller re-fetches and re-applies.
	ErrStaleWrite = errors.New("stale session write")
)

// SessionStore is the persistence contract the engine requires. Upsert must
// be conditional on expectedVersion and bump s.Version on success; that
// conditional write is the serialization point for concurrent events on the
// same key.
type SessionStore interface {
	Get(teamID, userID, date string) (*Session, error)
	PutIfAbsent(s *Session) (bool, error)
	Upsert(s *Session, expectedVersion int64) error
}

// TimezoneResolver yields a participant's IANA timezone name.
type TimezoneResolver interface {
	FetchUserTimezone(ctx context.Context, teamID, userID string) (string, error)
}

// Event is one inbound direct message from a participant.
type Event struct {
	TeamID              string
	UserID              string
	Text                string
	Timestamp           string
	IsEdit              bool
	EditTargetTimestamp string
}

// Engine applies session transitions against the store. All transitions are
// pure over the Session value; only the conditional write can fail, and
// every operation is safe to retry.
type Engine struct {
	store SessionStore
	tz    TimezoneResolver
	log   log15.Logger

	maxWriteAttempts int
}

func NewEngine(store SessionStore, tz TimezoneResolver, logger log15.Logger) *Engine {
	return &Engine{
		store:            store,
		tz:               tz,
		log:              logger,
		maxWriteAttempts: 5,
	}
}

// StartSession creates the participant's session for their local calendar
// day unless one already exists. Idempotent against duplicate scheduler
// triggers. Returns the stored session and whether this call created it.
func (e *Engine) StartSession(ctx context.Context, set Setting, userID string, now time.Time) (*Session, bool, error) {
	loc := e.userLocation(ctx, set.TeamID, userID)
	date := now.In(loc).Format(DateLayout)

	s := NewSession(set, userID, date)
	created, err := e.store.PutIfAbsent(s)
	if err != nil {
		return nil, false, fmt.Errorf("start session %s/%s/%s: %w", set.TeamID, userID, date, err)
	}
	if created {
		e.log.Info("session created", "team", set.TeamID, "user", userID, "date", date)
		return s, true, nil
	}

	existing, err := e.store.Get(set.TeamID, userID, date)
	if err != nil {
		return nil, false, fmt.Errorf("start session %s/%s/%s: %w", set.TeamID, userID, date, err)
	}
	return existing, false, nil
}

// OnIncomingMessage routes one inbound message into the participant's open
// session. Unknown sessions are logged and dropped. A stale conditional
// write re-fetches and re-applies the same transformation, so no event is
// ever silently lost to a race. Returns the resulting session and whether
// it changed.
func (e *Engine) OnIncomingMessage(ctx context.Context, ev Event, now time.Time) (*Session, bool, error) {
	s, err := e.lookupSession(ctx, ev.TeamID, ev.UserID, now)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			e.log.Warn("no open session for inbound message, dropping",
				"team", ev.TeamID, "user", ev.UserID, "ts", ev.Timestamp)
			return nil, false, nil
		}
		return nil, false, err
	}

	b := &backoff.Backoff{Min: 50 * time.Millisecond, Max: time.Second, Jitter: true}
	for attempt := 0; attempt < e.maxWriteAttempts; attempt++ {
		changed := apply(s, ev)
		if !changed {
			return s, false, nil
		}

		err := e.store.Upsert(s, s.Version)
		if err == nil {
			return s, true, nil
		}
		if !errors.Is(err, ErrStaleWrite) {
			return nil, false, fmt.Errorf("persist session %s/%s/%s: %w", s.TeamID, s.UserID, s.Date, err)
		}

		e.log.Debug("stale session write, re-applying",
			"team", s.TeamID, "user", s.UserID, "date", s.Date, "attempt", attempt+1)
		time.Sleep(b.Duration())

		s, err = e.store.Get(s.TeamID, s.UserID, s.Date)
		if err != nil {
			return nil, false, fmt.Errorf("re-fetch session: %w", err)
		}
	}

	return nil, false, fmt.Errorf("persist session %s/%s: %w", ev.TeamID, ev.UserID, ErrStaleWrite)
}

func apply(s *Session, ev Event) bool {
	if ev.IsEdit {
		return s.EditAnswer(ev.Text, ev.EditTargetTimestamp)
	}
	return s.RecordAnswer(ev.Text, ev.Timestamp)
}

// lookupSession finds the participant's session for today in their local
// timezone, falling back to yesterday to cover answers that straddle a day
// boundary.
func (e *Engine) lookupSession(ctx context.Context, teamID, userID string, now time.Time) (*Session, error) {
	loc := e.userLocation(ctx, teamID, userID)
	local := now.In(loc)

	for _, day := range []time.Time{local, local.AddDate(0, 0, -1)} {
		s, err := e.store.Get(teamID, userID, day.Format(DateLayout))
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
	}
	return nil, ErrSessionNotFound
}

func (e *Engine) userLocation(ctx context.Context, teamID, userID string) *time.Location {
	tz, err := e.tz.FetchUserTimezone(ctx, teamID, userID)
	if err != nil {
		e.log.Warn("could not fetch user timezone, defaulting to UTC",
			"team", teamID, "user", userID, "err", err)
		return time.UTC
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		e.log.Warn("unknown user timezone, defaulting to UTC",
			"team", teamID, "user", userID, "tz", tz)
		return time.UTC
	}
	return loc
}
