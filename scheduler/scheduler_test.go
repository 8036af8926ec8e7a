package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	log15 "github.com/inconshreveable/log15/v3"

	"StandupBrief/standup"
)

func discardLogger() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.DiscardHandler())
	return l
}

type fakeSettings struct {
	stored []standup.Setting
}

func (f *fakeSettings) DueBefore(date string, ts int64) ([]standup.Setting, error) {
	var due []standup.Setting
	for _, set := range f.stored {
		if set.NextFireDate == date && set.NextFireTimestamp <= ts {
			due = append(due, set)
		}
	}
	return due, nil
}

func (f *fakeSettings) Advance(set *standup.Setting, nextDate string, nextTS int64) error {
	for i := range f.stored {
		if f.stored[i].TeamID == set.TeamID && f.stored[i].ChannelID == set.ChannelID {
			f.stored[i].NextFireDate = nextDate
			f.stored[i].NextFireTimestamp = nextTS
		}
	}
	set.NextFireDate = nextDate
	set.NextFireTimestamp = nextTS
	return nil
}

type startCall struct {
	ChannelID string
	UserID    string
}

type fakeStarter struct {
	calls    []startCall
	sessions map[string]*standup.Session
}

func (f *fakeStarter) StartSession(ctx context.Context, set standup.Setting, userID string, now time.Time) (*standup.Session, bool, error) {
	f.calls = append(f.calls, startCall{ChannelID: set.ChannelID, UserID: userID})

	if f.sessions == nil {
		f.sessions = make(map[string]*standup.Session)
	}
	date := now.UTC().Format(standup.DateLayout)
	key := set.TeamID + "/" + userID + "/" + date
	if s, ok := f.sessions[key]; ok {
		return s, false, nil
	}
	s := standup.NewSession(set, userID, date)
	f.sessions[key] = s
	return s, true, nil
}

type fakeReconciler struct {
	sessions []*standup.Session
	err      error
}

func (f *fakeReconciler) Reconcile(ctx context.Context, s *standup.Session) error {
	if f.err != nil {
		return f.err
	}
	f.sessions = append(f.sessions, s)
	return nil
}

// 2026-01-07 is a Wednesday; the sweep runs shortly after 09:00.
var (
	sweepNow = time.Date(2026, 1, 7, 9, 0, 30, 0, time.UTC)
	fireTS   = time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC).Unix()
)

func dueSetting() standup.Setting {
	return standup.Setting{
		TeamID:            "T1",
		ChannelID:         "C1",
		UserIDs:           []string{"U1", "U2"},
		Questions:         []string{"What did you do yesterday?", "What will you do today?"},
		CronExpression:    "0 9 * * MON-FRI",
		NextFireDate:      "2026-01-07",
		NextFireTimestamp: fireTS,
	}
}

func TestTickFiresDueSetting(t *testing.T) {
	settings := &fakeSettings{stored: []standup.Setting{dueSetting()}}
	starter := &fakeStarter{}
	rec := &fakeReconciler{}
	s := New(settings, starter, rec, time.Minute, discardLogger())

	fired, err := s.Tick(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("%q", err)
	}
	if fired != 1 {
		t.Fatalf("want 1 fired setting, got %d", fired)
	}

	wantCalls := []startCall{{ChannelID: "C1", UserID: "U1"}, {ChannelID: "C1", UserID: "U2"}}
	if len(starter.calls) != len(wantCalls) {
		t.Fatalf("want %v, got %v", wantCalls, starter.calls)
	}
	for i, c := range wantCalls {
		if starter.calls[i] != c {
			t.Fatalf("want %v, got %v", wantCalls, starter.calls)
		}
	}
	if len(rec.sessions) != 2 {
		t.Fatalf("want 2 reconciled sessions, got %d", len(rec.sessions))
	}

	// Next fire is the following weekday morning.
	got := settings.stored[0]
	if got.NextFireDate != "2026-01-08" {
		t.Fatalf("want next fire date 2026-01-08, got %s", got.NextFireDate)
	}
	wantTS := time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC).Unix()
	if got.NextFireTimestamp != wantTS {
		t.Fatalf("want next fire timestamp %d, got %d", wantTS, got.NextFireTimestamp)
	}
}

func TestTickSameInstantFiresOnce(t *testing.T) {
	settings := &fakeSettings{stored: []standup.Setting{dueSetting()}}
	starter := &fakeStarter{}
	s := New(settings, starter, &fakeReconciler{}, time.Minute, discardLogger())

	if _, err := s.Tick(context.Background(), sweepNow); err != nil {
		t.Fatalf("%q", err)
	}
	callsAfterFirst := len(starter.calls)

	fired, err := s.Tick(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("%q", err)
	}
	if fired != 0 {
		t.Fatalf("same instant fired the setting again: %d", fired)
	}
	if len(starter.calls) != callsAfterFirst {
		t.Fatalf("duplicate session starts: %v", starter.calls)
	}
}

func TestTickNotYetDue(t *testing.T) {
	set := dueSetting()
	settings := &fakeSettings{stored: []standup.Setting{set}}
	starter := &fakeStarter{}
	s := New(settings, starter, &fakeReconciler{}, time.Minute, discardLogger())

	early := time.Date(2026, 1, 7, 8, 59, 0, 0, time.UTC)
	fired, err := s.Tick(context.Background(), early)
	if err != nil {
		t.Fatalf("%q", err)
	}
	if fired != 0 || len(starter.calls) != 0 {
		t.Fatalf("setting fired before its instant: fired=%d calls=%v", fired, starter.calls)
	}
}

func TestTickPicksUpYesterdaysMissedSetting(t *testing.T) {
	set := dueSetting()
	set.NextFireDate = "2026-01-06"
	set.NextFireTimestamp = time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC).Unix()
	settings := &fakeSettings{stored: []standup.Setting{set}}
	starter := &fakeStarter{}
	s := New(settings, starter, &fakeReconciler{}, time.Minute, discardLogger())

	fired, err := s.Tick(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("%q", err)
	}
	if fired != 1 {
		t.Fatalf("missed setting from yesterday not fired: %d", fired)
	}
	if settings.stored[0].NextFireDate != "2026-01-08" {
		t.Fatalf("missed setting not advanced: %s", settings.stored[0].NextFireDate)
	}
}

func TestTickAdvancesBeforeDelivery(t *testing.T) {
	settings := &fakeSettings{stored: []standup.Setting{dueSetting()}}
	starter := &fakeStarter{}
	rec := &fakeReconciler{err: errors.New("slack is down")}
	s := New(settings, starter, rec, time.Minute, discardLogger())

	fired, err := s.Tick(context.Background(), sweepNow)
	if err == nil {
		t.Fatal("delivery failure not surfaced")
	}
	if fired != 1 {
		t.Fatalf("consumed trigger not counted as fired: %d", fired)
	}

	// The schedule moved on anyway: the instant is consumed exactly once
	// and the started sessions carry the redelivery.
	if settings.stored[0].NextFireDate != "2026-01-08" {
		t.Fatalf("setting not advanced before delivery: %s", settings.stored[0].NextFireDate)
	}
	if len(starter.calls) != 2 {
		t.Fatalf("want 2 session starts, got %v", starter.calls)
	}
}

func TestTickInvalidExpressionIsAggregated(t *testing.T) {
	broken := dueSetting()
	broken.ChannelID = "C-broken"
	broken.CronExpression = "not a cron"

	healthy := dueSetting()

	settings := &fakeSettings{stored: []standup.Setting{broken, healthy}}
	starter := &fakeStarter{}
	s := New(settings, starter, &fakeReconciler{}, time.Minute, discardLogger())

	fired, err := s.Tick(context.Background(), sweepNow)
	if err == nil {
		t.Fatal("invalid expression not surfaced")
	}
	if fired != 1 {
		t.Fatalf("healthy setting blocked by the broken one: fired=%d", fired)
	}

	// The broken setting stays put for the operator to fix.
	for _, set := range settings.stored {
		if set.ChannelID == "C-broken" && set.NextFireDate != "2026-01-07" {
			t.Fatalf("broken setting advanced: %s", set.NextFireDate)
		}
	}
}
