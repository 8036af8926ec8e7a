package summary

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"testing"

	log15 "github.com/inconshreveable/log15/v3"

	"StandupBrief/slack"
	"StandupBrief/standup"
)

func discardLogger() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.DiscardHandler())
	return l
}

type memStore struct {
	sessions map[string]*standup.Session
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*standup.Session)}
}

func storeKey(teamID, userID, date string) string {
	return teamID + "/" + userID + "/" + date
}

func clone(s *standup.Session) *standup.Session {
	c := *s
	c.Questions = make([]standup.Question, len(s.Questions))
	copy(c.Questions, s.Questions)
	c.Answers = make([]standup.Answer, len(s.Answers))
	copy(c.Answers, s.Answers)
	return &c
}

func (m *memStore) Get(teamID, userID, date string) (*standup.Session, error) {
	s, ok := m.sessions[storeKey(teamID, userID, date)]
	if !ok {
		return nil, standup.ErrSessionNotFound
	}
	return clone(s), nil
}

func (m *memStore) PutIfAbsent(s *standup.Session) (bool, error) {
	k := storeKey(s.TeamID, s.UserID, s.Date)
	if _, ok := m.sessions[k]; ok {
		return false, nil
	}
	m.sessions[k] = clone(s)
	return true, nil
}

func (m *memStore) Upsert(s *standup.Session, expectedVersion int64) error {
	k := storeKey(s.TeamID, s.UserID, s.Date)
	stored, ok := m.sessions[k]
	if !ok || stored.Version != expectedVersion {
		return standup.ErrStaleWrite
	}
	c := clone(s)
	c.Version = expectedVersion + 1
	m.sessions[k] = c
	s.Version = expectedVersion + 1
	return nil
}

type directMessage struct {
	UserID string
	Text   string
}

type channelUpdate struct {
	MessageID  string
	Attachment slack.Attachment
}

type fakeGateway struct {
	dms     []directMessage
	posts   []slack.Attachment
	updates []channelUpdate
	deletes []string
	seq     int
}

func (g *fakeGateway) nextTS() string {
	g.seq++
	return "ts-" + strconv.Itoa(g.seq)
}

func (g *fakeGateway) SendDirect(ctx context.Context, teamID, userID, text string) (string, error) {
	g.dms = append(g.dms, directMessage{UserID: userID, Text: text})
	return g.nextTS(), nil
}

func (g *fakeGateway) PostChannel(ctx context.Context, teamID, channelID string, att slack.Attachment) (string, error) {
	g.posts = append(g.posts, att)
	return g.nextTS(), nil
}

func (g *fakeGateway) UpdateChannel(ctx context.Context, teamID, channelID, messageID string, att slack.Attachment) error {
	g.updates = append(g.updates, channelUpdate{MessageID: messageID, Attachment: att})
	return nil
}

func (g *fakeGateway) DeleteChannel(ctx context.Context, teamID, channelID, messageID string) error {
	g.deletes = append(g.deletes, messageID)
	return nil
}

func (g *fakeGateway) FetchUserTimezone(ctx context.Context, teamID, userID string) (string, error) {
	return "UTC", nil
}

func (g *fakeGateway) FetchDisplayIdentity(ctx context.Context, teamID, userID string) (slack.DisplayIdentity, error) {
	return slack.DisplayIdentity{Name: "Jane Doe", IconURL: "https://img/32.png"}, nil
}

func testSetting() standup.Setting {
	return standup.Setting{
		TeamID:         "T1",
		ChannelID:      "C1",
		UserIDs:        []string{"U1"},
		Questions:      []string{"What did you do yesterday?", "What will you do today?"},
		CronExpression: "0 9 * * MON-FRI",
	}
}

func seedSession(t *testing.T, store *memStore) *standup.Session {
	t.Helper()
	s := standup.NewSession(testSetting(), "U1", "2026-01-07")
	created, err := store.PutIfAbsent(s)
	if err != nil || !created {
		t.Fatalf("seed session: created=%v err=%v", created, err)
	}
	return s
}

func TestReconcileDeliversNextQuestion(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{}
	p := NewPublisher(store, gw, discardLogger())
	s := seedSession(t, store)

	if err := p.Reconcile(context.Background(), s); err != nil {
		t.Fatalf("%q", err)
	}

	wantDMs := []directMessage{{UserID: "U1", Text: "What did you do yesterday?"}}
	if !reflect.DeepEqual(gw.dms, wantDMs) {
		t.Fatalf("want %v, got %v", wantDMs, gw.dms)
	}
	if s.Questions[0].PostedAt == "" {
		t.Fatal("delivery timestamp not set on the session")
	}

	stored, _ := store.Get("T1", "U1", "2026-01-07")
	if stored.Questions[0].PostedAt != s.Questions[0].PostedAt {
		t.Fatal("delivery timestamp not persisted")
	}

	// Re-running must not ask the same question twice.
	if err := p.Reconcile(context.Background(), s); err != nil {
		t.Fatalf("%q", err)
	}
	if len(gw.dms) != 1 {
		t.Fatalf("question redelivered: %v", gw.dms)
	}
}

func TestReconcilePostsSummaryOnFinish(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{}
	p := NewPublisher(store, gw, discardLogger())

	s := seedSession(t, store)
	s.Questions[0].PostedAt = "q1"
	s.RecordAnswer("yesterday I did X", "t1")
	s.Questions[1].PostedAt = "q2"
	s.RecordAnswer("today I'll do Y", "t2")

	if err := p.Reconcile(context.Background(), s); err != nil {
		t.Fatalf("%q", err)
	}

	if len(gw.posts) != 1 {
		t.Fatalf("want one channel post, got %d", len(gw.posts))
	}
	wantFields := []slack.AttachmentField{
		{Title: "What did you do yesterday?", Value: "yesterday I did X"},
		{Title: "What will you do today?", Value: "today I'll do Y"},
	}
	if !reflect.DeepEqual(gw.posts[0].Fields, wantFields) {
		t.Fatalf("want %v, got %v", wantFields, gw.posts[0].Fields)
	}
	if gw.posts[0].AuthorName != "Jane Doe" {
		t.Fatalf("summary not attributed to the participant: %+v", gw.posts[0])
	}
	if s.FinishedMessageID == "" {
		t.Fatal("summary handle not set")
	}

	stored, _ := store.Get("T1", "U1", "2026-01-07")
	if stored.FinishedMessageID != s.FinishedMessageID {
		t.Fatal("summary handle not persisted")
	}
}

func TestReconcileCancelledSessionSkipsChannel(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{}
	p := NewPublisher(store, gw, discardLogger())

	s := seedSession(t, store)
	s.Questions[0].PostedAt = "q1"
	s.RecordAnswer("cancel", "t1")

	if err := p.Reconcile(context.Background(), s); err != nil {
		t.Fatalf("%q", err)
	}

	if len(gw.posts) != 0 {
		t.Fatalf("cancelled session reached the channel: %v", gw.posts)
	}
	wantDMs := []directMessage{{UserID: "U1", Text: cancelledNotice}}
	if !reflect.DeepEqual(gw.dms, wantDMs) {
		t.Fatalf("want %v, got %v", wantDMs, gw.dms)
	}
}

func TestReconcileUpdatesSummaryInPlace(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{}
	p := NewPublisher(store, gw, discardLogger())

	s := seedSession(t, store)
	s.Questions[0].PostedAt = "q1"
	s.RecordAnswer("yesterday I did X", "t1")
	s.Questions[1].PostedAt = "q2"
	s.RecordAnswer("today I'll do Y", "t2")
	if err := p.Reconcile(context.Background(), s); err != nil {
		t.Fatalf("%q", err)
	}
	handle := s.FinishedMessageID

	s.EditAnswer("X revised", "t1")
	if err := p.Reconcile(context.Background(), s); err != nil {
		t.Fatalf("%q", err)
	}

	if len(gw.posts) != 1 {
		t.Fatalf("edit produced a second channel post: %d", len(gw.posts))
	}
	if len(gw.updates) != 1 || gw.updates[0].MessageID != handle {
		t.Fatalf("want one update of %s, got %v", handle, gw.updates)
	}
	if gw.updates[0].Attachment.Fields[0].Value != "X revised" {
		t.Fatalf("update carries stale text: %v", gw.updates[0].Attachment.Fields)
	}
}

func TestReconcileRetractsEmptySummary(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{}
	p := NewPublisher(store, gw, discardLogger())

	s := seedSession(t, store)
	s.Questions[0].PostedAt = "q1"
	s.RecordAnswer("yesterday I did X", "t1")
	s.Questions[1].PostedAt = "q2"
	s.RecordAnswer("today I'll do Y", "t2")
	if err := p.Reconcile(context.Background(), s); err != nil {
		t.Fatalf("%q", err)
	}
	handle := s.FinishedMessageID

	// Late edits blank out every answer; nothing is left to show.
	s.EditAnswer(standup.SentinelAnswer, "t1")
	s.EditAnswer(standup.SentinelAnswer, "t2")
	if err := p.Reconcile(context.Background(), s); err != nil {
		t.Fatalf("%q", err)
	}

	if !reflect.DeepEqual(gw.deletes, []string{handle}) {
		t.Fatalf("want delete of %s, got %v", handle, gw.deletes)
	}
	if s.FinishedMessageID != "" {
		t.Fatal("summary handle not cleared")
	}
	stored, _ := store.Get("T1", "U1", "2026-01-07")
	if stored.FinishedMessageID != "" {
		t.Fatal("cleared handle not persisted")
	}
}

// failOnce fails the first Upsert with a transient store error, the kind
// a dropped connection produces. Unlike a stale write, save does not
// retry it; the whole Reconcile is re-run by the caller.
type failOnce struct {
	*memStore
	tripped bool
}

func (f *failOnce) Upsert(sess *standup.Session, expectedVersion int64) error {
	if !f.tripped {
		f.tripped = true
		return errors.New("connection reset")
	}
	return f.memStore.Upsert(sess, expectedVersion)
}

func TestReconcileRetryPersistsSummaryHandle(t *testing.T) {
	inner := newMemStore()
	store := &failOnce{memStore: inner}
	gw := &fakeGateway{}
	p := NewPublisher(store, gw, discardLogger())

	s := seedSession(t, inner)
	s.Questions[0].PostedAt = "q1"
	s.RecordAnswer("yesterday I did X", "t1")
	s.Questions[1].PostedAt = "q2"
	s.RecordAnswer("today I'll do Y", "t2")

	// The post succeeds but recording its handle does not.
	if err := p.Reconcile(context.Background(), s); err == nil {
		t.Fatal("want the failed handle write surfaced")
	}
	if len(gw.posts) != 1 {
		t.Fatalf("want one channel post, got %d", len(gw.posts))
	}

	// The caller retries with the same in-memory session. No second post,
	// and the handle reaches the store this time.
	if err := p.Reconcile(context.Background(), s); err != nil {
		t.Fatalf("%q", err)
	}
	if len(gw.posts) != 1 {
		t.Fatalf("retry posted a duplicate summary: %d posts", len(gw.posts))
	}
	stored, err := inner.Get("T1", "U1", "2026-01-07")
	if err != nil {
		t.Fatalf("%q", err)
	}
	if stored.FinishedMessageID == "" || stored.FinishedMessageID != s.FinishedMessageID {
		t.Fatalf("summary handle not persisted on retry: %q", stored.FinishedMessageID)
	}

	// A later edit reconciles from a fresh fetch and must update, not
	// post again.
	fresh, err := inner.Get("T1", "U1", "2026-01-07")
	if err != nil {
		t.Fatalf("%q", err)
	}
	fresh.EditAnswer("X revised", "t1")
	if err := p.Reconcile(context.Background(), fresh); err != nil {
		t.Fatalf("%q", err)
	}
	if len(gw.posts) != 1 {
		t.Fatalf("edit after recovery posted a duplicate summary: %d posts", len(gw.posts))
	}
	if len(gw.updates) == 0 || gw.updates[len(gw.updates)-1].MessageID != stored.FinishedMessageID {
		t.Fatalf("edit did not update the recovered handle: %v", gw.updates)
	}
}

// staleOnce fails the first Upsert like a concurrent writer winning the
// race, so save has to re-fetch and re-apply.
type staleOnce struct {
	*memStore
	tripped bool
}

func (s *staleOnce) Upsert(sess *standup.Session, expectedVersion int64) error {
	if !s.tripped {
		s.tripped = true
		return standup.ErrStaleWrite
	}
	return s.memStore.Upsert(sess, expectedVersion)
}

func TestReconcileRetriesStaleSave(t *testing.T) {
	inner := newMemStore()
	store := &staleOnce{memStore: inner}
	gw := &fakeGateway{}
	p := NewPublisher(store, gw, discardLogger())
	s := seedSession(t, inner)

	if err := p.Reconcile(context.Background(), s); err != nil {
		t.Fatalf("stale save was not retried: %q", err)
	}

	if len(gw.dms) != 1 {
		t.Fatalf("want exactly one question DM, got %d", len(gw.dms))
	}
	stored, _ := inner.Get("T1", "U1", "2026-01-07")
	if stored.Questions[0].PostedAt == "" {
		t.Fatal("delivery timestamp lost in the retry")
	}
}
