// Package scheduler sweeps recurrence settings and starts due sessions.
package scheduler

import (
	"context"
	"fmt"
	"time"

	log15 "github.com/inconshreveable/log15/v3"
	"go.uber.org/multierr"

	"StandupBrief/cronclock"
	"StandupBrief/standup"
)

// SettingStore is the schedule persistence the sweep requires.
type SettingStore interface {
	DueBefore(date string, ts int64) ([]standup.Setting, error)
	Advance(set *standup.Setting, nextDate string, nextTS int64) error
}

// SessionStarter creates the day's sessions for a fired setting.
type SessionStarter interface {
	StartSession(ctx context.Context, set standup.Setting, userID string, now time.Time) (*standup.Session, bool, error)
}

// Reconciler pushes a session's outward-facing messages, here the first
// question of a freshly started session.
type Reconciler interface {
	Reconcile(ctx context.Context, s *standup.Session) error
}

type Scheduler struct {
	settings  SettingStore
	engine    SessionStarter
	publisher Reconciler
	interval  time.Duration
	log       log15.Logger
}

func New(settings SettingStore, engine SessionStarter, publisher Reconciler, interval time.Duration, logger log15.Logger) *Scheduler {
	return &Scheduler{
		settings:  settings,
		engine:    engine,
		publisher: publisher,
		interval:  interval,
		log:       logger,
	}
}

// Run drives Tick from a ticker until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("scheduler started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case t := <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, s.interval)
			fired, err := s.Tick(tickCtx, t)
			cancel()
			if err != nil {
				s.log.Error("sweep finished with failures", "fired", fired, "err", err)
			}
		}
	}
}

// Tick fires every setting due at or before now. Settings due on
// yesterday's date are included so a late or skipped sweep still fires
// them. Each setting's next-fire fields are advanced before its triggers
// count as delivered, so the same instant never fires a setting twice;
// downstream session creation is idempotent, making redelivery after a
// partial failure safe. Per-setting failures are aggregated, never fatal
// for the sweep.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	today := now.UTC().Format(standup.DateLayout)
	yesterday := now.UTC().AddDate(0, 0, -1).Format(standup.DateLayout)

	fired := 0
	var errs error

	for _, date := range []string{yesterday, today} {
		due, err := s.settings.DueBefore(date, now.Unix())
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		for i := range due {
			set := due[i]
			advanced, err := s.fire(ctx, &set, now)
			if advanced {
				// The trigger was consumed even when a delivery below
				// failed, so it counts as fired.
				fired++
			}
			if err != nil {
				errs = multierr.Append(errs,
					fmt.Errorf("fire %s/%s: %w", set.TeamID, set.ChannelID, err))
			}
		}
	}

	return fired, errs
}

// fire consumes one due trigger. It reports whether the schedule was
// advanced; delivery failures after that point come back as the error with
// the trigger still counting as fired.
func (s *Scheduler) fire(ctx context.Context, set *standup.Setting, now time.Time) (bool, error) {
	next, err := cronclock.ResolveNext(set.CronExpression, now)
	if err != nil {
		// A stored invalid expression cannot advance; surface it and
		// leave the setting for the operator to fix.
		return false, err
	}

	if err := s.settings.Advance(set, next.UTC().Format(standup.DateLayout), next.Unix()); err != nil {
		return false, err
	}

	s.log.Info("setting fired",
		"team", set.TeamID, "channel", set.ChannelID,
		"participants", len(set.UserIDs), "next", next.UTC())

	var errs error
	for _, userID := range set.UserIDs {
		sess, _, err := s.engine.StartSession(ctx, *set, userID, now)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := s.publisher.Reconcile(ctx, sess); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return true, errs
}
