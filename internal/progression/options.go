// Package progression turns finalized activities into XP, levels, achievement
// unlocks and goal and challenge progress.
package progression

import (
	"context"
	"log"
	"time"

	"example.com/progression/internal/events"
)

// Publisher delivers progression events to interested collaborators.
// Publication is best-effort: failures are logged, never propagated.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, events.Event) error { return nil }

// Option configures optional behaviour shared by the engine components.
type Option func(*settings)

type settings struct {
	logger    *log.Logger
	locker    Locker
	publisher Publisher
	now       func() time.Time
	location  *time.Location
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:    log.New(log.Writer(), "[progression] ", log.LstdFlags|log.Lshortfile),
		locker:    NewKeyedMutex(),
		publisher: nopPublisher{},
		now:       func() time.Time { return time.Now().UTC() },
		location:  time.UTC,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithLogger overrides the logger used to report skipped items and failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLocker overrides the per-user lock. Components built for one engine must share it.
func WithLocker(locker Locker) Option {
	return func(s *settings) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithPublisher sets the destination for progression events.
func WithPublisher(publisher Publisher) Option {
	return func(s *settings) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the time zone used for time-of-day achievements.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) {
		if loc != nil {
			s.location = loc
		}
	}
}

func (s settings) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Printf("publish %s failed (user=%s): %v", event.Type, event.UserID, err)
		recordPublishFailure(event.Type)
	}
}
