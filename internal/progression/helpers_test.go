package progression

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/events"
	"example.com/progression/internal/persistence/memory"
	"example.com/progression/internal/policy"
)

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store     *memory.Store
	engine    *Engine
	publisher *recordingPublisher
	clock     *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture() *fixture {
	return newFixtureWithStore(memory.NewStore())
}

func newFixtureWithStore(store *memory.Store) *fixture {
	publisher := &recordingPublisher{}
	clock := &testClock{now: testNow}
	engine := New(storesFor(store), testPolicy(), WithPublisher(publisher), WithClock(clock.Now))
	return &fixture{store: store, engine: engine, publisher: publisher, clock: clock}
}

func testPolicy() policy.Policy {
	return policy.Default()
}

func storesFor(store *memory.Store) Stores {
	return Stores{
		Profiles:     store,
		Achievements: store,
		Activities:   store,
		Goals:        store,
		Challenges:   store,
		Ledger:       store,
	}
}

// path returns a two point route along the equator spanning degrees of longitude.
func path(degrees float64) []string {
	return []string{"0,0", "0," + strconv.FormatFloat(degrees, 'f', -1, 64)}
}

func activity(id string, activityType domain.ActivityType, startedAt time.Time, duration time.Duration, points []string) domain.Activity {
	return domain.Activity{
		ID:         id,
		UserID:     "user-1",
		Type:       activityType,
		StartedAt:  startedAt,
		Duration:   duration,
		PathPoints: points,
	}
}

func saveActivity(t *testing.T, store *memory.Store, a domain.Activity) {
	t.Helper()
	created, err := store.SaveActivity(context.Background(), a)
	require.NoError(t, err)
	require.True(t, created, "activity %s already stored", a.ID)
}
