package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bidline/api/internal/cache"
	"bidline/api/internal/proposal"
	"bidline/api/internal/store"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs due timers in deadline order on the
// calling goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.fn()
	}
}

type fakeRemote struct {
	mu        sync.Mutex
	records   map[string]proposal.Summary
	updates   []proposal.Summary
	fetchErr  error
	updateErr error
	entered   chan struct{}
	release   chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{records: map[string]proposal.Summary{}}
}

func (r *fakeRemote) FetchProposal(_ context.Context, id string) (proposal.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErr != nil {
		return proposal.Summary{}, r.fetchErr
	}
	record, ok := r.records[id]
	if !ok {
		return proposal.Summary{}, store.ErrNotFound
	}
	return record, nil
}

func (r *fakeRemote) UpdateProposal(_ context.Context, id string, summary proposal.Summary) (proposal.Summary, error) {
	r.mu.Lock()
	entered, release := r.entered, r.release
	r.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-release
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return proposal.Summary{}, r.updateErr
	}
	summary.ID = id
	r.records[id] = summary
	r.updates = append(r.updates, summary)
	return summary, nil
}

func (r *fakeRemote) setUpdateErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateErr = err
}

func (r *fakeRemote) Updates() []proposal.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]proposal.Summary(nil), r.updates...)
}

// countingSnapshots wraps the real cache adapter and counts writes.
type countingSnapshots struct {
	*cache.Snapshots
	mu       sync.Mutex
	writes   int
	failNext bool
}

func (c *countingSnapshots) Save(ctx context.Context, snapshot proposal.Snapshot) error {
	c.mu.Lock()
	c.writes++
	fail := c.failNext
	c.failNext = false
	c.mu.Unlock()
	if fail {
		return errors.New("cache unavailable")
	}
	return c.Snapshots.Save(ctx, snapshot)
}

func (c *countingSnapshots) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

type harness struct {
	engine *Engine
	clock  *fakeClock
	remote *fakeRemote
	local  *countingSnapshots
}

func newHarness(t *testing.T, quiet time.Duration) *harness {
	t.Helper()
	clock := newFakeClock()
	remote := newFakeRemote()
	local := &countingSnapshots{Snapshots: cache.NewSnapshots(cache.NewMemoryCache(), zerolog.Nop())}
	engine := NewEngine(remote, local, Options{
		Debounce:    time.Second,
		QuietWindow: quiet,
		Clock:       clock,
		Logger:      zerolog.Nop(),
	})
	return &harness{engine: engine, clock: clock, remote: remote, local: local}
}

func setTitle(title string) func(*proposal.Proposal) {
	return func(p *proposal.Proposal) { p.Solicitation.Title = title }
}
