package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// leakyClock hands out timers that cannot be stopped, like a timer that has
// already fired when Stop is called.
type leakyClock struct{ *fakeClock }

type leakyTimer struct{}

func (leakyTimer) Stop() bool { return false }

func (c leakyClock) AfterFunc(d time.Duration, f func()) Timer {
	c.fakeClock.AfterFunc(d, f)
	return leakyTimer{}
}

func TestDebouncerRunsOnlyLatest(t *testing.T) {
	clock := newFakeClock()
	d := NewDebouncer(clock)

	var ran []string
	d.Restart(time.Second, func() { ran = append(ran, "first") })
	clock.Advance(500 * time.Millisecond)
	d.Restart(time.Second, func() { ran = append(ran, "second") })
	assert.True(t, d.Pending())

	clock.Advance(999 * time.Millisecond)
	assert.Empty(t, ran)

	clock.Advance(time.Millisecond)
	assert.Equal(t, []string{"second"}, ran)
	assert.False(t, d.Pending())
}

func TestDebouncerCancel(t *testing.T) {
	clock := newFakeClock()
	d := NewDebouncer(clock)

	ran := false
	d.Restart(time.Second, func() { ran = true })
	d.Cancel()
	clock.Advance(time.Minute)
	assert.False(t, ran)
	assert.False(t, d.Pending())
}

func TestDebouncerDiscardsStaleCallbacks(t *testing.T) {
	clock := leakyClock{newFakeClock()}
	d := NewDebouncer(clock)

	var ran []string
	d.Restart(time.Second, func() { ran = append(ran, "stale") })
	d.Restart(2*time.Second, func() { ran = append(ran, "current") })
	clock.Advance(time.Minute)
	assert.Equal(t, []string{"current"}, ran)

	d.Restart(time.Second, func() { ran = append(ran, "cancelled") })
	d.Cancel()
	clock.Advance(time.Minute)
	assert.Equal(t, []string{"current"}, ran)
}
