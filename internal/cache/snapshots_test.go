package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidline/api/internal/proposal"
)

type failingCache struct{}

func (failingCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func (failingCache) Set(context.Context, string, string) error {
	return errors.New("connection refused")
}

func (failingCache) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "proposal-data-prop_42", Key("prop_42"))
}

func TestSnapshotsRoundTrip(t *testing.T) {
	store := NewSnapshots(NewMemoryCache(), zerolog.Nop())
	ctx := context.Background()

	p := proposal.New("prop_1")
	p.Solicitation.Title = "Logistics Support"
	p.Roles = []proposal.Role{{ID: "r1", Title: "Analyst", BaseSalary: 90000, FTE: 1, Years: []proposal.YearSlot{proposal.YearBase}}}
	saved := proposal.Snapshot{Proposal: p, LastSaved: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	require.NoError(t, store.Save(ctx, saved))

	loaded, ok := store.Load(ctx, "prop_1")
	require.True(t, ok)
	assert.Equal(t, saved.Proposal, loaded.Proposal)
	assert.True(t, saved.LastSaved.Equal(loaded.LastSaved))
}

func TestSnapshotsMiss(t *testing.T) {
	store := NewSnapshots(NewMemoryCache(), zerolog.Nop())

	_, ok := store.Load(context.Background(), "nope")
	assert.False(t, ok)
}

func TestSnapshotsCorruptEntryIsMiss(t *testing.T) {
	mem := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, Key("prop_1"), "{not json"))

	_, ok := NewSnapshots(mem, zerolog.Nop()).Load(ctx, "prop_1")
	assert.False(t, ok)
}

func TestSnapshotsForeignEntryIsMiss(t *testing.T) {
	mem := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, Key("prop_1"), `{"proposal":{"id":"prop_2"}}`))

	_, ok := NewSnapshots(mem, zerolog.Nop()).Load(ctx, "prop_1")
	assert.False(t, ok)
}

func TestSnapshotsReadErrorIsMiss(t *testing.T) {
	_, ok := NewSnapshots(failingCache{}, zerolog.Nop()).Load(context.Background(), "prop_1")
	assert.False(t, ok)
}

func TestSnapshotsSaveError(t *testing.T) {
	err := NewSnapshots(failingCache{}, zerolog.Nop()).Save(context.Background(), proposal.Snapshot{Proposal: proposal.New("p")})
	assert.Error(t, err)
}

func TestSnapshotsFillMissingCollections(t *testing.T) {
	mem := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, Key("prop_1"), `{"proposal":{"id":"prop_1","roles":[{"id":"r1","baseSalary":-4}]}}`))

	loaded, ok := NewSnapshots(mem, zerolog.Nop()).Load(ctx, "prop_1")
	require.True(t, ok)
	assert.NotNil(t, loaded.Proposal.WBSElements)
	assert.Zero(t, loaded.Proposal.Roles[0].BaseSalary)
}
