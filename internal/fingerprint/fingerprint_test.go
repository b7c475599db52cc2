package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidline/api/internal/proposal"
)

func sampleSnapshot() proposal.Snapshot {
	p := proposal.New("prop_1")
	p.Solicitation.Title = "Help Desk Support"
	p.Roles = []proposal.Role{{ID: "r1", Title: "Tier 1", BaseSalary: 55000, FTE: 4, Years: []proposal.YearSlot{proposal.YearBase}}}
	p.RateJustifications = map[string]proposal.RateJustification{
		"r1": {Method: "survey"},
		"r0": {Method: "catalog"},
		"r9": {Method: "historical"},
	}
	return proposal.Snapshot{Proposal: p, LastSaved: time.Unix(100, 0)}
}

func TestOfIsStableAcrossMapOrderAndLastSaved(t *testing.T) {
	a := sampleSnapshot()
	b := sampleSnapshot()
	b.LastSaved = time.Unix(999, 0)
	b.Proposal.RateJustifications = map[string]proposal.RateJustification{
		"r9": {Method: "historical"},
		"r1": {Method: "survey"},
		"r0": {Method: "catalog"},
	}

	fpA, err := Of(a)
	require.NoError(t, err)
	fpB, err := Of(b)
	require.NoError(t, err)

	assert.Equal(t, fpA, fpB)
	assert.Len(t, fpA, 64)
}

func TestOfChangesWithContent(t *testing.T) {
	a := sampleSnapshot()
	b := sampleSnapshot()
	b.Proposal.Roles[0].FTE = 5

	fpA, err := Of(a)
	require.NoError(t, err)
	fpB, err := Of(b)
	require.NoError(t, err)

	assert.NotEqual(t, fpA, fpB)
}

func TestDetectorSuppressesRepeats(t *testing.T) {
	d := NewDetector()
	snapshot := sampleSnapshot()

	fp, changed, err := d.Check("prop_1", snapshot)
	require.NoError(t, err)
	assert.True(t, changed)
	d.Record("prop_1", fp)

	_, changed, err = d.Check("prop_1", snapshot)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestDetectorIsPerID(t *testing.T) {
	d := NewDetector()
	snapshot := sampleSnapshot()
	fp, _, err := d.Check("prop_1", snapshot)
	require.NoError(t, err)
	d.Record("prop_1", fp)

	_, changed, err := d.Check("prop_2", snapshot)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestDetectorReset(t *testing.T) {
	d := NewDetector()
	snapshot := sampleSnapshot()
	fp, _, err := d.Check("prop_1", snapshot)
	require.NoError(t, err)
	d.Record("prop_1", fp)

	d.Reset("prop_1")

	_, changed, err := d.Check("prop_1", snapshot)
	require.NoError(t, err)
	assert.True(t, changed)
}
