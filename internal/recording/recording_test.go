package recording

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allejo/leagueoverseer/internal/domain"
	"github.com/allejo/leagueoverseer/internal/match"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func officialSnapshot(t *testing.T, cancelReason string) *match.Snapshot {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 8, 30, 17, 30, 0, 0, time.UTC)}
	s := match.NewState(domain.MatchOfficial, []domain.TeamSide{domain.SideRed, domain.SideGreen}, 1800, 90, clock)
	require.NoError(t, s.Activate())

	clock.now = clock.now.Add(91 * time.Second)
	require.NoError(t, s.PerformRollCall([]domain.Participant{
		{BZID: "100", Callsign: "allejo", Side: domain.SideRed, TeamName: "Fancy Pants!"},
		{BZID: "200", Callsign: "kierra", Side: domain.SideGreen, TeamName: "Purgatory"},
	}))
	s.RecordCapture(domain.SideRed, "100", "allejo")

	snap, err := s.Finish(cancelReason)
	require.NoError(t, err)
	return snap
}

func TestFileNameOfficial(t *testing.T) {
	snap := officialSnapshot(t, "")
	assert.Equal(t, "offi-20260830-FancyPants-vs-Purgatory-1730.rec.gz", FileName(snap))
}

func TestFileNameCanceled(t *testing.T) {
	snap := officialSnapshot(t, "zero players")
	assert.Equal(t, "offi-20260830-FancyPants-vs-Purgatory-1730-Canceled.rec.gz", FileName(snap))
}

func TestFileNameOfficialWithoutRoster(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 8, 30, 17, 30, 0, 0, time.UTC)}
	s := match.NewState(domain.MatchOfficial, domain.AllSides[:2], 1800, 90, clock)
	require.NoError(t, s.Activate())
	snap, err := s.Finish("")
	require.NoError(t, err)

	// no committed team names, fall back to the bare timestamp form
	assert.Equal(t, "offi-20260830-1730.rec.gz", FileName(snap))
}

func TestFileNameFun(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 8, 30, 17, 30, 0, 0, time.UTC)}
	s := match.NewState(domain.MatchFun, domain.AllSides[:2], 1800, 90, clock)
	require.NoError(t, s.Activate())
	snap, err := s.Finish("")
	require.NoError(t, err)

	assert.Equal(t, "fun-20260830-1730.rec.gz", FileName(snap))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)
	require.True(t, rec.Enabled())

	snap := officialSnapshot(t, "")
	name, err := rec.Save(snap)
	require.NoError(t, err)
	assert.Equal(t, FileName(snap), name)

	h, events, err := rec.Load(name)
	require.NoError(t, err)
	assert.Equal(t, snap.UUID, h.UUID)
	assert.Equal(t, domain.MatchOfficial, h.Kind)
	assert.False(t, h.Canceled)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCapture, events[0].Type)
	assert.Equal(t, "01:31", events[0].Time)
}

func TestDisabledRecorder(t *testing.T) {
	rec, err := NewRecorder("")
	require.NoError(t, err)
	assert.False(t, rec.Enabled())

	name, err := rec.Save(officialSnapshot(t, ""))
	require.NoError(t, err)
	assert.Empty(t, name)
}
