package league

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allejo/leagueoverseer/internal/domain"
	"github.com/allejo/leagueoverseer/internal/match"
)

type stubNotifier struct {
	messages []string
}

func (n *stubNotifier) Broadcast(message string) { n.messages = append(n.messages, message) }

type stubSubmitter struct {
	submitted []Job
	err       error
}

func (s *stubSubmitter) Submit(kind JobKind, payload url.Values) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	job := Job{Handle: "job-1", Kind: kind, Payload: payload}
	s.submitted = append(s.submitted, job)
	return job.Handle, nil
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func finishedOfficialMatch(t *testing.T) *match.Snapshot {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 8, 30, 17, 0, 0, 0, time.UTC)}
	s := match.NewState(domain.MatchOfficial, []domain.TeamSide{domain.SideRed, domain.SideGreen}, 1800, 90, clock)
	require.NoError(t, s.Activate())

	clock.now = clock.now.Add(91 * time.Second)
	require.NoError(t, s.PerformRollCall([]domain.Participant{
		{BZID: "100", Callsign: "allejo", Side: domain.SideRed, TeamID: 7, TeamName: "Fancy Pants"},
		{BZID: "300", Callsign: "brad", Side: domain.SideRed, TeamID: 7, TeamName: "Fancy Pants"},
		{BZID: "200", Callsign: "kierra", Side: domain.SideGreen, TeamID: 9, TeamName: "Purgatory"},
		{BZID: "400", Callsign: "ts", Side: domain.SideGreen, TeamID: 9, TeamName: "Purgatory"},
	}))

	s.RecordCapture(domain.SideGreen, "200", "kierra")
	s.RecordCapture(domain.SideGreen, "200", "kierra")
	s.RecordCapture(domain.SideGreen, "400", "ts")
	s.RecordCapture(domain.SideRed, "100", "allejo")

	clock.now = clock.now.Add(1709 * time.Second)
	snap, err := s.Finish("")
	require.NoError(t, err)
	return snap
}

func newTestReporter(cfg ReporterConfig) (*Reporter, *stubSubmitter, *stubNotifier) {
	queue := &stubSubmitter{}
	notifier := &stubNotifier{}
	return NewReporter(cfg, queue, notifier), queue, notifier
}

func TestSerializePayload(t *testing.T) {
	snap := finishedOfficialMatch(t)
	r, _, _ := newTestReporter(ReporterConfig{
		Enabled:       true,
		ServerAddress: "bzflag.allejo.io:5154",
		Rotational:    true,
		MapName:       "hix",
	})

	payload, err := r.Serialize(snap, "offi-20260830-FancyPants-vs-Purgatory-1700.rec.gz")
	require.NoError(t, err)

	assert.Equal(t, "reportMatch", payload.Get("query"))
	assert.Equal(t, "1800", payload.Get("matchTime"))
	assert.Equal(t, "2026-08-30 17:00:00", payload.Get("matchDate"))
	assert.Equal(t, "hix", payload.Get("mapPlayed"))
	assert.Equal(t, "bzflag.allejo.io:5154", payload.Get("server"))
	assert.Equal(t, "offi-20260830-FancyPants-vs-Purgatory-1700.rec.gz", payload.Get("replayFile"))

	assert.Equal(t, "1", payload.Get("teamOneWins"))
	assert.Equal(t, "3", payload.Get("teamTwoWins"))
	assert.Equal(t, "100,300", payload.Get("teamOnePlayers"))
	assert.Equal(t, "200,400", payload.Get("teamTwoPlayers"))
	assert.Empty(t, payload.Get("teamThreeWins"))

	var data reportData
	require.NoError(t, json.Unmarshal([]byte(payload.Get("data")), &data))
	assert.Equal(t, snap.UUID, data.UUID)
	assert.False(t, data.Canceled)
	assert.Len(t, data.Roster, 4)
	assert.Len(t, data.Events, 4)
	assert.Equal(t, 3, data.Stats["200"].Captures+data.Stats["400"].Captures)
}

func TestSerializeOmitsMapUnlessRotational(t *testing.T) {
	snap := finishedOfficialMatch(t)
	r, _, _ := newTestReporter(ReporterConfig{Enabled: true, MapName: "hix"})

	payload, err := r.Serialize(snap, "")
	require.NoError(t, err)
	assert.Empty(t, payload.Get("mapPlayed"))
	assert.Empty(t, payload.Get("replayFile"))
}

func TestSubmitReportQueuesOfficialMatch(t *testing.T) {
	snap := finishedOfficialMatch(t)
	r, queue, notifier := newTestReporter(ReporterConfig{Enabled: true})

	require.NoError(t, r.SubmitReport(snap, ""))
	require.Len(t, queue.submitted, 1)
	assert.Equal(t, JobMatchReport, queue.submitted[0].Kind)
	assert.Empty(t, notifier.messages)
}

func TestSubmitReportSkipsCanceledMatch(t *testing.T) {
	clock := &testClock{now: time.Now()}
	s := match.NewState(domain.MatchOfficial, domain.AllSides[:2], 1800, 90, clock)
	require.NoError(t, s.Activate())
	snap, err := s.Finish("Official match cancellation requested by allejo")
	require.NoError(t, err)

	r, queue, _ := newTestReporter(ReporterConfig{Enabled: true})
	require.NoError(t, r.SubmitReport(snap, ""))
	assert.Empty(t, queue.submitted)
}

func TestSubmitReportSkipsEmptyRoster(t *testing.T) {
	clock := &testClock{now: time.Now()}
	s := match.NewState(domain.MatchOfficial, domain.AllSides[:2], 1800, 90, clock)
	require.NoError(t, s.Activate())
	snap, err := s.Finish("")
	require.NoError(t, err)

	r, queue, _ := newTestReporter(ReporterConfig{Enabled: true})
	require.NoError(t, r.SubmitReport(snap, ""))
	assert.Empty(t, queue.submitted)
}

func TestSubmitReportSkipsFunMatch(t *testing.T) {
	clock := &testClock{now: time.Now()}
	s := match.NewState(domain.MatchFun, domain.AllSides[:2], 1800, 90, clock)
	require.NoError(t, s.Activate())
	snap, err := s.Finish("")
	require.NoError(t, err)

	r, queue, _ := newTestReporter(ReporterConfig{Enabled: true})
	require.NoError(t, r.SubmitReport(snap, ""))
	assert.Empty(t, queue.submitted)
}

func TestSubmitReportUnreachableTransport(t *testing.T) {
	snap := finishedOfficialMatch(t)
	r, queue, notifier := newTestReporter(ReporterConfig{Enabled: true})
	queue.err = ErrTransportUnavailable

	err := r.SubmitReport(snap, "")
	assert.ErrorIs(t, err, ErrTransportUnavailable)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "league admin")
}

type stubReportArchive struct {
	marked []string
}

func (a *stubReportArchive) MarkReported(ctx context.Context, uuid string) error {
	a.marked = append(a.marked, uuid)
	return nil
}

func TestAcceptedReportMarksArchive(t *testing.T) {
	snap := finishedOfficialMatch(t)
	r, queue, _ := newTestReporter(ReporterConfig{Enabled: true})
	archive := &stubReportArchive{}
	r.SetArchive(archive)

	require.NoError(t, r.SubmitReport(snap, ""))
	require.Len(t, queue.submitted, 1)

	r.OnComplete(queue.submitted[0], []byte(`{"status":"ok"}`))
	assert.Equal(t, []string{snap.UUID}, archive.marked)

	// a second resolution for the same handle is a no-op
	r.OnComplete(queue.submitted[0], []byte(`{"status":"ok"}`))
	assert.Len(t, archive.marked, 1)
}

func TestRejectedReportLeavesArchiveUntouched(t *testing.T) {
	snap := finishedOfficialMatch(t)
	r, queue, _ := newTestReporter(ReporterConfig{Enabled: true})
	archive := &stubReportArchive{}
	r.SetArchive(archive)

	require.NoError(t, r.SubmitReport(snap, ""))
	r.OnComplete(queue.submitted[0], []byte(`{"status":"error","message":"rejected"}`))
	assert.Empty(t, archive.marked)
}

func TestOutcomeNotifications(t *testing.T) {
	r, _, notifier := newTestReporter(ReporterConfig{Enabled: true})
	job := Job{Handle: "job-1", Kind: JobMatchReport}

	r.OnComplete(job, []byte(`{"status":"ok"}`))
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "successfully")

	r.OnComplete(job, []byte(`{"status":"error","message":"Team mismatch, match rejected"}`))
	assert.Equal(t, "Team mismatch, match rejected", notifier.messages[1])

	r.OnComplete(job, []byte("plain text answer"))
	assert.Equal(t, "plain text answer", notifier.messages[2])

	r.OnTimeout(job)
	assert.Contains(t, notifier.messages[3], "timed out")
	assert.Contains(t, notifier.messages[3], "league admin")

	r.OnError(job, 500, "internal server error")
	assert.Contains(t, notifier.messages[4], "500")
	assert.Contains(t, notifier.messages[4], "internal server error")
}
