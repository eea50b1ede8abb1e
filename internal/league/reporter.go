package league

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/allejo/leagueoverseer/internal/domain"
	"github.com/allejo/leagueoverseer/internal/match"
)

// sideOrdinals maps roster positions in Snapshot.Sides to the key prefixes
// the league service expects
var sideOrdinals = []string{"teamOne", "teamTwo", "teamThree", "teamFour"}

// Notifier broadcasts a message to everyone on the server
type Notifier interface {
	Broadcast(message string)
}

// Submitter is the slice of the queue the reporter needs
type Submitter interface {
	Submit(kind JobKind, payload url.Values) (string, error)
}

// ReportArchive marks locally archived matches once the league accepts them
type ReportArchive interface {
	MarkReported(ctx context.Context, uuid string) error
}

// ReporterConfig carries the report-shaping settings
type ReporterConfig struct {
	Enabled       bool
	ServerAddress string
	Rotational    bool
	MapName       string
}

// Reporter serializes finished matches and drives them through the job
// queue, translating each outcome into a player-facing notice. Reports are
// at-most-once: a failed delivery is escalated to humans, never retried.
type Reporter struct {
	cfg   ReporterConfig
	queue Submitter

	mu       sync.Mutex
	notifier Notifier
	archive  ReportArchive
	pending  map[string]string // job handle -> match uuid
}

// NewReporter creates a reporter bound to the queue and the broadcast sink.
// notifier may be nil until a feed connection exists; see SetNotifier.
func NewReporter(cfg ReporterConfig, queue Submitter, notifier Notifier) *Reporter {
	return &Reporter{cfg: cfg, queue: queue, notifier: notifier, pending: make(map[string]string)}
}

// SetArchive wires the local archive so accepted reports are marked as such
func (r *Reporter) SetArchive(a ReportArchive) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archive = a
}

// SetMapName updates the map reported for rotational servers
func (r *Reporter) SetMapName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.MapName = name
}

// SetNotifier swaps the broadcast sink, used when the feed reconnects
func (r *Reporter) SetNotifier(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

func (r *Reporter) broadcast(message string) {
	r.mu.Lock()
	n := r.notifier
	r.mu.Unlock()

	if n == nil {
		log.Printf("league: no feed attached, notice dropped: %s", message)
		return
	}
	n.Broadcast(message)
}

// reportData is the structured body carried in the payload's data field
type reportData struct {
	UUID         string                         `json:"uuid"`
	Kind         domain.MatchKind               `json:"kind"`
	Canceled     bool                           `json:"canceled"`
	CancelReason string                         `json:"cancelReason,omitempty"`
	Duration     int                            `json:"duration"`
	Scores       map[domain.TeamSide]int        `json:"scores"`
	Roster       []domain.Participant           `json:"roster"`
	Events       []domain.MatchEvent            `json:"events"`
	Stats        map[string]*domain.PlayerStats `json:"stats"`
}

// Serialize builds the form payload for a finished match. Side-specific
// keys are present only for the sides the current map activates.
func (r *Reporter) Serialize(snap *match.Snapshot, replayFile string) (url.Values, error) {
	payload := url.Values{}
	payload.Set("query", "reportMatch")
	payload.Set("matchTime", fmt.Sprintf("%d", snap.Duration))
	payload.Set("matchDate", snap.StartedAt.UTC().Format("2006-01-02 15:04:05"))

	if r.cfg.ServerAddress != "" {
		payload.Set("server", r.cfg.ServerAddress)
	}
	r.mu.Lock()
	mapName := r.cfg.MapName
	r.mu.Unlock()
	if r.cfg.Rotational && mapName != "" {
		payload.Set("mapPlayed", mapName)
	}
	if replayFile != "" {
		payload.Set("replayFile", replayFile)
	}

	for i, side := range snap.Sides {
		if i >= len(sideOrdinals) {
			return nil, fmt.Errorf("serialize: %d sides exceeds the report format", len(snap.Sides))
		}
		payload.Set(sideOrdinals[i]+"Wins", fmt.Sprintf("%d", snap.Scores[side]))

		var ids []string
		for _, p := range snap.Roster {
			if p.Side == side {
				ids = append(ids, p.BZID)
			}
		}
		payload.Set(sideOrdinals[i]+"Players", strings.Join(ids, ","))
	}

	data, err := json.Marshal(reportData{
		UUID:         snap.UUID,
		Kind:         snap.Kind,
		Canceled:     snap.Canceled,
		CancelReason: snap.CancelReason,
		Duration:     snap.Duration,
		Scores:       snap.Scores,
		Roster:       snap.Roster,
		Events:       snap.Events,
		Stats:        snap.Stats,
	})
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	payload.Set("data", string(data))

	return payload, nil
}

// SubmitReport sends a finished Official match to the league service. Fun
// matches, canceled matches and matches with no committed roster produce no
// report; they are only preserved locally.
func (r *Reporter) SubmitReport(snap *match.Snapshot, replayFile string) error {
	if !r.cfg.Enabled {
		log.Printf("league: match reporting disabled, match %s not reported", snap.UUID)
		return nil
	}
	if snap.Kind != domain.MatchOfficial {
		return nil
	}
	if snap.Canceled {
		log.Printf("league: match %s was canceled, no report submitted", snap.UUID)
		return nil
	}
	if snap.RosterEmpty() {
		log.Printf("league: match %s ended with no recorded roster, no report submitted", snap.UUID)
		return nil
	}

	payload, err := r.Serialize(snap, replayFile)
	if err != nil {
		return err
	}

	handle, err := r.queue.Submit(JobMatchReport, payload)
	if err != nil {
		r.broadcast("The match could not be reported: the league service is unreachable. Please contact a league admin to report this match manually.")
		return fmt.Errorf("submit report: %w", err)
	}

	r.mu.Lock()
	r.pending[handle] = snap.UUID
	r.mu.Unlock()

	log.Printf("league: match %s submitted for reporting (job %s)", snap.UUID, handle)
	return nil
}

// takePending resolves a job handle back to the match it carried
func (r *Reporter) takePending(handle string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uuid, ok := r.pending[handle]
	delete(r.pending, handle)
	return uuid, ok
}

func (r *Reporter) markReported(handle string) {
	uuid, ok := r.takePending(handle)
	if !ok {
		return
	}

	r.mu.Lock()
	archive := r.archive
	r.mu.Unlock()
	if archive == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := archive.MarkReported(ctx, uuid); err != nil {
		log.Printf("league: marking match %s reported: %v", uuid, err)
	}
}

type reportResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OnComplete handles the league service's answer to a report
func (r *Reporter) OnComplete(job Job, body []byte) {
	var resp reportResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		// not structured, but the service did take the request
		r.markReported(job.Handle)
		message := strings.TrimSpace(string(body))
		if message == "" {
			message = "The league service accepted the report but sent no confirmation."
		}
		r.broadcast(message)
		return
	}

	switch resp.Status {
	case "ok", "accepted", "success":
		r.markReported(job.Handle)
		r.broadcast("Match report has been sent to the league successfully.")
	default:
		r.takePending(job.Handle)
		message := resp.Message
		if message == "" {
			message = "The league service rejected the match report."
		}
		r.broadcast(message)
	}
}

// OnTimeout tells the players their report never made it
func (r *Reporter) OnTimeout(job Job) {
	r.takePending(job.Handle)
	log.Printf("league: report job %s timed out", job.Handle)
	r.broadcast("The match report could not be delivered: the league service timed out. Please contact a league admin to report this match manually.")
}

// OnError relays a delivery failure to the players
func (r *Reporter) OnError(job Job, code int, message string) {
	r.takePending(job.Handle)
	log.Printf("league: report job %s failed: %d %s", job.Handle, code, message)
	r.broadcast(fmt.Sprintf("The match report could not be delivered (error %d: %s). Please contact a league admin to report this match manually.", code, message))
}
