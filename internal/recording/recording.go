package recording

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/klauspost/compress/gzip"

	"github.com/allejo/leagueoverseer/internal/domain"
	"github.com/allejo/leagueoverseer/internal/match"
)

// FileName builds the recording name for a finished match. Official matches
// carry the team names so admins can find a specific match by eye; fun
// matches are named by timestamp alone. Canceled matches are flagged in the
// name so nobody replays them looking for a result.
func FileName(snap *match.Snapshot) string {
	stamp := snap.StartedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	date := stamp.UTC().Format("20060102")
	clock := stamp.UTC().Format("1504")

	if snap.Kind != domain.MatchOfficial {
		return fmt.Sprintf("fun-%s-%s.rec.gz", date, clock)
	}

	var teams []string
	for _, side := range snap.Sides {
		if name := sanitizeTeamName(snap.TeamNames[side]); name != "" {
			teams = append(teams, name)
		}
	}

	name := fmt.Sprintf("offi-%s", date)
	if len(teams) >= 2 {
		name += "-" + strings.Join(teams, "-vs-")
	}
	name += "-" + clock
	if snap.Canceled {
		name += "-Canceled"
	}
	return name + ".rec.gz"
}

// sanitizeTeamName strips everything but letters and digits so team names
// are safe in a file name
func sanitizeTeamName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Header is the first line of every recording
type Header struct {
	UUID      string           `json:"uuid"`
	Kind      domain.MatchKind `json:"kind"`
	StartedAt time.Time        `json:"startedAt"`
	Duration  int              `json:"duration"`
	Canceled  bool             `json:"canceled"`
}

// Recorder writes finished matches to gzip-compressed JSON-lines files:
// one header line, then one line per match event.
type Recorder struct {
	dir string
}

// NewRecorder creates a recorder writing into dir, creating it if needed.
// An empty dir disables recording.
func NewRecorder(dir string) (*Recorder, error) {
	if dir == "" {
		return &Recorder{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating recording directory: %w", err)
	}
	return &Recorder{dir: dir}, nil
}

// Enabled reports whether recordings are being written
func (r *Recorder) Enabled() bool { return r.dir != "" }

// Save writes the match to disk and returns the recording's file name.
// Returns an empty name when recording is disabled.
func (r *Recorder) Save(snap *match.Snapshot) (string, error) {
	if !r.Enabled() {
		return "", nil
	}

	name := FileName(snap)
	f, err := os.Create(filepath.Join(r.dir, name))
	if err != nil {
		return "", fmt.Errorf("creating recording: %w", err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	enc := json.NewEncoder(zw)

	if err := enc.Encode(Header{
		UUID:      snap.UUID,
		Kind:      snap.Kind,
		StartedAt: snap.StartedAt,
		Duration:  snap.Duration,
		Canceled:  snap.Canceled,
	}); err != nil {
		zw.Close()
		return "", fmt.Errorf("writing recording header: %w", err)
	}

	for _, event := range snap.Events {
		if err := enc.Encode(event); err != nil {
			zw.Close()
			return "", fmt.Errorf("writing recording event: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finishing recording: %w", err)
	}
	return name, nil
}

// Load reads a recording back, returning its header and events. Event data
// comes back as generic JSON values; Load exists for admin tooling, not the
// live match path.
func (r *Recorder) Load(name string) (*Header, []domain.MatchEvent, error) {
	f, err := os.Open(filepath.Join(r.dir, name))
	if err != nil {
		return nil, nil, fmt.Errorf("opening recording: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("reading recording: %w", err)
	}
	defer zr.Close()

	dec := json.NewDecoder(zr)

	var h Header
	if err := dec.Decode(&h); err != nil {
		return nil, nil, fmt.Errorf("reading recording header: %w", err)
	}

	var events []domain.MatchEvent
	for dec.More() {
		var event domain.MatchEvent
		if err := dec.Decode(&event); err != nil {
			return nil, nil, fmt.Errorf("reading recording event: %w", err)
		}
		events = append(events, event)
	}
	return &h, events, nil
}
