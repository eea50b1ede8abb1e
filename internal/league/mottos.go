package league

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
)

// TeamRecord is one resolved team identity
type TeamRecord struct {
	ID   int
	Name string
}

// MottoCache maps player identities to their league team. Entries are
// refreshed asynchronously through the job queue; lookups never block and
// may return a stale value, which is accepted in exchange for availability.
type MottoCache struct {
	mu    sync.Mutex
	queue Submitter

	teams    map[string]TeamRecord
	inflight map[string]bool
	dumping  bool
}

// NewMottoCache creates an empty cache bound to the queue
func NewMottoCache(queue Submitter) *MottoCache {
	return &MottoCache{
		queue:    queue,
		teams:    make(map[string]TeamRecord),
		inflight: make(map[string]bool),
	}
}

// RequestRefresh submits a team lookup for one player. A lookup already in
// flight for the same identity is collapsed into the outstanding one.
func (m *MottoCache) RequestRefresh(bzid string) error {
	if bzid == "" {
		return nil
	}

	m.mu.Lock()
	if m.inflight[bzid] {
		m.mu.Unlock()
		return nil
	}
	m.inflight[bzid] = true
	m.mu.Unlock()

	payload := url.Values{}
	payload.Set("query", "teamName")
	payload.Set("bzid", bzid)

	if _, err := m.queue.Submit(JobTeamQuery, payload); err != nil {
		m.mu.Lock()
		delete(m.inflight, bzid)
		m.mu.Unlock()
		return fmt.Errorf("team lookup for %s: %w", bzid, err)
	}
	return nil
}

// BulkRefresh submits one query for the league's entire identity mapping,
// typically at startup. The response replaces the cache in one pass.
func (m *MottoCache) BulkRefresh() error {
	m.mu.Lock()
	if m.dumping {
		m.mu.Unlock()
		return nil
	}
	m.dumping = true
	m.mu.Unlock()

	payload := url.Values{}
	payload.Set("query", "teamNameDump")

	if _, err := m.queue.Submit(JobTeamQuery, payload); err != nil {
		m.mu.Lock()
		m.dumping = false
		m.mu.Unlock()
		return fmt.Errorf("team name dump: %w", err)
	}
	return nil
}

// Lookup returns the best-known team for a player. Unknown or teamless
// players resolve to the zero record, never an error.
func (m *MottoCache) Lookup(bzid string) (TeamRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.teams[bzid]
	return rec, ok
}

type singleLookupResponse struct {
	BZID   string `json:"bzid"`
	TeamID int    `json:"id"`
	Team   string `json:"team"`
}

type dumpEntry struct {
	TeamID  int    `json:"id"`
	Team    string `json:"team"`
	Members string `json:"members"`
}

// OnComplete applies a query response. An empty team name means the player
// is teamless and their entry is removed.
func (m *MottoCache) OnComplete(job Job, body []byte) {
	switch job.Payload.Get("query") {
	case "teamNameDump":
		m.applyDump(body)
	default:
		m.applySingle(job.Payload.Get("bzid"), body)
	}
}

func (m *MottoCache) applySingle(bzid string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, bzid)

	var resp singleLookupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Printf("league: malformed team lookup response for %s: %v", bzid, err)
		return
	}
	if resp.BZID != "" {
		bzid = resp.BZID
	}
	if resp.Team == "" {
		delete(m.teams, bzid)
		return
	}
	m.teams[bzid] = TeamRecord{ID: resp.TeamID, Name: resp.Team}
}

func (m *MottoCache) applyDump(body []byte) {
	var entries []dumpEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		m.mu.Lock()
		m.dumping = false
		m.mu.Unlock()
		log.Printf("league: malformed team dump response: %v", err)
		return
	}

	teams := make(map[string]TeamRecord)
	for _, entry := range entries {
		if entry.Team == "" {
			continue
		}
		for _, bzid := range strings.Split(entry.Members, ",") {
			bzid = strings.TrimSpace(bzid)
			if bzid != "" {
				teams[bzid] = TeamRecord{ID: entry.TeamID, Name: entry.Team}
			}
		}
	}

	m.mu.Lock()
	m.teams = teams
	m.dumping = false
	m.mu.Unlock()

	log.Printf("league: team cache refreshed, %d identities mapped", len(teams))
}

// OnTimeout clears the in-flight marker so the lookup can be retried later
func (m *MottoCache) OnTimeout(job Job) {
	m.clearInflight(job)
	log.Printf("league: team query timed out (job %s)", job.Handle)
}

// OnError clears the in-flight marker and logs the failure
func (m *MottoCache) OnError(job Job, code int, message string) {
	m.clearInflight(job)
	log.Printf("league: team query failed (job %s): %d %s", job.Handle, code, message)
}

func (m *MottoCache) clearInflight(job Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.Payload.Get("query") == "teamNameDump" {
		m.dumping = false
		return
	}
	delete(m.inflight, job.Payload.Get("bzid"))
}
