package match

import (
	"time"

	"github.com/allejo/leagueoverseer/internal/domain"
)

// DefaultRejoinGrace is how long a departed player may rejoin their old
// side without disturbing the roster.
const DefaultRejoinGrace = 60 * time.Second

type departure struct {
	side   domain.TeamSide
	atTime time.Time
}

// DepartureLog remembers which side recently-departed players were on so a
// quick rejoin (a crash, a connection drop) puts them back where they were.
// Not safe for concurrent use; the orchestrator serializes access.
type DepartureLog struct {
	grace   time.Duration
	clock   Clock
	entries map[string]departure
}

// NewDepartureLog creates a log with the given grace window. A zero grace
// uses the default.
func NewDepartureLog(grace time.Duration, clock Clock) *DepartureLog {
	if grace <= 0 {
		grace = DefaultRejoinGrace
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &DepartureLog{
		grace:   grace,
		clock:   clock,
		entries: make(map[string]departure),
	}
}

// Record notes that a player left from the given side
func (d *DepartureLog) Record(bzid string, side domain.TeamSide) {
	if bzid == "" {
		return
	}
	d.entries[bzid] = departure{side: side, atTime: d.clock.Now()}
}

// Recent returns the side a player recently departed from, if the grace
// window has not expired. A hit refreshes the window; expired entries are
// pruned as they are encountered.
func (d *DepartureLog) Recent(bzid string) (domain.TeamSide, bool) {
	entry, ok := d.entries[bzid]
	if !ok {
		return domain.SideNone, false
	}
	if d.clock.Now().Sub(entry.atTime) > d.grace {
		delete(d.entries, bzid)
		return domain.SideNone, false
	}
	entry.atTime = d.clock.Now()
	d.entries[bzid] = entry
	return entry.side, true
}

// Clear drops all remembered departures, typically at match end
func (d *DepartureLog) Clear() {
	d.entries = make(map[string]departure)
}
