package match

import (
	"time"

	"github.com/allejo/leagueoverseer/internal/domain"
)

// Snapshot is the frozen outcome of a finished match: everything the
// reporter and the archive need, decoupled from the live State.
type Snapshot struct {
	UUID          string
	Kind          domain.MatchKind
	Canceled      bool
	CancelReason  string
	StartedAt     time.Time
	Duration      int
	DurationLimit int
	Sides         []domain.TeamSide
	Scores        map[domain.TeamSide]int
	TeamNames     map[domain.TeamSide]string
	TeamIDs       map[domain.TeamSide]int
	Roster        []domain.Participant
	Events        []domain.MatchEvent
	Stats         map[string]*domain.PlayerStats
}

// RosterEmpty reports whether no roll call ever committed a roster
func (sn *Snapshot) RosterEmpty() bool { return len(sn.Roster) == 0 }

func (s *State) snapshot(duration int) *Snapshot {
	sn := &Snapshot{
		UUID:          s.uuid,
		Kind:          s.kind,
		Canceled:      s.phase == domain.PhaseCanceled,
		CancelReason:  s.cancelReason,
		StartedAt:     s.startedAt,
		Duration:      duration,
		DurationLimit: s.durationLimit,
		Sides:         append([]domain.TeamSide(nil), s.sides...),
		Scores:        make(map[domain.TeamSide]int, len(s.scores)),
		TeamNames:     make(map[domain.TeamSide]string, len(s.teamNames)),
		TeamIDs:       make(map[domain.TeamSide]int, len(s.teamIDs)),
		Roster:        append([]domain.Participant(nil), s.roster...),
		Events:        append([]domain.MatchEvent(nil), s.events...),
		Stats:         make(map[string]*domain.PlayerStats, len(s.stats)),
	}
	for side, score := range s.scores {
		sn.Scores[side] = score
	}
	for side, name := range s.teamNames {
		sn.TeamNames[side] = name
	}
	for side, id := range s.teamIDs {
		sn.TeamIDs[side] = id
	}
	for bzid, ps := range s.stats {
		copied := *ps
		copied.KillsAgainst = make(map[string]int, len(ps.KillsAgainst))
		for k, v := range ps.KillsAgainst {
			copied.KillsAgainst[k] = v
		}
		copied.DeathsAgainst = make(map[string]int, len(ps.DeathsAgainst))
		for k, v := range ps.DeathsAgainst {
			copied.DeathsAgainst[k] = v
		}
		sn.Stats[bzid] = &copied
	}
	return sn
}
