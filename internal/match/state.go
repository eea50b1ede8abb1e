package match

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/allejo/leagueoverseer/internal/domain"
)

var (
	// ErrAlreadyFinished is returned when finish is called on a match that
	// already transitioned to Ended or Canceled
	ErrAlreadyFinished = errors.New("match already finished")

	// ErrBadPhase is returned for a lifecycle transition that is not valid
	// from the current phase
	ErrBadPhase = errors.New("operation not valid in current phase")

	// ErrRollCallConflict means two players on the same side resolved to
	// different team identities; the roll call was invalidated
	ErrRollCallConflict = errors.New("roll call invalidated: mixed team identity on one side")

	// ErrRollCallEmpty means no eligible players were on the field
	ErrRollCallEmpty = errors.New("roll call invalidated: no eligible players present")
)

const (
	// DefaultRollCallDeadline is how many seconds into a match the first
	// roll call happens
	DefaultRollCallDeadline = 90

	// rollCallRetryDelay is how far an invalidated roll call is pushed back
	rollCallRetryDelay = 60
)

// State is the single live match: lifecycle phase, roster, score, stats and
// the append-only event log. It is not safe for concurrent use; the
// orchestrator serializes all access.
type State struct {
	clock Clock

	uuid          string
	kind          domain.MatchKind
	phase         domain.MatchPhase
	sides         []domain.TeamSide
	durationLimit int

	startedAt  time.Time
	pausedAt   time.Time
	pauseAccum time.Duration

	scores    map[domain.TeamSide]int
	teamNames map[domain.TeamSide]string
	teamIDs   map[domain.TeamSide]int

	roster          []domain.Participant
	rosterCommitted bool

	events []domain.MatchEvent
	stats  map[string]*domain.PlayerStats

	cancelReason string

	rollCallDeadline  int
	rollCallAbandoned bool
}

// NewState creates a fresh match in the CountdownPending phase. kind and the
// set of active sides are immutable for the life of the match.
func NewState(kind domain.MatchKind, sides []domain.TeamSide, durationLimit, rollCallDeadline int, clock Clock) *State {
	if clock == nil {
		clock = SystemClock()
	}
	if rollCallDeadline <= 0 {
		rollCallDeadline = DefaultRollCallDeadline
	}

	s := &State{
		clock:            clock,
		uuid:             uuid.NewString(),
		kind:             kind,
		phase:            domain.PhaseCountdownPending,
		sides:            append([]domain.TeamSide(nil), sides...),
		durationLimit:    durationLimit,
		scores:           make(map[domain.TeamSide]int),
		teamNames:        make(map[domain.TeamSide]string),
		teamIDs:          make(map[domain.TeamSide]int),
		stats:            make(map[string]*domain.PlayerStats),
		rollCallDeadline: rollCallDeadline,
	}
	for _, side := range s.sides {
		s.scores[side] = 0
	}
	return s
}

// UUID returns the match's unique identifier
func (s *State) UUID() string { return s.uuid }

// Kind returns whether this is an official or fun match
func (s *State) Kind() domain.MatchKind { return s.kind }

// Phase returns the current lifecycle phase
func (s *State) Phase() domain.MatchPhase { return s.phase }

// IsOfficial reports whether the match is a scored league match
func (s *State) IsOfficial() bool { return s.kind == domain.MatchOfficial }

// Sides returns the sides the current map activates, in report order
func (s *State) Sides() []domain.TeamSide {
	return append([]domain.TeamSide(nil), s.sides...)
}

// Score returns the current score for a side
func (s *State) Score(side domain.TeamSide) int { return s.scores[side] }

// DurationLimit returns the match length in seconds
func (s *State) DurationLimit() int { return s.durationLimit }

// InProgress reports whether the match is still live (countdown included)
func (s *State) InProgress() bool {
	switch s.phase {
	case domain.PhaseCountdownPending, domain.PhaseActive, domain.PhasePaused:
		return true
	}
	return false
}

// Activate moves the match from CountdownPending to Active once the host's
// countdown completes, starting the match clock.
func (s *State) Activate() error {
	if s.phase != domain.PhaseCountdownPending {
		return fmt.Errorf("activate: %w", ErrBadPhase)
	}
	s.phase = domain.PhaseActive
	s.startedAt = s.clock.Now()
	return nil
}

// Pause freezes the match clock. Score mutations are rejected until Resume.
func (s *State) Pause(actionBy string) error {
	if s.phase != domain.PhaseActive {
		return fmt.Errorf("pause: %w", ErrBadPhase)
	}
	s.phase = domain.PhasePaused
	s.pausedAt = s.clock.Now()
	s.appendEvent(domain.EventPause, domain.PauseEvent{ActionBy: actionBy})
	return nil
}

// Resume unfreezes the match clock, folding the paused interval into the
// accumulated pause duration so elapsed time excludes it exactly.
func (s *State) Resume(actionBy string) error {
	if s.phase != domain.PhasePaused {
		return fmt.Errorf("resume: %w", ErrBadPhase)
	}
	paused := s.clock.Now().Sub(s.pausedAt)
	s.pauseAccum += paused
	s.pausedAt = time.Time{}
	s.phase = domain.PhaseActive
	s.appendEvent(domain.EventResume, domain.ResumeEvent{
		ActionBy:      actionBy,
		PausedSeconds: paused.Seconds(),
	})
	return nil
}

// Finish ends the match. An empty reason means a natural or early finish
// (Ended); a non-empty reason records a cancellation (Canceled). The returned
// snapshot is an independent copy safe to hand to the reporter. Calling
// Finish twice is an error and never mutates the phase a second time.
func (s *State) Finish(reason string) (*Snapshot, error) {
	switch s.phase {
	case domain.PhaseEnded, domain.PhaseCanceled:
		return nil, ErrAlreadyFinished
	case domain.PhaseIdle:
		return nil, fmt.Errorf("finish: %w", ErrBadPhase)
	}

	if reason == "" && s.phase == domain.PhaseCountdownPending {
		// A countdown can only be aborted, never completed into Ended
		return nil, fmt.Errorf("finish: %w", ErrBadPhase)
	}

	// Fold an outstanding pause so the final duration excludes it
	if s.phase == domain.PhasePaused {
		s.pauseAccum += s.clock.Now().Sub(s.pausedAt)
		s.pausedAt = time.Time{}
	}

	duration := 0
	if !s.startedAt.IsZero() {
		duration = int((s.clock.Now().Sub(s.startedAt) - s.pauseAccum).Seconds())
		if duration > s.durationLimit {
			duration = s.durationLimit
		}
		if duration < 0 {
			duration = 0
		}
	}

	if reason != "" {
		s.phase = domain.PhaseCanceled
		s.cancelReason = reason
	} else {
		s.phase = domain.PhaseEnded
	}

	return s.snapshot(duration), nil
}

// RecordCapture increments the capping side's score and logs a capture
// event. It is a silent no-op unless the match is Active.
func (s *State) RecordCapture(side domain.TeamSide, bzid, callsign string) bool {
	if s.phase != domain.PhaseActive {
		return false
	}
	if _, ok := s.scores[side]; !ok {
		return false
	}
	s.scores[side]++
	s.statsFor(bzid).Captures++
	s.appendEvent(domain.EventCapture, domain.CaptureEvent{
		BZID:     bzid,
		Callsign: callsign,
		Side:     side,
		TeamID:   s.teamIDs[side],
	})
	return true
}

// RecordKill classifies and records a kill. Kills are recorded while Active
// or Paused; a paused match still logs what the host delivers.
func (s *State) RecordKill(killerBZID string, killerSide domain.TeamSide, victimBZID string, victimSide domain.TeamSide) bool {
	if s.phase != domain.PhaseActive && s.phase != domain.PhasePaused {
		return false
	}

	class := domain.KillNormal
	switch {
	case killerBZID == victimBZID:
		class = domain.KillSelf
		s.statsFor(killerBZID).SelfKills++
	default:
		if killerSide == victimSide {
			class = domain.KillTeam
			s.statsFor(killerBZID).TeamKills++
		}
		s.statsFor(killerBZID).Kills++
		s.statsFor(killerBZID).KillsAgainst[victimBZID]++
		s.statsFor(victimBZID).Deaths++
		s.statsFor(victimBZID).DeathsAgainst[killerBZID]++
	}

	s.appendEvent(domain.EventKill, domain.KillEvent{
		Killer: killerBZID,
		Victim: victimBZID,
		Class:  class,
	})
	return true
}

// RecordJoin logs a player joining while a match is live
func (s *State) RecordJoin(bzid, callsign, ip string, side domain.TeamSide, verified bool) bool {
	if !s.InProgress() {
		return false
	}
	s.appendEvent(domain.EventJoin, domain.JoinEvent{
		BZID:      bzid,
		Callsign:  callsign,
		IPAddress: ip,
		Side:      side,
		Verified:  verified,
	})
	return true
}

// RecordPart logs a player leaving while a match is live
func (s *State) RecordPart(bzid, callsign string, side domain.TeamSide, reason string) bool {
	if !s.InProgress() {
		return false
	}
	s.appendEvent(domain.EventPart, domain.PartEvent{
		BZID:     bzid,
		Callsign: callsign,
		Side:     side,
		Reason:   reason,
	})
	return true
}

// ShouldRollCall reports whether it is time to snapshot the roster: the
// match is active, the roster is still empty, the deadline has passed and
// roll call retries have not been exhausted.
func (s *State) ShouldRollCall() bool {
	if s.phase != domain.PhaseActive || s.rosterCommitted || s.rollCallAbandoned {
		return false
	}
	return s.ElapsedSeconds() > s.rollCallDeadline
}

// PerformRollCall commits the given candidates as the immutable roster.
// Candidates must already be filtered to non-observer league members, with
// resolved team identity filled in. If two candidates on the same side carry
// different team names, the roll call is invalidated: nothing is committed
// and the deadline is pushed back by 60 seconds, bounded by the duration
// limit. First-seen team identity for a side is authoritative.
func (s *State) PerformRollCall(candidates []domain.Participant) error {
	if len(candidates) == 0 {
		s.delayRollCall()
		return ErrRollCallEmpty
	}

	names := make(map[domain.TeamSide]string)
	ids := make(map[domain.TeamSide]int)
	for _, p := range candidates {
		seen, ok := names[p.Side]
		if !ok {
			names[p.Side] = p.TeamName
			ids[p.Side] = p.TeamID
			continue
		}
		if seen != p.TeamName {
			s.delayRollCall()
			return fmt.Errorf("%w: %q is not part of %q on the %s side",
				ErrRollCallConflict, p.Callsign, seen, p.Side)
		}
	}

	s.roster = make([]domain.Participant, len(candidates))
	for i, p := range candidates {
		p.TeamName = names[p.Side]
		p.TeamID = ids[p.Side]
		s.roster[i] = p
		s.statsFor(p.BZID)
	}
	for side, name := range names {
		s.teamNames[side] = name
		s.teamIDs[side] = ids[side]
	}
	s.rosterCommitted = true
	return nil
}

func (s *State) delayRollCall() {
	s.roster = nil
	s.rollCallDeadline += rollCallRetryDelay
	if s.rollCallDeadline >= s.durationLimit {
		// Past the match length there is no point retrying; the match
		// proceeds unrecorded
		s.rollCallAbandoned = true
	}
}

// RollCallAbandoned reports whether roll call retries ran out
func (s *State) RollCallAbandoned() bool { return s.rollCallAbandoned }

// RosterEmpty reports whether the roster has been committed yet
func (s *State) RosterEmpty() bool { return len(s.roster) == 0 }

// Roster returns a copy of the committed roster
func (s *State) Roster() []domain.Participant {
	return append([]domain.Participant(nil), s.roster...)
}

// TeamName returns the committed team identity for a side
func (s *State) TeamName(side domain.TeamSide) string { return s.teamNames[side] }

// CancelReason returns the reason recorded on cancellation, if any
func (s *State) CancelReason() string { return s.cancelReason }

// elapsed is the live match time excluding pauses. During a pause it is
// frozen at the instant the pause began.
func (s *State) elapsed() time.Duration {
	if s.startedAt.IsZero() {
		return -1
	}
	if s.phase == domain.PhasePaused {
		return s.pausedAt.Sub(s.startedAt) - s.pauseAccum
	}
	return s.clock.Now().Sub(s.startedAt) - s.pauseAccum
}

// ElapsedSeconds returns seconds of play so far, or -1 when no match timer
// is running
func (s *State) ElapsedSeconds() int {
	if s.phase != domain.PhaseActive && s.phase != domain.PhasePaused {
		return -1
	}
	e := s.elapsed()
	if e < 0 {
		return -1
	}
	return int(e.Seconds())
}

// MatchTime formats the elapsed match time as MM:SS for event log stamps.
// Returns the "-00:00" sentinel when no timer is running.
func (s *State) MatchTime() string {
	sec := s.ElapsedSeconds()
	if sec < 0 {
		return "-00:00"
	}
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}

// RemainingFormatted formats the time left as MM:SS, clamped at zero.
// Returns the "-00:00" sentinel when no timer is running.
func (s *State) RemainingFormatted() string {
	sec := s.ElapsedSeconds()
	if sec < 0 {
		return "-00:00"
	}
	left := s.durationLimit - sec
	if left < 0 {
		left = 0
	}
	return fmt.Sprintf("%02d:%02d", left/60, left%60)
}

func (s *State) statsFor(bzid string) *domain.PlayerStats {
	ps, ok := s.stats[bzid]
	if !ok {
		ps = domain.NewPlayerStats(bzid)
		s.stats[bzid] = ps
	}
	return ps
}

func (s *State) appendEvent(eventType string, data interface{}) {
	s.events = append(s.events, domain.MatchEvent{
		Type: eventType,
		Time: s.MatchTime(),
		Data: data,
	})
}
