package domain

// Match event types. These are events defined by the overseer that carry
// meaningful data for the league site, not raw host events.
const (
	EventCapture = "capture"
	EventKill    = "kill"
	EventJoin    = "join"
	EventPart    = "part"
	EventPause   = "pause"
	EventResume  = "resume"
)

// MatchEvent is an entry in a match's append-only event log. Time is the
// elapsed match time in MM:SS, adjusted for pauses. Data holds the
// type-specific payload, one struct per event type below.
type MatchEvent struct {
	Type string      `json:"type"`
	Time string      `json:"time"`
	Data interface{} `json:"data,omitempty"`
}

// CaptureEvent is recorded when a side captures an enemy flag
type CaptureEvent struct {
	BZID     string   `json:"bzid"`
	Callsign string   `json:"callsign,omitempty"`
	Side     TeamSide `json:"side"`
	TeamID   int      `json:"team_id,omitempty"`
}

// KillClass classifies a kill for stat bookkeeping
type KillClass string

const (
	KillNormal KillClass = "normal"
	KillSelf   KillClass = "self"
	KillTeam   KillClass = "team"
)

// KillEvent is recorded when a player is killed
type KillEvent struct {
	Killer string    `json:"killer"`
	Victim string    `json:"victim"`
	Class  KillClass `json:"class"`
}

// JoinEvent is recorded when a player joins the server
type JoinEvent struct {
	BZID      string   `json:"bzid"`
	Callsign  string   `json:"callsign"`
	IPAddress string   `json:"ip_address,omitempty"`
	Side      TeamSide `json:"side"`
	Verified  bool     `json:"verified"`
}

// PartEvent is recorded when a player leaves the server
type PartEvent struct {
	BZID     string   `json:"bzid"`
	Callsign string   `json:"callsign"`
	Side     TeamSide `json:"side"`
	Reason   string   `json:"reason,omitempty"`
}

// PauseEvent is recorded when the match clock is paused
type PauseEvent struct {
	ActionBy string `json:"action_by,omitempty"`
}

// ResumeEvent is recorded when the match clock resumes, carrying how long
// the match sat paused
type ResumeEvent struct {
	ActionBy      string  `json:"action_by,omitempty"`
	PausedSeconds float64 `json:"paused_seconds"`
}
