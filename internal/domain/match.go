package domain

// MatchKind distinguishes scored league matches from casual play
type MatchKind string

const (
	MatchOfficial MatchKind = "official"
	MatchFun      MatchKind = "fun"
)

// MatchPhase is the lifecycle phase of the single live match
type MatchPhase string

const (
	PhaseIdle             MatchPhase = "idle"
	PhaseCountdownPending MatchPhase = "countdown"
	PhaseActive           MatchPhase = "active"
	PhasePaused           MatchPhase = "paused"
	PhaseEnded            MatchPhase = "ended"
	PhaseCanceled         MatchPhase = "canceled"
)

// TeamSide is one of the colored sides a map can activate (2 to 4 of them)
type TeamSide string

const (
	SideRed      TeamSide = "red"
	SideGreen    TeamSide = "green"
	SideBlue     TeamSide = "blue"
	SidePurple   TeamSide = "purple"
	SideObserver TeamSide = "observer"
	SideNone     TeamSide = "none"
)

// AllSides is the fixed order sides map onto teamOne..teamFour report keys
var AllSides = []TeamSide{SideRed, SideGreen, SideBlue, SidePurple}

// ParseSide converts a config or wire string to a TeamSide
func ParseSide(s string) TeamSide {
	switch s {
	case "red":
		return SideRed
	case "green":
		return SideGreen
	case "blue":
		return SideBlue
	case "purple":
		return SidePurple
	case "observer":
		return SideObserver
	default:
		return SideNone
	}
}

// Participant is a roster entry committed at roll call
type Participant struct {
	BZID      string   `json:"bzid"`
	Callsign  string   `json:"callsign"`
	IPAddress string   `json:"ip_address,omitempty"`
	Side      TeamSide `json:"side"`
	TeamID    int      `json:"team_id,omitempty"`
	TeamName  string   `json:"team_name,omitempty"`
}

// PlayerStats accumulates a player's match statistics keyed by identity
type PlayerStats struct {
	BZID          string         `json:"bzid"`
	Kills         int            `json:"kills"`
	Deaths        int            `json:"deaths"`
	SelfKills     int            `json:"self_kills"`
	TeamKills     int            `json:"team_kills"`
	Captures      int            `json:"captures"`
	KillsAgainst  map[string]int `json:"kills_against,omitempty"`
	DeathsAgainst map[string]int `json:"deaths_against,omitempty"`
}

// NewPlayerStats creates an empty stat block for a player
func NewPlayerStats(bzid string) *PlayerStats {
	return &PlayerStats{
		BZID:          bzid,
		KillsAgainst:  make(map[string]int),
		DeathsAgainst: make(map[string]int),
	}
}
