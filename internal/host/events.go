package host

import (
	"encoding/json"
	"fmt"
	"time"
)

// Feed event types emitted by the game server
const (
	EventPlayerJoin   = "player_join"
	EventPlayerPart   = "player_part"
	EventFlagCapture  = "flag_capture"
	EventPlayerDeath  = "player_death"
	EventGameStart    = "game_start"
	EventGameEnd      = "game_end"
	EventGamePause    = "game_pause"
	EventGameResume   = "game_resume"
	EventSlashCommand = "slash_command"
	EventMapChange    = "map_change"
	EventTick         = "tick"
)

// Envelope is the framing every feed message arrives in
type Envelope struct {
	Type string          `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

// PlayerRef identifies one player as the game server sees them
type PlayerRef struct {
	Slot      int    `json:"slot"`
	Callsign  string `json:"callsign"`
	BZID      string `json:"bzid"`
	Team      string `json:"team"`
	IPAddress string `json:"ip,omitempty"`
	Verified  bool   `json:"verified,omitempty"`
}

// PlayerJoinEvent is sent when a player connects
type PlayerJoinEvent struct {
	Player PlayerRef `json:"player"`
}

// PlayerPartEvent is sent when a player disconnects
type PlayerPartEvent struct {
	Player PlayerRef `json:"player"`
	Reason string    `json:"reason,omitempty"`
}

// FlagCaptureEvent is sent when a team's flag is captured
type FlagCaptureEvent struct {
	Capper PlayerRef `json:"capper"`
}

// PlayerDeathEvent is sent for every kill, including selfs
type PlayerDeathEvent struct {
	Killer PlayerRef `json:"killer"`
	Victim PlayerRef `json:"victim"`
}

// GameStartEvent is sent when the server's countdown completes
type GameStartEvent struct {
	Duration int `json:"duration"`
}

// GameEndEvent is sent when the server's game clock expires or the game is
// ended early
type GameEndEvent struct {
	Duration int `json:"duration"`
}

// GamePauseEvent is sent when the game clock pauses
type GamePauseEvent struct {
	ActionBy PlayerRef `json:"action_by"`
}

// GameResumeEvent is sent when the game clock resumes
type GameResumeEvent struct {
	ActionBy PlayerRef `json:"action_by"`
}

// SlashCommandEvent is sent for every registered slash command a player runs
type SlashCommandEvent struct {
	Player  PlayerRef `json:"player"`
	Command string    `json:"command"`
	Args    []string  `json:"args,omitempty"`
}

// MapChangeEvent is sent when a rotational server loads a new map config
type MapChangeEvent struct {
	ConfigFile string   `json:"config_file"`
	Teams      []string `json:"teams"`
}

// TickEvent fires periodically regardless of game activity
type TickEvent struct {
	Players int `json:"players"`
}

// Decode unwraps an envelope into its typed payload
func Decode(env Envelope) (interface{}, error) {
	var payload interface{}
	switch env.Type {
	case EventPlayerJoin:
		payload = &PlayerJoinEvent{}
	case EventPlayerPart:
		payload = &PlayerPartEvent{}
	case EventFlagCapture:
		payload = &FlagCaptureEvent{}
	case EventPlayerDeath:
		payload = &PlayerDeathEvent{}
	case EventGameStart:
		payload = &GameStartEvent{}
	case EventGameEnd:
		payload = &GameEndEvent{}
	case EventGamePause:
		payload = &GamePauseEvent{}
	case EventGameResume:
		payload = &GameResumeEvent{}
	case EventSlashCommand:
		payload = &SlashCommandEvent{}
	case EventMapChange:
		payload = &MapChangeEvent{}
	case EventTick:
		payload = &TickEvent{}
	default:
		return nil, fmt.Errorf("unknown feed event type %q", env.Type)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return nil, fmt.Errorf("decoding %s event: %w", env.Type, err)
		}
	}
	return payload, nil
}
