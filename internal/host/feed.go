package host

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Host is the command surface the overseer uses to act on the game server
type Host interface {
	Broadcast(message string)
	Tell(slot int, message string)
	StartCountdown(seconds int)
	PauseCountdown()
	ResumeCountdown()
	EndGame()
	MoveToTeam(slot int, team string)
}

// Command is one instruction sent back over the feed
type Command struct {
	Action  string `json:"action"`
	Target  int    `json:"target,omitempty"`
	Message string `json:"message,omitempty"`
	Seconds int    `json:"seconds,omitempty"`
	Team    string `json:"team,omitempty"`
}

// Feed is a client for a game server's bidirectional event feed: serialized
// game events in, control commands out. One Feed attaches to one server.
type Feed struct {
	conn   *websocket.Conn
	events chan Envelope

	writeMu sync.Mutex
	once    sync.Once
	closed  chan struct{}
}

// Dial attaches to a game server's feed endpoint, authenticating with a
// signed token.
func Dial(ctx context.Context, endpoint, token string) (*Feed, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("feed handshake rejected (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("connecting to %s: %w", endpoint, err)
	}

	f := &Feed{
		conn:   conn,
		events: make(chan Envelope, 256),
		closed: make(chan struct{}),
	}
	go f.readPump()
	go f.pingLoop()
	return f, nil
}

// Events returns the inbound event stream. The channel closes when the
// connection drops or Close is called.
func (f *Feed) Events() <-chan Envelope {
	return f.events
}

// Close tears down the connection
func (f *Feed) Close() error {
	f.once.Do(func() { close(f.closed) })
	return f.conn.Close()
}

func (f *Feed) readPump() {
	defer func() {
		close(f.events)
		f.Close()
	}()

	f.conn.SetReadLimit(1 << 16)
	f.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	f.conn.SetPongHandler(func(string) error {
		f.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var env Envelope
		if err := f.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				log.Printf("host: feed read error: %v", err)
			}
			return
		}

		select {
		case f.events <- env:
		default:
			log.Printf("host: feed buffer full, dropping %s event", env.Type)
		}
	}
}

func (f *Feed) pingLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-f.closed:
			return
		case <-ticker.C:
			f.writeMu.Lock()
			f.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := f.conn.WriteMessage(websocket.PingMessage, nil)
			f.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Send delivers one command to the game server. Errors are logged, not
// returned: a dropped command on a dead feed is recovered by the reconnect
// loop, not the caller.
func (f *Feed) Send(cmd Command) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := f.conn.WriteJSON(cmd); err != nil {
		log.Printf("host: sending %s command: %v", cmd.Action, err)
	}
}

// Broadcast shows a message to everyone on the server
func (f *Feed) Broadcast(message string) {
	f.Send(Command{Action: "broadcast", Target: -1, Message: message})
}

// Tell shows a message to a single player
func (f *Feed) Tell(slot int, message string) {
	f.Send(Command{Action: "tell", Target: slot, Message: message})
}

// StartCountdown begins the server's match countdown
func (f *Feed) StartCountdown(seconds int) {
	f.Send(Command{Action: "start_countdown", Seconds: seconds})
}

// PauseCountdown pauses the server's game clock
func (f *Feed) PauseCountdown() {
	f.Send(Command{Action: "pause_countdown"})
}

// ResumeCountdown resumes the server's game clock
func (f *Feed) ResumeCountdown() {
	f.Send(Command{Action: "resume_countdown"})
}

// EndGame ends the current game immediately
func (f *Feed) EndGame() {
	f.Send(Command{Action: "end_game"})
}

// MoveToTeam forces a player onto a team
func (f *Feed) MoveToTeam(slot int, team string) {
	f.Send(Command{Action: "move_player", Target: slot, Team: team})
}
