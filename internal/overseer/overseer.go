package overseer

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/allejo/leagueoverseer/internal/config"
	"github.com/allejo/leagueoverseer/internal/domain"
	"github.com/allejo/leagueoverseer/internal/host"
	"github.com/allejo/leagueoverseer/internal/league"
	"github.com/allejo/leagueoverseer/internal/match"
	"github.com/allejo/leagueoverseer/internal/recording"
)

// Archiver is the slice of the storage layer the overseer writes to
type Archiver interface {
	SaveMatch(ctx context.Context, snap *match.Snapshot, replayFile string, reported bool) error
}

// Overseer routes host game events into the match state machine and the
// league components. All event handling is serialized behind one mutex: the
// feed reader and the transport resolution goroutine both funnel through
// here, which gives the single-logical-thread model the rest of the system
// assumes.
type Overseer struct {
	mu sync.Mutex

	cfg     *config.Config
	cfgPath string

	host     host.Host
	reporter *league.Reporter
	mottos   *league.MottoCache
	archive  Archiver
	recorder *recording.Recorder
	clock    match.Clock

	current    *match.State
	departures *match.DepartureLog
	players    map[int]host.PlayerRef
	sides      []domain.TeamSide
	mapName    string
}

// New wires an overseer together. archive may be nil when no database is
// configured; recorder may be disabled but not nil.
func New(cfg *config.Config, cfgPath string, h host.Host, reporter *league.Reporter,
	mottos *league.MottoCache, archive Archiver, recorder *recording.Recorder, clock match.Clock) *Overseer {
	if clock == nil {
		clock = match.SystemClock()
	}
	o := &Overseer{
		cfg:        cfg,
		cfgPath:    cfgPath,
		host:       h,
		reporter:   reporter,
		mottos:     mottos,
		archive:    archive,
		recorder:   recorder,
		clock:      clock,
		departures: match.NewDepartureLog(cfg.Match.RejoinGrace, clock),
		players:    make(map[int]host.PlayerRef),
		sides:      []domain.TeamSide{domain.SideRed, domain.SideGreen},
	}
	if cfg.League.Rotational && cfg.League.MapchangePath != "" {
		if name, err := ReadMapName(cfg.League.MapchangePath); err != nil {
			log.Printf("overseer: reading mapchange file: %v", err)
		} else {
			o.mapName = name
			reporter.SetMapName(name)
		}
	}
	return o
}

// ReadMapName extracts the current map from a rotational server's mapchange
// file: the first line, with any trailing ".conf" stripped.
func ReadMapName(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading mapchange file: %w", err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("mapchange file %s is empty", path)
	}
	return strings.TrimSuffix(filepath.Base(line), ".conf"), nil
}

// MapName returns the map currently reported to the league
func (o *Overseer) MapName() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mapName
}

// Run consumes feed events until the channel closes or the context is done
func (o *Overseer) Run(ctx context.Context, events <-chan host.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-events:
			if !ok {
				return
			}
			o.HandleEvent(env)
		}
	}
}

// HandleEvent decodes and applies one feed event
func (o *Overseer) HandleEvent(env host.Envelope) {
	payload, err := host.Decode(env)
	if err != nil {
		log.Printf("overseer: %v", err)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	switch event := payload.(type) {
	case *host.PlayerJoinEvent:
		o.handleJoin(event)
	case *host.PlayerPartEvent:
		o.handlePart(event)
	case *host.FlagCaptureEvent:
		o.handleCapture(event)
	case *host.PlayerDeathEvent:
		o.handleDeath(event)
	case *host.GameStartEvent:
		o.handleGameStart(event)
	case *host.GameEndEvent:
		o.handleGameEnd()
	case *host.GamePauseEvent:
		o.handlePause(event)
	case *host.GameResumeEvent:
		o.handleResume(event)
	case *host.SlashCommandEvent:
		o.handleCommand(event)
	case *host.MapChangeEvent:
		o.handleMapChange(event)
	case *host.TickEvent:
		o.handleTick(event)
	}
}

func (o *Overseer) handleJoin(event *host.PlayerJoinEvent) {
	p := event.Player
	o.players[p.Slot] = p
	side := domain.ParseSide(p.Team)

	if p.Verified && p.BZID != "" {
		if err := o.mottos.RequestRefresh(p.BZID); err != nil {
			log.Printf("overseer: %v", err)
		}
	}

	if o.current == nil || !o.current.InProgress() {
		return
	}

	o.current.RecordJoin(p.BZID, p.Callsign, p.IPAddress, side, p.Verified)
	o.host.Tell(p.Slot, fmt.Sprintf("There is currently %s match in progress, please be respectful.",
		matchArticle(o.current.Kind())))

	if side == domain.SideObserver || side == domain.SideNone {
		return
	}

	// A player coming back inside the grace window keeps their old side;
	// anyone else joining a live official match is steered to observer.
	if prevSide, ok := o.departures.Recent(p.BZID); ok {
		if prevSide != side {
			o.host.MoveToTeam(p.Slot, string(prevSide))
		}
		return
	}

	if o.cfg.Match.AutoTeam && o.current.IsOfficial() {
		if _, known := o.mottos.Lookup(p.BZID); !known {
			o.host.MoveToTeam(p.Slot, string(domain.SideObserver))
			o.host.Tell(p.Slot, "You may not join an official match in progress; you have been moved to observer.")
		}
	}
}

func (o *Overseer) handlePart(event *host.PlayerPartEvent) {
	p := event.Player
	delete(o.players, p.Slot)
	side := domain.ParseSide(p.Team)

	if o.current == nil || !o.current.InProgress() {
		return
	}

	o.current.RecordPart(p.BZID, p.Callsign, side, event.Reason)
	if p.BZID != "" && side != domain.SideObserver && side != domain.SideNone {
		o.departures.Record(p.BZID, side)
	}

	if o.current.IsOfficial() && o.activePlayers() == 0 {
		o.cancelForZeroPlayers()
	}
}

func (o *Overseer) handleCapture(event *host.FlagCaptureEvent) {
	if o.current == nil {
		return
	}
	capper := event.Capper
	side := domain.ParseSide(capper.Team)
	if !o.current.RecordCapture(side, capper.BZID, capper.Callsign) {
		return
	}

	if o.current.IsOfficial() {
		o.host.Broadcast(o.scoreLine())
	}
}

func (o *Overseer) handleDeath(event *host.PlayerDeathEvent) {
	if o.current == nil {
		return
	}
	o.current.RecordKill(event.Killer.BZID, domain.ParseSide(event.Killer.Team),
		event.Victim.BZID, domain.ParseSide(event.Victim.Team))
}

func (o *Overseer) handleGameStart(event *host.GameStartEvent) {
	if o.current == nil {
		// a game started without /official is a fun match
		duration := event.Duration
		if duration <= 0 {
			duration = int(o.cfg.Match.DefaultDuration.Seconds())
		}
		o.current = o.newMatch(domain.MatchFun, duration)
	}

	if err := o.current.Activate(); err != nil {
		log.Printf("overseer: activating match: %v", err)
		return
	}
	log.Printf("overseer: %s match %s is underway", o.current.Kind(), o.current.UUID())
}

func (o *Overseer) handleGameEnd() {
	if o.current == nil {
		return
	}
	o.finalize("")
}

func (o *Overseer) handlePause(event *host.GamePauseEvent) {
	if o.current == nil {
		return
	}
	if err := o.current.Pause(event.ActionBy.Callsign); err != nil {
		log.Printf("overseer: pausing match: %v", err)
	}
}

func (o *Overseer) handleResume(event *host.GameResumeEvent) {
	if o.current == nil {
		return
	}
	if err := o.current.Resume(event.ActionBy.Callsign); err != nil {
		log.Printf("overseer: resuming match: %v", err)
	}
}

func (o *Overseer) handleCommand(event *host.SlashCommandEvent) {
	switch event.Command {
	case "official":
		o.startMatch(event, domain.MatchOfficial)
	case "fm":
		o.startMatch(event, domain.MatchFun)
	case "cancel":
		o.cancelMatch(event.Player)
	case "finish":
		o.finishMatch(event.Player)
	case "pause":
		o.host.PauseCountdown()
	case "resume":
		o.host.ResumeCountdown()
	case "reload":
		o.reloadConfig(event.Player)
	default:
		log.Printf("overseer: unhandled command /%s from %s", event.Command, event.Player.Callsign)
	}
}

func (o *Overseer) startMatch(event *host.SlashCommandEvent, kind domain.MatchKind) {
	if o.current != nil && o.current.InProgress() {
		o.host.Tell(event.Player.Slot, "There is already a match in progress; you cannot start another.")
		return
	}

	duration := int(o.cfg.Match.DefaultDuration.Seconds())
	if len(event.Args) > 0 {
		if minutes, err := strconv.Atoi(event.Args[0]); err == nil && minutes > 0 {
			duration = minutes * 60
		}
	}

	o.current = o.newMatch(kind, duration)
	o.host.Broadcast(fmt.Sprintf("%s has started %s match.", event.Player.Callsign, matchArticle(kind)))
	o.host.StartCountdown(duration)
	log.Printf("overseer: %s requested %s %s match (%ds)", event.Player.Callsign, o.current.UUID(), kind, duration)
}

func (o *Overseer) cancelMatch(player host.PlayerRef) {
	if o.current == nil || !o.current.InProgress() {
		o.host.Tell(player.Slot, "There is no match in progress to cancel.")
		return
	}

	kind := "Fun"
	if o.current.IsOfficial() {
		kind = "Official"
	}
	o.finalize(fmt.Sprintf("%s match cancellation requested by %s", kind, player.Callsign))
	o.host.EndGame()
}

func (o *Overseer) finishMatch(player host.PlayerRef) {
	if o.current == nil || !o.current.InProgress() {
		o.host.Tell(player.Slot, "There is no match in progress to finish.")
		return
	}
	if !o.current.IsOfficial() {
		o.host.Tell(player.Slot, "Only official matches can be finished early; use /cancel instead.")
		return
	}

	// an early finish still counts, but only once the match is half over
	elapsed := o.current.ElapsedSeconds()
	if elapsed < 0 || elapsed*2 < o.current.DurationLimit() {
		o.host.Tell(player.Slot, "You may only finish a match once half of its duration has elapsed.")
		return
	}

	o.host.Broadcast(fmt.Sprintf("%s has requested the match be finished early.", player.Callsign))
	o.host.EndGame()
}

func (o *Overseer) cancelForZeroPlayers() {
	o.finalize("Official match automatically canceled due to all players leaving the match.")
	o.host.EndGame()
}

func (o *Overseer) handleMapChange(event *host.MapChangeEvent) {
	if o.current != nil && o.current.InProgress() {
		log.Printf("overseer: map change ignored while a match is in progress")
		return
	}

	o.mapName = strings.TrimSuffix(filepath.Base(event.ConfigFile), ".conf")
	o.reporter.SetMapName(o.mapName)
	if len(event.Teams) > 0 {
		sides := make([]domain.TeamSide, 0, len(event.Teams))
		for _, team := range event.Teams {
			if side := domain.ParseSide(team); side != domain.SideNone && side != domain.SideObserver {
				sides = append(sides, side)
			}
		}
		if len(sides) >= 2 && len(sides) <= 4 {
			o.sides = sides
		}
	}
	log.Printf("overseer: map changed to %q (%d sides)", o.mapName, len(o.sides))
}

func (o *Overseer) handleTick(event *host.TickEvent) {
	if o.current == nil {
		return
	}

	if o.current.ShouldRollCall() {
		o.performRollCall()
	}

	if o.current.IsOfficial() && o.current.Phase() == domain.PhaseActive &&
		event.Players == 0 && o.activePlayers() == 0 {
		o.cancelForZeroPlayers()
	}
}

func (o *Overseer) performRollCall() {
	var candidates []domain.Participant
	for _, p := range o.players {
		side := domain.ParseSide(p.Team)
		if side == domain.SideObserver || side == domain.SideNone || p.BZID == "" {
			continue
		}
		participant := domain.Participant{
			BZID:      p.BZID,
			Callsign:  p.Callsign,
			IPAddress: p.IPAddress,
			Side:      side,
		}
		if rec, ok := o.mottos.Lookup(p.BZID); ok {
			participant.TeamID = rec.ID
			participant.TeamName = rec.Name
		}
		candidates = append(candidates, participant)
	}

	if err := o.current.PerformRollCall(candidates); err != nil {
		log.Printf("overseer: roll call for match %s: %v", o.current.UUID(), err)
		if o.current.RollCallAbandoned() {
			o.host.Broadcast("The roster for this match could not be determined; it will not be reported.")
		}
		return
	}
	log.Printf("overseer: roll call committed %d players for match %s", len(candidates), o.current.UUID())
}

// finalize ends the current match, writes the recording and archive rows,
// and submits the report. reason != "" cancels.
func (o *Overseer) finalize(reason string) {
	snap, err := o.current.Finish(reason)
	if err != nil {
		log.Printf("overseer: ending match: %v", err)
		return
	}

	if snap.Canceled {
		o.host.Broadcast(snap.CancelReason)
	} else {
		o.host.Broadcast(fmt.Sprintf("Match over: %s", o.scoreLineFor(snap)))
	}

	replayFile, err := o.recorder.Save(snap)
	if err != nil {
		log.Printf("overseer: saving recording for match %s: %v", snap.UUID, err)
	}

	// archive before reporting so an accepted report finds its row
	if o.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.archive.SaveMatch(ctx, snap, replayFile, false); err != nil {
			log.Printf("overseer: archiving match %s: %v", snap.UUID, err)
		}
		cancel()
	}

	if err := o.reporter.SubmitReport(snap, replayFile); err != nil {
		log.Printf("overseer: reporting match %s: %v", snap.UUID, err)
	}

	o.departures.Clear()
	o.current = nil
}

func (o *Overseer) reloadConfig(player host.PlayerRef) {
	cfg, err := config.Load(o.cfgPath)
	if err != nil {
		log.Printf("overseer: reloading config: %v", err)
		o.host.Tell(player.Slot, "Configuration reload failed; the previous configuration is still in effect.")
		return
	}

	// the live match keeps the settings it started with
	o.cfg = cfg
	o.departures = match.NewDepartureLog(cfg.Match.RejoinGrace, o.clock)
	log.Printf("overseer: configuration reloaded by %s", player.Callsign)
	o.host.Tell(player.Slot, "Configuration reloaded.")
}

func (o *Overseer) newMatch(kind domain.MatchKind, durationSeconds int) *match.State {
	return match.NewState(kind, o.sides, durationSeconds,
		int(o.cfg.Match.RollCallDeadline.Seconds()), o.clock)
}

// activePlayers counts connected non-observer players
func (o *Overseer) activePlayers() int {
	n := 0
	for _, p := range o.players {
		side := domain.ParseSide(p.Team)
		if side != domain.SideObserver && side != domain.SideNone {
			n++
		}
	}
	return n
}

func (o *Overseer) scoreLine() string {
	parts := make([]string, 0, len(o.current.Sides()))
	for _, side := range o.current.Sides() {
		parts = append(parts, fmt.Sprintf("%s %d", side, o.current.Score(side)))
	}
	return fmt.Sprintf("[%s] with %s remaining", strings.Join(parts, " - "), o.current.RemainingFormatted())
}

func (o *Overseer) scoreLineFor(snap *match.Snapshot) string {
	parts := make([]string, 0, len(snap.Sides))
	for _, side := range snap.Sides {
		label := snap.TeamNames[side]
		if label == "" {
			label = string(side)
		}
		parts = append(parts, fmt.Sprintf("%s %d", label, snap.Scores[side]))
	}
	return strings.Join(parts, " - ")
}

func matchArticle(kind domain.MatchKind) string {
	if kind == domain.MatchOfficial {
		return "an official"
	}
	return "a fun"
}
