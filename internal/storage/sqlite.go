package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/allejo/leagueoverseer/internal/domain"
	"github.com/allejo/leagueoverseer/internal/match"
	_ "modernc.org/sqlite"
)

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string
// The Z suffix ensures the Go sqlite driver parses it back as UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

//go:embed schema.sql
var schema string

// Archive persists finished matches locally. It is write-mostly: the live
// match path never reads it, it exists so a match lost to a failed report
// can be reconstructed by an admin.
type Archive struct {
	db *sql.DB
}

// New creates an Archive backed by the given database path
func New(dbPath string) (*Archive, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Close closes the database connection
func (a *Archive) Close() error {
	return a.db.Close()
}

// SaveMatch writes a finished match, its sides, players and event log in
// one transaction
func (a *Archive) SaveMatch(ctx context.Context, snap *match.Snapshot, replayFile string, reported bool) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO matches (uuid, kind, canceled, cancel_reason, started_at, duration, duration_limit, replay_file, reported)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, snap.UUID, string(snap.Kind), snap.Canceled, nullString(snap.CancelReason),
		formatTimestamp(snap.StartedAt), snap.Duration, snap.DurationLimit,
		nullString(replayFile), reported)
	if err != nil {
		return fmt.Errorf("inserting match %s: %w", snap.UUID, err)
	}

	matchID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading match id: %w", err)
	}

	for i, side := range snap.Sides {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO match_sides (match_id, side, ordinal, score, team_id, team_name)
			VALUES (?, ?, ?, ?, ?, ?)
		`, matchID, string(side), i, snap.Scores[side], snap.TeamIDs[side], nullString(snap.TeamNames[side]))
		if err != nil {
			return fmt.Errorf("inserting side %s: %w", side, err)
		}
	}

	for _, p := range snap.Roster {
		stats := snap.Stats[p.BZID]
		if stats == nil {
			stats = domain.NewPlayerStats(p.BZID)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO match_players (match_id, bzid, callsign, ip_address, side, team_id, team_name,
				kills, deaths, self_kills, team_kills, captures)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, matchID, p.BZID, p.Callsign, nullString(p.IPAddress), string(p.Side), p.TeamID, nullString(p.TeamName),
			stats.Kills, stats.Deaths, stats.SelfKills, stats.TeamKills, stats.Captures)
		if err != nil {
			return fmt.Errorf("inserting player %s: %w", p.BZID, err)
		}
	}

	for seq, event := range snap.Events {
		data, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("encoding event %d: %w", seq, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO match_events (match_id, seq, event_type, match_time, data)
			VALUES (?, ?, ?, ?, ?)
		`, matchID, seq, event.Type, event.Time, string(data))
		if err != nil {
			return fmt.Errorf("inserting event %d: %w", seq, err)
		}
	}

	return tx.Commit()
}

// ArchivedMatch is the archive's view of one match row
type ArchivedMatch struct {
	ID           int64
	UUID         string
	Kind         domain.MatchKind
	Canceled     bool
	CancelReason string
	StartedAt    time.Time
	Duration     int
	ReplayFile   string
	Reported     bool
	Sides        []ArchivedSide
}

// ArchivedSide is one side's final standing
type ArchivedSide struct {
	Side     domain.TeamSide
	Score    int
	TeamID   int
	TeamName string
}

// GetMatchByUUID loads one archived match with its sides
func (a *Archive) GetMatchByUUID(ctx context.Context, uuid string) (*ArchivedMatch, error) {
	m := &ArchivedMatch{}
	var kind, startedAt string
	var cancelReason, replayFile sql.NullString

	err := a.db.QueryRowContext(ctx, `
		SELECT id, uuid, kind, canceled, cancel_reason, started_at, duration, replay_file, reported
		FROM matches WHERE uuid = ?
	`, uuid).Scan(&m.ID, &m.UUID, &kind, &m.Canceled, &cancelReason, &startedAt, &m.Duration, &replayFile, &m.Reported)
	if err != nil {
		return nil, fmt.Errorf("loading match %s: %w", uuid, err)
	}

	m.Kind = domain.MatchKind(kind)
	m.CancelReason = cancelReason.String
	m.ReplayFile = replayFile.String
	if m.StartedAt, err = time.Parse("2006-01-02T15:04:05Z", startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at of match %s: %w", uuid, err)
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT side, score, team_id, team_name FROM match_sides WHERE match_id = ? ORDER BY ordinal
	`, m.ID)
	if err != nil {
		return nil, fmt.Errorf("loading sides of match %s: %w", uuid, err)
	}
	defer rows.Close()

	for rows.Next() {
		var s ArchivedSide
		var side string
		var teamID sql.NullInt64
		var teamName sql.NullString
		if err := rows.Scan(&side, &s.Score, &teamID, &teamName); err != nil {
			return nil, err
		}
		s.Side = domain.TeamSide(side)
		s.TeamID = int(teamID.Int64)
		s.TeamName = teamName.String
		m.Sides = append(m.Sides, s)
	}
	return m, rows.Err()
}

// RecentMatches lists the newest archived matches, newest first
func (a *Archive) RecentMatches(ctx context.Context, limit int) ([]ArchivedMatch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT uuid FROM matches ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uuids []string
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, err
		}
		uuids = append(uuids, uuid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	matches := make([]ArchivedMatch, 0, len(uuids))
	for _, uuid := range uuids {
		m, err := a.GetMatchByUUID(ctx, uuid)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	return matches, nil
}

// MarkReported flips the reported flag once the league acknowledges a match
func (a *Archive) MarkReported(ctx context.Context, uuid string) error {
	res, err := a.db.ExecContext(ctx, "UPDATE matches SET reported = 1 WHERE uuid = ?", uuid)
	if err != nil {
		return fmt.Errorf("marking match %s reported: %w", uuid, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("marking match %s reported: no such match", uuid)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
