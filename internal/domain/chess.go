package domain

import "time"

// FinishedGame is the archived record of a completed session.
type FinishedGame struct {
	ID          int64
	SessionUUID string
	WhiteID     string
	WhiteName   string
	BlackID     string
	BlackName   string
	Level       string
	Result      string
	Method      string
	MovesUCI    []string
	MovesSAN    []string
	PGN         string
	StartedAt   time.Time
	EndedAt     time.Time
	Duration    time.Duration
}

// PlayerStats is the per-player win/loss ledger snapshot.
type PlayerStats struct {
	PlayerID string
	Wins     int
	Losses   int
	Draws    int
	Games    int
}
