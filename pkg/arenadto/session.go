package arenadto

import "time"

// ParticipantView is one seat of a session as exposed to clients.
type ParticipantView struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level string `json:"level,omitempty"`
}

// MoveView is one half-move in the exposed history.
type MoveView struct {
	Number    int    `json:"number"`
	Side      string `json:"side"`
	UCI       string `json:"uci"`
	SAN       string `json:"san"`
	Capture   bool   `json:"capture,omitempty"`
	Check     bool   `json:"check,omitempty"`
	AutoMoved bool   `json:"auto_moved,omitempty"`
}

// SessionView is the read-only projection of a live session.
type SessionView struct {
	ID        string          `json:"id"`
	White     ParticipantView `json:"white"`
	Black     ParticipantView `json:"black"`
	Level     string          `json:"level"`
	FEN       string          `json:"fen"`
	Turn      string          `json:"turn"`
	Phase     string          `json:"phase"`
	Selected  string          `json:"selected,omitempty"`
	Status    string          `json:"status"`
	Winner    string          `json:"winner,omitempty"`
	WhiteMS   int64           `json:"white_ms"`
	BlackMS   int64           `json:"black_ms"`
	Moves     []MoveView      `json:"moves"`
	Nerfed    bool            `json:"nerfed"`
	AutoPlay  bool            `json:"auto_play"`
	CreatedAt time.Time       `json:"created_at"`
}

// StatsView is a player's ledger counters.
type StatsView struct {
	PlayerID string `json:"player_id"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Draws    int    `json:"draws"`
	Games    int    `json:"games"`
}
