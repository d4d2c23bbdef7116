package domain

import "fmt"

// ParticipantKind tags who controls a seat. Engine seats are recognized
// by kind, never by a magic ID prefix.
type ParticipantKind string

const (
	KindHuman  ParticipantKind = "human"
	KindEngine ParticipantKind = "engine"
)

// Participant is one seat in a game: a human player or the engine.
type Participant struct {
	Kind  ParticipantKind
	ID    string
	Name  string
	Level Level
}

func HumanParticipant(id, name string) Participant {
	return Participant{Kind: KindHuman, ID: id, Name: name}
}

func EngineParticipant(level Level) Participant {
	return Participant{
		Kind:  KindEngine,
		ID:    "engine:" + level.Label,
		Name:  fmt.Sprintf("Engine (%s)", level.Label),
		Level: level,
	}
}

func (p Participant) IsEngine() bool { return p.Kind == KindEngine }

// Level is a named difficulty preset mapping to a search depth.
type Level struct {
	Label string
	Depth int
}

var levels = []Level{
	{Label: "novice", Depth: 4},
	{Label: "easy", Depth: 8},
	{Label: "medium", Depth: 10},
	{Label: "hard", Depth: 12},
	{Label: "master", Depth: 15},
}

// LevelByLabel resolves a preset by its label.
func LevelByLabel(label string) (Level, bool) {
	for _, lv := range levels {
		if lv.Label == label {
			return lv, true
		}
	}
	return Level{}, false
}

func Levels() []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}
