package engine

import (
	"strconv"
	"strings"
)

// infoRecord is one parsed "info" line from the engine.
type infoRecord struct {
	Depth   int
	MultiPV int
	ScoreCP *int
	MateIn  *int
	PV      []string
}

// parseInfoLine extracts depth, multipv, score and principal variation
// from an engine info line. Lines without a pv are not useful.
func parseInfoLine(line string) (infoRecord, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 || parts[0] != "info" {
		return infoRecord{}, false
	}
	rec := infoRecord{MultiPV: 1}
	pvIdx := -1

	for i := 1; i < len(parts); i++ {
		switch parts[i] {
		case "depth":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					rec.Depth = v
				}
				i++
			}
		case "multipv":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					rec.MultiPV = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				val := parts[i+2]
				switch parts[i+1] {
				case "cp":
					if v, err := strconv.Atoi(val); err == nil {
						cp := v
						rec.ScoreCP = &cp
					}
				case "mate":
					if v, err := strconv.Atoi(val); err == nil {
						mate := v
						rec.MateIn = &mate
					}
				}
				i += 2
			}
		case "pv":
			pvIdx = i + 1
			i = len(parts)
		}
	}

	if pvIdx == -1 || pvIdx >= len(parts) {
		return infoRecord{}, false
	}
	rec.PV = append([]string(nil), parts[pvIdx:]...)
	return rec, true
}

// parseBestMove extracts the move from a "bestmove" line. A bestmove of
// "(none)" means the engine has nothing to play.
func parseBestMove(line string) (move, ponder string, ok bool) {
	parts := strings.Fields(line)
	if len(parts) < 2 || parts[0] != "bestmove" {
		return "", "", false
	}
	move = parts[1]
	if move == "(none)" {
		move = ""
	}
	for i := 2; i+1 < len(parts); i++ {
		if parts[i] == "ponder" {
			ponder = parts[i+1]
		}
	}
	return move, ponder, true
}
