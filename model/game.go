package model

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownGameType = errors.New("unknown game type")

type GameType int

const (
	GameTypeUnknown GameType = iota
	GameTypeNote
	GameTypeChord
	GameTypeInversed
)

func ParseGameType(s string) (GameType, error) {
	switch s {
	case "note":
		return GameTypeNote, nil
	case "chord":
		return GameTypeChord, nil
	case "inversed":
		return GameTypeInversed, nil
	}
	return GameTypeUnknown, fmt.Errorf("%w: %q", ErrUnknownGameType, s)
}

func (g GameType) String() string {
	switch g {
	case GameTypeNote:
		return "note"
	case GameTypeChord:
		return "chord"
	case GameTypeInversed:
		return "inversed"
	}
	return "unknown"
}

// GameConfig is negotiated once per configure cycle and never modified afterwards.
type GameConfig struct {
	Type          GameType `json:"-"`
	TypeName      string   `json:"game"`
	Scale         string   `json:"scale"`
	Mode          string   `json:"mode"`
	MaxChallenges int      `json:"max_challenges"`
}

type GameResult struct {
	Duration time.Duration `json:"duration"`
	Perfect  int           `json:"perfect"`
	Partial  int           `json:"partial"`
	Total    int           `json:"total"`
}
