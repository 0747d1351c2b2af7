package graph

import (
	"fmt"
	"strings"
)

// Difficulty is a rung on the practice ladder.
type Difficulty int

const (
	Easy Difficulty = iota
	Medium
	Hard
)

// AllDifficulties returns the ladder from floor to ceiling.
func AllDifficulties() []Difficulty {
	return []Difficulty{Easy, Medium, Hard}
}

func (d Difficulty) String() string {
	switch d {
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	default:
		return fmt.Sprintf("difficulty(%d)", int(d))
	}
}

// Up returns the next harder level, clamped at Hard.
func (d Difficulty) Up() Difficulty {
	if d >= Hard {
		return Hard
	}
	return d + 1
}

// Down returns the next easier level, clamped at Easy.
func (d Difficulty) Down() Difficulty {
	if d <= Easy {
		return Easy
	}
	return d - 1
}

// ParseDifficulty converts "easy", "medium" or "hard" (any case).
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return Easy, nil
	case "medium":
		return Medium, nil
	case "hard":
		return Hard, nil
	}
	return Easy, fmt.Errorf("unknown difficulty: %q", s)
}

func (d Difficulty) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Difficulty) UnmarshalText(b []byte) error {
	v, err := ParseDifficulty(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Atom is the smallest independently teachable unit in a course.
type Atom struct {
	ID            string   `json:"id"`
	Name          string   `json:"name,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// Question is a bank item whose primary tested atom is AtomID.
type Question struct {
	ID         string     `json:"id"`
	AtomID     string     `json:"atom_id"`
	Difficulty Difficulty `json:"difficulty"`
	// ContentRef points at the item body; the engine never reads it.
	ContentRef string `json:"content_ref,omitempty"`
}
