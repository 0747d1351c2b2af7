package lessons

import (
	"context"
	"errors"
	"time"

	"github.com/abhisek/masterypath/internal/graph"
)

// Lesson sources.
const (
	SourceBlob      = "blob"
	SourceGenerated = "generated"
)

// ErrNoLesson is returned when an atom has no stored lesson and
// generation is disabled.
var ErrNoLesson = errors.New("no lesson available")

// Lesson is the teaching material shown before an atom's practice set.
type Lesson struct {
	AtomID        string           `json:"atom_id"`
	Title         string           `json:"title"`
	Explanation   string           `json:"explanation"`
	WorkedExample string           `json:"worked_example"`
	Practice      PracticeQuestion `json:"practice"`
	Source        string           `json:"source,omitempty"`
	GeneratedAt   time.Time        `json:"generated_at,omitzero"`
}

// PracticeQuestion is a warm-up item embedded in a lesson. It is not
// scored and never touches mastery.
type PracticeQuestion struct {
	Text        string `json:"text"`
	Answer      string `json:"answer"`
	Explanation string `json:"explanation,omitempty"`
}

// Provider supplies the lesson for an atom.
type Provider interface {
	Lesson(ctx context.Context, atom graph.Atom) (*Lesson, error)
}
