// Package diagnosis finds the unmastered prerequisites behind a failed atom.
package diagnosis

import (
	"fmt"
	"strings"

	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/mastery"
)

// AtomSource resolves prerequisite lists. *graph.Graph satisfies it.
type AtomSource interface {
	Atom(id string) (graph.Atom, error)
}

// GraphCycleError reports a node reached again while still on the active
// traversal path. It is fatal; content tooling must fix the course.
type GraphCycleError struct {
	Path []string
}

func (e *GraphCycleError) Error() string {
	return "graph cycle: " + strings.Join(e.Path, " -> ")
}

type frame struct {
	id      string
	prereqs []string
	next    int
}

// Diagnose walks the prerequisites of failedAtomID in post-order and returns
// every ancestor that is not mastered, deepest dependency first. Each atom
// appears once, at its first visit. The failed atom is never included.
// Mastered atoms are traversed but not listed.
func Diagnose(atoms AtomSource, failedAtomID string, states map[string]mastery.State) ([]string, error) {
	root, err := atoms.Atom(failedAtomID)
	if err != nil {
		return nil, fmt.Errorf("diagnose %q: %w", failedAtomID, err)
	}

	stack := []frame{{id: root.ID, prereqs: root.Prerequisites}}
	onPath := map[string]bool{root.ID: true}
	visited := map[string]bool{root.ID: true}
	var gaps []string

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.prereqs) {
			p := top.prereqs[top.next]
			top.next++
			if onPath[p] {
				return nil, &GraphCycleError{Path: cyclePath(stack, p)}
			}
			if visited[p] {
				continue
			}
			visited[p] = true
			a, err := atoms.Atom(p)
			if err != nil {
				return nil, fmt.Errorf("diagnose %q: %w", failedAtomID, err)
			}
			stack = append(stack, frame{id: a.ID, prereqs: a.Prerequisites})
			onPath[a.ID] = true
			continue
		}

		id := top.id
		stack = stack[:len(stack)-1]
		delete(onPath, id)
		if id != root.ID && states[id] != mastery.StateMastered {
			gaps = append(gaps, id)
		}
	}
	return gaps, nil
}

// cyclePath returns the active path from the first occurrence of repeat
// through the repeat itself.
func cyclePath(stack []frame, repeat string) []string {
	start := 0
	for i, f := range stack {
		if f.id == repeat {
			start = i
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		path = append(path, f.id)
	}
	return append(path, repeat)
}
