package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Validate performs all structural checks on a course and returns one error
// listing every problem found, or nil.
func Validate(atoms []Atom, questions []Question) error {
	var errs []string

	idSet := make(map[string]bool, len(atoms))
	for _, a := range atoms {
		if strings.TrimSpace(a.ID) == "" {
			errs = append(errs, "atom with empty ID")
			continue
		}
		if idSet[a.ID] {
			errs = append(errs, fmt.Sprintf("duplicate atom ID: %q", a.ID))
		}
		idSet[a.ID] = true
	}

	for _, a := range atoms {
		seen := make(map[string]bool, len(a.Prerequisites))
		for _, p := range a.Prerequisites {
			switch {
			case p == a.ID:
				errs = append(errs, fmt.Sprintf("atom %q lists itself as a prerequisite", a.ID))
			case !idSet[p]:
				errs = append(errs, fmt.Sprintf("atom %q references nonexistent prerequisite %q", a.ID, p))
			case seen[p]:
				errs = append(errs, fmt.Sprintf("atom %q lists prerequisite %q twice", a.ID, p))
			}
			seen[p] = true
		}
	}

	if cyc := cycleMembers(atoms, idSet); len(cyc) > 0 {
		errs = append(errs, fmt.Sprintf("cycle detected involving atoms: %s", strings.Join(cyc, ", ")))
	}

	if len(atoms) > 0 {
		hasRoot := false
		for _, a := range atoms {
			if len(a.Prerequisites) == 0 {
				hasRoot = true
				break
			}
		}
		if !hasRoot {
			errs = append(errs, "no root atoms found (at least one atom must have no prerequisites)")
		}
	}

	qSet := make(map[string]bool, len(questions))
	for _, q := range questions {
		if strings.TrimSpace(q.ID) == "" {
			errs = append(errs, fmt.Sprintf("question with empty ID on atom %q", q.AtomID))
			continue
		}
		if qSet[q.ID] {
			errs = append(errs, fmt.Sprintf("duplicate question ID: %q", q.ID))
		}
		qSet[q.ID] = true
		if !idSet[q.AtomID] {
			errs = append(errs, fmt.Sprintf("question %q references nonexistent atom %q", q.ID, q.AtomID))
		}
		if q.Difficulty < Easy || q.Difficulty > Hard {
			errs = append(errs, fmt.Sprintf("question %q has invalid difficulty %d", q.ID, int(q.Difficulty)))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("course validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// cycleMembers runs Kahn's algorithm over known edges and returns the atoms
// left with a positive in-degree, sorted.
func cycleMembers(atoms []Atom, idSet map[string]bool) []string {
	inDegree := make(map[string]int, len(atoms))
	adj := make(map[string][]string)
	for _, a := range atoms {
		if _, dup := inDegree[a.ID]; dup {
			continue
		}
		n := 0
		for _, p := range a.Prerequisites {
			if idSet[p] && p != a.ID {
				n++
				adj[p] = append(adj[p], a.ID)
			}
		}
		inDegree[a.ID] = n
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range adj[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	var out []string
	for id, deg := range inDegree {
		if deg > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
