package graph

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// ErrAtomNotFound is returned for lookups of an id the course does not define.
var ErrAtomNotFound = errors.New("atom not found")

// Catalog is the read side of the knowledge graph consumed by the engine.
type Catalog interface {
	Atom(id string) (Atom, error)
	QuestionsByDifficulty(atomID string, d Difficulty) ([]Question, error)
}

// Graph is an immutable, validated course: the prerequisite DAG plus the
// question bank partitioned by atom and difficulty. It is safe to share
// between goroutines.
type Graph struct {
	name       string
	atoms      []Atom
	byID       map[string]*Atom
	dependents map[string][]string
	pools      map[string]map[Difficulty][]Question
	topoOrder  []string
}

// New validates the atoms and questions and builds the graph indices.
func New(name string, atoms []Atom, questions []Question) (*Graph, error) {
	if err := Validate(atoms, questions); err != nil {
		return nil, err
	}

	g := &Graph{
		name:       name,
		atoms:      make([]Atom, len(atoms)),
		byID:       make(map[string]*Atom, len(atoms)),
		dependents: make(map[string][]string),
		pools:      make(map[string]map[Difficulty][]Question, len(atoms)),
	}
	for i, a := range atoms {
		a.Prerequisites = slices.Clone(a.Prerequisites)
		g.atoms[i] = a
		g.byID[a.ID] = &g.atoms[i]
		g.pools[a.ID] = make(map[Difficulty][]Question, 3)
	}

	for _, a := range g.atoms {
		for _, p := range a.Prerequisites {
			g.dependents[p] = append(g.dependents[p], a.ID)
		}
	}
	for id := range g.dependents {
		sort.Strings(g.dependents[id])
	}

	for _, q := range questions {
		g.pools[q.AtomID][q.Difficulty] = append(g.pools[q.AtomID][q.Difficulty], q)
	}
	for _, byDiff := range g.pools {
		for d := range byDiff {
			sort.Slice(byDiff[d], func(i, j int) bool { return byDiff[d][i].ID < byDiff[d][j].ID })
		}
	}

	g.topoOrder = topoSort(g.atoms, g.dependents)
	return g, nil
}

// topoSort runs Kahn's algorithm with sorted queues so the order is stable.
func topoSort(atoms []Atom, dependents map[string][]string) []string {
	inDegree := make(map[string]int, len(atoms))
	for _, a := range atoms {
		inDegree[a.ID] = len(a.Prerequisites)
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(atoms))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		var ready []string
		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}
	return order
}

// Name returns the course name.
func (g *Graph) Name() string { return g.name }

// Len returns the number of atoms.
func (g *Graph) Len() int { return len(g.atoms) }

// Atom returns the atom with the given id.
func (g *Graph) Atom(id string) (Atom, error) {
	a, ok := g.byID[id]
	if !ok {
		return Atom{}, fmt.Errorf("%w: %q", ErrAtomNotFound, id)
	}
	out := *a
	out.Prerequisites = slices.Clone(a.Prerequisites)
	return out, nil
}

// Has reports whether the course defines id.
func (g *Graph) Has(id string) bool {
	_, ok := g.byID[id]
	return ok
}

// QuestionsByDifficulty returns the pool for one atom at one level, ordered by id.
func (g *Graph) QuestionsByDifficulty(atomID string, d Difficulty) ([]Question, error) {
	byDiff, ok := g.pools[atomID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAtomNotFound, atomID)
	}
	return slices.Clone(byDiff[d]), nil
}

// Questions returns every question whose primary atom is atomID, easiest first.
func (g *Graph) Questions(atomID string) []Question {
	byDiff := g.pools[atomID]
	var out []Question
	for _, d := range AllDifficulties() {
		out = append(out, byDiff[d]...)
	}
	return out
}

// DirectQuestionCount counts bank questions whose primary atom is atomID.
func (g *Graph) DirectQuestionCount(atomID string) int {
	n := 0
	for _, qs := range g.pools[atomID] {
		n += len(qs)
	}
	return n
}

// Atoms returns all atoms in topological order.
func (g *Graph) Atoms() []Atom {
	out := make([]Atom, 0, len(g.topoOrder))
	for _, id := range g.topoOrder {
		a, _ := g.Atom(id)
		out = append(out, a)
	}
	return out
}

// IDs returns all atom ids in topological order.
func (g *Graph) IDs() []string {
	return slices.Clone(g.topoOrder)
}

// Dependents returns the atoms that list id as a direct prerequisite, sorted.
func (g *Graph) Dependents(id string) []string {
	return slices.Clone(g.dependents[id])
}

// Descendants returns every atom that transitively depends on id, mapped to
// its shortest distance in prerequisite edges.
func (g *Graph) Descendants(id string) map[string]int {
	depth := make(map[string]int)
	queue := []string{id}
	dist := map[string]int{id: 0}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range g.dependents[cur] {
			if _, seen := dist[dep]; seen {
				continue
			}
			dist[dep] = dist[cur] + 1
			depth[dep] = dist[dep]
			queue = append(queue, dep)
		}
	}
	return depth
}

// Roots returns atoms with no prerequisites, sorted by id.
func (g *Graph) Roots() []string {
	var roots []string
	for _, a := range g.atoms {
		if len(a.Prerequisites) == 0 {
			roots = append(roots, a.ID)
		}
	}
	sort.Strings(roots)
	return roots
}

// IsUnlocked reports whether every prerequisite of id satisfies mastered.
func (g *Graph) IsUnlocked(id string, mastered func(string) bool) bool {
	a, ok := g.byID[id]
	if !ok {
		return false
	}
	for _, p := range a.Prerequisites {
		if !mastered(p) {
			return false
		}
	}
	return true
}
