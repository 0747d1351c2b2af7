package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig holds connection settings for a course stored in Neo4j.
type Neo4jConfig struct {
	URI      string        `mapstructure:"uri"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Neo4jSource reads and writes a course as (:Atom)-[:REQUIRES]->(:Atom) and
// (:Question)-[:TESTS]->(:Atom).
type Neo4jSource struct {
	driver   neo4j.DriverWithContext
	database string
	name     string
}

// NewNeo4jSource connects and verifies connectivity.
func NewNeo4jSource(ctx context.Context, cfg Neo4jConfig, courseName string) (*Neo4jSource, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4j: uri is required")
	}
	user := cfg.User
	if user == "" {
		user = "neo4j"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(user, cfg.Password, ""), func(c *neo4j.Config) {
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	return &Neo4jSource{driver: driver, database: cfg.Database, name: courseName}, nil
}

// Close releases the driver.
func (s *Neo4jSource) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

const loadAtomsCypher = `
MATCH (a:Atom)
OPTIONAL MATCH (a)-[r:REQUIRES]->(p:Atom)
WITH a, r, p ORDER BY r.ord, p.id
WITH a, collect(p.id) AS prerequisites
RETURN a.id AS id, coalesce(a.name, a.id) AS name, prerequisites
ORDER BY id`

const loadQuestionsCypher = `
MATCH (q:Question)-[:TESTS]->(a:Atom)
RETURN q.id AS id, a.id AS atom, q.difficulty AS difficulty, coalesce(q.content, '') AS content
ORDER BY id`

// Load reads every atom and question and builds a validated graph.
func (s *Neo4jSource) Load(ctx context.Context) (*Graph, error) {
	opts := neo4j.ExecuteQueryWithDatabase(s.database)

	atomRes, err := neo4j.ExecuteQuery(ctx, s.driver, loadAtomsCypher, nil, neo4j.EagerResultTransformer, opts)
	if err != nil {
		return nil, fmt.Errorf("neo4j: load atoms: %w", err)
	}
	atoms := make([]Atom, 0, len(atomRes.Records))
	for _, rec := range atomRes.Records {
		m := rec.AsMap()
		atoms = append(atoms, Atom{
			ID:            asString(m["id"]),
			Name:          asString(m["name"]),
			Prerequisites: asStrings(m["prerequisites"]),
		})
	}

	qRes, err := neo4j.ExecuteQuery(ctx, s.driver, loadQuestionsCypher, nil, neo4j.EagerResultTransformer, opts)
	if err != nil {
		return nil, fmt.Errorf("neo4j: load questions: %w", err)
	}
	questions := make([]Question, 0, len(qRes.Records))
	for _, rec := range qRes.Records {
		m := rec.AsMap()
		d, err := ParseDifficulty(asString(m["difficulty"]))
		if err != nil {
			return nil, fmt.Errorf("neo4j: question %q: %w", asString(m["id"]), err)
		}
		questions = append(questions, Question{
			ID:         asString(m["id"]),
			AtomID:     asString(m["atom"]),
			Difficulty: d,
			ContentRef: asString(m["content"]),
		})
	}

	return New(s.name, atoms, questions)
}

// Push upserts every atom, prerequisite edge and question of g.
func (s *Neo4jSource) Push(ctx context.Context, g *Graph) error {
	nodes, edges, questions := pushParams(g)

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		stmts := []struct {
			cypher string
			params map[string]any
		}{
			{`UNWIND $atoms AS n MERGE (a:Atom {id: n.id}) SET a.name = n.name`, map[string]any{"atoms": nodes}},
			{`UNWIND $edges AS e
MATCH (a:Atom {id: e.from}) MATCH (p:Atom {id: e.to})
MERGE (a)-[r:REQUIRES]->(p) SET r.ord = e.ord`, map[string]any{"edges": edges}},
			{`UNWIND $questions AS q
MATCH (a:Atom {id: q.atom})
MERGE (x:Question {id: q.id}) SET x.difficulty = q.difficulty, x.content = q.content
MERGE (x)-[:TESTS]->(a)`, map[string]any{"questions": questions}},
		}
		for _, st := range stmts {
			res, err := tx.Run(ctx, st.cypher, st.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j: push course: %w", err)
	}
	return nil
}

func pushParams(g *Graph) (nodes, edges, questions []map[string]any) {
	for _, a := range g.Atoms() {
		nodes = append(nodes, map[string]any{"id": a.ID, "name": a.Name})
		for i, p := range a.Prerequisites {
			edges = append(edges, map[string]any{"from": a.ID, "to": p, "ord": int64(i)})
		}
		for _, q := range g.Questions(a.ID) {
			questions = append(questions, map[string]any{
				"id":         q.ID,
				"atom":       q.AtomID,
				"difficulty": q.Difficulty.String(),
				"content":    q.ContentRef,
			})
		}
	}
	return nodes, edges, questions
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, x := range list {
		if s, ok := x.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
