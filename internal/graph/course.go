package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// SupportedSchemaMajor is the course file major version this build reads.
const SupportedSchemaMajor = "v1"

// Source loads a course graph from some backing system.
type Source interface {
	Load(ctx context.Context) (*Graph, error)
}

// courseFile is the on-disk YAML representation of a course.
type courseFile struct {
	SchemaVersion string          `yaml:"schema_version" json:"schema_version"`
	Name          string          `yaml:"name" json:"name"`
	Atoms         []atomEntry     `yaml:"atoms" json:"atoms"`
	Questions     []questionEntry `yaml:"questions" json:"questions"`
}

type atomEntry struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name,omitempty" json:"name,omitempty"`
	Prerequisites []string `yaml:"prerequisites,omitempty" json:"prerequisites,omitempty"`
}

type questionEntry struct {
	ID         string `yaml:"id" json:"id"`
	Atom       string `yaml:"atom" json:"atom"`
	Difficulty string `yaml:"difficulty" json:"difficulty"`
	Content    string `yaml:"content,omitempty" json:"content,omitempty"`
}

const courseSchemaJSON = `{
  "type": "object",
  "required": ["schema_version", "name", "atoms"],
  "properties": {
    "schema_version": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "atoms": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "prerequisites": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "questions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "atom", "difficulty"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "atom": {"type": "string", "minLength": 1},
          "difficulty": {"enum": ["easy", "medium", "hard"]},
          "content": {"type": "string"}
        }
      }
    }
  }
}`

var (
	courseSchemaOnce sync.Once
	courseSchema     *jsonschema.Schema
	courseSchemaErr  error
)

func compiledCourseSchema() (*jsonschema.Schema, error) {
	courseSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(courseSchemaJSON))
		if err != nil {
			courseSchemaErr = fmt.Errorf("parse course schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("course.json", doc); err != nil {
			courseSchemaErr = fmt.Errorf("add course schema: %w", err)
			return
		}
		courseSchema, courseSchemaErr = c.Compile("course.json")
	})
	return courseSchema, courseSchemaErr
}

// ParseCourse decodes a YAML course, checks it against the course schema and
// its schema_version, and builds the validated graph.
func ParseCourse(data []byte) (*Graph, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("course: parse yaml: %w", err)
	}
	if err := checkCourseShape(raw); err != nil {
		return nil, err
	}

	var cf courseFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("course: decode: %w", err)
	}

	v := cf.SchemaVersion
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return nil, fmt.Errorf("course: invalid schema_version %q", cf.SchemaVersion)
	}
	if semver.Major(v) != SupportedSchemaMajor {
		return nil, fmt.Errorf("course: unsupported schema_version %s (want %s.x)", v, SupportedSchemaMajor)
	}

	atoms := make([]Atom, 0, len(cf.Atoms))
	for _, a := range cf.Atoms {
		name := a.Name
		if name == "" {
			name = a.ID
		}
		atoms = append(atoms, Atom{ID: a.ID, Name: name, Prerequisites: a.Prerequisites})
	}

	questions := make([]Question, 0, len(cf.Questions))
	for _, q := range cf.Questions {
		d, err := ParseDifficulty(q.Difficulty)
		if err != nil {
			return nil, fmt.Errorf("course: question %q: %w", q.ID, err)
		}
		questions = append(questions, Question{ID: q.ID, AtomID: q.Atom, Difficulty: d, ContentRef: q.Content})
	}

	return New(cf.Name, atoms, questions)
}

// checkCourseShape validates the generic YAML tree against the course schema.
// The tree is round-tripped through JSON so numbers and maps have the types
// the validator expects.
func checkCourseShape(raw any) error {
	sch, err := compiledCourseSchema()
	if err != nil {
		return err
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("course: normalize: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("course: normalize: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("course: schema validation failed: %w", err)
	}
	return nil
}

// MarshalCourse renders a graph back into the YAML course format.
func MarshalCourse(g *Graph) ([]byte, error) {
	cf := courseFile{SchemaVersion: SupportedSchemaMajor + ".0.0", Name: g.Name()}
	for _, a := range g.Atoms() {
		cf.Atoms = append(cf.Atoms, atomEntry{ID: a.ID, Name: a.Name, Prerequisites: a.Prerequisites})
		for _, q := range g.Questions(a.ID) {
			cf.Questions = append(cf.Questions, questionEntry{
				ID: q.ID, Atom: q.AtomID, Difficulty: q.Difficulty.String(), Content: q.ContentRef,
			})
		}
	}
	return yaml.Marshal(cf)
}

// FileSource loads a course from a YAML file on disk.
type FileSource struct {
	Path string
}

func (s FileSource) Load(_ context.Context) (*Graph, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read course file: %w", err)
	}
	g, err := ParseCourse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}
	return g, nil
}
