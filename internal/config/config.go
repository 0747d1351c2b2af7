// Package config loads masterypath settings from a YAML file, a .env file
// and MASTERYPATH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/abhisek/masterypath/internal/blob"
	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/lessons"
	"github.com/abhisek/masterypath/internal/llm"
	"github.com/abhisek/masterypath/internal/lock"
	"github.com/abhisek/masterypath/internal/logging"
	"github.com/abhisek/masterypath/internal/spacedrep"
	"github.com/abhisek/masterypath/internal/tracing"
)

// EnvPrefix namespaces environment overrides: database.dsn is read from
// MASTERYPATH_DATABASE_DSN.
const EnvPrefix = "MASTERYPATH"

// Course sources.
const (
	CourseFile  = "file"
	CourseNeo4j = "neo4j"
)

// Config is the full application configuration.
type Config struct {
	Log      logging.Config    `mapstructure:"log"`
	Database Database          `mapstructure:"database"`
	Course   Course            `mapstructure:"course"`
	Neo4j    graph.Neo4jConfig `mapstructure:"neo4j"`
	Redis    lock.RedisConfig  `mapstructure:"redis"`
	Blob     blob.Config       `mapstructure:"blob"`
	LLM      llm.Config        `mapstructure:"llm"`
	Lessons  lessons.Config    `mapstructure:"lessons"`
	Review   Review            `mapstructure:"review"`
	HTTP     HTTP              `mapstructure:"http"`
	Tracing  tracing.Config    `mapstructure:"tracing"`
}

// Database selects the SQL driver. An empty sqlite DSN resolves to the
// per-user data directory.
type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Course says where the knowledge graph is loaded from.
type Course struct {
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
	// Name identifies the course inside Neo4j.
	Name string `mapstructure:"name"`
}

// Review holds spaced repetition sizing and the background sweep.
type Review struct {
	MinAtoms         int    `mapstructure:"min_atoms"`
	MaxAtoms         int    `mapstructure:"max_atoms"`
	QuestionsPerAtom int    `mapstructure:"questions_per_atom"`
	ProbeQuestions   int    `mapstructure:"probe_questions"`
	Sweep            string `mapstructure:"sweep"`
	SnapshotKeep     int    `mapstructure:"snapshot_keep"`
	Concurrency      int    `mapstructure:"concurrency"`
}

// Options converts the review section for spacedrep.
func (r Review) Options() spacedrep.Options {
	return spacedrep.Options{
		MinAtoms:         r.MinAtoms,
		MaxAtoms:         r.MaxAtoms,
		QuestionsPerAtom: r.QuestionsPerAtom,
		ProbeQuestions:   r.ProbeQuestions,
	}
}

type HTTP struct {
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration. path may be empty, in which case
// masterypath.yaml is looked up in the working directory and ./config,
// and a missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("masterypath")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LLM.FillKeysFromEnv()
	// cors_origins arrives as one string when set through the environment.
	cfg.HTTP.CORSOrigins = splitList(cfg.HTTP.CORSOrigins)

	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static; decoding them cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.encoding", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")

	v.SetDefault("course.source", CourseFile)
	v.SetDefault("course.path", "examples/fractions.yaml")
	v.SetDefault("course.name", "")

	v.SetDefault("neo4j.uri", "")
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "")
	v.SetDefault("neo4j.timeout", "10s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "masterypath:lock:")
	v.SetDefault("redis.ttl", "30s")

	v.SetDefault("blob.driver", string(blob.DriverFS))
	v.SetDefault("blob.root", "./blobdata")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.prefix", "")
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("blob.s3.path_style", false)

	lc := llm.DefaultConfig()
	v.SetDefault("llm.provider", lc.Provider)
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", lc.Anthropic.Model)
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.model", lc.OpenAI.Model)
	v.SetDefault("llm.openai.base_url", "")
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", lc.Gemini.Model)
	v.SetDefault("llm.openrouter.api_key", "")
	v.SetDefault("llm.openrouter.model", lc.OpenRouter.Model)
	v.SetDefault("llm.openrouter.base_url", "")
	v.SetDefault("llm.retry.max_attempts", lc.Retry.MaxAttempts)
	v.SetDefault("llm.retry.initial_wait", lc.Retry.InitialWait)
	v.SetDefault("llm.retry.max_wait", lc.Retry.MaxWait)
	v.SetDefault("llm.retry.multiplier", lc.Retry.Multiplier)
	v.SetDefault("llm.timeout", lc.Timeout)

	ls := lessons.DefaultConfig()
	v.SetDefault("lessons.max_tokens", ls.MaxTokens)
	v.SetDefault("lessons.temperature", ls.Temperature)
	v.SetDefault("lessons.prefetch_timeout", ls.PrefetchTimeout)

	ro := spacedrep.DefaultOptions()
	v.SetDefault("review.min_atoms", ro.MinAtoms)
	v.SetDefault("review.max_atoms", ro.MaxAtoms)
	v.SetDefault("review.questions_per_atom", ro.QuestionsPerAtom)
	v.SetDefault("review.probe_questions", ro.ProbeQuestions)
	v.SetDefault("review.sweep", "@every 1h")
	v.SetDefault("review.snapshot_keep", 20)
	v.SetDefault("review.concurrency", 8)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{})
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.service_name", "masterypath")
}

// Validate reports every problem in one error.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch strings.ToLower(c.Database.Driver) {
	case "", "sqlite", "sqlite3":
	case "pgx", "postgres", "postgresql":
		if c.Database.DSN == "" {
			add("database.dsn is required for driver %q", c.Database.Driver)
		}
	default:
		add("database.driver %q is not one of sqlite, pgx", c.Database.Driver)
	}

	switch c.Course.Source {
	case CourseFile:
		if c.Course.Path == "" {
			add("course.path is required when course.source is file")
		}
	case CourseNeo4j:
		if c.Neo4j.URI == "" {
			add("neo4j.uri is required when course.source is neo4j")
		}
		if c.Course.Name == "" {
			add("course.name is required when course.source is neo4j")
		}
	default:
		add("course.source %q is not one of file, neo4j", c.Course.Source)
	}

	switch blob.Driver(c.Blob.Driver) {
	case "", blob.DriverFS:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			add("blob.s3.bucket is required for the s3 driver")
		}
	default:
		add("blob.driver %q is not one of fs, s3", c.Blob.Driver)
	}

	if err := c.LLM.Validate(); err != nil {
		add("%v", err)
	}

	if c.Review.MinAtoms < 1 || c.Review.MaxAtoms < c.Review.MinAtoms {
		add("review.min_atoms (%d) and review.max_atoms (%d) must satisfy 1 <= min <= max", c.Review.MinAtoms, c.Review.MaxAtoms)
	}
	if c.Review.QuestionsPerAtom < 1 {
		add("review.questions_per_atom must be at least 1")
	}
	if c.Review.SnapshotKeep < 1 {
		add("review.snapshot_keep must be at least 1")
	}
	if c.Review.Concurrency < 1 {
		add("review.concurrency must be at least 1")
	}
	if c.Review.Sweep != "" {
		if _, err := cron.ParseStandard(c.Review.Sweep); err != nil {
			add("review.sweep %q: %v", c.Review.Sweep, err)
		}
	}

	if c.HTTP.Addr == "" {
		add("http.addr is required")
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "stdout", "none":
		case "otlp":
			if c.Tracing.Endpoint == "" {
				add("tracing.endpoint is required for the otlp exporter")
			}
		default:
			add("tracing.exporter %q is not one of stdout, otlp, none", c.Tracing.Exporter)
		}
		if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
			add("tracing.sample_ratio must be within [0, 1]")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
