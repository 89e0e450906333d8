// Package config loads swapgraph.cue.
//
// The user file is unified with an embedded CUE schema that carries the
// defaults and constraints, so a missing file or an empty one yields the
// defaults and an out-of-range value is rejected with its CUE position.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// DefaultFile is the config file looked up when none is given.
const DefaultFile = "swapgraph.cue"

// Duration is a time.Duration written as a Go duration string ("24h").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Config is the decoded configuration.
type Config struct {
	Store      Store      `json:"store"`
	Matching   Matching   `json:"matching"`
	Settlement Settlement `json:"settlement"`
	Signing    Signing    `json:"signing"`
	Lock       Lock       `json:"lock"`
	Policy     Policy     `json:"policy"`
	Journal    Journal    `json:"journal"`
	Telemetry  Telemetry  `json:"telemetry"`
}

type Store struct {
	Path string `json:"path"`
}

type Matching struct {
	MaxCycleLength int      `json:"max_cycle_length"`
	MaxCandidates  int      `json:"max_candidates"`
	TimeoutMS      int64    `json:"timeout_ms"`
	ProposalTTL    Duration `json:"proposal_ttl"`
	ExactLimit     int      `json:"exact_limit"`
	NodeBudget     int      `json:"node_budget"`
	Shadow         bool     `json:"shadow"`
}

// Bounds returns the default search bounds for runs that omit them.
func (m Matching) Bounds() ir.Bounds {
	return ir.Bounds{
		MaxCycleLength: m.MaxCycleLength,
		MaxCandidates:  m.MaxCandidates,
		TimeoutMS:      m.TimeoutMS,
	}
}

type Settlement struct {
	DepositWindow Duration `json:"deposit_window"`
	SweepInterval Duration `json:"sweep_interval"`
	SweepRate     float64  `json:"sweep_rate"`
	SweepBatch    int      `json:"sweep_batch"`
}

type Signing struct {
	KeyID    string `json:"key_id"`
	SeedFile string `json:"seed_file"`
}

type Lock struct {
	Backend  string   `json:"backend"`
	Addr     string   `json:"addr"`
	Password string   `json:"password"`
	DB       int      `json:"db"`
	Prefix   string   `json:"prefix"`
	TTL      Duration `json:"ttl"`
	MaxWait  Duration `json:"max_wait"`
}

// Policy holds CEL rules keyed by operation; "*" applies to all.
type Policy struct {
	Rules map[string][]string `json:"rules"`
}

type Journal struct {
	PostgresDSN string   `json:"postgres_dsn"`
	BatchSize   int      `json:"batch_size"`
	Rate        float64  `json:"rate"`
	Interval    Duration `json:"interval"`
}

type Telemetry struct {
	Exporter    string  `json:"exporter"`
	Endpoint    string  `json:"endpoint"`
	Insecure    bool    `json:"insecure"`
	SampleRate  float64 `json:"sample_rate"`
	Environment string  `json:"environment"`
}

// Default returns the configuration with every default applied.
func Default() Config {
	cfg, err := Parse("default.cue", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema is invalid: %v", err))
	}
	return cfg
}

// Load reads path and applies defaults. A missing file yields Default().
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse unifies src with the schema and decodes the result. name is used
// in error positions.
func Parse(name string, src []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("config: compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	user := ctx.CompileBytes(src, cue.Filename(name))
	if err := user.Err(); err != nil {
		return Config{}, fmt.Errorf("config: %s", cueerrors.Details(err, nil))
	}

	v := def.Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("config: %s", cueerrors.Details(err, nil))
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.Policy.Rules == nil {
		cfg.Policy.Rules = map[string][]string{}
	}
	return cfg, nil
}
