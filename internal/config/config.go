// Package config loads engine configuration from CUE files.
//
// A configuration file is plain CUE unified against the embedded #Config
// schema, so unknown fields, malformed durations and bad event names are
// rejected with file positions before anything is started:
//
//	tick:     "32ms"
//	database: "journal.db"
//	events: TouchEvents: ["touchstart", "touchend"]
package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/parallel/internal/events"
	"github.com/roach88/parallel/internal/host"
)

//go:embed schema.cue
var schemaCUE string

// Config is the resolved engine configuration.
type Config struct {
	// Tick is the delay between host ticks.
	Tick time.Duration

	// Database is the patch journal path. Empty disables the journal.
	Database string

	// Events is the full event partition (class → names), defaults included.
	Events map[string][]string
}

// raw mirrors #Config for decoding.
type raw struct {
	Tick     string              `json:"tick"`
	Database string              `json:"database"`
	Events   map[string][]string `json:"events"`
}

// Error reports an invalid configuration, with the CUE position when known.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Tick:   host.DefaultInterval,
		Events: events.DefaultClasses(),
	}
}

// Load reads and parses the CUE file at path.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(src, path)
}

// Parse validates src against #Config and resolves it over Default.
// filename is used in error positions only.
func Parse(src []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var r raw
	if err := unified.Decode(&r); err != nil {
		return nil, formatCUEError(err)
	}

	cfg := Default()

	if r.Tick != "" {
		d, err := time.ParseDuration(r.Tick)
		if err != nil || d <= 0 {
			return nil, &Error{
				Field:   "tick",
				Message: fmt.Sprintf("must be a positive duration, got %q", r.Tick),
				Pos:     unified.LookupPath(cue.ParsePath("tick")).Pos(),
			}
		}
		cfg.Tick = d
	}

	cfg.Database = r.Database

	if err := cfg.MergeEvents(r.Events); err != nil {
		return nil, &Error{
			Field:   "events",
			Message: err.Error(),
			Pos:     unified.LookupPath(cue.ParsePath("events")).Pos(),
		}
	}

	return cfg, nil
}

// MergeEvents adds extra class names to the partition and checks that it
// is still a partition.
func (c *Config) MergeEvents(extra map[string][]string) error {
	classes := make([]string, 0, len(extra))
	for class := range extra {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	for _, class := range classes {
		for _, name := range extra[class] {
			if !contains(c.Events[class], name) {
				c.Events[class] = append(c.Events[class], name)
			}
		}
	}

	_, err := events.NewBridge(c.Events)
	return err
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &Error{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
