package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a reconciliation scenario.
// A scenario loads a document, expresses intent through a sequence of
// steps, lets the engine tick, and asserts on the resulting external tree
// and patch trace.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Document is the initial markup of the external tree.
	Document string `yaml:"document"`

	// Session is an optional fixed journal session token.
	// If empty, defaults to "test-session-default" for deterministic traces.
	Session string `yaml:"session,omitempty"`

	// Events adds event classes (class → names) to the default partition.
	Events map[string][]string `yaml:"events,omitempty"`

	// Steps are applied in order. Writes take effect externally only on
	// tick steps and on the final settling tick.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final tree, trace and handler calls.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one caller intent.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Select is the query the step applies to.
	Select string `yaml:"select,omitempty"`

	// Key is the attribute name (attr, remove_attr).
	Key string `yaml:"key,omitempty"`

	// Value is the attribute value or text (attr, text).
	Value string `yaml:"value,omitempty"`

	// Markup is the fragment to append (append).
	Markup string `yaml:"markup,omitempty"`

	// Event is the event name (on, off, trigger).
	Event string `yaml:"event,omitempty"`

	// Handler names the handler whose calls are counted (on, ready).
	Handler string `yaml:"handler,omitempty"`

	// Set lists attributes a handler writes when it runs. For on, they are
	// written to the event target; for ready, to Select.
	Set map[string]string `yaml:"set,omitempty"`

	// Filter is the readiness filter (ready).
	Filter string `yaml:"filter,omitempty"`

	// Plugin and Args name a plugin call (call).
	Plugin string   `yaml:"plugin,omitempty"`
	Args   []string `yaml:"args,omitempty"`

	// Count is the number of ticks (tick). Zero means one.
	Count int `yaml:"count,omitempty"`
}

// Step op constants.
const (
	OpAttr       = "attr"
	OpRemoveAttr = "remove_attr"
	OpText       = "text"
	OpAppend     = "append"
	OpOn         = "on"
	OpOff        = "off"
	OpTrigger    = "trigger"
	OpReady      = "ready"
	OpCall       = "call"
	OpTick       = "tick"
)

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "attr": attribute Key of the first Select match equals Expect
	// - "text": text of the first Select match equals Expect
	// - "html": rendered markup of the first Select match equals Expect
	// - "patch_count": number of patches with Op (all ops if empty) equals Count
	// - "handler_calls": calls of Handler equal Count
	Type string `yaml:"type"`

	Select string `yaml:"select,omitempty"`
	Key    string `yaml:"key,omitempty"`
	Expect string `yaml:"expect,omitempty"`

	// Absent asserts that attribute Key is not set (attr).
	Absent bool `yaml:"absent,omitempty"`

	Op      string `yaml:"op,omitempty"`
	Handler string `yaml:"handler,omitempty"`
	Count   int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertAttr         = "attr"
	AssertText         = "text"
	AssertHTML         = "html"
	AssertPatchCount   = "patch_count"
	AssertHandlerCalls = "handler_calls"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Document == "" {
		return fmt.Errorf("document is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its op.
func validateStep(index int, st *Step) error {
	if st.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", index)
	}

	needSelect := func() error {
		if st.Select == "" {
			return fmt.Errorf("steps[%d]: select is required for %s", index, st.Op)
		}
		return nil
	}

	switch st.Op {
	case OpAttr, OpRemoveAttr:
		if err := needSelect(); err != nil {
			return err
		}
		if st.Key == "" {
			return fmt.Errorf("steps[%d]: key is required for %s", index, st.Op)
		}
	case OpText:
		return needSelect()
	case OpAppend:
		if err := needSelect(); err != nil {
			return err
		}
		if st.Markup == "" {
			return fmt.Errorf("steps[%d]: markup is required for append", index)
		}
	case OpOn:
		if err := needSelect(); err != nil {
			return err
		}
		if st.Event == "" || st.Handler == "" {
			return fmt.Errorf("steps[%d]: event and handler are required for on", index)
		}
	case OpOff, OpTrigger:
		if err := needSelect(); err != nil {
			return err
		}
		if st.Event == "" {
			return fmt.Errorf("steps[%d]: event is required for %s", index, st.Op)
		}
	case OpReady:
		if st.Handler == "" {
			return fmt.Errorf("steps[%d]: handler is required for ready", index)
		}
		if len(st.Set) > 0 && st.Select == "" {
			return fmt.Errorf("steps[%d]: select is required when ready sets attributes", index)
		}
	case OpCall:
		if err := needSelect(); err != nil {
			return err
		}
		if st.Plugin == "" {
			return fmt.Errorf("steps[%d]: plugin is required for call", index)
		}
	case OpTick:
		if st.Count < 0 {
			return fmt.Errorf("steps[%d]: count must be non-negative for tick", index)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertAttr:
		if a.Select == "" || a.Key == "" {
			return fmt.Errorf("assertions[%d]: select and key are required for attr", index)
		}
	case AssertText, AssertHTML:
		if a.Select == "" {
			return fmt.Errorf("assertions[%d]: select is required for %s", index, a.Type)
		}
	case AssertPatchCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for patch_count", index)
		}
	case AssertHandlerCalls:
		if a.Handler == "" {
			return fmt.Errorf("assertions[%d]: handler is required for handler_calls", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for handler_calls", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
