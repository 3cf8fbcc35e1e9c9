package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	s := loadScenario(t, "toggle_class")

	assert.Equal(t, "toggle_class", s.Name)
	assert.Equal(t, "golden-session", s.Session)
	assert.Equal(t, `<div id="box"></div>`, s.Document)
	require.Len(t, s.Steps, 3)
	assert.Equal(t, OpOn, s.Steps[0].Op)
	assert.Equal(t, map[string]string{"class": "open"}, s.Steps[0].Set)
	assert.Equal(t, OpTick, s.Steps[1].Op)
	require.Len(t, s.Assertions, 3)
	assert.Equal(t, AssertHandlerCalls, s.Assertions[1].Type)
	assert.Equal(t, 1, s.Assertions[1].Count)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestLoadScenario_FromTempDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	content := `
name: tmp
description: "temp scenario"
document: "<p></p>"
steps:
  - op: attr
    select: p
    key: class
    value: x
assertions:
  - type: attr
    select: p
    key: class
    expect: x
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "tmp", s.Name)
}

func TestParseScenario_UnknownField(t *testing.T) {
	content := `
name: typo
description: "has a typo"
document: "<p></p>"
steps:
  - op: tick
assertion:
  - type: patch_count
`
	_, err := ParseScenario([]byte(content))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion")
}

func TestParseScenario_MissingFields(t *testing.T) {
	base := map[string]string{
		"name":        "name: n\n",
		"description": "description: d\n",
		"document":    "document: \"<p></p>\"\n",
		"steps":       "steps:\n  - op: tick\n",
		"assertions":  "assertions:\n  - type: patch_count\n",
	}

	for _, missing := range []string{"name", "description", "document", "steps", "assertions"} {
		t.Run(missing, func(t *testing.T) {
			var content string
			for _, field := range []string{"name", "description", "document", "steps", "assertions"} {
				if field != missing {
					content += base[field]
				}
			}

			_, err := ParseScenario([]byte(content))

			require.Error(t, err)
			assert.Contains(t, err.Error(), missing)
		})
	}
}

func TestValidateStep(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr string
	}{
		{"missing op", Step{}, "op is required"},
		{"unknown op", Step{Op: "explode"}, "unknown op"},
		{"attr without select", Step{Op: OpAttr, Key: "k"}, "select is required"},
		{"attr without key", Step{Op: OpAttr, Select: "p"}, "key is required"},
		{"remove_attr without key", Step{Op: OpRemoveAttr, Select: "p"}, "key is required"},
		{"text without select", Step{Op: OpText}, "select is required"},
		{"append without markup", Step{Op: OpAppend, Select: "ul"}, "markup is required"},
		{"on without handler", Step{Op: OpOn, Select: "p", Event: "click"}, "event and handler"},
		{"trigger without event", Step{Op: OpTrigger, Select: "p"}, "event is required"},
		{"off without event", Step{Op: OpOff, Select: "p"}, "event is required"},
		{"ready without handler", Step{Op: OpReady}, "handler is required"},
		{"ready set without select", Step{Op: OpReady, Handler: "h", Set: map[string]string{"a": "b"}}, "select is required"},
		{"call without plugin", Step{Op: OpCall, Select: "p"}, "plugin is required"},
		{"negative tick", Step{Op: OpTick, Count: -1}, "non-negative"},
		{"valid ready", Step{Op: OpReady, Handler: "h"}, ""},
		{"valid text", Step{Op: OpText, Select: "p"}, ""},
		{"valid tick", Step{Op: OpTick, Count: 3}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateStep(2, &tt.step)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "steps[2]")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAssertion(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"missing type", Assertion{}, "type is required"},
		{"unknown type", Assertion{Type: "final_state"}, "unknown assertion type"},
		{"attr without key", Assertion{Type: AssertAttr, Select: "p"}, "select and key"},
		{"text without select", Assertion{Type: AssertText}, "select is required"},
		{"html without select", Assertion{Type: AssertHTML}, "select is required"},
		{"negative patch count", Assertion{Type: AssertPatchCount, Count: -1}, "non-negative"},
		{"calls without handler", Assertion{Type: AssertHandlerCalls}, "handler is required"},
		{"valid patch count", Assertion{Type: AssertPatchCount, Op: "append", Count: 2}, ""},
		{"valid attr absent", Assertion{Type: AssertAttr, Select: "p", Key: "k", Absent: true}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAssertion(0, &tt.assertion)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
