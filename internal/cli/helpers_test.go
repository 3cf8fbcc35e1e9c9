package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const toggleScenario = `
name: toggle_class
description: "A click handler writes the event target"
session: cli-session
document: '<div id="box"></div>'
steps:
  - op: on
    select: "#box"
    event: click
    handler: toggle
    set: { class: "open" }
  - op: tick
  - op: trigger
    select: "#box"
    event: click
assertions:
  - type: attr
    select: "#box"
    key: class
    expect: open
  - type: handler_calls
    handler: toggle
    count: 1
`

const failingScenario = `
name: failing
description: "Expects a class that is never written"
document: '<div id="box"></div>'
steps:
  - op: tick
assertions:
  - type: attr
    select: "#box"
    key: class
    expect: open
`

const toggleGolden = `{"scenario_name":"toggle_class","session":"cli-session","trace":[{"identity":0,"key":"click","op":"dispatch","seq":1,"tick":2,"value":"MouseEvents"},{"identity":0,"key":"class","op":"set_attr","seq":2,"tick":2,"value":"open"}]}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs cmd with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
