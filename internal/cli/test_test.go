package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentPath(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario path not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())

	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandPassingDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "toggle.yaml", toggleScenario)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)

	require.NoError(t, err)
	assert.Contains(t, out, "✓ toggle_class")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "toggle.yaml", toggleScenario)
	writeFile(t, dir, "failing.yaml", failingScenario)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), path)

	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "toggle.yaml", toggleScenario)
	writeFile(t, dir, "failing.yaml", failingScenario)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "Assertion failed: attr")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "toggle.yaml", toggleScenario)
	writeFile(t, dir, "failing.yaml", failingScenario)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "--filter", "tog*", dir)

	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "name: broken\nbogus: true\n")

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)

	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandGoldenMatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "toggle.yaml", toggleScenario)
	writeFile(t, dir, filepath.Join("golden", "toggle.golden"), toggleGolden)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)

	require.NoError(t, err)
	assert.Contains(t, out, "✓ toggle_class")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "toggle.yaml", toggleScenario)
	writeFile(t, dir, filepath.Join("golden", "toggle.golden"), `{"scenario_name":"toggle_class","trace":[]}`)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)

	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandUpdate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "toggle.yaml", toggleScenario)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "--update", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ toggle_class (golden updated)")

	data, err := os.ReadFile(filepath.Join(dir, "golden", "toggle.golden"))
	require.NoError(t, err)
	assert.Equal(t, toggleGolden, string(data))

	_, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	assert.NoError(t, err)
}

func TestTestCommandJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "toggle.yaml", toggleScenario)
	writeFile(t, dir, "failing.yaml", failingScenario)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}
