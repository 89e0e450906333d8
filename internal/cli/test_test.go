package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleScenarios = "../harness/testdata/scenarios"

const pairScenario = `name: pair_settles
description: "Two intents swap directly"
setup:
  - op: intents.submit
    actor: dave
    payload: {id: D, give: [{id: card-d, class: card, value: "5"}], want: {asset_ids: [card-e]}}
  - op: intents.submit
    actor: erin
    payload: {id: E, give: [{id: card-e, class: card, value: "5"}], want: {asset_ids: [card-d]}}
flow:
  - op: matching.run
    actor: ops
    key: run-1
    expect:
      result: {stats: {selected_proposals_count: 1}}
assertions:
  - type: event_count
    event: proposal.created
    count: 1
`

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarios, 0o755))
	path := filepath.Join(scenarios, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestTestCommandNonExistentPath(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario path not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := runTestCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := runTestCommand(t, "json", t.TempDir())
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandExampleScenarioMatchesGolden(t *testing.T) {
	out, err := runTestCommand(t, "text", exampleScenarios)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ ring_settles_pair_expires")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandUpdateWritesGolden(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "pair.yaml", pairScenario)

	out, err := runTestCommand(t, "text", "--update", path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ pair_settles (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "pair.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"pair_settles"`)

	// A second run compares against the file just written.
	out, err = runTestCommand(t, "text", path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ pair_settles\n")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "pair.yaml", pairScenario)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "pair.golden"), []byte(`{}`), 0o644))

	out, err := runTestCommand(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))
	assert.Contains(t, out, "✗ pair_settles")
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommandFailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "wrong.yaml", `name: wrong
description: "Expects a proposal that cannot exist"
flow:
  - op: matching.run
    actor: ops
    key: run-1
    expect:
      result: {stats: {selected_proposals_count: 1}}
`)

	out, err := runTestCommand(t, "json", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var response struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "error", response.Status)
	assert.Equal(t, "test_failed", response.Error.Code)
	assert.Equal(t, 1, response.Data.Failed)
	require.Len(t, response.Data.Scenarios, 1)
	assert.Equal(t, "wrong", response.Data.Scenarios[0].Name)
	assert.NotEmpty(t, response.Data.Scenarios[0].Errors)
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "broken.yaml", "name: broken\n")

	out, err := runTestCommand(t, "text", path)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestHelpText(t *testing.T) {
	out, err := runTestCommand(t, "text", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "in-memory marketplace")
	assert.Contains(t, out, "--update")
	assert.Contains(t, out, "--filter")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test1.yaml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test2.yml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte(""), 0o644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	single, err := findScenarioFiles(filepath.Join(tmpDir, "test1.yaml"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(tmpDir, "test1.yaml")}, single)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ring-settles.yaml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ring-expires.yaml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "pair-settles.yaml"), []byte(""), 0o644))

	files, err := findScenarioFiles(tmpDir, "ring-*")
	require.NoError(t, err)
	assert.Len(t, files, 2)
	for _, f := range files {
		assert.Regexp(t, `ring-[a-z]+\.yaml$`, f)
	}
}

func TestFindScenarioFilesSubdirectories(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	require.NoError(t, os.MkdirAll(subDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "root.yaml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "sub.yaml"), []byte(""), 0o644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestGoldenFilePath(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"/path/to/scenarios/settle.yaml", "/path/to/golden/settle.golden"},
		{"/path/to/scenarios/settle.yml", "/path/to/golden/settle.golden"},
		{"testdata/scenarios/ring.yaml", "testdata/golden/ring.golden"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, goldenFilePath(tc.input))
	}
}
