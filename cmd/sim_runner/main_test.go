package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miretskiy/rrsched/recorder"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(os.Stderr)
	return cmd.Execute()
}

func TestRun_JSONOutput(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.json")

	require.NoError(t, execute(t, "--format", "json", "--output", outPath))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var results map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &results))
	require.Equal(t, float64(30), results["finalClock"])
	require.Equal(t, float64(16), results["ticks"])
	require.Len(t, results["trace"], 26)
}

func TestRun_FlagOverrides(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "sim.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`time_slice: 2
cst_penalty: 1
aging_threshold: 5
processes:
  - id: 1
    burst_time: 5
    priority: 1
  - id: 2
    burst_time: 10
    priority: 2
  - id: 3
    burst_time: 15
    priority: 3
`), 0644))
	outPath := filepath.Join(dir, "out.json")

	require.NoError(t, execute(t, "--config", configPath, "--dispatch", "priority",
		"--format", "json", "--output", outPath))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var results struct {
		Processes []struct {
			ID             int `json:"id"`
			CompletionTime int `json:"completionTime"`
		} `json:"processes"`
	}
	require.NoError(t, json.Unmarshal(data, &results))
	require.Equal(t, 5, results.Processes[0].CompletionTime, "priority dispatch runs process 1 to completion first")
}

func TestRun_TextOutputAndRecording(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.txt")
	dbPath := filepath.Join(dir, "trace")

	require.NoError(t, execute(t, "--output", outPath, "--record", dbPath))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "Process 1 has completed at time 13")

	r := recorder.NewSQLiteRecorder(dbPath)
	require.ErrorContains(t, r.Init(), "already exists", "the database must have been written")
}

func TestRun_RejectsBadInput(t *testing.T) {
	require.Error(t, execute(t, "--time-slice", "0"))
	require.Error(t, execute(t, "--dispatch", "lottery"))
	require.Error(t, execute(t, "--format", "xml"))
	require.Error(t, execute(t, "--max-ticks", "3"))
	require.Error(t, execute(t, "--config", filepath.Join(t.TempDir(), "missing.json")))
}

func TestRun_GeneratedWorkload(t *testing.T) {
	dir := t.TempDir()
	outA := filepath.Join(dir, "a.json")
	outB := filepath.Join(dir, "b.json")

	args := []string{"--generate", "6", "--seed", "21", "--burst-dist", "geometric", "--format", "json"}
	require.NoError(t, execute(t, append(args, "--output", outA)...))
	require.NoError(t, execute(t, append(args, "--output", outB)...))

	read := func(path string) map[string]interface{} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var results map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &results))
		return results
	}
	a, b := read(outA), read(outB)
	require.Len(t, a["processes"], 6)
	require.Equal(t, a["processes"], b["processes"], "same seed, same workload")
	require.Equal(t, a["finalClock"], b["finalClock"])

	require.Error(t, execute(t, "--generate", "3", "--burst-dist", "poisson"))
	require.Error(t, execute(t, "--generate", "-1"))
}
