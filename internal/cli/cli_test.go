package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zappabad/herdmarket/internal/reporting"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "herdmarket dev\n", out)
}

func TestRunRecordsAndReports(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "runs")
	reportPath := filepath.Join(dir, "run.md")
	csvPath := filepath.Join(dir, "models.csv")

	out, err := execute(t, "run",
		"--steps", "30", "--agents", "20", "--seed", "5", "--topology", "regular",
		"--storage", "csv", "--dsn", store,
		"--report", reportPath, "--csv", csvPath,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Run summary")

	report, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(report), "30 ticks recorded.")

	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 31)

	out, err = execute(t, "report", "--storage", "csv", "--dsn", store, "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, string(raw), out, "stored series must match the run's own export")

	out, err = execute(t, "runs", "--storage", "csv", "--dsn", store)
	require.NoError(t, err)
	assert.Contains(t, out, "STEPS")
	assert.Contains(t, out, "30")
}

func TestRunQuiet(t *testing.T) {
	out, err := execute(t, "run", "--steps", "5", "--agents", "10", "--topology", "none", "-q")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	_, err := execute(t, "run", "--steps", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestReportNeedsPersistentStorage(t *testing.T) {
	_, err := execute(t, "report", "--storage", "memory")
	require.Error(t, err)

	_, err = execute(t, "report", "--storage", "csv", "--dsn", t.TempDir(), "--format", "html")
	require.Error(t, err)

	_, err = execute(t, "report", "--storage", "csv", "--dsn", t.TempDir())
	require.ErrorContains(t, err, "no runs recorded")
}

func TestConfigCommands(t *testing.T) {
	out, err := execute(t, "config", "show")
	require.NoError(t, err)

	var shown map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Contains(t, shown, "simulation")
	assert.Contains(t, shown, "network")

	out, err = execute(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")

	t.Setenv("HERDMARKET_SIMULATION_AGENTS", "0")
	_, err = execute(t, "config", "validate")
	require.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "herdmarket.yaml")
	require.NoError(t, os.WriteFile(path, []byte("simulation:\n  steps: 7\n  agents: 9\nnetwork:\n  kind: none\n"), 0o644))

	out, err := execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"steps": 7`)
	assert.Contains(t, out, `"agents": 9`)
}

func TestStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","run_id":"abc","steps":3,"clients":2}`))
	})
	mux.HandleFunc("/api/summary", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reporting.Summary{RunID: "abc", Steps: 3, InitialPrice: 100, FinalPrice: 101})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := execute(t, "status", "--url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "abc")

	_, err = execute(t, "status", "--url", "http://127.0.0.1:1", "--timeout", "200ms")
	require.Error(t, err)
}
