package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseCSV = `entity_id,category,elapsed_units,stage,engagement_flag
C1,Consulting,10,None,0
T1,Tech,14,None,1
F1,Finance,3,Applying,1
`

type workspace struct {
	dir, base, snapshots, outputs string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	w := &workspace{
		dir:       dir,
		base:      filepath.Join(dir, "cohort.csv"),
		snapshots: filepath.Join(dir, "snapshots"),
		outputs:   filepath.Join(dir, "outputs"),
	}
	require.NoError(t, os.WriteFile(w.base, []byte(baseCSV), 0o644))
	return w
}

// run executes the command tree. Every flag that tests rely on is passed
// explicitly because cobra keeps flag values between executions.
func (w *workspace) run(t *testing.T, eventLog string, args ...string) (string, error) {
	t.Helper()
	all := append(args,
		"--base-table", w.base,
		"--event-log", eventLog,
		"--snapshot-dir", w.snapshots,
		"--output-dir", w.outputs,
		"--run-date", "2024-01-15",
		"--log-level", "error",
	)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(all)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestGenerateThenRefresh_CSVLog(t *testing.T) {
	w := newWorkspace(t)
	logPath := filepath.Join(w.dir, "events", "update_events_log.csv")

	out, err := w.run(t, logPath, "generate", "--seed", "7", "--count", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "dated 2024-01-15")

	body, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "entity_id,event_date,field,new_value,source\n"))

	out, err = w.run(t, logPath, "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Bottom line as of 2024-01-15")

	for _, p := range []string{
		filepath.Join(w.snapshots, "cohort_asof_2024-01-15.csv"),
		filepath.Join(w.outputs, "intervention_recommendations_2024-01-15.csv"),
		filepath.Join(w.outputs, "category_bottom_line_2024-01-15.csv"),
	} {
		assert.FileExists(t, p)
		assert.Contains(t, out, p)
	}
}

func TestGenerate_ZeroCountCreatesHeaderOnlyLog(t *testing.T) {
	w := newWorkspace(t)
	logPath := filepath.Join(w.dir, "log.csv")

	_, err := w.run(t, logPath, "generate", "--seed", "42", "--count", "0")
	require.NoError(t, err)

	body, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "entity_id,event_date,field,new_value,source\n", string(body))
}

func TestImportAndList(t *testing.T) {
	w := newWorkspace(t)
	logPath := filepath.Join(w.dir, "log.csv")
	payload := filepath.Join(w.dir, "events.json")
	require.NoError(t, os.WriteFile(payload, []byte(`[
		{"entity_id": "C1", "event_date": "2024-01-03", "field": "stage", "new_value": "Applying"},
		{"entity_id": "C1", "event_date": "2024-01-20", "field": "engagement_flag", "new_value": 1, "source": "advisor"},
		{"entity_id": "C1", "event_date": "2024-01-03", "field": "stage", "new_value": "Applying"}
	]`), 0o644))

	out, err := w.run(t, logPath, "events", "import", payload)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 events (1 duplicates skipped, 2 total)")

	out, err = w.run(t, logPath, "events", "list", "--as-of", "2024-01-10", "--format", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "Applying")
	assert.NotContains(t, out, "advisor")

	out, err = w.run(t, logPath, "events", "list", "--as-of", "2024-01-31", "--format", "csv")
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"entity_id,event_date,field,new_value,source",
		"C1,2024-01-03,stage,Applying,",
		"C1,2024-01-20,engagement_flag,1,advisor",
		"",
	}, "\n"), out)

	_, err = w.run(t, logPath, "events", "list", "--format", "yaml")
	require.Error(t, err)
}

func TestImport_RejectsNonWhitelistedField(t *testing.T) {
	w := newWorkspace(t)
	logPath := filepath.Join(w.dir, "log.csv")
	payload := filepath.Join(w.dir, "events.json")
	require.NoError(t, os.WriteFile(payload, []byte(
		`[{"entity_id": "C1", "event_date": "2024-01-03", "field": "category", "new_value": "Tech"}]`), 0o644))

	_, err := w.run(t, logPath, "events", "import", payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category")

	body, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "entity_id,event_date,field,new_value,source\n", string(body), "log left unchanged")
}

func TestRefresh_InvalidLogWritesNothing(t *testing.T) {
	w := newWorkspace(t)
	logPath := filepath.Join(w.dir, "log.csv")
	require.NoError(t, os.WriteFile(logPath, []byte(
		"entity_id,event_date,field,new_value,source\nC1,2024-01-03,category,Tech,manual\n"), 0o644))

	_, err := w.run(t, logPath, "refresh")
	require.Error(t, err)
	assert.NoDirExists(t, w.snapshots)
	assert.NoDirExists(t, w.outputs)
}

func TestRefresh_SQLiteLogAndSnapshots(t *testing.T) {
	w := newWorkspace(t)
	dsn := fmt.Sprintf("sqlite://%s", filepath.Join(w.dir, "db", "events.db"))

	_, err := w.run(t, dsn, "generate", "--seed", "3", "--count", "5")
	require.NoError(t, err)
	_, err = w.run(t, dsn, "refresh")
	require.NoError(t, err)

	out, err := w.run(t, dsn, "snapshots", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-01-15")

	out, err = w.run(t, dsn, "events", "list", "--as-of", "2024-01-31", "--format", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "synthetic_weekly_generator")
}

func TestSnapshots_RequireSQLLog(t *testing.T) {
	w := newWorkspace(t)
	_, err := w.run(t, filepath.Join(w.dir, "log.csv"), "snapshots", "list")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "cohortwatch "))
	assert.True(t, strings.HasSuffix(out.String(), fmt.Sprintf(" %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)))
}

func TestVersionString_Stamped(t *testing.T) {
	defer func(v, c string) { version, commit = v, c }(version, commit)
	version, commit = "v1.4.0", "3f9c2ab"

	want := fmt.Sprintf("cohortwatch v1.4.0 (3f9c2ab) %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	assert.Equal(t, want, versionString())
}
