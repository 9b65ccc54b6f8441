package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/memristive.report/internal/batch"
	"github.com/banshee-data/memristive.report/internal/ivsweep"
	"github.com/banshee-data/memristive.report/internal/resultstore"
	"github.com/banshee-data/memristive.report/internal/testutil"
)

func writeSweep(t *testing.T, dir, name string, v, i []float64) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("# device_id: " + strings.TrimSuffix(name, filepath.Ext(name)) + "\n")
	b.WriteString("voltage,current\n")
	for k := range v {
		b.WriteString(strconv.FormatFloat(v[k], 'g', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(i[k], 'g', -1, 64))
		b.WriteByte('\n')
	}
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0o644))
	return p
}

func fixtureDir(t *testing.T) (dir, switching, capacitor string) {
	t.Helper()
	dir = t.TempDir()
	v, i := testutil.SwitchingSweep(testutil.DefaultSwitchingOptions())
	switching = writeSweep(t, dir, "d12.csv", v, i)
	v, i = testutil.Capacitor(400, 1e-3, 60)
	capacitor = writeSweep(t, dir, "c01.csv", v, i)
	return dir, switching, capacitor
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRun_JSONWithStore(t *testing.T) {
	dir, switching, capacitor := fixtureDir(t)
	dbPath := filepath.Join(dir, "results.db")

	code, stdout, stderr := runCLI(t, "-format", "json", "-db", dbPath, "-workers", "2", switching, capacitor)
	require.Equal(t, exitOK, code, stderr)

	var rep report
	require.NoError(t, json.Unmarshal([]byte(stdout), &rep))
	assert.Equal(t, ivsweep.DefaultWeightsVersion, rep.WeightsVersion)
	assert.Equal(t, "built-in", rep.ConfigSource)
	require.Len(t, rep.Results, 2)
	assert.Equal(t, switching, rep.Results[0].Source)
	assert.Equal(t, ivsweep.Memristive, rep.Results[0].Result.DeviceType)
	assert.Equal(t, "d12", rep.Results[0].Result.DeviceID)
	assert.Equal(t, ivsweep.Capacitive, rep.Results[1].Result.DeviceType)
	assert.Equal(t, 2, rep.Summary.Total)
	assert.Zero(t, rep.Summary.Failed)

	store, err := resultstore.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()
	rec, err := store.Get(context.Background(), rep.Results[0].ID)
	require.NoError(t, err)
	assert.Equal(t, switching, rec.Source)
	assert.Equal(t, ivsweep.Memristive, rec.DeviceType)
}

func TestRun_TextOutput(t *testing.T) {
	dir, _, _ := fixtureDir(t)

	code, stdout, stderr := runCLI(t, dir)
	require.Equal(t, exitOK, code, stderr)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "c01.csv")
	assert.Contains(t, lines[0], "capacitive")
	assert.Contains(t, lines[1], "d12.csv")
	assert.Contains(t, lines[1], "memristive")
	assert.Contains(t, lines[1], "Ron 3.58 kΩ")
	assert.Contains(t, lines[1], "Roff 10.7 kΩ")
	assert.Equal(t, "2 sweeps (weights 1.4): memristive 1, capacitive 1; 0 failed, 0 skipped", lines[2])
}

func TestRun_PerSweepFailures(t *testing.T) {
	dir, switching, _ := fixtureDir(t)
	short := writeSweep(t, dir, "short.csv", []float64{0}, []float64{0})
	missing := filepath.Join(dir, "missing.csv")

	code, stdout, _ := runCLI(t, "-format", "json", switching, short, missing)
	assert.Equal(t, exitFailed, code)

	var rep report
	require.NoError(t, json.Unmarshal([]byte(stdout), &rep))
	require.Len(t, rep.Results, 3)
	assert.NotNil(t, rep.Results[0].Result)
	assert.Contains(t, rep.Results[1].Error, "insufficient data")
	assert.NotEmpty(t, rep.Results[2].Error)
	assert.Equal(t, 2, rep.Summary.Failed)
}

func TestRun_ReadVoltageAndReports(t *testing.T) {
	dir, switching, _ := fixtureDir(t)
	reports := filepath.Join(dir, "reports")

	code, stdout, stderr := runCLI(t, "-format", "json", "-read-voltage", "0.2", "-report-dir", reports, switching)
	require.Equal(t, exitOK, code, stderr)

	var rep report
	require.NoError(t, json.Unmarshal([]byte(stdout), &rep))
	assert.Equal(t, 0.2, rep.Results[0].Result.Resistance.ReadVoltage)
	assert.Equal(t, filepath.Join(reports, "d12.json"), rep.Results[0].Report)

	body, err := os.ReadFile(filepath.Join(reports, "d12.json"))
	require.NoError(t, err)
	var saved struct {
		Source string          `json:"source"`
		Result *ivsweep.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(body, &saved))
	assert.Equal(t, switching, saved.Source)
	assert.Equal(t, ivsweep.Memristive, saved.Result.DeviceType)
}

func TestRun_ConfigFile(t *testing.T) {
	dir, _, capacitor := fixtureDir(t)
	cfgPath := filepath.Join(dir, "lab.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("version: 1.5-lab\nweights:\n  capacitive_phase: 40\n"), 0o644))

	code, stdout, stderr := runCLI(t, "-format", "json", "-config", cfgPath, capacitor)
	require.Equal(t, exitOK, code, stderr)

	var rep report
	require.NoError(t, json.Unmarshal([]byte(stdout), &rep))
	assert.Equal(t, "1.5-lab", rep.WeightsVersion)
	assert.Equal(t, cfgPath, rep.ConfigSource)
	assert.Equal(t, "1.5-lab", rep.Results[0].Result.WeightsVersion)
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "-version")
	assert.Equal(t, exitOK, code)
	assert.True(t, strings.HasPrefix(stdout, "ivclassify dev"), stdout)
	assert.Contains(t, stdout, "weights 1.4")
}

func TestRun_UsageErrors(t *testing.T) {
	dir, switching, _ := fixtureDir(t)
	badConfig := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badConfig, []byte(`{"version":"x","weights":{"nope":1}}`), 0o644))
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.MkdirAll(empty, 0o755))

	tests := []struct {
		name string
		args []string
	}{
		{"no inputs", nil},
		{"bad format", []string{"-format", "xml", switching}},
		{"negative workers", []string{"-workers", "-1", switching}},
		{"negative read voltage", []string{"-read-voltage", "-0.1", switching}},
		{"unknown flag", []string{"-frobnicate", switching}},
		{"invalid config", []string{"-config", badConfig, switching}},
		{"empty directory", []string{empty}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCLI(t, tt.args...)
			assert.Equal(t, exitUsage, code)
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	_, switching, capacitor := fixtureDir(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out, errOut bytes.Buffer
	code := run(ctx, []string{switching, capacitor}, &out, &errOut)
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, out.String(), "0 failed, 2 skipped")
	assert.Contains(t, errOut.String(), "run interrupted")
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.JSON", "notes.md", "sub/c.tsv"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("0,0\n"), 0o644))
	}
	explicit := filepath.Join(dir, "notes.md")

	got, err := expandInputs([]string{dir, explicit, "does-not-exist.csv"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.JSON"),
		filepath.Join(dir, "b.csv"),
		filepath.Join(dir, "sub", "c.tsv"),
		explicit,
		"does-not-exist.csv",
	}, got)
}

func TestWithReadVoltage(t *testing.T) {
	base := func() (ivsweep.Input, error) {
		return ivsweep.Input{Metadata: map[string]any{"read_voltage": 0.5, "device_id": "x"}}, nil
	}
	job := withReadVoltage(batch.Job{Name: "j", Load: base}, 0.2)
	in, err := job.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"read_voltage": 0.2, "device_id": "x"}, in.Metadata)

	untouched := withReadVoltage(batch.Job{Name: "j", Load: base}, 0)
	in, err = untouched.Load()
	require.NoError(t, err)
	assert.Equal(t, 0.5, in.Metadata["read_voltage"])
}

func TestRun_ReportsForSameStem(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{"a", "b"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0o755))
	}
	v, i := testutil.SwitchingSweep(testutil.DefaultSwitchingOptions())
	first := writeSweep(t, filepath.Join(dir, "a"), "dev1.csv", v, i)
	v, i = testutil.Capacitor(400, 1e-3, 60)
	second := writeSweep(t, filepath.Join(dir, "b"), "dev1.csv", v, i)
	third := writeSweep(t, filepath.Join(dir, "b"), "dev1.txt", v, i)
	reports := filepath.Join(dir, "reports")

	code, stdout, stderr := runCLI(t, "-format", "json", "-report-dir", reports, first, second, third)
	require.Equal(t, exitOK, code, stderr)

	var rep report
	require.NoError(t, json.Unmarshal([]byte(stdout), &rep))
	require.Len(t, rep.Results, 3)
	assert.Equal(t, filepath.Join(reports, "dev1.json"), rep.Results[0].Report)
	assert.Equal(t, filepath.Join(reports, "dev1_2.json"), rep.Results[1].Report)
	assert.Equal(t, filepath.Join(reports, "dev1_3.json"), rep.Results[2].Report)

	files, err := os.ReadDir(reports)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	for k, src := range []string{first, second, third} {
		body, err := os.ReadFile(rep.Results[k].Report)
		require.NoError(t, err)
		var saved struct {
			Source string `json:"source"`
		}
		require.NoError(t, json.Unmarshal(body, &saved))
		assert.Equal(t, src, saved.Source)
	}
}

func TestRun_QueryStoredResults(t *testing.T) {
	dir, switching, capacitor := fixtureDir(t)
	dbPath := filepath.Join(dir, "results.db")

	code, stdout, stderr := runCLI(t, "-format", "json", "-db", dbPath, switching, capacitor)
	require.Equal(t, exitOK, code, stderr)
	var classified report
	require.NoError(t, json.Unmarshal([]byte(stdout), &classified))
	id := classified.Results[0].ID
	require.NotEmpty(t, id)

	t.Run("show", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, "-format", "json", "-db", dbPath, "-show", id)
		require.Equal(t, exitOK, code, stderr)
		var got storedReport
		require.NoError(t, json.Unmarshal([]byte(stdout), &got))
		require.Len(t, got.Records, 1)
		assert.Equal(t, id, got.Records[0].ID)
		assert.Equal(t, switching, got.Records[0].Source)
		assert.Equal(t, ivsweep.Memristive, got.Records[0].DeviceType)
		require.NotNil(t, got.Records[0].Result)
		assert.Equal(t, "d12", got.Records[0].Result.DeviceID)
		assert.Equal(t, uint(2), got.SchemaVersion)
		assert.Equal(t, map[ivsweep.DeviceType]int{ivsweep.Memristive: 1, ivsweep.Capacitive: 1}, got.Stored)
	})

	t.Run("history", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, "-format", "json", "-db", dbPath, "-history", capacitor)
		require.Equal(t, exitOK, code, stderr)
		var got storedReport
		require.NoError(t, json.Unmarshal([]byte(stdout), &got))
		require.Len(t, got.Records, 1)
		assert.Equal(t, ivsweep.Capacitive, got.Records[0].DeviceType)
	})

	t.Run("recent text", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, "-db", dbPath, "-recent", "5")
		require.Equal(t, exitOK, code, stderr)
		lines := strings.Split(strings.TrimSpace(stdout), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, stdout, id)
		assert.Equal(t, "schema 2: 2 stored (memristive 1, capacitive 1)", lines[2])
	})

	t.Run("unknown id", func(t *testing.T) {
		code, _, stderr := runCLI(t, "-db", dbPath, "-show", "6f1c2a9e-58d4-4a4e-9d0c-1f2b3c4d5e6f")
		assert.Equal(t, exitFailed, code)
		assert.Contains(t, stderr, "no stored classification")
	})
}

func TestRun_QueryUsageErrors(t *testing.T) {
	dir, switching, _ := fixtureDir(t)
	tests := []struct {
		name string
		args []string
	}{
		{"without db", []string{"-recent", "3"}},
		{"missing db", []string{"-db", filepath.Join(dir, "nope.db"), "-recent", "3"}},
		{"negative recent", []string{"-db", filepath.Join(dir, "x.db"), "-recent", "-1"}},
		{"with sweep files", []string{"-db", filepath.Join(dir, "x.db"), "-history", switching, switching}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCLI(t, tt.args...)
			assert.Equal(t, exitUsage, code)
		})
	}
	_, err := os.Stat(filepath.Join(dir, "nope.db"))
	assert.True(t, os.IsNotExist(err), "query mode must not create a database")
}
