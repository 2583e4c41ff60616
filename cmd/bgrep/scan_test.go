package main

import (
	"archive/zip"
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/bgrep/pkg/config"
	"github.com/praetorian-inc/bgrep/pkg/pattern"
)

// execute runs a fresh command tree with args and returns stdout and
// stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv(config.EnvVar, "")
	t.Setenv("NO_COLOR", "")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func assertExit(t *testing.T, err error, code int) {
	t.Helper()
	assert.Equal(t, code, exitCode(err, &bytes.Buffer{}))
}

func TestScan_File(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.bin", "xxfooxxfoo")

	out, _, err := execute(t, "", `"foo"`, path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%s: 00000002\n%s: 00000007\n", path, path), out)
}

func TestScan_NoMatch(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.bin", "nothing here")

	out, _, err := execute(t, "", "ffee", path)
	assert.Empty(t, out)
	assert.ErrorIs(t, err, errNoMatch)
	assertExit(t, err, exitNoMatch)
}

func TestScan_InvalidPattern(t *testing.T) {
	_, _, err := execute(t, "", "zz")
	require.Error(t, err)
	assert.ErrorIs(t, err, pattern.ErrInvalidPattern)
	assertExit(t, err, exitPatternError)
}

func TestScan_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no pattern", []string{}},
		{"bad byte count", []string{"-s", "12Q", "41"}},
		{"bad format", []string{"--format", "xml", "41"}},
		{"bad log level", []string{"--log-level", "loud", "41"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, "A", tt.args...)
			require.Error(t, err)
			assertExit(t, err, exitError)
		})
	}
}

func TestScan_Stdin(t *testing.T) {
	out, _, err := execute(t, "abcabc", `"bc"`)
	require.NoError(t, err)
	assert.Equal(t, "stdin: 00000001\nstdin: 00000004\n", out)
}

func TestScan_Count(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.bin", "AAA")
	b := writeFile(t, dir, "b.bin", "B")

	out, _, err := execute(t, "", "-c", "41", a, b)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%s count: 3\n%s count: 0\n", a, b), out)
}

func TestScan_Context(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.bin", "\x00\x01foo\x02\x03")

	tests := []struct {
		name   string
		args   []string
		expect string
	}{
		{"both", []string{"-C", "2"}, `\x00\x01fo`},
		{"after only", []string{"-A", "5"}, `foo\x02\x03`},
		{"before only", []string{"-B", "2"}, `\x00\x01`},
		{"C then A", []string{"-C", "1", "-A", "3"}, `\x01foo`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(append([]string{}, tt.args...), `"foo"`, path)
			out, _, err := execute(t, "", args...)
			require.NoError(t, err)
			assert.Equal(t, path+": 00000002\n"+tt.expect+"\n", out)
		})
	}
}

func TestScan_Skip(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.bin", "foofoofoo")

	out, _, err := execute(t, "", "-s", "1", `"foo"`, path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%s: 00000003\n%s: 00000006\n", path, path), out)
}

func TestScan_FirstOnlyStopsWalk(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.bin", "zz")
	writeFile(t, dir, "b.bin", "AzA")
	writeFile(t, dir, "c.bin", "A")

	out, _, err := execute(t, "", "-f", "41", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b.bin")+": 00000000\n", out)
}

func TestScan_MissingPathContinues(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, dir, "ok.bin", "A")
	missing := filepath.Join(dir, "missing.bin")

	out, stderr, err := execute(t, "", "41", missing, ok)
	require.NoError(t, err)
	assert.Equal(t, ok+": 00000000\n", out)
	assert.Contains(t, stderr, "missing.bin")

	_, _, err = execute(t, "", "41", missing)
	assertExit(t, err, exitNoMatch)
}

func TestScan_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.bin", "xAx")

	out, _, err := execute(t, "", "--format", "json", "-C", "1", "41", path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &record))
	assert.Equal(t, "match", record["type"])
	assert.Equal(t, path, record["source"])
	assert.Equal(t, float64(1), record["offset"])
	assert.Equal(t, float64(1), record["length"])
	assert.Equal(t, map[string]any{"start": float64(0), "before": "78", "after": "41"}, record["context"])
}

func TestScan_JSONCount(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.bin", "AA")

	out, _, err := execute(t, "", "--format", "json", "-c", "41", path)
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"type":"count","source":%q,"count":2}`, path), out)
}

func TestScan_SARIF(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.bin", "AxA")

	out, _, err := execute(t, "", "--format", "sarif", "41", path)
	require.NoError(t, err)

	var doc struct {
		Version string `json:"version"`
		Runs    []struct {
			Results []struct {
				RuleID string `json:"ruleId"`
			} `json:"results"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "2.1.0", doc.Version)
	require.Len(t, doc.Runs, 1)
	assert.Len(t, doc.Runs[0].Results, 2)
}

func TestScan_ColorAlways(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.bin", "A")

	out, _, err := execute(t, "", "--color", "always", "41", path)
	require.NoError(t, err)
	assert.Contains(t, out, "\x1b[35m"+path)
	assert.Contains(t, out, "\x1b[32m00000000")
}

func TestScan_ParallelOutputIsOrdered(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 25; i++ {
		writeFile(t, dir, fmt.Sprintf("f%02d.bin", i), strings.Repeat("A", i%4)+strings.Repeat("z", i))
	}

	sequential, _, err := execute(t, "", "-j", "1", "41", dir)
	require.NoError(t, err)
	parallel, _, err := execute(t, "", "-j", "6", "41", dir)
	require.NoError(t, err)

	assert.Equal(t, sequential, parallel)
	assert.NotEmpty(t, sequential)
}

func TestScan_Archives(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "bundle.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("inner/data.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("xxfoo"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	out, _, err := execute(t, "", "--archives", `"foo"`, zipPath)
	require.NoError(t, err)
	assert.Equal(t, zipPath+"!inner/data.bin: 00000002\n", out)
}

func TestScan_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.bin", "A")
	cfgPath := writeFile(t, dir, "bgrep.yaml", "format: json\n")

	out, _, err := execute(t, "", "--config", cfgPath, "41", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `{"type":"match"`), out)

	// flags win over the file
	out, _, err = execute(t, "", "--config", cfgPath, "--format", "human", "41", path)
	require.NoError(t, err)
	assert.Equal(t, path+": 00000000\n", out)
}

func TestScan_DatastoreAndReport(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.bin", "AxA")
	b := writeFile(t, dir, "b.bin", "xA")
	db := filepath.Join(dir, "results.db")

	scanOut, _, err := execute(t, "", "--datastore", db, "-C", "1", "41", a, b)
	require.NoError(t, err)

	reportOut, _, err := execute(t, "", "report", "--datastore", db)
	require.NoError(t, err)
	assert.Equal(t, scanOut, reportOut)

	countOut, _, err := execute(t, "", "report", "--datastore", db, "-c")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%s count: 2\n%s count: 1\n", a, b), countOut)
}

func TestReport_Errors(t *testing.T) {
	_, _, err := execute(t, "", "report", "--datastore", ":memory:")
	assert.ErrorContains(t, err, "in-memory")

	_, _, err = execute(t, "", "report", "--datastore", filepath.Join(t.TempDir(), "none.db"))
	assert.ErrorContains(t, err, "datastore not found")
}

func TestScan_SkipFailureHasNoCount(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "short.bin", "AA")

	// the skip fails, so no count line is printed for the source
	out, stderr, err := execute(t, "", "-c", "-s", "10", "41", path)
	assertExit(t, err, exitNoMatch)
	assert.Empty(t, out)
	assert.Contains(t, stderr, "failed to skip ahead")
}

func TestScan_LogLevels(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.bin", "A")

	_, stderr, err := execute(t, "", "-v", "41", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "scan complete")

	_, stderr, err = execute(t, "", "41", path)
	require.NoError(t, err)
	assert.Empty(t, stderr)
}

func TestScan_StdinIsDefaultSourceOnlyWithoutPaths(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.bin", "B")

	// stdin content matches but a path was given, so stdin is ignored
	_, _, err := execute(t, "A", "41", path)
	assertExit(t, err, exitNoMatch)

	out, _, err := execute(t, "A", "41")
	require.NoError(t, err)
	scanner := bufio.NewScanner(strings.NewReader(out))
	require.True(t, scanner.Scan())
	assert.Equal(t, "stdin: 00000000", scanner.Text())
}

func TestScan_ContextLongerThanBuffer(t *testing.T) {
	tail := strings.Repeat("0123456789", 5)
	path := writeFile(t, t.TempDir(), "a.bin", "\x00\x01foo"+tail)

	out, _, err := execute(t, "", "--buffer-size", "4", "-B", "2", "-A", "100", `"foo"`, path)
	require.NoError(t, err)
	assert.Equal(t, path+": 00000002\n\\x00\\x01foo"+tail+"\n", out)

	// JSON keeps one buffer of context and says so
	out, _, err = execute(t, "", "--format", "json", "--buffer-size", "4", "-A", "100", `"foo"`, path)
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &record))
	assert.Equal(t, map[string]any{"start": float64(2), "after": "666f6f30", "truncated": true}, record["context"])
}
