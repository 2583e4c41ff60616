//go:build integration

package integration

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	buildOnce sync.Once
	binary    string
	buildErr  error
)

// getProjectRoot returns the path to the bgrep project root
func getProjectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	// tests/integration/bgrep_test.go -> project root
	return filepath.Join(filepath.Dir(filename), "..", "..")
}

// bgrepBinary builds cmd/bgrep once per test run.
func bgrepBinary(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		root := getProjectRoot()
		binary = filepath.Join(root, "dist", "bgrep")
		buildCmd := exec.Command("go", "build", "-o", binary, "./cmd/bgrep")
		buildCmd.Dir = root
		if output, err := buildCmd.CombinedOutput(); err != nil {
			buildErr = errors.New(string(output))
		}
	})
	require.NoError(t, buildErr, "build failed")
	return binary
}

// run executes bgrep and returns stdout and the exit status.
func run(t *testing.T, stdin string, args ...string) (string, int) {
	t.Helper()
	cmd := exec.Command(bgrepBinary(t), args...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(), "NO_COLOR=1", "BGREP_CONFIG=")
	out, err := cmd.Output()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(out), exitErr.ExitCode()
	}
	require.NoError(t, err)
	return string(out), 0
}

func TestExitStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("\x7fELF\x02\x01"), 0644))

	tests := []struct {
		name   string
		stdin  string
		args   []string
		status int
		output string
	}{
		{"match", "", []string{"7f454c46", path}, 0, path + ": 00000000\n"},
		{"no match", "", []string{"cafebabe", path}, 3, ""},
		{"invalid pattern", "", []string{"7f4"}, 2, ""},
		{"bad flag", "", []string{"--nope", "41"}, 1, ""},
		{"stdin", "xxA", []string{"41"}, 0, "stdin: 00000002\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, status := run(t, tt.stdin, tt.args...)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.output, out)
		})
	}
}

// startServer starts bgrep serve and waits for its ready line.
func startServer(t *testing.T) (io.WriteCloser, *bufio.Scanner, *exec.Cmd) {
	t.Helper()
	cmd := exec.Command(bgrepBinary(t), "serve")
	cmd.Env = append(os.Environ(), "BGREP_CONFIG=")

	stdin, err := cmd.StdinPipe()
	require.NoError(t, err)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	t.Cleanup(func() {
		stdin.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	scanner := bufio.NewScanner(stdout)
	require.True(t, waitForLine(scanner, 30*time.Second), "should receive ready signal")

	var ready map[string]interface{}
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &ready))
	assert.Equal(t, "ready", ready["type"])
	return stdin, scanner, cmd
}

func TestServeIntegration_Scan(t *testing.T) {
	stdin, scanner, _ := startServer(t)

	// content is base64 of "\x7fELF"
	request := `{"type":"scan","payload":{"pattern":"7f\"ELF\"","content":"f0VMRg==","source":"elf"}}` + "\n"
	_, err := stdin.Write([]byte(request))
	require.NoError(t, err)

	require.True(t, waitForLine(scanner, 10*time.Second), "should receive scan response")

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &response))
	assert.True(t, response["success"].(bool), "scan should succeed")
	assert.Equal(t, "scan", response["type"])

	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])
}

func TestServeIntegration_MultipleScans(t *testing.T) {
	stdin, scanner, _ := startServer(t)

	for i := 0; i < 5; i++ {
		request := `{"type":"scan","payload":{"pattern":"41","content":"QUFB","skip":` + string(rune('0'+i%3)) + `}}` + "\n"
		_, err := stdin.Write([]byte(request))
		require.NoError(t, err)

		require.True(t, waitForLine(scanner, 10*time.Second), "should receive scan response %d", i)

		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &response))
		assert.True(t, response["success"].(bool), "scan %d should succeed", i)

		data := response["data"].(map[string]interface{})
		assert.Equal(t, float64(3-i%3), data["count"])
	}
}

func TestServeIntegration_CloseCommand(t *testing.T) {
	stdin, _, cmd := startServer(t)

	_, err := stdin.Write([]byte(`{"type":"close","payload":{}}` + "\n"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		assert.NoError(t, err, "process should exit cleanly")
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit in time after close command")
	}
}

func waitForLine(scanner *bufio.Scanner, timeout time.Duration) bool {
	done := make(chan bool, 1)
	go func() {
		done <- scanner.Scan()
	}()

	select {
	case result := <-done:
		return result
	case <-time.After(timeout):
		return false
	}
}
