package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is written by the watch loop while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func execute(ctx context.Context, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).execute(ctx, args)
	return stdout.String(), stderr.String(), err
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"values file", []string{"--values", "testdata/values.json"}, "hello, world! 100% sure.\n"},
		{"set", []string{"--set", "name=moon"}, "hello, moon! 100% sure.\n"},
		{"set wins", []string{"-v", "testdata/values.json", "--set", "name=moon", "--set", "greeting=bye"}, "bye, moon! 100% sure.\n"},
		{"value with equals", []string{"--set", "name=a=b"}, "hello, a=b! 100% sure.\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"render", "testdata/greeting.sti"}, tt.args...)
			stdout, _, err := execute(context.Background(), args...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, stdout)
		})
	}
}

func TestRenderErrors(t *testing.T) {
	_, _, err := execute(context.Background(), "render", "testdata/greeting.sti")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no input for declared variable "name"`)

	_, _, err = execute(context.Background(), "render", "testdata/greeting.sti", "--set", "name")
	assert.ErrorContains(t, err, "expected name=value")

	_, _, err = execute(context.Background(), "render", "testdata/broken.sti")
	assert.ErrorContains(t, err, `1:4: missing "}"`)

	_, _, err = execute(context.Background(), "render", "testdata/nope.sti")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRenderExpect(t *testing.T) {
	stdout, _, err := execute(context.Background(),
		"render", "testdata/greeting.sti", "-v", "testdata/values.json", "--expect", "testdata/greeting.out")
	require.NoError(t, err)
	assert.Empty(t, stdout)

	stdout, _, err = execute(context.Background(),
		"render", "testdata/greeting.sti", "--set", "name=moon", "--expect", "testdata/greeting.out")
	assert.ErrorIs(t, err, errMismatch)
	assert.Contains(t, stdout, "moon")
	assert.Contains(t, stdout, "world")
}

func TestRenderWatch(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "watched.sti")
	require.NoError(t, os.WriteFile(file, []byte("{name}->hi %{name}"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdout := &syncBuffer{}
	a := newApp(stdout, &syncBuffer{})
	done := make(chan error, 1)
	go func() { done <- a.execute(ctx, []string{"render", file, "--set", "name=ann", "--watch"}) }()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "hi ann")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(file, []byte("{name}->bye %{name}"), 0o644))
	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "bye ann")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestCheck(t *testing.T) {
	stdout, _, err := execute(context.Background(), "check", "testdata/greeting.sti")
	require.NoError(t, err)
	assert.Equal(t, "testdata/greeting.sti:1:3: note: requires input \"name\"\n", stdout)

	stdout, _, err = execute(context.Background(), "check", "testdata/greeting.sti", "testdata/problems.sti", "testdata/broken.sti")
	assert.EqualError(t, err, "2 of 3 file(s) have errors")
	assert.Equal(t, strings.Join([]string{
		`testdata/greeting.sti:1:3: note: requires input "name"`,
		`testdata/problems.sti:1:3: note: requires input "a"`,
		`testdata/problems.sti:1:6: warning: variable "b" is never inserted`,
		`testdata/problems.sti:1:6: note: requires input "b"`,
		`testdata/problems.sti:1:9: warning: variable "a" is declared more than once`,
		`testdata/problems.sti:2:8: error: variable "c" is undefined`,
		`testdata/broken.sti:1:4: error: missing "}"`,
		"",
	}, "\n"), stdout)
}

func TestTree(t *testing.T) {
	stdout, _, err := execute(context.Background(), "tree", "testdata/broken.sti")
	require.NoError(t, err)
	assert.Equal(t,
		"(source_file declarations: (declarations (declaration name: (identifier)) (MISSING \"}\")) "+
			"template: (template (insert variable: (identifier))))\n",
		stdout)
}

func TestGlobalFlags(t *testing.T) {
	_, _, err := execute(context.Background(), "--log-format", "xml", "tree", "testdata/broken.sti")
	assert.ErrorContains(t, err, "log.format")

	_, _, err = execute(context.Background(), "--config", filepath.Join(t.TempDir(), "missing.toml"), "tree", "testdata/broken.sti")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, stderr, err := execute(context.Background(), "--log-level", "debug", "tree", "testdata/broken.sti")
	require.NoError(t, err)
	assert.Empty(t, stderr)

	_, stderr, err = execute(context.Background(), "--log-level", "debug", "check", "testdata/greeting.sti")
	require.NoError(t, err)
	assert.Contains(t, stderr, "checked")
}

func TestLogFileClosedOnError(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "sti.log")
	configPath := filepath.Join(dir, "sti.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[log]\nlevel = \"debug\"\nfile = \""+filepath.ToSlash(logPath)+"\"\n"), 0o644))

	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr)
	err := a.execute(context.Background(), []string{"--config", configPath, "render", "testdata/greeting.sti"})
	require.Error(t, err)

	require.NotNil(t, a.logFile)
	assert.ErrorIs(t, a.logFile.Close(), os.ErrClosed)
	logged, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "render")
	assert.Empty(t, stderr.String())
}
