package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golex/internal/crash"
	applog "golex/internal/log"
)

const story = `@Oscar
name: Oscar

$gold: 0

# Intro
Oscar: Hello.
- Take the coin
    $gold += 1
- Leave
    => #Outro
@Oscar: You have {$gold} gold.

# Outro
Bye.
`

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "story.lex")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)
	var out, errOut bytes.Buffer
	root := newRootCmd(&crash.Session{})
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))
}

func TestCheck(t *testing.T) {
	path := writeScript(t, story)
	out, _, err := execute(t, "", "check", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok (2 sections, 1 characters, 0 warnings)")

	bad := writeScript(t, story+"=> #Outr\n")
	out, _, err = execute(t, "", "check", "--strict", "-f", bad)
	require.True(t, errors.Is(err, errWarnings))
	assert.Contains(t, out, `did you mean "Outro"?`)
}

func TestCheckReportsParseErrorWithExcerpt(t *testing.T) {
	path := writeScript(t, "# A\nhello\n@Nobody: hi\n")
	_, _, err := execute(t, "", "check", "-f", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "> 3 | @Nobody: hi")
}

func TestMissingFile(t *testing.T) {
	_, _, err := execute(t, "", "check")
	require.Error(t, err)
	_, _, err = execute(t, "", "check", "-f", filepath.Join(t.TempDir(), "nope.lex"))
	require.Error(t, err)
}

func TestDebugReadsStdin(t *testing.T) {
	out, _, err := execute(t, story, "debug", "-f", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "format: lex-document")
	assert.Contains(t, out, "kind: choices")
}

func TestConvert(t *testing.T) {
	path := writeScript(t, story)
	dir := t.TempDir()

	target := filepath.Join(dir, "out", "story.json")
	_, errOut, err := execute(t, "", "convert", "-f", path, target)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Output written to: "+target)
	b, err := os.ReadFile(target)
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal(b, &env))
	assert.Equal(t, "story.lex", env["source"])

	pdf := filepath.Join(dir, "story.pdf")
	_, _, err = execute(t, "", "convert", "-f", path, "--line-numbers", pdf)
	require.NoError(t, err)
	b, err = os.ReadFile(pdf)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF-")))

	out, _, err := execute(t, "", "convert", "-f", path, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "source: story.lex")

	_, _, err = execute(t, "", "convert", "-f", path)
	require.Error(t, err)
	_, _, err = execute(t, "", "convert", "-f", path, "--format", "toml")
	require.Error(t, err)
}

func TestPlay(t *testing.T) {
	path := writeScript(t, story)
	out, _, err := execute(t, "1\n", "play", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Oscar: Hello.\n  1) Take the coin\n  2) Leave\n")
	assert.Contains(t, out, "Oscar: You have 1 gold.")

	out, _, err = execute(t, "", "play", "--auto", "--set", "gold=5", "--start", "intro", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "You have 6 gold.")
	assert.Contains(t, out, "-- end --")

	out, _, err = execute(t, "", "play", "--auto", "--start", "Outro", "-f", path)
	require.NoError(t, err)
	assert.Equal(t, "Bye.\n-- end --\n", out)
}

func TestPlayRejectsBadOverrides(t *testing.T) {
	path := writeScript(t, story)
	_, _, err := execute(t, "", "play", "--auto", "--set", "gold", "-f", path)
	require.Error(t, err)
	_, _, err = execute(t, "", "play", "--auto", "--set", "silver=1", "-f", path)
	require.Error(t, err)
	_, _, err = execute(t, "", "play", "--auto", "--start", "Nowhere", "-f", path)
	require.Error(t, err)
}

func TestParseOverrides(t *testing.T) {
	got, err := parseOverrides([]string{"$a=3", "b=true", "c=hello world", "d=[1, 2]"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, got["a"].Num)
	assert.True(t, got["b"].Bool)
	assert.Equal(t, "hello world", got["c"].Str)
	assert.Len(t, got["d"].Items, 2)
}

func TestWatchRechecksOnChange(t *testing.T) {
	applog.Init(applog.Options{Level: "error", Writer: &bytes.Buffer{}})
	path := writeScript(t, story)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := make(chan struct{}, 8)
	done := make(chan error, 1)
	var out bytes.Buffer
	go func() {
		done <- watch(ctx, path, &out, applog.WithComponent("test"), func() error {
			checks <- struct{}{}
			return nil
		})
	}()

	waitFor := func() {
		select {
		case <-checks:
		case <-time.After(5 * time.Second):
			t.Fatalf("check was not run")
		}
	}
	waitFor()
	require.NoError(t, os.WriteFile(path, []byte(story+"\nmore\n"), 0o644))
	waitFor()

	cancel()
	require.NoError(t, <-done)
}
