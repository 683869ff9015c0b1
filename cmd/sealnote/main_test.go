package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sealnote/internal/config"
	"github.com/aretw0/sealnote/pkg/identity"
)

type cli struct {
	t    *testing.T
	root string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{
		config.EnvRoot, config.EnvAdapter, config.EnvLogin, config.EnvRequester, config.EnvSigningKey,
		config.EnvKeyring, config.EnvKeyringPassphrase, config.EnvApprovalTimeout, config.EnvReadOnly,
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return &cli{t: t, root: t.TempDir()}
}

// run executes one invocation against the test root, auto-approving access.
func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--root", c.root, "--login", "alice@example.com", "--yes"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) mustRun(stdin string, args ...string) string {
	c.t.Helper()
	out, err := c.run(stdin, args...)
	require.NoError(c.t, err, out)
	return out
}

var savedRe = regexp.MustCompile(`Note '(.+)' saved\.`)

func (c *cli) write(args ...string) string {
	c.t.Helper()
	out := c.mustRun("", append([]string{"write"}, args...)...)
	m := savedRe.FindStringSubmatch(out)
	require.Len(c.t, m, 2, out)
	return m[1]
}

func TestWriteListRead(t *testing.T) {
	c := newCLI(t)
	id := c.write("--content", "buy milk", "--title", "groceries", "--tag", "home")

	out := c.mustRun("", "list")
	assert.Equal(t, id+" - groceries\n", out)

	out = c.mustRun("", "read", id)
	assert.Equal(t, "buy milk\n", out)

	var view noteView
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("", "read", id, "--json")), &view))
	assert.Equal(t, id, view.ID)
	assert.Equal(t, "buy milk", view.Content)
	assert.Equal(t, "groceries", view.Metadata["title"])
	assert.NotEmpty(t, view.ProtectedResourceID)

	_, err := os.Stat(filepath.Join(c.root, "alice@example.com.db"))
	require.NoError(t, err)
}

func TestWriteFromStdinAndUpdate(t *testing.T) {
	c := newCLI(t)
	out := c.mustRun("first draft", "write")
	m := savedRe.FindStringSubmatch(out)
	require.Len(t, m, 2)
	id := m[1]

	c.mustRun("", "write", "--id", id, "--content", "final")
	assert.Equal(t, "final\n", c.mustRun("", "read", id))

	var notes []map[string]any
	require.NoError(t, json.Unmarshal([]byte(c.mustRun("", "list", "--json")), &notes))
	assert.Len(t, notes, 1)
}

func TestListMatch(t *testing.T) {
	c := newCLI(t)
	c.write("--content", "a", "--title", "work-plan")
	c.write("--content", "b", "--title", "holiday")

	out := c.mustRun("", "list", "--match", "work-*")
	assert.Contains(t, out, "work-plan")
	assert.NotContains(t, out, "holiday")

	_, err := c.run("", "list", "--match", "[")
	require.Error(t, err)
}

func TestExportDeleteImport(t *testing.T) {
	c := newCLI(t)
	id := c.write("--content", "travelling note")
	dir := t.TempDir()

	path := strings.TrimSpace(c.mustRun("", "export", id, "--dir", dir))
	assert.Equal(t, ".dpr", filepath.Ext(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "travelling note")

	c.mustRun("", "delete", id)
	assert.Empty(t, c.mustRun("", "list"))

	out := c.mustRun("", "import", path)
	assert.Contains(t, out, path+" -> ")
	assert.Contains(t, c.mustRun("", "list"), "\n")
}

func TestImportBadName(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := c.run("", "import", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad filename")
}

func TestShare(t *testing.T) {
	c := newCLI(t)
	id := c.write("--content", "shared")

	out := c.mustRun("", "share", id, "bob@example.com")
	assert.Contains(t, out, "bob@example.com")

	_, err := c.run("", "share", "missing", "bob@example.com")
	require.Error(t, err)
}

func TestReadMissing(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("", "read", "nope")
	require.Error(t, err)
}

func TestNoLogin(t *testing.T) {
	newCLI(t)
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--root", t.TempDir(), "list"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no login")
}

func TestPromptDenied(t *testing.T) {
	c := newCLI(t)
	cmd := buildRootCmd(&globals{prompt: strings.NewReader("n\n")})
	var errOut bytes.Buffer
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--root", c.root, "--login", "alice", "list"})

	err := cmd.Execute()
	require.ErrorIs(t, err, identity.ErrAccessDenied)
	assert.Contains(t, errOut.String(), "Grant sealnote@localhost access")
}

func TestPromptApprover(t *testing.T) {
	req := identity.ApprovalRequest{ID: "req-1", Login: "alice", Requester: "bob", Fingerprint: "abcd"}

	t.Run("Yes Approves", func(t *testing.T) {
		var out bytes.Buffer
		ok, err := promptApprover(strings.NewReader("Yes\n"), &out)(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Contains(t, out.String(), "Grant bob access to the notes of alice?")
	})

	t.Run("Silent Reader Times Out", func(t *testing.T) {
		pr, pw := io.Pipe()
		t.Cleanup(func() { pw.Close() })

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		ok, err := promptApprover(pr, io.Discard)(ctx, req)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, ok)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestKeygenAndVersion(t *testing.T) {
	c := newCLI(t)
	out := c.mustRun("", "keygen")
	assert.Contains(t, out, config.EnvSigningKey+"=")
	assert.Contains(t, out, config.EnvRequester+"=sealnote@localhost")

	assert.Contains(t, c.mustRun("", "version"), "sealnote version ")
}
