package main

import (
	"bytes"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/skyscope/internal/testutils"
	"github.com/aretw0/skyscope/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBackend(t *testing.T) *testutils.FakeBackend {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("SKYSCOPE_SEARCH_DELAY", "1ms")
	t.Setenv("SKYSCOPE_RENDER_DELAY", "1ms")
	t.Setenv("SKYSCOPE_LOG_LEVEL", "error")

	backend := testutils.NewFakeBackend(
		domain.Node{Hash: "h1", NodeType: "FILE", NodeData: "[/src]/lib/BUILD"},
		domain.Node{Hash: "h2", NodeType: "PACKAGE", NodeData: "//lib/util"},
		domain.Node{Hash: "h3", NodeType: "PACKAGE", NodeData: "//app"},
	)
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)
	t.Setenv("SKYSCOPE_BACKEND_URL", srv.URL)
	return backend
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "skyscope version 0.1.0\n", out)
}

func TestFind(t *testing.T) {
	backend := setupBackend(t)

	out, err := runCLI(t, "", "find", "lib")
	require.NoError(t, err)
	assert.Equal(t, "  1 [ ] File [/src]/lib/BUILD\n  2 [ ] Package //lib/util\n2 nodes\n", out)
	assert.Equal(t, []string{"%lib%"}, backend.Finds())
}

func TestFind_EmptyPattern(t *testing.T) {
	setupBackend(t)
	_, err := runCLI(t, "", "find", "  ")
	assert.ErrorIs(t, err, domain.ErrEmptyPattern)
}

func TestFind_BackendDown(t *testing.T) {
	backend := setupBackend(t)
	backend.SetFindErr(errors.New("boom"))
	_, err := runCLI(t, "", "find", "lib")
	assert.ErrorIs(t, err, domain.ErrBackend)
}

func TestRender(t *testing.T) {
	setupBackend(t)

	out, err := runCLI(t, "", "render", "h1", "h3")
	require.NoError(t, err)
	assert.Equal(t, `<svg data-nodes="h1,h3"/>`, out)

	file := filepath.Join(t.TempDir(), "g.svg")
	out, err = runCLI(t, "", "render", "h2", "-o", file)
	require.NoError(t, err)
	assert.Empty(t, out)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, `<svg data-nodes="h2"/>`, string(data))
}

func TestPurge_DryRun(t *testing.T) {
	backend := setupBackend(t)

	out, err := runCLI(t, "", "purge", "/cache/a", "/cache/b")
	require.NoError(t, err)
	assert.Contains(t, out, "2 selected. Re-run with --yes to delete.")
	assert.Empty(t, backend.Deletes())
}

func TestPurge_Yes(t *testing.T) {
	backend := setupBackend(t)
	backend.FailDelete("/cache/b", errors.New("denied"))

	out, err := runCLI(t, "", "purge", "--yes", "/cache/a", "/cache/b")
	require.Error(t, err)
	assert.Contains(t, out, "deleted /cache/a")
	assert.Contains(t, out, "failed  /cache/b")
	assert.ElementsMatch(t, []string{"/cache/a", "/cache/b"}, backend.Deletes())
}

func TestExplore_Piped(t *testing.T) {
	setupBackend(t)
	svg := filepath.Join(t.TempDir(), "view.svg")

	script := strings.Join([]string{
		"lib",
		":t 2",
		":t 9",
		":r " + svg,
		":c",
		":bogus",
		":q",
		"never reached",
	}, "\n")
	out, err := runCLI(t, script, "explore", "--view", "piped")
	require.NoError(t, err)

	assert.Contains(t, out, "  2 [ ] Package //lib/util\n2 nodes\n")
	assert.Contains(t, out, "shown //lib/util\n")
	assert.Contains(t, out, "error: no row 9\n")
	assert.Contains(t, out, "graph written to "+svg)
	assert.Contains(t, out, "error: unknown command :bogus")
	assert.NotContains(t, out, "never reached")

	data, err := os.ReadFile(svg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
}
