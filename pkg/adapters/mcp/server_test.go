package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/skyscope/internal/testutils"
	"github.com/aretw0/skyscope/pkg/adapters/memory"
	"github.com/aretw0/skyscope/pkg/domain"
	"github.com/aretw0/skyscope/pkg/explorer"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *testutils.FakeBackend) {
	t.Helper()
	backend := testutils.NewFakeBackend(
		domain.Node{Hash: "h1", NodeType: "FILE", NodeData: "[/src]/lib/BUILD"},
		domain.Node{Hash: "h2", NodeType: "PACKAGE", NodeData: "//app"},
	)
	views := explorer.NewManager(backend, memory.NewStore(),
		explorer.WithDelays(time.Millisecond, time.Millisecond),
	)
	t.Cleanup(func() { _ = views.Shutdown(context.Background()) })
	return NewServer(views, WithTimeout(5*time.Second)), backend
}

func TestFindThenToggle(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	found, err := s.handleFind(ctx, mcp.CallToolRequest{}, findArgs{Pattern: "lib"})
	require.NoError(t, err)
	assert.Equal(t, DefaultView, found.View)
	assert.Equal(t, 1, found.Total)
	require.Len(t, found.Rows, 1)
	assert.Equal(t, "File", found.Rows[0].Type)

	toggled, err := s.handleToggle(ctx, mcp.CallToolRequest{}, toggleArgs{Hash: "h1"})
	require.NoError(t, err)
	assert.True(t, toggled.Visible)
	assert.Equal(t, []string{"h1"}, toggled.Shown)

	_, err = s.handleToggle(ctx, mcp.CallToolRequest{}, toggleArgs{Hash: "h2"})
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)

	view, err := s.handleGetView(ctx, mcp.CallToolRequest{}, viewArgs{})
	require.NoError(t, err)
	assert.Equal(t, "lib", view.Pattern)
	assert.Equal(t, []string{"h1"}, view.Visible)
}

func TestRenderGraph(t *testing.T) {
	s, backend := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleFind(ctx, mcp.CallToolRequest{}, findArgs{View: "g", Pattern: "app"})
	require.NoError(t, err)
	_, err = s.handleToggle(ctx, mcp.CallToolRequest{}, toggleArgs{View: "g", Hash: "h2"})
	require.NoError(t, err)

	req := mcp.CallToolRequest{}
	req.Params.Name = "render_graph"
	req.Params.Arguments = map[string]any{"view": "g"}
	res, err := s.handleRender(ctx, req)
	require.NoError(t, err)
	require.False(t, res.IsError)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, `data-nodes="h2"`)
	assert.NotEmpty(t, backend.Renders())
}

func TestGetView_Unknown(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.handleGetView(context.Background(), mcp.CallToolRequest{}, viewArgs{View: "nope"})
	assert.ErrorIs(t, err, domain.ErrViewNotFound)
}

func TestViewsResource(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	_, err := s.handleFind(ctx, mcp.CallToolRequest{}, findArgs{View: "a", Pattern: "x"})
	require.NoError(t, err)

	contents, err := s.readViews(ctx, mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text := contents[0].(mcp.TextResourceContents).Text
	assert.JSONEq(t, `{"views":["a"],"active":["a"]}`, text)
}
