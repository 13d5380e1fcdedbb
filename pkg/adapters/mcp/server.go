// Package mcp exposes explorer views as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/skyscope"
	"github.com/aretw0/skyscope/internal/logging"
	"github.com/aretw0/skyscope/pkg/explorer"
	"github.com/aretw0/skyscope/pkg/highlight"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultView is used by tools called without a view.
	DefaultView = "default"
	viewsURI    = "skyscope://views"
)

// FindResponse is the result of find_nodes.
type FindResponse struct {
	View      string          `json:"view" jsonschema_description:"The view the search ran in"`
	Pattern   string          `json:"pattern" jsonschema_description:"The SQLite LIKE pattern searched for"`
	Total     int             `json:"total" jsonschema_description:"Number of matching nodes, possibly more than the rows returned"`
	NodeCount string          `json:"node_count" jsonschema_description:"Human readable node count"`
	Rows      []highlight.Row `json:"rows" jsonschema_description:"Matching nodes with highlighted match segments"`
}

// ToggleResponse is the result of toggle_node.
type ToggleResponse struct {
	View    string   `json:"view"`
	Hash    string   `json:"hash"`
	Visible bool     `json:"visible" jsonschema_description:"Whether the node is now shown on the graph"`
	Shown   []string `json:"shown" jsonschema_description:"Hashes of every node shown on the graph"`
}

// ViewResponse is the result of get_view.
type ViewResponse struct {
	ID        string   `json:"id"`
	Pattern   string   `json:"pattern"`
	Expanded  bool     `json:"expanded"`
	MaxTotal  int      `json:"max_total"`
	NodeCount string   `json:"node_count"`
	Visible   []string `json:"visible"`
	HasGraph  bool     `json:"has_graph"`
}

type findArgs struct {
	View    string `json:"view"`
	Pattern string `json:"pattern"`
}

type toggleArgs struct {
	View string `json:"view"`
	Hash string `json:"hash"`
}

type viewArgs struct {
	View string `json:"view"`
}

// Server exposes a Manager as an MCP server.
type Server struct {
	views     *explorer.Manager
	mcpServer *server.MCPServer
	logger    *slog.Logger
	timeout   time.Duration
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTimeout bounds how long a tool waits for a debounced search or render.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(views *explorer.Manager, opts ...Option) *Server {
	s := &Server{
		views:     views,
		mcpServer: server.NewMCPServer("skyscope-mcp", strings.TrimSpace(skyscope.Version)),
		logger:    logging.NewNop(),
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on port until ctx ends.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	viewParam := mcp.WithString("view", mcp.Description("View ID (optional, defaults to \"default\")"))

	s.mcpServer.AddTool(mcp.NewTool("find_nodes",
		mcp.WithDescription("Search the Skyframe graph. The pattern is matched against node keys with SQLite LIKE: % matches any run of characters, _ matches one."),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("Search pattern")),
		viewParam,
		mcp.WithOutputSchema[FindResponse](),
	), mcp.NewStructuredToolHandler(s.handleFind))

	s.mcpServer.AddTool(mcp.NewTool("toggle_node",
		mcp.WithDescription("Show or hide a node on the rendered graph. The node must be in the view's latest search results or already shown."),
		mcp.WithString("hash", mcp.Required(), mcp.Description("Node hash from find_nodes")),
		viewParam,
		mcp.WithOutputSchema[ToggleResponse](),
	), mcp.NewStructuredToolHandler(s.handleToggle))

	s.mcpServer.AddTool(mcp.NewTool("get_view",
		mcp.WithDescription("Get the state of a view: pattern, shown nodes and node count."),
		viewParam,
		mcp.WithOutputSchema[ViewResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetView))

	s.mcpServer.AddTool(mcp.NewTool("render_graph",
		mcp.WithDescription("Render the nodes shown in a view as an SVG document."),
		viewParam,
	), s.handleRender)
}

func viewOrDefault(id string) string {
	if id == "" {
		return DefaultView
	}
	return id
}

func (s *Server) handleFind(ctx context.Context, request mcp.CallToolRequest, args findArgs) (FindResponse, error) {
	ex, err := s.views.Open(ctx, viewOrDefault(args.View))
	if err != nil {
		return FindResponse{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ev, err := ex.SearchAndWait(ctx, args.Pattern)
	if err != nil {
		return FindResponse{}, fmt.Errorf("find failed: %w", err)
	}
	rows := ev.Rows
	if rows == nil {
		rows = []highlight.Row{}
	}
	return FindResponse{
		View:      ex.ID(),
		Pattern:   ev.Pattern,
		Total:     ev.Total,
		NodeCount: ev.NodeCount,
		Rows:      rows,
	}, nil
}

func (s *Server) handleToggle(ctx context.Context, request mcp.CallToolRequest, args toggleArgs) (ToggleResponse, error) {
	ex, err := s.views.Open(ctx, viewOrDefault(args.View))
	if err != nil {
		return ToggleResponse{}, err
	}
	visible, err := ex.Toggle(ctx, args.Hash)
	if err != nil {
		return ToggleResponse{}, fmt.Errorf("toggle failed: %w", err)
	}
	return ToggleResponse{
		View:    ex.ID(),
		Hash:    args.Hash,
		Visible: visible,
		Shown:   ex.View().Visible.Hashes(),
	}, nil
}

func (s *Server) handleGetView(ctx context.Context, request mcp.CallToolRequest, args viewArgs) (ViewResponse, error) {
	ex, err := s.views.Get(ctx, viewOrDefault(args.View))
	if err != nil {
		return ViewResponse{}, err
	}
	v := ex.View()
	_, hasGraph := ex.Graph()
	return ViewResponse{
		ID:        v.ID,
		Pattern:   v.Pattern,
		Expanded:  v.Expanded,
		MaxTotal:  v.MaxTotal,
		NodeCount: ex.NodeCountLabel(),
		Visible:   v.Visible.Hashes(),
		HasGraph:  hasGraph,
	}, nil
}

func (s *Server) handleRender(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ex, err := s.views.Open(ctx, viewOrDefault(request.GetString("view", "")))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ev, err := ex.RefreshAndWait(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("render failed: %v", err)), nil
	}
	return mcp.NewToolResultText(ev.SVG), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(viewsURI, "Stored views",
		mcp.WithMIMEType("application/json"),
	), s.readViews)
}

func (s *Server) readViews(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	ids, err := s.views.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	jsonBytes, err := json.Marshal(map[string][]string{
		"views":  ids,
		"active": s.views.Active(),
	})
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      viewsURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
