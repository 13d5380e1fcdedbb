package skyframe_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/skyscope/pkg/adapters/skyframe"
	"github.com/aretw0/skyscope/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	mu     sync.Mutex
	method string
	path   string
	body   string
}

func newBackend(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.method, c.path, c.body = r.Method, r.URL.Path, string(data)
		c.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestClient_Find(t *testing.T) {
	srv, got := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[7, {"abc": {"nodeType": "FILE", "nodeData": "[/src]/BUILD"}}]`)
	})
	client, err := skyframe.New(srv.URL)
	require.NoError(t, err)

	res, err := client.Find(context.Background(), domain.SearchPattern("BUILD"))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/find", got.path)
	assert.Equal(t, `"%BUILD%"`, got.body)
	assert.Equal(t, 7, res.Total)
	assert.Equal(t, "abc", res.Nodes["abc"].Hash)
}

func TestClient_Render(t *testing.T) {
	srv, got := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = io.WriteString(w, `<svg xmlns="http://www.w3.org/2000/svg"></svg>`)
	})
	client, err := skyframe.New(srv.URL + "/")
	require.NoError(t, err)

	svg, err := client.Render(context.Background(), []string{"h1", "h2"})
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Equal(t, "/render", got.path)

	var hashes []string
	require.NoError(t, json.Unmarshal([]byte(got.body), &hashes))
	assert.Equal(t, []string{"h1", "h2"}, hashes)

	_, err = client.Render(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", got.body)
}

func TestClient_DeleteResolvesAgainstBase(t *testing.T) {
	srv, got := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	client, err := skyframe.New(srv.URL + "/api")
	require.NoError(t, err)

	require.NoError(t, client.Delete(context.Background(), "/cache/abc"))
	assert.Equal(t, http.MethodDelete, got.method)
	assert.Equal(t, "/api/cache/abc", got.path)

	err = client.Delete(context.Background(), "http://elsewhere.example/x")
	assert.Error(t, err)
}

func TestClient_ErrorStatus(t *testing.T) {
	srv, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	client, err := skyframe.New(srv.URL)
	require.NoError(t, err)

	_, err = client.Find(context.Background(), "%x%")
	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.ErrorContains(t, err, "500")
}

func TestClient_MalformedFindReply(t *testing.T) {
	srv, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"not": "a tuple"}`)
	})
	client, err := skyframe.New(srv.URL)
	require.NoError(t, err)

	_, err = client.Find(context.Background(), "%x%")
	assert.ErrorIs(t, err, domain.ErrBackend)
}

func TestClient_Timeout(t *testing.T) {
	srv, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	client, err := skyframe.New(srv.URL, skyframe.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = client.Render(context.Background(), []string{"h"})
	assert.ErrorIs(t, err, domain.ErrBackend)
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := skyframe.New("ftp://host")
	assert.Error(t, err)
	_, err = skyframe.New("::not a url")
	assert.Error(t, err)
}
