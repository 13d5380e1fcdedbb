package skyscope_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/skyscope"
	"github.com/aretw0/skyscope/internal/config"
	"github.com/aretw0/skyscope/internal/testutils"
	"github.com/aretw0/skyscope/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	fake := testutils.NewFakeBackend(
		domain.Node{Hash: "h1", NodeType: "FILE", NodeData: "[/src]/lib/BUILD"},
		domain.Node{Hash: "h2", NodeType: "PACKAGE", NodeData: "//lib"},
	)
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestApp_SearchThroughRealClient(t *testing.T) {
	srv := newBackend(t)
	cfg := config.Default()
	cfg.Backend.URL = srv.URL

	clock := testutils.NewManualClock()
	reg := prometheus.NewRegistry()
	app, err := skyscope.New(cfg, skyscope.WithClock(clock), skyscope.WithRegistry(reg))
	require.NoError(t, err)
	defer app.Close(context.Background())

	view, err := app.Views.Open(context.Background(), "main")
	require.NoError(t, err)

	view.Search("lib")
	clock.Advance(cfg.Scheduling.SearchDelay)
	app.Views.Scheduler().Wait()

	assert.Len(t, view.Rows(), 2)
	assert.Equal(t, "2 nodes", view.NodeCountLabel())

	count, err := testutil.GatherAndCount(reg, "skyscope_debounce_invocations_total")
	require.NoError(t, err)
	assert.Positive(t, count)
}

func TestApp_FileStore(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.URL = newBackend(t).URL
	cfg.Store.Kind = config.StoreFile
	cfg.Store.Dir = t.TempDir()

	app, err := skyscope.New(cfg, skyscope.WithClock(testutils.NewManualClock()))
	require.NoError(t, err)
	defer app.Close(context.Background())

	_, err = app.Views.Open(context.Background(), "persisted")
	require.NoError(t, err)

	ids, err := app.Store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"persisted"}, ids)
}

func TestApp_RedisStoreWithLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Backend.URL = newBackend(t).URL
	cfg.Store.Kind = config.StoreRedis
	cfg.Redis.Addr = mr.Addr()

	app, err := skyscope.New(cfg, skyscope.WithClock(testutils.NewManualClock()))
	require.NoError(t, err)

	_, err = app.Views.Open(context.Background(), "shared")
	require.NoError(t, err)
	assert.True(t, mr.Exists(cfg.Redis.Prefix+"shared"))
	// The distributed lock was released.
	assert.False(t, mr.Exists(cfg.Redis.Prefix+"lock:shared"))

	require.NoError(t, app.Close(context.Background()))
}

func TestNew_InvalidBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.URL = "ftp://nope"
	_, err := skyscope.New(cfg)
	assert.Error(t, err)
}

func TestApp_TracerProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.URL = newBackend(t).URL

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	clock := testutils.NewManualClock()
	app, err := skyscope.New(cfg, skyscope.WithClock(clock), skyscope.WithTracerProvider(tp))
	require.NoError(t, err)
	defer app.Close(context.Background())

	view, err := app.Views.Open(context.Background(), "main")
	require.NoError(t, err)
	view.Search("lib")
	clock.Advance(cfg.Scheduling.SearchDelay)
	app.Views.Scheduler().Wait()

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "debounce.invoke")
	assert.Contains(t, names, "POST /find")
}

func TestApp_LocaleGroupsDigits(t *testing.T) {
	fake := testutils.NewFakeBackend(domain.Node{Hash: "h1", NodeType: "FILE", NodeData: "[/src]/lib/BUILD"})
	fake.SetTotal(1234)
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Backend.URL = srv.URL
	cfg.UI.Locale = "de"

	clock := testutils.NewManualClock()
	app, err := skyscope.New(cfg, skyscope.WithClock(clock))
	require.NoError(t, err)
	defer app.Close(context.Background())

	view, err := app.Views.Open(context.Background(), "main")
	require.NoError(t, err)
	view.Search("lib")
	clock.Advance(cfg.Scheduling.SearchDelay)
	app.Views.Scheduler().Wait()

	assert.Equal(t, "1.234 nodes", view.NodeCountLabel())
}
