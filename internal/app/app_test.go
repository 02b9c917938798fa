// Package app_test contains unit tests for the app package.
package app_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/geo-report-client/internal/app"
	"github.com/JakeFAU/geo-report-client/internal/config"
)

// syncBuffer guards a bytes.Buffer shared with the hub goroutine.
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

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.API.BaseURL = baseURL
	cfg.Background.PollIntervalMs = 10
	cfg.Foreground.PollIntervalMs = 10
	cfg.Notify.MaxBatchWaitMs = 5
	return cfg
}

func completedBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/run-analysis-async":
			_, _ = w.Write([]byte(`{"success":true}`))
		case "/analysis-status/job-1":
			_, _ = w.Write([]byte(`{"status":"completed","progress":100,"message":"Done","result":{"analysisId":"job-1","company":"Acme","shareOfVoice":12.5}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewApp_TrackerNotifiesConsole(t *testing.T) {
	t.Parallel()

	srv := completedBackend(t)
	var console syncBuffer
	a, err := app.NewApp(context.Background(), testConfig(t, srv.URL), app.Options{
		Console:    &console,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	assert.NotNil(t, a.Logger())
	assert.NotNil(t, a.Client())
	assert.Equal(t, srv.URL, a.Config().API.BaseURL)

	tr := a.NewTracker()
	require.True(t, tr.Track("job-1", "Acme", "Acme Q4"))

	require.Eventually(t, func() bool {
		job, ok := tr.Job("job-1")
		return ok && job.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, tr.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))

	out := console.String()
	assert.Contains(t, out, `Analysis "Acme Q4" started in background`)
	assert.Contains(t, out, `Analysis "Acme Q4" completed!`)
}

func TestNewApp_RunnerReturnsResult(t *testing.T) {
	t.Parallel()

	srv := completedBackend(t)
	cfg := testConfig(t, srv.URL)
	cfg.Notify.Console = false
	a, err := app.NewApp(context.Background(), cfg, app.Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	result, err := a.NewRunner().Run(context.Background(), "job-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "Acme", result.Company)
	assert.InDelta(t, 12.5, result.ShareOfVoice, 0.001)
}

func TestNewApp_DuplicateCollectorsFail(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	cfg := testConfig(t, "http://localhost:3001")
	cfg.Notify.Console = false

	first, err := app.NewApp(context.Background(), cfg, app.Options{Registerer: reg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close(context.Background()) })

	_, err = app.NewApp(context.Background(), cfg, app.Options{Registerer: reg})
	require.ErrorContains(t, err, "failed to initialize metrics sink")
}

func TestNewApp_PubSub(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	cfg := testConfig(t, completedBackend(t).URL)
	cfg.Notify.Console = false
	cfg.PubSub = config.PubSubConfig{Enabled: true, ProjectID: "project-id", TopicName: "analysis-notifications"}
	opts := app.Options{
		Registerer:    prometheus.NewRegistry(),
		PubSubOptions: []option.ClientOption{option.WithGRPCConn(conn)},
	}

	_, err = app.NewApp(ctx, cfg, opts)
	require.ErrorContains(t, err, "does not exist")

	admin, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })
	_, err = admin.CreateTopic(ctx, "analysis-notifications")
	require.NoError(t, err)

	opts.Registerer = prometheus.NewRegistry()
	a, err := app.NewApp(ctx, cfg, opts)
	require.NoError(t, err)

	tr := a.NewTracker()
	tr.Track("job-1", "Acme", "")
	require.Eventually(t, func() bool {
		job, ok := tr.Job("job-1")
		return ok && job.Terminal()
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, tr.Close(ctx))
	require.NoError(t, a.Close(ctx))

	msgs := srv.Messages()
	require.Len(t, msgs, 2)
	kinds := []string{msgs[0].Attributes["kind"], msgs[1].Attributes["kind"]}
	assert.ElementsMatch(t, []string{"started", "completed"}, kinds)
}
