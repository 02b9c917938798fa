package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/geo-report-client/internal/analysis"
	"github.com/JakeFAU/geo-report-client/internal/app"
	"github.com/JakeFAU/geo-report-client/internal/config"
)

func TestMain(m *testing.M) {
	// Every invocation registers notification collectors; keep them apart.
	newApp = func(ctx context.Context, cfg config.Config, opts app.Options) (App, error) {
		opts.Registerer = prometheus.NewRegistry()
		return app.NewApp(ctx, cfg, opts)
	}
	os.Exit(m.Run())
}

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

const resultJSON = `{"analysisId":"job-1","company":"Acme","industry":"Widgets","shareOfVoice":30,"totalQueries":10,"brandMentions":8,` +
	`"topCompetitors":[{"name":"Globex","shareOfVoice":25,"mentionCount":3}],"positionBreakdown":{"first":4,"second":2,"thirdOrLater":2},` +
	`"attributes":{"unbranded":{"pricing":{"cheap":2},"skillLevel":{},"features":{"durable":1},"limitations":{},"sentiment":{"positive":3}},` +
	`"branded":{"pricing":{},"skillLevel":{},"features":{},"limitations":{},"sentiment":{"positive":4}}},` +
	`"visibilityGaps":[{"query":"budget widgets","competitors":[{"name":"Globex","position":"1st"}]}]}`

// fakeBackend serves the analysis API. job-1 runs for one poll and completes,
// job-bad fails on its first poll and job-slow completes slowRun after its
// first poll.
type fakeBackend struct {
	mu        sync.Mutex
	polls     map[string]int
	firstPoll map[string]time.Time
	started   []string
	deleted   []string
}

const slowRun = 1500 * time.Millisecond

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	b := &fakeBackend{polls: make(map[string]int), firstPoll: make(map[string]time.Time)}
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeBody(w, http.StatusOK, `{"status":"ok","timestamp":"2026-10-17T09:00:00Z"}`)
	})
	r.Post("/generate-queries", func(w http.ResponseWriter, _ *http.Request) {
		writeBody(w, http.StatusOK, `{"analysisId":"job-1","queries":[{"id":"q1","text":"best widgets","type":"comparison","category":"UNBRANDED"}]}`)
	})
	r.Post("/run-analysis", func(w http.ResponseWriter, _ *http.Request) {
		writeBody(w, http.StatusOK, resultJSON)
	})
	r.Post("/run-analysis-async", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			AnalysisID string `json:"analysisId"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		if body.AnalysisID == "missing" {
			writeBody(w, http.StatusNotFound, `{"message":"Analysis not found"}`)
			return
		}
		b.mu.Lock()
		b.started = append(b.started, body.AnalysisID)
		b.mu.Unlock()
		writeBody(w, http.StatusOK, `{"success":true}`)
	})
	r.Get("/analysis-status/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		b.mu.Lock()
		b.polls[id]++
		n := b.polls[id]
		if n == 1 {
			b.firstPoll[id] = time.Now()
		}
		elapsed := time.Since(b.firstPoll[id])
		b.mu.Unlock()
		switch {
		case id == "job-slow" && elapsed < slowRun:
			writeBody(w, http.StatusOK, `{"status":"analyzing","progress":50,"message":"Analyzing answers"}`)
		case id == "job-bad":
			writeBody(w, http.StatusOK, `{"status":"failed","progress":55,"message":"LLM quota exhausted"}`)
		case n == 1:
			writeBody(w, http.StatusOK, `{"status":"executing","progress":40,"message":"Running queries"}`)
		default:
			writeBody(w, http.StatusOK, fmt.Sprintf(`{"status":"completed","progress":100,"message":"Done","result":%s}`, resultJSON))
		}
	})
	r.Delete("/analysis/{id}", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		b.deleted = append(b.deleted, chi.URLParam(req, "id"))
		b.mu.Unlock()
		writeBody(w, http.StatusOK, `{"success":true}`)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *fakeBackend) startedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.started...)
}

func (b *fakeBackend) deletedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...)
}

func writeBody(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeConfig(t *testing.T, baseURL string, expireAfterSeconds int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf(`api:
  base_url: %s
foreground:
  poll_interval_ms: 10
background:
  poll_interval_ms: 10
  expire_after_seconds: %d
notify:
  max_batch_wait_ms: 5
`, baseURL, expireAfterSeconds)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, baseURL string, args ...string) (string, error) {
	t.Helper()
	return executeWithExpiry(t, baseURL, 30, args...)
}

func executeWithExpiry(t *testing.T, baseURL string, expireAfterSeconds int, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr syncBuffer
	full := append([]string{"--config", writeConfig(t, baseURL, expireAfterSeconds), "--no-color"}, args...)
	err := run(context.Background(), full, &stdout, &stderr)
	return stdout.String(), err
}

func TestHealthCommand(t *testing.T) {
	t.Parallel()

	_, srv := newFakeBackend(t)
	out, err := execute(t, srv.URL, "health")
	require.NoError(t, err)
	require.Contains(t, out, "> Success!")
	require.Contains(t, out, "is ok")
}

func TestQueriesCommand(t *testing.T) {
	t.Parallel()

	_, srv := newFakeBackend(t)
	out, err := execute(t, srv.URL, "queries", "--company", "Acme", "--industry", "Widgets")
	require.NoError(t, err)
	require.Contains(t, out, "Generated 1 queries for analysis job-1")
	require.Contains(t, out, "best widgets")

	_, err = execute(t, srv.URL, "queries", "--company", "Acme")
	require.ErrorContains(t, err, "industry")
}

func TestRunCommandForeground(t *testing.T) {
	t.Parallel()

	backend, srv := newFakeBackend(t)
	output := filepath.Join(t.TempDir(), "report.json")

	out, err := execute(t, srv.URL, "run", "job-1", "-o", output)
	require.NoError(t, err)
	require.Contains(t, out, " 40% Running queries")
	require.Contains(t, out, "100% Done")
	require.Contains(t, out, "Analysis job-1 completed")
	require.Contains(t, out, "Globex")
	require.Equal(t, []string{"job-1"}, backend.startedIDs())

	raw, err := os.ReadFile(output)
	require.NoError(t, err)
	require.JSONEq(t, resultJSON, string(raw))
}

func TestRunCommandGeneratesQueriesFirst(t *testing.T) {
	t.Parallel()

	_, srv := newFakeBackend(t)
	out, err := execute(t, srv.URL, "run", "--company", "Acme", "--industry", "Widgets", "--sync")
	require.NoError(t, err)
	require.Contains(t, out, "Generated 1 queries for analysis job-1")
	require.Contains(t, out, "Analysis job-1 completed")

	_, err = execute(t, srv.URL, "run")
	require.ErrorContains(t, err, "--company and --industry")
}

func TestRunCommandErrors(t *testing.T) {
	t.Parallel()

	_, srv := newFakeBackend(t)

	_, err := execute(t, srv.URL, "run", "job-bad")
	var failed *analysis.FailedError
	require.ErrorAs(t, err, &failed)
	require.Equal(t, "LLM quota exhausted", errorMessage(err))

	_, err = execute(t, srv.URL, "run", "missing")
	var startErr *analysis.StartError
	require.ErrorAs(t, err, &startErr)
	require.Equal(t, "Analysis not found", errorMessage(err))
}

func TestStatusCommand(t *testing.T) {
	t.Parallel()

	_, srv := newFakeBackend(t)
	out, err := execute(t, srv.URL, "status", "job-1")
	require.NoError(t, err)
	require.Contains(t, out, "Analysis job-1 is running (executing)")
	require.Contains(t, out, "Progress: 40%")

	out, err = execute(t, srv.URL, "status", "job-1")
	require.NoError(t, err)
	require.Contains(t, out, "is completed (completed)")
	require.Contains(t, out, "Acme")
}

func TestDeleteCommand(t *testing.T) {
	t.Parallel()

	backend, srv := newFakeBackend(t)
	out, err := execute(t, srv.URL, "delete", "job-1")
	require.NoError(t, err)
	require.Contains(t, out, "Deleted analysis job-1")
	require.Equal(t, []string{"job-1"}, backend.deletedIDs())
}

func TestWatchCommand(t *testing.T) {
	t.Parallel()

	backend, srv := newFakeBackend(t)
	out, err := execute(t, srv.URL, "watch", "--start", "job-1", "job-bad", "missing")
	require.EqualError(t, err, "1 of 2 analyses failed")

	require.Contains(t, out, "missing: Analysis not found")
	require.Contains(t, out, `Analysis "job-1" started in background`)
	require.Contains(t, out, `Analysis "job-1" completed!`)
	require.Contains(t, out, `Analysis "job-bad" failed`)
	require.Contains(t, out, "LLM quota exhausted")
	require.Equal(t, 1, strings.Count(out, `Analysis "job-1" completed!`))
	require.ElementsMatch(t, []string{"job-1", "job-bad"}, backend.startedIDs())
}

func TestWatchCommandReportsExpiredFailure(t *testing.T) {
	t.Parallel()

	_, srv := newFakeBackend(t)
	out, err := executeWithExpiry(t, srv.URL, 1, "watch", "job-bad", "job-slow")
	require.EqualError(t, err, "1 of 2 analyses failed")
	require.Contains(t, out, `Analysis "job-bad" failed`)
	require.Contains(t, out, `Analysis "job-slow" completed!`)

	// The final table still lists the failed job after it expired.
	header := strings.LastIndex(out, "FINISHED")
	require.NotEqual(t, -1, header)
	require.Contains(t, out[header:], "job-bad")
	require.Contains(t, out[header:], "job-slow")
}

func TestWatchCommandLabel(t *testing.T) {
	t.Parallel()

	_, srv := newFakeBackend(t)
	out, err := execute(t, srv.URL, "watch", "--label", "Acme Q4", "job-1")
	require.NoError(t, err)
	require.Contains(t, out, `Analysis "Acme Q4" completed!`)
}

func TestWatchCommandNothingToWatch(t *testing.T) {
	t.Parallel()

	_, srv := newFakeBackend(t)
	_, err := execute(t, srv.URL, "watch", "--start", "missing")
	require.EqualError(t, err, "no analyses to watch")
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Boom", errorMessage(errors.New("boom")))
	require.Equal(t, analysis.DefaultStatusMessage, errorMessage(analysis.NewStatusError("job-1", errors.New("dial tcp"))))
	require.Equal(t, "", errorMessage(errors.New("")))
}
