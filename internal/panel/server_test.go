package panel_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cdr.dev/slog/v3/sloggers/slogtest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/runnerr0/visitrelay/internal/events"
	"github.com/runnerr0/visitrelay/internal/flush"
	"github.com/runnerr0/visitrelay/internal/panel"
	"github.com/runnerr0/visitrelay/internal/state"
	"github.com/runnerr0/visitrelay/internal/storage/storagetest"
	"github.com/runnerr0/visitrelay/internal/visit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixedPhase flush.Phase

func (p fixedPhase) Phase() flush.Phase { return flush.Phase(p) }

type captured struct {
	mu          sync.Mutex
	navigations []string
	started     int
	installed   int
}

func (c *captured) Navigations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.navigations...)
}

func (c *captured) Lifecycle() (started, installed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started, c.installed
}

type fixture struct {
	coord *state.Coordinator
	got   *captured
	srv   *httptest.Server
}

func newFixture(t *testing.T, opts ...panel.Option) *fixture {
	t.Helper()
	log := slogtest.Make(t, &slogtest.Options{IgnoreErrors: true})
	coord := state.New(storagetest.NewSQLite(t), nil)
	got := &captured{}

	router := events.NewRouter(events.Handlers{
		NavigationCompleted: func(_ context.Context, url string) {
			got.mu.Lock()
			got.navigations = append(got.navigations, url)
			got.mu.Unlock()
		},
		UserForceSend: func(context.Context) string { return "Nothing to send." },
		Started: func(context.Context) {
			got.mu.Lock()
			got.started++
			got.mu.Unlock()
		},
		InstalledOrUpdated: func(context.Context) {
			got.mu.Lock()
			got.installed++
			got.mu.Unlock()
		},
	}, log)

	opts = append([]panel.Option{panel.WithLogger(log)}, opts...)
	s := panel.New(coord, opts...)
	s.Attach(router)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{coord: coord, got: got, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t, panel.WithVersion("1.2.3"), panel.WithPhaseReporter(fixedPhase(flush.PhaseSending)))

	resp := f.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body panel.StatusResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, panel.StatusResponse{Status: "ok", Version: "1.2.3", Phase: "sending"}, body)
}

func TestSummary(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	fmtr, err := visit.NewFormatter(visit.ZoneUTC)
	require.NoError(t, err)
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	_, err = f.coord.Update(ctx, func(st *state.State) error {
		for _, h := range []string{"b.com", "a.com", "a.com"} {
			st.Entries = append(st.Entries, visit.NewEntry(h, now, fmtr))
		}
		st.LastSentAtMillis = now.UnixMilli()
		st.LastVisitedDomain = "a.com"
		return nil
	})
	require.NoError(t, err)

	resp := f.do(t, http.MethodGet, "/api/summary", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body panel.SummaryResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, []state.HostnameCount{{Hostname: "a.com", Count: 2}, {Hostname: "b.com", Count: 1}}, body.Hostnames)
	require.NotNil(t, body.LastSentAt)
	assert.True(t, now.Equal(*body.LastSentAt))
	assert.Equal(t, "a.com", body.LastVisitedDomain)
}

func TestSummary_Empty(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/summary", "")
	var body panel.SummaryResponse
	decodeBody(t, resp, &body)
	assert.Zero(t, body.Total)
	assert.Empty(t, body.Hostnames)
	assert.Nil(t, body.LastSentAt)
}

func TestFlush(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/flush", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body panel.FlushResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "Nothing to send.", body.Status)
}

func TestSettings(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got state.Settings
	decodeBody(t, resp, &got)
	assert.Equal(t, state.Settings{AllowlistDomains: []string{}}, got)

	resp = f.do(t, http.MethodPut, "/api/settings", `{"allowlist_enabled":true,"allowlist_domains":["github.com"," go.dev "]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &got)
	assert.Equal(t, state.Settings{AllowlistEnabled: true, AllowlistDomains: []string{"github.com", "go.dev"}}, got)

	// A partial update leaves other settings alone.
	resp = f.do(t, http.MethodPut, "/api/settings", `{"live_mode":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := f.coord.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.Settings{AllowlistEnabled: true, AllowlistDomains: []string{"github.com", "go.dev"}, LiveMode: true}, stored)
}

func TestSettings_BadRequests(t *testing.T) {
	t.Parallel()
	f := newFixture(t, panel.WithMaxRequestSize(64))

	resp := f.do(t, http.MethodPut, "/api/settings", `{"live_mode":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/settings", `{"unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/settings", `{"allowlist_domains":["`+strings.Repeat("a", 100)+`"]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/events/navigation", `{"url":"https://example.com/"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/events/navigation", `{"url":"chrome://settings"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/events/navigation", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/events/activation", `{"tab_id":7,"url":"https://github.com/"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/events/activation", `{"tab_id":8,"error":"No tab with id: 8."}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/events/started", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/api/events/installed", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, []string{"https://example.com/", "https://github.com/"}, f.got.Navigations())
	started, installed := f.got.Lifecycle()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, installed)
}

func TestEvents_NotAttached(t *testing.T) {
	t.Parallel()
	s := panel.New(state.New(storagetest.NewSQLite(t), nil))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/api/events/started", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp2, err := srv.Client().Post(srv.URL+"/api/flush", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

func TestEvents_RateLimited(t *testing.T) {
	t.Parallel()
	f := newFixture(t, panel.WithRateLimit(2))

	for i := 0; i < 2; i++ {
		resp := f.do(t, http.MethodPost, "/api/events/started", "")
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
	resp := f.do(t, http.MethodPost, "/api/events/started", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Panel reads are not limited.
	resp = f.do(t, http.MethodGet, "/api/summary", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	t.Parallel()
	f := newFixture(t, panel.WithAllowedOrigins([]string{"chrome-extension://*"}))

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/events/navigation", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "chrome-extension://abcdef")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "chrome-extension://abcdef", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	resp2, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	state.New(storagetest.NewSQLite(t), reg)
	f := newFixture(t, panel.WithGatherer(reg))

	resp := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := bufio.NewScanner(resp.Body)
	var found bool
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "visitrelay_buffer_entries") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestMetrics_DisabledWithoutGatherer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// readEvent reads one server-sent event.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && event != "":
			return event, data
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestChanges_Streams(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	streamCtx, stopStream := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, f.srv.URL+"/api/changes", nil)
	require.NoError(t, err)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer stopStream()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	r := bufio.NewReader(resp.Body)

	event, data := readEvent(t, r)
	assert.Equal(t, "summary", event)
	assert.JSONEq(t, `{"total":0,"hostnames":[]}`, data)

	_, err = f.coord.UpdateSettings(ctx, func(s *state.Settings) { s.LiveMode = true })
	require.NoError(t, err)

	event, data = readEvent(t, r)
	assert.Equal(t, "change", event)
	var change state.Change
	require.NoError(t, json.Unmarshal([]byte(data), &change))
	assert.Equal(t, []string{state.KeyLiveMode}, change.Keys)
}

func TestServeListener_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	s := panel.New(state.New(storagetest.NewSQLite(t), nil),
		panel.WithLogger(slogtest.Make(t, nil)))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/status")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
	http.DefaultClient.CloseIdleConnections()
}
