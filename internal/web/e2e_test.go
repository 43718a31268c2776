package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/AlekseyZapadovnikov/tracker-analytics/conf"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/analytics"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/service"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/tracker"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/web"
)

var e2eNow = time.Date(2023, time.January, 20, 0, 0, 0, 0, time.UTC)

func TestE2E_ReportFromFakeTracker(t *testing.T) {
	suite := newE2ESuite(t, http.HandlerFunc(fakeJira))

	var res models.AnalysisResult
	status := suite.getJSON("/reports/PROJ", &res)
	require.Equal(t, http.StatusOK, status)

	require.Equal(t, 3, res.IssueCount)
	require.Equal(t, 1, res.ClosedCount)
	require.Equal(t, e2eNow, res.SnapshotNow.UTC())
	require.Empty(t, res.Report.Unavailable)

	require.NotNil(t, res.Report.OpenDuration)
	require.Equal(t, 1, res.Report.OpenDuration.Total)
	require.Equal(t, "9d", res.Report.OpenDuration.Buckets[0].Label)

	var statusTotal time.Duration
	for _, st := range res.Report.StatusTime {
		statusTotal += st.Total
	}
	// 9 дней у закрытой задачи и по 19 у двух открытых.
	require.Equal(t, (9+19+19)*24*time.Hour, statusTotal)

	last := res.Report.DailyTrend.Points[len(res.Report.DailyTrend.Points)-1]
	require.Equal(t, 3, last.CumulativeCreated)
	require.Equal(t, 1, last.CumulativeClosed)

	var ds struct {
		Dataset string                 `json:"dataset"`
		Data    []models.PriorityCount `json:"data"`
	}
	status = suite.getJSON("/reports/PROJ/priority", &ds)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []models.PriorityCount{
		{Priority: "Major", Count: 2},
		{Priority: analytics.UnspecifiedPriority, Count: 1},
	}, ds.Data)

	status = suite.getJSON("/reports/1-bad", &map[string]any{})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestE2E_TrackerAuthFailure(t *testing.T) {
	suite := newE2ESuite(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	status := suite.getJSON("/reports/PROJ", &body)

	require.Equal(t, http.StatusBadGateway, status)
	require.Equal(t, "TRACKER_AUTH_FAILED", body.Error.Code)
}

// fakeJira отдаёт три задачи: закрытую со встроенной историей, открытую без истории
// и открытую с неполной встроенной историей, которую нужно догрузить отдельно.
func fakeJira(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/rest/api/2/search":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"startAt":    0,
			"maxResults": 50,
			"total":      3,
			"issues": []any{
				map[string]any{
					"key": "PROJ-1",
					"fields": map[string]any{
						"created":        "2023-01-01T00:00:00.000+0000",
						"resolutiondate": "2023-01-10T00:00:00.000+0000",
						"status":         map[string]any{"name": "Closed", "statusCategory": map[string]any{"key": "done"}},
						"priority":       map[string]any{"name": "Major"},
						"assignee":       map[string]any{"name": "bob", "displayName": "Bob"},
						"reporter":       map[string]any{"name": "alice", "displayName": "Alice"},
						"timespent":      7200,
					},
					"changelog": map[string]any{
						"startAt": 0, "maxResults": 2, "total": 2,
						"histories": []any{
							statusHistory("1", "2023-01-03T00:00:00.000+0000", "Open", "In Progress"),
							statusHistory("2", "2023-01-10T00:00:00.000+0000", "In Progress", "Closed"),
						},
					},
				},
				map[string]any{
					"key": "PROJ-2",
					"fields": map[string]any{
						"created":  "2023-01-01T00:00:00.000+0000",
						"status":   map[string]any{"name": "Open"},
						"reporter": map[string]any{"name": "alice"},
					},
					"changelog": map[string]any{"startAt": 0, "maxResults": 0, "total": 0, "histories": []any{}},
				},
				map[string]any{
					"key": "PROJ-3",
					"fields": map[string]any{
						"created":  "2023-01-01T00:00:00.000+0000",
						"status":   map[string]any{"name": "Review"},
						"priority": map[string]any{"name": "Major"},
						"reporter": map[string]any{"name": "carol"},
					},
					"changelog": map[string]any{
						"startAt": 0, "maxResults": 1, "total": 2,
						"histories": []any{
							statusHistory("3", "2023-01-02T00:00:00.000+0000", "Open", "In Progress"),
						},
					},
				},
			},
		})
	case "/rest/api/2/issue/PROJ-3/changelog":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"startAt": 0, "maxResults": 50, "total": 2, "isLast": true,
			"values": []any{
				statusHistory("3", "2023-01-02T00:00:00.000+0000", "Open", "In Progress"),
				statusHistory("4", "2023-01-05T00:00:00.000+0000", "In Progress", "Review"),
			},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func statusHistory(id, created, from, to string) map[string]any {
	return map[string]any{
		"id":      id,
		"created": created,
		"items":   []any{map[string]any{"field": "status", "fromString": from, "toString": to}},
	}
}

type e2eSuite struct {
	t       *testing.T
	server  *web.Server
	baseURL string
	client  *http.Client
	errCh   chan error
}

func newE2ESuite(t *testing.T, jira http.Handler) *e2eSuite {
	t.Helper()

	jiraSrv := httptest.NewServer(jira)
	t.Cleanup(jiraSrv.Close)

	log := zerolog.Nop()
	client := tracker.NewClient(tracker.Options{
		BaseURL:         jiraSrv.URL,
		PageSize:        50,
		ExpandChangelog: true,
		Retry: tracker.RetryPolicy{
			MaxRetries:      1,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			Multiplier:      1,
		},
	}, log)
	analyzer := service.NewAnalyzer(
		tracker.NewFetcher(client, log),
		tracker.NewExtractor(client, log),
		analytics.NewAggregator(analytics.Options{}, log),
		4,
		log,
	).WithClock(func() time.Time { return e2eNow })

	cfg := conf.HttpServConf{
		Host: "127.0.0.1",
		Port: freePort(t),
	}
	server := web.New(cfg, analyzer, nil, log)
	suite := &e2eSuite{
		t:       t,
		server:  server,
		baseURL: fmt.Sprintf("http://%s", server.Address),
		client:  &http.Client{Timeout: 5 * time.Second},
		errCh:   make(chan error, 1),
	}
	suite.startServer()
	suite.waitForReady()

	t.Cleanup(func() {
		suite.shutdown()
	})

	return suite
}

func (s *e2eSuite) startServer() {
	go func() {
		err := s.server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
			return
		}
		s.errCh <- nil
	}()
}

func (s *e2eSuite) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(s.t, s.server.Shutdown(ctx))
	require.NoError(s.t, <-s.errCh)
}

func (s *e2eSuite) waitForReady() {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := s.client.Get(s.baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(20 * time.Millisecond)
	}
	s.t.Fatalf("server did not become ready at %s", s.baseURL)
}

func (s *e2eSuite) getJSON(path string, out any) int {
	s.t.Helper()
	resp, err := s.client.Get(s.baseURL + path)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func freePort(tb testing.TB) string {
	tb.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(tb, err)
	defer ln.Close()
	addr := ln.Addr().(*net.TCPAddr)
	return strconv.Itoa(addr.Port)
}
