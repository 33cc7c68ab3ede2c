package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Nanzhexi/aksmes/cache"
	"github.com/Nanzhexi/aksmes/db"
	"github.com/Nanzhexi/aksmes/market/providers"
	"github.com/Nanzhexi/aksmes/pipeline"
	"github.com/Nanzhexi/aksmes/statement"
)

func fixedNow() time.Time {
	return time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
}

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "aksmes-http")
	if err != nil {
		panic(err)
	}
	if err := db.InitDB(filepath.Join(dir, "test.db")); err != nil {
		panic(err)
	}

	code := m.Run()

	db.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

// setupServices 使用模拟数据源装配处理器依赖
func setupServices(t *testing.T, opts providers.MockOptions) *ProgressHub {
	t.Helper()
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	m := providers.NewManager()
	m.AddStatementProvider(providers.NewMockProvider(opts))
	m.AddValuationProvider(providers.NewMockProvider(opts))

	store, err := cache.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	tables, err := cache.NewTableCache(store, 16, pipeline.NewTableCleaner().Preparer())
	if err != nil {
		t.Fatal(err)
	}

	hub := NewProgressHub()
	go hub.Start()
	t.Cleanup(hub.Stop)

	d := pipeline.NewDownloader(m, tables)
	d.SetHistory(db.History{})
	d.SetProgressSink(hub)

	a := pipeline.NewAnalyzer(tables, m)
	a.SetClock(fixedNow)

	SetServices(Services{
		Downloader: d,
		Analyzer:   a,
		Tables:     tables,
		Manager:    m,
		Progress:   hub,
	})
	now = fixedNow
	return hub
}

func serve(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	NewHandler(DefaultServerConfig()).ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthHandler(t *testing.T) {
	setupServices(t, providers.MockOptions{})

	rr := serve(t, "GET", "/api/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}

	var body struct {
		Status    string          `json:"status"`
		Database  bool            `json:"database"`
		Providers map[string]bool `json:"providers"`
		Primary   string          `json:"primary"`
	}
	decode(t, rr, &body)
	if body.Status != "ok" || !body.Database || !body.Providers["mock"] || body.Primary != "mock" {
		t.Errorf("unexpected health body: %+v", body)
	}
}

func TestDownloadAndQuery(t *testing.T) {
	setupServices(t, providers.MockOptions{})

	rr := serve(t, "POST", "/api/download/600519?date=20240630")
	if rr.Code != http.StatusOK {
		t.Fatalf("download status = %d body = %s", rr.Code, rr.Body.String())
	}
	var result pipeline.DownloadResult
	decode(t, rr, &result)
	if result.Symbol != "sh600519" || len(result.Statements) != 3 {
		t.Fatalf("download result = %+v", result)
	}
	for _, s := range result.Statements {
		if s.Error != "" || !strings.HasSuffix(s.Path, "_20240630.csv") {
			t.Errorf("statement %s: %+v", s.Kind, s)
		}
	}

	rr = serve(t, "GET", "/api/statements/sh600519/income")
	if rr.Code != http.StatusOK {
		t.Fatalf("statement status = %d", rr.Code)
	}
	var st struct {
		Shape string           `json:"shape"`
		Table *statement.Table `json:"table"`
	}
	decode(t, rr, &st)
	if st.Shape != "long" || st.Table == nil || st.Table.Columns[0] != statement.ItemColumn {
		t.Errorf("statement = %+v", st)
	}

	rr = serve(t, "GET", "/api/statements/sh600519/income?raw=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("raw statement status = %d", rr.Code)
	}

	rr = serve(t, "GET", "/api/metrics/sh600519?limit=2")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	var metrics struct {
		Metrics struct {
			Points []struct {
				Period string `json:"period"`
			} `json:"points"`
		} `json:"metrics"`
	}
	decode(t, rr, &metrics)
	if len(metrics.Metrics.Points) != 2 || metrics.Metrics.Points[0].Period != "20231231" {
		t.Errorf("metrics = %+v", metrics)
	}

	rr = serve(t, "GET", "/api/ratios/sh600519")
	if rr.Code != http.StatusOK {
		t.Fatalf("ratios status = %d", rr.Code)
	}
	var ratios struct {
		Ratios struct {
			Points []struct {
				ROE *float64 `json:"roe"`
			} `json:"points"`
		} `json:"ratios"`
	}
	decode(t, rr, &ratios)
	if len(ratios.Ratios.Points) != 5 || ratios.Ratios.Points[0].ROE == nil {
		t.Errorf("ratios = %+v", ratios)
	}

	rr = serve(t, "GET", "/api/export/sh600519/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "sh600519_metrics.csv") {
		t.Errorf("content disposition = %q", cd)
	}
	if !strings.HasPrefix(rr.Body.String(), "报告期,营业收入") {
		t.Errorf("csv = %q", rr.Body.String())
	}

	rr = serve(t, "GET", "/api/report/sh600519?valuation=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("report status = %d", rr.Code)
	}
	html := rr.Body.String()
	for _, want := range []string{"<!DOCTYPE html>", "<h1>", "财务分析报告", "<table>", "估值水平"} {
		if !strings.Contains(html, want) {
			t.Errorf("report missing %q", want)
		}
	}

	rr = serve(t, "GET", "/api/report/sh600519?format=markdown")
	if !strings.HasPrefix(rr.Body.String(), "# sh600519 财务分析报告") {
		t.Errorf("markdown = %q", rr.Body.String())
	}

	rr = serve(t, "GET", "/api/history/sh600519/downloads")
	if rr.Code != http.StatusOK {
		t.Fatalf("history status = %d", rr.Code)
	}
	var history struct {
		Data []db.DownloadLog `json:"data"`
	}
	decode(t, rr, &history)
	if len(history.Data) < 3 {
		t.Errorf("download history = %d entries", len(history.Data))
	}
}

func TestSeriesDefaultLimit(t *testing.T) {
	setupServices(t, providers.MockOptions{Periods: 12})
	if rr := serve(t, "POST", "/api/download/600519"); rr.Code != http.StatusOK {
		t.Fatalf("download status = %d body = %s", rr.Code, rr.Body.String())
	}

	tests := []struct {
		target string
		want   int
	}{
		{target: "/api/metrics/sh600519", want: defaultSeriesLimit},
		{target: "/api/ratios/sh600519", want: defaultSeriesLimit},
		{target: "/api/ratios/sh600519?limit=3", want: 3},
		{target: "/api/metrics/sh600519?limit=0", want: 12},
		{target: "/api/ratios/sh600519?limit=0", want: 12},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rr := serve(t, "GET", tt.target)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d", rr.Code)
			}
			var body struct {
				Metrics struct {
					Points []json.RawMessage `json:"points"`
				} `json:"metrics"`
				Ratios struct {
					Points []json.RawMessage `json:"points"`
				} `json:"ratios"`
			}
			decode(t, rr, &body)
			if got := len(body.Metrics.Points) + len(body.Ratios.Points); got != tt.want {
				t.Errorf("points = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValuationHandler(t *testing.T) {
	setupServices(t, providers.MockOptions{})

	rr := serve(t, "GET", "/api/valuation/600519.SH?years=3")
	if rr.Code != http.StatusOK {
		t.Fatalf("valuation status = %d body = %s", rr.Code, rr.Body.String())
	}
	var rep struct {
		Symbol   string `json:"symbol"`
		Provider string `json:"provider"`
	}
	decode(t, rr, &rep)
	if rep.Symbol != "sh600519" || rep.Provider != "mock" {
		t.Errorf("valuation = %+v", rep)
	}
}

func TestHandlerErrors(t *testing.T) {
	setupServices(t, providers.MockOptions{})

	tests := []struct {
		name   string
		method string
		target string
		status int
	}{
		{"bad symbol", "POST", "/api/download/abc", http.StatusBadRequest},
		{"bad date", "POST", "/api/download/600519?date=2024-06-30", http.StatusBadRequest},
		{"bad kind", "GET", "/api/statements/600519/profit", http.StatusBadRequest},
		{"not downloaded", "GET", "/api/statements/000001/balance", http.StatusNotFound},
		{"bad series", "GET", "/api/export/600519/cash", http.StatusBadRequest},
		{"bad history series", "GET", "/api/history/600519/trades", http.StatusBadRequest},
		{"wrong method", "GET", "/api/download/600519", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, tt.method, tt.target)
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.status, rr.Body.String())
			}
		})
	}
}

func TestDownloadAllFailed(t *testing.T) {
	setupServices(t, providers.MockOptions{FailingKinds: statement.Kinds()})

	rr := serve(t, "POST", "/api/download/600519")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadGateway)
	}

	rr = serve(t, "GET", "/api/metrics/600519")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	var body struct {
		Warnings []statement.Warning `json:"warnings"`
	}
	decode(t, rr, &body)
	if len(body.Warnings) == 0 {
		t.Error("expected missing table warnings")
	}
}

func TestUninitializedServices(t *testing.T) {
	SetServices(Services{})
	t.Cleanup(func() { SetServices(Services{}) })

	for _, target := range []string{"/api/metrics/600519", "/api/statements/600519/income", "/api/ws/progress"} {
		if rr := serve(t, "GET", target); rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d", target, rr.Code)
		}
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("request id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Request-ID", "req-1")
		var seen string
		LoggerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		})).ServeHTTP(rr, req)
		if seen != "req-1" || rr.Header().Get("X-Request-ID") != "req-1" {
			t.Errorf("request id = %q / %q", seen, rr.Header().Get("X-Request-ID"))
		}
	})

	t.Run("recovery", func(t *testing.T) {
		rr := httptest.NewRecorder()
		RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("status = %d", rr.Code)
		}
	})

	t.Run("cors preflight", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest("OPTIONS", "/api/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		CORSMiddleware([]string{"http://localhost:3000"})(http.NotFoundHandler()).ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
			t.Errorf("status = %d headers = %v", rr.Code, rr.Header())
		}
	})

	t.Run("deadline", func(t *testing.T) {
		var hasDeadline bool
		DeadlineMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, hasDeadline = r.Context().Deadline()
		})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
		if !hasDeadline {
			t.Error("expected request deadline")
		}
	})
}

func TestProgressWebSocket(t *testing.T) {
	hub := setupServices(t, providers.MockOptions{})
	srv := httptest.NewServer(NewHandler(DefaultServerConfig()))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/progress?symbol=sh600519"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("client count = %d", hub.ClientCount())
	}

	resp, err := http.Post(srv.URL+"/api/download/sh600519", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var stages []pipeline.Stage
	for {
		var e pipeline.ProgressEvent
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("read event: %v (stages %v)", err, stages)
		}
		if e.Symbol != "sh600519" {
			t.Errorf("event symbol = %q", e.Symbol)
		}
		stages = append(stages, e.Stage)
		if e.Stage == pipeline.StageFinished {
			break
		}
	}
	if len(stages) != 7 {
		t.Errorf("stages = %v", stages)
	}
}
