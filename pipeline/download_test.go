package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Nanzhexi/aksmes/analysis"
	"github.com/Nanzhexi/aksmes/cache"
	"github.com/Nanzhexi/aksmes/db"
	"github.com/Nanzhexi/aksmes/market"
	"github.com/Nanzhexi/aksmes/market/providers"
	"github.com/Nanzhexi/aksmes/statement"
)

var (
	testSymbol = market.Symbol{Exchange: market.Shanghai, Code: "600519"}
	testDay    = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
)

func fixedNow() time.Time {
	return time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
}

// memoryHistory 内存历史记录
type memoryHistory struct {
	mu      sync.Mutex
	logs    []db.DownloadLog
	metrics map[string][]analysis.MetricPoint
	ratios  map[string][]analysis.RatioPoint
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{
		metrics: make(map[string][]analysis.MetricPoint),
		ratios:  make(map[string][]analysis.RatioPoint),
	}
}

func (h *memoryHistory) SaveDownloadLog(entry db.DownloadLog) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logs = append(h.logs, entry)
	return nil
}

func (h *memoryHistory) SaveMetrics(symbol string, points []analysis.MetricPoint) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics[symbol] = points
	return nil
}

func (h *memoryHistory) SaveRatios(symbol string, points []analysis.RatioPoint) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ratios[symbol] = points
	return nil
}

func newTableCache(t *testing.T) *cache.TableCache {
	t.Helper()
	store, err := cache.NewDirStore(filepath.Join(t.TempDir(), "statements"))
	if err != nil {
		t.Fatal(err)
	}
	c, err := cache.NewTableCache(store, 16, NewTableCleaner().Preparer())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func mockManager(opts providers.MockOptions) *providers.Manager {
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	m := providers.NewManager()
	m.AddStatementProvider(providers.NewMockProvider(opts))
	m.AddValuationProvider(providers.NewMockProvider(opts))
	return m
}

func TestDownloadIsolatesFailures(t *testing.T) {
	manager := mockManager(providers.MockOptions{FailingKinds: []statement.Kind{statement.IncomeStatement}})
	tables := newTableCache(t)
	history := newMemoryHistory()

	var events []ProgressEvent
	d := NewDownloader(manager, tables)
	d.SetHistory(history)
	d.SetProgressSink(ProgressFunc(func(e ProgressEvent) { events = append(events, e) }))

	result := d.Download(context.Background(), testSymbol, testDay)

	succeeded := result.Succeeded()
	if len(succeeded) != 2 || succeeded[0] != statement.BalanceSheet || succeeded[1] != statement.CashFlow {
		t.Fatalf("succeeded = %v", succeeded)
	}
	failed := result.Failed()
	if len(failed) != 1 || failed[0].Kind != statement.IncomeStatement || failed[0].Error == "" {
		t.Fatalf("failed = %+v", failed)
	}
	if err := result.Err(); err == nil || !strings.Contains(err.Error(), "income") {
		t.Errorf("Err() = %v", err)
	}
	if err := result.Err(); !errors.Is(err, providers.ErrAllProvidersFailed) {
		t.Errorf("aggregate should wrap provider error: %v", err)
	}

	for _, kind := range succeeded {
		if _, err := tables.Store().Latest(testSymbol.String(), kind); err != nil {
			t.Errorf("%s not cached: %v", kind, err)
		}
	}
	if _, err := tables.Store().Latest(testSymbol.String(), statement.IncomeStatement); err != cache.ErrNotFound {
		t.Errorf("failed statement must not be cached: %v", err)
	}

	if len(history.logs) != 3 {
		t.Fatalf("logs = %d", len(history.logs))
	}
	for _, l := range history.logs {
		if l.RunID != result.RunID {
			t.Errorf("run id mismatch %s != %s", l.RunID, result.RunID)
		}
	}
	if history.logs[1].Success || history.logs[1].Kind != "income" {
		t.Errorf("income log = %+v", history.logs[1])
	}

	// 每张报表 started + 结果，最后 finished
	if len(events) != 7 {
		t.Fatalf("events = %d", len(events))
	}
	if events[3].Stage != StageFailed || events[3].Kind != statement.IncomeStatement {
		t.Errorf("event[3] = %+v", events[3])
	}
	if last := events[len(events)-1]; last.Stage != StageFinished || last.Done != 3 {
		t.Errorf("last event = %+v", last)
	}

	stats := d.GetStats()
	if stats.Runs != 1 || stats.Statements != 3 || stats.Failures != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDownloadAllSucceed(t *testing.T) {
	d := NewDownloader(mockManager(providers.MockOptions{}), newTableCache(t))
	result := d.Download(context.Background(), testSymbol, testDay)
	if result.Err() != nil {
		t.Fatalf("unexpected error: %v", result.Err())
	}
	for _, s := range result.Statements {
		if s.Provider != "mock" || s.Rows == 0 || s.Path == "" {
			t.Errorf("statement result = %+v", s)
		}
	}
}

type panicFetcher struct{}

func (panicFetcher) FetchStatement(ctx context.Context, symbol market.Symbol, kind statement.Kind) (*statement.Table, string, error) {
	if kind == statement.BalanceSheet {
		panic("boom")
	}
	return statement.NewTable([]string{"项目", "20231231"}, [][]any{{"净利润", "1"}}), "fake", nil
}

func TestDownloadRecoversPanic(t *testing.T) {
	d := NewDownloader(panicFetcher{}, nil)
	result := d.Download(context.Background(), testSymbol, testDay)
	failed := result.Failed()
	if len(failed) != 1 || failed[0].Kind != statement.BalanceSheet || !strings.Contains(failed[0].Error, "boom") {
		t.Fatalf("failed = %+v", failed)
	}
	if len(result.Succeeded()) != 2 {
		t.Errorf("succeeded = %v", result.Succeeded())
	}
}

func TestDownloadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDownloader(mockManager(providers.MockOptions{}), nil)
	d.SetKinds([]statement.Kind{statement.BalanceSheet})
	result := d.Download(ctx, testSymbol, testDay)
	if len(result.Statements) != 1 || !errors.Is(result.Statements[0].Err, context.Canceled) {
		t.Errorf("statements = %+v", result.Statements)
	}
}
