package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Nanzhexi/aksmes/analysis"
	"github.com/Nanzhexi/aksmes/db"
	"github.com/Nanzhexi/aksmes/market"
	"github.com/Nanzhexi/aksmes/statement"
)

// StatementFetcher 报表数据源，providers.Manager 实现该接口
type StatementFetcher interface {
	FetchStatement(ctx context.Context, symbol market.Symbol, kind statement.Kind) (*statement.Table, string, error)
}

// TableStore 原始报表存储，cache.TableCache 实现该接口
type TableStore interface {
	Put(symbol string, kind statement.Kind, asOf time.Time, raw *statement.Table) (string, error)
}

// History 历史记录，db.History 实现该接口
type History interface {
	SaveDownloadLog(entry db.DownloadLog) error
	SaveMetrics(symbol string, points []analysis.MetricPoint) error
	SaveRatios(symbol string, points []analysis.RatioPoint) error
}

// Stage 下载进度阶段
type Stage string

const (
	StageStarted   Stage = "started"
	StageSucceeded Stage = "succeeded"
	StageFailed    Stage = "failed"
	StageFinished  Stage = "finished"
)

// ProgressEvent 下载进度事件
type ProgressEvent struct {
	RunID    string         `json:"run_id"`
	Symbol   string         `json:"symbol"`
	Kind     statement.Kind `json:"kind,omitempty"`
	Stage    Stage          `json:"stage"`
	Provider string         `json:"provider,omitempty"`
	Error    string         `json:"error,omitempty"`
	Done     int            `json:"done"`
	Total    int            `json:"total"`
	Time     time.Time      `json:"time"`
}

// ProgressSink 进度事件接收方
type ProgressSink interface {
	Publish(ProgressEvent)
}

// ProgressFunc 函数形式的ProgressSink
type ProgressFunc func(ProgressEvent)

func (f ProgressFunc) Publish(e ProgressEvent) {
	f(e)
}

// StatementResult 单张报表的下载结果
type StatementResult struct {
	Kind     statement.Kind `json:"kind"`
	Label    string         `json:"label"`
	Provider string         `json:"provider,omitempty"`
	Path     string         `json:"path,omitempty"`
	Rows     int            `json:"rows"`
	Error    string         `json:"error,omitempty"`
	Err      error          `json:"-"`
}

// OK 是否成功
func (r StatementResult) OK() bool {
	return r.Err == nil
}

// DownloadResult 一次下载的汇总
type DownloadResult struct {
	RunID      string            `json:"run_id"`
	Symbol     string            `json:"symbol"`
	AsOf       time.Time         `json:"as_of"`
	Statements []StatementResult `json:"statements"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Succeeded 成功的报表类型
func (r *DownloadResult) Succeeded() []statement.Kind {
	var kinds []statement.Kind
	for _, s := range r.Statements {
		if s.OK() {
			kinds = append(kinds, s.Kind)
		}
	}
	return kinds
}

// Failed 失败的报表结果
func (r *DownloadResult) Failed() []StatementResult {
	var failed []StatementResult
	for _, s := range r.Statements {
		if !s.OK() {
			failed = append(failed, s)
		}
	}
	return failed
}

// Err 汇总全部失败，全部成功时为nil
func (r *DownloadResult) Err() error {
	var err error
	for _, s := range r.Failed() {
		err = multierr.Append(err, fmt.Errorf("%s: %w", s.Kind, s.Err))
	}
	return err
}

// DownloadStats 下载统计
type DownloadStats struct {
	Runs       int64     `json:"runs"`
	Statements int64     `json:"statements"`
	Failures   int64     `json:"failures"`
	LastRun    time.Time `json:"last_run"`
}

// Downloader 逐张下载三大报表，单张失败不影响其他报表
type Downloader struct {
	fetcher  StatementFetcher
	store    TableStore
	history  History
	progress ProgressSink
	kinds    []statement.Kind

	stats     DownloadStats
	statsLock sync.RWMutex
}

// NewDownloader 创建下载器
func NewDownloader(fetcher StatementFetcher, store TableStore) *Downloader {
	return &Downloader{
		fetcher: fetcher,
		store:   store,
		kinds:   statement.Kinds(),
	}
}

// SetHistory 设置下载日志存储
func (d *Downloader) SetHistory(h History) {
	d.history = h
}

// SetProgressSink 设置进度事件接收方
func (d *Downloader) SetProgressSink(sink ProgressSink) {
	d.progress = sink
}

// SetKinds 限定下载的报表类型
func (d *Downloader) SetKinds(kinds []statement.Kind) {
	if len(kinds) > 0 {
		d.kinds = kinds
	}
}

// Download 依次下载各报表并写入缓存
func (d *Downloader) Download(ctx context.Context, symbol market.Symbol, asOf time.Time) *DownloadResult {
	result := &DownloadResult{
		RunID:     uuid.NewString(),
		Symbol:    symbol.String(),
		AsOf:      asOf,
		StartedAt: time.Now(),
	}
	total := len(d.kinds)

	for i, kind := range d.kinds {
		d.publish(ProgressEvent{RunID: result.RunID, Symbol: result.Symbol, Kind: kind, Stage: StageStarted, Done: i, Total: total})

		res := d.fetchOne(ctx, symbol, kind, asOf)
		result.Statements = append(result.Statements, res)

		event := ProgressEvent{RunID: result.RunID, Symbol: result.Symbol, Kind: kind, Provider: res.Provider, Done: i + 1, Total: total}
		if res.OK() {
			event.Stage = StageSucceeded
			zap.S().Infow("statement downloaded", "symbol", result.Symbol, "kind", kind, "provider", res.Provider, "rows", res.Rows)
		} else {
			event.Stage = StageFailed
			event.Error = res.Error
			zap.S().Warnw("statement download failed", "symbol", result.Symbol, "kind", kind, "error", res.Err)
		}
		d.publish(event)
		d.logHistory(result.RunID, result.Symbol, res)
	}

	result.FinishedAt = time.Now()
	d.publish(ProgressEvent{RunID: result.RunID, Symbol: result.Symbol, Stage: StageFinished, Done: total, Total: total})
	d.recordStats(result)
	return result
}

// fetchOne 单张报表的错误边界，panic同样记为失败
func (d *Downloader) fetchOne(ctx context.Context, symbol market.Symbol, kind statement.Kind, asOf time.Time) (res StatementResult) {
	res = StatementResult{Kind: kind, Label: kind.Label()}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
		}
		if res.Err != nil {
			res.Error = res.Err.Error()
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	table, provider, err := d.fetcher.FetchStatement(ctx, symbol, kind)
	res.Provider = provider
	if err != nil {
		res.Err = err
		return res
	}
	if table.IsEmpty() {
		res.Err = fmt.Errorf("%s returned an empty table", provider)
		return res
	}
	res.Rows = len(table.Rows)

	if d.store != nil {
		path, err := d.store.Put(symbol.String(), kind, asOf, table)
		if err != nil {
			res.Err = fmt.Errorf("cache %s: %w", kind, err)
			return res
		}
		res.Path = path
	}
	return res
}

func (d *Downloader) publish(e ProgressEvent) {
	if d.progress == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	d.progress.Publish(e)
}

func (d *Downloader) logHistory(runID, symbol string, res StatementResult) {
	if d.history == nil {
		return
	}
	entry := db.DownloadLog{
		RunID:    runID,
		Symbol:   symbol,
		Kind:     string(res.Kind),
		Provider: res.Provider,
		Success:  res.OK(),
		Error:    res.Error,
		Rows:     res.Rows,
		Path:     res.Path,
	}
	if err := d.history.SaveDownloadLog(entry); err != nil {
		zap.S().Warnw("save download log failed", "symbol", symbol, "error", err)
	}
}

func (d *Downloader) recordStats(result *DownloadResult) {
	d.statsLock.Lock()
	defer d.statsLock.Unlock()

	d.stats.Runs++
	d.stats.Statements += int64(len(result.Statements))
	d.stats.Failures += int64(len(result.Failed()))
	d.stats.LastRun = result.FinishedAt
}

// GetStats 获取统计信息
func (d *Downloader) GetStats() DownloadStats {
	d.statsLock.RLock()
	defer d.statsLock.RUnlock()

	return d.stats
}
