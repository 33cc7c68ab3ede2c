package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Nanzhexi/aksmes/analysis"
	"github.com/Nanzhexi/aksmes/cache"
	"github.com/Nanzhexi/aksmes/market"
	"github.com/Nanzhexi/aksmes/statement"
)

// TableSource 已处理报表来源，cache.TableCache 实现该接口
type TableSource interface {
	Get(symbol string, kind statement.Kind) (cache.Prepared, error)
}

// ValuationFetcher 估值历史来源，providers.Manager 实现该接口
type ValuationFetcher interface {
	FetchValuation(ctx context.Context, symbol market.Symbol) ([]analysis.ValuationPoint, string, error)
}

// StatementInfo 参与分析的报表概况
type StatementInfo struct {
	Kind    statement.Kind `json:"kind"`
	Label   string         `json:"label"`
	Shape   string         `json:"shape"`
	Path    string         `json:"path"`
	Rows    int            `json:"rows"`
	Periods []string       `json:"periods"`
}

// Analysis 单只证券的财务分析结果
type Analysis struct {
	Symbol      string                `json:"symbol"`
	GeneratedAt time.Time             `json:"generated_at"`
	Statements  []StatementInfo       `json:"statements"`
	Metrics     analysis.MetricSeries `json:"metrics"`
	Ratios      analysis.RatioSeries  `json:"ratios"`
	// Warnings 报表级警告，不含指标与比率自身的警告
	Warnings []statement.Warning `json:"warnings,omitempty"`
}

// AllWarnings 全部警告
func (a *Analysis) AllWarnings() []statement.Warning {
	all := make([]statement.Warning, 0, len(a.Warnings)+len(a.Metrics.Warnings)+len(a.Ratios.Warnings))
	all = append(all, a.Warnings...)
	all = append(all, a.Metrics.Warnings...)
	all = append(all, a.Ratios.Warnings...)
	return all
}

// Statement 按类型查找报表概况
func (a *Analysis) Statement(kind statement.Kind) (StatementInfo, bool) {
	for _, s := range a.Statements {
		if s.Kind == kind {
			return s, true
		}
	}
	return StatementInfo{}, false
}

// Analyzer 基于缓存报表的分析服务
type Analyzer struct {
	source     TableSource
	valuations ValuationFetcher
	history    History
	now        func() time.Time
}

// NewAnalyzer 创建分析服务，valuations可为nil
func NewAnalyzer(source TableSource, valuations ValuationFetcher) *Analyzer {
	return &Analyzer{
		source:     source,
		valuations: valuations,
		now:        time.Now,
	}
}

// SetHistory 设置指标历史存储
func (a *Analyzer) SetHistory(h History) {
	a.history = h
}

// SetClock 替换时间来源
func (a *Analyzer) SetClock(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

// Analyze 读取最新缓存报表，提取指标并计算比率
func (a *Analyzer) Analyze(ctx context.Context, symbol market.Symbol) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Analysis{Symbol: symbol.String(), GeneratedAt: a.now()}
	tables := make(map[statement.Kind]*statement.Table)

	for _, kind := range statement.Kinds() {
		p, err := a.source.Get(result.Symbol, kind)
		if errors.Is(err, cache.ErrNotFound) {
			result.Warnings = append(result.Warnings, statement.Warning{
				Code:    statement.WarnMissingTable,
				Message: fmt.Sprintf("未找到%s缓存，请先下载", kind.Label()),
			})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", kind, err)
		}

		tables[kind] = p.Table
		result.Warnings = append(result.Warnings, analysis.TagKind(p.Warnings, kind)...)
		result.Statements = append(result.Statements, StatementInfo{
			Kind:    kind,
			Label:   kind.Label(),
			Shape:   p.Shape.String(),
			Path:    p.Path,
			Rows:    len(p.Table.Rows),
			Periods: p.Table.Periods(),
		})
	}

	if income, ok := tables[statement.IncomeStatement]; ok {
		result.Metrics = analysis.ExtractMetrics(income)
		if balance, ok := tables[statement.BalanceSheet]; ok {
			result.Ratios = analysis.ComputeRatios(balance, income)
		}
	}

	a.saveHistory(result)
	return result, nil
}

func (a *Analyzer) saveHistory(result *Analysis) {
	if a.history == nil {
		return
	}
	if !result.Metrics.Empty() {
		if err := a.history.SaveMetrics(result.Symbol, result.Metrics.Points); err != nil {
			zap.S().Warnw("save metrics failed", "symbol", result.Symbol, "error", err)
		}
	}
	if !result.Ratios.Empty() {
		if err := a.history.SaveRatios(result.Symbol, result.Ratios.Points); err != nil {
			zap.S().Warnw("save ratios failed", "symbol", result.Symbol, "error", err)
		}
	}
}

// Valuation 获取估值历史并计算各周期统计
func (a *Analyzer) Valuation(ctx context.Context, symbol market.Symbol, years int) (*analysis.ValuationReport, error) {
	if a.valuations == nil {
		return nil, errors.New("no valuation source configured")
	}
	if years <= 0 {
		years = 5
	}

	points, provider, err := a.valuations.FetchValuation(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch valuation for %s: %w", symbol, err)
	}
	report := analysis.AnalyzeValuation(symbol.String(), points, a.now(), years)
	report.Provider = provider
	return &report, nil
}

// Preparer 归一化后再清洗，清洗问题记入报表警告，供 cache.TableCache 使用
func (tc *TableCleaner) Preparer() cache.Preparer {
	return func(symbol string, kind statement.Kind, raw *statement.Table) statement.Report {
		report := statement.NormalizeReport(raw)
		var issues []QualityIssue
		report.Table, issues = tc.Clean(symbol, kind, report.Table)
		for _, issue := range issues {
			report.Warnings = append(report.Warnings, issue.Warning())
		}
		return report
	}
}
