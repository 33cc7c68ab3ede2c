// Package analysis 从归一化报表中提取指标序列并计算财务比率
package analysis

import (
	"github.com/Nanzhexi/aksmes/statement"
)

// 指标名称，用于警告信息
const (
	FigureRevenue     = "营业收入"
	FigureNetProfit   = "净利润"
	FigureTotalAssets = "总资产"
	FigureEquity      = "净资产"
)

var (
	RevenueTiers = statement.Tiers{
		{"营业收入", "营业总收入"},
		{"主营业务收入", "总收入", "收入总计", "营业额"},
		{"收入"},
	}
	NetProfitTiers = statement.Tiers{
		{"净利润", "归属于母公司股东的净利润", "归属于上市公司股东的净利润"},
		{"利润总额", "净利"},
		{"利润"},
	}
	TotalAssetsTiers = statement.Tiers{
		{"总资产", "资产总计", "资产总额", "资产合计"},
		{"资产"},
	}
	EquityTiers = statement.Tiers{
		{"所有者权益", "股东权益", "净资产", "所有者权益合计", "股东权益合计", "权益合计"},
		{"权益"},
	}
)

// MetricPoint 单个报告期的营收与净利润
type MetricPoint struct {
	Period          string   `json:"period"`
	Revenue         float64  `json:"revenue"`
	NetProfit       float64  `json:"net_profit"`
	RevenueGrowth   *float64 `json:"revenue_growth"`
	NetProfitGrowth *float64 `json:"net_profit_growth"`
}

// MetricSeries 按报告期降序排列的指标序列
type MetricSeries struct {
	Points    []MetricPoint       `json:"points"`
	Revenue   *statement.Match    `json:"revenue_row,omitempty"`
	NetProfit *statement.Match    `json:"net_profit_row,omitempty"`
	Warnings  []statement.Warning `json:"warnings,omitempty"`
}

// Empty 序列是否没有数据
func (s MetricSeries) Empty() bool {
	return len(s.Points) == 0
}

// Latest 最近n期，n<=0时返回全部
func (s MetricSeries) Latest(n int) MetricSeries {
	if n > 0 && len(s.Points) > n {
		s.Points = s.Points[:n]
	}
	return s
}

// Ascending 按报告期升序返回，用于绘图
func (s MetricSeries) Ascending() []MetricPoint {
	return reverse(s.Points)
}

// ExtractMetrics 从利润表提取营收、净利润及环比增长率
func ExtractMetrics(income *statement.Table) MetricSeries {
	rep := statement.NormalizeReport(income)
	series := MetricSeries{Warnings: TagKind(rep.Warnings, statement.IncomeStatement)}
	t := rep.Table

	rev, revOK := locate(t, RevenueTiers, FigureRevenue, statement.IncomeStatement, &series.Warnings)
	np, npOK := locate(t, NetProfitTiers, FigureNetProfit, statement.IncomeStatement, &series.Warnings)
	if !revOK || !npOK {
		return series
	}
	series.Revenue = &rev
	series.NetProfit = &np

	index := statement.PeriodIndex(t)
	keys := make([]string, 0, len(index))
	for key := range index {
		keys = append(keys, key)
	}
	statement.SortPeriodsAscending(keys)

	var missing gaps
	points := make([]MetricPoint, 0, len(keys))
	for _, key := range keys {
		col := index[key]
		r, ok1 := statement.CoerceNumeric(t.Cell(rev.Row, col))
		p, ok2 := statement.CoerceNumeric(t.Cell(np.Row, col))
		missing.note(FigureRevenue, statement.IncomeStatement, key, ok1)
		missing.note(FigureNetProfit, statement.IncomeStatement, key, ok2)
		if !ok1 || !ok2 {
			continue
		}
		point := MetricPoint{Period: key, Revenue: r, NetProfit: p}
		if n := len(points); n > 0 {
			prev := points[n-1]
			point.RevenueGrowth = growth(r, prev.Revenue)
			point.NetProfitGrowth = growth(p, prev.NetProfit)
		}
		points = append(points, point)
	}

	series.Points = reverse(points)
	series.Warnings = append(series.Warnings, missing.warnings(len(keys))...)
	return series
}

// locate 查找指标行，并在失败或使用备选关键词时追加警告
func locate(t *statement.Table, tiers statement.Tiers, figure string, kind statement.Kind, warnings *[]statement.Warning) (statement.Match, bool) {
	m, ok := statement.FindRow(t, tiers)
	if !ok {
		*warnings = append(*warnings, statement.RowNotFound(figure, kind))
		return m, false
	}
	if m.Fallback() {
		*warnings = append(*warnings, statement.FallbackTier(figure, kind, m))
	}
	return m, true
}

// gap 某指标缺少数值的报告期
type gap struct {
	figure  string
	kind    statement.Kind
	periods []string
}

// gaps 按首次出现的顺序记录各指标缺少数值的报告期
type gaps []gap

func (g *gaps) note(figure string, kind statement.Kind, period string, ok bool) {
	if ok {
		return
	}
	for i := range *g {
		if (*g)[i].figure == figure && (*g)[i].kind == kind {
			(*g)[i].periods = append((*g)[i].periods, period)
			return
		}
	}
	*g = append(*g, gap{figure: figure, kind: kind, periods: []string{period}})
}

func (g gaps) warnings(total int) []statement.Warning {
	out := make([]statement.Warning, 0, len(g))
	for _, e := range g {
		out = append(out, statement.NoNumericPeriods(e.figure, e.kind, e.periods, total))
	}
	return out
}

// growth 增长率(%)，基期为0时为nil
func growth(cur, base float64) *float64 {
	if base == 0 {
		return nil
	}
	g := (cur/base - 1) * 100
	return &g
}

func reverse[T any](in []T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
