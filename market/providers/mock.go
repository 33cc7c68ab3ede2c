package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Nanzhexi/aksmes/analysis"
	"github.com/Nanzhexi/aksmes/market"
	"github.com/Nanzhexi/aksmes/statement"
)

// MockOptions 模拟数据源参数
type MockOptions struct {
	// FailingKinds 这些报表类型总是返回错误
	FailingKinds []statement.Kind
	// Periods 年报期数，默认5
	Periods int
	// Now 当前时间，默认time.Now
	Now func() time.Time
}

// MockProvider 离线确定性数据源。资产负债表为标准形状（千分位字符串），
// 利润表为长表，现金流量表为转置表。
type MockProvider struct {
	failing map[statement.Kind]bool
	periods int
	now     func() time.Time
	printer *message.Printer

	mu    sync.Mutex
	calls map[statement.Kind]int
}

// NewMockProvider 创建模拟数据源
func NewMockProvider(opts MockOptions) *MockProvider {
	if opts.Periods <= 0 {
		opts.Periods = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	failing := make(map[statement.Kind]bool, len(opts.FailingKinds))
	for _, k := range opts.FailingKinds {
		failing[k] = true
	}
	return &MockProvider{
		failing: failing,
		periods: opts.Periods,
		now:     opts.Now,
		printer: message.NewPrinter(language.English),
		calls:   make(map[statement.Kind]int),
	}
}

func (mp *MockProvider) Name() string {
	return "mock"
}

func (mp *MockProvider) Priority() int {
	return 0
}

// Calls 某类报表被请求的次数
func (mp *MockProvider) Calls(kind statement.Kind) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.calls[kind]
}

// mockYear 某一年的模拟财务数据
type mockYear struct {
	date      time.Time
	revenue   float64
	cost      float64
	profit    float64
	assets    float64
	liability float64
	cash      float64
}

func (mp *MockProvider) years(symbol market.Symbol) []mockYear {
	base := float64(symbolSeed(symbol)%900+100) * 1e8
	latest := mp.now().Year() - 1

	out := make([]mockYear, mp.periods)
	for i := range out {
		revenue := base / math.Pow(1.12, float64(i))
		assets := revenue * 2.5
		out[i] = mockYear{
			date:      time.Date(latest-i, 12, 31, 0, 0, 0, 0, time.UTC),
			revenue:   revenue,
			cost:      revenue * 0.6,
			profit:    revenue * 0.25,
			assets:    assets,
			liability: assets * 0.4,
			cash:      assets * 0.2,
		}
	}
	return out
}

// FetchStatement 返回确定性的模拟报表
func (mp *MockProvider) FetchStatement(ctx context.Context, symbol market.Symbol, kind statement.Kind) (*statement.Table, error) {
	mp.mu.Lock()
	mp.calls[kind]++
	mp.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if mp.failing[kind] {
		return nil, fmt.Errorf("mock: %s fetch failed for %s", kind.Label(), symbol)
	}

	years := mp.years(symbol)
	switch kind {
	case statement.BalanceSheet:
		return mp.balanceSheet(years), nil
	case statement.IncomeStatement:
		return incomeStatement(years), nil
	case statement.CashFlow:
		return cashFlow(years), nil
	}
	return nil, fmt.Errorf("mock: unsupported statement kind %q", kind)
}

// balanceSheet 标准形状，数值为千分位字符串
func (mp *MockProvider) balanceSheet(years []mockYear) *statement.Table {
	cols := []string{statement.ItemColumn}
	for _, y := range years {
		cols = append(cols, y.date.Format("20060102"))
	}
	items := []struct {
		label string
		value func(mockYear) float64
	}{
		{"货币资金", func(y mockYear) float64 { return y.cash }},
		{"资产总计", func(y mockYear) float64 { return y.assets }},
		{"负债合计", func(y mockYear) float64 { return y.liability }},
		{"所有者权益合计", func(y mockYear) float64 { return y.assets - y.liability }},
		{"负债和所有者权益总计", func(y mockYear) float64 { return y.assets }},
	}
	rows := make([][]any, 0, len(items))
	for _, item := range items {
		row := []any{item.label}
		for _, y := range years {
			row = append(row, mp.printer.Sprintf("%.2f", item.value(y)))
		}
		rows = append(rows, row)
	}
	return statement.NewTable(cols, rows)
}

// incomeStatement 长表：日期 + 项目 + 数值
func incomeStatement(years []mockYear) *statement.Table {
	var rows [][]any
	for _, y := range years {
		date := y.date.Format("2006-01-02")
		rows = append(rows,
			[]any{date, "营业总收入", y.revenue},
			[]any{date, "营业成本", y.cost},
			[]any{date, "利润总额", y.profit * 1.25},
			[]any{date, "净利润", y.profit},
		)
	}
	return statement.NewTable([]string{"REPORT_DATE", "ITEM_NAME", "VALUE"}, rows)
}

// cashFlow 转置表：首列为日期
func cashFlow(years []mockYear) *statement.Table {
	cols := []string{"REPORT_DATE", "经营活动产生的现金流量净额", "投资活动产生的现金流量净额", "筹资活动产生的现金流量净额"}
	rows := make([][]any, 0, len(years))
	for _, y := range years {
		rows = append(rows, []any{y.date.Format("2006-01-02"), y.profit * 1.1, -y.profit * 0.4, -y.profit * 0.5})
	}
	return statement.NewTable(cols, rows)
}

// FetchValuation 五年日度估值，围绕固定中枢正弦波动
func (mp *MockProvider) FetchValuation(ctx context.Context, symbol market.Symbol) ([]analysis.ValuationPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := float64(symbolSeed(symbol) % 30)
	end := mp.now().Truncate(24 * time.Hour)
	days := 5 * 365

	points := make([]analysis.ValuationPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		phase := float64(i) / 90
		pe := 20 + seed + 8*math.Sin(phase)
		pb := 3 + seed/10 + math.Cos(phase)
		ps := 5 + seed/5 + 2*math.Sin(phase/2)
		points = append(points, analysis.ValuationPoint{
			Date: end.AddDate(0, 0, -i),
			PE:   &pe,
			PB:   &pb,
			PS:   &ps,
		})
	}
	return points, nil
}

func (mp *MockProvider) HealthCheck() error {
	return nil
}

func symbolSeed(symbol market.Symbol) uint32 {
	h := fnv.New32a()
	h.Write([]byte(symbol.String()))
	return h.Sum32()
}
