package analysis

import (
	"fmt"

	"github.com/Nanzhexi/aksmes/statement"
)

// RatioPoint 单个报告期的ROA/ROE
type RatioPoint struct {
	Period      string   `json:"period"`
	TotalAssets float64  `json:"total_assets"`
	NetEquity   float64  `json:"net_equity"`
	NetProfit   float64  `json:"net_profit"`
	ROA         *float64 `json:"roa"`
	ROE         *float64 `json:"roe"`
}

// RatioSeries 按报告期降序排列的比率序列
type RatioSeries struct {
	Points      []RatioPoint        `json:"points"`
	TotalAssets *statement.Match    `json:"total_assets_row,omitempty"`
	NetEquity   *statement.Match    `json:"net_equity_row,omitempty"`
	NetProfit   *statement.Match    `json:"net_profit_row,omitempty"`
	Warnings    []statement.Warning `json:"warnings,omitempty"`
}

// Empty 序列是否没有数据
func (s RatioSeries) Empty() bool {
	return len(s.Points) == 0
}

// Latest 最近k期，k<=0时返回全部
func (s RatioSeries) Latest(k int) RatioSeries {
	if k > 0 && len(s.Points) > k {
		s.Points = s.Points[:k]
	}
	return s
}

// Ascending 按报告期升序返回
func (s RatioSeries) Ascending() []RatioPoint {
	return reverse(s.Points)
}

// ComputeRatios 按资产负债表与利润表的共同报告期计算ROA与ROE
func ComputeRatios(balance, income *statement.Table) RatioSeries {
	bs := statement.NormalizeReport(balance)
	is := statement.NormalizeReport(income)

	var series RatioSeries
	series.Warnings = append(series.Warnings, TagKind(bs.Warnings, statement.BalanceSheet)...)
	series.Warnings = append(series.Warnings, TagKind(is.Warnings, statement.IncomeStatement)...)

	assets, ok1 := locate(bs.Table, TotalAssetsTiers, FigureTotalAssets, statement.BalanceSheet, &series.Warnings)
	equity, ok2 := locate(bs.Table, EquityTiers, FigureEquity, statement.BalanceSheet, &series.Warnings)
	profit, ok3 := locate(is.Table, NetProfitTiers, FigureNetProfit, statement.IncomeStatement, &series.Warnings)
	if !ok1 || !ok2 || !ok3 {
		return series
	}
	series.TotalAssets = &assets
	series.NetEquity = &equity
	series.NetProfit = &profit

	bIdx := statement.PeriodIndex(bs.Table)
	iIdx := statement.PeriodIndex(is.Table)
	var common []string
	for key := range bIdx {
		if _, ok := iIdx[key]; ok {
			common = append(common, key)
		}
	}
	if len(common) == 0 {
		series.Warnings = append(series.Warnings, statement.Warning{
			Code:    statement.WarnNoCommonPeriods,
			Message: "资产负债表与利润表没有共同的报告期",
		})
		return series
	}
	statement.SortPeriods(common)

	var missing gaps
	for _, key := range common {
		a, okA := statement.CoerceNumeric(bs.Table.Cell(assets.Row, bIdx[key]))
		e, okE := statement.CoerceNumeric(bs.Table.Cell(equity.Row, bIdx[key]))
		p, okP := statement.CoerceNumeric(is.Table.Cell(profit.Row, iIdx[key]))
		missing.note(FigureTotalAssets, statement.BalanceSheet, key, okA)
		missing.note(FigureEquity, statement.BalanceSheet, key, okE)
		missing.note(FigureNetProfit, statement.IncomeStatement, key, okP)
		if !okA || !okE || !okP {
			continue
		}
		series.Points = append(series.Points, RatioPoint{
			Period:      key,
			TotalAssets: a,
			NetEquity:   e,
			NetProfit:   p,
			ROA:         percent(p, a),
			ROE:         percent(p, e),
		})
	}
	series.Warnings = append(series.Warnings, missing.warnings(len(common))...)
	return series
}

// percent num/den*100，分母为0时为nil
func percent(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	v := num / den * 100
	return &v
}

// TagKind 在警告信息前补充报表名称
func TagKind(ws []statement.Warning, kind statement.Kind) []statement.Warning {
	out := make([]statement.Warning, len(ws))
	for i, w := range ws {
		w.Message = fmt.Sprintf("%s：%s", kind.Label(), w.Message)
		out[i] = w
	}
	return out
}
