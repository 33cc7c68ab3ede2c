// Package report 生成分析报告与序列导出
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/Nanzhexi/aksmes/analysis"
	"github.com/Nanzhexi/aksmes/pipeline"
)

var yi = decimal.New(1, 8)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// Amount 以亿元显示金额
func Amount(v float64) string {
	return decimal.NewFromFloat(v).Div(yi).StringFixed(2)
}

// Percent 百分比，nil显示为"-"
func Percent(v *float64) string {
	if v == nil {
		return "-"
	}
	return decimal.NewFromFloat(*v).StringFixed(2) + "%"
}

func number(v *float64) string {
	if v == nil {
		return "-"
	}
	return decimal.NewFromFloat(*v).StringFixed(2)
}

// Markdown 生成Markdown格式的分析报告，valuation可为nil
func Markdown(a *pipeline.Analysis, valuation *analysis.ValuationReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s 财务分析报告\n\n", a.Symbol)
	fmt.Fprintf(&b, "生成时间：%s\n\n", a.GeneratedAt.Format("2006-01-02 15:04:05"))

	if len(a.Statements) > 0 {
		b.WriteString("## 报表概况\n\n")
		b.WriteString("| 报表 | 原始形状 | 行数 | 报告期 |\n|---|---|---:|---|\n")
		for _, s := range a.Statements {
			periods := "-"
			if len(s.Periods) > 0 {
				periods = fmt.Sprintf("%s ~ %s（%d期）", s.Periods[len(s.Periods)-1], s.Periods[0], len(s.Periods))
			}
			fmt.Fprintf(&b, "| %s | %s | %d | %s |\n", s.Label, s.Shape, s.Rows, periods)
		}
		b.WriteString("\n")
	}

	b.WriteString("## 营收与净利润\n\n")
	if a.Metrics.Empty() {
		b.WriteString("暂无数据。\n\n")
	} else {
		b.WriteString("| 报告期 | 营业收入(亿元) | 营收增长率 | 净利润(亿元) | 净利润增长率 |\n|---|---:|---:|---:|---:|\n")
		for _, p := range a.Metrics.Points {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				p.Period, Amount(p.Revenue), Percent(p.RevenueGrowth), Amount(p.NetProfit), Percent(p.NetProfitGrowth))
		}
		b.WriteString("\n")
	}

	b.WriteString("## 盈利能力\n\n")
	if a.Ratios.Empty() {
		b.WriteString("暂无数据。\n\n")
	} else {
		b.WriteString("| 报告期 | 总资产(亿元) | 净资产(亿元) | 净利润(亿元) | ROA | ROE |\n|---|---:|---:|---:|---:|---:|\n")
		for _, p := range a.Ratios.Points {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				p.Period, Amount(p.TotalAssets), Amount(p.NetEquity), Amount(p.NetProfit), Percent(p.ROA), Percent(p.ROE))
		}
		b.WriteString("\n")
	}

	if valuation != nil {
		writeValuation(&b, valuation)
	}

	if warnings := a.AllWarnings(); len(warnings) > 0 {
		b.WriteString("## 提示\n\n")
		for _, w := range warnings {
			fmt.Fprintf(&b, "- %s\n", w.Message)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeValuation(b *strings.Builder, v *analysis.ValuationReport) {
	b.WriteString("## 估值水平\n\n")
	if len(v.Indicators) == 0 {
		b.WriteString("暂无估值数据。\n\n")
		return
	}
	fmt.Fprintf(b, "数据区间：%s ~ %s，共%d个交易日", v.Start.Format("2006-01-02"), v.End.Format("2006-01-02"), v.Count)
	if v.Provider != "" {
		fmt.Fprintf(b, "（来源：%s）", v.Provider)
	}
	b.WriteString("\n\n")

	for _, ind := range v.Indicators {
		fmt.Fprintf(b, "### %s：%s\n\n", ind.Name, ind.Zone.Verdict())
		b.WriteString("| 周期 | 样本 | 当前 | 均值 | 最高 | 最低 | 高10%均值 | 低10%均值 | 历史分位 |\n|---|---:|---:|---:|---:|---:|---:|---:|---:|\n")
		for _, w := range ind.Windows {
			fmt.Fprintf(b, "| %s | %d | %s | %s | %s | %s | %s | %s | %s |\n",
				w.Window, w.Count, number(w.Current), number(w.Mean), number(w.Max), number(w.Min),
				number(w.Top10Mean), number(w.Bottom10Mean), Percent(w.Percentile))
		}
		b.WriteString("\n")
	}
}

// HTML 将Markdown报告渲染为HTML片段
func HTML(a *pipeline.Analysis, valuation *analysis.ValuationReport) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(Markdown(a, valuation)), &buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}
