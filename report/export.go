package report

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/Nanzhexi/aksmes/analysis"
)

// Series 可导出的序列
type Series string

const (
	SeriesMetrics Series = "metrics"
	SeriesRatios  Series = "ratios"
)

// ParseSeries 解析序列名
func ParseSeries(s string) (Series, error) {
	switch Series(s) {
	case SeriesMetrics, SeriesRatios:
		return Series(s), nil
	}
	return "", fmt.Errorf("unknown series %q (want metrics or ratios)", s)
}

type metricRow struct {
	Period          string `csv:"报告期"`
	Revenue         string `csv:"营业收入"`
	RevenueGrowth   string `csv:"营收增长率(%)"`
	NetProfit       string `csv:"净利润"`
	NetProfitGrowth string `csv:"净利润增长率(%)"`
}

type ratioRow struct {
	Period      string `csv:"报告期"`
	TotalAssets string `csv:"总资产"`
	NetEquity   string `csv:"净资产"`
	NetProfit   string `csv:"净利润"`
	ROA         string `csv:"ROA(%)"`
	ROE         string `csv:"ROE(%)"`
}

func raw(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.4f", *v)
}

// MetricsCSV 按报告期升序导出营收与净利润序列
func MetricsCSV(w io.Writer, s analysis.MetricSeries) error {
	points := s.Ascending()
	rows := make([]*metricRow, 0, len(points))
	for _, p := range points {
		rows = append(rows, &metricRow{
			Period:          p.Period,
			Revenue:         raw(p.Revenue),
			RevenueGrowth:   optional(p.RevenueGrowth),
			NetProfit:       raw(p.NetProfit),
			NetProfitGrowth: optional(p.NetProfitGrowth),
		})
	}
	return gocsv.Marshal(&rows, w)
}

// RatiosCSV 按报告期升序导出ROA/ROE序列
func RatiosCSV(w io.Writer, s analysis.RatioSeries) error {
	points := s.Ascending()
	rows := make([]*ratioRow, 0, len(points))
	for _, p := range points {
		rows = append(rows, &ratioRow{
			Period:      p.Period,
			TotalAssets: raw(p.TotalAssets),
			NetEquity:   raw(p.NetEquity),
			NetProfit:   raw(p.NetProfit),
			ROA:         optional(p.ROA),
			ROE:         optional(p.ROE),
		})
	}
	return gocsv.Marshal(&rows, w)
}
