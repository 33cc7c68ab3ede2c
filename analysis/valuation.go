package analysis

import (
	"sort"
	"time"
)

// Indicator 估值指标
type Indicator string

const (
	PE Indicator = "pe"
	PB Indicator = "pb"
	PS Indicator = "ps"
)

// Indicators 全部估值指标
func Indicators() []Indicator {
	return []Indicator{PE, PB, PS}
}

// Label 指标中文名
func (i Indicator) Label() string {
	switch i {
	case PE:
		return "市盈率(PE)"
	case PB:
		return "市净率(PB)"
	case PS:
		return "市销率(PS)"
	}
	return string(i)
}

// ValuationPoint 单个交易日的估值
type ValuationPoint struct {
	Date time.Time `json:"date"`
	PE   *float64  `json:"pe"`
	PB   *float64  `json:"pb"`
	PS   *float64  `json:"ps"`
}

// Value 取指定指标的值
func (p ValuationPoint) Value(ind Indicator) (float64, bool) {
	var v *float64
	switch ind {
	case PE:
		v = p.PE
	case PB:
		v = p.PB
	case PS:
		v = p.PS
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Window 统计周期
type Window struct {
	Name string
	Days int
}

// Windows 默认统计周期
var Windows = []Window{
	{Name: "5年", Days: 5 * 365},
	{Name: "3年", Days: 3 * 365},
	{Name: "1年", Days: 365},
}

// minWindowPoints 统计所需的最少数据点
const minWindowPoints = 10

// WindowStats 单个周期的统计值，数据不足时全部为nil
type WindowStats struct {
	Window       string   `json:"window"`
	Count        int      `json:"count"`
	Mean         *float64 `json:"mean"`
	Max          *float64 `json:"max"`
	Min          *float64 `json:"min"`
	Top10Mean    *float64 `json:"top_10_pct_mean"`
	Bottom10Mean *float64 `json:"bottom_10_pct_mean"`
	Current      *float64 `json:"current"`
	Percentile   *float64 `json:"current_percentile"`
}

// Zone 当前估值所处区间
type Zone string

const (
	ZoneUnknown Zone = ""
	ZoneLow     Zone = "low"
	ZoneMid     Zone = "mid"
	ZoneHigh    Zone = "high"
)

// ZoneOf 按历史分位划分区间
func ZoneOf(percentile *float64) Zone {
	switch {
	case percentile == nil:
		return ZoneUnknown
	case *percentile < 20:
		return ZoneLow
	case *percentile > 80:
		return ZoneHigh
	}
	return ZoneMid
}

// Verdict 区间的中文结论
func (z Zone) Verdict() string {
	switch z {
	case ZoneLow:
		return "低位，估值相对便宜"
	case ZoneMid:
		return "中位，估值相对适中"
	case ZoneHigh:
		return "高位，估值相对昂贵"
	}
	return "数据不足"
}

// IndicatorSummary 单个指标在各周期的统计
type IndicatorSummary struct {
	Indicator Indicator     `json:"indicator"`
	Name      string        `json:"name"`
	Windows   []WindowStats `json:"windows"`
	// Zone 以最长周期的历史分位判断
	Zone Zone `json:"zone"`
}

// ValuationReport 估值分析结果
type ValuationReport struct {
	Symbol     string             `json:"symbol"`
	Provider   string             `json:"provider,omitempty"`
	AsOf       time.Time          `json:"as_of"`
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	Count      int                `json:"count"`
	Indicators []IndicatorSummary `json:"indicators"`
}

// FilterYears 保留asOf之前years年内的数据并按日期升序排列
func FilterYears(points []ValuationPoint, asOf time.Time, years int) []ValuationPoint {
	cutoff := asOf.AddDate(0, 0, -years*365)
	out := make([]ValuationPoint, 0, len(points))
	for _, p := range points {
		if p.Date.Before(cutoff) || p.Date.After(asOf) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// AnalyzeValuation 计算各指标在各周期的统计值
func AnalyzeValuation(symbol string, points []ValuationPoint, asOf time.Time, years int) ValuationReport {
	data := FilterYears(points, asOf, years)
	report := ValuationReport{Symbol: symbol, AsOf: asOf, Count: len(data)}
	if len(data) > 0 {
		report.Start = data[0].Date
		report.End = data[len(data)-1].Date
	}

	for _, ind := range Indicators() {
		if !hasIndicator(data, ind) {
			continue
		}
		summary := IndicatorSummary{Indicator: ind, Name: ind.Label()}
		for _, w := range Windows {
			summary.Windows = append(summary.Windows, WindowStatistics(data, ind, w, asOf))
		}
		if len(summary.Windows) > 0 {
			summary.Zone = ZoneOf(summary.Windows[0].Percentile)
		}
		report.Indicators = append(report.Indicators, summary)
	}
	return report
}

// WindowStatistics 计算单个周期的统计值，data需按日期升序
func WindowStatistics(data []ValuationPoint, ind Indicator, w Window, asOf time.Time) WindowStats {
	cutoff := asOf.AddDate(0, 0, -w.Days)
	var values []float64
	for _, p := range data {
		if p.Date.Before(cutoff) {
			continue
		}
		if v, ok := p.Value(ind); ok {
			values = append(values, v)
		}
	}

	stats := WindowStats{Window: w.Name, Count: len(values)}
	if len(values) < minWindowPoints {
		return stats
	}

	current := values[len(values)-1]
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	below := 0
	for _, v := range sorted {
		if v < current {
			below++
		}
	}

	stats.Mean = ptr(mean(values))
	stats.Min = ptr(sorted[0])
	stats.Max = ptr(sorted[n-1])
	stats.Bottom10Mean = ptr(mean(sorted[:int(float64(n)*0.1)]))
	stats.Top10Mean = ptr(mean(sorted[int(float64(n)*0.9):]))
	stats.Current = ptr(current)
	stats.Percentile = ptr(float64(below) / float64(n) * 100)
	return stats
}

func hasIndicator(data []ValuationPoint, ind Indicator) bool {
	for _, p := range data {
		if _, ok := p.Value(ind); ok {
			return true
		}
	}
	return false
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func ptr(v float64) *float64 {
	return &v
}
