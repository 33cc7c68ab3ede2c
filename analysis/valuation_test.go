package analysis

import (
	"testing"
	"time"
)

func dailyPoints(asOf time.Time, pe []float64) []ValuationPoint {
	points := make([]ValuationPoint, len(pe))
	for i, v := range pe {
		v := v
		points[i] = ValuationPoint{
			Date: asOf.AddDate(0, 0, -(len(pe) - 1 - i)),
			PE:   &v,
		}
	}
	return points
}

func TestWindowStatistics(t *testing.T) {
	asOf := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	// 按时间顺序 1..20，最后一个值为 5
	values := []float64{1, 2, 3, 4, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 5}
	data := dailyPoints(asOf, values)

	stats := WindowStatistics(data, PE, Window{Name: "1年", Days: 365}, asOf)
	if stats.Count != 20 {
		t.Fatalf("count = %d", stats.Count)
	}
	approx(t, "mean", stats.Mean, 10.5)
	approx(t, "min", stats.Min, 1)
	approx(t, "max", stats.Max, 20)
	approx(t, "bottom10", stats.Bottom10Mean, 1.5)
	approx(t, "top10", stats.Top10Mean, 19.5)
	approx(t, "current", stats.Current, 5)
	approx(t, "percentile", stats.Percentile, 20)
}

func TestWindowStatisticsTooFewPoints(t *testing.T) {
	asOf := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	data := dailyPoints(asOf, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})

	stats := WindowStatistics(data, PE, Windows[2], asOf)
	if stats.Count != 9 {
		t.Errorf("count = %d", stats.Count)
	}
	if stats.Mean != nil || stats.Percentile != nil || stats.Current != nil {
		t.Errorf("expected nil statistics, got %+v", stats)
	}
}

func TestWindowStatisticsRespectsCutoff(t *testing.T) {
	asOf := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	var data []ValuationPoint
	for i := 0; i < 12; i++ {
		v := 100.0
		data = append(data, ValuationPoint{Date: asOf.AddDate(-2, 0, i), PE: &v})
	}
	for i := 0; i < 12; i++ {
		v := float64(i + 1)
		data = append(data, ValuationPoint{Date: asOf.AddDate(0, 0, -11+i), PE: &v})
	}

	oneYear := WindowStatistics(data, PE, Windows[2], asOf)
	if oneYear.Count != 12 {
		t.Fatalf("1年 count = %d, want 12", oneYear.Count)
	}
	approx(t, "1年 max", oneYear.Max, 12)

	threeYears := WindowStatistics(data, PE, Windows[1], asOf)
	if threeYears.Count != 24 {
		t.Fatalf("3年 count = %d, want 24", threeYears.Count)
	}
	approx(t, "3年 max", threeYears.Max, 100)
}

func TestZoneOf(t *testing.T) {
	tests := []struct {
		p    *float64
		want Zone
	}{
		{p: nil, want: ZoneUnknown},
		{p: ptr(10), want: ZoneLow},
		{p: ptr(20), want: ZoneMid},
		{p: ptr(80), want: ZoneMid},
		{p: ptr(80.5), want: ZoneHigh},
	}
	for _, tt := range tests {
		if got := ZoneOf(tt.p); got != tt.want {
			t.Errorf("ZoneOf(%v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestAnalyzeValuation(t *testing.T) {
	asOf := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 30)
	for i := range values {
		values[i] = float64(30 - i)
	}
	data := dailyPoints(asOf, values)
	old := 999.0
	data = append(data, ValuationPoint{Date: asOf.AddDate(-6, 0, 0), PE: &old})

	report := AnalyzeValuation("sh600519", data, asOf, 5)
	if report.Count != 30 {
		t.Errorf("count = %d, want 30 after filtering", report.Count)
	}
	if len(report.Indicators) != 1 || report.Indicators[0].Indicator != PE {
		t.Fatalf("expected only PE, got %+v", report.Indicators)
	}
	pe := report.Indicators[0]
	if len(pe.Windows) != len(Windows) {
		t.Fatalf("windows = %d", len(pe.Windows))
	}
	// 当前值为序列最小值
	approx(t, "percentile", pe.Windows[0].Percentile, 0)
	if pe.Zone != ZoneLow {
		t.Errorf("zone = %q, want low", pe.Zone)
	}
	if !report.Start.Before(report.End) {
		t.Errorf("start %v should precede end %v", report.Start, report.End)
	}
}
