package analysis

import (
	"testing"

	"github.com/Nanzhexi/aksmes/statement"
)

func TestComputeRatios(t *testing.T) {
	balance := statement.NewTable([]string{"项目", "20231231", "20221231", "20211231"}, [][]any{
		{"货币资金", "500", "400", "300"},
		{"资产总计", "10,000", "8,000", "6,000"},
		{"负债合计", "4,000", "3,000", "2,000"},
		{"所有者权益合计", "6,000", "5,000", "4,000"},
	})
	income := statement.NewTable([]string{"项目", "20231231", "20221231", "20201231"}, [][]any{
		{"营业收入", 3000.0, 2500.0, 2000.0},
		{"净利润", 1200.0, 1000.0, 800.0},
	})

	series := ComputeRatios(balance, income)
	if len(series.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", series.Warnings)
	}
	if len(series.Points) != 2 {
		t.Fatalf("expected 2 common periods, got %d", len(series.Points))
	}
	if series.Points[0].Period != "20231231" || series.Points[1].Period != "20221231" {
		t.Errorf("periods not descending: %+v", series.Points)
	}

	p := series.Points[0]
	if p.TotalAssets != 10000 || p.NetEquity != 6000 || p.NetProfit != 1200 {
		t.Errorf("unexpected figures %+v", p)
	}
	approx(t, "roa", p.ROA, 12)
	approx(t, "roe", p.ROE, 20)
}

func TestComputeRatiosZeroAssets(t *testing.T) {
	balance := statement.NewTable([]string{"项目", "20231231"}, [][]any{
		{"资产总计", 0.0},
		{"股东权益合计", 500.0},
	})
	income := statement.NewTable([]string{"项目", "20231231"}, [][]any{
		{"净利润", 50.0},
	})

	series := ComputeRatios(balance, income)
	if len(series.Points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(series.Points))
	}
	p := series.Points[0]
	if p.ROA != nil {
		t.Errorf("roa should be nil with zero assets, got %v", *p.ROA)
	}
	approx(t, "roe", p.ROE, 10)
}

func TestComputeRatiosMixedPeriodEncodings(t *testing.T) {
	balance := statement.NewTable([]string{"项目", "2023-12-31"}, [][]any{
		{"资产总计", 100.0},
		{"所有者权益合计", 50.0},
	})
	income := statement.NewTable([]string{"REPORT_DATE", "净利润"}, [][]any{
		{"20231231", 5.0},
	})

	series := ComputeRatios(balance, income)
	if len(series.Points) != 1 || series.Points[0].Period != "20231231" {
		t.Fatalf("expected the shared period, got %+v", series.Points)
	}
}

func TestComputeRatiosSkipsIncompletePeriods(t *testing.T) {
	balance := statement.NewTable([]string{"项目", "20231231", "20221231"}, [][]any{
		{"资产总计", 100.0, "-"},
		{"所有者权益合计", 50.0, 40.0},
	})
	income := statement.NewTable([]string{"项目", "20231231", "20221231"}, [][]any{
		{"净利润", 5.0, 4.0},
	})

	series := ComputeRatios(balance, income)
	if len(series.Points) != 1 || series.Points[0].Period != "20231231" {
		t.Fatalf("unexpected points %+v", series.Points)
	}
}

func TestComputeRatiosWarnings(t *testing.T) {
	tests := []struct {
		name     string
		balance  *statement.Table
		income   *statement.Table
		wantCode string
		figure   string
	}{
		{
			name: "missing equity",
			balance: statement.NewTable([]string{"项目", "20231231"}, [][]any{
				{"资产总计", 100.0},
			}),
			income:   statement.NewTable([]string{"项目", "20231231"}, [][]any{{"净利润", 5.0}}),
			wantCode: statement.WarnRowNotFound,
			figure:   FigureEquity,
		},
		{
			name: "total assets not numeric",
			balance: statement.NewTable([]string{"项目", "20231231"}, [][]any{
				{"资产总计", "-"},
				{"所有者权益合计", 50.0},
			}),
			income:   statement.NewTable([]string{"项目", "20231231"}, [][]any{{"净利润", 5.0}}),
			wantCode: statement.WarnNoNumericPeriod,
			figure:   FigureTotalAssets,
		},
		{
			name: "no common periods",
			balance: statement.NewTable([]string{"项目", "20231231"}, [][]any{
				{"资产总计", 100.0},
				{"所有者权益合计", 50.0},
			}),
			income:   statement.NewTable([]string{"项目", "20221231"}, [][]any{{"净利润", 5.0}}),
			wantCode: statement.WarnNoCommonPeriods,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := ComputeRatios(tt.balance, tt.income)
			if !series.Empty() {
				t.Fatalf("expected empty series, got %+v", series.Points)
			}
			found := false
			for _, w := range series.Warnings {
				if w.Code == tt.wantCode && w.Figure == tt.figure {
					found = true
				}
			}
			if !found {
				t.Errorf("warning %s/%s not found in %v", tt.wantCode, tt.figure, series.Warnings)
			}
		})
	}
}
