package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nanzhexi/aksmes/analysis"
	"github.com/Nanzhexi/aksmes/app"
	"github.com/Nanzhexi/aksmes/config"
	"github.com/Nanzhexi/aksmes/db"
	"github.com/Nanzhexi/aksmes/logging"
	"github.com/Nanzhexi/aksmes/market"
	"github.com/Nanzhexi/aksmes/pipeline"
	"github.com/Nanzhexi/aksmes/report"
)

var version = "dev"

var (
	configPath    string
	date          string
	years         int
	analyzeFormat string
	reportFormat  string
	outputFile    string
	withValue     bool
	noHistory     bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:     "fincli",
		Short:   "A-share financial statement downloader and analyzer",
		Version: version,
		Example: `  # Download balance sheet, income statement and cash flow into the cache
  fincli download 600519

  # Revenue / net profit growth and ROA / ROE from cached statements
  fincli analyze sh600519 -f json

  # PE / PB percentiles over the last 5 years
  fincli valuation 600519.SH --years 5

  # Export series as CSV, or render a report
  fincli export 600519 ratios -o ratios.csv
  fincli report 600519 --valuation -f html -o report.html`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noHistory, "no-history", false, "Do not write results to the database")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "Output file path (stdout if empty)")

	downloadCmd := &cobra.Command{
		Use:   "download SYMBOL...",
		Short: "Download the three statements for each symbol",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDownload,
	}
	downloadCmd.Flags().StringVar(&date, "date", "", "Cache date YYYYMMDD (default today)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze SYMBOL",
		Short: "Compute growth metrics and profitability ratios",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "text", "Output format (text, json)")

	valuationCmd := &cobra.Command{
		Use:   "valuation SYMBOL",
		Short: "Analyze PE / PB percentiles",
		Args:  cobra.ExactArgs(1),
		RunE:  runValuation,
	}
	valuationCmd.Flags().IntVar(&years, "years", 5, "History window in years")

	exportCmd := &cobra.Command{
		Use:   "export SYMBOL metrics|ratios",
		Short: "Export a series as CSV",
		Args:  cobra.ExactArgs(2),
		RunE:  runExport,
	}

	reportCmd := &cobra.Command{
		Use:   "report SYMBOL",
		Short: "Render an analysis report",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport,
	}
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "markdown", "Output format (markdown, html)")
	reportCmd.Flags().BoolVar(&withValue, "valuation", false, "Include valuation section")
	reportCmd.Flags().IntVar(&years, "years", 5, "Valuation window in years")

	rootCmd.AddCommand(downloadCmd, analyzeCmd, valuationCmd, exportCmd, reportCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup 加载配置并装配服务，返回的清理函数需在结束时调用
func setup() (*app.App, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Cache.Watch = false

	restore, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := []func(){restore}
	done := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	if !noHistory {
		if err := db.InitDB(cfg.Database.Path); err != nil {
			done()
			return nil, nil, fmt.Errorf("init database: %w", err)
		}
		cleanup = append(cleanup, func() { db.Close() })
	}

	a, err := app.New(cfg)
	if err != nil {
		done()
		return nil, nil, err
	}
	return a, done, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// output 打开输出目标
func output() (io.Writer, func() error, error) {
	if outputFile == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, nil, err
	}
	return f, func() error {
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Output written to: %s\n", outputFile)
		return nil
	}, nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	asOf := time.Now()
	if date != "" {
		t, err := time.Parse("20060102", date)
		if err != nil {
			return fmt.Errorf("--date must be YYYYMMDD: %w", err)
		}
		asOf = t
	}

	symbols := make([]market.Symbol, 0, len(args))
	for _, arg := range args {
		s, err := market.NormalizeSymbol(arg)
		if err != nil {
			return err
		}
		symbols = append(symbols, s)
	}

	a, done, err := setup()
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := signalContext()
	defer cancel()

	a.Downloader.SetProgressSink(pipeline.ProgressFunc(func(e pipeline.ProgressEvent) {
		switch e.Stage {
		case pipeline.StageSucceeded:
			fmt.Fprintf(os.Stderr, "[%d/%d] %s %s ok (%s)\n", e.Done, e.Total, e.Symbol, e.Kind, e.Provider)
		case pipeline.StageFailed:
			fmt.Fprintf(os.Stderr, "[%d/%d] %s %s failed: %s\n", e.Done, e.Total, e.Symbol, e.Kind, e.Error)
		}
	}))

	failed := 0
	for _, s := range symbols {
		result := a.Downloader.Download(ctx, s, asOf)
		for _, st := range result.Statements {
			if st.OK() {
				fmt.Printf("%s\t%s\t%d rows\t%s\n", result.Symbol, st.Label, st.Rows, st.Path)
			}
		}
		if len(result.Succeeded()) == 0 {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d symbols failed to download", failed, len(symbols))
	}
	return nil
}

func analyze(symbolArg string) (*app.App, *pipeline.Analysis, func(), error) {
	symbol, err := market.NormalizeSymbol(symbolArg)
	if err != nil {
		return nil, nil, nil, err
	}
	a, done, err := setup()
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := signalContext()
	defer cancel()

	result, err := a.Analyzer.Analyze(ctx, symbol)
	if err != nil {
		done()
		return nil, nil, nil, err
	}
	return a, result, done, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	_, result, done, err := analyze(args[0])
	if err != nil {
		return err
	}
	defer done()

	w, closeOut, err := output()
	if err != nil {
		return err
	}

	switch analyzeFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(result)
	case "text":
		writeText(w, result)
	default:
		err = fmt.Errorf("unknown format %q", analyzeFormat)
	}
	if err != nil {
		closeOut()
		return err
	}
	return closeOut()
}

func writeText(w io.Writer, a *pipeline.Analysis) {
	fmt.Fprintf(w, "%s\n", a.Symbol)
	fmt.Fprintln(w, "报告期\t营业收入\t营收增长\t净利润\t净利润增长")
	for _, p := range a.Metrics.Points {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Period,
			report.Amount(p.Revenue), report.Percent(p.RevenueGrowth),
			report.Amount(p.NetProfit), report.Percent(p.NetProfitGrowth))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "报告期\tROA\tROE")
	for _, p := range a.Ratios.Points {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Period, report.Percent(p.ROA), report.Percent(p.ROE))
	}
	for _, warn := range a.AllWarnings() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warn.Message)
	}
}

func runValuation(cmd *cobra.Command, args []string) error {
	symbol, err := market.NormalizeSymbol(args[0])
	if err != nil {
		return err
	}
	a, done, err := setup()
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := signalContext()
	defer cancel()

	rep, err := a.Analyzer.Valuation(ctx, symbol, years)
	if err != nil {
		return err
	}

	w, closeOut, err := output()
	if err != nil {
		return err
	}
	writeValuation(w, rep)
	return closeOut()
}

func writeValuation(w io.Writer, rep *analysis.ValuationReport) {
	fmt.Fprintf(w, "%s 估值（%s，%d个数据点）\n", rep.Symbol, rep.Provider, rep.Count)
	for _, ind := range rep.Indicators {
		var current *float64
		if len(ind.Windows) > 0 {
			current = ind.Windows[0].Current
		}
		fmt.Fprintf(w, "%s 当前 %s：%s\n", ind.Name, formatPtr(current), ind.Zone.Verdict())
		for _, ws := range ind.Windows {
			fmt.Fprintf(w, "  %s\t分位 %s\t均值 %s\t区间 %s ~ %s\n",
				ws.Window, report.Percent(ws.Percentile), formatPtr(ws.Mean), formatPtr(ws.Min), formatPtr(ws.Max))
		}
	}
}

func formatPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func runExport(cmd *cobra.Command, args []string) error {
	series, err := report.ParseSeries(args[1])
	if err != nil {
		return err
	}
	_, result, done, err := analyze(args[0])
	if err != nil {
		return err
	}
	defer done()

	w, closeOut, err := output()
	if err != nil {
		return err
	}
	switch series {
	case report.SeriesMetrics:
		err = report.MetricsCSV(w, result.Metrics)
	case report.SeriesRatios:
		err = report.RatiosCSV(w, result.Ratios)
	}
	if err != nil {
		closeOut()
		return err
	}
	return closeOut()
}

func runReport(cmd *cobra.Command, args []string) error {
	a, result, done, err := analyze(args[0])
	if err != nil {
		return err
	}
	defer done()

	var valuation *analysis.ValuationReport
	if withValue {
		symbol, _ := market.NormalizeSymbol(result.Symbol)
		ctx, cancel := signalContext()
		defer cancel()
		if valuation, err = a.Analyzer.Valuation(ctx, symbol, years); err != nil {
			fmt.Fprintf(os.Stderr, "warning: valuation unavailable: %v\n", err)
		}
	}

	var body string
	switch strings.ToLower(reportFormat) {
	case "markdown", "md":
		body = report.Markdown(result, valuation)
	case "html":
		if body, err = report.HTML(result, valuation); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q", reportFormat)
	}

	w, closeOut, err := output()
	if err != nil {
		return err
	}
	fmt.Fprint(w, body)
	return closeOut()
}
