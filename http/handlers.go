package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Nanzhexi/aksmes/analysis"
	"github.com/Nanzhexi/aksmes/cache"
	"github.com/Nanzhexi/aksmes/db"
	"github.com/Nanzhexi/aksmes/market"
	"github.com/Nanzhexi/aksmes/market/providers"
	"github.com/Nanzhexi/aksmes/pipeline"
	"github.com/Nanzhexi/aksmes/report"
	"github.com/Nanzhexi/aksmes/statement"
)

var (
	downloader     *pipeline.Downloader
	analyzer       *pipeline.Analyzer
	tableCache     *cache.TableCache
	manager        *providers.Manager
	progressHub    *ProgressHub
	valuationYears = 5
	now            = time.Now
)

// Services 处理器依赖的服务
type Services struct {
	Downloader     *pipeline.Downloader
	Analyzer       *pipeline.Analyzer
	Tables         *cache.TableCache
	Manager        *providers.Manager
	Progress       *ProgressHub
	ValuationYears int
}

// SetServices 设置处理器依赖
func SetServices(s Services) {
	downloader = s.Downloader
	analyzer = s.Analyzer
	tableCache = s.Tables
	manager = s.Manager
	progressHub = s.Progress
	if s.ValuationYears > 0 {
		valuationYears = s.ValuationYears
	}
}

func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/download/{symbol}", handleDownload)
	mux.HandleFunc("GET /api/statements/{symbol}/{kind}", handleStatement)
	mux.HandleFunc("GET /api/metrics/{symbol}", handleMetrics)
	mux.HandleFunc("GET /api/ratios/{symbol}", handleRatios)
	mux.HandleFunc("GET /api/valuation/{symbol}", handleValuation)
	mux.HandleFunc("GET /api/report/{symbol}", handleReport)
	mux.HandleFunc("GET /api/export/{symbol}/{series}", handleExport)
	mux.HandleFunc("GET /api/history/{symbol}/{series}", handleHistory)
	mux.HandleFunc("GET /api/ws/progress", handleProgress)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":   "ok",
		"database": db.Enabled(),
	}
	if manager != nil {
		resp["providers"] = manager.GetProvidersStatus()
		resp["primary"] = manager.GetPrimaryProvider()
	}
	if progressHub != nil {
		resp["progress_clients"] = progressHub.ClientCount()
	}
	respondJSON(w, resp)
}

// pathSymbol 解析路径中的证券代码，失败时已写入400
func pathSymbol(w http.ResponseWriter, r *http.Request) (market.Symbol, bool) {
	symbol, err := market.NormalizeSymbol(r.PathValue("symbol"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return market.Symbol{}, false
	}
	return symbol, true
}

// defaultSeriesLimit 指标与比率默认返回的最近报告期数，limit=0 返回全部
const defaultSeriesLimit = 10

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func handleDownload(w http.ResponseWriter, r *http.Request) {
	if downloader == nil {
		respondError(w, http.StatusServiceUnavailable, "下载服务未初始化")
		return
	}
	symbol, ok := pathSymbol(w, r)
	if !ok {
		return
	}

	asOf := now()
	if d := r.URL.Query().Get("date"); d != "" {
		t, err := time.Parse("20060102", d)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYYMMDD")
			return
		}
		asOf = t
	}

	result := downloader.Download(r.Context(), symbol, asOf)
	status := http.StatusOK
	if len(result.Succeeded()) == 0 {
		status = http.StatusBadGateway
	}
	respondJSONStatus(w, status, result)
}

func handleStatement(w http.ResponseWriter, r *http.Request) {
	if tableCache == nil {
		respondError(w, http.StatusServiceUnavailable, "缓存未初始化")
		return
	}
	symbol, ok := pathSymbol(w, r)
	if !ok {
		return
	}
	kind, err := statement.ParseKind(r.PathValue("kind"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.URL.Query().Get("raw") == "1" {
		table, path, err := tableCache.Raw(symbol.String(), kind)
		if err != nil {
			respondCacheError(w, err)
			return
		}
		respondJSON(w, map[string]any{"symbol": symbol.String(), "kind": kind, "path": path, "table": table})
		return
	}

	p, err := tableCache.Get(symbol.String(), kind)
	if err != nil {
		respondCacheError(w, err)
		return
	}
	respondJSON(w, map[string]any{
		"symbol":   symbol.String(),
		"kind":     kind,
		"shape":    p.Shape.String(),
		"path":     p.Path,
		"warnings": p.Warnings,
		"table":    p.Table,
	})
}

func respondCacheError(w http.ResponseWriter, err error) {
	if errors.Is(err, cache.ErrNotFound) {
		respondError(w, http.StatusNotFound, "statement not downloaded yet")
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

// analyze 执行分析，失败时已写入错误响应
func analyze(w http.ResponseWriter, r *http.Request) (*pipeline.Analysis, bool) {
	if analyzer == nil {
		respondError(w, http.StatusServiceUnavailable, "分析服务未初始化")
		return nil, false
	}
	symbol, ok := pathSymbol(w, r)
	if !ok {
		return nil, false
	}
	result, err := analyzer.Analyze(r.Context(), symbol)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return result, true
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	result, ok := analyze(w, r)
	if !ok {
		return
	}
	series := result.Metrics
	if n := queryInt(r, "limit", defaultSeriesLimit); n > 0 {
		series = series.Latest(n)
	}
	respondJSON(w, map[string]any{
		"symbol":   result.Symbol,
		"metrics":  series,
		"warnings": result.Warnings,
	})
}

func handleRatios(w http.ResponseWriter, r *http.Request) {
	result, ok := analyze(w, r)
	if !ok {
		return
	}
	series := result.Ratios
	if k := queryInt(r, "limit", defaultSeriesLimit); k > 0 {
		series = series.Latest(k)
	}
	respondJSON(w, map[string]any{
		"symbol":   result.Symbol,
		"ratios":   series,
		"warnings": result.Warnings,
	})
}

func valuationReport(w http.ResponseWriter, r *http.Request, symbol market.Symbol) (*analysis.ValuationReport, bool) {
	if analyzer == nil {
		respondError(w, http.StatusServiceUnavailable, "分析服务未初始化")
		return nil, false
	}
	years := queryInt(r, "years", valuationYears)
	rep, err := analyzer.Valuation(r.Context(), symbol, years)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return nil, false
	}
	return rep, true
}

func handleValuation(w http.ResponseWriter, r *http.Request) {
	symbol, ok := pathSymbol(w, r)
	if !ok {
		return
	}
	rep, ok := valuationReport(w, r, symbol)
	if !ok {
		return
	}
	respondJSON(w, rep)
}

func handleReport(w http.ResponseWriter, r *http.Request) {
	result, ok := analyze(w, r)
	if !ok {
		return
	}

	var valuation *analysis.ValuationReport
	if r.URL.Query().Get("valuation") == "1" {
		symbol, _ := market.NormalizeSymbol(result.Symbol)
		rep, err := analyzer.Valuation(r.Context(), symbol, queryInt(r, "years", valuationYears))
		if err != nil {
			zap.S().Warnw("valuation unavailable for report", "symbol", result.Symbol, "error", err)
		} else {
			valuation = rep
		}
	}

	switch r.URL.Query().Get("format") {
	case "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		fmt.Fprint(w, report.Markdown(result, valuation))
	default:
		body, err := report.HTML(result, valuation)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s 财务分析报告</title></head><body>\n%s</body></html>\n", result.Symbol, body)
	}
}

func handleExport(w http.ResponseWriter, r *http.Request) {
	series, err := report.ParseSeries(r.PathValue("series"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, ok := analyze(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_%s.csv"`, result.Symbol, series))
	switch series {
	case report.SeriesMetrics:
		err = report.MetricsCSV(w, result.Metrics)
	case report.SeriesRatios:
		err = report.RatiosCSV(w, result.Ratios)
	}
	if err != nil {
		zap.S().Warnw("export failed", "symbol", result.Symbol, "series", series, "error", err)
	}
}

func handleHistory(w http.ResponseWriter, r *http.Request) {
	if !db.Enabled() {
		respondError(w, http.StatusServiceUnavailable, "数据库未初始化")
		return
	}
	symbol, ok := pathSymbol(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 20)

	var (
		data any
		err  error
	)
	switch r.PathValue("series") {
	case "downloads":
		data, err = db.QueryDownloadLog(symbol.String(), limit)
	case "metrics":
		data, err = db.QueryMetrics(symbol.String(), limit)
	case "ratios":
		data, err = db.QueryRatios(symbol.String(), limit)
	default:
		respondError(w, http.StatusBadRequest, "series must be downloads, metrics or ratios")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, map[string]any{"symbol": symbol.String(), "data": data})
}

func handleProgress(w http.ResponseWriter, r *http.Request) {
	if progressHub == nil {
		respondError(w, http.StatusServiceUnavailable, "进度推送未启用")
		return
	}
	progressHub.HandleWebSocket(w, r)
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, data any) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.S().Warnw("failed to encode JSON", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSONStatus(w, status, map[string]string{"error": message})
}
