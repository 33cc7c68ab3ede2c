package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/Nanzhexi/aksmes/analysis"
	"github.com/Nanzhexi/aksmes/market"
	"github.com/Nanzhexi/aksmes/statement"
)

const (
	eastmoneyF10URL        = "https://emweb.securities.eastmoney.com"
	eastmoneyDatacenterURL = "https://datacenter-web.eastmoney.com"
	// eastmoneyDatesPerRequest 接口单次最多返回的报告期数
	eastmoneyDatesPerRequest = 5
	eastmoneyValuationPage   = 500
	eastmoneyMaxPages        = 10
)

// eastmoneyEndpoints 各报表的F10接口名
var eastmoneyEndpoints = map[statement.Kind]string{
	statement.BalanceSheet:    "zcfzb",
	statement.IncomeStatement: "lrb",
	statement.CashFlow:        "xjllb",
}

// EastmoneyOptions 东方财富数据源参数
type EastmoneyOptions struct {
	F10URL        string
	DatacenterURL string
	// CompanyType 4为一般企业
	CompanyType int
	MaxPeriods  int
	Timeout     time.Duration
}

// EastmoneyProvider 东方财富F10报表与估值历史
type EastmoneyProvider struct {
	client        *resty.Client
	f10URL        string
	datacenterURL string
	companyType   int
	maxPeriods    int
}

// NewEastmoneyProvider 创建东方财富数据源，零值参数使用默认值
func NewEastmoneyProvider(opts EastmoneyOptions) *EastmoneyProvider {
	if opts.F10URL == "" {
		opts.F10URL = eastmoneyF10URL
	}
	if opts.DatacenterURL == "" {
		opts.DatacenterURL = eastmoneyDatacenterURL
	}
	if opts.CompanyType == 0 {
		opts.CompanyType = 4
	}
	if opts.MaxPeriods <= 0 {
		opts.MaxPeriods = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Referer", "https://emweb.securities.eastmoney.com/")

	return &EastmoneyProvider{
		client:        client,
		f10URL:        strings.TrimRight(opts.F10URL, "/"),
		datacenterURL: strings.TrimRight(opts.DatacenterURL, "/"),
		companyType:   opts.CompanyType,
		maxPeriods:    opts.MaxPeriods,
	}
}

func (ep *EastmoneyProvider) Name() string {
	return "eastmoney"
}

func (ep *EastmoneyProvider) Priority() int {
	return 3
}

// FetchStatement 先取报告期列表，再按每批5期拉取报表，结果为转置形状
func (ep *EastmoneyProvider) FetchStatement(ctx context.Context, symbol market.Symbol, kind statement.Kind) (*statement.Table, error) {
	endpoint, ok := eastmoneyEndpoints[kind]
	if !ok {
		return nil, fmt.Errorf("eastmoney: unsupported statement kind %q", kind)
	}

	dates, err := ep.fetchDates(ctx, symbol, endpoint)
	if err != nil {
		return nil, err
	}
	if len(dates) > ep.maxPeriods {
		dates = dates[:ep.maxPeriods]
	}

	var merged *statement.Table
	for start := 0; start < len(dates); start += eastmoneyDatesPerRequest {
		end := start + eastmoneyDatesPerRequest
		if end > len(dates) {
			end = len(dates)
		}
		body, err := ep.get(ctx, ep.f10URL+"/PC_HSF10/NewFinanceAnalysis/"+endpoint+"AjaxNew", map[string]string{
			"companyType":    fmt.Sprint(ep.companyType),
			"reportDateType": "0",
			"reportType":     "1",
			"dates":          strings.Join(dates[start:end], ","),
			"code":           symbol.Upper(),
		})
		if err != nil {
			return nil, err
		}
		part, err := parseEastmoneyStatement(body)
		if err != nil {
			return nil, err
		}
		merged = appendRecords(merged, part)
	}

	if merged.IsEmpty() {
		return nil, ErrEmptyResult
	}
	return merged, nil
}

// fetchDates 报告期列表，格式为YYYY-MM-DD
func (ep *EastmoneyProvider) fetchDates(ctx context.Context, symbol market.Symbol, endpoint string) ([]string, error) {
	body, err := ep.get(ctx, ep.f10URL+"/PC_HSF10/NewFinanceAnalysis/"+endpoint+"DateAjaxNew", map[string]string{
		"companyType":    fmt.Sprint(ep.companyType),
		"reportDateType": "0",
		"code":           symbol.Upper(),
	})
	if err != nil {
		return nil, err
	}

	var dates []string
	for _, r := range gjson.GetBytes(body, "data").Array() {
		raw := r.Get("REPORT_DATE").String()
		if len(raw) >= 10 {
			dates = append(dates, raw[:10])
		}
	}
	if len(dates) == 0 {
		return nil, ErrEmptyResult
	}
	return dates, nil
}

func (ep *EastmoneyProvider) get(ctx context.Context, url string, params map[string]string) ([]byte, error) {
	resp, err := ep.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("eastmoney: %w", err)
	}
	if resp.IsError() {
		return nil, statusError(ep.Name(), resp.StatusCode(), url)
	}
	return resp.Body(), nil
}

// eastmoneyMetaFields 非报表项目的字段
var eastmoneyMetaFields = map[string]bool{
	"SECUCODE":           true,
	"SECURITY_CODE":      true,
	"SECURITY_NAME_ABBR": true,
	"ORG_CODE":           true,
	"ORG_TYPE":           true,
	"REPORT_TYPE":        true,
	"REPORT_DATE_NAME":   true,
	"SECURITY_TYPE_CODE": true,
	"NOTICE_DATE":        true,
	"UPDATE_DATE":        true,
	"CURRENCY":           true,
	"OPINION_TYPE":       true,
	"OSOPINION_TYPE":     true,
	"LISTING_STATE":      true,
}

// parseEastmoneyStatement 将F10响应解析为转置表：首列REPORT_DATE，其余列为项目
func parseEastmoneyStatement(body []byte) (*statement.Table, error) {
	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return nil, fmt.Errorf("eastmoney: response has no data array")
	}

	codes := []string{}
	index := map[string]int{}
	var records []map[string]gjson.Result

	data.ForEach(func(_, record gjson.Result) bool {
		fields := map[string]gjson.Result{}
		record.ForEach(func(key, value gjson.Result) bool {
			code := key.String()
			fields[code] = value
			if code == "REPORT_DATE" || eastmoneyMetaFields[code] || strings.HasSuffix(code, "_YOY") {
				return true
			}
			if _, seen := index[code]; !seen {
				index[code] = len(codes)
				codes = append(codes, code)
			}
			return true
		})
		records = append(records, fields)
		return true
	})

	columns := make([]string, 0, len(codes)+1)
	columns = append(columns, "REPORT_DATE")
	for _, code := range codes {
		columns = append(columns, EastmoneyItemLabel(code))
	}

	rows := make([][]any, 0, len(records))
	for _, fields := range records {
		date := fields["REPORT_DATE"].String()
		if date == "" {
			continue
		}
		row := make([]any, len(columns))
		row[0] = date
		for i, code := range codes {
			row[i+1] = gjsonCell(fields[code])
		}
		rows = append(rows, row)
	}
	return statement.NewTable(columns, rows), nil
}

// appendRecords 合并分批请求的结果，列按首次出现顺序合并
func appendRecords(dst, src *statement.Table) *statement.Table {
	if dst.IsEmpty() {
		return src
	}
	if src.IsEmpty() {
		return dst
	}
	cols := append([]string(nil), dst.Columns...)
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[c] = i
	}
	for _, c := range src.Columns {
		if _, ok := pos[c]; !ok {
			pos[c] = len(cols)
			cols = append(cols, c)
		}
	}

	rows := make([][]any, 0, len(dst.Rows)+len(src.Rows))
	for _, t := range []*statement.Table{dst, src} {
		for r := range t.Rows {
			row := make([]any, len(cols))
			for c, name := range t.Columns {
				row[pos[name]] = t.Cell(r, c)
			}
			rows = append(rows, row)
		}
	}
	return statement.NewTable(cols, rows)
}

func gjsonCell(v gjson.Result) any {
	switch v.Type {
	case gjson.Number:
		return v.Float()
	case gjson.String:
		return v.String()
	case gjson.Null:
		return nil
	}
	if !v.Exists() {
		return nil
	}
	return v.String()
}

// FetchValuation 估值历史（PE_TTM / PB_MRQ / PS_TTM），按页拉取
func (ep *EastmoneyProvider) FetchValuation(ctx context.Context, symbol market.Symbol) ([]analysis.ValuationPoint, error) {
	var points []analysis.ValuationPoint
	for page := 1; page <= eastmoneyMaxPages; page++ {
		body, err := ep.get(ctx, ep.datacenterURL+"/api/data/v1/get", map[string]string{
			"callback":    "jQuery_valuation",
			"reportName":  "RPT_VALUEANALYSIS_DET",
			"columns":     "ALL",
			"pageNumber":  fmt.Sprint(page),
			"pageSize":    fmt.Sprint(eastmoneyValuationPage),
			"sortColumns": "TRADE_DATE",
			"sortTypes":   "-1",
			"source":      "WEB",
			"client":      "WEB",
			"filter":      fmt.Sprintf(`(SECURITY_CODE="%s")`, symbol.Code),
		})
		if err != nil {
			return nil, err
		}
		batch, pages, err := parseValuationJSONP(string(body))
		if err != nil {
			return nil, err
		}
		points = append(points, batch...)
		if len(batch) == 0 || page >= pages {
			break
		}
	}
	if len(points) == 0 {
		return nil, ErrEmptyResult
	}
	return points, nil
}

// parseValuationJSONP 去除JSONP包装并修复不规范的JSON后解析
func parseValuationJSONP(body string) ([]analysis.ValuationPoint, int, error) {
	payload := strings.TrimSpace(body)
	if open := strings.Index(payload, "("); open >= 0 && !strings.HasPrefix(payload, "{") {
		if end := strings.LastIndex(payload, ")"); end > open {
			payload = payload[open+1 : end]
		}
	}

	repaired, err := jsonrepair.RepairJSON(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("eastmoney: repair valuation payload: %w", err)
	}

	result := gjson.Get(repaired, "result")
	if !result.Exists() || result.Type == gjson.Null {
		return nil, 0, nil
	}

	var points []analysis.ValuationPoint
	for _, r := range result.Get("data").Array() {
		raw := r.Get("TRADE_DATE").String()
		date, ok := statement.ParsePeriod(raw)
		if !ok {
			continue
		}
		points = append(points, analysis.ValuationPoint{
			Date: date,
			PE:   optionalFloat(r.Get("PE_TTM")),
			PB:   optionalFloat(r.Get("PB_MRQ")),
			PS:   optionalFloat(r.Get("PS_TTM")),
		})
	}
	return points, int(result.Get("pages").Int()), nil
}

func optionalFloat(v gjson.Result) *float64 {
	if v.Type != gjson.Number && v.Type != gjson.String {
		return nil
	}
	f, ok := statement.CoerceNumeric(v.String())
	if !ok {
		return nil
	}
	return &f
}

func (ep *EastmoneyProvider) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	_, err := ep.fetchDates(ctx, healthSymbol, eastmoneyEndpoints[statement.BalanceSheet])
	return err
}
