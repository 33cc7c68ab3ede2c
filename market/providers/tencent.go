package providers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Nanzhexi/aksmes/analysis"
	"github.com/Nanzhexi/aksmes/market"
	"github.com/Nanzhexi/aksmes/statement"
)

const tencentQuoteURL = "https://qt.gtimg.cn"

// 行情字段下标
const (
	tencentFieldTime = 30
	tencentFieldPE   = 39
	tencentFieldPB   = 46
	tencentMinFields = 47
)

// TencentProvider 腾讯行情，只提供最新一期PE/PB
type TencentProvider struct {
	client  *resty.Client
	baseURL string
}

// NewTencentProvider 创建腾讯数据源；baseURL为空时使用线上地址
func NewTencentProvider(baseURL string, timeout time.Duration) *TencentProvider {
	if baseURL == "" {
		baseURL = tencentQuoteURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &TencentProvider{
		client:  resty.New().SetTimeout(timeout).SetHeader("User-Agent", userAgent),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (tp *TencentProvider) Name() string {
	return "tencent"
}

func (tp *TencentProvider) Priority() int {
	return 1
}

// FetchValuation 返回单个估值点
func (tp *TencentProvider) FetchValuation(ctx context.Context, symbol market.Symbol) ([]analysis.ValuationPoint, error) {
	url := fmt.Sprintf("%s/q=%s", tp.baseURL, symbol)
	resp, err := tp.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("tencent: %w", err)
	}
	if resp.IsError() {
		return nil, statusError(tp.Name(), resp.StatusCode(), url)
	}

	decoded, err := io.ReadAll(gbkReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("tencent: decode: %w", err)
	}
	point, err := parseTencentQuote(string(decoded))
	if err != nil {
		return nil, err
	}
	return []analysis.ValuationPoint{point}, nil
}

// parseTencentQuote 解析 v_sh600519="1~贵州茅台~600519~..."; 格式的行情
func parseTencentQuote(data string) (analysis.ValuationPoint, error) {
	start := strings.Index(data, "\"")
	end := strings.LastIndex(data, "\"")
	if !strings.Contains(data, "v_") || start < 0 || end <= start {
		return analysis.ValuationPoint{}, fmt.Errorf("tencent: failed to parse quote data")
	}

	parts := strings.Split(data[start+1:end], "~")
	if len(parts) < tencentMinFields {
		return analysis.ValuationPoint{}, fmt.Errorf("tencent: quote has %d fields, want at least %d", len(parts), tencentMinFields)
	}

	date, err := time.ParseInLocation("20060102150405", parts[tencentFieldTime], time.Local)
	if err != nil {
		return analysis.ValuationPoint{}, fmt.Errorf("tencent: quote time %q: %w", parts[tencentFieldTime], err)
	}

	point := analysis.ValuationPoint{Date: date}
	if v, ok := statement.CoerceNumeric(parts[tencentFieldPE]); ok {
		point.PE = &v
	}
	if v, ok := statement.CoerceNumeric(parts[tencentFieldPB]); ok {
		point.PB = &v
	}
	if point.PE == nil && point.PB == nil {
		return analysis.ValuationPoint{}, ErrEmptyResult
	}
	return point, nil
}
