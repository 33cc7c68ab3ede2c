package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/Nanzhexi/aksmes/market"
	"github.com/Nanzhexi/aksmes/statement"
)

const sinaFinanceURL = "https://money.finance.sina.com.cn"

// sinaPages 各报表的页面名与表格id前缀
var sinaPages = map[statement.Kind]struct{ page, table string }{
	statement.BalanceSheet:    {page: "vFD_BalanceSheet", table: "BalanceSheetNewTable0"},
	statement.IncomeStatement: {page: "vFD_ProfitStatement", table: "ProfitStatementNewTable0"},
	statement.CashFlow:        {page: "vFD_CashFlow", table: "CashFlowNewTable0"},
}

// sinaHeaderLabel 新浪报表中作为表头的行
const sinaHeaderLabel = "报表日期"

// SinaProvider 新浪财经报表页面（GBK编码HTML）
type SinaProvider struct {
	client  *resty.Client
	baseURL string
}

// NewSinaProvider 创建新浪数据源；baseURL为空时使用线上地址
func NewSinaProvider(baseURL string, timeout time.Duration) *SinaProvider {
	if baseURL == "" {
		baseURL = sinaFinanceURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &SinaProvider{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (sp *SinaProvider) Name() string {
	return "sina"
}

func (sp *SinaProvider) Priority() int {
	return 2
}

// FetchStatement 抓取报表页面并解析为标准形状
func (sp *SinaProvider) FetchStatement(ctx context.Context, symbol market.Symbol, kind statement.Kind) (*statement.Table, error) {
	page, ok := sinaPages[kind]
	if !ok {
		return nil, fmt.Errorf("sina: unsupported statement kind %q", kind)
	}

	url := fmt.Sprintf("%s/corp/go.php/%s/stockid/%s/ctrl/part/displaytype/4.phtml", sp.baseURL, page.page, symbol.Code)
	resp, err := sp.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("sina: %w", err)
	}
	if resp.IsError() {
		return nil, statusError(sp.Name(), resp.StatusCode(), url)
	}

	table, err := parseSinaStatement(gbkReader(resp.Body()), page.table)
	if err != nil {
		return nil, err
	}
	if table.IsEmpty() {
		return nil, ErrEmptyResult
	}
	return table, nil
}

// gbkReader 将GBK字节流转为UTF-8
func gbkReader(body []byte) io.Reader {
	return transform.NewReader(bytes.NewReader(body), simplifiedchinese.GBK.NewDecoder())
}

// parseSinaStatement 解析报表表格。"报表日期"行作为表头，单元格数不足两个的分组标题行被跳过。
func parseSinaStatement(r io.Reader, tableID string) (*statement.Table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("sina: parse html: %w", err)
	}

	tbl := doc.Find("#" + tableID)
	if tbl.Length() == 0 {
		return nil, fmt.Errorf("sina: table %s not found", tableID)
	}

	var columns []string
	var rows [][]any
	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("td, th").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(td.Text()))
		})
		if len(cells) < 2 || cells[0] == "" {
			return
		}
		if columns == nil {
			if cells[0] == sinaHeaderLabel {
				columns = append([]string{statement.ItemColumn}, cells[1:]...)
			}
			return
		}
		if cells[0] == sinaHeaderLabel {
			return
		}
		row := make([]any, len(columns))
		row[0] = cells[0]
		for i := 1; i < len(columns) && i < len(cells); i++ {
			row[i] = cells[i]
		}
		rows = append(rows, row)
	})

	if columns == nil {
		return nil, fmt.Errorf("sina: table %s has no %s row", tableID, sinaHeaderLabel)
	}
	return statement.NewTable(columns, rows), nil
}

func (sp *SinaProvider) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	_, err := sp.FetchStatement(ctx, healthSymbol, statement.BalanceSheet)
	return err
}
