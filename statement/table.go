// Package statement 提供财务报表表格模型与形状归一化
package statement

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// ItemColumn 归一化后项目列的列名
const ItemColumn = "项目"

// Kind 报表类型
type Kind string

const (
	BalanceSheet    Kind = "balance"
	IncomeStatement Kind = "income"
	CashFlow        Kind = "cashflow"
)

// Kinds 所有报表类型，按下载顺序
func Kinds() []Kind {
	return []Kind{BalanceSheet, IncomeStatement, CashFlow}
}

// Label 报表中文名
func (k Kind) Label() string {
	switch k {
	case BalanceSheet:
		return "资产负债表"
	case IncomeStatement:
		return "利润表"
	case CashFlow:
		return "现金流量表"
	}
	return string(k)
}

// Valid 是否为已知报表类型
func (k Kind) Valid() bool {
	switch k {
	case BalanceSheet, IncomeStatement, CashFlow:
		return true
	}
	return false
}

// ParseKind 解析报表类型，接受英文标识与中文名
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	for _, k := range Kinds() {
		if strings.EqualFold(s, string(k)) || s == k.Label() {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown statement kind %q", s)
}

// Table 二维报表。归一化后第0列为项目列，其余列为报告期列。
// 单元格可以是字符串、数字或nil。
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewTable 创建表格
func NewTable(columns []string, rows [][]any) *Table {
	return &Table{Columns: columns, Rows: rows}
}

// IsEmpty 没有列或没有行
func (t *Table) IsEmpty() bool {
	return t == nil || len(t.Columns) == 0 || len(t.Rows) == 0
}

// Width 列数
func (t *Table) Width() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

// Cell 安全取值，越界返回nil
func (t *Table) Cell(row, col int) any {
	if t == nil || row < 0 || row >= len(t.Rows) || col < 0 {
		return nil
	}
	r := t.Rows[row]
	if col >= len(r) {
		return nil
	}
	return r[col]
}

// ColumnIndex 按列名查找列，找不到返回-1
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Labels 项目列的文本
func (t *Table) Labels() []string {
	if t == nil {
		return nil
	}
	labels := make([]string, len(t.Rows))
	for i := range t.Rows {
		labels[i] = CellText(t.Cell(i, 0))
	}
	return labels
}

// Periods 报告期列的列名（第1列起）
func (t *Table) Periods() []string {
	if t.Width() < 2 {
		return nil
	}
	periods := make([]string, len(t.Columns)-1)
	copy(periods, t.Columns[1:])
	return periods
}

// Clone 深拷贝行与列
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	cols := make([]string, len(t.Columns))
	copy(cols, t.Columns)
	rows := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]any, len(r))
		copy(row, r)
		rows[i] = row
	}
	return &Table{Columns: cols, Rows: rows}
}

// Equal 按单元格文本比较两个表格
func (t *Table) Equal(o *Table) bool {
	if t == nil {
		t = &Table{}
	}
	if o == nil {
		o = &Table{}
	}
	if len(t.Columns) != len(o.Columns) || len(t.Rows) != len(o.Rows) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != o.Columns[i] {
			return false
		}
	}
	for i := range t.Rows {
		for j := range t.Columns {
			if CellText(t.Cell(i, j)) != CellText(o.Cell(i, j)) {
				return false
			}
		}
	}
	return true
}

// CellText 将单元格转为文本，nil与NaN为空串
func CellText(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if math.IsNaN(v) {
			return ""
		}
		return formatFloat(v)
	case float32:
		f := float64(v)
		if math.IsNaN(f) {
			return ""
		}
		return formatFloat(f)
	case json.Number:
		return v.String()
	case time.Time:
		return v.Format("2006-01-02")
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(cell)
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%.0f", f)
	}
	return fmt.Sprint(f)
}
