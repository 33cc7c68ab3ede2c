package statement

import (
	"fmt"
	"strings"
)

// Report 归一化结果
type Report struct {
	Table    *Table
	Shape    Shape
	Warnings []Warning
}

// Normalize 将任意形状的原始报表转换为标准形状，幂等。
// 识别失败时返回空表。
func Normalize(raw *Table) *Table {
	return NormalizeReport(raw).Table
}

// NormalizeReport 归一化并返回识别出的形状与警告
func NormalizeReport(raw *Table) Report {
	if raw.IsEmpty() {
		return Report{
			Table: &Table{},
			Shape: ShapeStandard,
			Warnings: []Warning{{
				Code:    WarnEmptyTable,
				Message: "报表为空",
			}},
		}
	}

	c := Classify(raw)
	work := raw
	if c.HeaderPromoted {
		work, _ = promoteHeader(raw)
	}
	switch c.Shape {
	case ShapeLong:
		return Report{Table: pivotLong(work, c), Shape: ShapeLong}
	case ShapeTransposed:
		return Report{Table: transpose(work), Shape: ShapeTransposed}
	case ShapeUnknown:
		return Report{
			Table: &Table{},
			Shape: ShapeUnknown,
			Warnings: []Warning{{
				Code:    WarnShapeAmbiguous,
				Message: fmt.Sprintf("无法识别报表结构：%s", c.Reason),
			}},
		}
	}
	return Report{Table: standardize(work), Shape: ShapeStandard}
}

// standardize 标准表仅将列名规范为字符串
func standardize(raw *Table) *Table {
	out := raw.Clone()
	for i, c := range out.Columns {
		out.Columns[i] = strings.TrimSpace(c)
	}
	return out
}

// pivotLong 长表透视：每个项目一行，每个日期一列，同一(项目,日期)取第一个值
func pivotLong(t *Table, c Classification) *Table {
	var items, dates []string
	itemRow := make(map[string]int)
	dateCol := make(map[string]int)
	values := make(map[[2]int]any)

	for r := range t.Rows {
		item := strings.TrimSpace(CellText(t.Cell(r, c.ItemColumn)))
		date := strings.TrimSpace(CellText(t.Cell(r, c.DateColumn)))
		if item == "" || date == "" {
			continue
		}
		ir, ok := itemRow[item]
		if !ok {
			ir = len(items)
			itemRow[item] = ir
			items = append(items, item)
		}
		dc, ok := dateCol[date]
		if !ok {
			dc = len(dates)
			dateCol[date] = dc
			dates = append(dates, date)
		}
		key := [2]int{ir, dc}
		if _, exists := values[key]; !exists {
			values[key] = t.Cell(r, c.ValueColumn)
		}
	}

	cols := append([]string{ItemColumn}, dates...)
	rows := make([][]any, len(items))
	for ir, item := range items {
		row := make([]any, len(cols))
		row[0] = item
		for dc := range dates {
			row[dc+1] = values[[2]int{ir, dc}]
		}
		rows[ir] = row
	}
	return &Table{Columns: cols, Rows: rows}
}

// transpose 以第一列为索引转置，原列名成为项目
func transpose(t *Table) *Table {
	var dates []string
	var srcRows []int
	seen := make(map[string]bool)
	for r := range t.Rows {
		date := strings.TrimSpace(CellText(t.Cell(r, 0)))
		if date == "" || seen[date] {
			continue
		}
		seen[date] = true
		dates = append(dates, date)
		srcRows = append(srcRows, r)
	}

	cols := append([]string{ItemColumn}, dates...)
	rows := make([][]any, 0, len(t.Columns)-1)
	for c := 1; c < len(t.Columns); c++ {
		row := make([]any, len(cols))
		row[0] = strings.TrimSpace(t.Columns[c])
		for i, r := range srcRows {
			row[i+1] = t.Cell(r, c)
		}
		rows = append(rows, row)
	}
	return &Table{Columns: cols, Rows: rows}
}
