package statement

import (
	"strconv"
	"strings"
)

// Shape 原始报表的形状
type Shape int

const (
	// ShapeStandard 第一列为项目，其余列为报告期
	ShapeStandard Shape = iota
	// ShapeLong 日期列 + 项目列 + 数值列的长表
	ShapeLong
	// ShapeTransposed 第一列为日期，其余列为项目
	ShapeTransposed
	// ShapeUnknown 无法可靠识别
	ShapeUnknown
)

func (s Shape) String() string {
	switch s {
	case ShapeStandard:
		return "standard"
	case ShapeLong:
		return "long"
	case ShapeTransposed:
		return "transposed"
	}
	return "unknown"
}

const (
	sampleSize          = 10
	transposedThreshold = 0.8
)

var (
	dateHeaderKeywords = []string{"DATE", "日期", "报告期", "报告日"}
	itemHeaderNames    = []string{"项目", "科目", "指标", "报表项目", "ITEM", "ITEM_NAME", "STD_ITEM_NAME", "名称"}
	valueHeaderNames   = []string{"VALUE", "AMOUNT", "值", "数值", "金额"}
	accountingKeywords = []string{"收入", "利润", "资产", "负债"}
)

// Classification 形状识别结果
type Classification struct {
	Shape Shape
	// HeaderPromoted 列名为位置编号，首行已被提升为列名
	HeaderPromoted bool
	DateColumn     int
	ItemColumn     int
	ValueColumn    int
	// ItemInferred 项目列由内容推断或取第一个文本列
	ItemInferred bool
	// Reason 识别失败时的原因
	Reason string
}

// Classify 识别表格形状。长表优先，其次转置表，默认为标准表。
func Classify(t *Table) Classification {
	if t.IsEmpty() {
		return Classification{Shape: ShapeStandard, DateColumn: -1, ItemColumn: 0, ValueColumn: -1}
	}

	work, promoted := promoteHeader(t)
	if c, ok := classifyLong(work); ok {
		c.HeaderPromoted = promoted
		return c
	}

	if isTransposed(work) {
		return Classification{Shape: ShapeTransposed, HeaderPromoted: promoted, DateColumn: 0, ItemColumn: -1, ValueColumn: -1}
	}

	return Classification{Shape: ShapeStandard, HeaderPromoted: promoted, DateColumn: -1, ItemColumn: 0, ValueColumn: -1}
}

// classifyLong 识别长表；ok为false表示不是长表
func classifyLong(t *Table) (Classification, bool) {
	dateCol := findDateColumn(t)
	if dateCol < 0 {
		return Classification{}, false
	}

	c := Classification{Shape: ShapeLong, DateColumn: dateCol, ItemColumn: -1, ValueColumn: -1}

	explicitItem := findHeader(t, itemHeaderNames, dateCol)
	inferredItem := -1
	if explicitItem < 0 {
		inferredItem = inferItemColumn(t, dateCol)
	}

	switch {
	case explicitItem >= 0:
		c.ItemColumn = explicitItem
	case inferredItem >= 0:
		c.ItemColumn = inferredItem
		c.ItemInferred = true
	case datesRepeat(t, dateCol):
		c.ItemColumn = textColumn(t, dateCol)
		c.ItemInferred = true
		if c.ItemColumn < 0 && dateCol == 0 {
			// 没有文本列：日期重复的转置表
			return Classification{}, false
		}
	default:
		// 日期不重复且没有项目列：按转置表处理
		return Classification{}, false
	}

	if c.ItemColumn < 0 {
		c.Shape = ShapeUnknown
		c.Reason = "长表缺少项目列"
		return c, true
	}

	c.ValueColumn = findValueColumn(t, dateCol, c.ItemColumn)
	if c.ValueColumn < 0 {
		c.Shape = ShapeUnknown
		c.Reason = "长表存在日期列但无法识别数值列"
	}
	return c, true
}

// promoteHeader 列名为位置编号且首行含日期命名时，用首行替换列名
func promoteHeader(t *Table) (*Table, bool) {
	if !positionalHeaders(t.Columns) || len(t.Rows) < 2 {
		return t, false
	}
	first := t.Rows[0]
	found := false
	for _, cell := range first {
		if hasDateKeyword(CellText(cell)) {
			found = true
			break
		}
	}
	if !found {
		return t, false
	}
	cols := make([]string, len(t.Columns))
	for i := range cols {
		cols[i] = strings.TrimSpace(CellText(t.Cell(0, i)))
	}
	return &Table{Columns: cols, Rows: t.Rows[1:]}, true
}

func positionalHeaders(cols []string) bool {
	for i, c := range cols {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if n, err := strconv.Atoi(c); err != nil || n != i {
			return false
		}
	}
	return true
}

func hasDateKeyword(header string) bool {
	upper := strings.ToUpper(header)
	for _, kw := range dateHeaderKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// findDateColumn 列名含日期命名且抽样值像报告期的第一列
func findDateColumn(t *Table) int {
	for i, col := range t.Columns {
		if !hasDateKeyword(col) {
			continue
		}
		if periodShare(t, i) >= transposedThreshold {
			return i
		}
	}
	return -1
}

func findHeader(t *Table, names []string, skip ...int) int {
	for i, col := range t.Columns {
		if containsInt(skip, i) {
			continue
		}
		c := strings.TrimSpace(col)
		for _, name := range names {
			if strings.EqualFold(c, name) {
				return i
			}
		}
	}
	return -1
}

// inferItemColumn 抽样内容含会计关键词的第一列
func inferItemColumn(t *Table, dateCol int) int {
	for col := range t.Columns {
		if col == dateCol {
			continue
		}
		for row := 0; row < len(t.Rows) && row < sampleSize; row++ {
			if _, ok := containsAny(CellText(t.Cell(row, col)), accountingKeywords); ok {
				return col
			}
		}
	}
	return -1
}

// findValueColumn 显式数值列，否则取抽样值多数可转换为数值的第一列
func findValueColumn(t *Table, dateCol, itemCol int) int {
	if i := findHeader(t, valueHeaderNames, dateCol, itemCol); i >= 0 {
		return i
	}
	for col := range t.Columns {
		if col == dateCol || col == itemCol {
			continue
		}
		numeric, present := 0, 0
		for row := 0; row < len(t.Rows) && row < sampleSize; row++ {
			cell := t.Cell(row, col)
			if CellText(cell) == "" {
				continue
			}
			present++
			if _, ok := CoerceNumeric(cell); ok {
				numeric++
			}
		}
		if present > 0 && numeric*2 > present {
			return col
		}
	}
	return -1
}

// textColumn 抽样值多数既非数值也非报告期的第一列
func textColumn(t *Table, skip int) int {
	for col := range t.Columns {
		if col == skip {
			continue
		}
		text, present := 0, 0
		for row := 0; row < len(t.Rows) && row < sampleSize; row++ {
			cell := t.Cell(row, col)
			if CellText(cell) == "" {
				continue
			}
			present++
			if _, ok := CoerceNumeric(cell); ok || IsPeriodLike(cell) {
				continue
			}
			text++
		}
		if present > 0 && text*2 > present {
			return col
		}
	}
	return -1
}

func datesRepeat(t *Table, col int) bool {
	seen := make(map[string]bool)
	for i := range t.Rows {
		key := PeriodKey(CellText(t.Cell(i, col)))
		if seen[key] {
			return true
		}
		seen[key] = true
	}
	return false
}

// isTransposed 第一列抽样值几乎全部像报告期
func isTransposed(t *Table) bool {
	if t.Width() < 2 {
		return false
	}
	return periodShare(t, 0) >= transposedThreshold
}

// periodShare 抽样非空值中像报告期的比例
func periodShare(t *Table, col int) float64 {
	hits, present := 0, 0
	for row := 0; row < len(t.Rows) && row < sampleSize; row++ {
		cell := t.Cell(row, col)
		if CellText(cell) == "" {
			continue
		}
		present++
		if IsPeriodLike(cell) {
			hits++
		}
	}
	if present == 0 {
		return 0
	}
	return float64(hits) / float64(present)
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
