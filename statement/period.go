package statement

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	compactDateRe = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	dashedDateRe  = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})(?:[ T]\d{2}:\d{2}(?::\d{2})?(?:\.\d+)?Z?)?$`)
	reportCodeRe  = regexp.MustCompile(`^(\d{4})\s*(年报|年度|中报|半年报|一季报|三季报|年一季报|年三季报|年中报|年半年报|Q[1-4])$`)
)

// quarterEnds 报告期代码对应的月日
var quarterEnds = map[string][2]int{
	"年报":   {12, 31},
	"年度":   {12, 31},
	"中报":   {6, 30},
	"半年报":  {6, 30},
	"年中报":  {6, 30},
	"年半年报": {6, 30},
	"一季报":  {3, 31},
	"年一季报": {3, 31},
	"三季报":  {9, 30},
	"年三季报": {9, 30},
	"Q1":   {3, 31},
	"Q2":   {6, 30},
	"Q3":   {9, 30},
	"Q4":   {12, 31},
}

// ParsePeriod 解析报告期标识
// 支持 YYYYMMDD / YYYY-MM-DD / YYYY/MM/DD（可带时间）以及 "2023年报"、"2023Q3" 等代码
func ParsePeriod(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if m := compactDateRe.FindStringSubmatch(s); m != nil {
		return makeDate(m[1], m[2], m[3])
	}
	if m := dashedDateRe.FindStringSubmatch(s); m != nil {
		return makeDate(m[1], m[2], m[3])
	}
	if m := reportCodeRe.FindStringSubmatch(s); m != nil {
		md := quarterEnds[m[2]]
		year, _ := strconv.Atoi(m[1])
		return time.Date(year, time.Month(md[0]), md[1], 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func makeDate(y, m, d string) (time.Time, bool) {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(m)
	day, _ := strconv.Atoi(d)
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// 拒绝 20230231 这类溢出日期
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// IsPeriodLike 单元格是否像报告期
func IsPeriodLike(cell any) bool {
	if t, ok := cell.(time.Time); ok {
		return !t.IsZero()
	}
	_, ok := ParsePeriod(CellText(cell))
	return ok
}

// PeriodKey 报告期的规范键：可解析时为YYYYMMDD，否则为去空白后的原文
func PeriodKey(header string) string {
	if t, ok := ParsePeriod(header); ok {
		return t.Format("20060102")
	}
	return strings.TrimSpace(header)
}

// SortPeriods 按日历日期降序排列（最新在前），不可解析的按字符串降序排在其后
func SortPeriods(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		return periodAfter(keys[i], keys[j])
	})
}

// SortPeriodsAscending 升序排列，用于绘图与增长率计算
func SortPeriodsAscending(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		return periodAfter(keys[j], keys[i])
	})
}

func periodAfter(a, b string) bool {
	ta, oka := ParsePeriod(a)
	tb, okb := ParsePeriod(b)
	switch {
	case oka && okb:
		return ta.After(tb)
	case oka != okb:
		return oka
	}
	return a > b
}

// PeriodIndex 报告期键到列下标的映射，重复的键保留第一次出现
func PeriodIndex(t *Table) map[string]int {
	idx := make(map[string]int)
	if t == nil {
		return idx
	}
	for i := 1; i < len(t.Columns); i++ {
		key := PeriodKey(t.Columns[i])
		if key == "" {
			continue
		}
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}
