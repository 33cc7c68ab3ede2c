package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Nanzhexi/aksmes/statement"
)

// CleaningRule 报表清洗规则，输入为归一化后的报表
type CleaningRule interface {
	Apply(*statement.Table) (*statement.Table, []string)
	Name() string
}

// QualityIssue 质量问题
type QualityIssue struct {
	Type      string         `json:"type"`
	Severity  string         `json:"severity"` // low, medium, high
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Symbol    string         `json:"symbol"`
	Kind      statement.Kind `json:"kind"`
}

// Warning 转换为报表警告
func (q QualityIssue) Warning() statement.Warning {
	return statement.Warning{Code: statement.WarnCleaned, Message: q.Message}
}

// CleaningStats 清洗统计
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// TableCleaner 报表清洗器
type TableCleaner struct {
	rules      []CleaningRule
	issues     []QualityIssue
	issuesLock sync.RWMutex

	stats     CleaningStats
	statsLock sync.RWMutex

	maxIssues int
}

// NewTableCleaner 创建带默认规则的清洗器
func NewTableCleaner() *TableCleaner {
	cleaner := &TableCleaner{
		rules:     make([]CleaningRule, 0),
		issues:    make([]QualityIssue, 0),
		stats:     CleaningStats{Issues: make(map[string]int64)},
		maxIssues: 1000,
	}

	cleaner.AddRule(LabelTrimRule{})
	cleaner.AddRule(EmptyRowRule{})
	cleaner.AddRule(DuplicatePeriodRule{})
	cleaner.AddRule(PeriodOrderRule{})

	return cleaner
}

// AddRule 添加清洗规则
func (tc *TableCleaner) AddRule(rule CleaningRule) {
	tc.rules = append(tc.rules, rule)
}

// Rules 已注册规则名
func (tc *TableCleaner) Rules() []string {
	names := make([]string, len(tc.rules))
	for i, r := range tc.rules {
		names[i] = r.Name()
	}
	return names
}

// Clean 依次应用全部规则，返回新表与本次产生的问题
func (tc *TableCleaner) Clean(symbol string, kind statement.Kind, t *statement.Table) (*statement.Table, []QualityIssue) {
	if t.IsEmpty() {
		return t, nil
	}

	out := t.Clone()
	var issues []QualityIssue
	now := time.Now()

	for _, rule := range tc.rules {
		cleaned, notes := rule.Apply(out)
		if cleaned != nil {
			out = cleaned
		}
		for _, note := range notes {
			issues = append(issues, QualityIssue{
				Type:      rule.Name(),
				Severity:  severityOf(rule.Name()),
				Message:   note,
				Timestamp: now,
				Symbol:    symbol,
				Kind:      kind,
			})
		}
	}

	tc.statsLock.Lock()
	tc.stats.TotalProcessed++
	if len(issues) > 0 {
		tc.stats.Corrected++
	} else {
		tc.stats.Passed++
	}
	for _, issue := range issues {
		tc.stats.Issues[issue.Type]++
	}
	tc.stats.LastClean = now
	tc.statsLock.Unlock()

	if len(issues) > 0 {
		tc.issuesLock.Lock()
		tc.issues = append(tc.issues, issues...)
		if over := len(tc.issues) - tc.maxIssues; over > 0 {
			tc.issues = tc.issues[over:]
		}
		tc.issuesLock.Unlock()
		zap.S().Debugw("statement cleaned", "symbol", symbol, "kind", kind, "issues", len(issues))
	}

	return out, issues
}

func severityOf(rule string) string {
	if rule == "duplicate_period" {
		return "medium"
	}
	return "low"
}

// GetStats 获取统计信息
func (tc *TableCleaner) GetStats() CleaningStats {
	tc.statsLock.RLock()
	defer tc.statsLock.RUnlock()

	stats := tc.stats
	stats.Issues = make(map[string]int64, len(tc.stats.Issues))
	for k, v := range tc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// GetIssues 获取最近的问题列表
func (tc *TableCleaner) GetIssues(limit int) []QualityIssue {
	tc.issuesLock.RLock()
	defer tc.issuesLock.RUnlock()

	if limit <= 0 || limit > len(tc.issues) {
		limit = len(tc.issues)
	}

	issues := make([]QualityIssue, limit)
	copy(issues, tc.issues[len(tc.issues)-limit:])
	return issues
}

// ClearIssues 清空问题列表
func (tc *TableCleaner) ClearIssues() {
	tc.issuesLock.Lock()
	defer tc.issuesLock.Unlock()

	tc.issues = make([]QualityIssue, 0)
}

// ============ 清洗规则实现 ============

// LabelTrimRule 去除项目名称首尾空白
type LabelTrimRule struct{}

func (LabelTrimRule) Name() string {
	return "label_trim"
}

func (LabelTrimRule) Apply(t *statement.Table) (*statement.Table, []string) {
	trimmed := 0
	for _, row := range t.Rows {
		if len(row) == 0 {
			continue
		}
		s, ok := row[0].(string)
		if !ok {
			continue
		}
		if clean := strings.TrimSpace(s); clean != s {
			row[0] = clean
			trimmed++
		}
	}
	if trimmed == 0 {
		return t, nil
	}
	return t, []string{fmt.Sprintf("%d个项目名称含首尾空白", trimmed)}
}

// EmptyRowRule 删除项目为空或没有任何数值的行
type EmptyRowRule struct{}

func (EmptyRowRule) Name() string {
	return "empty_row"
}

func (EmptyRowRule) Apply(t *statement.Table) (*statement.Table, []string) {
	kept := make([][]any, 0, len(t.Rows))
	var notes []string
	for i, row := range t.Rows {
		label := statement.CellText(t.Cell(i, 0))
		if strings.TrimSpace(label) == "" {
			notes = append(notes, fmt.Sprintf("第%d行项目为空，已删除", i+1))
			continue
		}
		numeric := false
		for c := 1; c < len(row); c++ {
			if _, ok := statement.CoerceNumeric(row[c]); ok {
				numeric = true
				break
			}
		}
		if !numeric {
			notes = append(notes, fmt.Sprintf("%s没有可用数值，已删除", label))
			continue
		}
		kept = append(kept, row)
	}
	if len(notes) == 0 {
		return t, nil
	}
	return statement.NewTable(t.Columns, kept), notes
}

// DuplicatePeriodRule 删除重复的报告期列，保留首次出现
type DuplicatePeriodRule struct{}

func (DuplicatePeriodRule) Name() string {
	return "duplicate_period"
}

func (DuplicatePeriodRule) Apply(t *statement.Table) (*statement.Table, []string) {
	keep := []int{0}
	seen := make(map[string]bool)
	var notes []string
	for c := 1; c < len(t.Columns); c++ {
		key := statement.PeriodKey(t.Columns[c])
		if seen[key] {
			notes = append(notes, fmt.Sprintf("报告期%s重复，保留首次出现的列", key))
			continue
		}
		seen[key] = true
		keep = append(keep, c)
	}
	if len(notes) == 0 {
		return t, nil
	}
	return selectColumns(t, keep), notes
}

// PeriodOrderRule 报告期列按日期降序排列，列名统一为YYYYMMDD
type PeriodOrderRule struct{}

func (PeriodOrderRule) Name() string {
	return "period_order"
}

func (PeriodOrderRule) Apply(t *statement.Table) (*statement.Table, []string) {
	index := make(map[string]int, len(t.Columns))
	keys := make([]string, 0, len(t.Columns))
	for c := 1; c < len(t.Columns); c++ {
		key := statement.PeriodKey(t.Columns[c])
		if _, dup := index[key]; dup {
			continue
		}
		index[key] = c
		keys = append(keys, key)
	}
	statement.SortPeriods(keys)

	order := []int{0}
	changed := false
	for i, key := range keys {
		c := index[key]
		order = append(order, c)
		if c != i+1 || t.Columns[c] != key {
			changed = true
		}
	}
	if !changed && len(order) == len(t.Columns) {
		return t, nil
	}

	out := selectColumns(t, order)
	for i, key := range keys {
		out.Columns[i+1] = key
	}
	return out, []string{"报告期列已按日期降序重排"}
}

func selectColumns(t *statement.Table, cols []int) *statement.Table {
	columns := make([]string, len(cols))
	for i, c := range cols {
		columns[i] = t.Columns[c]
	}
	rows := make([][]any, len(t.Rows))
	for r := range t.Rows {
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = t.Cell(r, c)
		}
		rows[r] = row
	}
	return statement.NewTable(columns, rows)
}
