package statement

import "strings"

// Tiers 按优先级排列的关键词组，组内关键词为"或"关系
type Tiers [][]string

// Match 行匹配结果
type Match struct {
	Row     int    `json:"row"`
	Label   string `json:"label"`
	Tier    int    `json:"tier"`
	Pattern string `json:"pattern"`
}

// Fallback 是否由非首选关键词组命中
func (m Match) Fallback() bool {
	return m.Tier > 0
}

// FindRow 在项目列中查找第一个命中的行。
// 依次尝试每个关键词组，返回首个有命中的组中表格顺序最靠前的行。
func FindRow(t *Table, tiers Tiers) (Match, bool) {
	if t == nil || len(t.Rows) == 0 {
		return Match{}, false
	}
	labels := t.Labels()
	for tier, patterns := range tiers {
		for row, label := range labels {
			if p, ok := containsAny(label, patterns); ok {
				return Match{Row: row, Label: label, Tier: tier, Pattern: p}, true
			}
		}
	}
	return Match{}, false
}

// containsAny 文本包含任意关键词时返回命中的关键词
func containsAny(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}
