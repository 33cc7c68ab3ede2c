package statement

import (
	"fmt"
	"strings"
)

// Warning 归一化或提取过程中的软失败提示
type Warning struct {
	Code    string `json:"code"`
	Figure  string `json:"figure,omitempty"`
	Message string `json:"message"`
}

const (
	WarnEmptyTable      = "empty_table"
	WarnShapeAmbiguous  = "shape_ambiguous"
	WarnRowNotFound     = "row_not_found"
	WarnFallbackTier    = "fallback_tier"
	WarnNoCommonPeriods = "no_common_periods"
	WarnMissingTable    = "missing_statement"
	WarnNoNumericPeriod = "no_numeric_periods"
	WarnCleaned         = "cleaned"
)

func (w Warning) String() string {
	return w.Message
}

// RowNotFound 某项指标找不到对应行
func RowNotFound(figure string, kind Kind) Warning {
	return Warning{
		Code:    WarnRowNotFound,
		Figure:  figure,
		Message: fmt.Sprintf("未能在%s中找到%s行", kind.Label(), figure),
	}
}

// FallbackTier 指标由模糊关键词组命中
func FallbackTier(figure string, kind Kind, m Match) Warning {
	return Warning{
		Code:   WarnFallbackTier,
		Figure: figure,
		Message: fmt.Sprintf("%s中的%s使用第%d级备选关键词\"%s\"匹配到\"%s\"，请核对",
			kind.Label(), figure, m.Tier+1, m.Pattern, m.Label),
	}
}

// NoNumericPeriods 指标行在部分或全部报告期没有可用数值
func NoNumericPeriods(figure string, kind Kind, periods []string, total int) Warning {
	msg := fmt.Sprintf("%s中的%s在报告期%s没有可用数值，已跳过", kind.Label(), figure, strings.Join(periods, "、"))
	if len(periods) >= total {
		msg = fmt.Sprintf("%s中的%s在全部%d个报告期均没有可用数值", kind.Label(), figure, total)
	}
	return Warning{
		Code:    WarnNoNumericPeriod,
		Figure:  figure,
		Message: msg,
	}
}
