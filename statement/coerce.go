package statement

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// placeholders 表示"无数据"的占位文本
var placeholders = map[string]bool{
	"":     true,
	"-":    true,
	"--":   true,
	"—":    true,
	"nan":  true,
	"none": true,
	"null": true,
}

// CoerceNumeric 将任意单元格转换为数值，无法转换时返回false，从不panic
func CoerceNumeric(cell any) (float64, bool) {
	switch v := cell.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		return parseNumericText(v.String())
	case decimal.Decimal:
		return v.InexactFloat64(), true
	case *decimal.Decimal:
		if v == nil {
			return 0, false
		}
		return v.InexactFloat64(), true
	case string:
		return parseNumericText(v)
	case []byte:
		return parseNumericText(string(v))
	}
	return 0, false
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseNumericText(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "　", " "))
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if placeholders[strings.ToLower(s)] {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return finite(d.InexactFloat64())
}
