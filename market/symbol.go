// Package market 行情与证券代码工具
package market

import (
	"fmt"
	"strings"
)

// Exchange 交易所前缀
type Exchange string

const (
	Shanghai Exchange = "sh"
	Shenzhen Exchange = "sz"
	Beijing  Exchange = "bj"
)

// Symbol 带交易所前缀的证券代码，如 sh600519
type Symbol struct {
	Exchange Exchange
	Code     string
}

func (s Symbol) String() string {
	return string(s.Exchange) + s.Code
}

// Upper 大写前缀形式，如 SH600519
func (s Symbol) Upper() string {
	return strings.ToUpper(string(s.Exchange)) + s.Code
}

// Dotted 后缀形式，如 600519.SH
func (s Symbol) Dotted() string {
	return s.Code + "." + strings.ToUpper(string(s.Exchange))
}

// NormalizeSymbol 接受 600519 / sh600519 / SH600519 / 600519.SH 等形式
func NormalizeSymbol(input string) (Symbol, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return Symbol{}, fmt.Errorf("empty symbol")
	}

	var ex Exchange
	for _, e := range []Exchange{Shanghai, Shenzhen, Beijing} {
		prefix := string(e)
		switch {
		case strings.HasPrefix(s, prefix):
			ex, s = e, strings.TrimPrefix(s, prefix)
		case strings.HasSuffix(s, "."+prefix):
			ex, s = e, strings.TrimSuffix(s, "."+prefix)
		}
		if ex != "" {
			break
		}
	}

	if len(s) != 6 || strings.Trim(s, "0123456789") != "" {
		return Symbol{}, fmt.Errorf("invalid symbol %q", input)
	}
	if ex == "" {
		ex = exchangeOf(s)
	}
	if ex == "" {
		return Symbol{}, fmt.Errorf("cannot infer exchange for %q", input)
	}
	return Symbol{Exchange: ex, Code: s}, nil
}

// exchangeOf 按代码首位推断交易所
func exchangeOf(code string) Exchange {
	switch code[0] {
	case '6', '9', '5':
		return Shanghai
	case '0', '3', '2', '1':
		return Shenzhen
	case '4', '8':
		return Beijing
	}
	return ""
}
