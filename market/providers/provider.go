// Package providers 财务报表与估值数据源适配器
package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/Nanzhexi/aksmes/analysis"
	"github.com/Nanzhexi/aksmes/market"
	"github.com/Nanzhexi/aksmes/statement"
)

// StatementProvider 报表数据源接口
type StatementProvider interface {
	Name() string
	Priority() int
	FetchStatement(ctx context.Context, symbol market.Symbol, kind statement.Kind) (*statement.Table, error)
	HealthCheck() error
}

// ValuationProvider 估值历史数据源接口
type ValuationProvider interface {
	Name() string
	Priority() int
	FetchValuation(ctx context.Context, symbol market.Symbol) ([]analysis.ValuationPoint, error)
}

const (
	defaultTimeout     = 10 * time.Second
	healthCheckTimeout = 5 * time.Second
	userAgent          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// healthSymbol 健康检查使用的证券
var healthSymbol = market.Symbol{Exchange: market.Shanghai, Code: "600000"}

var (
	ErrProviderNotFound   = &ProviderError{Code: "provider_not_found", Message: "Data provider not found"}
	ErrAllProvidersFailed = &ProviderError{Code: "all_providers_failed", Message: "All data providers failed"}
	ErrEmptyResult        = &ProviderError{Code: "empty_result", Message: "Data provider returned no data"}
	ErrNoProviders        = &ProviderError{Code: "no_providers", Message: "No data provider registered"}
)

// ProviderError 数据源错误
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return e.Message
}

// statusError 非2xx响应
func statusError(provider string, code int, url string) error {
	return fmt.Errorf("%s: unexpected status %d from %s", provider, code, url)
}
