package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Nanzhexi/aksmes/analysis"
	"github.com/Nanzhexi/aksmes/market"
	"github.com/Nanzhexi/aksmes/statement"
)

// Manager 数据源管理器，按优先级依次尝试，失败或返回空数据时切换下一个
type Manager struct {
	statements          []StatementProvider
	valuations          []ValuationProvider
	primary             StatementProvider
	health              map[string]bool
	healthMu            sync.RWMutex
	healthCheckInterval time.Duration
	stopChan            chan struct{}
	stopOnce            sync.Once
	mu                  sync.RWMutex
}

// NewManager 创建数据源管理器
func NewManager() *Manager {
	return &Manager{
		health:              make(map[string]bool),
		healthCheckInterval: 5 * time.Minute,
		stopChan:            make(chan struct{}),
	}
}

// SetHealthCheckInterval 设置健康检查间隔
func (m *Manager) SetHealthCheckInterval(d time.Duration) {
	if d > 0 {
		m.healthCheckInterval = d
	}
}

// AddStatementProvider 添加报表数据源
func (m *Manager) AddStatementProvider(p StatementProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statements = append(m.statements, p)
	sort.SliceStable(m.statements, func(i, j int) bool {
		return m.statements[i].Priority() > m.statements[j].Priority()
	})
	m.setHealth(p.Name(), true)

	if m.primary == nil || p.Priority() > m.primary.Priority() {
		m.primary = p
	}
}

// AddValuationProvider 添加估值数据源
func (m *Manager) AddValuationProvider(p ValuationProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.valuations = append(m.valuations, p)
	sort.SliceStable(m.valuations, func(i, j int) bool {
		return m.valuations[i].Priority() > m.valuations[j].Priority()
	})
}

// SetPrimaryProvider 设置主报表数据源
func (m *Manager) SetPrimaryProvider(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.statements {
		if p.Name() == name {
			m.primary = p
			return nil
		}
	}
	return ErrProviderNotFound
}

// GetPrimaryProvider 当前主报表数据源
func (m *Manager) GetPrimaryProvider() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.primary == nil {
		return ""
	}
	return m.primary.Name()
}

// order 主数据源在前，其余按优先级
func (m *Manager) order() []StatementProvider {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]StatementProvider, 0, len(m.statements))
	if m.primary != nil {
		out = append(out, m.primary)
	}
	for _, p := range m.statements {
		if p != m.primary {
			out = append(out, p)
		}
	}
	return out
}

// FetchStatement 获取报表（自动切换数据源），返回表格与实际使用的数据源名
func (m *Manager) FetchStatement(ctx context.Context, symbol market.Symbol, kind statement.Kind) (*statement.Table, string, error) {
	providers := m.order()
	if len(providers) == 0 {
		return nil, "", ErrNoProviders
	}

	var errs error
	for i, p := range providers {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		// 主数据源总是尝试，备用数据源跳过不健康的
		if i > 0 && !m.isHealthy(p.Name()) {
			continue
		}

		table, err := p.FetchStatement(ctx, symbol, kind)
		if err == nil && table.IsEmpty() {
			err = ErrEmptyResult
		}
		if err == nil {
			if i > 0 {
				zap.S().Infof("Using fallback provider %s for %s %s", p.Name(), symbol, kind)
			}
			return table, p.Name(), nil
		}
		zap.S().Warnf("Provider %s failed for %s %s: %v", p.Name(), symbol, kind, err)
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return nil, "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, errs)
}

// FetchValuation 获取估值历史（自动切换数据源）
func (m *Manager) FetchValuation(ctx context.Context, symbol market.Symbol) ([]analysis.ValuationPoint, string, error) {
	m.mu.RLock()
	providers := make([]ValuationProvider, len(m.valuations))
	copy(providers, m.valuations)
	m.mu.RUnlock()

	if len(providers) == 0 {
		return nil, "", ErrNoProviders
	}

	var errs error
	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		points, err := p.FetchValuation(ctx, symbol)
		if err == nil && len(points) == 0 {
			err = ErrEmptyResult
		}
		if err == nil {
			return points, p.Name(), nil
		}
		zap.S().Warnf("Valuation provider %s failed for %s: %v", p.Name(), symbol, err)
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return nil, "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, errs)
}

func (m *Manager) isHealthy(name string) bool {
	m.healthMu.RLock()
	defer m.healthMu.RUnlock()
	healthy, ok := m.health[name]
	return !ok || healthy
}

func (m *Manager) setHealth(name string, healthy bool) {
	m.healthMu.Lock()
	m.health[name] = healthy
	m.healthMu.Unlock()
}

// StartHealthChecks 启动后台健康检查
func (m *Manager) StartHealthChecks() {
	m.mu.RLock()
	providers := make([]StatementProvider, len(m.statements))
	copy(providers, m.statements)
	m.mu.RUnlock()

	for _, p := range providers {
		go m.monitorProvider(p)
	}
}

func (m *Manager) monitorProvider(p StatementProvider) {
	ticker := time.NewTicker(m.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CheckProvider(p)
		case <-m.stopChan:
			return
		}
	}
}

// CheckProvider 执行一次健康检查并更新状态
func (m *Manager) CheckProvider(p StatementProvider) bool {
	err := p.HealthCheck()
	if err != nil {
		zap.S().Warnf("Provider %s health check failed: %v", p.Name(), err)
	}
	m.setHealth(p.Name(), err == nil)
	return err == nil
}

// StopHealthChecks 停止健康检查
func (m *Manager) StopHealthChecks() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// GetProvidersStatus 所有报表数据源的健康状态
func (m *Manager) GetProvidersStatus() map[string]bool {
	m.healthMu.RLock()
	defer m.healthMu.RUnlock()

	status := make(map[string]bool, len(m.health))
	for name, healthy := range m.health {
		status[name] = healthy
	}
	return status
}
