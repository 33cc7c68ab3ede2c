// Package app 按配置装配数据源、缓存、下载与分析服务
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Nanzhexi/aksmes/cache"
	"github.com/Nanzhexi/aksmes/config"
	"github.com/Nanzhexi/aksmes/db"
	"github.com/Nanzhexi/aksmes/market/providers"
	"github.com/Nanzhexi/aksmes/pipeline"
)

// App 装配完成的服务集合
type App struct {
	Config     *config.Config
	Manager    *providers.Manager
	Tables     *cache.TableCache
	Cleaner    *pipeline.TableCleaner
	Downloader *pipeline.Downloader
	Analyzer   *pipeline.Analyzer

	watcher *cache.Watcher
	cancel  context.CancelFunc
}

// NewManager 按配置创建数据源管理器
func NewManager(cfg config.ProvidersConfig) (*providers.Manager, error) {
	m := providers.NewManager()
	m.SetHealthCheckInterval(cfg.HealthCheckInterval)

	for _, name := range cfg.Enabled {
		switch name {
		case "eastmoney":
			ep := providers.NewEastmoneyProvider(providers.EastmoneyOptions{
				F10URL:        cfg.Eastmoney.F10URL,
				DatacenterURL: cfg.Eastmoney.DatacenterURL,
				MaxPeriods:    cfg.Eastmoney.MaxPeriods,
				Timeout:       cfg.Timeout,
			})
			m.AddStatementProvider(ep)
			m.AddValuationProvider(ep)
		case "sina":
			m.AddStatementProvider(providers.NewSinaProvider(cfg.Sina.BaseURL, cfg.Timeout))
		case "tencent":
			m.AddValuationProvider(providers.NewTencentProvider(cfg.Tencent.BaseURL, cfg.Timeout))
		case "mock":
			mp := providers.NewMockProvider(providers.MockOptions{})
			m.AddStatementProvider(mp)
			m.AddValuationProvider(mp)
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}

	if cfg.Primary != "" {
		if err := m.SetPrimaryProvider(cfg.Primary); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// New 创建应用。数据库已初始化时下载与分析结果写入历史表。
func New(cfg *config.Config) (*App, error) {
	manager, err := NewManager(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}

	store, err := cache.NewDirStore(cfg.Cache.Dir)
	if err != nil {
		return nil, fmt.Errorf("cache dir: %w", err)
	}
	cleaner := pipeline.NewTableCleaner()
	tables, err := cache.NewTableCache(store, cfg.Cache.Size, cleaner.Preparer())
	if err != nil {
		return nil, fmt.Errorf("table cache: %w", err)
	}

	a := &App{
		Config:     cfg,
		Manager:    manager,
		Tables:     tables,
		Cleaner:    cleaner,
		Downloader: pipeline.NewDownloader(manager, tables),
		Analyzer:   pipeline.NewAnalyzer(tables, manager),
	}
	if db.Enabled() {
		a.Downloader.SetHistory(db.History{})
		a.Analyzer.SetHistory(db.History{})
	}
	return a, nil
}

// Start 启动后台任务：数据源健康检查与缓存目录监听
func (a *App) Start() error {
	a.Manager.StartHealthChecks()
	if !a.Config.Cache.Watch {
		return nil
	}

	w, err := cache.NewWatcher(a.Tables)
	if err != nil {
		return fmt.Errorf("watch cache dir: %w", err)
	}
	w.OnInvalidate = func(e cache.Entry) {
		zap.S().Debugw("cache file changed", "symbol", e.Symbol, "kind", e.Kind, "path", e.Path)
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.watcher, a.cancel = w, cancel
	go w.Run(ctx)
	return nil
}

// Close 停止后台任务
func (a *App) Close() error {
	a.Manager.StopHealthChecks()
	if a.watcher == nil {
		return nil
	}
	a.cancel()
	return a.watcher.Close()
}
