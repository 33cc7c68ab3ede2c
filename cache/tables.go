package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/Nanzhexi/aksmes/statement"
)

const defaultCacheSize = 256

// Preparer 将原始报表转换为可分析的报表
type Preparer func(symbol string, kind statement.Kind, raw *statement.Table) statement.Report

// Prepared 缓存中的已处理报表
type Prepared struct {
	Table    *statement.Table
	Shape    statement.Shape
	Warnings []statement.Warning
	Path     string
}

type tableKey struct {
	symbol string
	kind   statement.Kind
}

// TableCache 位于DirStore之前的LRU内存缓存
type TableCache struct {
	store   *DirStore
	prepare Preparer
	entries *lru.Cache[tableKey, Prepared]
}

// NewTableCache 创建报表缓存，prepare为nil时仅做归一化
func NewTableCache(store *DirStore, size int, prepare Preparer) (*TableCache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	if prepare == nil {
		prepare = func(_ string, _ statement.Kind, raw *statement.Table) statement.Report {
			return statement.NormalizeReport(raw)
		}
	}
	entries, err := lru.New[tableKey, Prepared](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &TableCache{store: store, prepare: prepare, entries: entries}, nil
}

// Store 底层目录缓存
func (c *TableCache) Store() *DirStore {
	return c.store
}

// Get 读取最新的已处理报表，未命中时从磁盘加载
func (c *TableCache) Get(symbol string, kind statement.Kind) (Prepared, error) {
	key := tableKey{symbol: symbol, kind: kind}
	if p, ok := c.entries.Get(key); ok {
		return p, nil
	}

	raw, path, err := c.store.LoadLatest(symbol, kind)
	if err != nil {
		return Prepared{}, err
	}
	report := c.prepare(symbol, kind, raw)
	p := Prepared{
		Table:    report.Table,
		Shape:    report.Shape,
		Warnings: report.Warnings,
		Path:     path,
	}
	c.entries.Add(key, p)
	zap.S().Debugw("statement cache loaded", "symbol", symbol, "kind", kind, "path", path)
	return p, nil
}

// Raw 读取最新的原始报表，不经过内存缓存
func (c *TableCache) Raw(symbol string, kind statement.Kind) (*statement.Table, string, error) {
	return c.store.LoadLatest(symbol, kind)
}

// Put 写入原始报表并使对应条目失效
func (c *TableCache) Put(symbol string, kind statement.Kind, asOf time.Time, raw *statement.Table) (string, error) {
	path, err := c.store.Save(symbol, kind, asOf, raw)
	if err != nil {
		return "", err
	}
	c.Invalidate(symbol, kind)
	return path, nil
}

// Invalidate 使某证券某类报表的条目失效
func (c *TableCache) Invalidate(symbol string, kind statement.Kind) {
	c.entries.Remove(tableKey{symbol: symbol, kind: kind})
}

// InvalidatePath 按缓存文件路径使条目失效，无法解析的路径返回false
func (c *TableCache) InvalidatePath(path string) bool {
	e, ok := ParseFileName(path)
	if !ok {
		return false
	}
	c.Invalidate(e.Symbol, e.Kind)
	return true
}

// Purge 清空内存缓存
func (c *TableCache) Purge() {
	c.entries.Purge()
}

// Len 内存缓存条目数
func (c *TableCache) Len() int {
	return c.entries.Len()
}
