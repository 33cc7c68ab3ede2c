package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Nanzhexi/aksmes/analysis"
)

var database *sql.DB

// ErrNotInitialized 未调用InitDB
var ErrNotInitialized = errors.New("database not initialized")

// InitDB initializes the SQLite database
func InitDB(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create db dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open database failed: %w", err)
	}
	conn.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS download_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL,
        symbol VARCHAR(20) NOT NULL,
        kind VARCHAR(20) NOT NULL,
        provider VARCHAR(20),
        success INTEGER NOT NULL,
        error TEXT,
        row_count INTEGER DEFAULT 0,
        path TEXT,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_download_log_symbol ON download_log(symbol, created_at);
    CREATE TABLE IF NOT EXISTS metric_history (
        id INTEGER PRIMARY KEY,
        symbol VARCHAR(20) NOT NULL,
        period VARCHAR(20) NOT NULL,
        revenue REAL,
        net_profit REAL,
        revenue_growth REAL,
        net_profit_growth REAL,
        updated_at DATETIME,
        UNIQUE(symbol, period)
    );
    CREATE TABLE IF NOT EXISTS ratio_history (
        id INTEGER PRIMARY KEY,
        symbol VARCHAR(20) NOT NULL,
        period VARCHAR(20) NOT NULL,
        total_assets REAL,
        net_equity REAL,
        net_profit REAL,
        roa REAL,
        roe REAL,
        updated_at DATETIME,
        UNIQUE(symbol, period)
    );
    `

	if _, err := conn.Exec(query); err != nil {
		conn.Close()
		return fmt.Errorf("create tables failed: %w", err)
	}
	if database != nil {
		database.Close()
	}
	database = conn
	return nil
}

// Enabled 数据库是否已初始化
func Enabled() bool {
	return database != nil
}

// Close closes the database
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// DownloadLog 单个报表的下载记录
type DownloadLog struct {
	RunID     string    `json:"run_id"`
	Symbol    string    `json:"symbol"`
	Kind      string    `json:"kind"`
	Provider  string    `json:"provider,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Rows      int       `json:"rows"`
	Path      string    `json:"path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveDownloadLog saves one download attempt
func SaveDownloadLog(entry DownloadLog) error {
	if database == nil {
		return ErrNotInitialized
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := database.Exec(`
        INSERT INTO download_log (run_id, symbol, kind, provider, success, error, row_count, path, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.Symbol, entry.Kind, entry.Provider, entry.Success, entry.Error, entry.Rows, entry.Path, entry.CreatedAt.UTC())
	return err
}

// QueryDownloadLog queries the latest download attempts for a symbol
func QueryDownloadLog(symbol string, limit int) ([]DownloadLog, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := database.Query(`
        SELECT run_id, symbol, kind, provider, success, error, row_count, path, created_at
        FROM download_log
        WHERE symbol = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]DownloadLog, 0)
	for rows.Next() {
		var l DownloadLog
		var provider, errText, path sql.NullString
		if err := rows.Scan(&l.RunID, &l.Symbol, &l.Kind, &provider, &l.Success, &errText, &l.Rows, &path, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Provider, l.Error, l.Path = provider.String, errText.String, path.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// SaveMetrics saves a metric series, replacing existing periods
func SaveMetrics(symbol string, points []analysis.MetricPoint) error {
	if database == nil {
		return ErrNotInitialized
	}
	tx, err := database.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
        INSERT OR REPLACE INTO metric_history (symbol, period, revenue, net_profit, revenue_growth, net_profit_growth, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range points {
		if _, err := stmt.Exec(symbol, p.Period, p.Revenue, p.NetProfit, nullable(p.RevenueGrowth), nullable(p.NetProfitGrowth), now); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// QueryMetrics queries stored metrics, most recent period first
func QueryMetrics(symbol string, limit int) ([]analysis.MetricPoint, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := database.Query(`
        SELECT period, revenue, net_profit, revenue_growth, net_profit_growth
        FROM metric_history
        WHERE symbol = ?
        ORDER BY period DESC
        LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]analysis.MetricPoint, 0)
	for rows.Next() {
		var p analysis.MetricPoint
		var rg, pg sql.NullFloat64
		if err := rows.Scan(&p.Period, &p.Revenue, &p.NetProfit, &rg, &pg); err != nil {
			return nil, err
		}
		p.RevenueGrowth, p.NetProfitGrowth = fromNull(rg), fromNull(pg)
		points = append(points, p)
	}
	return points, rows.Err()
}

// SaveRatios saves a ratio series, replacing existing periods
func SaveRatios(symbol string, points []analysis.RatioPoint) error {
	if database == nil {
		return ErrNotInitialized
	}
	tx, err := database.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
        INSERT OR REPLACE INTO ratio_history (symbol, period, total_assets, net_equity, net_profit, roa, roe, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range points {
		if _, err := stmt.Exec(symbol, p.Period, p.TotalAssets, p.NetEquity, p.NetProfit, nullable(p.ROA), nullable(p.ROE), now); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// QueryRatios queries stored ratios, most recent period first
func QueryRatios(symbol string, limit int) ([]analysis.RatioPoint, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := database.Query(`
        SELECT period, total_assets, net_equity, net_profit, roa, roe
        FROM ratio_history
        WHERE symbol = ?
        ORDER BY period DESC
        LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]analysis.RatioPoint, 0)
	for rows.Next() {
		var p analysis.RatioPoint
		var roa, roe sql.NullFloat64
		if err := rows.Scan(&p.Period, &p.TotalAssets, &p.NetEquity, &p.NetProfit, &roa, &roe); err != nil {
			return nil, err
		}
		p.ROA, p.ROE = fromNull(roa), fromNull(roe)
		points = append(points, p)
	}
	return points, rows.Err()
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// History 以全局数据库实现历史记录接口
type History struct{}

func (History) SaveDownloadLog(entry DownloadLog) error {
	return SaveDownloadLog(entry)
}

func (History) SaveMetrics(symbol string, points []analysis.MetricPoint) error {
	return SaveMetrics(symbol, points)
}

func (History) SaveRatios(symbol string, points []analysis.RatioPoint) error {
	return SaveRatios(symbol, points)
}
