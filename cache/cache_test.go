package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Nanzhexi/aksmes/statement"
)

var day = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

func sampleTable() *statement.Table {
	return statement.NewTable(
		[]string{"项目", "20231231", "20221231"},
		[][]any{
			{"营业收入", "1,000", 800.5},
			{"净利润", nil, "150"},
			{"备注, 含逗号", "\"引号\"", ""},
		},
	)
}

func newStore(t *testing.T) *DirStore {
	t.Helper()
	s, err := NewDirStore(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestFileNames(t *testing.T) {
	name := FileName("sh600519", statement.IncomeStatement, day)
	if name != "sh600519_income_20240630.csv" {
		t.Fatalf("FileName = %s", name)
	}

	tests := []struct {
		name string
		ok   bool
	}{
		{"/tmp/sh600519_income_20240630.csv", true},
		{"sh600519_balance_20240630.csv", true},
		{"sh600519_unknown_20240630.csv", false},
		{"sh600519_income_2024.csv", false},
		{".tmp-123.csv", false},
		{"sh600519_income_20240630.txt", false},
		{"a_b.csv", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseFileName(tt.name)
			if ok != tt.ok {
				t.Errorf("ParseFileName(%q) ok = %v, want %v", tt.name, ok, tt.ok)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := newStore(t)
	path, err := s.Save("sh600519", statement.IncomeStatement, day, sampleTable())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "sh600519_income_20240630.csv" {
		t.Errorf("path = %s", path)
	}

	loaded, err := s.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := sampleTable()
	if strings.Join(loaded.Columns, "|") != strings.Join(want.Columns, "|") {
		t.Fatalf("columns = %v", loaded.Columns)
	}
	for r := range want.Rows {
		for c := range want.Columns {
			if got, exp := statement.CellText(loaded.Cell(r, c)), statement.CellText(want.Cell(r, c)); got != exp {
				t.Errorf("cell(%d,%d) = %q, want %q", r, c, got, exp)
			}
		}
	}
	if loaded.Cell(1, 1) != nil {
		t.Errorf("empty cell should load as nil, got %#v", loaded.Cell(1, 1))
	}

	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestSaveRejectsEmpty(t *testing.T) {
	s := newStore(t)
	if _, err := s.Save("sh600519", statement.BalanceSheet, day, &statement.Table{}); err == nil {
		t.Error("expected error for empty table")
	}
}

func TestLatestAndList(t *testing.T) {
	s := newStore(t)
	for _, d := range []time.Time{day.AddDate(0, 0, -2), day, day.AddDate(0, 0, -1)} {
		if _, err := s.Save("sh600519", statement.BalanceSheet, d, sampleTable()); err != nil {
			t.Fatal(err)
		}
	}
	s.Save("sh600519", statement.CashFlow, day, sampleTable())
	s.Save("sz000001", statement.BalanceSheet, day, sampleTable())

	latest, err := s.Latest("sh600519", statement.BalanceSheet)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(latest) != "sh600519_balance_20240630.csv" {
		t.Errorf("latest = %s", latest)
	}

	if _, err := s.Latest("sh600519", statement.IncomeStatement); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	entries, err := s.List("sh600519")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Errorf("entries = %d", len(entries))
	}
	all, _ := s.List("")
	if len(all) != 5 {
		t.Errorf("all entries = %d", len(all))
	}

	if err := s.Remove("sh600519", statement.BalanceSheet); err != nil {
		t.Fatal(err)
	}
	entries, _ = s.List("sh600519")
	if len(entries) != 1 || entries[0].Kind != statement.CashFlow {
		t.Errorf("after remove: %+v", entries)
	}
}

func TestLoadMissing(t *testing.T) {
	s := newStore(t)
	if _, err := s.Load(filepath.Join(s.Dir(), "nope.csv")); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTableCache(t *testing.T) {
	s := newStore(t)
	prepared := 0
	c, err := NewTableCache(s, 8, func(_ string, _ statement.Kind, raw *statement.Table) statement.Report {
		prepared++
		return statement.NormalizeReport(raw)
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Get("sh600519", statement.IncomeStatement); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := c.Put("sh600519", statement.IncomeStatement, day, sampleTable()); err != nil {
		t.Fatal(err)
	}
	p, err := c.Get("sh600519", statement.IncomeStatement)
	if err != nil {
		t.Fatal(err)
	}
	if p.Shape != statement.ShapeStandard || len(p.Table.Rows) != 3 {
		t.Errorf("prepared = %+v", p)
	}
	c.Get("sh600519", statement.IncomeStatement)
	if prepared != 1 || c.Len() != 1 {
		t.Errorf("prepared %d times, len %d", prepared, c.Len())
	}

	if !c.InvalidatePath(p.Path) {
		t.Error("InvalidatePath should accept cache file")
	}
	if c.Len() != 0 {
		t.Error("entry should be invalidated")
	}
	c.Get("sh600519", statement.IncomeStatement)
	if prepared != 2 {
		t.Errorf("expected reload, prepared = %d", prepared)
	}

	c.Purge()
	if c.Len() != 0 {
		t.Error("purge should empty cache")
	}
}

func TestWatcherHandle(t *testing.T) {
	s := newStore(t)
	c, _ := NewTableCache(s, 8, nil)
	path, _ := c.Put("sh600519", statement.BalanceSheet, day, sampleTable())
	c.Get("sh600519", statement.BalanceSheet)

	w := &Watcher{cache: c}
	var got []Entry
	w.OnInvalidate = func(e Entry) { got = append(got, e) }

	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Chmod})
	if c.Len() != 1 {
		t.Error("chmod should not invalidate")
	}
	w.handle(fsnotify.Event{Name: filepath.Join(s.Dir(), ".tmp-1.csv"), Op: fsnotify.Create})
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Write})
	if c.Len() != 0 {
		t.Error("write should invalidate")
	}
	if len(got) != 1 || got[0].Kind != statement.BalanceSheet {
		t.Errorf("callbacks = %+v", got)
	}
}
