// Package cache 报表CSV文件缓存
package cache

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Nanzhexi/aksmes/statement"
)

// ErrNotFound 缓存中没有对应报表
var ErrNotFound = errors.New("cached statement not found")

const (
	fileExt    = ".csv"
	dateLayout = "20060102"
	tempPrefix = ".tmp-"
	utf8BOM    = "\ufeff"
)

// Entry 缓存文件的元信息
type Entry struct {
	Symbol string         `json:"symbol"`
	Kind   statement.Kind `json:"kind"`
	Date   string         `json:"date"`
	Path   string         `json:"path"`
}

// DirStore 按 {symbol}_{kind}_{YYYYMMDD}.csv 存放原始报表
type DirStore struct {
	dir string
}

// NewDirStore 创建目录缓存，目录不存在时自动创建
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Dir 缓存目录
func (s *DirStore) Dir() string {
	return s.dir
}

// FileName 缓存文件名
func FileName(symbol string, kind statement.Kind, asOf time.Time) string {
	return fmt.Sprintf("%s_%s_%s%s", symbol, kind, asOf.Format(dateLayout), fileExt)
}

// ParseFileName 解析缓存文件名
func ParseFileName(path string) (Entry, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, fileExt) {
		return Entry{}, false
	}
	parts := strings.Split(strings.TrimSuffix(name, fileExt), "_")
	if len(parts) != 3 {
		return Entry{}, false
	}
	kind := statement.Kind(parts[1])
	if !kind.Valid() {
		return Entry{}, false
	}
	if _, err := time.Parse(dateLayout, parts[2]); err != nil {
		return Entry{}, false
	}
	return Entry{Symbol: parts[0], Kind: kind, Date: parts[2], Path: path}, true
}

// Save 写入临时文件后重命名，整文件替换
func (s *DirStore) Save(symbol string, kind statement.Kind, asOf time.Time, t *statement.Table) (string, error) {
	if t.IsEmpty() {
		return "", fmt.Errorf("refusing to cache empty %s for %s", kind, symbol)
	}
	target := filepath.Join(s.dir, FileName(symbol, kind, asOf))

	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*"+fileExt)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := writeTable(tmp, t); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", fmt.Errorf("replace %s: %w", target, err)
	}
	return target, nil
}

func writeTable(w io.Writer, t *statement.Table) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(bw)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for r := range t.Rows {
		for c := range record {
			record[c] = statement.CellText(t.Cell(r, c))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// Load 读取缓存文件，空单元格读为nil
func (s *DirStore) Load(path string) (*statement.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if bom, err := br.Peek(len(utf8BOM)); err == nil && string(bom) == utf8BOM {
		br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return &statement.Table{}, nil
	}

	columns := records[0]
	rows := make([][]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]any, len(columns))
		for i := 0; i < len(columns) && i < len(rec); i++ {
			if rec[i] != "" {
				row[i] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return statement.NewTable(columns, rows), nil
}

// Latest 按文件名排序取最新的缓存文件
func (s *DirStore) Latest(symbol string, kind statement.Kind) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, symbol+"_"+string(kind)+"_*"+fileExt))
	if err != nil {
		return "", err
	}
	var valid []string
	for _, m := range matches {
		if _, ok := ParseFileName(m); ok {
			valid = append(valid, m)
		}
	}
	if len(valid) == 0 {
		return "", ErrNotFound
	}
	sort.Strings(valid)
	return valid[len(valid)-1], nil
}

// LoadLatest 读取最新的缓存报表
func (s *DirStore) LoadLatest(symbol string, kind statement.Kind) (*statement.Table, string, error) {
	path, err := s.Latest(symbol, kind)
	if err != nil {
		return nil, "", err
	}
	t, err := s.Load(path)
	if err != nil {
		return nil, "", err
	}
	return t, path, nil
}

// List 列出某证券的全部缓存文件，symbol为空时列出全部
func (s *DirStore) List(symbol string) ([]Entry, error) {
	pattern := "*" + fileExt
	if symbol != "" {
		pattern = symbol + "_*" + fileExt
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		if e, ok := ParseFileName(m); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Remove 删除某证券某类报表的全部缓存文件
func (s *DirStore) Remove(symbol string, kind statement.Kind) error {
	entries, err := s.List(symbol)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Kind != kind {
			continue
		}
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
