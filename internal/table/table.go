// Package table はヘッダー行付きの表形式データと、そのxlsx/csvファイル入出力を提供する。
package table

import (
	"github.com/hitoshi/feedaudit/internal/model"
)

// Table はヘッダー行と文字列セルの行からなる矩形の表。
type Table struct {
	Columns []string
	Rows    [][]string
}

// New は指定したカラムを持つ空のTableを生成する。
func New(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Len は行数を返す。
func (t *Table) Len() int {
	return len(t.Rows)
}

// Index はカラムの位置を返す。存在しない場合は-1。
// 同名のカラムが複数ある場合は先頭のものを返す。
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Has はカラムが存在するかを返す。
func (t *Table) Has(column string) bool {
	return t.Index(column) >= 0
}

// Require は全カラムが存在することを検証する。
// 欠けている場合は最初に見つかったカラム名とsourceを含むSCHEMA_VIOLATIONを返す。
func (t *Table) Require(source string, columns ...string) error {
	for _, c := range columns {
		if !t.Has(c) {
			return model.NewSchemaViolationError(c, source)
		}
	}
	return nil
}

// Append は行を追加する。セル数がカラム数と異なる場合は切り詰めまたは空文字列で補う。
func (t *Table) Append(cells ...string) {
	row := make([]string, len(t.Columns))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// Cell は指定行・カラムの値を返す。範囲外の場合は空文字列。
func (t *Table) Cell(row int, column string) string {
	i := t.Index(column)
	if i < 0 || row < 0 || row >= len(t.Rows) {
		return ""
	}
	return cellAt(t.Rows[row], i)
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// normalize は全行の長さをカラム数に揃える。
func (t *Table) normalize() {
	for i, row := range t.Rows {
		if len(row) == len(t.Columns) {
			continue
		}
		fixed := make([]string, len(t.Columns))
		copy(fixed, row)
		t.Rows[i] = fixed
	}
}
