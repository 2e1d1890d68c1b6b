package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hitoshi/feedaudit/internal/model"
)

// ファイル形式
const (
	FormatXLSX = ".xlsx"
	FormatCSV  = ".csv"
)

// DefaultSheet は書き込み時にシート名が未指定の場合に使うシート名。
const DefaultSheet = "Sheet1"

// formatOf は拡張子からファイル形式を判定する。
func formatOf(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case FormatXLSX, FormatCSV:
		return ext, nil
	default:
		return "", model.NewUnsupportedFormatError(path)
	}
}

// Read はファイルを読み込み、1行目をヘッダーとしたTableを返す。
// xlsxの場合はsheetを読み込む。sheetが空の場合は先頭のシートを使う。
// ファイルが存在しない場合はSOURCE_NOT_FOUNDを返す。
func Read(path, sheet string) (*Table, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.NewSourceNotFoundError(path)
		}
		return nil, fmt.Errorf("ファイルの確認に失敗しました (%s): %w", path, err)
	}

	var rows [][]string
	switch format {
	case FormatXLSX:
		rows, err = readXLSX(path, sheet)
	case FormatCSV:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

func fromRows(rows [][]string) *Table {
	t := &Table{}
	if len(rows) == 0 {
		return t
	}
	t.Columns = make([]string, len(rows[0]))
	for i, c := range rows[0] {
		t.Columns[i] = strings.TrimSpace(c)
	}
	t.Rows = rows[1:]
	t.normalize()
	return t
}

func readXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("xlsxファイルのオープンに失敗しました (%s): %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, model.NewSourceNotFoundError(fmt.Sprintf("%s (sheet: %s)", path, sheet))
	}

	// 数値セルを表示形式で丸めずにそのまま読む
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("シートの読み込みに失敗しました (%s, %s): %w", path, sheet, err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvファイルのオープンに失敗しました (%s): %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csvファイルの読み込みに失敗しました (%s): %w", path, err)
	}
	// UTF-8 BOM付きのヘッダーに対応する
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

// Write はTableをファイルに書き込む。形式は拡張子で決まる。
// xlsxの場合はsheetに書き込む。sheetが空の場合はDefaultSheetを使う。
func Write(path, sheet string, t *Table) error {
	format, err := formatOf(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("出力ディレクトリの作成に失敗しました (%s): %w", dir, err)
		}
	}

	switch format {
	case FormatXLSX:
		if sheet == "" {
			sheet = DefaultSheet
		}
		return writeXLSX(path, sheet, t)
	default:
		return writeCSV(path, t)
	}
}

func writeXLSX(path, sheet string, t *Table) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if sheet != DefaultSheet {
		if err := f.SetSheetName(DefaultSheet, sheet); err != nil {
			return fmt.Errorf("シート名の設定に失敗しました: %w", err)
		}
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("ストリームライターの作成に失敗しました: %w", err)
	}

	header := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("ヘッダー行の書き込みに失敗しました: %w", err)
	}

	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(t.Columns))
		for j := range t.Columns {
			values[j] = cellValue(cellAt(row, j))
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("%d行目の書き込みに失敗しました: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("シートの書き込みに失敗しました: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsxファイルの保存に失敗しました (%s): %w", path, err)
	}
	return nil
}

// maxNumericDigits はxlsxの数値セルで桁落ちせずに保持できる整数の桁数。
const maxNumericDigits = 15

// cellValue は整数として表せるセルを数値として書き込むための値に変換する。
// 符号付き、先頭が0、15桁を超える値（IDや電話番号など）は文字列のまま残す。
func cellValue(s string) interface{} {
	if s == "" || len(s) > maxNumericDigits || (len(s) > 1 && s[0] == '0') {
		return s
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return s
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return s
	}
	return n
}

func writeCSV(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csvファイルの作成に失敗しました (%s): %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		return fmt.Errorf("ヘッダー行の書き込みに失敗しました: %w", err)
	}
	for _, row := range t.Rows {
		record := make([]string, len(t.Columns))
		copy(record, row)
		if err := w.Write(record); err != nil {
			return fmt.Errorf("csv行の書き込みに失敗しました: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csvファイルの書き込みに失敗しました (%s): %w", path, err)
	}
	return f.Close()
}
