package report

import (
	"github.com/hitoshi/feedaudit/internal/model"
	"github.com/hitoshi/feedaudit/internal/table"
)

// 結合時に重複したカラム名へ付与する接尾辞
const (
	suffixLeft  = "_x"
	suffixRight = "_y"
)

// Source は結合の入力となる表とその名前（ファイル名など）。
type Source struct {
	Name  string
	Table *table.Table
	Key   string
}

// Join は2つの表をキーカラムの完全一致で内部結合する。
//
// 出力は左の行順、同一キー内では右の行順。右に複数一致する左の行は展開される。
// キーカラム名が異なる場合は右のキーカラムを削除し、同名の場合は1つにまとめる。
// キー以外で名前が重複したカラムには左に _x、右に _y を付ける。
func Join(left, right Source) (*table.Table, error) {
	if err := left.Table.Require(left.Name, left.Key); err != nil {
		return nil, err
	}
	if err := right.Table.Require(right.Name, right.Key); err != nil {
		return nil, err
	}

	lk := left.Table.Index(left.Key)
	rk := right.Table.Index(right.Key)

	// 右側で出力するカラム（キー以外）
	var rightCols []int
	for i := range right.Table.Columns {
		if i != rk {
			rightCols = append(rightCols, i)
		}
	}

	leftNames := make(map[string]bool, len(left.Table.Columns))
	for i, c := range left.Table.Columns {
		if i != lk {
			leftNames[c] = true
		}
	}
	rightNames := make(map[string]bool, len(rightCols))
	for _, i := range rightCols {
		rightNames[right.Table.Columns[i]] = true
	}

	columns := make([]string, 0, len(left.Table.Columns)+len(rightCols))
	for i, c := range left.Table.Columns {
		if i != lk && rightNames[c] {
			c += suffixLeft
		}
		columns = append(columns, c)
	}
	for _, i := range rightCols {
		c := right.Table.Columns[i]
		if leftNames[c] || c == left.Key {
			c += suffixRight
		}
		columns = append(columns, c)
	}

	index := make(map[string][]int)
	for i, row := range right.Table.Rows {
		key := cell(row, rk)
		index[key] = append(index[key], i)
	}

	out := table.New(columns...)
	for _, lrow := range left.Table.Rows {
		matches := index[cell(lrow, lk)]
		for _, ri := range matches {
			rrow := right.Table.Rows[ri]
			cells := make([]string, 0, len(columns))
			for i := range left.Table.Columns {
				cells = append(cells, cell(lrow, i))
			}
			for _, i := range rightCols {
				cells = append(cells, cell(rrow, i))
			}
			out.Append(cells...)
		}
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// JoinOwnership はレポート行にフィードURLが一致するオーナー情報を付与する。
// 一致するグループがない行は結果に含めない。
func JoinOwnership(rows []model.ErrorReportRow, groups []model.OwnershipGroup) []model.JoinedReportRow {
	byURL := make(map[string][]model.OwnershipTuple, len(groups))
	for _, g := range groups {
		byURL[g.FeedURL] = append(byURL[g.FeedURL], g.Tuples...)
	}

	joined := make([]model.JoinedReportRow, 0, len(rows))
	for _, r := range rows {
		tuples, ok := byURL[r.FeedURL]
		if !ok {
			continue
		}
		joined = append(joined, model.JoinedReportRow{
			ErrorReportRow:    r,
			OwnerPlatformList: tuples,
		})
	}
	return joined
}
