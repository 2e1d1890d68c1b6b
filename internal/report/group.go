package report

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/hitoshi/feedaudit/internal/model"
	"github.com/hitoshi/feedaudit/internal/table"
)

// オーナー情報のカラム
const (
	ColumnFeedID            = "feed_id"
	ColumnOwnerFeedURL      = "feed_url"
	ColumnOwnerID           = "owner_id"
	ColumnPlatformID        = "platform_id"
	ColumnPlatformName      = "platform_name"
	ColumnOwnerPlatformList = "owner_platform_list"
)

// OwnershipColumns はグループ化前のオーナー情報に必要なカラム。
var OwnershipColumns = []string{
	ColumnFeedID,
	ColumnOwnerFeedURL,
	ColumnOwnerID,
	ColumnPlatformID,
	ColumnPlatformName,
}

// GroupedColumns はグループ化後の表のカラム。
var GroupedColumns = []string{ColumnOwnerFeedURL, ColumnOwnerPlatformList}

// ownershipColumnsFor はkeyをフィードURLのカラムとして使う場合の必須カラムを返す。
func ownershipColumnsFor(key string) []string {
	return []string{ColumnFeedID, key, ColumnOwnerID, ColumnPlatformID, ColumnPlatformName}
}

func keyOrDefault(key string) string {
	if key == "" {
		return ColumnOwnerFeedURL
	}
	return key
}

// GroupByFeedURL はオーナー情報の表を feed_url カラムでまとめる。
func GroupByFeedURL(t *table.Table, source string) ([]model.OwnershipGroup, error) {
	return GroupBy(t, source, ColumnOwnerFeedURL)
}

// GroupBy はオーナー情報の表をkeyカラムの値（フィードURL）ごとにまとめる。
// グループ内の順序は元の行順を保ち、グループはキーの昇順で返す。
// キーが空の行は空文字のグループにまとめる（昇順で先頭になる）。
func GroupBy(t *table.Table, source, key string) ([]model.OwnershipGroup, error) {
	key = keyOrDefault(key)
	if err := t.Require(source, ownershipColumnsFor(key)...); err != nil {
		return nil, err
	}

	var groups []model.OwnershipGroup
	index := make(map[string]int)
	for i := range t.Rows {
		feedURL := t.Cell(i, key)
		tuple := model.OwnershipTuple{
			FeedRecordID: t.Cell(i, ColumnFeedID),
			OwnerID:      t.Cell(i, ColumnOwnerID),
			PlatformID:   t.Cell(i, ColumnPlatformID),
			PlatformName: t.Cell(i, ColumnPlatformName),
		}

		gi, ok := index[feedURL]
		if !ok {
			gi = len(groups)
			index[feedURL] = gi
			groups = append(groups, model.OwnershipGroup{FeedURL: feedURL})
		}
		groups[gi].Tuples = append(groups[gi].Tuples, tuple)
	}

	slices.SortFunc(groups, func(a, b model.OwnershipGroup) int {
		return strings.Compare(a.FeedURL, b.FeedURL)
	})
	return groups, nil
}

// GroupTable はグループを feed_url, owner_platform_list の表に変換する。
// owner_platform_list は4要素の文字列配列のJSON配列。
func GroupTable(groups []model.OwnershipGroup) (*table.Table, error) {
	return groupTable(groups, ColumnOwnerFeedURL)
}

func groupTable(groups []model.OwnershipGroup, key string) (*table.Table, error) {
	t := table.New(key, ColumnOwnerPlatformList)
	for _, g := range groups {
		list, err := EncodeTuples(g.Tuples)
		if err != nil {
			return nil, err
		}
		t.Append(g.FeedURL, list)
	}
	return t, nil
}

// EncodeTuples はタプルのリストをJSON文字列にする。
func EncodeTuples(tuples []model.OwnershipTuple) (string, error) {
	values := make([][4]string, len(tuples))
	for i, tp := range tuples {
		values[i] = [4]string{tp.FeedRecordID, tp.OwnerID, tp.PlatformID, tp.PlatformName}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("オーナー情報のエンコードに失敗しました: %w", err)
	}
	return string(b), nil
}

// DecodeTuples はEncodeTuplesで作ったJSON文字列をタプルのリストに戻す。
func DecodeTuples(s string) ([]model.OwnershipTuple, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var values [][]string
	if err := json.Unmarshal([]byte(s), &values); err != nil {
		return nil, fmt.Errorf("オーナー情報のデコードに失敗しました: %w", err)
	}
	tuples := make([]model.OwnershipTuple, len(values))
	for i, v := range values {
		if len(v) != 4 {
			return nil, fmt.Errorf("オーナー情報の要素数が不正です: %d", len(v))
		}
		tuples[i] = model.OwnershipTuple{
			FeedRecordID: v[0],
			OwnerID:      v[1],
			PlatformID:   v[2],
			PlatformName: v[3],
		}
	}
	return tuples, nil
}

// ParseGroupTable はGroupTableで作った表をグループのリストに戻す。
func ParseGroupTable(t *table.Table, source string) ([]model.OwnershipGroup, error) {
	return parseGroupTable(t, source, ColumnOwnerFeedURL)
}

func parseGroupTable(t *table.Table, source, key string) ([]model.OwnershipGroup, error) {
	if err := t.Require(source, key, ColumnOwnerPlatformList); err != nil {
		return nil, err
	}
	groups := make([]model.OwnershipGroup, 0, t.Len())
	for i := range t.Rows {
		tuples, err := DecodeTuples(t.Cell(i, ColumnOwnerPlatformList))
		if err != nil {
			return nil, fmt.Errorf("%s の%d行目: %w", source, i+2, err)
		}
		groups = append(groups, model.OwnershipGroup{
			FeedURL: t.Cell(i, key),
			Tuples:  tuples,
		})
	}
	return groups, nil
}

// LoadOwnership はオーナー情報の表をグループのリストとして読み込む。
// グループ化済み（owner_platform_list を持つ）表とグループ化前の表の両方を受け付ける。
// keyはフィードURLを持つカラム名で、空の場合は feed_url を使う。
func LoadOwnership(t *table.Table, source, key string) ([]model.OwnershipGroup, error) {
	key = keyOrDefault(key)
	if t.Has(ColumnOwnerPlatformList) {
		return parseGroupTable(t, source, key)
	}
	return GroupBy(t, source, key)
}

// OwnershipTable はオーナー情報の表をグループ化済みの表に揃える。
// グループ化前の表はkeyカラムでまとめ、結果のキーカラム名もkeyのまま残す。
func OwnershipTable(t *table.Table, source, key string) (*table.Table, error) {
	key = keyOrDefault(key)
	if t.Has(ColumnOwnerPlatformList) {
		if err := t.Require(source, key, ColumnOwnerPlatformList); err != nil {
			return nil, err
		}
		return t, nil
	}
	groups, err := GroupBy(t, source, key)
	if err != nil {
		return nil, err
	}
	return groupTable(groups, key)
}
