package sheetsync

import (
	"fmt"
	"sort"
)

// RowUpdate is an existing sink row to be rewritten from a record
type RowUpdate struct {
	Row    int
	ID     string
	Record *Record
}

// Plan is the set of sink mutations computed by one reconciliation pass
type Plan struct {
	Header      []string    // 書き込み時のカラム順
	WriteHeader bool        // シートが空のためヘッダー行を先に書く
	Inserts     []*Record   // 新規レコード (出現順)
	Updates     []RowUpdate // 既存行の更新
	Deletes     []int       // 削除する行番号 (降順)
	Complete    bool        // ソース全体を最後まで取得した
	Skipped     int         // IDのないレコード
	Filtered    int         // フィルタで除外されたレコード
	Unchanged   int         // 変更のない既存レコード
	Duplicates  int         // シート上の重複行
}

// Empty reports whether applying the plan would change nothing
func (p *Plan) Empty() bool {
	return len(p.Inserts) == 0 && len(p.Updates) == 0 && len(p.Deletes) == 0 &&
		!(p.WriteHeader && len(p.Header) > 0)
}

// sortDeletes orders row indices descending so earlier deletions never
// shift rows that are still to be deleted
func (p *Plan) sortDeletes() {
	sort.Sort(sort.Reverse(sort.IntSlice(p.Deletes)))
}

func (p *Plan) String() string {
	return fmt.Sprintf("insert=%d update=%d delete=%d unchanged=%d skipped=%d filtered=%d complete=%t",
		len(p.Inserts), len(p.Updates), len(p.Deletes), p.Unchanged, p.Skipped, p.Filtered, p.Complete)
}
