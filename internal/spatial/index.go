package spatial

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
)

// Index is an R-tree of bounding boxes keyed by row id. It is the in-memory
// counterpart of the GiST index on aois.geom and is not safe for concurrent
// use; callers hold their own lock.
type Index struct {
	tree rtree.RTreeG[int64]
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{}
}

// Insert adds id with bounding box b.
func (ix *Index) Insert(id int64, b orb.Bound) {
	ix.tree.Insert(b.Min, b.Max, id)
}

// Delete removes id. b must be the box it was inserted with.
func (ix *Index) Delete(id int64, b orb.Bound) {
	ix.tree.Delete(b.Min, b.Max, id)
}

// Search returns the ids whose boxes intersect b, in ascending order.
func (ix *Index) Search(b orb.Bound) []int64 {
	var ids []int64
	ix.tree.Search(b.Min, b.Max, func(_, _ [2]float64, id int64) bool {
		ids = append(ids, id)
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	return ix.tree.Len()
}
