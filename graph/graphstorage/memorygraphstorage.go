/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package graphstorage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/graph/util"
	"devt.de/krotik/gripdb/metrics"
	"github.com/google/btree"
)

/*
Degree of the B-trees which hold the graph data
*/
const btreeDegree = 32

/*
Number of elements which are read from a tree in one go while the read
lock is held
*/
const scanBatchSize = 100

/*
Separator for composite tree keys
*/
const keySep = "\x00"

/*
keyedItem is an item in a B-tree which is ordered by a string key.
*/
type keyedItem struct {
	key string        // Key of the item
	el  *data.Element // Element which is referenced by the item
}

/*
Less determines the order of items in a tree.
*/
func (ki *keyedItem) Less(than btree.Item) bool {
	return ki.key < than.(*keyedItem).key
}

/*
MemoryGraphStorage data structure. All data is kept in B-trees:

	vertices   gid -> vertex
	edges      gid -> edge
	out        vertex gid + edge gid -> edge
	in         vertex gid + edge gid -> edge
	index      label + field + value + vertex gid -> vertex
*/
type MemoryGraphStorage struct {
	name     string                // Name of the graph
	vertices *btree.BTree          // Vertices by gid
	edges    *btree.BTree          // Edges by gid
	out      *btree.BTree          // Outgoing adjacency
	in       *btree.BTree          // Incoming adjacency
	index    *btree.BTree          // Index entries
	indices  map[IndexID]bool      // Declared indices
	lock     *sync.RWMutex         // Lock for all trees
	vscanned uint64                // Counter for scanned vertices
	escanned uint64                // Counter for scanned edges
	failures int32                 // Number of transient failures to simulate
	closed   bool                  // Flag if the storage was closed
	labels   map[string]int        // Vertex label counts
	elabels  map[string]int        // Edge label counts
	counters *prometheusCounterSet // Exported counters
}

type prometheusCounterSet struct {
	vertices func(float64)
	edges    func(float64)
}

/*
NewMemoryGraphStorage creates a new MemoryGraphStorage instance.
*/
func NewMemoryGraphStorage(name string) *MemoryGraphStorage {
	vc := metrics.VerticesScanned.WithLabelValues(name)
	ec := metrics.EdgesScanned.WithLabelValues(name)

	return &MemoryGraphStorage{
		name:     name,
		vertices: btree.New(btreeDegree),
		edges:    btree.New(btreeDegree),
		out:      btree.New(btreeDegree),
		in:       btree.New(btreeDegree),
		index:    btree.New(btreeDegree),
		indices:  make(map[IndexID]bool),
		lock:     &sync.RWMutex{},
		labels:   make(map[string]int),
		elabels:  make(map[string]int),
		counters: &prometheusCounterSet{vc.Add, ec.Add},
	}
}

/*
Name returns the name of the graph which is stored.
*/
func (mgs *MemoryGraphStorage) Name() string {
	return mgs.name
}

/*
ReadOnly returns false as the memory storage is always writable.
*/
func (mgs *MemoryGraphStorage) ReadOnly() bool {
	return false
}

/*
InjectTransientErrors lets the next n scans fail with a transient error.
*/
func (mgs *MemoryGraphStorage) InjectTransientErrors(n int) {
	atomic.StoreInt32(&mgs.failures, int32(n))
}

/*
transientError returns a transient error if one should be simulated.
*/
func (mgs *MemoryGraphStorage) transientError() error {
	for {
		n := atomic.LoadInt32(&mgs.failures)
		if n <= 0 {
			return nil
		}
		if atomic.CompareAndSwapInt32(&mgs.failures, n, n-1) {
			return util.NewGraphError(util.ErrUnavailable,
				fmt.Sprintf("Storage %v is temporarily unavailable", mgs.name))
		}
	}
}

/*
countVertex increments the scanned vertices counter.
*/
func (mgs *MemoryGraphStorage) countVertex() {
	atomic.AddUint64(&mgs.vscanned, 1)
	mgs.counters.vertices(1)
}

/*
countEdge increments the scanned edges counter.
*/
func (mgs *MemoryGraphStorage) countEdge() {
	atomic.AddUint64(&mgs.escanned, 1)
	mgs.counters.edges(1)
}

/*
Stats returns the scan counters of this storage.
*/
func (mgs *MemoryGraphStorage) Stats() Stats {
	return Stats{
		VerticesScanned: atomic.LoadUint64(&mgs.vscanned),
		EdgesScanned:    atomic.LoadUint64(&mgs.escanned),
	}
}

/*
ResetStats resets the scan counters.
*/
func (mgs *MemoryGraphStorage) ResetStats() {
	atomic.StoreUint64(&mgs.vscanned, 0)
	atomic.StoreUint64(&mgs.escanned, 0)
}

/*
GetVertex returns a vertex by its gid.
*/
func (mgs *MemoryGraphStorage) GetVertex(ctx context.Context, gid string) (*data.Element, error) {
	return mgs.get(ctx, mgs.vertices, gid, mgs.countVertex, "Vertex")
}

/*
GetEdge returns an edge by its gid.
*/
func (mgs *MemoryGraphStorage) GetEdge(ctx context.Context, gid string) (*data.Element, error) {
	return mgs.get(ctx, mgs.edges, gid, mgs.countEdge, "Edge")
}

/*
get looks up an element in a tree.
*/
func (mgs *MemoryGraphStorage) get(ctx context.Context, tree *btree.BTree, gid string,
	count func(), kind string) (*data.Element, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := mgs.transientError(); err != nil {
		return nil, err
	}

	mgs.lock.RLock()
	item := tree.Get(&keyedItem{key: gid})
	mgs.lock.RUnlock()

	if item == nil {
		return nil, util.NewGraphError(util.ErrNotFound, fmt.Sprintf("%v %v not found", kind, gid))
	}

	count()

	return item.(*keyedItem).el, nil
}

/*
Vertices iterates over all vertices.
*/
func (mgs *MemoryGraphStorage) Vertices(ctx context.Context) Iterator {
	return mgs.scan(ctx, mgs.vertices, "", nil, mgs.countVertex)
}

/*
Edges iterates over all edges.
*/
func (mgs *MemoryGraphStorage) Edges(ctx context.Context) Iterator {
	return mgs.scan(ctx, mgs.edges, "", nil, mgs.countEdge)
}

/*
OutEdges iterates over all outgoing edges of a vertex.
*/
func (mgs *MemoryGraphStorage) OutEdges(ctx context.Context, gid string, labels []string) Iterator {
	return mgs.scan(ctx, mgs.out, gid+keySep, labelFilter(labels), mgs.countEdge)
}

/*
InEdges iterates over all incoming edges of a vertex.
*/
func (mgs *MemoryGraphStorage) InEdges(ctx context.Context, gid string, labels []string) Iterator {
	return mgs.scan(ctx, mgs.in, gid+keySep, labelFilter(labels), mgs.countEdge)
}

/*
IndexLookup iterates over all vertices of a label whose indexed field equals
a given value.
*/
func (mgs *MemoryGraphStorage) IndexLookup(ctx context.Context, label string, field string,
	value interface{}) Iterator {

	field = NormalizeField(field)

	if !mgs.HasIndex(label, field) {
		return NewErrorIterator(util.NewGraphError(util.ErrNotFound,
			fmt.Sprintf("No index for label %v and field %v", label, field)))
	}

	vkey, ok := data.IndexKey(value)
	if !ok {
		return NewSliceIterator(nil)
	}

	return mgs.scan(ctx, mgs.index, indexPrefix(label, field)+vkey+keySep, nil, mgs.countVertex)
}

/*
labelFilter creates a filter function for a list of labels.
*/
func labelFilter(labels []string) func(*data.Element) bool {
	if len(labels) == 0 {
		return nil
	}
	return func(el *data.Element) bool {
		for _, l := range labels {
			if el.Label == l {
				return true
			}
		}
		return false
	}
}

/*
scan creates an iterator over all items of a tree with a given key prefix.
*/
func (mgs *MemoryGraphStorage) scan(ctx context.Context, tree *btree.BTree, prefix string,
	filter func(*data.Element) bool, count func()) Iterator {

	if err := mgs.transientError(); err != nil {
		return NewErrorIterator(err)
	}

	return &treeIterator{
		ctx:    ctx,
		mgs:    mgs,
		tree:   tree,
		prefix: prefix,
		last:   "",
		filter: filter,
		count:  count,
		pos:    -1,
	}
}

/*
treeIterator iterates over a B-tree in batches. The read lock is only held
while a batch is fetched.
*/
type treeIterator struct {
	ctx    context.Context
	mgs    *MemoryGraphStorage
	tree   *btree.BTree
	prefix string
	last   string
	filter func(*data.Element) bool
	count  func()
	batch  []*keyedItem
	pos    int
	done   bool
	err    error
}

/*
fetch reads the next batch of items from the tree.
*/
func (ti *treeIterator) fetch() {
	ti.batch = ti.batch[:0]
	ti.pos = -1

	start := ti.prefix
	if ti.last != "" {
		start = ti.last + keySep
	}

	ti.mgs.lock.RLock()
	ti.tree.AscendGreaterOrEqual(&keyedItem{key: start}, func(i btree.Item) bool {
		item := i.(*keyedItem)

		if !strings.HasPrefix(item.key, ti.prefix) {
			ti.done = true
			return false
		}

		ti.last = item.key

		if ti.filter == nil || ti.filter(item.el) {
			ti.batch = append(ti.batch, item)
		}

		return len(ti.batch) < scanBatchSize
	})
	ti.mgs.lock.RUnlock()

	if len(ti.batch) < scanBatchSize {
		ti.done = true
	}
}

/*
Next advances the iterator.
*/
func (ti *treeIterator) Next() bool {
	if ti.err != nil {
		return false
	}

	if err := ti.ctx.Err(); err != nil {
		ti.err = err
		return false
	}

	ti.pos++

	if ti.pos >= len(ti.batch) {
		if ti.done {
			return false
		}

		ti.fetch()
		ti.pos++

		if ti.pos >= len(ti.batch) {
			return false
		}
	}

	ti.count()

	return true
}

/*
Element returns the current element.
*/
func (ti *treeIterator) Element() *data.Element {
	return ti.batch[ti.pos].el
}

/*
Err returns the error which stopped the iteration.
*/
func (ti *treeIterator) Err() error {
	return ti.err
}

/*
Close releases all resources of the iterator.
*/
func (ti *treeIterator) Close() {
	ti.done = true
	ti.batch = nil
	ti.pos = 0
}

/*
indexPrefix returns the key prefix of an index.
*/
func indexPrefix(label string, field string) string {
	return label + keySep + field + keySep
}

/*
HasIndex checks if an index exists.
*/
func (mgs *MemoryGraphStorage) HasIndex(label string, field string) bool {
	mgs.lock.RLock()
	defer mgs.lock.RUnlock()

	return mgs.indices[IndexID{label, NormalizeField(field)}]
}

/*
AddIndex adds an index for a vertex label and field. Existing vertices are
indexed immediately.
*/
func (mgs *MemoryGraphStorage) AddIndex(label string, field string) error {
	field = NormalizeField(field)

	if label == "" || field == "" {
		return util.NewGraphError(util.ErrInvalidArgument, "Index needs a label and a field")
	}

	mgs.lock.Lock()
	defer mgs.lock.Unlock()

	id := IndexID{label, field}

	if mgs.indices[id] {
		return nil
	}

	mgs.indices[id] = true

	mgs.vertices.Ascend(func(i btree.Item) bool {
		el := i.(*keyedItem).el
		if el.Label == label {
			mgs.indexVertex(id, el)
		}
		return true
	})

	return nil
}

/*
DeleteIndex removes an index.
*/
func (mgs *MemoryGraphStorage) DeleteIndex(label string, field string) error {
	field = NormalizeField(field)

	mgs.lock.Lock()
	defer mgs.lock.Unlock()

	id := IndexID{label, field}

	if !mgs.indices[id] {
		return util.NewGraphError(util.ErrNotFound,
			fmt.Sprintf("No index for label %v and field %v", label, field))
	}

	delete(mgs.indices, id)

	var remove []btree.Item
	prefix := indexPrefix(label, field)

	mgs.index.AscendGreaterOrEqual(&keyedItem{key: prefix}, func(i btree.Item) bool {
		if !strings.HasPrefix(i.(*keyedItem).key, prefix) {
			return false
		}
		remove = append(remove, i)
		return true
	})

	for _, i := range remove {
		mgs.index.Delete(i)
	}

	return nil
}

/*
Indices returns all indices of the graph.
*/
func (mgs *MemoryGraphStorage) Indices() []IndexID {
	mgs.lock.RLock()
	defer mgs.lock.RUnlock()

	ret := make([]IndexID, 0, len(mgs.indices))
	for id := range mgs.indices {
		ret = append(ret, id)
	}

	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Label == ret[j].Label {
			return ret[i].Field < ret[j].Field
		}
		return ret[i].Label < ret[j].Label
	})

	return ret
}

/*
indexVertex adds the index entry of a vertex. The write lock must be held.
*/
func (mgs *MemoryGraphStorage) indexVertex(id IndexID, el *data.Element) {
	if val, ok := data.FieldValue(el.Data, id.Field); ok {
		if vkey, ok := data.IndexKey(val); ok {
			mgs.index.ReplaceOrInsert(&keyedItem{
				key: indexPrefix(id.Label, id.Field) + vkey + keySep + el.Gid,
				el:  el,
			})
		}
	}
}

/*
unindexVertex removes the index entries of a vertex. The write lock must be held.
*/
func (mgs *MemoryGraphStorage) unindexVertex(el *data.Element) {
	for id := range mgs.indices {
		if id.Label != el.Label {
			continue
		}
		if val, ok := data.FieldValue(el.Data, id.Field); ok {
			if vkey, ok := data.IndexKey(val); ok {
				mgs.index.Delete(&keyedItem{key: indexPrefix(id.Label, id.Field) + vkey + keySep + el.Gid})
			}
		}
	}
}

/*
AddVertices stores vertices. An existing vertex with the same gid is replaced.
*/
func (mgs *MemoryGraphStorage) AddVertices(vertices []*data.Element) error {
	for _, v := range vertices {
		if v.Gid == "" {
			return util.NewGraphError(util.ErrInvalidArgument, "Vertex gid must not be empty")
		}
	}

	mgs.lock.Lock()
	defer mgs.lock.Unlock()

	for _, v := range vertices {
		v = data.NewVertexElement(v.Gid, v.Label, v.Data)

		if old := mgs.vertices.ReplaceOrInsert(&keyedItem{v.Gid, v}); old != nil {
			oldEl := old.(*keyedItem).el
			mgs.unindexVertex(oldEl)
			decLabel(mgs.labels, oldEl.Label)
		}

		mgs.labels[v.Label]++

		for id := range mgs.indices {
			if id.Label == v.Label {
				mgs.indexVertex(id, v)
			}
		}
	}

	return nil
}

/*
AddEdges stores edges. An existing edge with the same gid is replaced.
*/
func (mgs *MemoryGraphStorage) AddEdges(edges []*data.Element) error {
	for _, e := range edges {
		if e.Gid == "" || e.From == "" || e.To == "" {
			return util.NewGraphError(util.ErrInvalidArgument, "Edge gid, from and to must not be empty")
		}
	}

	mgs.lock.Lock()
	defer mgs.lock.Unlock()

	for _, e := range edges {
		e = data.NewEdgeElement(e.Gid, e.Label, e.From, e.To, e.Data)

		if old := mgs.edges.ReplaceOrInsert(&keyedItem{e.Gid, e}); old != nil {
			mgs.removeAdjacency(old.(*keyedItem).el)
		}

		mgs.elabels[e.Label]++
		mgs.out.ReplaceOrInsert(&keyedItem{e.From + keySep + e.Gid, e})
		mgs.in.ReplaceOrInsert(&keyedItem{e.To + keySep + e.Gid, e})
	}

	return nil
}

/*
removeAdjacency removes the adjacency entries of an edge. The write lock must be held.
*/
func (mgs *MemoryGraphStorage) removeAdjacency(e *data.Element) {
	decLabel(mgs.elabels, e.Label)
	mgs.out.Delete(&keyedItem{key: e.From + keySep + e.Gid})
	mgs.in.Delete(&keyedItem{key: e.To + keySep + e.Gid})
}

/*
DeleteVertex removes a vertex. Edges of the vertex are not touched.
*/
func (mgs *MemoryGraphStorage) DeleteVertex(gid string) error {
	mgs.lock.Lock()
	defer mgs.lock.Unlock()

	old := mgs.vertices.Delete(&keyedItem{key: gid})
	if old == nil {
		return util.NewGraphError(util.ErrNotFound, fmt.Sprintf("Vertex %v not found", gid))
	}

	el := old.(*keyedItem).el
	mgs.unindexVertex(el)
	decLabel(mgs.labels, el.Label)

	return nil
}

/*
DeleteEdge removes an edge.
*/
func (mgs *MemoryGraphStorage) DeleteEdge(gid string) error {
	mgs.lock.Lock()
	defer mgs.lock.Unlock()

	old := mgs.edges.Delete(&keyedItem{key: gid})
	if old == nil {
		return util.NewGraphError(util.ErrNotFound, fmt.Sprintf("Edge %v not found", gid))
	}

	mgs.removeAdjacency(old.(*keyedItem).el)

	return nil
}

/*
VertexLabels returns all vertex labels.
*/
func (mgs *MemoryGraphStorage) VertexLabels() []string {
	mgs.lock.RLock()
	defer mgs.lock.RUnlock()

	return sortedKeys(mgs.labels)
}

/*
EdgeLabels returns all edge labels.
*/
func (mgs *MemoryGraphStorage) EdgeLabels() []string {
	mgs.lock.RLock()
	defer mgs.lock.RUnlock()

	return sortedKeys(mgs.elabels)
}

/*
Close closes the storage.
*/
func (mgs *MemoryGraphStorage) Close() error {
	mgs.lock.Lock()
	defer mgs.lock.Unlock()

	mgs.closed = true
	mgs.vertices.Clear(false)
	mgs.edges.Clear(false)
	mgs.out.Clear(false)
	mgs.in.Clear(false)
	mgs.index.Clear(false)

	return nil
}

// Helper functions
// ================

/*
decLabel decrements a label counter and removes labels which are no longer used.
*/
func decLabel(labels map[string]int, label string) {
	if labels[label]--; labels[label] <= 0 {
		delete(labels, label)
	}
}

/*
sortedKeys returns the sorted keys of a counter map.
*/
func sortedKeys(m map[string]int) []string {
	ret := make([]string, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}
