/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package graphstorage contains the storage contract of a graph and a memory
based implementation.

The query engine sees a graph only through the Storage interface. A storage
must provide stable scan orders: two scans over an unchanged graph must
return the same elements in the same order.
*/
package graphstorage

import (
	"context"

	"devt.de/krotik/gripdb/graph/data"
)

/*
Iterator iterates over a stream of graph elements. An iterator must be closed
once it is no longer needed.
*/
type Iterator interface {

	/*
		Next advances the iterator. Returns false if there are no more elements
		or if an error occurred.
	*/
	Next() bool

	/*
		Element returns the current element.
	*/
	Element() *data.Element

	/*
		Err returns the error which stopped the iteration.
	*/
	Err() error

	/*
		Close releases all resources of the iterator.
	*/
	Close()
}

/*
IndexID identifies an index of a graph.
*/
type IndexID struct {
	Label string `json:"label"`
	Field string `json:"field"`
}

/*
Stats contains scan counters of a storage.
*/
type Stats struct {
	VerticesScanned uint64 `json:"verticesScanned"`
	EdgesScanned    uint64 `json:"edgesScanned"`
}

/*
Storage interface models the storage backend of a single graph.
*/
type Storage interface {

	/*
		Name returns the name of the graph which is stored.
	*/
	Name() string

	/*
		ReadOnly returns true if the storage rejects all writes.
	*/
	ReadOnly() bool

	/*
		GetVertex returns a vertex by its gid.
	*/
	GetVertex(ctx context.Context, gid string) (*data.Element, error)

	/*
		GetEdge returns an edge by its gid.
	*/
	GetEdge(ctx context.Context, gid string) (*data.Element, error)

	/*
		Vertices iterates over all vertices.
	*/
	Vertices(ctx context.Context) Iterator

	/*
		Edges iterates over all edges.
	*/
	Edges(ctx context.Context) Iterator

	/*
		OutEdges iterates over all outgoing edges of a vertex. An empty label
		list matches all edges.
	*/
	OutEdges(ctx context.Context, gid string, labels []string) Iterator

	/*
		InEdges iterates over all incoming edges of a vertex. An empty label
		list matches all edges.
	*/
	InEdges(ctx context.Context, gid string, labels []string) Iterator

	/*
		IndexLookup iterates over all vertices of a label whose indexed field
		equals a given value.
	*/
	IndexLookup(ctx context.Context, label string, field string, value interface{}) Iterator

	/*
		HasIndex checks if an index exists.
	*/
	HasIndex(label string, field string) bool

	/*
		AddIndex adds an index for a vertex label and field.
	*/
	AddIndex(label string, field string) error

	/*
		DeleteIndex removes an index.
	*/
	DeleteIndex(label string, field string) error

	/*
		Indices returns all indices of the graph.
	*/
	Indices() []IndexID

	/*
		AddVertices stores vertices. An existing vertex with the same gid is
		replaced.
	*/
	AddVertices(vertices []*data.Element) error

	/*
		AddEdges stores edges. An existing edge with the same gid is replaced.
	*/
	AddEdges(edges []*data.Element) error

	/*
		DeleteVertex removes a vertex.
	*/
	DeleteVertex(gid string) error

	/*
		DeleteEdge removes an edge.
	*/
	DeleteEdge(gid string) error

	/*
		VertexLabels returns all vertex labels.
	*/
	VertexLabels() []string

	/*
		EdgeLabels returns all edge labels.
	*/
	EdgeLabels() []string

	/*
		Stats returns the scan counters of this storage.
	*/
	Stats() Stats

	/*
		Close closes the storage.
	*/
	Close() error
}

/*
NormalizeField removes selector prefixes from an index field name.
*/
func NormalizeField(field string) string {
	for _, prefix := range []string{"$.", "data.", "_data."} {
		if len(field) > len(prefix) && field[:len(prefix)] == prefix {
			field = field[len(prefix):]
		}
	}
	return field
}

/*
Collect reads all elements of an iterator and closes it.
*/
func Collect(it Iterator) ([]*data.Element, error) {
	var ret []*data.Element

	defer it.Close()

	for it.Next() {
		ret = append(ret, it.Element())
	}

	return ret, it.Err()
}

/*
SliceIterator is an iterator over a fixed list of elements.
*/
type SliceIterator struct {
	list []*data.Element
	pos  int
	err  error
}

/*
NewSliceIterator creates a new iterator over a list of elements.
*/
func NewSliceIterator(list []*data.Element) *SliceIterator {
	return &SliceIterator{list, -1, nil}
}

/*
NewErrorIterator creates an iterator which fails with a given error.
*/
func NewErrorIterator(err error) *SliceIterator {
	return &SliceIterator{nil, -1, err}
}

/*
Next advances the iterator.
*/
func (si *SliceIterator) Next() bool {
	if si.err != nil {
		return false
	}
	si.pos++
	return si.pos < len(si.list)
}

/*
Element returns the current element.
*/
func (si *SliceIterator) Element() *data.Element {
	return si.list[si.pos]
}

/*
Err returns the error which stopped the iteration.
*/
func (si *SliceIterator) Err() error {
	return si.err
}

/*
Close releases all resources of the iterator.
*/
func (si *SliceIterator) Close() {
	si.pos = len(si.list)
}
