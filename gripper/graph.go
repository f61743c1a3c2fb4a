/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package gripper

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"devt.de/krotik/common/datautil"
	"devt.de/krotik/common/errorutil"
	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/graph/graphstorage"
	"devt.de/krotik/gripdb/graph/util"
	"devt.de/krotik/gripdb/metrics"
	"github.com/oliveagle/jsonpath"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"
)

/*
DefaultCacheMaxAge is the default time in seconds collection information is
cached.
*/
const DefaultCacheMaxAge = 300

/*
vertexSource is a collection which provides vertices.
*/
type vertexSource struct {
	prefix string
	conf   VertexConfig
	client *Client
}

/*
edgeSource derives the edges of a vertex source. Incoming edges use a copy
of the outgoing edge source with swapped fields.
*/
type edgeSource struct {
	label     string
	from      *vertexSource
	to        *vertexSource
	fromField string
	toField   string
	table     *EdgeTableConfig
	client    *Client // Client of the edge table
	reverse   bool
}

/*
Graph is a read-only graph storage over a set of row sources.
*/
type Graph struct {
	name        string
	clients     map[string]*Client
	vertices    map[string]*vertexSource
	vertexOrder []string
	outEdges    map[string][]*edgeSource // Outgoing edge sources by vertex prefix
	inEdges     map[string][]*edgeSource // Incoming edge sources by vertex prefix
	cache       *datautil.MapCache       // Collection information
	vscanned    uint64
	escanned    uint64
}

/*
Open connects to all row sources of a mapping and creates a graph storage.
*/
func Open(ctx context.Context, name string, conf *Config, cacheMaxAge int64) (*Graph, error) {
	clients := make(map[string]*Client)

	for sname, sconf := range conf.Sources {
		c, err := Dial(sname, sconf.Host)
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, err
		}
		clients[sname] = c
	}

	gr, err := NewGraph(ctx, name, conf, clients, cacheMaxAge)
	if err != nil {
		for _, c := range clients {
			c.Close()
		}
	}

	return gr, err
}

/*
NewGraph creates a graph storage for a mapping using a set of connected
row sources. The mapping is checked against the collection information of
the sources. The graph owns the clients and closes them.
*/
func NewGraph(ctx context.Context, name string, conf *Config, clients map[string]*Client,
	cacheMaxAge int64) (*Graph, error) {

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	for sname := range conf.Sources {
		if _, ok := clients[sname]; !ok {
			return nil, fmt.Errorf("No connection to source: %v", sname)
		}
	}

	if cacheMaxAge <= 0 {
		cacheMaxAge = DefaultCacheMaxAge
	}

	gr := &Graph{
		name:     name,
		clients:  clients,
		vertices: make(map[string]*vertexSource),
		outEdges: make(map[string][]*edgeSource),
		inEdges:  make(map[string][]*edgeSource),
		cache:    datautil.NewMapCache(0, cacheMaxAge),
	}

	for prefix, v := range conf.Vertices {
		gr.vertices[prefix] = &vertexSource{prefix, v, clients[v.Source]}
		gr.vertexOrder = append(gr.vertexOrder, prefix)
	}
	sort.Strings(gr.vertexOrder)

	if err := gr.checkCollections(ctx, conf); err != nil {
		return nil, err
	}

	var edgeOrder []string
	for prefix := range conf.Edges {
		edgeOrder = append(edgeOrder, prefix)
	}
	sort.Strings(edgeOrder)

	for _, prefix := range edgeOrder {
		e := conf.Edges[prefix]

		out := &edgeSource{
			label: e.Label,
			from:  gr.vertices[e.FromVertex],
			to:    gr.vertices[e.ToVertex],
		}

		if e.EdgeTable != nil {
			table := *e.EdgeTable
			out.table = &table
			out.client = clients[table.Source]
		} else {
			out.fromField, out.toField = e.FieldToField.FromField, e.FieldToField.ToField
		}

		in := &edgeSource{
			label:     out.label,
			from:      out.to,
			to:        out.from,
			fromField: out.toField,
			toField:   out.fromField,
			client:    out.client,
			reverse:   true,
		}

		if out.table != nil {
			table := *out.table
			table.FromField, table.ToField = table.ToField, table.FromField
			in.table = &table
		}

		gr.outEdges[e.FromVertex] = append(gr.outEdges[e.FromVertex], out)
		gr.inEdges[e.ToVertex] = append(gr.inEdges[e.ToVertex], in)
	}

	logrus.WithFields(logrus.Fields{
		"graph":    name,
		"vertices": len(conf.Vertices),
		"edges":    len(conf.Edges),
	}).Info("Opened row source graph")

	return gr, nil
}

/*
checkCollections fetches the information of all mapped collections and
checks that all join fields can be searched.
*/
func (gr *Graph) checkCollections(ctx context.Context, conf *Config) error {
	type key struct{ source, collection string }

	infos := make(map[key]*CollectionInfo)

	for _, v := range conf.Vertices {
		infos[key{v.Source, v.Collection}] = nil
	}
	for _, e := range conf.Edges {
		if e.EdgeTable != nil {
			infos[key{e.EdgeTable.Source, e.EdgeTable.Collection}] = nil
		}
	}

	var keys []key
	for k := range infos {
		keys = append(keys, k)
	}

	results := make([]*CollectionInfo, len(keys))

	g, gctx := errgroup.WithContext(ctx)

	for i, k := range keys {
		i, k := i, k

		g.Go(func() error {
			info, err := gr.collectionInfo(gctx, gr.clients[k.source], k.collection)
			if err != nil {
				return fmt.Errorf("Unable to get collection information %v:%v: %v",
					k.source, k.collection, err)
			}
			results[i] = info
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for i, k := range keys {
		infos[k] = results[i]
	}

	searchable := func(k key, field string) error {
		for _, f := range infos[k].SearchFields {
			if f == field {
				return nil
			}
		}
		return fmt.Errorf("Field %v of collection %v:%v cannot be searched", field, k.source, k.collection)
	}

	for prefix, e := range conf.Edges {
		var err error

		if e.EdgeTable != nil {
			tk := key{e.EdgeTable.Source, e.EdgeTable.Collection}
			if err = searchable(tk, e.EdgeTable.FromField); err == nil {
				err = searchable(tk, e.EdgeTable.ToField)
			}
		} else {
			from, to := conf.Vertices[e.FromVertex], conf.Vertices[e.ToVertex]
			if err = searchable(key{from.Source, from.Collection}, e.FieldToField.FromField); err == nil {
				err = searchable(key{to.Source, to.Collection}, e.FieldToField.ToField)
			}
		}

		if err != nil {
			return fmt.Errorf("Edge %v: %v", prefix, err)
		}
	}

	return nil
}

/*
collectionInfo returns the (cached) information of a collection.
*/
func (gr *Graph) collectionInfo(ctx context.Context, c *Client, collection string) (*CollectionInfo, error) {
	k := c.Name() + "/" + collection

	if info, ok := gr.cache.Get(k); ok {
		metrics.CollectionInfoCacheHits.Inc()
		return info.(*CollectionInfo), nil
	}

	info, err := c.GetCollectionInfo(ctx, collection)
	if err == nil {
		gr.cache.Put(k, info)
	}

	return info, err
}

// Element construction
// ====================

var edgeGidPattern = regexp.MustCompile(`^\((.*)\)--(.*)->\((.*)\)$`)

/*
EdgeGid returns the gid of an edge between two vertices.
*/
func EdgeGid(from, label, to string) string {
	return fmt.Sprintf("(%v)--%v->(%v)", from, label, to)
}

/*
ParseEdgeGid splits an edge gid into its vertices and its label.
*/
func ParseEdgeGid(gid string) (from, label, to string, ok bool) {
	m := edgeGidPattern.FindStringSubmatch(gid)
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}

/*
lookupField extracts a join value from a row.
*/
func lookupField(row map[string]interface{}, path string) (string, bool) {
	v, err := jsonpath.JsonPathLookup(row, path)
	if err != nil || v == nil {
		return "", false
	}

	s, err := cast.ToStringE(v)

	return s, err == nil && s != ""
}

func (vs *vertexSource) vertex(r *Row) *data.Element {
	return data.NewVertexElement(vs.prefix+r.ID, vs.conf.Label, r.Data)
}

func (es *edgeSource) edge(from, to string, d map[string]interface{}) *data.Element {
	if es.reverse {
		from, to = to, from
	}
	return data.NewEdgeElement(EdgeGid(from, es.label, to), es.label, from, to, d)
}

/*
vertexSourceFor finds the vertex source of a vertex gid. The longest
matching prefix wins.
*/
func (gr *Graph) vertexSourceFor(gid string) (*vertexSource, string, bool) {
	var ret *vertexSource

	for _, prefix := range gr.vertexOrder {
		if strings.HasPrefix(gid, prefix) && (ret == nil || len(prefix) > len(ret.prefix)) {
			ret = gr.vertices[prefix]
		}
	}

	if ret == nil {
		return nil, "", false
	}

	return ret, gid[len(ret.prefix):], true
}

/*
row looks up a single row. Returns nil if the row does not exist.
*/
func (gr *Graph) row(ctx context.Context, vs *vertexSource, id string) (*Row, error) {
	rows, err := vs.client.GetRowsByID(ctx, vs.conf.Collection, []string{id})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

/*
joinEdges emits all edges of an edge source which start at a given row.
*/
func (gr *Graph) joinEdges(ctx context.Context, es *edgeSource, r *Row, emit func(*data.Element) error) error {
	from := es.from.prefix + r.ID

	if es.table != nil {
		return es.client.GetRowsByField(ctx, es.table.Collection, es.table.FromField, r.ID,
			func(tr *Row) error {
				if to, ok := lookupField(tr.Data, es.table.ToField); ok {
					return emit(es.edge(from, es.to.prefix+to, tr.Data))
				}
				return nil
			})
	}

	value, ok := lookupField(r.Data, es.fromField)
	if !ok {
		return nil
	}

	return es.to.client.GetRowsByField(ctx, es.to.conf.Collection, es.toField, value,
		func(tr *Row) error {
			return emit(es.edge(from, es.to.prefix+tr.ID, nil))
		})
}

/*
adjacentEdges returns an iterator over the edges of a vertex.
*/
func (gr *Graph) adjacentEdges(ctx context.Context, sources map[string][]*edgeSource,
	gid string, labels []string) graphstorage.Iterator {

	return newStreamIterator(ctx, func(ctx context.Context, emit func(*data.Element) error) error {
		vs, id, ok := gr.vertexSourceFor(gid)
		if !ok {
			return nil
		}

		var r *Row

		for _, es := range sources[vs.prefix] {
			if len(labels) > 0 && !containsString(labels, es.label) {
				continue
			}

			if r == nil {
				var err error
				if r, err = gr.row(ctx, vs, id); err != nil || r == nil {
					return err
				}
			}

			if err := gr.joinEdges(ctx, es, r, gr.countEdge(emit)); err != nil {
				return err
			}
		}

		return nil
	})
}

func (gr *Graph) countEdge(emit func(*data.Element) error) func(*data.Element) error {
	return func(el *data.Element) error {
		atomic.AddUint64(&gr.escanned, 1)
		return emit(el)
	}
}

func containsString(list []string, s string) bool {
	for _, i := range list {
		if i == s {
			return true
		}
	}
	return false
}

func (gr *Graph) readOnly() error {
	return util.NewGraphError(util.ErrReadOnly, fmt.Sprintf("Graph %v is read-only", gr.name))
}

// Storage interface
// =================

/*
Name returns the name of the graph.
*/
func (gr *Graph) Name() string {
	return gr.name
}

/*
ReadOnly returns true.
*/
func (gr *Graph) ReadOnly() bool {
	return true
}

/*
GetVertex looks up a vertex row.
*/
func (gr *Graph) GetVertex(ctx context.Context, gid string) (*data.Element, error) {
	if vs, id, ok := gr.vertexSourceFor(gid); ok {
		r, err := gr.row(ctx, vs, id)
		if err != nil {
			return nil, err
		} else if r != nil {
			return vs.vertex(r), nil
		}
	}

	return nil, util.NewGraphError(util.ErrNotFound, fmt.Sprintf("Vertex %v not found", gid))
}

/*
GetEdge looks up an edge by joining its vertices.
*/
func (gr *Graph) GetEdge(ctx context.Context, gid string) (*data.Element, error) {
	var found *data.Element

	if from, label, to, ok := ParseEdgeGid(gid); ok {
		it := gr.OutEdges(ctx, from, []string{label})
		defer it.Close()

		for it.Next() {
			if it.Element().To == to {
				found = it.Element()
				break
			}
		}

		if err := it.Err(); err != nil {
			return nil, err
		}
	}

	if found == nil {
		return nil, util.NewGraphError(util.ErrNotFound, fmt.Sprintf("Edge %v not found", gid))
	}

	return found, nil
}

/*
Vertices iterates over the rows of all vertex collections.
*/
func (gr *Graph) Vertices(ctx context.Context) graphstorage.Iterator {
	return newStreamIterator(ctx, func(ctx context.Context, emit func(*data.Element) error) error {
		for _, prefix := range gr.vertexOrder {
			vs := gr.vertices[prefix]

			err := vs.client.GetRows(ctx, vs.conf.Collection, func(r *Row) error {
				atomic.AddUint64(&gr.vscanned, 1)
				return emit(vs.vertex(r))
			})

			if err != nil {
				return err
			}
		}
		return nil
	})
}

/*
Edges iterates over all edges. Joined edges are computed from the rows of
their start collection.
*/
func (gr *Graph) Edges(ctx context.Context) graphstorage.Iterator {
	return newStreamIterator(ctx, func(ctx context.Context, emit func(*data.Element) error) error {
		emit = gr.countEdge(emit)

		for _, prefix := range gr.vertexOrder {
			for _, es := range gr.outEdges[prefix] {
				var err error

				if es.table != nil {
					err = es.client.GetRows(ctx, es.table.Collection, func(r *Row) error {
						from, ok1 := lookupField(r.Data, es.table.FromField)
						to, ok2 := lookupField(r.Data, es.table.ToField)
						if ok1 && ok2 {
							return emit(es.edge(es.from.prefix+from, es.to.prefix+to, r.Data))
						}
						return nil
					})
				} else {
					err = es.from.client.GetRows(ctx, es.from.conf.Collection, func(r *Row) error {
						return gr.joinEdges(ctx, es, r, emit)
					})
				}

				if err != nil {
					return err
				}
			}
		}
		return nil
	})
}

/*
OutEdges iterates over the outgoing edges of a vertex.
*/
func (gr *Graph) OutEdges(ctx context.Context, gid string, labels []string) graphstorage.Iterator {
	return gr.adjacentEdges(ctx, gr.outEdges, gid, labels)
}

/*
InEdges iterates over the incoming edges of a vertex.
*/
func (gr *Graph) InEdges(ctx context.Context, gid string, labels []string) graphstorage.Iterator {
	return gr.adjacentEdges(ctx, gr.inEdges, gid, labels)
}

/*
IndexLookup fails as row source graphs have no indices.
*/
func (gr *Graph) IndexLookup(ctx context.Context, label string, field string, value interface{}) graphstorage.Iterator {
	return graphstorage.NewErrorIterator(util.NewGraphError(util.ErrNotFound,
		fmt.Sprintf("Graph %v has no index on %v.%v", gr.name, label, field)))
}

/*
HasIndex returns false.
*/
func (gr *Graph) HasIndex(label string, field string) bool {
	return false
}

/*
AddIndex fails as the graph is read-only.
*/
func (gr *Graph) AddIndex(label string, field string) error {
	return gr.readOnly()
}

/*
DeleteIndex fails as the graph is read-only.
*/
func (gr *Graph) DeleteIndex(label string, field string) error {
	return gr.readOnly()
}

/*
Indices returns an empty list.
*/
func (gr *Graph) Indices() []graphstorage.IndexID {
	return []graphstorage.IndexID{}
}

/*
AddVertices fails as the graph is read-only.
*/
func (gr *Graph) AddVertices(vertices []*data.Element) error {
	return gr.readOnly()
}

/*
AddEdges fails as the graph is read-only.
*/
func (gr *Graph) AddEdges(edges []*data.Element) error {
	return gr.readOnly()
}

/*
DeleteVertex fails as the graph is read-only.
*/
func (gr *Graph) DeleteVertex(gid string) error {
	return gr.readOnly()
}

/*
DeleteEdge fails as the graph is read-only.
*/
func (gr *Graph) DeleteEdge(gid string) error {
	return gr.readOnly()
}

/*
VertexLabels returns the labels of all mapped vertex collections.
*/
func (gr *Graph) VertexLabels() []string {
	labels := make(map[string]bool)
	for _, vs := range gr.vertices {
		labels[vs.conf.Label] = true
	}
	return sortedKeys(labels)
}

/*
EdgeLabels returns the labels of all mapped edges.
*/
func (gr *Graph) EdgeLabels() []string {
	labels := make(map[string]bool)
	for _, list := range gr.outEdges {
		for _, es := range list {
			labels[es.label] = true
		}
	}
	return sortedKeys(labels)
}

func sortedKeys(m map[string]bool) []string {
	ret := make([]string, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

/*
Stats returns the number of rows which were turned into elements.
*/
func (gr *Graph) Stats() graphstorage.Stats {
	return graphstorage.Stats{
		VerticesScanned: atomic.LoadUint64(&gr.vscanned),
		EdgesScanned:    atomic.LoadUint64(&gr.escanned),
	}
}

/*
Close closes all row source connections.
*/
func (gr *Graph) Close() error {
	cerr := errorutil.NewCompositeError()

	for _, c := range gr.clients {
		if err := c.Close(); err != nil {
			cerr.Add(err)
		}
	}

	if cerr.HasErrors() {
		return cerr
	}

	return nil
}
