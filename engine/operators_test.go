/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package engine

import (
	"context"
	"testing"

	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/graph/graphstorage"
	"devt.de/krotik/gripdb/gripql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilters(t *testing.T) {
	gs := modernGraph()

	gs.AddVertices([]*data.Element{
		vertex("7", "Tag", map[string]interface{}{"tags": []interface{}{"a", "b"}}),
	})

	tests := []struct {
		query    *gripql.Query
		expected []string
	}{
		{gripql.V().HasKey("lang"), []string{"3", "5"}},
		{gripql.V().HasKey("name", "age"), []string{"1", "2", "4", "6"}},
		{gripql.V().Out().HasID("3"), []string{"3", "3", "3"}},
		{gripql.V().Out().HasLabel("Software"), []string{"3", "5", "3", "3"}},
		{gripql.V().Has(gripql.Within("name", "marko", "josh")), []string{"1", "4"}},
		{gripql.V().Has(gripql.Without("name", "marko", "josh")), []string{"2", "3", "5", "6"}},
		{gripql.V().Has(gripql.Inside("age", 27, 32)), []string{"1"}},
		{gripql.V().Has(gripql.Between("age", 27, 32)), []string{"1", "2"}},
		{gripql.V().Has(gripql.Outside("age", 28, 33)), []string{"2", "6"}},
		{gripql.V().Has(gripql.Contains("tags", "b")), []string{"7"}},
		{gripql.V().Has(gripql.Neq("lang", "java")), []string{}},
		{gripql.V().Has(gripql.Gte("name", "peter")), []string{"2", "5", "6"}},
		{gripql.V().Has(gripql.Or(gripql.Lt("age", 28), gripql.Eq("name", "lop"))), []string{"2", "3"}},
		{gripql.V().Has(gripql.Eq("_label", "Software")), []string{"3", "5"}},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, resultGids(runQuery(t, gs, test.query)), test.query.String())
	}
}

func TestFields(t *testing.T) {
	gs := graphstorage.NewMemoryGraphStorage("fields")

	d := map[string]interface{}{
		"name": "x",
		"a":    map[string]interface{}{"b": 1.0, "c": 2.0},
		"list": []interface{}{1.0, "two", map[string]interface{}{"three": 3.0}},
	}

	gs.AddVertices([]*data.Element{vertex("1", "Thing", data.CopyData(d))})

	fields := func(keys ...string) map[string]interface{} {
		res := runQuery(t, gs, gripql.V("1").Fields(keys...))
		require.Len(t, res, 1)
		return res[0].Vertex.Data
	}

	assert.Equal(t, d, fields())
	assert.Equal(t, map[string]interface{}{"name": "x"}, fields("name"))
	assert.Equal(t, map[string]interface{}{}, fields("_gid"))
	assert.Equal(t, map[string]interface{}{"a": map[string]interface{}{"b": 1.0}}, fields("$.a.b"))
	assert.Equal(t, map[string]interface{}{"name": "x", "a": map[string]interface{}{"c": 2.0}},
		fields("name", "a", "-a.b"))

	res := fields("-list", "-a")
	assert.Equal(t, map[string]interface{}{"name": "x"}, res)

	// Projections never modify the stored element

	el, err := gs.GetVertex(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, d, el.Data)
}

func TestUnwindRender(t *testing.T) {
	gs := graphstorage.NewMemoryGraphStorage("unwind")

	gs.AddVertices([]*data.Element{
		vertex("1", "Thing", map[string]interface{}{
			"tags":  []interface{}{"a", "b", "c"},
			"x":     1.0,
			"empty": []interface{}{},
			"sub":   map[string]interface{}{"list": []interface{}{1.0, 2.0}},
		}),
	})

	res := runQuery(t, gs, gripql.V("1").Unwind("tags").Render("$.tags"))
	assert.Equal(t, []string{`{"render":"a"}`, `{"render":"b"}`, `{"render":"c"}`}, resultGids(res))

	res = runQuery(t, gs, gripql.V("1").Unwind("$.sub.list").Render([]interface{}{"$.sub.list", "$.x"}))
	assert.Equal(t, []string{`{"render":[1,1]}`, `{"render":[2,1]}`}, resultGids(res))

	assert.Len(t, runQuery(t, gs, gripql.V("1").Unwind("x")), 1)
	assert.Len(t, runQuery(t, gs, gripql.V("1").Unwind("missing")), 0)
	assert.Len(t, runQuery(t, gs, gripql.V("1").Unwind("empty")), 0)

	res = runQuery(t, gs, gripql.V("1").As("t").Render(map[string]interface{}{
		"gid":     "$t._gid",
		"label":   "$._label",
		"first":   "$.tags[0]",
		"missing": "$.nope",
		"nested":  map[string]interface{}{"lit": "literal", "x": "$t.x"},
	}))

	require.Len(t, res, 1)
	assert.Equal(t, map[string]interface{}{
		"gid":     "1",
		"label":   "Thing",
		"first":   "a",
		"missing": nil,
		"nested":  map[string]interface{}{"lit": "literal", "x": 1.0},
	}, res[0].Render)
}

func TestPath(t *testing.T) {
	gs := modernGraph()

	res := runQuery(t, gs, gripql.V("1").Out("knows").Path())
	assert.Equal(t, []string{`{"path":["1","2"]}`, `{"path":["1","4"]}`}, resultGids(res))

	res = runQuery(t, gs, gripql.V("1").OutE("knows").InV().Out().Path())
	assert.Equal(t, []string{`{"path":["1","e08","4","5"]}`, `{"path":["1","e08","4","3"]}`}, resultGids(res))
}

func TestPaging(t *testing.T) {
	gs := modernGraph()

	tests := []struct {
		query    *gripql.Query
		expected []string
	}{
		{gripql.V().Limit(2), []string{"1", "2"}},
		{gripql.V().Limit(0), []string{}},
		{gripql.V().Skip(4), []string{"5", "6"}},
		{gripql.V().Skip(10), []string{}},
		{gripql.V().Range(1, 3), []string{"2", "3"}},
		{gripql.V().Range(4, -1), []string{"5", "6"}},
		{gripql.V().Range(2, 2), []string{}},
		{gripql.V().Out().Limit(3).Out(), []string{"5", "3"}},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, resultGids(runQuery(t, gs, test.query)), test.query.String())
	}
}

func TestAggregations(t *testing.T) {
	gs := modernGraph()

	res := runQuery(t, gs, gripql.V().Aggregate(
		gripql.TermAgg("labels", "_label", 0),
		gripql.HistogramAgg("ages", "age", 5),
		gripql.FieldAgg("fields", ""),
		gripql.TypeAgg("types", "age"),
		gripql.TermAgg("langs", "lang", 1),
	))

	assert.Equal(t, []string{
		`{"aggregations":{"aggregations":{"name":"labels","key":"Person","value":4}}}`,
		`{"aggregations":{"aggregations":{"name":"labels","key":"Software","value":2}}}`,
		`{"aggregations":{"aggregations":{"name":"ages","key":25,"value":2}}}`,
		`{"aggregations":{"aggregations":{"name":"ages","key":30,"value":1}}}`,
		`{"aggregations":{"aggregations":{"name":"ages","key":35,"value":1}}}`,
		`{"aggregations":{"aggregations":{"name":"fields","key":"name","value":6}}}`,
		`{"aggregations":{"aggregations":{"name":"fields","key":"age","value":4}}}`,
		`{"aggregations":{"aggregations":{"name":"fields","key":"lang","value":2}}}`,
		`{"aggregations":{"aggregations":{"name":"types","key":"number","value":4}}}`,
		`{"aggregations":{"aggregations":{"name":"langs","key":"java","value":2}}}`,
	}, resultGids(res))

	// Histograms include empty buckets

	gs.AddVertices([]*data.Element{vertex("7", "Person", map[string]interface{}{"age": 51.0})})

	res = runQuery(t, gs, gripql.V().Aggregate(gripql.HistogramAgg("ages", "age", 10)))
	assert.Equal(t, []string{
		`{"aggregations":{"aggregations":{"name":"ages","key":20,"value":2}}}`,
		`{"aggregations":{"aggregations":{"name":"ages","key":30,"value":2}}}`,
		`{"aggregations":{"aggregations":{"name":"ages","key":40,"value":0}}}`,
		`{"aggregations":{"aggregations":{"name":"ages","key":50,"value":1}}}`,
	}, resultGids(res))

	// Paging after an aggregation

	res = runQuery(t, gs, gripql.V().Aggregate(gripql.TermAgg("labels", "_label", 0)).Limit(1))
	assert.Len(t, res, 1)

	// Aggregations over nothing

	res = runQuery(t, gs, gripql.V("nope").Aggregate(gripql.TermAgg("labels", "_label", 0)))
	assert.Empty(t, res)
}
