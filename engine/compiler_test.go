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
	"errors"
	"testing"

	"devt.de/krotik/gripdb/graph/util"
	"devt.de/krotik/gripdb/gripql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidation(t *testing.T) {
	tests := []struct {
		query *gripql.Query
		err   string
	}{
		{gripql.NewQuery(), "Query is empty"},
		{gripql.NewQuery().Out(), "Step 0 (out): Query must start with V or E"},
		{gripql.V().V(), "Step 1 (V): V and E may only be used as first step"},
		{gripql.V().InV(), "Step 1 (inV): Step can only follow an edge"},
		{gripql.E().Out(), "Step 1 (out): Step can only follow a vertex"},
		{gripql.V().Count().Out(), "Step 2 (out): No steps are allowed after count"},
		{gripql.V().Aggregate(gripql.TermAgg("a", "x", 0)).Out(), "Step 2 (out): Only paging steps are allowed after aggregate"},
		{gripql.V().Select("x"), "Step 1 (select): Unknown mark x"},
		{gripql.V().As(""), `Step 1 (as): Invalid mark name ""`},
		{gripql.V().Limit(-1), "Step 1 (limit): Value must not be negative"},
		{gripql.V().Range(3, 2), "Step 1 (range): Invalid range 3 to 2"},
		{gripql.V().Render("$.x").Out(), "Step 2 (out): Step requires an element"},
		{gripql.V().HasLabel(), "Step 1 (hasLabel): No labels given"},
		{gripql.V().Has(gripql.Inside("x", 1, nil)), ""},
		{gripql.V().Unwind("$a.list"), "Step 1 (unwind): Field $a.list is not a data field of the current element"},
		{gripql.V().Aggregate(gripql.HistogramAgg("h", "x", 0)), "Step 1 (aggregate): Histogram h needs a field and a positive interval"},
		{gripql.V().Aggregate(gripql.TermAgg("a", "x", 0), gripql.TermAgg("a", "y", 0)), "Step 1 (aggregate): Duplicate aggregation name a"},
		{gripql.V().Aggregate(gripql.PercentileAgg("p", "x", 101)), "Step 1 (aggregate): Invalid percent 101 in aggregation p"},
		{gripql.V().Match(gripql.NewQuery().InV()), "Step 0 (inV): Step can only follow an edge"},
		{gripql.V().Match(gripql.NewQuery().Count()), "Step 1 (match): Sub query must produce elements"},
		{gripql.V().Match(gripql.NewQuery().As("x")).Select("x"), ""},
	}

	for _, test := range tests {
		_, err := Compile(test.query, nil)

		if test.err == "" {
			assert.NoError(t, err, test.query.String())
			continue
		}

		require.Error(t, err, test.query.String())
		assert.True(t, errors.Is(err, util.ErrInvalidQuery))
		assert.Equal(t, "GraphError: INVALID_QUERY ("+test.err+")", err.Error())
	}
}

func TestRewrites(t *testing.T) {
	gs := modernGraph()

	tests := []struct {
		query    *gripql.Query
		plan     string
		rewrites []string
	}{
		{gripql.V().HasID("1", "2"), "V(1, 2)", []string{"idLookup"}},
		{gripql.E().HasID("e07").OutV(), "E(e07).outV()", []string{"idLookup"}},
		{gripql.V("1").OutE("knows").InV(), "V(1).adjacentVertices(out, knows)", []string{"adjacentVertices"}},
		{gripql.V("2").InE().OutV(), "V(2).adjacentVertices(in)", []string{"adjacentVertices"}},
		{gripql.V("2").InE().As("e").OutV(), "V(2).inE().as(e).outV()", nil},
		{gripql.V("1").OutE().InV().Path(), "V(1).outE().inV().path()", nil},
		{gripql.V().Out().Has(gripql.Eq("a", 1)).Has(gripql.Eq("b", 2)),
			"V().out().has(and(a EQ 1, b EQ 2))", []string{"mergeHas"}},
		{gripql.V().Out().Has(gripql.Eq("name", "lop")).Fields("name"),
			"V().out().fields(name).has(name EQ lop)", []string{"fieldsPushdown"}},
		{gripql.V().Out().Has(gripql.Eq("age", 29)).Fields("name"),
			"V().out().has(age EQ 29).fields(name)", nil},
		{gripql.V().Out().Has(gripql.Eq("age", 29)).Fields("-age"),
			"V().out().has(age EQ 29).fields(-age)", nil},
		{gripql.V().Out().HasLabel("Software").Fields("-age"),
			"V().out().fields(-age).hasLabel(Software)", []string{"fieldsPushdown"}},
		{gripql.V().Out().As("x").Fields("name"), "V().out().as(x).fields(name)", nil},
		{gripql.V().Count(), "V().counter()", []string{"counter"}},
		{gripql.V().HasID("1").OutE().InV().Count(), "V(1).adjacentVertices(out).counter()",
			[]string{"idLookup", "adjacentVertices", "counter"}},
	}

	for _, test := range tests {
		p, err := Compile(test.query, gs)
		require.NoError(t, err, test.query.String())

		assert.Equal(t, test.plan, p.Plan(), test.query.String())
		assert.Equal(t, test.rewrites, p.Rewrites, test.query.String())
	}

	// Rewritten plans produce the same results

	assert.Equal(t, []string{"2", "4"}, resultGids(runQuery(t, gs, gripql.V("1").OutE("knows").InV())))
	assert.Equal(t, []string{"1", "4", "6"}, resultGids(runQuery(t, gs, gripql.V("3").InE().OutV())))
	assert.Equal(t, []string{"3", "3", "3"}, resultGids(runQuery(t, gs,
		gripql.V().Out().Has(gripql.Eq("name", "lop")).Fields("name"))))
}

func TestPipelineInfo(t *testing.T) {
	p, err := Compile(gripql.V().As("b").Out().As("a").Select("a", "b"), nil)
	require.NoError(t, err)

	assert.Equal(t, OutputSelections, p.Output)
	assert.Equal(t, []string{"a", "b"}, p.MarkNames)

	for _, test := range []struct {
		query  *gripql.Query
		output OutputKind
	}{
		{gripql.V(), OutputVertex},
		{gripql.V().OutE(), OutputEdge},
		{gripql.V().Render("$._gid"), OutputRender},
		{gripql.V().Count(), OutputCount},
		{gripql.V().Path(), OutputPath},
		{gripql.V().Aggregate(gripql.TypeAgg("t", "x")).Limit(1), OutputAggregations},
	} {
		p, err := Compile(test.query, nil)
		require.NoError(t, err)
		assert.Equal(t, test.output, p.Output, test.query.String())
	}
}
