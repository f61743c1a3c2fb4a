/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package gripql

import (
	"encoding/json"
	"errors"
	"testing"

	"devt.de/krotik/gripdb/graph/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderEncoding(t *testing.T) {
	q := V().HasLabel("Person").Has(Eq("name", "marko")).Out("knows").Count()

	b, err := json.Marshal(q)
	require.NoError(t, err)

	assert.Equal(t, `{"query":[{"v":[]},{"hasLabel":["Person"]},`+
		`{"has":{"condition":{"key":"name","value":"marko","condition":"EQ"}}},`+
		`{"out":["knows"]},{"count":""}]}`, string(b))

	assert.Equal(t, "v().hasLabel(Person).has(name EQ marko).out(knows).count()", q.String())

	// The builder never modifies a query in place

	base := V()
	q1 := base.Out()
	q2 := base.In()

	assert.Len(t, base.Steps, 1)
	assert.Equal(t, StepOut, q1.Steps[1].Type)
	assert.Equal(t, StepIn, q2.Steps[1].Type)
}

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery([]byte(`{"query":[
		{"V":["v1"]},
		{"out_e":"friend"},
		{"in_v":""},
		{"out_null":[]},
		{"as":"a"},
		{"has_label":["Person"]},
		{"select":{"marks":["a"]}},
		{"select":["a","b"]},
		{"range":{"start":2}},
		{"limit":10},
		{"aggregate":{"aggregations":[
			{"name":"t","term":{"field":"name","size":2}},
			{"name":"h","histogram":{"field":"age","interval":5}},
			{"name":"p","percentile":{"field":"age","percents":[50,99]}},
			{"name":"f","field":{"field":"$."}},
			{"name":"y","type":{"field":"age"}}
		]}},
		{"match":{"queries":[{"query":[{"as":"x"}]},[{"out":[]}]]}}
	]}`))
	require.NoError(t, err)

	types := []StepType{}
	for _, s := range q.Steps {
		types = append(types, s.Type)
	}

	assert.Equal(t, []StepType{StepV, StepOutE, StepInV, StepOutNull, StepAs, StepHasLabel,
		StepSelect, StepSelect, StepRange, StepLimit, StepAggregate, StepMatch}, types)

	assert.Equal(t, []string{"v1"}, q.Steps[0].IDs)
	assert.Equal(t, []string{"friend"}, q.Steps[1].Labels)
	assert.Equal(t, "a", q.Steps[4].Name)
	assert.Equal(t, []string{"a"}, q.Steps[6].Keys)
	assert.Equal(t, []string{"a", "b"}, q.Steps[7].Keys)
	assert.Equal(t, int64(2), q.Steps[8].Start)
	assert.Equal(t, int64(-1), q.Steps[8].Stop)
	assert.Equal(t, int64(10), q.Steps[9].N)

	aggs := q.Steps[10].Aggregations
	require.Len(t, aggs, 5)
	assert.Equal(t, TermAgg("t", "name", 2), aggs[0])
	assert.Equal(t, HistogramAgg("h", "age", 5), aggs[1])
	assert.Equal(t, PercentileAgg("p", "age", 50, 99), aggs[2])
	assert.Equal(t, FieldAgg("f", "$."), aggs[3])
	assert.Equal(t, TypeAgg("y", "age"), aggs[4])

	require.Len(t, q.Steps[11].Queries, 2)
	assert.Equal(t, StepAs, q.Steps[11].Queries[0].Steps[0].Type)
	assert.Equal(t, StepOut, q.Steps[11].Queries[1].Steps[0].Type)

	// Encoding and decoding again gives an equal query

	b, err := json.Marshal(q)
	require.NoError(t, err)

	q2, err := ParseQuery(b)
	require.NoError(t, err)
	assert.True(t, q.Equal(q2))

	// A plain list of steps is a query too

	q3, err := ParseQuery([]byte(`[{"v":[]},{"count":""}]`))
	require.NoError(t, err)
	assert.True(t, q3.Equal(V().Count()))
}

func TestParseErrors(t *testing.T) {
	for _, body := range []string{
		`{"query":[{"foo":[]}]}`,
		`{"query":[{"v":[],"out":[]}]}`,
		`{"query":[{"limit":1.5}]}`,
		`{"query":[{"has":{"condition":{"key":"a","value":1,"condition":"LIKE"}}}]}`,
		`{"query":[{"has":{"and":{"expressions":[]},"not":{}}}]}`,
		`{"query":[{"aggregate":{"aggregations":[{"name":"x"}]}}]}`,
		`{"query":[`,
	} {
		_, err := ParseQuery([]byte(body))
		assert.Error(t, err, body)
		assert.True(t, errors.Is(err, util.ErrInvalidArgument), body)
	}
}

func TestExpressions(t *testing.T) {
	e := And(Eq("a", 1), Or(Gt("b", 2), Not(Within("c", "x", "y"))), Inside("d", 1, 5))

	b, err := json.Marshal(e)
	require.NoError(t, err)

	assert.Equal(t, `{"and":{"expressions":[`+
		`{"condition":{"key":"a","value":1,"condition":"EQ"}},`+
		`{"or":{"expressions":[{"condition":{"key":"b","value":2,"condition":"GT"}},`+
		`{"not":{"condition":{"key":"c","value":["x","y"],"condition":"WITHIN"}}}]}},`+
		`{"condition":{"key":"d","value":[1,5],"condition":"INSIDE"}}]}}`, string(b))

	var e2 Expression
	require.NoError(t, json.Unmarshal(b, &e2))

	assert.Equal(t, "and(a EQ 1, or(b GT 2, not(c WITHIN [x y])), d INSIDE [1 5])", e2.String())

	// Numbers compare by value

	assert.True(t, V().Has(Eq("a", 1)).Equal(V().Has(Eq("a", 1.0))))
	assert.False(t, V().Has(Eq("a", 1)).Equal(V().Has(Eq("a", 2))))
	assert.False(t, V().Equal(nil))
}
