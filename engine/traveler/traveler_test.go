/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package traveler

import (
	"testing"

	"devt.de/krotik/gripdb/graph/data"
	"github.com/stretchr/testify/assert"
)

func testTraveler() *Traveler {
	v1 := data.NewVertexElement("v1", "Person", map[string]interface{}{
		"name": "marko",
		"tags": []interface{}{"a", map[string]interface{}{"x": 1.0}},
		"info": map[string]interface{}{"age": 29.0},
	})
	e1 := data.NewEdgeElement("e1", "knows", "v1", "v2", map[string]interface{}{"weight": 0.5})

	return New(v1, true).AddMark("a").WithCurrent(e1)
}

func TestTraveler(t *testing.T) {
	v2 := data.NewVertexElement("v2", "Person", nil)

	t1 := testTraveler()
	t2 := t1.AddMark("b").WithCurrent(v2)

	assert.Equal(t, []string{"v1", "e1"}, t1.Path())
	assert.Equal(t, []string{"v1", "e1", "v2"}, t2.Path())
	assert.Equal(t, []string{"a"}, t1.MarkNames())
	assert.Equal(t, []string{"a", "b"}, t2.MarkNames())

	b, ok := t2.GetMark("b")
	assert.True(t, ok)
	assert.Equal(t, "e1", b.Gid)

	_, ok = t1.GetMark("b")
	assert.False(t, ok)

	cur, _ := t2.GetMark(Current)
	assert.Equal(t, "v2", cur.Gid)

	// Re-assigning a mark overwrites it

	t3 := t2.AddMark("a")
	a, _ := t3.GetMark("a")
	assert.Equal(t, "v2", a.Gid)

	a, _ = t2.GetMark("a")
	assert.Equal(t, "v1", a.Gid)

	// Merging marks

	other := New(v2, false).AddMark("c")
	merged := t1.MergeMarks(other)

	assert.Equal(t, []string{"a", "c"}, merged.MarkNames())
	assert.Equal(t, "e1", merged.Current().Gid)

	// Untracked paths stay empty

	assert.Nil(t, New(v2, false).WithCurrent(v2).Path())
	assert.False(t, other.TracksPath())

	assert.Equal(t, "x", t1.WithValue("x").Value())
	assert.Nil(t, t1.Value())
}

func TestSelectors(t *testing.T) {
	tr := testTraveler()

	tests := []struct {
		selector string
		value    interface{}
		ok       bool
	}{
		{"$a.name", "marko", true},
		{"$a._gid", "v1", true},
		{"$a._label", "Person", true},
		{"$a.info.age", 29.0, true},
		{"$a.tags[0]", "a", true},
		{"$a.tags[1].x", 1.0, true},
		{"$a.tags[5]", nil, false},
		{"$a._data.name", "marko", true},
		{"$a._from", nil, false},
		{"$a.missing", nil, false},
		{"$a.name.sub", nil, false},
		{"$.weight", 0.5, true},
		{"weight", 0.5, true},
		{"_from", "v1", true},
		{"$._to", "v2", true},
		{"$b.name", nil, false},
	}

	for _, test := range tests {
		v, ok := GetValue(tr, test.selector)
		assert.Equal(t, test.ok, ok, test.selector)
		assert.Equal(t, test.value, v, test.selector)
	}

	assert.True(t, ParseSelector("info.age").IsField())
	assert.Equal(t, []string{"info", "age"}, ParseSelector("$.info.age").FieldPath())
	assert.False(t, ParseSelector("_gid").IsField())
	assert.False(t, ParseSelector("$a.name").IsField())

	// Null elements have no values

	null := New(data.NewNullElement(data.KindVertex), false)
	_, ok := GetValue(null, "_gid")
	assert.False(t, ok)
}

func TestRender(t *testing.T) {
	tr := testTraveler()

	res := Render(tr, map[string]interface{}{
		"name":    "$a.name",
		"edge":    "$._gid",
		"list":    []interface{}{"$a.info.age", "literal", 5.0},
		"missing": "$a.nothing",
		"nomark":  "$x.name",
	})

	assert.Equal(t, map[string]interface{}{
		"name":    "marko",
		"edge":    "e1",
		"list":    []interface{}{29.0, "literal", 5.0},
		"missing": nil,
		"nomark":  nil,
	}, res)

	assert.Equal(t, map[string]interface{}{
		"_gid":   "v1",
		"_label": "Person",
		"name":   "marko",
		"tags":   []interface{}{"a", map[string]interface{}{"x": 1.0}},
		"info":   map[string]interface{}{"age": 29.0},
	}, Render(tr, "$a"))
}
