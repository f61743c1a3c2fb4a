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
Package gripql contains the graph traversal language of GripDB.

A traversal is a list of steps. The first step selects a set of vertices or
edges; every following step moves, filters, marks or reshapes the travelers
which are produced by the previous step. Traversals are exchanged as JSON:

	{"query": [{"v": []}, {"hasLabel": ["Person"]}, {"out": ["knows"]}, {"count": ""}]}

Step keys are accepted in lowerCamel and snake_case form (inE and in_e).
Queries can also be built in Go using a fluent builder:

	q := gripql.V().HasLabel("Person").Out("knows").Count()
*/
package gripql

import (
	"fmt"
	"strings"
)

/*
StepType is the type of a traversal step. The value is the canonical JSON key
of the step.
*/
type StepType string

/*
Known step types
*/
const (
	StepV         StepType = "v"
	StepE         StepType = "e"
	StepIn        StepType = "in"
	StepOut       StepType = "out"
	StepBoth      StepType = "both"
	StepInE       StepType = "inE"
	StepOutE      StepType = "outE"
	StepBothE     StepType = "bothE"
	StepInV       StepType = "inV"
	StepOutV      StepType = "outV"
	StepInNull    StepType = "inNull"
	StepOutNull   StepType = "outNull"
	StepInENull   StepType = "inENull"
	StepOutENull  StepType = "outENull"
	StepHas       StepType = "has"
	StepHasLabel  StepType = "hasLabel"
	StepHasID     StepType = "hasId"
	StepHasKey    StepType = "hasKey"
	StepAs        StepType = "as"
	StepSelect    StepType = "select"
	StepFields    StepType = "fields"
	StepDistinct  StepType = "distinct"
	StepRender    StepType = "render"
	StepUnwind    StepType = "unwind"
	StepLimit     StepType = "limit"
	StepSkip      StepType = "skip"
	StepRange     StepType = "range"
	StepCount     StepType = "count"
	StepAggregate StepType = "aggregate"
	StepMatch     StepType = "match"
	StepPath      StepType = "path"
)

/*
allStepTypes lists all known step types.
*/
var allStepTypes = []StepType{StepV, StepE, StepIn, StepOut, StepBoth, StepInE,
	StepOutE, StepBothE, StepInV, StepOutV, StepInNull, StepOutNull, StepInENull,
	StepOutENull, StepHas, StepHasLabel, StepHasID, StepHasKey, StepAs, StepSelect,
	StepFields, StepDistinct, StepRender, StepUnwind, StepLimit, StepSkip, StepRange,
	StepCount, StepAggregate, StepMatch, StepPath}

/*
stepTypeLookup maps lower case step keys to step types.
*/
var stepTypeLookup = make(map[string]StepType)

func init() {
	for _, st := range allStepTypes {
		stepTypeLookup[strings.ToLower(string(st))] = st
	}
}

/*
LookupStepType looks up a step type from a JSON key. Returns false if the key
is unknown.
*/
func LookupStepType(key string) (StepType, bool) {
	st, ok := stepTypeLookup[strings.ToLower(strings.ReplaceAll(key, "_", ""))]
	return st, ok
}

/*
IsVertexMovement returns true for steps which move from a vertex.
*/
func (st StepType) IsVertexMovement() bool {
	switch st {
	case StepIn, StepOut, StepBoth, StepInE, StepOutE, StepBothE,
		StepInNull, StepOutNull, StepInENull, StepOutENull:
		return true
	}
	return false
}

/*
IsEdgeMovement returns true for steps which move from an edge.
*/
func (st StepType) IsEdgeMovement() bool {
	return st == StepInV || st == StepOutV
}

/*
IsFilter returns true for steps which only drop travelers.
*/
func (st StepType) IsFilter() bool {
	switch st {
	case StepHas, StepHasLabel, StepHasID, StepHasKey, StepLimit, StepSkip, StepRange:
		return true
	}
	return false
}

/*
Step is a single step of a traversal. Only the fields which belong to the
step type are set.
*/
type Step struct {
	Type StepType

	IDs    []string // V, E, hasId
	Labels []string // Movement steps, hasLabel
	Keys   []string // hasKey, fields, distinct, select

	Name  string // as, unwind
	Has   *Expression
	Value interface{} // Render template

	N     int64 // limit, skip
	Start int64 // range
	Stop  int64 // range (-1 means to the end)

	Aggregations []*Aggregation
	Queries      []*Query
}

/*
String returns a short string representation of this step.
*/
func (s *Step) String() string {
	var args []string

	switch s.Type {
	case StepV, StepE, StepHasID:
		args = s.IDs
	case StepHasKey, StepFields, StepDistinct, StepSelect:
		args = s.Keys
	case StepAs, StepUnwind:
		args = []string{s.Name}
	case StepHas:
		args = []string{s.Has.String()}
	case StepLimit, StepSkip:
		args = []string{fmt.Sprint(s.N)}
	case StepRange:
		args = []string{fmt.Sprint(s.Start), fmt.Sprint(s.Stop)}
	case StepAggregate:
		for _, a := range s.Aggregations {
			args = append(args, a.Name)
		}
	case StepMatch:
		for _, q := range s.Queries {
			args = append(args, q.String())
		}
	default:
		args = s.Labels
	}

	return fmt.Sprintf("%v(%v)", s.Type, strings.Join(args, ", "))
}

/*
Query is a traversal.
*/
type Query struct {
	Steps []*Step
}

/*
String returns a short string representation of this query.
*/
func (q *Query) String() string {
	var parts []string
	for _, s := range q.Steps {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, ".")
}

/*
Equal checks if two queries are structurally equal.
*/
func (q *Query) Equal(other *Query) bool {
	if q == nil || other == nil {
		return q == other
	}

	b1, err1 := q.MarshalJSON()
	b2, err2 := other.MarshalJSON()

	return err1 == nil && err2 == nil && string(b1) == string(b2)
}

/*
AggregationType is the type of an aggregation.
*/
type AggregationType string

/*
Known aggregation types
*/
const (
	AggTerm       AggregationType = "term"
	AggHistogram  AggregationType = "histogram"
	AggPercentile AggregationType = "percentile"
	AggField      AggregationType = "field"
	AggType       AggregationType = "type"
)

/*
Aggregation is a named aggregation over a field of the travelers.
*/
type Aggregation struct {
	Name     string
	Type     AggregationType
	Field    string
	Size     int64     // term (0 means all buckets)
	Interval float64   // histogram
	Percents []float64 // percentile
}
