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
	"fmt"
	"sort"

	"devt.de/krotik/gripdb/engine/traveler"
	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/graph/graphstorage"
	"devt.de/krotik/gripdb/graph/util"
	"devt.de/krotik/gripdb/gripql"
)

/*
defaultPercents are used by percentile aggregations without percents.
*/
var defaultPercents = []float64{1, 5, 25, 50, 75, 95, 99}

/*
Compile validates a query and builds an execution plan for a given graph
storage. The storage is used to look up available indices. Validation
errors are INVALID_QUERY graph errors.
*/
func Compile(q *gripql.Query, gs graphstorage.Storage) (*Pipeline, error) {
	if q == nil || len(q.Steps) == 0 {
		return nil, util.NewGraphError(util.ErrInvalidQuery, "Query is empty")
	}

	v := &validator{marks: make(map[string]bool)}

	_, out, err := v.validate(q.Steps, 0, true)
	if err != nil {
		return nil, err
	}

	trackPath := false
	for _, s := range q.Steps {
		if s.Type == gripql.StepPath {
			trackPath = true
		}
	}

	rw := &rewriter{gs: gs, trackPath: trackPath}
	plan := rw.buildPlan(q.Steps)

	marks := make([]string, 0, len(v.marks))
	for m := range v.marks {
		marks = append(marks, m)
	}
	sort.Strings(marks)

	return &Pipeline{
		Query:     q,
		Output:    out,
		MarkNames: marks,
		Rewrites:  rw.applied,
		plan:      plan,
		trackPath: trackPath,
	}, nil
}

/*
validator checks a list of steps.
*/
type validator struct {
	marks map[string]bool // Known marks
}

/*
invalid creates a validation error.
*/
func invalid(i int, s *gripql.Step, format string, args ...interface{}) error {
	return util.NewGraphError(util.ErrInvalidQuery,
		fmt.Sprintf("Step %d (%v): %v", i, s.Type, fmt.Sprintf(format, args...)))
}

/*
validate validates a list of steps. Kind is the element kind at the start
of the list (0 for a top level query). Returns the element kind after the
last step (0 if the last step does not produce elements) and the output kind.
*/
func (v *validator) validate(steps []*gripql.Step, kind data.ElementKind,
	top bool) (data.ElementKind, OutputKind, error) {

	out := OutputNone
	terminal := false   // A count was seen
	aggregated := false // An aggregate was seen

	for i, s := range steps {

		if s == nil {
			return 0, out, util.NewGraphError(util.ErrInvalidQuery, fmt.Sprintf("Step %d is empty", i))
		}

		isPaging := s.Type == gripql.StepLimit || s.Type == gripql.StepSkip || s.Type == gripql.StepRange

		if i == 0 && top && s.Type != gripql.StepV && s.Type != gripql.StepE {
			return 0, out, invalid(i, s, "Query must start with V or E")
		} else if terminal {
			return 0, out, invalid(i, s, "No steps are allowed after count")
		} else if aggregated && !isPaging {
			return 0, out, invalid(i, s, "Only paging steps are allowed after aggregate")
		} else if (i > 0 || !top) && kind == 0 && !isPaging {
			return 0, out, invalid(i, s, "Step requires an element")
		}

		switch st := s.Type; {

		case st == gripql.StepV || st == gripql.StepE:
			if i > 0 || !top {
				return 0, out, invalid(i, s, "V and E may only be used as first step")
			}
			kind = data.KindVertex
			if st == gripql.StepE {
				kind = data.KindEdge
			}

		case st.IsVertexMovement():
			if kind != data.KindVertex {
				return 0, out, invalid(i, s, "Step can only follow a vertex")
			}
			switch st {
			case gripql.StepInE, gripql.StepOutE, gripql.StepBothE, gripql.StepInENull, gripql.StepOutENull:
				kind = data.KindEdge
			}

		case st.IsEdgeMovement():
			if kind != data.KindEdge {
				return 0, out, invalid(i, s, "Step can only follow an edge")
			}
			kind = data.KindVertex

		case st == gripql.StepHas:
			if err := validateExpression(s.Has); err != nil {
				return 0, out, invalid(i, s, "%v", err)
			}

		case st == gripql.StepHasLabel:
			if len(s.Labels) == 0 {
				return 0, out, invalid(i, s, "No labels given")
			}

		case st == gripql.StepHasID:
			if len(s.IDs) == 0 {
				return 0, out, invalid(i, s, "No ids given")
			}

		case st == gripql.StepHasKey:
			if len(s.Keys) == 0 {
				return 0, out, invalid(i, s, "No keys given")
			}

		case st == gripql.StepAs:
			if s.Name == "" || s.Name == traveler.Current {
				return 0, out, invalid(i, s, "Invalid mark name %q", s.Name)
			}
			v.marks[s.Name] = true

		case st == gripql.StepSelect:
			if len(s.Keys) == 0 {
				return 0, out, invalid(i, s, "No marks given")
			}
			for _, m := range s.Keys {
				if !v.marks[m] {
					return 0, out, invalid(i, s, "Unknown mark %v", m)
				}
			}
			kind, out = 0, OutputSelections

		case st == gripql.StepFields, st == gripql.StepDistinct:

		case st == gripql.StepRender:
			kind, out = 0, OutputRender

		case st == gripql.StepUnwind:
			if s.Name == "" {
				return 0, out, invalid(i, s, "No field given")
			} else if !traveler.ParseSelector(s.Name).IsField() {
				return 0, out, invalid(i, s, "Field %v is not a data field of the current element", s.Name)
			}

		case st == gripql.StepLimit, st == gripql.StepSkip:
			if s.N < 0 {
				return 0, out, invalid(i, s, "Value must not be negative")
			}

		case st == gripql.StepRange:
			if s.Start < 0 || s.Stop < -1 || (s.Stop != -1 && s.Stop < s.Start) {
				return 0, out, invalid(i, s, "Invalid range %v to %v", s.Start, s.Stop)
			}

		case st == gripql.StepCount:
			kind, out, terminal = 0, OutputCount, true

		case st == gripql.StepAggregate:
			if err := validateAggregations(s.Aggregations); err != nil {
				return 0, out, invalid(i, s, "%v", err)
			}
			kind, out, aggregated = 0, OutputAggregations, true

		case st == gripql.StepMatch:
			if len(s.Queries) == 0 {
				return 0, out, invalid(i, s, "No queries given")
			}
			for _, sub := range s.Queries {
				if sub == nil || len(sub.Steps) == 0 {
					return 0, out, invalid(i, s, "Empty sub query")
				}
				subKind, _, err := v.validate(sub.Steps, kind, false)
				if err != nil {
					return 0, out, err
				} else if subKind == 0 {
					return 0, out, invalid(i, s, "Sub query must produce elements")
				}
			}

		case st == gripql.StepPath:
			kind, out = 0, OutputPath

		default:
			return 0, out, invalid(i, s, "Unknown step")
		}
	}

	if out == OutputNone && kind != 0 {
		out = outputForElement(kind)
	}

	return kind, out, nil
}

/*
validateExpression validates a has expression.
*/
func validateExpression(e *gripql.Expression) error {
	if e == nil {
		return fmt.Errorf("Missing expression")
	}

	switch {
	case e.Condition != nil:
		c := e.Condition

		if c.Key == "" {
			return fmt.Errorf("Condition without key")
		} else if !c.Operator.Valid() {
			return fmt.Errorf("Unknown condition %v", c.Operator)
		}

		switch c.Operator {
		case gripql.INSIDE, gripql.OUTSIDE, gripql.BETWEEN:
			if l, ok := c.Value.([]interface{}); !ok || len(l) != 2 {
				return fmt.Errorf("Condition %v needs a list of two values", c.Operator)
			}
		}

	case e.Not != nil:
		return validateExpression(e.Not)

	default:
		for _, sub := range append(e.And, e.Or...) {
			if err := validateExpression(sub); err != nil {
				return err
			}
		}
	}

	return nil
}

/*
validateAggregations validates the aggregations of an aggregate step.
*/
func validateAggregations(aggs []*gripql.Aggregation) error {
	names := make(map[string]bool)

	if len(aggs) == 0 {
		return fmt.Errorf("No aggregations given")
	}

	for _, a := range aggs {
		if a == nil || a.Name == "" {
			return fmt.Errorf("Aggregation without name")
		} else if names[a.Name] {
			return fmt.Errorf("Duplicate aggregation name %v", a.Name)
		}

		names[a.Name] = true

		switch a.Type {
		case gripql.AggTerm, gripql.AggType:
			if a.Field == "" {
				return fmt.Errorf("Aggregation %v without field", a.Name)
			}
		case gripql.AggHistogram:
			if a.Field == "" || a.Interval <= 0 {
				return fmt.Errorf("Histogram %v needs a field and a positive interval", a.Name)
			}
		case gripql.AggPercentile:
			if a.Field == "" {
				return fmt.Errorf("Aggregation %v without field", a.Name)
			}
			for _, p := range a.Percents {
				if p < 0 || p > 100 {
					return fmt.Errorf("Invalid percent %v in aggregation %v", p, a.Name)
				}
			}
		case gripql.AggField:
		default:
			return fmt.Errorf("Unknown aggregation type %v", a.Type)
		}
	}

	return nil
}
