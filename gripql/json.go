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
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"devt.de/krotik/gripdb/graph/util"
)

/*
ParseQuery parses a JSON query body {"query": [...]}. A plain list of steps
is accepted as well. Errors are INVALID_ARGUMENT graph errors.
*/
func ParseQuery(body []byte) (*Query, error) {
	var q Query

	if err := json.Unmarshal(body, &q); err != nil {
		return nil, util.NewGraphError(util.ErrInvalidArgument, err.Error())
	}

	return &q, nil
}

// Query
// =====

/*
MarshalJSON encodes a query as {"query": [...]}.
*/
func (q *Query) MarshalJSON() ([]byte, error) {
	steps := q.Steps
	if steps == nil {
		steps = []*Step{}
	}
	return json.Marshal(map[string]interface{}{"query": steps})
}

/*
UnmarshalJSON decodes a query from {"query": [...]} or a plain step list.
*/
func (q *Query) UnmarshalJSON(b []byte) error {
	var wrapped struct {
		Query []*Step `json:"query"`
	}

	b = bytes.TrimSpace(b)

	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, &q.Steps)
	}

	if err := json.Unmarshal(b, &wrapped); err != nil {
		return err
	}

	q.Steps = wrapped.Query

	return nil
}

// Step
// ====

type rangeJSON struct {
	Start int64  `json:"start"`
	Stop  *int64 `json:"stop,omitempty"`
}

/*
MarshalJSON encodes a step as an object with a single key.
*/
func (s *Step) MarshalJSON() ([]byte, error) {
	var val interface{}

	orEmpty := func(l []string) []string {
		if l == nil {
			return []string{}
		}
		return l
	}

	switch s.Type {
	case StepV, StepE, StepHasID:
		val = orEmpty(s.IDs)

	case StepIn, StepOut, StepBoth, StepInE, StepOutE, StepBothE, StepInNull,
		StepOutNull, StepInENull, StepOutENull, StepHasLabel:
		val = orEmpty(s.Labels)

	case StepHasKey, StepFields, StepDistinct:
		val = orEmpty(s.Keys)

	case StepSelect:
		val = map[string]interface{}{"marks": orEmpty(s.Keys)}

	case StepAs, StepUnwind:
		val = s.Name

	case StepHas:
		val = s.Has

	case StepRender:
		val = s.Value

	case StepLimit, StepSkip:
		val = s.N

	case StepRange:
		stop := s.Stop
		val = rangeJSON{s.Start, &stop}

	case StepInV, StepOutV, StepCount, StepPath:
		val = ""

	case StepAggregate:
		aggs := s.Aggregations
		if aggs == nil {
			aggs = []*Aggregation{}
		}
		val = map[string]interface{}{"aggregations": aggs}

	case StepMatch:
		queries := s.Queries
		if queries == nil {
			queries = []*Query{}
		}
		val = map[string]interface{}{"queries": queries}

	default:
		return nil, fmt.Errorf("Unknown step type: %v", s.Type)
	}

	return json.Marshal(map[string]interface{}{string(s.Type): val})
}

/*
UnmarshalJSON decodes a step from an object with a single key.
*/
func (s *Step) UnmarshalJSON(b []byte) error {
	var obj map[string]json.RawMessage
	var err error

	if err = json.Unmarshal(b, &obj); err != nil {
		return err
	}

	if len(obj) != 1 {
		return fmt.Errorf("Step must have exactly one key: %s", b)
	}

	for key, raw := range obj {
		st, ok := LookupStepType(key)
		if !ok {
			return fmt.Errorf("Unknown step: %v", key)
		}

		*s = Step{Type: st}

		switch st {
		case StepV, StepE, StepHasID:
			s.IDs, err = decodeStringList(raw)

		case StepIn, StepOut, StepBoth, StepInE, StepOutE, StepBothE, StepInNull,
			StepOutNull, StepInENull, StepOutENull, StepHasLabel:
			s.Labels, err = decodeStringList(raw)

		case StepHasKey, StepFields, StepDistinct:
			s.Keys, err = decodeStringList(raw)

		case StepSelect:
			var marks struct {
				Marks json.RawMessage `json:"marks"`
			}
			if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
				if err = json.Unmarshal(raw, &marks); err == nil {
					s.Keys, err = decodeStringList(marks.Marks)
				}
			} else {
				s.Keys, err = decodeStringList(raw)
			}

		case StepAs, StepUnwind:
			err = json.Unmarshal(raw, &s.Name)

		case StepHas:
			s.Has = &Expression{}
			err = json.Unmarshal(raw, s.Has)

		case StepRender:
			err = json.Unmarshal(raw, &s.Value)

		case StepLimit, StepSkip:
			s.N, err = decodeInt(raw)

		case StepRange:
			var r rangeJSON
			if err = json.Unmarshal(raw, &r); err == nil {
				s.Start, s.Stop = r.Start, -1
				if r.Stop != nil {
					s.Stop = *r.Stop
				}
			}

		case StepAggregate:
			var aggs struct {
				Aggregations []*Aggregation `json:"aggregations"`
			}
			if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
				err = json.Unmarshal(raw, &aggs.Aggregations)
			} else {
				err = json.Unmarshal(raw, &aggs)
			}
			s.Aggregations = aggs.Aggregations

		case StepMatch:
			var queries struct {
				Queries []*Query `json:"queries"`
			}
			if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
				err = json.Unmarshal(raw, &queries.Queries)
			} else {
				err = json.Unmarshal(raw, &queries)
			}
			s.Queries = queries.Queries
		}

		if err != nil {
			return fmt.Errorf("Invalid value for step %v: %v", key, err)
		}
	}

	return nil
}

/*
decodeStringList decodes a list of strings. A single string, an empty string
and null are accepted as well.
*/
func decodeStringList(raw json.RawMessage) ([]string, error) {
	var list []string
	var single string

	raw = bytes.TrimSpace(raw)

	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &single); err != nil || single == "" {
			return nil, err
		}
		return []string{single}, nil
	}

	err := json.Unmarshal(raw, &list)

	return list, err
}

/*
decodeInt decodes an integer number.
*/
func decodeInt(raw json.RawMessage) (int64, error) {
	var f float64

	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}

	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}

	return int64(f), nil
}

// Expression
// ==========

type expressionList struct {
	Expressions []*Expression `json:"expressions"`
}

/*
MarshalJSON encodes an expression.
*/
func (e *Expression) MarshalJSON() ([]byte, error) {
	switch {
	case e.Condition != nil:
		return json.Marshal(map[string]interface{}{"condition": e.Condition})
	case e.Not != nil:
		return json.Marshal(map[string]interface{}{"not": e.Not})
	case e.Or != nil:
		return json.Marshal(map[string]interface{}{"or": expressionList{e.Or}})
	}

	and := e.And
	if and == nil {
		and = []*Expression{}
	}

	return json.Marshal(map[string]interface{}{"and": expressionList{and}})
}

/*
UnmarshalJSON decodes an expression.
*/
func (e *Expression) UnmarshalJSON(b []byte) error {
	var obj struct {
		And       *expressionList `json:"and"`
		Or        *expressionList `json:"or"`
		Not       *Expression     `json:"not"`
		Condition *Condition      `json:"condition"`
	}

	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}

	set := 0

	if obj.And != nil {
		e.And = obj.And.Expressions
		if e.And == nil {
			e.And = []*Expression{}
		}
		set++
	}
	if obj.Or != nil {
		e.Or = obj.Or.Expressions
		if e.Or == nil {
			e.Or = []*Expression{}
		}
		set++
	}
	if obj.Not != nil {
		e.Not = obj.Not
		set++
	}
	if obj.Condition != nil {
		e.Condition = obj.Condition
		set++
	}

	if set != 1 {
		return fmt.Errorf("Expression must have exactly one of and, or, not, condition: %s", b)
	}

	if e.Condition != nil && !e.Condition.Operator.Valid() {
		return fmt.Errorf("Unknown condition: %v", e.Condition.Operator)
	}

	return nil
}

// Aggregation
// ===========

type aggregationJSON struct {
	Name       string         `json:"name"`
	Term       *aggParamsJSON `json:"term,omitempty"`
	Histogram  *aggParamsJSON `json:"histogram,omitempty"`
	Percentile *aggParamsJSON `json:"percentile,omitempty"`
	Field      *aggParamsJSON `json:"field,omitempty"`
	Type       *aggParamsJSON `json:"type,omitempty"`
}

type aggParamsJSON struct {
	Field    string    `json:"field"`
	Size     int64     `json:"size,omitempty"`
	Interval float64   `json:"interval,omitempty"`
	Percents []float64 `json:"percents,omitempty"`
}

/*
MarshalJSON encodes an aggregation.
*/
func (a *Aggregation) MarshalJSON() ([]byte, error) {
	obj := aggregationJSON{Name: a.Name}
	params := &aggParamsJSON{Field: a.Field}

	switch a.Type {
	case AggTerm:
		params.Size = a.Size
		obj.Term = params
	case AggHistogram:
		params.Interval = a.Interval
		obj.Histogram = params
	case AggPercentile:
		params.Percents = a.Percents
		obj.Percentile = params
	case AggField:
		obj.Field = params
	case AggType:
		obj.Type = params
	default:
		return nil, fmt.Errorf("Unknown aggregation type: %v", a.Type)
	}

	return json.Marshal(obj)
}

/*
UnmarshalJSON decodes an aggregation.
*/
func (a *Aggregation) UnmarshalJSON(b []byte) error {
	var obj aggregationJSON

	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}

	*a = Aggregation{Name: obj.Name}

	set := 0

	for _, c := range []struct {
		t AggregationType
		p *aggParamsJSON
	}{
		{AggTerm, obj.Term},
		{AggHistogram, obj.Histogram},
		{AggPercentile, obj.Percentile},
		{AggField, obj.Field},
		{AggType, obj.Type},
	} {
		if c.p != nil {
			a.Type = c.t
			a.Field = c.p.Field
			a.Size = c.p.Size
			a.Interval = c.p.Interval
			a.Percents = c.p.Percents
			set++
		}
	}

	if set != 1 {
		return fmt.Errorf("Aggregation %v must have exactly one type", obj.Name)
	}

	return nil
}
