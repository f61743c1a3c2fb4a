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
	"encoding/json"
	"fmt"

	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/graph/util"
)

/*
ResultKind is the kind of a result record.
*/
type ResultKind string

/*
Known result kinds. The kind is the JSON key of the record.
*/
const (
	ResultVertex       ResultKind = "vertex"
	ResultEdge         ResultKind = "edge"
	ResultSelections   ResultKind = "selections"
	ResultAggregations ResultKind = "aggregations"
	ResultRender       ResultKind = "render"
	ResultPath         ResultKind = "path"
	ResultCount        ResultKind = "count"
	ResultError        ResultKind = "error"
)

/*
Selection is a selected element. Either Vertex or Edge is set.
*/
type Selection struct {
	Vertex *data.Vertex `json:"vertex,omitempty"`
	Edge   *data.Edge   `json:"edge,omitempty"`
}

/*
AggregationRecord is a single bucket of a named aggregation.
*/
type AggregationRecord struct {
	Name  string      `json:"name"`
	Key   interface{} `json:"key"`
	Value float64     `json:"value"`
}

/*
ErrorRecord is a failure which happened while a query was streaming.
*/
type ErrorRecord struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

/*
Result is a single record of a query result stream. Exactly one field which
belongs to the result kind is set.
*/
type Result struct {
	Kind        ResultKind
	Vertex      *data.Vertex
	Edge        *data.Edge
	Selections  map[string]*Selection // Missing marks map to nil
	Aggregation *AggregationRecord
	Render      interface{}
	Path        []string
	Count       int64
	Error       *ErrorRecord
}

/*
NewErrorResult creates an error record from an error.
*/
func NewErrorResult(err error) *Result {
	ge := util.ToGraphError(err)

	msg := ge.Detail
	if msg == "" {
		msg = ge.Type.Error()
	}

	return &Result{Kind: ResultError, Error: &ErrorRecord{
		Kind:    util.Kind(ge).Error(),
		Message: msg,
		ID:      ge.ID,
	}}
}

/*
NewSelection creates a selection from an element. The empty element gives a
nil selection.
*/
func NewSelection(el *data.Element) *Selection {
	if el.IsNull() {
		return nil
	} else if el.Kind == data.KindEdge {
		return &Selection{Edge: el.Edge()}
	}
	return &Selection{Vertex: el.Vertex()}
}

/*
MarshalJSON encodes a result as an object with a single key.
*/
func (r *Result) MarshalJSON() ([]byte, error) {
	var val interface{}

	switch r.Kind {
	case ResultVertex:
		val = r.Vertex
	case ResultEdge:
		val = r.Edge
	case ResultSelections:
		val = map[string]interface{}{"selections": r.Selections}
	case ResultAggregations:
		val = map[string]interface{}{"aggregations": r.Aggregation}
	case ResultRender:
		val = r.Render
	case ResultPath:
		val = r.Path
	case ResultCount:
		val = r.Count
	case ResultError:
		val = r.Error
	default:
		return nil, fmt.Errorf("Unknown result kind: %v", r.Kind)
	}

	return json.Marshal(map[string]interface{}{string(r.Kind): val})
}

/*
UnmarshalJSON decodes a result record.
*/
func (r *Result) UnmarshalJSON(b []byte) error {
	var obj map[string]json.RawMessage

	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}

	if len(obj) != 1 {
		return fmt.Errorf("Result must have exactly one key: %s", b)
	}

	for key, raw := range obj {
		var err error

		*r = Result{Kind: ResultKind(key)}

		switch r.Kind {
		case ResultVertex:
			err = json.Unmarshal(raw, &r.Vertex)
		case ResultEdge:
			err = json.Unmarshal(raw, &r.Edge)
		case ResultSelections:
			var sel struct {
				Selections map[string]*Selection `json:"selections"`
			}
			err = json.Unmarshal(raw, &sel)
			r.Selections = sel.Selections
		case ResultAggregations:
			var agg struct {
				Aggregations *AggregationRecord `json:"aggregations"`
			}
			err = json.Unmarshal(raw, &agg)
			r.Aggregation = agg.Aggregations
		case ResultRender:
			err = json.Unmarshal(raw, &r.Render)
		case ResultPath:
			err = json.Unmarshal(raw, &r.Path)
		case ResultCount:
			err = json.Unmarshal(raw, &r.Count)
		case ResultError:
			err = json.Unmarshal(raw, &r.Error)
		default:
			err = fmt.Errorf("Unknown result kind: %v", key)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

/*
String returns the JSON representation of this result.
*/
func (r *Result) String() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(b)
}
