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
Package data contains the data model of the graph.

Vertices and edges are items stored in a graph. Each item has a unique gid,
a label and a data object which holds arbitrary JSON values. Edges connect
two vertices through their from and to gids.

Every element exposes logical attributes which are not part of its data:

	_gid    Unique id of the element
	_label  Label of the element
	_from   Start vertex of an edge
	_to     End vertex of an edge
*/
package data

import (
	"fmt"
	"sort"
)

/*
Logical attributes of an element
*/
const (
	AttrGid   = "_gid"
	AttrLabel = "_label"
	AttrFrom  = "_from"
	AttrTo    = "_to"
	AttrData  = "_data"
)

/*
ElementKind is the kind of a graph element.
*/
type ElementKind int

/*
Known element kinds
*/
const (
	KindVertex ElementKind = iota + 1
	KindEdge
)

/*
String returns a string representation of an element kind.
*/
func (k ElementKind) String() string {
	switch k {
	case KindVertex:
		return "vertex"
	case KindEdge:
		return "edge"
	}
	return "unknown"
}

/*
Vertex is a vertex as it is exchanged with clients.
*/
type Vertex struct {
	Gid   string                 `json:"gid"`
	Label string                 `json:"label"`
	Data  map[string]interface{} `json:"data"`
}

/*
Edge is an edge as it is exchanged with clients.
*/
type Edge struct {
	Gid   string                 `json:"gid"`
	Label string                 `json:"label"`
	From  string                 `json:"from"`
	To    string                 `json:"to"`
	Data  map[string]interface{} `json:"data"`
}

/*
Element is a vertex or an edge as it flows through the query engine. An
element without gid is the empty element which null-preserving movement
steps emit.
*/
type Element struct {
	Kind  ElementKind
	Gid   string
	Label string
	From  string
	To    string
	Data  map[string]interface{}
}

/*
NewVertexElement creates a new vertex element.
*/
func NewVertexElement(gid, label string, data map[string]interface{}) *Element {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &Element{Kind: KindVertex, Gid: gid, Label: label, Data: data}
}

/*
NewEdgeElement creates a new edge element.
*/
func NewEdgeElement(gid, label, from, to string, data map[string]interface{}) *Element {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &Element{Kind: KindEdge, Gid: gid, Label: label, From: from, To: to, Data: data}
}

/*
NewNullElement creates the empty element of a given kind.
*/
func NewNullElement(kind ElementKind) *Element {
	return &Element{Kind: kind}
}

/*
IsNull returns true if this element is the empty element.
*/
func (e *Element) IsNull() bool {
	return e == nil || e.Gid == ""
}

/*
Attr returns a logical attribute or a top level data value and a flag if
the value exists.
*/
func (e *Element) Attr(name string) (interface{}, bool) {
	if e.IsNull() {
		return nil, false
	}

	switch name {
	case AttrGid:
		return e.Gid, true
	case AttrLabel:
		return e.Label, true
	case AttrFrom:
		if e.Kind == KindEdge {
			return e.From, true
		}
		return nil, false
	case AttrTo:
		if e.Kind == KindEdge {
			return e.To, true
		}
		return nil, false
	case AttrData:
		return e.Data, true
	}

	v, ok := e.Data[name]
	return v, ok
}

/*
Vertex returns the client representation of a vertex element.
*/
func (e *Element) Vertex() *Vertex {
	return &Vertex{e.Gid, e.Label, e.Data}
}

/*
Edge returns the client representation of an edge element.
*/
func (e *Element) Edge() *Edge {
	return &Edge{e.Gid, e.Label, e.From, e.To, e.Data}
}

/*
ToMap returns a map representation of this element which contains the
logical attributes and the data.
*/
func (e *Element) ToMap() map[string]interface{} {
	if e.IsNull() {
		return nil
	}

	ret := map[string]interface{}{
		AttrGid:   e.Gid,
		AttrLabel: e.Label,
	}

	if e.Kind == KindEdge {
		ret[AttrFrom] = e.From
		ret[AttrTo] = e.To
	}

	for k, v := range e.Data {
		ret[k] = v
	}

	return ret
}

/*
WithData returns a shallow copy of this element with different data.
*/
func (e *Element) WithData(data map[string]interface{}) *Element {
	ret := *e
	ret.Data = data
	return &ret
}

/*
String returns a string representation of this element.
*/
func (e *Element) String() string {
	if e.IsNull() {
		return fmt.Sprintf("%v: <null>", e.Kind)
	}

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ret := fmt.Sprintf("%v: %v (%v)", e.Kind, e.Gid, e.Label)
	if e.Kind == KindEdge {
		ret += fmt.Sprintf(" %v -> %v", e.From, e.To)
	}
	for _, k := range keys {
		ret += fmt.Sprintf(" %v=%v", k, e.Data[k])
	}

	return ret
}

/*
ToElement converts a client vertex into an element.
*/
func (v *Vertex) ToElement() *Element {
	return NewVertexElement(v.Gid, v.Label, CopyData(v.Data))
}

/*
ToElement converts a client edge into an element.
*/
func (e *Edge) ToElement() *Element {
	return NewEdgeElement(e.Gid, e.Label, e.From, e.To, CopyData(e.Data))
}
