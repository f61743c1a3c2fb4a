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
Package traveler contains the unit of work of the query engine.

A traveler carries the current element, the elements which were marked with
"as" steps and optionally the path of gids which it visited. Travelers are
immutable: every modification returns a new traveler which shares unchanged
parts with its origin.

Selectors address values of a traveler:

	$name.field.sub   field of the element marked as "name"
	$.field           field of the current element
	field             field of the current element
	$name             the whole element marked as "name"

The reserved fields _gid, _label, _from, _to and _data address the logical
attributes of an element. Array items are addressed with [n].
*/
package traveler

import (
	"sort"

	"devt.de/krotik/gripdb/graph/data"
)

/*
Current is the mark namespace of the current element.
*/
const Current = "__current__"

/*
Traveler models a single traveler of a query pipeline.
*/
type Traveler struct {
	current   *data.Element            // Current element
	marks     map[string]*data.Element // Marked elements (shared, never modified)
	path      []string                 // Visited gids (nil if not tracked)
	trackPath bool                     // Flag if the path is tracked
	value     interface{}              // Output value of shaping steps
}

/*
New creates a new traveler which starts at a given element.
*/
func New(el *data.Element, trackPath bool) *Traveler {
	t := &Traveler{current: el, trackPath: trackPath}

	if trackPath {
		t.path = []string{el.Gid}
	}

	return t
}

/*
Current returns the current element.
*/
func (t *Traveler) Current() *data.Element {
	return t.current
}

/*
WithCurrent returns a traveler which moved to a new element.
*/
func (t *Traveler) WithCurrent(el *data.Element) *Traveler {
	ret := *t
	ret.current = el

	if t.trackPath {
		ret.path = make([]string, len(t.path), len(t.path)+1)
		copy(ret.path, t.path)
		ret.path = append(ret.path, el.Gid)
	}

	return &ret
}

/*
WithElement returns a traveler with a modified current element. The path is
not extended.
*/
func (t *Traveler) WithElement(el *data.Element) *Traveler {
	ret := *t
	ret.current = el
	return &ret
}

/*
AddMark returns a traveler which has the current element stored under a
given name. An existing mark of the same name is overwritten.
*/
func (t *Traveler) AddMark(name string) *Traveler {
	ret := *t
	ret.marks = make(map[string]*data.Element, len(t.marks)+1)

	for k, v := range t.marks {
		ret.marks[k] = v
	}

	ret.marks[name] = t.current

	return &ret
}

/*
GetMark returns a marked element.
*/
func (t *Traveler) GetMark(name string) (*data.Element, bool) {
	if name == Current || name == "" {
		return t.current, true
	}

	el, ok := t.marks[name]

	return el, ok
}

/*
MarkNames returns the sorted names of all marks.
*/
func (t *Traveler) MarkNames() []string {
	ret := make([]string, 0, len(t.marks))
	for k := range t.marks {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

/*
MergeMarks returns a traveler which carries the marks of this traveler and
of another traveler. Marks of the other traveler win.
*/
func (t *Traveler) MergeMarks(other *Traveler) *Traveler {
	if len(other.marks) == 0 {
		return t
	}

	ret := *t
	ret.marks = make(map[string]*data.Element, len(t.marks)+len(other.marks))

	for k, v := range t.marks {
		ret.marks[k] = v
	}
	for k, v := range other.marks {
		ret.marks[k] = v
	}

	return &ret
}

/*
Path returns the visited gids.
*/
func (t *Traveler) Path() []string {
	return t.path
}

/*
TracksPath returns true if the traveler tracks its path.
*/
func (t *Traveler) TracksPath() bool {
	return t.trackPath
}

/*
WithValue returns a traveler which carries an output value.
*/
func (t *Traveler) WithValue(v interface{}) *Traveler {
	ret := *t
	ret.value = v
	return &ret
}

/*
Value returns the output value of this traveler.
*/
func (t *Traveler) Value() interface{} {
	return t.value
}
