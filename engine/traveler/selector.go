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
	"strconv"
	"strings"

	"devt.de/krotik/gripdb/graph/data"
)

/*
Segment is a single part of a selector path. A segment is either a key or
an array index.
*/
type Segment struct {
	Key   string
	Index int
	IsIdx bool
}

/*
Selector addresses a value of a traveler.
*/
type Selector struct {
	Mark string    // Mark name (Current for the current element)
	Path []Segment // Path below the element
}

/*
ParseSelector parses a selector string.
*/
func ParseSelector(s string) *Selector {
	sel := &Selector{Mark: Current}

	if strings.HasPrefix(s, "$") {
		s = s[1:]

		dot := strings.Index(s, ".")
		bracket := strings.Index(s, "[")

		end := len(s)
		if dot != -1 {
			end = dot
		}
		if bracket != -1 && bracket < end {
			end = bracket
		}

		if end > 0 {
			sel.Mark = s[:end]
		}

		s = strings.TrimPrefix(s[end:], ".")
	}

	sel.Path = parsePath(s)

	return sel
}

/*
parsePath parses a dotted path with optional array indices.
*/
func parsePath(s string) []Segment {
	var ret []Segment

	for _, part := range strings.Split(s, ".") {

		for part != "" {
			open := strings.Index(part, "[")

			if open == -1 {
				ret = append(ret, Segment{Key: part})
				break
			}

			if open > 0 {
				ret = append(ret, Segment{Key: part[:open]})
			}

			close := strings.Index(part[open:], "]")
			if close == -1 {
				ret = append(ret, Segment{Key: part[open:]})
				break
			}

			if idx, err := strconv.Atoi(part[open+1 : open+close]); err == nil {
				ret = append(ret, Segment{Index: idx, IsIdx: true})
			} else {
				ret = append(ret, Segment{Key: part[open+1 : open+close]})
			}

			part = part[open+close+1:]
		}
	}

	return ret
}

/*
IsField returns true if the selector addresses a data field of the current
element (and not a logical attribute or a marked element).
*/
func (s *Selector) IsField() bool {
	return s.Mark == Current && len(s.Path) > 0 && !s.Path[0].IsIdx && !isReserved(s.Path[0].Key)
}

/*
FieldPath returns the dotted data field path of this selector. Only
meaningful if IsField returns true.
*/
func (s *Selector) FieldPath() []string {
	var ret []string
	for _, seg := range s.Path {
		if seg.IsIdx {
			break
		}
		ret = append(ret, seg.Key)
	}
	return ret
}

/*
Get resolves the selector against a traveler. Returns false if the value
does not exist.
*/
func (s *Selector) Get(t *Traveler) (interface{}, bool) {
	el, ok := t.GetMark(s.Mark)
	if !ok || el.IsNull() {
		return nil, false
	}

	return s.GetFromElement(el)
}

/*
GetFromElement resolves the path of the selector against an element.
*/
func (s *Selector) GetFromElement(el *data.Element) (interface{}, bool) {
	var cur interface{}

	if el.IsNull() {
		return nil, false
	}

	path := s.Path

	if len(path) == 0 {
		return el.ToMap(), true
	}

	if first := path[0]; !first.IsIdx && isReserved(first.Key) {
		v, ok := el.Attr(first.Key)
		if !ok {
			return nil, false
		}
		cur, path = v, path[1:]
	} else {
		cur = el.Data
	}

	for _, seg := range path {
		if seg.IsIdx {
			l, ok := cur.([]interface{})
			if !ok || seg.Index < 0 || seg.Index >= len(l) {
				return nil, false
			}
			cur = l[seg.Index]
			continue
		}

		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg.Key]; !ok {
			return nil, false
		}
	}

	return cur, true
}

/*
GetValue resolves a selector string against a traveler.
*/
func GetValue(t *Traveler, selector string) (interface{}, bool) {
	return ParseSelector(selector).Get(t)
}

func isReserved(key string) bool {
	switch key {
	case data.AttrGid, data.AttrLabel, data.AttrFrom, data.AttrTo, data.AttrData:
		return true
	}
	return false
}

/*
Render renders a template against a traveler. Strings which start with "$"
are replaced by the selected value (null if it does not exist). Maps and
lists are rendered recursively. All other values are kept.
*/
func Render(t *Traveler, template interface{}) interface{} {
	switch tmpl := template.(type) {
	case string:
		if strings.HasPrefix(tmpl, "$") {
			v, _ := GetValue(t, tmpl)
			return data.CopyValue(v)
		}
		return tmpl

	case map[string]interface{}:
		ret := make(map[string]interface{}, len(tmpl))
		for k, v := range tmpl {
			ret[k] = Render(t, v)
		}
		return ret

	case []interface{}:
		ret := make([]interface{}, len(tmpl))
		for i, v := range tmpl {
			ret[i] = Render(t, v)
		}
		return ret
	}

	return template
}
