/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package data

import (
	"encoding/json"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

/*
CopyData makes a deep copy of a JSON data object.
*/
func CopyData(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	return CopyValue(data).(map[string]interface{})
}

/*
CopyValue makes a deep copy of a JSON value.
*/
func CopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		ret := make(map[string]interface{}, len(val))
		for k, v := range val {
			ret[k] = CopyValue(v)
		}
		return ret

	case []interface{}:
		ret := make([]interface{}, len(val))
		for i, v := range val {
			ret[i] = CopyValue(v)
		}
		return ret
	}

	return v
}

/*
ElementCompare compares two elements including their data.
*/
func ElementCompare(e1 *Element, e2 *Element) bool {
	if e1.IsNull() || e2.IsNull() {
		return e1.IsNull() == e2.IsNull()
	}

	return e1.Kind == e2.Kind && e1.Gid == e2.Gid && e1.Label == e2.Label &&
		e1.From == e2.From && e1.To == e2.To && reflect.DeepEqual(e1.Data, e2.Data)
}

/*
ElementSort sorts a list of elements by gid.
*/
func ElementSort(list []*Element) {
	sort.Sort(ElementSlice(list))
}

/*
ElementSlice attaches the methods of sort.Interface to []*Element, sorting in
increasing order by gid.
*/
type ElementSlice []*Element

func (es ElementSlice) Len() int {
	return len(es)
}

func (es ElementSlice) Less(i, j int) bool {
	return es[i].Gid < es[j].Gid
}

func (es ElementSlice) Swap(i, j int) {
	es[i], es[j] = es[j], es[i]
}

/*
ToNumber converts a numeric value into a float64. Returns false if the value
is not a number.
*/
func ToNumber(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	return 0, false
}

/*
ValueEqual compares two JSON values. Numbers are compared by value regardless
of their Go type.
*/
func ValueEqual(v1 interface{}, v2 interface{}) bool {
	if n1, ok := ToNumber(v1); ok {
		if n2, ok := ToNumber(v2); ok {
			return n1 == n2
		}
		return false
	}

	switch val1 := v1.(type) {
	case []interface{}:
		val2, ok := v2.([]interface{})
		if !ok || len(val1) != len(val2) {
			return false
		}
		for i := range val1 {
			if !ValueEqual(val1[i], val2[i]) {
				return false
			}
		}
		return true

	case map[string]interface{}:
		val2, ok := v2.(map[string]interface{})
		if !ok || len(val1) != len(val2) {
			return false
		}
		for k, v := range val1 {
			if ov, ok := val2[k]; !ok || !ValueEqual(v, ov) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(v1, v2)
}

/*
IndexKey returns a string key for a scalar value which can be stored in an
index. Returns false if the value is not a scalar.
*/
func IndexKey(v interface{}) (string, bool) {
	if n, ok := ToNumber(v); ok {
		return "n" + strconv.FormatFloat(n, 'g', -1, 64), true
	}

	switch val := v.(type) {
	case string:
		return "s" + val, true
	case bool:
		return "b" + strconv.FormatBool(val), true
	}

	return "", false
}

/*
FieldValue looks up a (possibly dotted) field in a data object.
*/
func FieldValue(data map[string]interface{}, field string) (interface{}, bool) {
	var cur interface{} = data

	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}

	return cur, true
}
