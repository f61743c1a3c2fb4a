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
	"strings"

	"devt.de/krotik/gripdb/engine/traveler"
	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/gripql"
	"github.com/spf13/cast"
)

/*
MatchesExpression evaluates a has expression against a traveler. A condition
on a missing field is false.
*/
func MatchesExpression(e *gripql.Expression, t *traveler.Traveler) bool {
	switch {
	case e.Condition != nil:
		return matchesCondition(e.Condition, t)

	case e.Not != nil:
		return !MatchesExpression(e.Not, t)

	case e.Or != nil:
		for _, sub := range e.Or {
			if MatchesExpression(sub, t) {
				return true
			}
		}
		return false
	}

	for _, sub := range e.And {
		if !MatchesExpression(sub, t) {
			return false
		}
	}

	return true
}

/*
matchesCondition evaluates a single condition.
*/
func matchesCondition(c *gripql.Condition, t *traveler.Traveler) bool {
	val, ok := traveler.GetValue(t, c.Key)
	if !ok {
		return false
	}

	cmp := c.Value

	if s, isStr := cmp.(string); isStr && strings.HasPrefix(s, "$") {
		if cmp, ok = traveler.GetValue(t, s); !ok {
			return false
		}
	}

	switch c.Operator {
	case gripql.EQ:
		return data.ValueEqual(val, cmp)

	case gripql.NEQ:
		return !data.ValueEqual(val, cmp)

	case gripql.GT:
		res, ok := compareValues(val, cmp)
		return ok && res > 0

	case gripql.GTE:
		res, ok := compareValues(val, cmp)
		return ok && res >= 0

	case gripql.LT:
		res, ok := compareValues(val, cmp)
		return ok && res < 0

	case gripql.LTE:
		res, ok := compareValues(val, cmp)
		return ok && res <= 0

	case gripql.INSIDE, gripql.OUTSIDE, gripql.BETWEEN:
		return matchesRange(c.Operator, val, cmp)

	case gripql.WITHIN:
		return within(val, cmp)

	case gripql.WITHOUT:
		return !within(val, cmp)

	case gripql.CONTAINS:
		l, ok := val.([]interface{})
		if !ok {
			return false
		}
		for _, item := range l {
			if data.ValueEqual(item, cmp) {
				return true
			}
		}
	}

	return false
}

/*
compareValues compares two values. Strings are compared lexically, all other
values numerically. Returns false if the values cannot be compared.
*/
func compareValues(v1, v2 interface{}) (int, bool) {
	s1, ok1 := v1.(string)
	s2, ok2 := v2.(string)

	if ok1 && ok2 {
		return strings.Compare(s1, s2), true
	}

	n1, err1 := toFloat(v1)
	n2, err2 := toFloat(v2)

	if err1 != nil || err2 != nil {
		return 0, false
	}

	switch {
	case n1 < n2:
		return -1, true
	case n1 > n2:
		return 1, true
	}

	return 0, true
}

/*
toFloat converts a numeric value into a float64. Booleans and null are not
numbers.
*/
func toFloat(v interface{}) (float64, error) {
	switch v.(type) {
	case nil, bool:
		return 0, fmt.Errorf("Not a number: %v", v)
	}
	return cast.ToFloat64E(v)
}

/*
matchesRange evaluates INSIDE (lo < v < hi), OUTSIDE (v < lo or v > hi) and
BETWEEN (lo <= v < hi).
*/
func matchesRange(op gripql.Operator, val, bounds interface{}) bool {
	l, err := cast.ToSliceE(bounds)
	if err != nil || len(l) != 2 {
		return false
	}

	v, err1 := toFloat(val)
	lo, err2 := toFloat(l[0])
	hi, err3 := toFloat(l[1])

	if err1 != nil || err2 != nil || err3 != nil {
		return false
	}

	switch op {
	case gripql.INSIDE:
		return v > lo && v < hi
	case gripql.OUTSIDE:
		return v < lo || v > hi
	}

	return v >= lo && v < hi
}

/*
within checks if a value is one of a list of values. A value which is not a
list is treated as a list with a single item.
*/
func within(val, list interface{}) bool {
	l, err := cast.ToSliceE(list)
	if err != nil {
		l = []interface{}{list}
	}

	for _, item := range l {
		if data.ValueEqual(val, item) {
			return true
		}
	}

	return false
}
