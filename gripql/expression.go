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
	"fmt"
	"strings"
)

/*
Operator is the comparison operator of a condition.
*/
type Operator string

/*
Known operators
*/
const (
	EQ       Operator = "EQ"
	NEQ      Operator = "NEQ"
	GT       Operator = "GT"
	GTE      Operator = "GTE"
	LT       Operator = "LT"
	LTE      Operator = "LTE"
	INSIDE   Operator = "INSIDE"
	OUTSIDE  Operator = "OUTSIDE"
	BETWEEN  Operator = "BETWEEN"
	WITHIN   Operator = "WITHIN"
	WITHOUT  Operator = "WITHOUT"
	CONTAINS Operator = "CONTAINS"
)

var knownOperators = map[Operator]bool{EQ: true, NEQ: true, GT: true, GTE: true,
	LT: true, LTE: true, INSIDE: true, OUTSIDE: true, BETWEEN: true, WITHIN: true,
	WITHOUT: true, CONTAINS: true}

/*
Valid checks if this is a known operator.
*/
func (op Operator) Valid() bool {
	return knownOperators[op]
}

/*
Condition compares the value of a key with a given value.
*/
type Condition struct {
	Key      string      `json:"key"`
	Value    interface{} `json:"value"`
	Operator Operator    `json:"condition"`
}

/*
Expression is a boolean expression over a traveler. Exactly one of the
fields is set.
*/
type Expression struct {
	And       []*Expression
	Or        []*Expression
	Not       *Expression
	Condition *Condition
}

/*
String returns a string representation of this expression.
*/
func (e *Expression) String() string {
	if e == nil {
		return "<nil>"
	}

	join := func(op string, list []*Expression) string {
		var parts []string
		for _, c := range list {
			parts = append(parts, c.String())
		}
		return fmt.Sprintf("%v(%v)", op, strings.Join(parts, ", "))
	}

	switch {
	case e.Condition != nil:
		return fmt.Sprintf("%v %v %v", e.Condition.Key, e.Condition.Operator, e.Condition.Value)
	case e.Not != nil:
		return fmt.Sprintf("not(%v)", e.Not)
	case e.Or != nil:
		return join("or", e.Or)
	}

	return join("and", e.And)
}

func condition(key string, op Operator, value interface{}) *Expression {
	return &Expression{Condition: &Condition{Key: key, Value: value, Operator: op}}
}

/*
Eq asserts that the value of a key equals a given value.
*/
func Eq(key string, value interface{}) *Expression {
	return condition(key, EQ, value)
}

/*
Neq asserts that the value of a key does not equal a given value.
*/
func Neq(key string, value interface{}) *Expression {
	return condition(key, NEQ, value)
}

/*
Gt asserts that the value of a key is greater than a given value.
*/
func Gt(key string, value interface{}) *Expression {
	return condition(key, GT, value)
}

/*
Gte asserts that the value of a key is greater than or equal to a given value.
*/
func Gte(key string, value interface{}) *Expression {
	return condition(key, GTE, value)
}

/*
Lt asserts that the value of a key is less than a given value.
*/
func Lt(key string, value interface{}) *Expression {
	return condition(key, LT, value)
}

/*
Lte asserts that the value of a key is less than or equal to a given value.
*/
func Lte(key string, value interface{}) *Expression {
	return condition(key, LTE, value)
}

/*
Inside asserts that the value of a key is greater than lo and less than hi.
*/
func Inside(key string, lo, hi interface{}) *Expression {
	return condition(key, INSIDE, []interface{}{lo, hi})
}

/*
Outside asserts that the value of a key is less than lo or greater than hi.
*/
func Outside(key string, lo, hi interface{}) *Expression {
	return condition(key, OUTSIDE, []interface{}{lo, hi})
}

/*
Between asserts that the value of a key is greater than or equal to lo and
less than hi.
*/
func Between(key string, lo, hi interface{}) *Expression {
	return condition(key, BETWEEN, []interface{}{lo, hi})
}

/*
Within asserts that the value of a key is one of the given values.
*/
func Within(key string, values ...interface{}) *Expression {
	return condition(key, WITHIN, values)
}

/*
Without asserts that the value of a key is none of the given values.
*/
func Without(key string, values ...interface{}) *Expression {
	return condition(key, WITHOUT, values)
}

/*
Contains asserts that the list value of a key contains a given value.
*/
func Contains(key string, value interface{}) *Expression {
	return condition(key, CONTAINS, value)
}

/*
And asserts that all given expressions are true.
*/
func And(expressions ...*Expression) *Expression {
	return &Expression{And: expressions}
}

/*
Or asserts that at least one of the given expressions is true.
*/
func Or(expressions ...*Expression) *Expression {
	return &Expression{Or: expressions}
}

/*
Not negates an expression.
*/
func Not(expression *Expression) *Expression {
	return &Expression{Not: expression}
}

/*
TermAgg counts the travelers per distinct value of a field.
*/
func TermAgg(name, field string, size int64) *Aggregation {
	return &Aggregation{Name: name, Type: AggTerm, Field: field, Size: size}
}

/*
HistogramAgg counts the travelers per numeric bucket of a field.
*/
func HistogramAgg(name, field string, interval float64) *Aggregation {
	return &Aggregation{Name: name, Type: AggHistogram, Field: field, Interval: interval}
}

/*
PercentileAgg estimates percentiles of a numeric field.
*/
func PercentileAgg(name, field string, percents ...float64) *Aggregation {
	return &Aggregation{Name: name, Type: AggPercentile, Field: field, Percents: percents}
}

/*
FieldAgg counts the travelers which carry each property.
*/
func FieldAgg(name, field string) *Aggregation {
	return &Aggregation{Name: name, Type: AggField, Field: field}
}

/*
TypeAgg counts the JSON types of a field.
*/
func TypeAgg(name, field string) *Aggregation {
	return &Aggregation{Name: name, Type: AggType, Field: field}
}
