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

// Fluent query builder
// ====================

/*
NewQuery creates a new empty query.
*/
func NewQuery() *Query {
	return &Query{}
}

/*
V starts a new query on vertices.
*/
func V(ids ...string) *Query {
	return NewQuery().V(ids...)
}

/*
E starts a new query on edges.
*/
func E(ids ...string) *Query {
	return NewQuery().E(ids...)
}

/*
with returns a copy of this query with an additional step. Queries are
never modified in place.
*/
func (q *Query) with(s *Step) *Query {
	steps := make([]*Step, len(q.Steps), len(q.Steps)+1)
	copy(steps, q.Steps)
	return &Query{append(steps, s)}
}

func (q *Query) V(ids ...string) *Query {
	return q.with(&Step{Type: StepV, IDs: ids})
}

func (q *Query) E(ids ...string) *Query {
	return q.with(&Step{Type: StepE, IDs: ids})
}

func (q *Query) In(labels ...string) *Query {
	return q.with(&Step{Type: StepIn, Labels: labels})
}

func (q *Query) Out(labels ...string) *Query {
	return q.with(&Step{Type: StepOut, Labels: labels})
}

func (q *Query) Both(labels ...string) *Query {
	return q.with(&Step{Type: StepBoth, Labels: labels})
}

func (q *Query) InE(labels ...string) *Query {
	return q.with(&Step{Type: StepInE, Labels: labels})
}

func (q *Query) OutE(labels ...string) *Query {
	return q.with(&Step{Type: StepOutE, Labels: labels})
}

func (q *Query) BothE(labels ...string) *Query {
	return q.with(&Step{Type: StepBothE, Labels: labels})
}

func (q *Query) InV() *Query {
	return q.with(&Step{Type: StepInV})
}

func (q *Query) OutV() *Query {
	return q.with(&Step{Type: StepOutV})
}

/*
InNull moves to adjacent vertices via incoming edges. A traveler without such
an edge continues with an empty vertex.
*/
func (q *Query) InNull(labels ...string) *Query {
	return q.with(&Step{Type: StepInNull, Labels: labels})
}

/*
OutNull moves to adjacent vertices via outgoing edges. A traveler without such
an edge continues with an empty vertex.
*/
func (q *Query) OutNull(labels ...string) *Query {
	return q.with(&Step{Type: StepOutNull, Labels: labels})
}

func (q *Query) InENull(labels ...string) *Query {
	return q.with(&Step{Type: StepInENull, Labels: labels})
}

func (q *Query) OutENull(labels ...string) *Query {
	return q.with(&Step{Type: StepOutENull, Labels: labels})
}

func (q *Query) Has(e *Expression) *Query {
	return q.with(&Step{Type: StepHas, Has: e})
}

func (q *Query) HasLabel(labels ...string) *Query {
	return q.with(&Step{Type: StepHasLabel, Labels: labels})
}

func (q *Query) HasID(ids ...string) *Query {
	return q.with(&Step{Type: StepHasID, IDs: ids})
}

func (q *Query) HasKey(keys ...string) *Query {
	return q.with(&Step{Type: StepHasKey, Keys: keys})
}

func (q *Query) As(name string) *Query {
	return q.with(&Step{Type: StepAs, Name: name})
}

func (q *Query) Select(marks ...string) *Query {
	return q.with(&Step{Type: StepSelect, Keys: marks})
}

/*
Fields limits the data of the current element to the given keys. Keys
starting with "-" are removed instead.
*/
func (q *Query) Fields(keys ...string) *Query {
	return q.with(&Step{Type: StepFields, Keys: keys})
}

func (q *Query) Distinct(keys ...string) *Query {
	return q.with(&Step{Type: StepDistinct, Keys: keys})
}

func (q *Query) Render(template interface{}) *Query {
	return q.with(&Step{Type: StepRender, Value: template})
}

func (q *Query) Unwind(field string) *Query {
	return q.with(&Step{Type: StepUnwind, Name: field})
}

func (q *Query) Limit(n int64) *Query {
	return q.with(&Step{Type: StepLimit, N: n})
}

func (q *Query) Skip(n int64) *Query {
	return q.with(&Step{Type: StepSkip, N: n})
}

/*
Range emits the travelers from start (inclusive) to stop (exclusive). A stop
of -1 emits all remaining travelers.
*/
func (q *Query) Range(start, stop int64) *Query {
	return q.with(&Step{Type: StepRange, Start: start, Stop: stop})
}

func (q *Query) Count() *Query {
	return q.with(&Step{Type: StepCount})
}

func (q *Query) Aggregate(aggs ...*Aggregation) *Query {
	return q.with(&Step{Type: StepAggregate, Aggregations: aggs})
}

/*
Match keeps the travelers for which every given sub-query yields a result.
*/
func (q *Query) Match(queries ...*Query) *Query {
	return q.with(&Step{Type: StepMatch, Queries: queries})
}

func (q *Query) Path() *Query {
	return q.with(&Step{Type: StepPath})
}
