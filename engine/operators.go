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
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"devt.de/krotik/gripdb/engine/traveler"
	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/graph/graphstorage"
	"devt.de/krotik/gripdb/gripql"
	"github.com/cespare/xxhash/v2"
)

/*
operator creates the operator of a plan node.
*/
func (env *runEnv) operator(n *planNode) operator {
	switch n.Type {

	case gripql.StepV:
		return env.source(n.IDs, data.KindVertex)
	case gripql.StepE:
		return env.source(n.IDs, data.KindEdge)
	case stepIndexProbe:
		return env.indexProbe(n)

	case gripql.StepOut, gripql.StepOutNull:
		return env.move(n.Labels, []string{"out"}, true, n.Type == gripql.StepOutNull)
	case gripql.StepIn, gripql.StepInNull:
		return env.move(n.Labels, []string{"in"}, true, n.Type == gripql.StepInNull)
	case gripql.StepBoth:
		return env.move(n.Labels, []string{"out", "in"}, true, false)
	case gripql.StepOutE, gripql.StepOutENull:
		return env.move(n.Labels, []string{"out"}, false, n.Type == gripql.StepOutENull)
	case gripql.StepInE, gripql.StepInENull:
		return env.move(n.Labels, []string{"in"}, false, n.Type == gripql.StepInENull)
	case gripql.StepBothE:
		return env.move(n.Labels, []string{"out", "in"}, false, false)
	case stepAdjacent:
		return env.move(n.Labels, []string{n.direction}, true, false)
	case gripql.StepInV:
		return env.edgeEnd(func(e *data.Element) string { return e.To })
	case gripql.StepOutV:
		return env.edgeEnd(func(e *data.Element) string { return e.From })

	case gripql.StepHas:
		return filter(func(t *traveler.Traveler) bool {
			return MatchesExpression(n.Has, t)
		})
	case gripql.StepHasLabel:
		return filter(func(t *traveler.Traveler) bool {
			return contains(n.Labels, t.Current().Label)
		})
	case gripql.StepHasID:
		return filter(func(t *traveler.Traveler) bool {
			return contains(n.IDs, t.Current().Gid)
		})
	case gripql.StepHasKey:
		return filter(func(t *traveler.Traveler) bool {
			for _, k := range n.Keys {
				if _, ok := traveler.GetValue(t, k); !ok {
					return false
				}
			}
			return true
		})

	case gripql.StepAs:
		return mapper(func(t *traveler.Traveler) *traveler.Traveler {
			return t.AddMark(n.Name)
		})
	case gripql.StepSelect:
		return mapper(func(t *traveler.Traveler) *traveler.Traveler {
			sel := make(map[string]*Selection, len(n.Keys))
			for _, m := range n.Keys {
				el, _ := t.GetMark(m)
				sel[m] = NewSelection(el)
			}
			return t.WithValue(sel)
		})
	case gripql.StepFields:
		return mapper(func(t *traveler.Traveler) *traveler.Traveler {
			cur := t.Current()
			if cur.IsNull() {
				return t
			}
			return t.WithElement(cur.WithData(projectFields(cur.Data, n.Keys)))
		})
	case gripql.StepRender:
		return mapper(func(t *traveler.Traveler) *traveler.Traveler {
			return t.WithValue(traveler.Render(t, n.Value))
		})
	case gripql.StepPath:
		return mapper(func(t *traveler.Traveler) *traveler.Traveler {
			return t.WithValue(append([]string{}, t.Path()...))
		})

	case gripql.StepDistinct:
		return distinct(n.Keys)
	case gripql.StepUnwind:
		return unwind(n.Name)

	case gripql.StepLimit:
		return page(0, n.N)
	case gripql.StepSkip:
		return page(n.N, -1)
	case gripql.StepRange:
		stop := n.Stop
		if stop != -1 {
			stop -= n.Start
		}
		return page(n.Start, stop)

	case gripql.StepCount, stepCounter:
		return counter()
	case gripql.StepAggregate:
		return aggregate(n.Aggregations)
	case gripql.StepMatch:
		return env.match(n.subPlans)
	}

	return func(ctx context.Context, in <-chan *traveler.Traveler, out chan<- *traveler.Traveler) error {
		return fmt.Errorf("Unknown plan node %v", n.Type)
	}
}

// Sources
// =======

/*
source emits all vertices or edges or the existing elements of a list of
ids.
*/
func (env *runEnv) source(ids []string, kind data.ElementKind) operator {
	return func(ctx context.Context, in <-chan *traveler.Traveler, out chan<- *traveler.Traveler) error {
		send := func(el *data.Element) error {
			return emit(ctx, out, traveler.New(el, env.trackPath))
		}

		if len(ids) == 0 {
			return env.scan(ctx, func(ctx context.Context) graphstorage.Iterator {
				if kind == data.KindEdge {
					return env.gs.Edges(ctx)
				}
				return env.gs.Vertices(ctx)
			}, send)
		}

		for _, id := range ids {
			get := env.getVertex
			if kind == data.KindEdge {
				get = env.getEdge
			}

			el, err := get(ctx, id)
			if err != nil {
				return err
			} else if el == nil {
				continue
			}

			if err := send(el); err != nil {
				return err
			}
		}

		return nil
	}
}

/*
indexProbe emits all vertices which are found through an index.
*/
func (env *runEnv) indexProbe(n *planNode) operator {
	return func(ctx context.Context, in <-chan *traveler.Traveler, out chan<- *traveler.Traveler) error {
		return env.scan(ctx, func(ctx context.Context) graphstorage.Iterator {
			return env.gs.IndexLookup(ctx, n.probeLabel, n.probeField, n.probeValue)
		}, func(el *data.Element) error {
			return emit(ctx, out, traveler.New(el, env.trackPath))
		})
	}
}

// Movement
// ========

/*
move follows the edges of a vertex in the given directions. Emits either the
edges or the vertices at their other end. If null is set then the empty
element is emitted for vertices without any matching edge.
*/
func (env *runEnv) move(labels []string, dirs []string, toVertex bool, null bool) operator {
	return func(ctx context.Context, in <-chan *traveler.Traveler, out chan<- *traveler.Traveler) error {
		return eachTraveler(ctx, in, func(t *traveler.Traveler) error {
			cur := t.Current()
			if cur.IsNull() {
				return nil
			}

			found := false

			for _, dir := range dirs {
				dir := dir

				err := env.scan(ctx, func(ctx context.Context) graphstorage.Iterator {
					if dir == "in" {
						return env.gs.InEdges(ctx, cur.Gid, labels)
					}
					return env.gs.OutEdges(ctx, cur.Gid, labels)
				}, func(e *data.Element) error {
					el := e

					if toVertex {
						gid := e.To
						if dir == "in" {
							gid = e.From
						}

						v, err := env.getVertex(ctx, gid)
						if err != nil || v == nil {
							return err
						}

						el = v
					}

					found = true

					return emit(ctx, out, t.WithCurrent(el))
				})

				if err != nil {
					return err
				}
			}

			if !found && null {
				kind := data.KindEdge
				if toVertex {
					kind = data.KindVertex
				}
				return emit(ctx, out, t.WithCurrent(data.NewNullElement(kind)))
			}

			return nil
		})
	}
}

/*
edgeEnd moves from an edge to one of its vertices.
*/
func (env *runEnv) edgeEnd(end func(e *data.Element) string) operator {
	return func(ctx context.Context, in <-chan *traveler.Traveler, out chan<- *traveler.Traveler) error {
		return eachTraveler(ctx, in, func(t *traveler.Traveler) error {
			if t.Current().IsNull() {
				return nil
			}

			v, err := env.getVertex(ctx, end(t.Current()))
			if err != nil || v == nil {
				return err
			}

			return emit(ctx, out, t.WithCurrent(v))
		})
	}
}

// Filters and mappers
// ===================

/*
filter passes on all travelers which match a predicate. Travelers at the
empty element are dropped.
*/
func filter(pred func(t *traveler.Traveler) bool) operator {
	return func(ctx context.Context, in <-chan *traveler.Traveler, out chan<- *traveler.Traveler) error {
		return eachTraveler(ctx, in, func(t *traveler.Traveler) error {
			if t.Current().IsNull() || !pred(t) {
				return nil
			}
			return emit(ctx, out, t)
		})
	}
}

/*
mapper replaces every traveler.
*/
func mapper(f func(t *traveler.Traveler) *traveler.Traveler) operator {
	return func(ctx context.Context, in <-chan *traveler.Traveler, out chan<- *traveler.Traveler) error {
		return eachTraveler(ctx, in, func(t *traveler.Traveler) error {
			return emit(ctx, out, f(t))
		})
	}
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

/*
projectFields applies the keys of a fields step to a data object. Keys
which start with "-" are removed. If at least one key without "-" is given
then only the listed fields are kept.
*/
func projectFields(d map[string]interface{}, keys []string) map[string]interface{} {
	includes, excludes := splitFieldKeys(keys)

	include := false
	for _, k := range keys {
		if !strings.HasPrefix(k, "-") {
			include = true
		}
	}

	var ret map[string]interface{}

	if include {
		ret = make(map[string]interface{})

		for _, path := range includes {
			if v, ok := data.FieldValue(d, strings.Join(path, ".")); ok {
				setPath(ret, path, data.CopyValue(v))
			}
		}

	} else {
		ret = data.CopyData(d)
	}

	for _, path := range excludes {
		deletePath(ret, path)
	}

	return ret
}

/*
setPath sets a value in a data object. Missing objects on the path are
created.
*/
func setPath(d map[string]interface{}, path []string, v interface{}) {
	for _, p := range path[:len(path)-1] {
		next, ok := d[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			d[p] = next
		}
		d = next
	}

	d[path[len(path)-1]] = v
}

/*
deletePath removes a value from a data object.
*/
func deletePath(d map[string]interface{}, path []string) {
	for _, p := range path[:len(path)-1] {
		next, ok := d[p].(map[string]interface{})
		if !ok {
			return
		}
		d = next
	}

	delete(d, path[len(path)-1])
}

/*
distinct passes on a traveler only on first sight of its key tuple. Without
keys travelers are compared by the gid of their current element.
*/
func distinct(keys []string) operator {
	return func(ctx context.Context, in <-chan *traveler.Traveler, out chan<- *traveler.Traveler) error {
		seen := make(map[uint64][]string)

		return eachTraveler(ctx, in, func(t *traveler.Traveler) error {
			var key []byte

			if len(keys) == 0 {
				key = []byte(t.Current().Gid)

			} else {
				tuple := make([]interface{}, len(keys))
				for i, k := range keys {
					tuple[i], _ = traveler.GetValue(t, k)
				}

				var err error
				if key, err = json.Marshal(tuple); err != nil {
					return err
				}
			}

			h := xxhash.Sum64(key)
			for _, k := range seen[h] {
				if k == string(key) {
					return nil
				}
			}
			seen[h] = append(seen[h], string(key))

			return emit(ctx, out, t)
		})
	}
}

/*
unwind emits one traveler per item of an array field. Each traveler carries
a copy of the element where the array is replaced by the item.
*/
func unwind(field string) operator {
	path := traveler.ParseSelector(field).FieldPath()

	return func(ctx context.Context, in <-chan *traveler.Traveler, out chan<- *traveler.Traveler) error {
		return eachTraveler(ctx, in, func(t *traveler.Traveler) error {
			cur := t.Current()
			if cur.IsNull() {
				return nil
			}

			v, ok := data.FieldValue(cur.Data, strings.Join(path, "."))
			if !ok {
				return nil
			}

			list, ok := v.([]interface{})
			if !ok {
				return emit(ctx, out, t)
			}

			for _, item := range list {
				d := data.CopyData(cur.Data)
				setPath(d, path, data.CopyValue(item))

				if err := emit(ctx, out, t.WithElement(cur.WithData(d))); err != nil {
					return err
				}
			}

			return nil
		})
	}
}

/*
page skips a number of travelers and then passes on at most max travelers
(-1 for no limit). The operator stops reading once the limit is reached.
*/
func page(skip int64, max int64) operator {
	return func(ctx context.Context, in <-chan *traveler.Traveler, out chan<- *traveler.Traveler) error {
		var i int64

		if max == 0 {
			return nil
		}

		errLimit := fmt.Errorf("limit")

		err := eachTraveler(ctx, in, func(t *traveler.Traveler) error {
			i++

			if i <= skip {
				return nil
			}

			if err := emit(ctx, out, t); err != nil {
				return err
			}

			if max != -1 && i-skip >= max {
				return errLimit
			}

			return nil
		})

		if err == errLimit {
			err = nil
		}

		return err
	}
}

// Terminators
// ===========

/*
counter consumes all travelers and emits their number.
*/
func counter() operator {
	return func(ctx context.Context, in <-chan *traveler.Traveler, out chan<- *traveler.Traveler) error {
		var count int64

		err := eachTraveler(ctx, in, func(t *traveler.Traveler) error {
			count++
			return nil
		})

		if err != nil {
			return err
		}

		return emit(ctx, out, traveler.New(data.NewNullElement(data.KindVertex), false).WithValue(count))
	}
}

/*
aggregate consumes all travelers and emits one traveler per bucket of each
aggregation.
*/
func aggregate(aggs []*gripql.Aggregation) operator {
	return func(ctx context.Context, in <-chan *traveler.Traveler, out chan<- *traveler.Traveler) error {
		aggregators := make([]aggregator, len(aggs))
		for i, a := range aggs {
			aggregators[i] = newAggregator(a)
		}

		err := eachTraveler(ctx, in, func(t *traveler.Traveler) error {
			for _, a := range aggregators {
				a.add(t)
			}
			return nil
		})

		if err != nil {
			return err
		}

		for _, a := range aggregators {
			for _, r := range a.records() {
				t := traveler.New(data.NewNullElement(data.KindVertex), false).WithValue(r)
				if err := emit(ctx, out, t); err != nil {
					return err
				}
			}
		}

		return nil
	}
}

// Sub queries
// ===========

/*
match runs all sub plans for every traveler. A traveler is passed on if
every sub plan produced at least one result. The marks of the first result
of a sub plan are merged into the traveler before the next sub plan runs.
*/
func (env *runEnv) match(subPlans [][]*planNode) operator {
	return func(ctx context.Context, in <-chan *traveler.Traveler, out chan<- *traveler.Traveler) error {
		return eachTraveler(ctx, in, func(t *traveler.Traveler) error {
			cur := t

			for _, sub := range subPlans {
				res, err := env.first(ctx, sub, cur)
				if err != nil {
					return err
				} else if res == nil {
					return nil
				}

				cur = cur.MergeMarks(res)
			}

			return emit(ctx, out, cur)
		})
	}
}

/*
first runs a plan for a single traveler and returns the first traveler which
leaves the plan (nil if there is none). The plan is stopped afterwards.
*/
func (env *runEnv) first(ctx context.Context, plan []*planNode,
	t *traveler.Traveler) (*traveler.Traveler, error) {

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan *traveler.Traveler, 1)
	in <- t
	close(in)

	res, wait := env.runPlan(subCtx, plan, in)

	r := <-res
	cancel()

	if err := wait(); err != nil {
		return nil, err
	}

	return r, ctx.Err()
}
