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
	"strings"

	"devt.de/krotik/gripdb/engine/traveler"
	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/graph/graphstorage"
	"devt.de/krotik/gripdb/gripql"
	"devt.de/krotik/gripdb/metrics"
	"github.com/sirupsen/logrus"
)

/*
rewriteRule is a plan transformation. A rule returns a new plan and true if
it fired. A rule only ever fuses or swaps adjacent nodes so no rule can move
a step across an as step.
*/
type rewriteRule struct {
	name  string
	apply func(rw *rewriter, plan []*planNode) ([]*planNode, bool)
}

/*
rewriteRules is the ordered list of all rewrite rules.
*/
var rewriteRules = []rewriteRule{
	{"indexProbe", ruleIndexProbe},
	{"idLookup", ruleIDLookup},
	{"adjacentVertices", ruleAdjacentVertices},
	{"mergeHas", ruleMergeHas},
	{"fieldsPushdown", ruleFieldsPushdown},
	{"counter", ruleCounter},
}

/*
rewriter builds and optimizes execution plans.
*/
type rewriter struct {
	gs        graphstorage.Storage // Storage to look up indices (may be nil)
	trackPath bool                 // Flag if paths are tracked
	applied   []string             // Names of applied rules
}

/*
buildPlan builds an optimized plan for a list of steps.
*/
func (rw *rewriter) buildPlan(steps []*gripql.Step) []*planNode {
	plan := make([]*planNode, 0, len(steps))

	for _, s := range steps {
		n := &planNode{Step: s}

		if s.Type == gripql.StepMatch {
			for _, sub := range s.Queries {
				n.subPlans = append(n.subPlans, rw.buildPlan(sub.Steps))
			}
		}

		plan = append(plan, n)
	}

	return rw.rewrite(plan)
}

/*
rewrite applies all rewrite rules until no rule fires anymore.
*/
func (rw *rewriter) rewrite(plan []*planNode) []*planNode {
	before := planString(plan)

	for changed := true; changed; {
		changed = false

		for _, rule := range rewriteRules {
			if newPlan, ok := rule.apply(rw, plan); ok {
				plan = newPlan
				changed = true

				rw.applied = append(rw.applied, rule.name)
				metrics.RewritesApplied.WithLabelValues(rule.name).Inc()
			}
		}
	}

	if after := planString(plan); after != before {
		logrus.WithFields(logrus.Fields{
			"query": before,
			"plan":  after,
		}).Debug("Rewrote query plan")
	}

	return plan
}

/*
replace returns a new plan where the nodes from start to end (exclusive)
are replaced by a list of nodes.
*/
func replace(plan []*planNode, start, end int, nodes ...*planNode) []*planNode {
	ret := make([]*planNode, 0, len(plan)-(end-start)+len(nodes))
	ret = append(ret, plan[:start]...)
	ret = append(ret, nodes...)
	return append(ret, plan[end:]...)
}

/*
conjuncts returns the parts of an and expression.
*/
func conjuncts(e *gripql.Expression) []*gripql.Expression {
	if e.Condition == nil && e.Not == nil && e.Or == nil {
		var ret []*gripql.Expression
		for _, c := range e.And {
			ret = append(ret, conjuncts(c)...)
		}
		return ret
	}
	return []*gripql.Expression{e}
}

/*
hasNode creates a has node for a list of conjuncts.
*/
func hasNode(parts []*gripql.Expression) *planNode {
	expr := gripql.And(parts...)
	if len(parts) == 1 {
		expr = parts[0]
	}
	return &planNode{Step: &gripql.Step{Type: gripql.StepHas, Has: expr}}
}

// Rule 1: index probe
// ===================

/*
ruleIndexProbe replaces V().hasLabel(L).has(eq(f, v)) by an index probe if
(L, f) is indexed. The label may also be given as a _label condition.
*/
func ruleIndexProbe(rw *rewriter, plan []*planNode) ([]*planNode, bool) {
	if rw.gs == nil || len(plan) < 2 || plan[0].Type != gripql.StepV || len(plan[0].IDs) > 0 {
		return plan, false
	}

	label := ""
	i := 1

	if plan[1].Type == gripql.StepHasLabel {
		if len(plan[1].Labels) != 1 {
			return plan, false
		}
		label = plan[1].Labels[0]
		i = 2
	}

	if i >= len(plan) || plan[i].Type != gripql.StepHas {
		return plan, false
	}

	parts := conjuncts(plan[i].Has)

	if label == "" {
		for j, c := range parts {
			if cond := c.Condition; cond != nil && cond.Operator == gripql.EQ && isLabelSelector(cond.Key) {

				if l, ok := cond.Value.(string); ok {
					label = l
					parts = append(parts[:j:j], parts[j+1:]...)
					break
				}
			}
		}
	}

	if label == "" {
		return plan, false
	}

	for j, c := range parts {
		cond := c.Condition
		if cond == nil || cond.Operator != gripql.EQ {
			continue
		}

		sel := traveler.ParseSelector(cond.Key)
		if !sel.IsField() || len(sel.FieldPath()) != len(sel.Path) {
			continue
		}

		if s, ok := cond.Value.(string); ok && strings.HasPrefix(s, "$") {
			continue
		}

		if _, ok := data.IndexKey(cond.Value); !ok {
			continue
		}

		field := strings.Join(sel.FieldPath(), ".")
		if !rw.gs.HasIndex(label, field) {
			continue
		}

		probe := &planNode{
			Step:       &gripql.Step{Type: stepIndexProbe},
			probeLabel: label,
			probeField: field,
			probeValue: cond.Value,
		}

		rest := append(parts[:j:j], parts[j+1:]...)
		if len(rest) == 0 {
			return replace(plan, 0, i+1, probe), true
		}

		return replace(plan, 0, i+1, probe, hasNode(rest)), true
	}

	return plan, false
}

func isLabelSelector(key string) bool {
	sel := traveler.ParseSelector(key)
	return sel.Mark == traveler.Current && len(sel.Path) == 1 && sel.Path[0].Key == data.AttrLabel
}

// Rule 2: id lookup
// =================

/*
ruleIDLookup replaces V().hasId(ids) by V(ids) and E().hasId(ids) by E(ids).
*/
func ruleIDLookup(rw *rewriter, plan []*planNode) ([]*planNode, bool) {
	if len(plan) < 2 || (plan[0].Type != gripql.StepV && plan[0].Type != gripql.StepE) ||
		len(plan[0].IDs) > 0 || plan[1].Type != gripql.StepHasID {
		return plan, false
	}

	return replace(plan, 0, 2, &planNode{Step: &gripql.Step{Type: plan[0].Type, IDs: plan[1].IDs}}), true
}

// Rule 3: adjacent vertices
// =========================

/*
ruleAdjacentVertices replaces outE(L).inV() and inE(L).outV() by a single
step which moves directly to the adjacent vertices. The rule is not applied
if paths are tracked since the edges would be missing in the path.
*/
func ruleAdjacentVertices(rw *rewriter, plan []*planNode) ([]*planNode, bool) {
	if rw.trackPath {
		return plan, false
	}

	for i := 0; i+1 < len(plan); i++ {
		dir := ""

		if plan[i].Type == gripql.StepOutE && plan[i+1].Type == gripql.StepInV {
			dir = "out"
		} else if plan[i].Type == gripql.StepInE && plan[i+1].Type == gripql.StepOutV {
			dir = "in"
		}

		if dir != "" {
			return replace(plan, i, i+2, &planNode{
				Step:      &gripql.Step{Type: stepAdjacent, Labels: plan[i].Labels},
				direction: dir,
			}), true
		}
	}

	return plan, false
}

// Rule 4: merge has steps
// =======================

/*
ruleMergeHas merges two consecutive has steps into a single and filter.
*/
func ruleMergeHas(rw *rewriter, plan []*planNode) ([]*planNode, bool) {
	for i := 0; i+1 < len(plan); i++ {
		if plan[i].Type == gripql.StepHas && plan[i+1].Type == gripql.StepHas {
			parts := append(conjuncts(plan[i].Has), conjuncts(plan[i+1].Has)...)
			return replace(plan, i, i+2, hasNode(parts)), true
		}
	}

	return plan, false
}

// Rule 5: fields pushdown
// =======================

/*
ruleFieldsPushdown moves a fields step in front of a directly preceding
filter step if the filter only reads fields which are kept by the
projection. Filters directly after a source step are left in place so they
can still be fused with the source.
*/
func ruleFieldsPushdown(rw *rewriter, plan []*planNode) ([]*planNode, bool) {
	for i := 1; i < len(plan); i++ {
		prev := plan[i-1]

		if plan[i].Type != gripql.StepFields || !prev.Type.IsFilter() {
			continue
		}

		if i >= 2 {
			if t := plan[i-2].Type; t == gripql.StepV || t == gripql.StepE {
				continue
			}
		}

		retained := true
		for _, sel := range filterSelectors(prev) {
			if !fieldsRetain(plan[i].Keys, sel) {
				retained = false
				break
			}
		}

		if retained {
			return replace(plan, i-1, i+1, plan[i], prev), true
		}
	}

	return plan, false
}

/*
filterSelectors returns all selectors of the current element which a filter
step reads.
*/
func filterSelectors(n *planNode) []string {
	var ret []string

	var collect func(e *gripql.Expression)
	collect = func(e *gripql.Expression) {
		switch {
		case e.Condition != nil:
			ret = append(ret, e.Condition.Key)
			if s, ok := e.Condition.Value.(string); ok && strings.HasPrefix(s, "$") {
				ret = append(ret, s)
			}
		case e.Not != nil:
			collect(e.Not)
		default:
			for _, c := range append(e.And, e.Or...) {
				collect(c)
			}
		}
	}

	switch n.Type {
	case gripql.StepHas:
		collect(n.Has)
	case gripql.StepHasKey:
		ret = n.Keys
	}

	return ret
}

/*
fieldsRetain checks if a selector still resolves to the same value after a
fields projection with the given keys.
*/
func fieldsRetain(keys []string, selector string) bool {
	sel := traveler.ParseSelector(selector)

	if sel.Mark != traveler.Current {
		return true
	} else if len(sel.Path) == 0 {
		return false
	} else if !sel.IsField() {
		return sel.Path[0].Key != data.AttrData
	}

	path := sel.FieldPath()
	includes, excludes := splitFieldKeys(keys)

	for _, ex := range excludes {
		if ex[0] == path[0] {
			return false
		}
	}

	if len(includes) == 0 {
		return true
	}

	for _, in := range includes {
		if len(in) <= len(path) && strings.Join(path[:len(in)], ".") == strings.Join(in, ".") {
			return true
		}
	}

	return false
}

/*
splitFieldKeys splits the keys of a fields step into include and exclude
paths. Logical attributes are ignored.
*/
func splitFieldKeys(keys []string) ([][]string, [][]string) {
	var includes, excludes [][]string

	for _, k := range keys {
		exclude := strings.HasPrefix(k, "-")

		sel := traveler.ParseSelector(strings.TrimPrefix(k, "-"))
		if !sel.IsField() {
			continue
		}

		if exclude {
			excludes = append(excludes, sel.FieldPath())
		} else {
			includes = append(includes, sel.FieldPath())
		}
	}

	return includes, excludes
}

// Rule 6: counter
// ===============

/*
ruleCounter replaces a terminal count by a counter which emits a single
record.
*/
func ruleCounter(rw *rewriter, plan []*planNode) ([]*planNode, bool) {
	if last := len(plan) - 1; last >= 0 && plan[last].Type == gripql.StepCount {
		return replace(plan, last, last+1, &planNode{Step: &gripql.Step{Type: stepCounter}}), true
	}

	return plan, false
}
