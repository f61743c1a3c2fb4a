/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/graph/graphstorage"
	"devt.de/krotik/gripdb/graph/util"
)

/*
GraphRulesManager data structure
*/
type graphRulesManager struct {
	gm       *Manager                // GraphManager which provides events
	rules    map[string]Rule         // Map of graph rules
	eventMap map[int]map[string]Rule // Map of events to graph rules
}

/*
Rule models a graph rule.
*/
type Rule interface {

	/*
	   Name returns the name of the rule.
	*/
	Name() string

	/*
		Handles returns a list of events which are handled by this rule.
	*/
	Handles() []int

	/*
		Handle handles an event. The manager lock is held while a rule runs
		so the rule must work on the given storage directly.
	*/
	Handle(gm *Manager, gs graphstorage.Storage, event int, data ...interface{}) error
}

/*
graphEvent main event handler which receives all graph related events.
*/
func (gr *graphRulesManager) graphEvent(gs graphstorage.Storage, event int, data ...interface{}) error {
	var result error
	var errs []error

	handled := false // Flag to return a special handled error if no other error occurred

	rules := gr.eventMap[event]

	// Run rules in a stable order

	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {

		err := rules[name].Handle(gr.gm, gs, event, data...)

		if err != nil {
			if err == ErrEventHandled {
				handled = true
			} else {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) == 1 {
		return errs[0]

	} else if len(errs) > 1 {
		var details []string

		for _, err := range errs {
			var ge *util.GraphError

			if errors.As(err, &ge) {
				details = append(details, ge.Detail)
			} else {
				details = append(details, err.Error())
			}
		}

		return util.NewGraphError(util.Kind(errs[0]), strings.Join(details, "; "))
	}

	if handled {
		result = ErrEventHandled
	}

	return result
}

/*
SetGraphRule sets a GraphRule.
*/
func (gr *graphRulesManager) SetGraphRule(rule Rule) {
	gr.rules[rule.Name()] = rule

	for _, handledEvent := range rule.Handles() {

		rules, ok := gr.eventMap[handledEvent]
		if !ok {
			rules = make(map[string]Rule)
			gr.eventMap[handledEvent] = rules
		}

		rules[rule.Name()] = rule
	}
}

/*
GraphRules returns a list of all available graph rules.
*/
func (gr *graphRulesManager) GraphRules() []string {
	ret := make([]string, 0, len(gr.rules))

	for rule := range gr.rules {
		ret = append(ret, rule)
	}

	sort.StringSlice(ret).Sort()

	return ret
}

// System rule SystemRuleDeleteVertexEdges
// =======================================

/*
SystemRuleDeleteVertexEdges is a system rule to delete all edges when a vertex
is deleted.
*/
type SystemRuleDeleteVertexEdges struct {
}

/*
Name returns the name of the rule.
*/
func (r *SystemRuleDeleteVertexEdges) Name() string {
	return "system.deletevertexedges"
}

/*
Handles returns a list of events which are handled by this rule.
*/
func (r *SystemRuleDeleteVertexEdges) Handles() []int {
	return []int{EventVertexDelete}
}

/*
Handle handles an event.
*/
func (r *SystemRuleDeleteVertexEdges) Handle(gm *Manager, gs graphstorage.Storage, event int, ed ...interface{}) error {
	gid := ed[0].(string)
	ctx := context.Background()

	out, err := graphstorage.Collect(gs.OutEdges(ctx, gid, nil))
	if err != nil {
		return err
	}

	in, err := graphstorage.Collect(gs.InEdges(ctx, gid, nil))
	if err != nil {
		return err
	}

	// Self loops show up in both lists

	removed := make(map[string]bool)

	for _, e := range append(out, in...) {
		if removed[e.Gid] {
			continue
		}

		if err := gs.DeleteEdge(e.Gid); err != nil {
			return err
		}

		removed[e.Gid] = true
	}

	return nil
}

// System rule SystemRuleCheckEdgeEnds
// ===================================

/*
SystemRuleCheckEdgeEnds is a system rule which rejects edges whose end
vertices do not exist.
*/
type SystemRuleCheckEdgeEnds struct {
}

/*
Name returns the name of the rule.
*/
func (r *SystemRuleCheckEdgeEnds) Name() string {
	return "system.checkedgeends"
}

/*
Handles returns a list of events which are handled by this rule.
*/
func (r *SystemRuleCheckEdgeEnds) Handles() []int {
	return []int{EventEdgeStore}
}

/*
Handle handles an event.
*/
func (r *SystemRuleCheckEdgeEnds) Handle(gm *Manager, gs graphstorage.Storage, event int, ed ...interface{}) error {
	edge := ed[0].(*data.Element)
	ctx := context.Background()

	for _, gid := range []string{edge.From, edge.To} {
		if _, err := gs.GetVertex(ctx, gid); err != nil {

			if errors.Is(err, util.ErrNotFound) {
				return util.NewGraphError(util.ErrInvalidArgument,
					fmt.Sprintf("Edge %v references missing vertex %v", edge.Gid, gid))
			}

			return err
		}
	}

	return nil
}
