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

	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/gripql"
)

/*
Internal step types which are produced by rewrite rules
*/
const (
	stepIndexProbe gripql.StepType = "indexProbe"
	stepAdjacent   gripql.StepType = "adjacentVertices"
	stepCounter    gripql.StepType = "counter"
)

/*
planNode is a single step of an execution plan.
*/
type planNode struct {
	*gripql.Step

	probeLabel string      // Label of an index probe
	probeField string      // Field of an index probe
	probeValue interface{} // Value of an index probe
	direction  string      // Direction of an adjacentVertices step (in or out)

	subPlans [][]*planNode // Compiled sub-queries of a match step
}

/*
String returns a short string representation of this node.
*/
func (n *planNode) String() string {
	switch n.Type {
	case stepIndexProbe:
		return "indexProbe(" + n.probeLabel + ", " + n.probeField + ")"
	case stepAdjacent:
		return "adjacentVertices(" + strings.Join(append([]string{n.direction}, n.Labels...), ", ") + ")"
	case stepCounter:
		return "counter()"
	}
	return n.Step.String()
}

/*
OutputKind is the kind of records which a pipeline produces.
*/
type OutputKind int

/*
Known output kinds
*/
const (
	OutputNone OutputKind = iota
	OutputVertex
	OutputEdge
	OutputSelections
	OutputRender
	OutputCount
	OutputAggregations
	OutputPath
)

/*
outputForElement returns the output kind of an element kind.
*/
func outputForElement(kind data.ElementKind) OutputKind {
	if kind == data.KindEdge {
		return OutputEdge
	}
	return OutputVertex
}

/*
Pipeline is a compiled query which can be run against a graph.
*/
type Pipeline struct {
	Query     *gripql.Query // Query as it was given (before rewrites)
	Output    OutputKind    // Kind of the produced records
	MarkNames []string      // Names of all marks which are set
	Rewrites  []string      // Names of the applied rewrite rules

	plan      []*planNode
	trackPath bool
}

/*
Plan returns a string representation of the execution plan.
*/
func (p *Pipeline) Plan() string {
	return planString(p.plan)
}

func planString(plan []*planNode) string {
	var parts []string
	for _, n := range plan {
		parts = append(parts, n.String())
	}
	return strings.Join(parts, ".")
}
