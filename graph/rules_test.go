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
	"testing"

	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/graph/graphstorage"
	"devt.de/krotik/gripdb/graph/util"
)

type TestRule struct {
	handleError bool
	handled     bool
	events      []int
}

func (r *TestRule) Name() string {
	return "testrule"
}

func (r *TestRule) Handles() []int {
	return []int{EventVertexStore, EventVertexDelete, EventEdgeStore, EventEdgeDelete}
}

func (r *TestRule) Handle(gm *Manager, gs graphstorage.Storage, event int, ed ...interface{}) error {
	r.events = append(r.events, event)

	if r.handleError {
		return util.NewGraphError(util.ErrConflict, "Test error")
	}

	if r.handled {
		return ErrEventHandled
	}

	return nil
}

func TestRules(t *testing.T) {
	gm := NewGraphManager()
	gm.CreateGraph("g")

	if res := fmt.Sprint(gm.GraphRules()); res != "[system.checkedgeends system.deletevertexedges]" {
		t.Error("Unexpected result:", res)
		return
	}

	rule := &TestRule{}
	gm.SetGraphRule(rule)

	if res := fmt.Sprint(gm.GraphRules()); res != "[system.checkedgeends system.deletevertexedges testrule]" {
		t.Error("Unexpected result:", res)
		return
	}

	gm.StoreVertex("g", &data.Vertex{Gid: "a", Label: "x"})
	gm.StoreVertex("g", &data.Vertex{Gid: "b", Label: "x"})
	gm.StoreEdge("g", &data.Edge{Gid: "e", Label: "y", From: "a", To: "b"})
	gm.RemoveEdge("g", "e")
	gm.RemoveVertex("g", "b")

	if res := fmt.Sprint(rule.events); res != "[1 1 3 4 2]" {
		t.Error("Unexpected result:", res)
		return
	}

	// Errors of rules stop the operation

	rule.handleError = true

	if err := gm.StoreVertex("g", &data.Vertex{Gid: "c", Label: "x"}); !errors.Is(err, util.ErrConflict) {
		t.Error("Unexpected result:", err)
		return
	}

	if _, err := gm.GetVertex(context.Background(), "g", "c"); !errors.Is(err, util.ErrNotFound) {
		t.Error("Vertex should not have been stored:", err)
		return
	}

	// Handled events are not executed

	rule.handleError = false
	rule.handled = true

	if err := gm.RemoveVertex("g", "a"); err != nil {
		t.Error(err)
		return
	}

	if _, err := gm.GetVertex(context.Background(), "g", "a"); err != nil {
		t.Error("Vertex should still exist:", err)
		return
	}
}

func TestRuleErrorsCombine(t *testing.T) {
	gm := NewGraphManager()
	gm.CreateGraph("g")

	gm.SetGraphRule(&TestRule{handleError: true})

	_, err := gm.StoreEdge("g", &data.Edge{Gid: "e", Label: "y", From: "a", To: "b"})

	if !errors.Is(err, util.ErrInvalidArgument) ||
		err.Error() != "GraphError: INVALID_ARGUMENT (Edge e references missing vertex a; Test error)" {
		t.Error("Unexpected result:", err)
		return
	}
}

func TestCascadingDelete(t *testing.T) {
	ctx := context.Background()
	gm := NewGraphManager()
	gm.CreateGraph("g")

	for _, gid := range []string{"v1", "v2", "v3"} {
		gm.StoreVertex("g", &data.Vertex{Gid: gid, Label: "Person"})
	}

	gm.StoreEdge("g", &data.Edge{Gid: "e1", Label: "friend", From: "v1", To: "v2"})
	gm.StoreEdge("g", &data.Edge{Gid: "e2", Label: "friend", From: "v2", To: "v3"})
	gm.StoreEdge("g", &data.Edge{Gid: "loop", Label: "self", From: "v2", To: "v2"})
	gm.StoreEdge("g", &data.Edge{Gid: "e3", Label: "friend", From: "v3", To: "v1"})

	if err := gm.RemoveVertex("g", "v2"); err != nil {
		t.Error(err)
		return
	}

	gs, _ := gm.Graph("g")

	if res, _ := graphstorage.Collect(gs.Edges(ctx)); len(res) != 1 || res[0].Gid != "e3" {
		t.Error("Unexpected result:", res)
		return
	}

	if res, _ := graphstorage.Collect(gs.Vertices(ctx)); len(res) != 2 {
		t.Error("Unexpected result:", res)
		return
	}

	if err := gm.RemoveVertex("g", "v2"); !errors.Is(err, util.ErrNotFound) {
		t.Error("Unexpected result:", err)
		return
	}
}
