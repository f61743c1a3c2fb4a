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
	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/graph/util"
	"github.com/google/uuid"
)

/*
StoreEdge stores an edge in a graph. An edge without a gid gets a generated
gid. An existing edge with the same gid is replaced. Returns the gid of the
stored edge.
*/
func (gm *Manager) StoreEdge(graph string, edge *data.Edge) (string, error) {
	if edge == nil || edge.From == "" || edge.To == "" {
		return "", util.NewGraphError(util.ErrInvalidArgument, "Edge must have from and to")
	}

	gm.mutex.Lock()
	defer gm.mutex.Unlock()

	gs, err := gm.writableGraph(graph)
	if err != nil {
		return "", err
	}

	el := edge.ToElement()

	if el.Gid == "" {
		el.Gid = uuid.New().String()
	}

	if err := gm.gr.graphEvent(gs, EventEdgeStore, el); err != nil {
		if err == ErrEventHandled {
			err = nil
		}
		return el.Gid, err
	}

	return el.Gid, gs.AddEdges([]*data.Element{el})
}

/*
RemoveEdge removes an edge from a graph.
*/
func (gm *Manager) RemoveEdge(graph string, gid string) error {
	gm.mutex.Lock()
	defer gm.mutex.Unlock()

	gs, err := gm.writableGraph(graph)
	if err != nil {
		return err
	}

	if err := gm.gr.graphEvent(gs, EventEdgeDelete, gid); err != nil {
		if err == ErrEventHandled {
			err = nil
		}
		return err
	}

	return gs.DeleteEdge(gid)
}
