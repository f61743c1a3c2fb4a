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
)

/*
StoreVertex stores a vertex in a graph. An existing vertex with the same gid
is replaced.
*/
func (gm *Manager) StoreVertex(graph string, vertex *data.Vertex) error {
	if vertex == nil || vertex.Gid == "" {
		return util.NewGraphError(util.ErrInvalidArgument, "Vertex must have a gid")
	}

	gm.mutex.Lock()
	defer gm.mutex.Unlock()

	gs, err := gm.writableGraph(graph)
	if err != nil {
		return err
	}

	el := vertex.ToElement()

	if err := gm.gr.graphEvent(gs, EventVertexStore, el); err != nil {
		if err == ErrEventHandled {
			err = nil
		}
		return err
	}

	return gs.AddVertices([]*data.Element{el})
}

/*
RemoveVertex removes a vertex and all its edges from a graph.
*/
func (gm *Manager) RemoveVertex(graph string, gid string) error {
	gm.mutex.Lock()
	defer gm.mutex.Unlock()

	gs, err := gm.writableGraph(graph)
	if err != nil {
		return err
	}

	if err := gm.gr.graphEvent(gs, EventVertexDelete, gid); err != nil {
		if err == ErrEventHandled {
			err = nil
		}
		return err
	}

	return gs.DeleteVertex(gid)
}
