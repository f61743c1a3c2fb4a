/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

/*
Package graph contains the main API to the graph datastore.

Manager API

The main API is provided by a Manager object which can be created with the
NewGraphManager() constructor function. The manager holds a set of named
graphs. Each graph is stored in a graphstorage.Storage which is either a
memory storage (created through CreateGraph) or an external storage such as
a federated row source (added through AddGraph).

The manager provides CRUD functionality for vertices and edges through store,
fetch and remove functions. Storing an element with an existing gid replaces
the element completely.

Rules

Graph rules provide automatic operations which help to keep the graph
consistent. Rules trigger on graph events. The rules SystemRuleDeleteVertexEdges
and SystemRuleCheckEdgeEnds are automatically loaded when a new Manager is
created:

	system.deletevertexedges  Deletes all edges of a vertex which is removed
	system.checkedgeends      Rejects edges whose end vertices do not exist

Bulk load

A stream of newline delimited JSON objects can be loaded into the manager with
BulkLoad(). Each line holds a graph name and either a vertex or an edge.
*/
package graph

import "errors"

// Graph events
// ============

/*
EventVertexStore is thrown before a vertex is stored.
*/
const EventVertexStore = 0x01

/*
EventVertexDelete is thrown before a vertex is deleted.
*/
const EventVertexDelete = 0x02

/*
EventEdgeStore is thrown before an edge is stored.
*/
const EventEdgeStore = 0x03

/*
EventEdgeDelete is thrown before an edge is deleted.
*/
const EventEdgeDelete = 0x04

/*
ErrEventHandled is a special error which an event handler can return to
notify the manager that no further action is necessary. No other error
will be returned by the manager operation.
*/
var ErrEventHandled = errors.New("Event handled upstream")
