/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package v1

import (
	"net/http"
	"strings"

	"devt.de/krotik/gripdb/api"
	"devt.de/krotik/gripdb/graph/data"
)

/*
elementGid returns the gid from the remaining path elements. Gids may
contain slashes.
*/
func elementGid(w http.ResponseWriter, resources []string) (string, bool) {
	if !checkResources(w, resources, 1, len(resources), "Need a gid") {
		return "", false
	}
	return strings.Join(resources, "/"), true
}

// Vertices
// ========

func getVertex(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	gid, ok := elementGid(w, resources)
	if !ok {
		return
	}

	el, err := api.GM.GetVertex(r.Context(), graph, gid)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, el.Vertex())
}

func addVertex(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	var v data.Vertex

	if !checkResources(w, resources, 0, 0, "") || !decodeBody(w, r, &v) {
		return
	}

	if err := api.GM.StoreVertex(graph, &v); err != nil {
		api.WriteError(w, err)
		return
	}

	writeOK(w, v.Gid)
}

/*
deleteVertex deletes a vertex. The graph rules remove all edges of the
vertex.
*/
func deleteVertex(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	gid, ok := elementGid(w, resources)
	if !ok {
		return
	}

	if err := api.GM.RemoveVertex(graph, gid); err != nil {
		api.WriteError(w, err)
		return
	}

	writeOK(w, gid)
}

// Edges
// =====

func getEdge(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	gid, ok := elementGid(w, resources)
	if !ok {
		return
	}

	el, err := api.GM.GetEdge(r.Context(), graph, gid)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, el.Edge())
}

/*
addEdge stores an edge. The response contains the gid of the edge which is
generated if the request did not give one.
*/
func addEdge(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	var e data.Edge

	if !checkResources(w, resources, 0, 0, "") || !decodeBody(w, r, &e) {
		return
	}

	gid, err := api.GM.StoreEdge(graph, &e)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	writeOK(w, gid)
}

func deleteEdge(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	gid, ok := elementGid(w, resources)
	if !ok {
		return
	}

	if err := api.GM.RemoveEdge(graph, gid); err != nil {
		api.WriteError(w, err)
		return
	}

	writeOK(w, gid)
}
