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

	"devt.de/krotik/gripdb/api"
	"devt.de/krotik/gripdb/graph/util"
)

/*
listIndices returns all indices of a graph.
*/
func listIndices(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	if !checkResources(w, resources, 0, 0, "") {
		return
	}

	gs, err := api.GM.Graph(graph)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, map[string]interface{}{
		"indices": nonNilIndices(gs.Indices()),
	})
}

/*
addIndex adds an index for a vertex label. The indexed field is given in the
request body.
*/
func addIndex(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	var req struct {
		Field string `json:"field"`
	}

	if !checkResources(w, resources, 1, 1, "Need a vertex label") || !decodeBody(w, r, &req) {
		return
	}

	if req.Field == "" {
		api.WriteError(w, util.NewGraphError(util.ErrInvalidArgument, "Need a field"))
		return
	}

	if err := api.GM.AddIndex(graph, resources[0], req.Field); err != nil {
		api.WriteError(w, err)
		return
	}

	writeOK(w, "")
}

func deleteIndex(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	if !checkResources(w, resources, 2, 2, "Need a vertex label and a field") {
		return
	}

	if err := api.GM.DeleteIndex(graph, resources[0], resources[1]); err != nil {
		api.WriteError(w, err)
		return
	}

	writeOK(w, "")
}
