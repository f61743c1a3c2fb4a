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
)

/*
runQuery runs a traversal query and streams its results. Validation errors
are answered with an error response; errors which happen while the query
runs are sent as the last record of the stream. The query is cancelled if
the client goes away.
*/
func runQuery(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	if !checkResources(w, resources, 0, 0, "") {
		return
	}

	q := decodeQuery(w, r)
	if q == nil {
		return
	}

	gs, err := api.GM.Graph(graph)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	results, err := api.Engine.Query(r.Context(), gs, q)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	api.LogQuery(r, graph, q)

	newNDJSONWriter(w).writeResults(results)
}
