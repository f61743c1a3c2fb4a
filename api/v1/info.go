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
	"devt.de/krotik/gripdb/graph/graphstorage"
)

/*
EndpointInfoQuery is the info endpoint URL (rooted). Handles everything under info/...
*/
const EndpointInfoQuery = api.APIRoot + APIv1 + "/info/"

/*
InfoEndpointInst creates a new endpoint handler.
*/
func InfoEndpointInst() api.RestEndpointHandler {
	return &infoEndpoint{}
}

/*
Handler object for info queries.
*/
type infoEndpoint struct {
	*api.DefaultEndpointHandler
}

/*
graphInfo is the info of a single graph.
*/
type graphInfo struct {
	Name     string             `json:"name"`
	ReadOnly bool               `json:"readOnly"`
	Stats    graphstorage.Stats `json:"stats"`
	Jobs     int                `json:"jobs"`
}

/*
HandleGET handles a info query REST call.
*/
func (ie *infoEndpoint) HandleGET(w http.ResponseWriter, r *http.Request, resources []string) {
	if !checkResources(w, resources, 0, 0, "") {
		return
	}

	graphs := []*graphInfo{}

	for _, name := range api.GM.ListGraphs() {
		gs, err := api.GM.Graph(name)
		if err != nil {
			continue // Graph was deleted in the meantime
		}

		info := &graphInfo{Name: name, ReadOnly: gs.ReadOnly(), Stats: gs.Stats()}

		if api.Jobs != nil {
			info.Jobs = len(api.Jobs.List(name))
		}

		graphs = append(graphs, info)
	}

	queries := []interface{}{}

	if api.QueryLog != nil {
		queries = append(queries, api.QueryLog.Slice()...)
	}

	api.WriteJSON(w, map[string]interface{}{
		"graphs":  graphs,
		"rules":   api.GM.GraphRules(),
		"queries": queries,
	})
}

/*
SwaggerDefs is used to describe the endpoint in swagger.
*/
func (ie *infoEndpoint) SwaggerDefs(s map[string]interface{}) {

	s["paths"].(map[string]interface{})["/v1/info"] = map[string]interface{}{
		"get": swaggerOperation("Return general server information.",
			"The info endpoint returns the known graphs with their scan counters, "+
				"the active graph rules and the most recent queries.", "application/json"),
	}
}
