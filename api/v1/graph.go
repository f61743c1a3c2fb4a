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
	"fmt"
	"net/http"

	"devt.de/krotik/gripdb/api"
	"devt.de/krotik/gripdb/engine"
	"devt.de/krotik/gripdb/graph/graphstorage"
	"devt.de/krotik/gripdb/graph/util"
	"github.com/sirupsen/logrus"
)

/*
EndpointGraph is the graph endpoint URL (rooted). Handles everything under graph/...
*/
const EndpointGraph = api.APIRoot + APIv1 + "/graph/"

/*
EndpointGraphRoot is the graph endpoint URL without a trailing slash. A bulk
load is posted to this URL.
*/
const EndpointGraphRoot = api.APIRoot + APIv1 + "/graph"

/*
GraphEndpointInst creates a new endpoint handler.
*/
func GraphEndpointInst() api.RestEndpointHandler {
	return &graphEndpoint{}
}

/*
Handler object for graph operations.
*/
type graphEndpoint struct {
	*api.DefaultEndpointHandler
}

/*
graphOperation is an operation on a resource of a graph. The given resources
are the path elements after the resource name.
*/
type graphOperation func(w http.ResponseWriter, r *http.Request, graph string, resources []string)

/*
graphOperations maps resource names and methods to operations. The empty
resource name is the graph itself.
*/
var graphOperations = map[string]map[string]graphOperation{
	"": {
		"GET":    graphSummary,
		"POST":   createGraph,
		"DELETE": deleteGraph,
	},
	"vertex": {
		"GET":    getVertex,
		"POST":   addVertex,
		"DELETE": deleteVertex,
	},
	"edge": {
		"GET":    getEdge,
		"POST":   addEdge,
		"DELETE": deleteEdge,
	},
	"query": {
		"POST": runQuery,
	},
	"job": {
		"GET":    getJob,
		"POST":   submitJob,
		"DELETE": deleteJob,
	},
	"job-search": {
		"POST": searchJobs,
	},
	"index": {
		"GET":    listIndices,
		"POST":   addIndex,
		"DELETE": deleteIndex,
	},
	"export": {
		"GET": exportGraph,
	},
}

/*
HandleGET handles REST calls to retrieve data from graphs.
*/
func (ge *graphEndpoint) HandleGET(w http.ResponseWriter, r *http.Request, resources []string) {
	if len(resources) == 0 {
		listGraphs(w, r)
		return
	}

	ge.handleGraphRequest(w, r, resources)
}

/*
HandlePOST handles REST calls to create graphs, store elements and run queries.
*/
func (ge *graphEndpoint) HandlePOST(w http.ResponseWriter, r *http.Request, resources []string) {
	if len(resources) == 0 {
		bulkLoad(w, r)
		return
	}

	ge.handleGraphRequest(w, r, resources)
}

/*
HandleDELETE handles REST calls to delete graphs, elements and jobs.
*/
func (ge *graphEndpoint) HandleDELETE(w http.ResponseWriter, r *http.Request, resources []string) {
	if len(resources) == 0 {
		ge.DefaultEndpointHandler.HandleDELETE(w, r, resources)
		return
	}

	ge.handleGraphRequest(w, r, resources)
}

/*
handleGraphRequest looks up the operation for a request on a graph resource.
*/
func (ge *graphEndpoint) handleGraphRequest(w http.ResponseWriter, r *http.Request, resources []string) {
	var resource string
	var rest []string

	if len(resources) > 1 {
		resource = resources[1]
		rest = resources[2:]
	}

	ops, ok := graphOperations[resource]
	if !ok {
		api.WriteError(w, util.NewGraphError(util.ErrInvalidArgument,
			fmt.Sprintf("Unknown graph resource: %v", resource)))
		return
	}

	op, ok := ops[r.Method]
	if !ok {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	op(w, r, resources[0], rest)
}

// Graph operations
// ================

/*
listGraphs returns the names of all graphs.
*/
func listGraphs(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, map[string]interface{}{
		"graphs": api.GM.ListGraphs(),
	})
}

/*
graphSummary returns the labels and indices of a graph.
*/
func graphSummary(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	gs, err := api.GM.Graph(graph)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, map[string]interface{}{
		"graph":        graph,
		"readOnly":     gs.ReadOnly(),
		"vertexLabels": nonNil(gs.VertexLabels()),
		"edgeLabels":   nonNil(gs.EdgeLabels()),
		"indices":      nonNilIndices(gs.Indices()),
	})
}

/*
createGraph creates a new empty graph.
*/
func createGraph(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	if err := api.GM.CreateGraph(graph); err != nil {
		api.WriteError(w, err)
		return
	}

	writeOK(w, "")
}

/*
deleteGraph deletes a graph together with its jobs.
*/
func deleteGraph(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	if err := api.GM.DeleteGraph(graph); err != nil {
		api.WriteError(w, err)
		return
	}

	if api.Jobs != nil {
		for _, status := range api.Jobs.List(graph) {
			if err := api.Jobs.Delete(status.ID); err != nil {
				logrus.WithFields(logrus.Fields{
					"graph": graph,
					"job":   status.ID,
					"error": err,
				}).Warn("Could not delete job of deleted graph")
			}
		}
	}

	writeOK(w, "")
}

/*
bulkLoad loads a newline delimited JSON stream of vertices and edges.
*/
func bulkLoad(w http.ResponseWriter, r *http.Request) {
	res, err := api.GM.BulkLoad(r.Context(), r.Body)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, res)
}

/*
exportGraph writes all elements of a graph in the bulk load format.
*/
func exportGraph(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	if !checkResources(w, resources, 0, 0, "") {
		return
	}

	if _, err := api.GM.Graph(graph); err != nil {
		api.WriteError(w, err)
		return
	}

	nw := newNDJSONWriter(w)

	if err := api.GM.ExportGraph(r.Context(), graph, w); err != nil {
		nw.write(engine.NewErrorResult(err))
	}
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func nonNilIndices(list []graphstorage.IndexID) []graphstorage.IndexID {
	if list == nil {
		return []graphstorage.IndexID{}
	}
	return list
}

/*
SwaggerDefs is used to describe the endpoint in swagger.
*/
func (ge *graphEndpoint) SwaggerDefs(s map[string]interface{}) {
	paths := s["paths"].(map[string]interface{})

	graphParam := swaggerParam("graph", "path", "Name of the graph.")
	gidParam := swaggerParam("gid", "path", "Gid of the element.")
	idParam := swaggerParam("id", "path", "Id of the job.")
	queryParam := swaggerParam("query", "body", "Query object {\"query\": [...steps]}.")

	paths["/v1/graph"] = map[string]interface{}{
		"get": swaggerOperation("List all graphs.",
			"Returns an object with a list of all graph names.", "application/json"),
		"post": swaggerOperation("Bulk load vertices and edges.",
			"Loads newline delimited JSON objects of the form {graph, vertex|edge}. "+
				"Returns insert and error counts; the load is not atomic.", "application/json",
			swaggerParam("elements", "body", "Newline delimited elements.")),
	}

	paths["/v1/graph/{graph}"] = map[string]interface{}{
		"get": swaggerOperation("Return a graph summary.",
			"Returns the vertex labels, edge labels and indices of a graph.", "application/json",
			graphParam),
		"post": swaggerOperation("Create a graph.",
			"Creates a new empty graph.", "application/json", graphParam),
		"delete": swaggerOperation("Delete a graph.",
			"Deletes a graph and all its jobs.", "application/json", graphParam),
	}

	paths["/v1/graph/{graph}/export"] = map[string]interface{}{
		"get": swaggerOperation("Export a graph.",
			"Returns all vertices and edges in the bulk load format.", ContentTypeNDJSON,
			graphParam),
	}

	paths["/v1/graph/{graph}/vertex"] = map[string]interface{}{
		"post": swaggerOperation("Store a vertex.",
			"Stores a vertex {gid, label, data}. An existing vertex is replaced.", "application/json",
			graphParam, swaggerParam("vertex", "body", "Vertex object.")),
	}

	paths["/v1/graph/{graph}/vertex/{gid}"] = map[string]interface{}{
		"get": swaggerOperation("Return a vertex.",
			"Returns a single vertex.", "application/json", graphParam, gidParam),
		"delete": swaggerOperation("Delete a vertex.",
			"Deletes a vertex and all its edges.", "application/json", graphParam, gidParam),
	}

	paths["/v1/graph/{graph}/edge"] = map[string]interface{}{
		"post": swaggerOperation("Store an edge.",
			"Stores an edge {gid?, label, from, to, data}. Returns the gid of the edge.",
			"application/json", graphParam, swaggerParam("edge", "body", "Edge object.")),
	}

	paths["/v1/graph/{graph}/edge/{gid}"] = map[string]interface{}{
		"get": swaggerOperation("Return an edge.",
			"Returns a single edge.", "application/json", graphParam, gidParam),
		"delete": swaggerOperation("Delete an edge.",
			"Deletes a single edge.", "application/json", graphParam, gidParam),
	}

	paths["/v1/graph/{graph}/query"] = map[string]interface{}{
		"post": swaggerOperation("Run a traversal query.",
			"Runs a query and streams one result record per line. Errors which happen "+
				"while the query runs are sent as the last record.", ContentTypeNDJSON,
			graphParam, queryParam),
	}

	paths["/v1/graph/{graph}/job"] = map[string]interface{}{
		"get": swaggerOperation("List jobs.",
			"Returns the status of all jobs of a graph (one per line).", ContentTypeNDJSON,
			graphParam),
		"post": swaggerOperation("Submit a job.",
			"Runs a query asynchronously. Returns the job status.", "application/json",
			graphParam, queryParam),
	}

	paths["/v1/graph/{graph}/job/{id}"] = map[string]interface{}{
		"get": swaggerOperation("Return a job status.",
			"Returns the state and result count of a job.", "application/json",
			graphParam, idParam),
		"delete": swaggerOperation("Delete a job.",
			"Cancels a running job and deletes its results.", "application/json",
			graphParam, idParam),
	}

	paths["/v1/graph/{graph}/job/{id}/read"] = map[string]interface{}{
		"get": swaggerOperation("Read job results.",
			"Streams the results of a job starting at an optional offset. A running "+
				"job is followed until it has finished.", ContentTypeNDJSON,
			graphParam, idParam, swaggerParam("offset", "query", "Offset of the first result.")),
	}

	paths["/v1/graph/{graph}/job/{id}/tail"] = map[string]interface{}{
		"get": swaggerOperation("Tail job results.",
			"Websocket which sends every result record of a job followed by the final "+
				"job status.", "application/json",
			graphParam, idParam, swaggerParam("offset", "query", "Offset of the first result.")),
	}

	paths["/v1/graph/{graph}/job-search"] = map[string]interface{}{
		"post": swaggerOperation("Search jobs.",
			"Returns the ids of all jobs which ran an equal query (one per line).",
			ContentTypeNDJSON, graphParam, queryParam),
	}

	paths["/v1/graph/{graph}/index"] = map[string]interface{}{
		"get": swaggerOperation("List indices.",
			"Returns all indices of a graph.", "application/json", graphParam),
	}

	paths["/v1/graph/{graph}/index/{label}"] = map[string]interface{}{
		"post": swaggerOperation("Add an index.",
			"Adds an index on a field {\"field\": ...} of all vertices of a label.",
			"application/json", graphParam, swaggerParam("label", "path", "Vertex label."),
			swaggerParam("field", "body", "Field object.")),
	}

	paths["/v1/graph/{graph}/index/{label}/{field}"] = map[string]interface{}{
		"delete": swaggerOperation("Delete an index.",
			"Deletes an index.", "application/json", graphParam,
			swaggerParam("label", "path", "Vertex label."),
			swaggerParam("field", "path", "Indexed field.")),
	}
}
