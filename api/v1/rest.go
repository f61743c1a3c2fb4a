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
Package v1 contains GripDB REST API Version 1.

Graph endpoint

/graph

The graph endpoint is the main entry point for graph modifications and
traversal queries. All element and job operations live below the name of a
graph:

	/v1/graph/{graph}/vertex/{gid}
	/v1/graph/{graph}/edge/{gid}
	/v1/graph/{graph}/query
	/v1/graph/{graph}/job/{id}/read
	/v1/graph/{graph}/index/{label}/{field}

Query results are streamed as newline delimited JSON. Every line contains
exactly one record. An error which happens while results are streamed is sent
as the last record:

	{"error": {"kind": "UNAVAILABLE", "message": "..."}}

Info endpoint

/info

The info endpoint returns general server information such as the known graphs,
active graph rules and the most recent queries.
*/
package v1

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"devt.de/krotik/gripdb/api"
	"devt.de/krotik/gripdb/engine"
	"devt.de/krotik/gripdb/graph/util"
	"devt.de/krotik/gripdb/gripql"
)

/*
APIv1 is the directory for version 1 of the API
*/
const APIv1 = "/v1"

/*
ContentTypeNDJSON is the content type of result streams.
*/
const ContentTypeNDJSON = "application/x-ndjson"

/*
V1EndpointMap is a map of urls to endpoints for version 1 of the API
*/
var V1EndpointMap = map[string]api.RestEndpointInst{
	EndpointGraph:     GraphEndpointInst,
	EndpointGraphRoot: GraphEndpointInst,
	EndpointInfoQuery: InfoEndpointInst,
}

// Helper functions
// ================

/*
checkResources check given resources for a request.
*/
func checkResources(w http.ResponseWriter, resources []string, requiredMin int, requiredMax int, errorMsg string) bool {
	if len(resources) < requiredMin {
		api.WriteError(w, util.NewGraphError(util.ErrInvalidArgument, errorMsg))
		return false
	} else if len(resources) > requiredMax {
		api.WriteError(w, util.NewGraphError(util.ErrInvalidArgument,
			"Invalid resource specification: "+strings.Join(resources[requiredMax:], "/")))
		return false
	}
	return true
}

/*
Extract a positive number from a query parameter. Returns -1 and true
if the parameter was not given.
*/
func queryParamPosNum(w http.ResponseWriter, r *http.Request, param string) (int, bool) {

	val := r.URL.Query().Get(param)

	if val == "" {
		return -1, true
	}

	num, err := strconv.Atoi(val)

	if err != nil || num < 0 {
		api.WriteError(w, util.NewGraphError(util.ErrInvalidArgument,
			"Invalid parameter value: "+param+" should be a positive integer number"))
		return -1, false
	}

	return num, true
}

/*
decodeBody decodes the JSON body of a request. Writes an error response and
returns false if the body cannot be decoded.
*/
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		api.WriteError(w, util.NewGraphError(util.ErrInvalidArgument,
			fmt.Sprint("Could not decode request body: ", err)))
		return false
	}

	return true
}

/*
decodeQuery reads a query from the body of a request. Writes an error
response and returns nil if the body does not contain a valid query.
*/
func decodeQuery(w http.ResponseWriter, r *http.Request) *gripql.Query {
	body, err := io.ReadAll(r.Body)

	if err == nil {
		var q *gripql.Query

		if q, err = gripql.ParseQuery(body); err == nil {
			return q
		}
	}

	api.WriteError(w, err)

	return nil
}

/*
statusResponse is the response of a successful modification.
*/
type statusResponse struct {
	Status string `json:"status"`
	Gid    string `json:"gid,omitempty"`
}

/*
writeOK writes a successful modification response.
*/
func writeOK(w http.ResponseWriter, gid string) {
	api.WriteJSON(w, &statusResponse{"ok", gid})
}

/*
ndjsonWriter writes newline delimited JSON records and flushes every record
to the client.
*/
type ndjsonWriter struct {
	w       http.ResponseWriter
	enc     *json.Encoder
	flusher http.Flusher
}

/*
newNDJSONWriter starts a newline delimited JSON response.
*/
func newNDJSONWriter(w http.ResponseWriter) *ndjsonWriter {
	w.Header().Set("content-type", ContentTypeNDJSON)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	return &ndjsonWriter{w, json.NewEncoder(w), flusher}
}

/*
write writes a single record.
*/
func (nw *ndjsonWriter) write(v interface{}) error {
	if err := nw.enc.Encode(v); err != nil {
		return err
	}

	if nw.flusher != nil {
		nw.flusher.Flush()
	}

	return nil
}

/*
writeResults streams all records of a result channel. Stops if the client
goes away.
*/
func (nw *ndjsonWriter) writeResults(results <-chan *engine.Result) {
	for res := range results {
		if err := nw.write(res); err != nil {

			// Drain the channel so the pipeline can finish

			for range results {
			}

			return
		}
	}
}

// Swagger helpers
// ===============

/*
swaggerErrorResponse is the default response of all operations.
*/
var swaggerErrorResponse = map[string]interface{}{
	"description": "Error response",
	"schema": map[string]interface{}{
		"$ref": "#/definitions/Error",
	},
}

/*
swaggerOperation describes a single operation of a path.
*/
func swaggerOperation(summary string, description string, produces string,
	params ...map[string]interface{}) map[string]interface{} {

	if params == nil {
		params = []map[string]interface{}{}
	}

	return map[string]interface{}{
		"summary":     summary,
		"description": description,
		"produces":    []string{produces},
		"parameters":  params,
		"responses": map[string]interface{}{
			"200": map[string]interface{}{
				"description": "Successful operation.",
			},
			"default": swaggerErrorResponse,
		},
	}
}

/*
swaggerParam describes a single parameter of an operation.
*/
func swaggerParam(name string, in string, description string) map[string]interface{} {
	param := map[string]interface{}{
		"name":        name,
		"in":          in,
		"description": description,
		"required":    in == "path" || in == "body",
	}

	if in == "body" {
		param["schema"] = map[string]interface{}{"type": "object"}
	} else {
		param["type"] = "string"
	}

	return param
}
