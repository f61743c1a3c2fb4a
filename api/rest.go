/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"devt.de/krotik/common/datautil"
	"devt.de/krotik/common/timeutil"
	"devt.de/krotik/gripdb/engine"
	"devt.de/krotik/gripdb/graph"
	"devt.de/krotik/gripdb/graph/util"
	"devt.de/krotik/gripdb/jobs"
	"devt.de/krotik/gripdb/gripql"
	"github.com/sirupsen/logrus"
)

/*
APIVersion is the version of the REST API
*/
const APIVersion = "1.0.0"

/*
APIRoot is the API root directory for the REST API
*/
const APIRoot = ""

/*
APISchemes defines the supported schemes by the REST API
*/
var APISchemes = []string{"http"}

/*
APIHost is the host definition for the REST API
*/
var APIHost = "localhost:8201"

/*
GeneralEndpointMap contains general endpoints which should always be available
*/
var GeneralEndpointMap = map[string]RestEndpointInst{
	EndpointAbout:   AboutEndpointInst,
	EndpointSwagger: SwaggerEndpointInst,
}

/*
RestEndpointInst models a factory function for REST endpoint handlers.
*/
type RestEndpointInst func() RestEndpointHandler

/*
RestEndpointHandler models a REST endpoint handler.
*/
type RestEndpointHandler interface {

	/*
		HandleGET handles a GET request.
	*/
	HandleGET(w http.ResponseWriter, r *http.Request, resources []string)

	/*
		HandlePOST handles a POST request.
	*/
	HandlePOST(w http.ResponseWriter, r *http.Request, resources []string)

	/*
		HandlePUT handles a PUT request.
	*/
	HandlePUT(w http.ResponseWriter, r *http.Request, resources []string)

	/*
		HandleDELETE handles a DELETE request.
	*/
	HandleDELETE(w http.ResponseWriter, r *http.Request, resources []string)

	/*
		SwaggerDefs is used to describe the endpoint in swagger.
	*/
	SwaggerDefs(s map[string]interface{})
}

// Global variables
// ================

/*
GM is the GraphManager instance which should be used by the REST API.
*/
var GM *graph.Manager

/*
Engine is the query engine which runs streamed queries.
*/
var Engine *engine.Engine

/*
Jobs is the job store which runs asynchronous queries.
*/
var Jobs *jobs.Store

/*
QueryLog keeps the most recent queries (nil disables the log).
*/
var QueryLog *datautil.RingBuffer

/*
HandleFunc to use for registering handlers
*/
var HandleFunc = http.HandleFunc

/*
registered is a map of all registered endpoints
*/
var registered = make(map[string]RestEndpointInst)

/*
RegisterRestEndpoints registers all given REST endpoint handlers.
*/
func RegisterRestEndpoints(endpointInsts map[string]RestEndpointInst) {

	for url, endpointInst := range endpointInsts {
		registered[url] = endpointInst

		HandleFunc(url, func() func(w http.ResponseWriter, r *http.Request) {
			var handlerURL = url
			var handlerInst = endpointInst

			return func(w http.ResponseWriter, r *http.Request) {

				// Create a new handler instance

				handler := handlerInst()

				// Handle request in appropriate method

				res := strings.TrimSpace(r.URL.Path[len(handlerURL):])

				if len(res) > 0 && res[len(res)-1] == '/' {
					res = res[:len(res)-1]
				}

				var resources []string

				if res != "" {
					resources = strings.Split(res, "/")
				}

				switch r.Method {
				case "GET":
					handler.HandleGET(w, r, resources)

				case "POST":
					handler.HandlePOST(w, r, resources)

				case "PUT":
					handler.HandlePUT(w, r, resources)

				case "DELETE":
					handler.HandleDELETE(w, r, resources)

				default:
					http.Error(w, http.StatusText(http.StatusMethodNotAllowed),
						http.StatusMethodNotAllowed)
				}
			}
		}())
	}
}

/*
DefaultEndpointHandler represents the default endpoint handler.
*/
type DefaultEndpointHandler struct {
}

/*
HandleGET is a method stub returning an error.
*/
func (de *DefaultEndpointHandler) HandleGET(w http.ResponseWriter, r *http.Request, resources []string) {
	http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
}

/*
HandlePOST is a method stub returning an error.
*/
func (de *DefaultEndpointHandler) HandlePOST(w http.ResponseWriter, r *http.Request, resources []string) {
	http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
}

/*
HandlePUT is a method stub returning an error.
*/
func (de *DefaultEndpointHandler) HandlePUT(w http.ResponseWriter, r *http.Request, resources []string) {
	http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
}

/*
HandleDELETE is a method stub returning an error.
*/
func (de *DefaultEndpointHandler) HandleDELETE(w http.ResponseWriter, r *http.Request, resources []string) {
	http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
}

// Response helpers
// ================

/*
ErrorResponse is the JSON body of an error response.
*/
type ErrorResponse struct {
	Error *engine.ErrorRecord `json:"error"`
}

/*
WriteError writes an error as JSON body. The status code is derived from the
error kind.
*/
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorStatus(w, err, util.HTTPStatus(err))
}

/*
WriteErrorStatus writes an error as JSON body with a given status code.
*/
func WriteErrorStatus(w http.ResponseWriter, err error, status int) {
	rec := engine.NewErrorResult(err).Error

	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(&ErrorResponse{rec})
}

/*
WriteJSON writes an object as JSON body.
*/
func WriteJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("content-type", "application/json; charset=utf-8")

	json.NewEncoder(w).Encode(data)
}

/*
QueryLogEntry is an entry of the query log.
*/
type QueryLogEntry struct {
	Timestamp string         `json:"timestamp"`
	Graph     string         `json:"graph"`
	User      string         `json:"user,omitempty"`
	Query     []*gripql.Step `json:"query"`
}

/*
LogQuery records a query in the query log.
*/
func LogQuery(r *http.Request, graph string, q *gripql.Query) {
	user := RequestUser(r)

	logrus.WithFields(logrus.Fields{
		"graph": graph,
		"query": q.String(),
	}).Debug("Query received")

	if QueryLog != nil {
		QueryLog.Add(&QueryLogEntry{
			Timestamp: timeutil.MakeTimestamp(),
			Graph:     graph,
			User:      user,
			Query:     q.Steps,
		})
	}
}

type contextKey string

const userContextKey contextKey = "user"

/*
WithUser returns a copy of a request which carries the name of the
authenticated user.
*/
func WithUser(r *http.Request, user string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userContextKey, user))
}

/*
RequestUser returns the name of the authenticated user of a request.
*/
func RequestUser(r *http.Request) string {
	user, _ := r.Context().Value(userContextKey).(string)
	return user
}
