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
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"devt.de/krotik/gripdb/api"
	"devt.de/krotik/gripdb/engine"
	"devt.de/krotik/gripdb/graph/util"
	"devt.de/krotik/gripdb/jobs"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

/*
upgrader can upgrade normal requests to websocket communications
*/
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

/*
TailWriteTimeout is the maximum time a websocket write may take.
*/
var TailWriteTimeout = 10 * time.Second

/*
TailStatus is the last message of a job tail websocket.
*/
type TailStatus struct {
	Status *jobs.Status `json:"status"`
}

/*
jobStatus returns the status of a job which must belong to a given graph.
*/
func jobStatus(graph string, id string) (*jobs.Status, error) {
	status, err := api.Jobs.Status(id)

	if err == nil && status.Graph != graph {
		status, err = nil, util.NewGraphError(util.ErrNotFound, fmt.Sprintf("Job %v not found", id))
	}

	return status, err
}

/*
getJob handles all GET requests on jobs:

	job              list all jobs of the graph
	job/{id}         status of a job
	job/{id}/read    result stream of a job
	job/{id}/tail    websocket which follows the results of a job
*/
func getJob(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	if !checkResources(w, resources, 0, 2, "") {
		return
	}

	if len(resources) == 0 {
		listJobs(w, r, graph)
		return
	}

	status, err := jobStatus(graph, resources[0])
	if err != nil {
		api.WriteError(w, err)
		return
	}

	if len(resources) == 1 {
		api.WriteJSON(w, status)
		return
	}

	offset, ok := queryParamPosNum(w, r, "offset")
	if !ok {
		return
	} else if offset < 0 {
		offset = 0
	}

	switch resources[1] {
	case "read":
		readJob(w, r, status.ID, offset)
	case "tail":
		tailJob(w, r, status.ID, offset)
	default:
		api.WriteError(w, util.NewGraphError(util.ErrInvalidArgument,
			fmt.Sprintf("Unknown job resource: %v", resources[1])))
	}
}

/*
listJobs writes the status of all jobs of a graph.
*/
func listJobs(w http.ResponseWriter, r *http.Request, graph string) {
	if _, err := api.GM.Graph(graph); err != nil {
		api.WriteError(w, err)
		return
	}

	nw := newNDJSONWriter(w)

	for _, status := range api.Jobs.List(graph) {
		if nw.write(status) != nil {
			return
		}
	}
}

/*
readJob streams the results of a job. A running job is followed until it is
finished.
*/
func readJob(w http.ResponseWriter, r *http.Request, id string, offset int) {
	reader, err := api.Jobs.Read(r.Context(), id, offset)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	defer reader.Close()

	nw := newNDJSONWriter(w)

	for reader.Next() {
		if nw.write(reader.Result()) != nil {
			return
		}
	}

	if err := reader.Err(); err != nil && !errors.Is(err, context.Canceled) {
		nw.write(engine.NewErrorResult(err))
	}
}

/*
tailJob sends the results of a job over a websocket. The last message
contains the status of the job. The socket is closed once the job has
finished.
*/
func tailJob(w http.ResponseWriter, r *http.Request, id string, offset int) {

	// If the upgrade fails then the client gets an HTTP error response.

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Stop tailing once the client closes the connection

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	reader, err := api.Jobs.Read(ctx, id, offset)
	if err != nil {
		writeTail(conn, engine.NewErrorResult(err))
		return
	}
	defer reader.Close()

	for reader.Next() {
		if err := writeTail(conn, reader.Result()); err != nil {
			return
		}
	}

	if err := reader.Err(); err != nil {
		if !errors.Is(err, context.Canceled) {
			writeTail(conn, engine.NewErrorResult(err))
		}
		return
	}

	if status, err := api.Jobs.Status(id); err == nil {
		writeTail(conn, &TailStatus{status})
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(TailWriteTimeout))
}

func writeTail(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(TailWriteTimeout))

	err := conn.WriteJSON(v)

	if err != nil {
		logrus.WithField("error", err).Debug("Could not write to job tail")
	}

	return err
}

/*
submitJob runs a query as a job.
*/
func submitJob(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	if !checkResources(w, resources, 0, 0, "") {
		return
	}

	q := decodeQuery(w, r)
	if q == nil {
		return
	}

	status, err := api.Jobs.Submit(graph, q)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	api.LogQuery(r, graph, q)

	api.WriteJSON(w, status)
}

/*
deleteJob cancels a job and removes its results.
*/
func deleteJob(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	if !checkResources(w, resources, 1, 1, "Need a job id") {
		return
	}

	if _, err := jobStatus(graph, resources[0]); err != nil {
		api.WriteError(w, err)
		return
	}

	if err := api.Jobs.Delete(resources[0]); err != nil {
		api.WriteError(w, err)
		return
	}

	writeOK(w, "")
}

/*
searchJobs writes the ids of all jobs of a graph which ran an equal query.
*/
func searchJobs(w http.ResponseWriter, r *http.Request, graph string, resources []string) {
	if !checkResources(w, resources, 0, 0, "") {
		return
	}

	q := decodeQuery(w, r)
	if q == nil {
		return
	}

	if _, err := api.GM.Graph(graph); err != nil {
		api.WriteError(w, err)
		return
	}

	nw := newNDJSONWriter(w)

	for _, id := range api.Jobs.Search(graph, q) {
		if nw.write(map[string]string{"id": id}) != nil {
			return
		}
	}
}
