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
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"devt.de/krotik/gripdb/gripql"
	"devt.de/krotik/gripdb/jobs"
	"github.com/gorilla/websocket"
)

/*
waitForJob polls the status of a job until it has finished.
*/
func waitForJob(url string) *jobs.Status {
	for i := 0; i < 200; i++ {
		var status jobs.Status

		_, _, res := sendTestRequest(url, "GET", nil)
		json.Unmarshal([]byte(res), &status)

		if status.State.Finished() {
			return &status
		}

		time.Sleep(10 * time.Millisecond)
	}

	return nil
}

func TestJobEndpoint(t *testing.T) {
	queryURL := testURL + EndpointGraph

	sendTestRequest(queryURL+"jobs", "POST", nil)
	sendTestRequest(queryURL+"other", "POST", nil)

	for i := 1; i <= 3; i++ {
		sendTestRequest(queryURL+"jobs/vertex", "POST",
			[]byte(fmt.Sprintf(`{"gid":"v%v","label":"Person","data":{"age":%v}}`, i, 20+i)))
	}

	q := gripql.V().HasLabel("Person").Count()

	st, _, res := sendTestRequest(queryURL+"jobs/job", "POST", queryBody(q))

	var status jobs.Status
	json.Unmarshal([]byte(res), &status)

	if st != "200 OK" || status.ID == "" || status.Graph != "jobs" || status.State != jobs.StateQueued {
		t.Error("Unexpected response:", st, res)
		return
	}

	jobURL := queryURL + "jobs/job/" + status.ID

	if s := waitForJob(jobURL); s == nil || s.State != jobs.StateDone || s.Count != 1 {
		t.Error("Unexpected status:", s)
		return
	}

	st, h, res := sendTestRequest(jobURL+"/read", "GET", nil)
	if st != "200 OK" || h.Get("content-type") != ContentTypeNDJSON || res != `{"count":3}` {
		t.Error("Unexpected response:", st, res)
		return
	}

	st, _, res = sendTestRequest(jobURL+"/read?offset=1", "GET", nil)
	if st != "200 OK" || res != "" {
		t.Error("Unexpected response:", st, res)
		return
	}

	st, _, res = sendTestRequest(jobURL+"/read?offset=-1", "GET", nil)
	if st != "400 Bad Request" || errorKind(res) != "INVALID_ARGUMENT" {
		t.Error("Unexpected response:", st, res)
		return
	}

	st, _, res = sendTestRequest(jobURL+"/foo", "GET", nil)
	if st != "400 Bad Request" || res != `{"error":{"kind":"INVALID_ARGUMENT","message":"Unknown job resource: foo"}}` {
		t.Error("Unexpected response:", st, res)
		return
	}

	// Jobs are only visible under their own graph

	st, _, res = sendTestRequest(queryURL+"other/job/"+status.ID, "GET", nil)
	if st != "404 Not Found" || res != fmt.Sprintf(`{"error":{"kind":"NOT_FOUND","message":"Job %v not found"}}`, status.ID) {
		t.Error("Unexpected response:", st, res)
		return
	}

	st, _, res = sendTestRequest(queryURL+"other/job/"+status.ID, "DELETE", nil)
	if st != "404 Not Found" {
		t.Error("Unexpected response:", st, res)
		return
	}

	// List and search

	st, _, res = sendTestRequest(queryURL+"jobs/job", "GET", nil)
	if st != "200 OK" || strings.Count(res, "\n") != 0 || !strings.Contains(res, `"state":"DONE"`) {
		t.Error("Unexpected response:", st, res)
		return
	}

	st, _, res = sendTestRequest(queryURL+"other/job", "GET", nil)
	if st != "200 OK" || res != "" {
		t.Error("Unexpected response:", st, res)
		return
	}

	st, _, res = sendTestRequest(queryURL+"jobs/job-search", "POST", queryBody(q))
	if st != "200 OK" || res != fmt.Sprintf(`{"id":"%v"}`, status.ID) {
		t.Error("Unexpected response:", st, res)
		return
	}

	st, _, res = sendTestRequest(queryURL+"jobs/job-search", "POST", queryBody(gripql.V().Count()))
	if st != "200 OK" || res != "" {
		t.Error("Unexpected response:", st, res)
		return
	}

	st, _, res = sendTestRequest(queryURL+"nope/job-search", "POST", queryBody(q))
	if st != "404 Not Found" {
		t.Error("Unexpected response:", st, res)
		return
	}

	// Validation errors are reported on submit

	st, _, res = sendTestRequest(queryURL+"jobs/job", "POST", queryBody(gripql.V().InV()))
	if st != "400 Bad Request" || errorKind(res) != "INVALID_QUERY" {
		t.Error("Unexpected response:", st, res)
		return
	}

	st, _, res = sendTestRequest(queryURL+"nope/job", "POST", queryBody(q))
	if st != "404 Not Found" || errorKind(res) != "NOT_FOUND" {
		t.Error("Unexpected response:", st, res)
		return
	}

	// Delete the job

	st, _, res = sendTestRequest(jobURL, "DELETE", nil)
	if st != "200 OK" || res != `{"status":"ok"}` {
		t.Error("Unexpected response:", st, res)
		return
	}

	st, _, res = sendTestRequest(jobURL, "GET", nil)
	if st != "404 Not Found" || errorKind(res) != "NOT_FOUND" {
		t.Error("Unexpected response:", st, res)
		return
	}

	st, _, res = sendTestRequest(queryURL+"jobs/job", "DELETE", nil)
	if st != "400 Bad Request" || res != `{"error":{"kind":"INVALID_ARGUMENT","message":"Need a job id"}}` {
		t.Error("Unexpected response:", st, res)
		return
	}
}

func TestJobTail(t *testing.T) {
	queryURL := testURL + EndpointGraph

	sendTestRequest(queryURL+"tail", "POST", nil)

	for i := 1; i <= 3; i++ {
		sendTestRequest(queryURL+"tail/vertex", "POST",
			[]byte(fmt.Sprintf(`{"gid":"v%v","label":"Person","data":{}}`, i)))
	}

	_, _, res := sendTestRequest(queryURL+"tail/job", "POST", queryBody(gripql.V().Render("$._gid")))

	var status jobs.Status
	json.Unmarshal([]byte(res), &status)

	wsURL := "ws://localhost" + TESTPORT + EndpointGraph + "tail/job/" + status.ID + "/tail?offset=1"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Error(err)
		return
	}
	defer conn.Close()

	var msgs []string

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Error("Unexpected error:", err)
				return
			}
			break
		}
		msgs = append(msgs, strings.TrimSpace(string(msg)))
	}

	if len(msgs) != 3 || msgs[0] != `{"render":"v2"}` || msgs[1] != `{"render":"v3"}` {
		t.Error("Unexpected messages:", msgs)
		return
	}

	var ts TailStatus

	if err := json.Unmarshal([]byte(msgs[2]), &ts); err != nil || ts.Status == nil ||
		ts.Status.State != jobs.StateDone || ts.Status.Count != 3 {
		t.Error("Unexpected message:", msgs[2], err)
		return
	}

	// Unknown jobs fail the handshake

	conn2, _, err := websocket.DefaultDialer.Dial("ws://localhost"+TESTPORT+EndpointGraph+"tail/job/foo/tail", nil)
	if err == nil {
		conn2.Close()
		t.Error("Dial should fail for an unknown job")
		return
	}
}
