/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package server

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"devt.de/krotik/common/fileutil"
	"devt.de/krotik/common/httputil"
	"devt.de/krotik/gripdb/api/ac"
	"devt.de/krotik/gripdb/config"
	"devt.de/krotik/gripdb/graph"
	"devt.de/krotik/gripdb/gripper"
	"devt.de/krotik/gripdb/gripql"
)

const testdb = "testdb"

const testport = "9093"

const testURL = "http://localhost:" + testport

var printLog = []string{}
var errorLog = []string{}

var printLogging = false

func TestMain(m *testing.M) {
	flag.Parse()

	basepath = testdb + "/"

	// Log all print and error messages

	print = func(v ...interface{}) {
		if printLogging {
			fmt.Println(v...)
		}
		printLog = append(printLog, fmt.Sprint(v...))
	}
	fatal = func(v ...interface{}) {
		if printLogging {
			fmt.Println(v...)
		}
		errorLog = append(errorLog, fmt.Sprint(v...))
	}

	if res, _ := fileutil.PathExists(testdb); res {
		if err := os.RemoveAll(testdb); err != nil {
			fmt.Print("Could not remove test directory:", err.Error())
		}
	}

	ensurePath(testdb)

	// Run the tests

	res := m.Run()

	if res, _ := fileutil.PathExists(testdb); res {
		if err := os.RemoveAll(testdb); err != nil {
			fmt.Print("Could not remove test directory:", err.Error())
		}
	}

	os.Exit(res)
}

/*
startRowSource runs a table server with a films collection on a local port.
*/
func startRowSource(t *testing.T) string {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	films, _ := gripper.LoadJSONLines(strings.NewReader(
		`{"id": 1, "title": "A New Hope"}
		{"id": 2, "title": "The Empire Strikes Back"}`), "id")

	ts := gripper.NewTableServer(map[string]gripper.Driver{"films": films})

	go ts.Serve(lis)
	t.Cleanup(ts.Stop)

	return lis.Addr().String()
}

func TestMainNormalCase(t *testing.T) {

	// Make sure to reset the DefaultServeMux

	defer func() { http.DefaultServeMux = http.NewServeMux() }()

	// Make sure to remove any files

	defer func() {
		if err := os.RemoveAll(testdb); err != nil {
			fmt.Print("Could not remove test directory:", err.Error())
		}
		time.Sleep(time.Duration(100) * time.Millisecond)
		ensurePath(testdb)
	}()

	// Reset logs

	printLog = []string{}
	errorLog = []string{}

	// Write a mapping for a graph over an external row source

	mapping := fmt.Sprintf(`
sources:
  films: {host: "%v"}
vertices:
  "Film:":
    source: films
    collection: films
    label: Film
`, startRowSource(t))

	if err := os.WriteFile(testdb+"/films.yaml", []byte(mapping), 0600); err != nil {
		t.Error(err)
		return
	}

	config.LoadDefaultConfig()

	config.Config[config.HTTPPort] = testport
	config.Config[config.EnableAccessControl] = true
	config.Config[config.LocationJobs] = "jobs"
	config.Config[config.GripperConfigs] = "films=films.yaml"

	defer func() {
		config.Config = nil
	}()

	// Kick off main function

	done := make(chan bool, 1)

	go func() {
		StartServer()
		done <- true
	}()

	if !waitForServer() {
		t.Error("Server did not start:", errorLog)
		return
	}

	grip := ac.AuthorizationHeader(&ac.Credential{User: "grip", Password: "grip"})

	if st, res := sendRequest("GET", "/v1/graph", "", nil); st != http.StatusUnauthorized {
		t.Error("Unexpected response:", st, res)
		return
	}

	if st, res := sendRequest("GET", "/v1/graph", grip, nil); st != http.StatusOK || res != `{"graphs":["films"]}` {
		t.Error("Unexpected response:", st, res)
		return
	}

	q, _ := json.Marshal(gripql.V().Count())

	if st, res := sendRequest("POST", "/v1/graph/films/query", grip, q); st != http.StatusOK || res != `{"count":2}` {
		t.Error("Unexpected response:", st, res)
		return
	}

	if st, res := sendRequest("POST", "/v1/graph/films/vertex", grip,
		[]byte(`{"gid":"Film:3","label":"Film"}`)); st != http.StatusBadRequest {
		t.Error("Unexpected response:", st, res)
		return
	}

	if st, res := sendRequest("GET", "/whoami", grip, nil); st != http.StatusOK ||
		res != `{"logged_in":true,"username":"grip"}` {
		t.Error("Unexpected response:", st, res)
		return
	}

	if st, res := sendRequest("GET", "/metrics", grip, nil); st != http.StatusOK ||
		!strings.Contains(res, "gripdb_engine_queries_total") {
		t.Error("Unexpected response:", st)
		return
	}

	// To exit the main function the lock watcher thread
	// has to recognise that the lockfile was modified

	shutdown := false

	go func() {
		filename := basepath + config.Str(config.LockFile)

		for !shutdown {

			// Do a normal shutdown with a log file - don't check for errors

			shutdownWithLogFile(filename)

			time.Sleep(time.Duration(200) * time.Millisecond)
		}
	}()

	// Wait for the main function to end

	<-done

	shutdown = true

	if len(errorLog) != 0 {
		t.Error("Unexpected errors:", errorLog)
		return
	}

	// Check the print log

	logString := strings.Join(printLog, "\n")

	if logString != `
GripDB `[1:]+config.ProductVersion+`
Creating GraphManager instance
Opening graph films from mapping testdb/films.yaml
Spooling jobs in testdb/jobs
Loading credentials from testdb/credentials.json and policies from testdb/policy.json
Starting server on: localhost:`+testport+`
Waiting for shutdown
Lockfile was modified
Shutting down
Stopping jobs
Closing graphs` {
		t.Error("Unexpected log:", logString)
		return
	}
}

func TestMainErrorCases(t *testing.T) {

	// Make sure to reset the DefaultServeMux

	defer func() { http.DefaultServeMux = http.NewServeMux() }()

	// Make sure to remove any files

	defer func() {
		if err := os.RemoveAll(testdb); err != nil {
			fmt.Print("Could not remove test directory:", err.Error())
		}
		time.Sleep(time.Duration(100) * time.Millisecond)
		ensurePath(testdb)
	}()

	defer func() {
		config.Config = nil
	}()

	// Setup config and logs

	config.LoadDefaultConfig()
	config.Config[config.HTTPPort] = testport

	resetLogs := func() {
		printLog = []string{}
		errorLog = []string{}
		http.DefaultServeMux = http.NewServeMux()
	}

	// Invalid gripper mapping list

	resetLogs()

	config.Config[config.GripperConfigs] = "nonsense"

	StartServer()

	if len(errorLog) != 1 || !strings.Contains(errorLog[0], "Invalid gripper mapping nonsense") {
		t.Error("Unexpected error:", errorLog)
		return
	}

	// Missing mapping file

	resetLogs()

	config.Config[config.GripperConfigs] = "broken=does-not-exist.yaml"

	StartServer()

	if len(errorLog) != 1 || !strings.Contains(errorLog[0], "Failed to open graph broken:") ||
		!strings.Contains(errorLog[0], "Could not read mapping") {
		t.Error("Unexpected error:", errorLog)
		return
	}

	config.Config[config.GripperConfigs] = ""

	// Broken policy file

	resetLogs()

	if err := os.WriteFile(testdb+"/policy.json", []byte(`[{"subject":"x"}]`), 0600); err != nil {
		t.Error(err)
		return
	}

	config.Config[config.EnableAccessControl] = true

	StartServer()

	if len(errorLog) != 1 || errorLog[0] != "Failed to setup access control:Policy 0 is incomplete" {
		t.Error("Unexpected error:", errorLog)
		return
	}

	config.Config[config.EnableAccessControl] = false

	// Port is already in use

	resetLogs()

	ths := httputil.HTTPServer{}
	go ths.RunHTTPServer(":"+testport, nil)

	time.Sleep(time.Duration(1) * time.Second)

	StartServer()

	ths.Shutdown()

	time.Sleep(time.Duration(1) * time.Second)

	if ths.Running {
		t.Error("Server should not be running")
		return
	}

	if len(errorLog) != 1 || !strings.Contains(errorLog[0], "listen tcp :"+testport) {
		t.Error("Unexpected error:", errorLog)
		return
	}

	// Test single operation

	resetLogs()

	SOPExecuted := false

	StartServerWithSingleOp(func(gm *graph.Manager) bool {
		SOPExecuted = true
		return true
	})

	if !SOPExecuted {
		t.Error("Single operation function was not executed")
		return
	}
}

/*
waitForServer waits until the server answers requests.
*/
func waitForServer() bool {
	for i := 0; i < 100; i++ {
		if resp, err := http.Get(testURL + "/about"); err == nil {
			resp.Body.Close()
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}

	return false
}

/*
sendRequest sends a request with an optional Authorization header.
*/
func sendRequest(method, path, authorization string, content []byte) (int, string) {
	req, err := http.NewRequest(method, testURL+path, bytes.NewBuffer(content))
	if err != nil {
		panic(err)
	}

	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	return resp.StatusCode, strings.TrimSpace(string(body))
}

func shutdownWithLogFile(filename string) error {

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0660)
	if err != nil {
		fmt.Println(errorLog)
		return err
	}
	defer file.Close()

	_, err = file.Write([]byte("a"))

	return err
}
