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
Package server contains the code for the GripDB server.
*/
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"devt.de/krotik/common/datautil"
	"devt.de/krotik/common/fileutil"
	"devt.de/krotik/common/httputil"
	"devt.de/krotik/common/lockutil"
	"devt.de/krotik/gripdb/api"
	"devt.de/krotik/gripdb/api/ac"
	v1 "devt.de/krotik/gripdb/api/v1"
	"devt.de/krotik/gripdb/config"
	"devt.de/krotik/gripdb/engine"
	"devt.de/krotik/gripdb/graph"
	"devt.de/krotik/gripdb/gripper"
	"devt.de/krotik/gripdb/jobs"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

/*
Using custom consolelogger type so we can test fatal calls with unit tests. Overwrite
these if the server should not call os.Exit on a fatal error.
*/
type consolelogger func(v ...interface{})

var fatal = consolelogger(logrus.Fatal)
var print = consolelogger(logrus.Info)

/*
Base path for all file (used by unit tests)
*/
var basepath = ""

/*
EndpointMetrics is the URL of the Prometheus metrics endpoint.
*/
const EndpointMetrics = "/metrics"

/*
StartServer runs the GripDB server. The server uses config.Config for all its configuration
parameters.
*/
func StartServer() {
	StartServerWithSingleOp(nil)
}

/*
StartServerWithSingleOp runs the GripDB server. If the singleOperation function is
not nil then the server executes the function and exists if the function returns true.
*/
func StartServerWithSingleOp(singleOperation func(*graph.Manager) bool) {
	var err error

	print(fmt.Sprintf("GripDB %v", config.ProductVersion))

	// Ensure we have a configuration - use the default configuration if nothing was set

	if config.Config == nil {
		config.LoadDefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create GraphManager

	print("Creating GraphManager instance")

	gm := graph.NewGraphManager()

	defer func() {

		print("Closing graphs")

		if err := gm.Close(); err != nil {
			fatal(err)
			return
		}

		os.RemoveAll(filepath.Join(basepath, config.Str(config.LockFile)))
	}()

	// Add graphs which are backed by external row sources

	if !addGripperGraphs(ctx, gm) {
		return
	}

	// Handle single operation - these are operations which work on the GraphManager
	// and then exit.

	if singleOperation != nil && singleOperation(gm) {
		return
	}

	// Create the query engine and the job store

	eng := engine.NewEngine()
	eng.BufferSize = int(config.Int(config.PipelineBufferSize))
	eng.Retries = uint64(config.Int(config.StorageRetries))
	eng.Timeout = time.Duration(config.Int(config.QueryTimeoutSeconds)) * time.Second

	jobDir := config.Str(config.LocationJobs)

	if jobDir != "" {
		jobDir = filepath.Join(basepath, jobDir)

		print("Spooling jobs in ", jobDir)

		ensurePath(jobDir)
	}

	js, err := jobs.NewStore(gm, eng, int(config.Int(config.JobWorkers)), jobDir)
	if err != nil {
		fatal("Failed to open job store:", err)
		return
	}

	defer func() {
		print("Stopping jobs")
		js.Close()
	}()

	// Setting API parameters

	api.GM = gm
	api.Engine = eng
	api.Jobs = js
	api.APIHost = config.Str(config.HTTPHost) + ":" + config.Str(config.HTTPPort)

	if h := int(config.Int(config.QueryLogHistory)); h > 0 {
		api.QueryLog = datautil.NewRingBuffer(h)
	} else {
		api.QueryLog = nil
	}

	// Register public REST endpoints - these will never be checked for authentication

	api.RegisterRestEndpoints(api.GeneralEndpointMap)

	// Setup access control

	if config.Bool(config.EnableAccessControl) {

		credFile := filepath.Join(basepath, config.Str(config.LocationCredentials))
		policyFile := filepath.Join(basepath, config.Str(config.LocationPolicy))

		print("Loading credentials from ", credFile, " and policies from ", policyFile)

		acl := ac.NewAccessControlLists()

		if err = acl.Load(credFile, policyFile); err == nil {
			err = acl.Watch(ctx, credFile, policyFile)
		}

		if err != nil {
			fatal("Failed to setup access control:", err)
			return
		}

		ac.ACL = acl

		// Setup the AuthHandler object which provides Basic and Bearer
		// authentication for endpoints which are registered with its HandleFunc

		ac.AuthHandler = ac.NewACLAuthHandleFuncWrapper(http.HandleFunc, acl)

		api.RegisterRestEndpoints(ac.PublicAccessControlEndpointMap)

		// Finally set the HandleFunc of the AuthHandler as the HandleFunc of the API

		origHandleFunc := api.HandleFunc
		api.HandleFunc = ac.AuthHandler.HandleFunc

		defer func() {
			api.HandleFunc = origHandleFunc
		}()
	}

	// Register GripDB API endpoints - depending on if access control has been enabled
	// these will require authentication and authorization for a given user

	api.RegisterRestEndpoints(v1.V1EndpointMap)

	if config.Bool(config.EnableMetrics) {
		api.HandleFunc(EndpointMetrics, promhttp.Handler().ServeHTTP)
	}

	// Start HTTP server and enable REST API

	hs := &httputil.HTTPServer{}

	var wg sync.WaitGroup
	wg.Add(1)

	port := config.Str(config.HTTPPort)

	print("Starting server on: ", api.APIHost)

	go hs.RunHTTPServer(":"+port, &wg)

	// Wait until the server has started

	wg.Wait()

	// HTTP Server has started

	if hs.LastError != nil {
		fatal(hs.LastError)
		return
	}

	// Create a lockfile so the server can be shut down

	lf := lockutil.NewLockFile(filepath.Join(basepath, config.Str(config.LockFile)), time.Duration(2)*time.Second)

	lf.Start()

	go func() {

		// Check if the lockfile watcher is running and
		// call shutdown once it has finished

		for lf.WatcherRunning() {
			time.Sleep(time.Duration(1) * time.Second)
		}

		print("Lockfile was modified")

		hs.Shutdown()
	}()

	// Add to the wait group so we can wait for the shutdown

	wg.Add(1)

	print("Waiting for shutdown")
	wg.Wait()

	print("Shutting down")
}

/*
addGripperGraphs adds all configured graphs which are backed by external row
sources. Returns false if a graph could not be added.
*/
func addGripperGraphs(ctx context.Context, gm *graph.Manager) bool {
	mappings, err := config.GripperMappings()
	if err != nil {
		fatal(err)
		return false
	}

	names := make([]string, 0, len(mappings))
	for name := range mappings {
		names = append(names, name)
	}
	sort.Strings(names)

	maxAge := config.Int(config.GripperCacheMaxAgeSeconds)

	for _, name := range names {
		path := filepath.Join(basepath, mappings[name])

		print("Opening graph ", name, " from mapping ", path)

		conf, err := gripper.LoadConfig(path)

		if err == nil {
			var gr *gripper.Graph

			if gr, err = gripper.Open(ctx, name, conf, maxAge); err == nil {
				if err = gm.AddGraph(name, gr); err != nil {
					gr.Close()
				}
			}
		}

		if err != nil {
			fatal(fmt.Sprintf("Failed to open graph %v:", name), err)
			return false
		}
	}

	return true
}

/*
ensurePath ensures that a given relative path exists.
*/
func ensurePath(path string) {
	if res, _ := fileutil.PathExists(path); !res {
		if err := os.MkdirAll(path, 0770); err != nil {
			fatal("Could not create directory:", err.Error())
			return
		}
	}
}
