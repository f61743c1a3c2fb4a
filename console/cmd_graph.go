/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package console

import (
	"encoding/json"
	"fmt"
	"os"

	v1 "devt.de/krotik/gripdb/api/v1"
)

/*
Available graph commands
*/
const (
	CommandGraphs = "graphs"
	CommandUse    = "use"
	CommandInfo   = "info"
	CommandLoad   = "load"
	CommandDump   = "dump"
	CommandJobs   = "jobs"
)

// Command: graphs
// ===============

/*
CmdGraphs lists all graphs of the server.
*/
type CmdGraphs struct {
	cmdInfo
}

func newCmdGraphs() *CmdGraphs {
	return &CmdGraphs{cmdInfo{CommandGraphs, "Lists all graphs.",
		"Lists all graphs with their number of scanned vertices and edges and their jobs."}}
}

/*
Run executes the command.
*/
func (c *CmdGraphs) Run(args []string, capi CommandConsoleAPI) error {
	res, err := capi.Req(v1.EndpointInfoQuery, "GET", nil)

	if err == nil {
		tab := []string{"Graph", "Read-only", "Vertices scanned", "Edges scanned", "Jobs"}

		info, _ := res.(map[string]interface{})
		graphs, _ := info["graphs"].([]interface{})

		for _, g := range graphs {
			gi, _ := g.(map[string]interface{})
			stats, _ := gi["stats"].(map[string]interface{})

			tab = append(tab, fmt.Sprint(gi["name"]), fmt.Sprint(gi["readOnly"]),
				fmt.Sprint(stats["verticesScanned"]), fmt.Sprint(stats["edgesScanned"]),
				fmt.Sprint(gi["jobs"]))
		}

		writeTable(capi, tab, 5)
	}

	return err
}

// Command: use
// ============

/*
CmdUse shows or switches the graph which queries run against.
*/
type CmdUse struct {
	cmdInfo
}

func newCmdUse() *CmdUse {
	return &CmdUse{cmdInfo{CommandUse, "Displays or sets the current graph.",
		"Displays or sets the current graph. Queries and graph commands " +
			"operate on the current graph."}}
}

/*
Run executes the command.
*/
func (c *CmdUse) Run(args []string, capi CommandConsoleAPI) error {
	if len(args) > 0 {
		capi.SetGraph(args[0])
		fmt.Fprintln(capi.Out(), "Current graph is now:", args[0])
	} else {
		fmt.Fprintln(capi.Out(), "Current graph is:", capi.Graph())
	}

	return nil
}

// Command: info
// =============

/*
CmdInfo shows the labels and indices of the current graph.
*/
type CmdInfo struct {
	cmdInfo
}

func newCmdInfo() *CmdInfo {
	return &CmdInfo{cmdInfo{CommandInfo, "Returns information about the current graph.",
		"Returns the vertex labels, edge labels and indices of the current graph."}}
}

/*
Run executes the command.
*/
func (c *CmdInfo) Run(args []string, capi CommandConsoleAPI) error {
	res, err := capi.Req(v1.EndpointGraph+capi.Graph(), "GET", nil)

	if err == nil {
		summary, _ := res.(map[string]interface{})

		tab := []string{"Type", "Name"}

		for _, kind := range []string{"vertex", "edge"} {
			labels, _ := summary[kind+"Labels"].([]interface{})

			for _, l := range labels {
				tab = append(tab, kind+" label", fmt.Sprint(l))
			}
		}

		indices, _ := summary["indices"].([]interface{})

		for _, i := range indices {
			index, _ := i.(map[string]interface{})
			tab = append(tab, "index", fmt.Sprintf("%v.%v", index["label"], index["field"]))
		}

		fmt.Fprintf(capi.Out(), "Graph: %v (read-only: %v)\n", summary["graph"], summary["readOnly"])

		writeTable(capi, tab, 2)
	}

	return err
}

// Command: load
// =============

/*
CmdLoad sends a file of graph elements to the bulk load endpoint.
*/
type CmdLoad struct {
	cmdInfo
}

func newCmdLoad() *CmdLoad {
	return &CmdLoad{cmdInfo{CommandLoad, "Loads graph elements from a file.",
		"Loads graph elements from a file. Each line of the file contains a " +
			"JSON object with a graph name and either a vertex or an edge."}}
}

/*
Run executes the command.
*/
func (c *CmdLoad) Run(args []string, capi CommandConsoleAPI) error {
	if len(args) < 1 {
		return fmt.Errorf("Please specify a file to load")
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	res, err := capi.Req(v1.EndpointGraphRoot, "POST", content)

	if err == nil {
		result, _ := res.(map[string]interface{})

		fmt.Fprintf(capi.Out(), "Inserted %v elements (%v errors)\n",
			result["insertCount"], result["errorCount"])

		errs, _ := result["errors"].([]interface{})

		for _, e := range errs {
			fmt.Fprintln(capi.Out(), e)
		}
	}

	return err
}

// Command: dump
// =============

/*
CmdDump writes all elements of the current graph in the bulk load format.
*/
type CmdDump struct {
	cmdInfo
}

func newCmdDump() *CmdDump {
	return &CmdDump{cmdInfo{CommandDump, "Writes all elements of the current graph.",
		"Writes all elements of the current graph in a form which can be " +
			"loaded with the load command."}}
}

/*
Run executes the command.
*/
func (c *CmdDump) Run(args []string, capi CommandConsoleAPI) error {
	return capi.Stream(v1.EndpointGraph+capi.Graph()+"/export", "GET", nil,
		func(rec map[string]interface{}) error {
			if err := recordError(rec); err != nil {
				return err
			}
			return writeRecord(capi, rec)
		})
}

// Command: jobs
// =============

/*
CmdJobs lists the jobs of the current graph.
*/
type CmdJobs struct {
	cmdInfo
}

func newCmdJobs() *CmdJobs {
	return &CmdJobs{cmdInfo{CommandJobs, "Lists the jobs of the current graph.",
		"Lists the jobs of the current graph with their state and number of results."}}
}

/*
Run executes the command.
*/
func (c *CmdJobs) Run(args []string, capi CommandConsoleAPI) error {
	tab := []string{"ID", "State", "Results", "Timestamp"}

	err := capi.Stream(v1.EndpointGraph+capi.Graph()+"/job", "GET", nil,
		func(rec map[string]interface{}) error {
			if err := recordError(rec); err != nil {
				return err
			}

			tab = append(tab, fmt.Sprint(rec["id"]), fmt.Sprint(rec["state"]),
				fmt.Sprint(rec["count"]), fmt.Sprint(rec["timestamp"]))

			return nil
		})

	if err == nil {
		writeTable(capi, tab, 4)
	}

	return err
}

// Record helpers
// ==============

/*
recordError returns the error of an error record.
*/
func recordError(rec map[string]interface{}) error {
	if e, ok := rec["error"].(map[string]interface{}); ok && len(rec) == 1 {
		return fmt.Errorf("%v (%v)", e["message"], e["kind"])
	}
	return nil
}

/*
writeRecord writes a record as a single JSON line to the output and the
export buffer.
*/
func writeRecord(capi CommandConsoleAPI, rec map[string]interface{}) error {
	line, err := json.Marshal(rec)

	if err == nil {
		capi.ExportBuffer().Write(line)
		capi.ExportBuffer().WriteString("\n")

		fmt.Fprintln(capi.Out(), string(line))
	}

	return err
}
