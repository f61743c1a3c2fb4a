/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package graph

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"devt.de/krotik/common/errorutil"
	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/graph/graphstorage"
	"github.com/sirupsen/logrus"
)

/*
maxBulkLineSize is the maximum size of a single bulk load line.
*/
const maxBulkLineSize = 16 * 1024 * 1024

/*
BulkElement is a single line of a bulk load stream.
*/
type BulkElement struct {
	Graph  string       `json:"graph"`
	Vertex *data.Vertex `json:"vertex,omitempty"`
	Edge   *data.Edge   `json:"edge,omitempty"`
}

/*
BulkLoadResult is the result of a bulk load.
*/
type BulkLoadResult struct {
	InsertCount int      `json:"insertCount"`
	ErrorCount  int      `json:"errorCount"`
	Errors      []string `json:"errors,omitempty"`
}

/*
BulkLoad loads newline delimited JSON objects into the manager. Each line
holds a graph name and either a vertex or an edge. Graphs are created as
needed. Lines which cannot be stored are counted and reported; the load is
not atomic.
*/
func (gm *Manager) BulkLoad(ctx context.Context, in io.Reader) (*BulkLoadResult, error) {
	res := &BulkLoadResult{}
	ce := errorutil.NewCompositeError()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxBulkLineSize)

	line := 0

	for scanner.Scan() {
		line++

		if err := ctx.Err(); err != nil {
			return res, err
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		if err := gm.loadBulkElement(text); err != nil {
			ce.Add(fmt.Errorf("Line %v: %v", line, err))
			continue
		}

		res.InsertCount++
	}

	if ce.HasErrors() {
		res.ErrorCount = len(ce.Errors)
		res.Errors = ce.Errors

		logrus.WithFields(logrus.Fields{
			"inserted": res.InsertCount,
			"errors":   res.ErrorCount,
		}).Warn("Bulk load finished with errors")
	}

	return res, scanner.Err()
}

/*
loadBulkElement stores a single bulk load line.
*/
func (gm *Manager) loadBulkElement(text string) error {
	var el BulkElement

	if err := json.Unmarshal([]byte(text), &el); err != nil {
		return err
	}

	if (el.Vertex == nil) == (el.Edge == nil) {
		return fmt.Errorf("Line must contain either a vertex or an edge")
	}

	if err := gm.CreateGraph(el.Graph); err != nil {
		return err
	}

	if el.Vertex != nil {
		return gm.StoreVertex(el.Graph, el.Vertex)
	}

	_, err := gm.StoreEdge(el.Graph, el.Edge)

	return err
}

/*
ExportGraph writes all vertices and edges of a graph as newline delimited
JSON in the bulk load format.
*/
func (gm *Manager) ExportGraph(ctx context.Context, graph string, out io.Writer) error {
	gs, err := gm.Graph(graph)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)

	write := func(it graphstorage.Iterator, toBulk func(*data.Element) BulkElement) error {
		defer it.Close()

		for it.Next() {
			if err := enc.Encode(toBulk(it.Element())); err != nil {
				return err
			}
		}

		return it.Err()
	}

	err = write(gs.Vertices(ctx), func(el *data.Element) BulkElement {
		return BulkElement{Graph: graph, Vertex: el.Vertex()}
	})

	if err == nil {
		err = write(gs.Edges(ctx), func(el *data.Element) BulkElement {
			return BulkElement{Graph: graph, Edge: el.Edge()}
		})
	}

	return err
}
