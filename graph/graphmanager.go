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
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/graph/graphstorage"
	"devt.de/krotik/gripdb/graph/util"
	"github.com/sirupsen/logrus"
)

/*
Manager data structure
*/
type Manager struct {
	graphs map[string]graphstorage.Storage // Known graphs
	gr     *graphRulesManager              // Manager for graph rules
	mutex  *sync.RWMutex                   // Mutex to protect atomic graph operations
}

/*
NewGraphManager returns a new GraphManager instance.
*/
func NewGraphManager() *Manager {
	gm := &Manager{make(map[string]graphstorage.Storage),
		&graphRulesManager{nil, make(map[string]Rule), make(map[int]map[string]Rule)},
		&sync.RWMutex{}}

	gm.gr.gm = gm

	gm.SetGraphRule(&SystemRuleDeleteVertexEdges{})
	gm.SetGraphRule(&SystemRuleCheckEdgeEnds{})

	return gm
}

/*
SetGraphRule sets a GraphRule.
*/
func (gm *Manager) SetGraphRule(rule Rule) {
	gm.gr.SetGraphRule(rule)
}

/*
GraphRules returns a list of all available graph rules.
*/
func (gm *Manager) GraphRules() []string {
	return gm.gr.GraphRules()
}

/*
ListGraphs returns the names of all graphs.
*/
func (gm *Manager) ListGraphs() []string {
	gm.mutex.RLock()
	defer gm.mutex.RUnlock()

	ret := make([]string, 0, len(gm.graphs))
	for name := range gm.graphs {
		ret = append(ret, name)
	}

	sort.Strings(ret)

	return ret
}

/*
checkGraphName checks if a given graph name is valid.
*/
func checkGraphName(name string) error {
	if name == "" || strings.Contains(name, "/") {
		return util.NewGraphError(util.ErrInvalidArgument,
			fmt.Sprintf("Invalid graph name: %q", name))
	}
	return nil
}

/*
CreateGraph creates a new memory graph. Creating an existing graph does
nothing.
*/
func (gm *Manager) CreateGraph(name string) error {
	if err := checkGraphName(name); err != nil {
		return err
	}

	gm.mutex.Lock()
	defer gm.mutex.Unlock()

	if _, ok := gm.graphs[name]; !ok {
		gm.graphs[name] = graphstorage.NewMemoryGraphStorage(name)
		logrus.WithField("graph", name).Info("Created graph")
	}

	return nil
}

/*
AddGraph adds a graph which is backed by a given storage.
*/
func (gm *Manager) AddGraph(name string, gs graphstorage.Storage) error {
	if err := checkGraphName(name); err != nil {
		return err
	}

	gm.mutex.Lock()
	defer gm.mutex.Unlock()

	if _, ok := gm.graphs[name]; ok {
		return util.NewGraphError(util.ErrConflict, fmt.Sprintf("Graph %v already exists", name))
	}

	gm.graphs[name] = gs

	logrus.WithFields(logrus.Fields{
		"graph":    name,
		"readonly": gs.ReadOnly(),
	}).Info("Added graph")

	return nil
}

/*
DeleteGraph removes a graph and closes its storage.
*/
func (gm *Manager) DeleteGraph(name string) error {
	gm.mutex.Lock()
	defer gm.mutex.Unlock()

	gs, ok := gm.graphs[name]
	if !ok {
		return graphNotFound(name)
	}

	delete(gm.graphs, name)

	logrus.WithField("graph", name).Info("Deleted graph")

	return gs.Close()
}

/*
Graph returns the storage of a graph.
*/
func (gm *Manager) Graph(name string) (graphstorage.Storage, error) {
	gm.mutex.RLock()
	defer gm.mutex.RUnlock()

	return gm.graph(name)
}

/*
graph returns the storage of a graph. The caller must hold the lock.
*/
func (gm *Manager) graph(name string) (graphstorage.Storage, error) {
	if gs, ok := gm.graphs[name]; ok {
		return gs, nil
	}
	return nil, graphNotFound(name)
}

/*
writableGraph returns the storage of a graph which accepts writes. The
caller must hold the lock.
*/
func (gm *Manager) writableGraph(name string) (graphstorage.Storage, error) {
	gs, err := gm.graph(name)

	if err == nil && gs.ReadOnly() {
		err = util.NewGraphError(util.ErrReadOnly, fmt.Sprintf("Graph %v is read-only", name))
	}

	return gs, err
}

/*
AddIndex adds an index to a graph.
*/
func (gm *Manager) AddIndex(graph string, label string, field string) error {
	gm.mutex.RLock()
	defer gm.mutex.RUnlock()

	gs, err := gm.writableGraph(graph)
	if err == nil {
		err = gs.AddIndex(label, field)
	}

	return err
}

/*
DeleteIndex removes an index from a graph.
*/
func (gm *Manager) DeleteIndex(graph string, label string, field string) error {
	gm.mutex.RLock()
	defer gm.mutex.RUnlock()

	gs, err := gm.writableGraph(graph)
	if err == nil {
		err = gs.DeleteIndex(label, field)
	}

	return err
}

/*
Close closes all graphs.
*/
func (gm *Manager) Close() error {
	gm.mutex.Lock()
	defer gm.mutex.Unlock()

	for name, gs := range gm.graphs {
		if err := gs.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"graph": name,
				"error": err,
			}).Warn("Could not close graph")
		}
	}

	gm.graphs = make(map[string]graphstorage.Storage)

	return nil
}

/*
GetVertex returns a vertex of a graph.
*/
func (gm *Manager) GetVertex(ctx context.Context, graph string, gid string) (*data.Element, error) {
	gs, err := gm.Graph(graph)
	if err != nil {
		return nil, err
	}
	return gs.GetVertex(ctx, gid)
}

/*
GetEdge returns an edge of a graph.
*/
func (gm *Manager) GetEdge(ctx context.Context, graph string, gid string) (*data.Element, error) {
	gs, err := gm.Graph(graph)
	if err != nil {
		return nil, err
	}
	return gs.GetEdge(ctx, gid)
}

func graphNotFound(name string) error {
	return util.NewGraphError(util.ErrNotFound, fmt.Sprintf("Graph %v not found", name))
}
