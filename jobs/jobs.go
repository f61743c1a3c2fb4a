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
Package jobs contains the asynchronous query store.

A submitted query is compiled right away and then queued on a worker pool.
The worker appends every result record to the log of the job. Readers can
read the log of a job while it is still running; they block until the next
record arrives or the job finishes. Jobs can optionally be spooled to disk
so finished jobs survive a restart.
*/
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"devt.de/krotik/common/flowutil"
	"devt.de/krotik/common/pools"
	"devt.de/krotik/common/timeutil"
	"devt.de/krotik/gripdb/engine"
	"devt.de/krotik/gripdb/graph/graphstorage"
	"devt.de/krotik/gripdb/graph/util"
	"devt.de/krotik/gripdb/gripql"
	"devt.de/krotik/gripdb/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

/*
State is the state of a job.
*/
type State string

/*
Job states
*/
const (
	StateQueued  State = "QUEUED"
	StateRunning State = "RUNNING"
	StateDone    State = "DONE"
	StateError   State = "ERROR"
)

/*
Finished returns true if the state is terminal.
*/
func (s State) Finished() bool {
	return s == StateDone || s == StateError
}

/*
EventJobState is the event which is posted on every state change. The event
source is the new Status of the job.
*/
const EventJobState = "job.state"

/*
Status is the status of a job.
*/
type Status struct {
	ID        string         `json:"id"`
	Graph     string         `json:"graph"`
	State     State          `json:"state"`
	Count     int64          `json:"count"`
	Query     []*gripql.Step `json:"query"`
	Timestamp string         `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
}

/*
Graphs gives access to named graph storages.
*/
type Graphs interface {

	/*
		Graph returns the storage of a graph.
	*/
	Graph(name string) (graphstorage.Storage, error)
}

/*
job is a single job with its result log.
*/
type job struct {
	status  Status
	results []*engine.Result
	deleted bool
	cancel  context.CancelFunc
	spool   *spoolWriter
	lock    sync.Mutex
	cond    *sync.Cond
}

/*
Store manages jobs.
*/
type Store struct {
	graphs Graphs
	engine *engine.Engine
	pool   *pools.ThreadPool
	pump   *flowutil.EventPump
	dir    string // Spool directory (empty for memory only)
	jobs   map[string]*job
	lock   sync.RWMutex
}

/*
NewStore creates a new job store which runs jobs with a given number of
workers. If dir is not empty then jobs are spooled into this directory and
finished jobs of a previous run are reloaded.
*/
func NewStore(graphs Graphs, eng *engine.Engine, workers int, dir string) (*Store, error) {
	js := &Store{
		graphs: graphs,
		engine: eng,
		pool:   pools.NewThreadPool(),
		pump:   flowutil.NewEventPump(),
		dir:    dir,
		jobs:   make(map[string]*job),
	}

	js.pump.AddObserver(EventJobState, nil, func(event string, source interface{}) {
		status := source.(*Status)

		metrics.JobStates.WithLabelValues(string(status.State)).Inc()

		switch status.State {
		case StateQueued:
			metrics.JobsActive.Inc()
		case StateDone, StateError:
			metrics.JobsActive.Dec()
		}

		logrus.WithFields(logrus.Fields{
			"job":   status.ID,
			"graph": status.Graph,
			"state": status.State,
			"count": status.Count,
		}).Debug("Job state changed")
	})

	if dir != "" {
		if err := js.reload(); err != nil {
			return nil, err
		}
	}

	if workers <= 0 {
		workers = 1
	}

	js.pool.SetWorkerCount(workers, false)

	return js, nil
}

/*
Events returns the event pump of this store.
*/
func (js *Store) Events() *flowutil.EventPump {
	return js.pump
}

/*
Close stops all workers after the queued jobs have been processed.
*/
func (js *Store) Close() {
	js.pool.JoinAll()
}

/*
Submit compiles a query and queues it as a new job. Validation errors are
returned directly.
*/
func (js *Store) Submit(graph string, q *gripql.Query) (*Status, error) {
	gs, err := js.graphs.Graph(graph)
	if err != nil {
		return nil, err
	}

	p, err := engine.Compile(q, gs)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	j := &job{
		status: Status{
			ID:        uuid.New().String(),
			Graph:     graph,
			State:     StateQueued,
			Query:     q.Steps,
			Timestamp: timeutil.MakeTimestamp(),
		},
		cancel: cancel,
	}
	j.cond = sync.NewCond(&j.lock)

	if js.dir != "" {
		if j.spool, err = newSpoolWriter(js.dir, &j.status); err != nil {
			cancel()
			return nil, util.NewInternalError(err)
		}
	}

	js.lock.Lock()
	js.jobs[j.status.ID] = j
	js.lock.Unlock()

	status := j.status
	js.pump.PostEvent(EventJobState, &status)

	js.pool.AddTask(&jobTask{js, j, ctx, gs, p})

	return &status, nil
}

/*
Status returns the status of a job.
*/
func (js *Store) Status(id string) (*Status, error) {
	j, err := js.job(id)
	if err != nil {
		return nil, err
	}

	j.lock.Lock()
	defer j.lock.Unlock()

	status := j.status

	return &status, nil
}

/*
List returns the status of all jobs of a graph ordered by submission time.
*/
func (js *Store) List(graph string) []*Status {
	var ret []*Status

	js.lock.RLock()
	defer js.lock.RUnlock()

	for _, j := range js.jobs {
		j.lock.Lock()
		if j.status.Graph == graph {
			status := j.status
			ret = append(ret, &status)
		}
		j.lock.Unlock()
	}

	sort.Slice(ret, func(i, k int) bool {
		if ret[i].Timestamp != ret[k].Timestamp {
			return ret[i].Timestamp < ret[k].Timestamp
		}
		return ret[i].ID < ret[k].ID
	})

	return ret
}

/*
Search returns the ids of all jobs of a graph whose query is structurally
equal to a given query.
*/
func (js *Store) Search(graph string, q *gripql.Query) []string {
	var ret []string

	for _, status := range js.List(graph) {
		if q.Equal(&gripql.Query{Steps: status.Query}) {
			ret = append(ret, status.ID)
		}
	}

	return ret
}

/*
Delete cancels a job if it is still running and removes it.
*/
func (js *Store) Delete(id string) error {
	js.lock.Lock()
	j, ok := js.jobs[id]
	delete(js.jobs, id)
	js.lock.Unlock()

	if !ok {
		return jobNotFound(id)
	}

	j.cancel()

	j.lock.Lock()

	j.deleted = true
	j.cond.Broadcast()

	for j.status.State == StateRunning {
		j.cond.Wait()
	}

	queued := j.status.State == StateQueued

	j.lock.Unlock()

	if queued {
		status := j.status
		status.State = StateError
		js.pump.PostEvent(EventJobState, &status)
	}

	if j.spool != nil {
		return j.spool.remove()
	}

	return nil
}

/*
Read returns a reader over the result log of a job starting at a given
offset. The reader follows the job until it is finished.
*/
func (js *Store) Read(ctx context.Context, id string, offset int) (*Reader, error) {
	j, err := js.job(id)
	if err != nil {
		return nil, err
	}

	if offset < 0 {
		return nil, util.NewGraphError(util.ErrInvalidArgument,
			fmt.Sprintf("Invalid offset %v", offset))
	}

	return newReader(ctx, j, offset), nil
}

func (js *Store) job(id string) (*job, error) {
	js.lock.RLock()
	defer js.lock.RUnlock()

	j, ok := js.jobs[id]
	if !ok {
		return nil, jobNotFound(id)
	}

	return j, nil
}

func jobNotFound(id string) error {
	return util.NewGraphError(util.ErrNotFound, fmt.Sprintf("Job %v not found", id))
}

// Job execution
// =============

/*
jobTask runs a job on the worker pool.
*/
type jobTask struct {
	js       *Store
	j        *job
	ctx      context.Context
	gs       graphstorage.Storage
	pipeline *engine.Pipeline
}

/*
Run runs the job.
*/
func (t *jobTask) Run() error {
	j := t.j

	if !t.setState(StateRunning, "") {
		return nil
	}

	errMsg := ""

	for r := range t.js.engine.Run(t.ctx, t.gs, t.pipeline) {
		if r.Kind == engine.ResultError {
			errMsg = r.Error.Message
		}

		j.lock.Lock()
		j.results = append(j.results, r)
		j.status.Count = int64(len(j.results))
		j.cond.Broadcast()
		j.lock.Unlock()

		if j.spool != nil {
			if err := j.spool.write(r); err != nil {
				t.HandleError(err)
			}
		}
	}

	if errMsg != "" {
		t.setState(StateError, errMsg)
	} else {
		t.setState(StateDone, "")
	}

	return nil
}

/*
HandleError logs errors of a job.
*/
func (t *jobTask) HandleError(e error) {
	logrus.WithFields(logrus.Fields{
		"job":   t.j.status.ID,
		"error": e,
	}).Error("Job error")
}

/*
setState changes the state of the job. Returns false if the job was deleted.
*/
func (t *jobTask) setState(state State, errMsg string) bool {
	j := t.j

	j.lock.Lock()

	if j.deleted && state == StateRunning {
		j.lock.Unlock()
		return false
	}

	j.status.State = state
	j.status.Error = errMsg
	status := j.status
	deleted := j.deleted

	j.cond.Broadcast()
	j.lock.Unlock()

	if j.spool != nil && !deleted {
		if err := j.spool.writeStatus(&status); err != nil {
			t.HandleError(err)
		}
	}

	t.js.pump.PostEvent(EventJobState, &status)

	return true
}
