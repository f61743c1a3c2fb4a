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
Package engine contains the query engine of GripDB.

A query is compiled into a pipeline (Compile). The compiler validates the
step list and rewrites it into an execution plan. The executor (Engine) runs
every plan node as its own goroutine; nodes are connected by bounded
channels so a slow consumer slows down all producers. The sink converts the
travelers which leave the last node into result records.
*/
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"devt.de/krotik/gripdb/engine/traveler"
	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/graph/graphstorage"
	"devt.de/krotik/gripdb/graph/util"
	"devt.de/krotik/gripdb/gripql"
	"devt.de/krotik/gripdb/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

/*
DefaultBufferSize is the default capacity of the channels between operators.
*/
const DefaultBufferSize = 100

/*
DefaultRetries is the default number of retries after transient storage
errors.
*/
const DefaultRetries = 3

/*
RetryInterval is the initial wait time before a storage operation is retried.
*/
var RetryInterval = 10 * time.Millisecond

/*
Engine runs compiled pipelines.
*/
type Engine struct {
	BufferSize int           // Capacity of the channels between operators
	Retries    uint64        // Retries after transient storage errors
	Timeout    time.Duration // Maximum run time of a query (0 for none)
}

/*
NewEngine creates a new engine with default settings.
*/
func NewEngine() *Engine {
	return &Engine{BufferSize: DefaultBufferSize, Retries: DefaultRetries}
}

/*
Query compiles a query and runs it against a graph storage. Validation
errors are returned directly, all errors which happen while the query runs
are sent as the last record of the result channel.
*/
func (e *Engine) Query(ctx context.Context, gs graphstorage.Storage,
	q *gripql.Query) (<-chan *Result, error) {

	p, err := Compile(q, gs)
	if err != nil {
		return nil, err
	}

	return e.Run(ctx, gs, p), nil
}

/*
Run runs a compiled pipeline against a graph storage. The returned channel
is closed once the pipeline has finished. A cancelled context stops the
pipeline at the next operator boundary.
*/
func (e *Engine) Run(ctx context.Context, gs graphstorage.Storage, p *Pipeline) <-chan *Result {
	results := make(chan *Result, e.bufferSize())

	go func() {
		defer close(results)

		start := time.Now()
		runCtx := ctx

		if e.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
			defer cancel()
		}

		env := &runEnv{engine: e, gs: gs, trackPath: p.trackPath}

		none := make(chan *traveler.Traveler)
		close(none)

		out, wait := env.runPlan(runCtx, p.plan, none)

		var count int64

		for t := range out {
			select {
			case results <- newResult(p.Output, t):
				count++
			case <-ctx.Done():
			}
		}

		err := wait()
		if err == nil {
			err = runCtx.Err()
		}

		outcome := "ok"

		if err != nil {
			outcome = "error"

			logrus.WithFields(logrus.Fields{
				"graph": gs.Name(),
				"query": p.Query.String(),
				"error": err,
			}).Warn("Query failed")

			select {
			case results <- NewErrorResult(err):
			case <-ctx.Done():
			}
		}

		metrics.Queries.WithLabelValues(gs.Name(), outcome).Inc()
		metrics.QueryDuration.WithLabelValues(gs.Name()).Observe(time.Since(start).Seconds())

		logrus.WithFields(logrus.Fields{
			"graph":    gs.Name(),
			"plan":     p.Plan(),
			"results":  count,
			"duration": time.Since(start),
		}).Debug("Query finished")
	}()

	return results
}

/*
CollectResults reads all records of a result channel.
*/
func CollectResults(results <-chan *Result) []*Result {
	var ret []*Result

	for r := range results {
		ret = append(ret, r)
	}

	return ret
}

func (e *Engine) bufferSize() int {
	if e.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return e.BufferSize
}

/*
newResult converts a traveler which reached the sink into a result record.
*/
func newResult(kind OutputKind, t *traveler.Traveler) *Result {
	switch kind {
	case OutputEdge:
		return &Result{Kind: ResultEdge, Edge: t.Current().Edge()}
	case OutputSelections:
		return &Result{Kind: ResultSelections, Selections: t.Value().(map[string]*Selection)}
	case OutputRender:
		return &Result{Kind: ResultRender, Render: t.Value()}
	case OutputCount:
		return &Result{Kind: ResultCount, Count: t.Value().(int64)}
	case OutputAggregations:
		return &Result{Kind: ResultAggregations, Aggregation: t.Value().(*AggregationRecord)}
	case OutputPath:
		return &Result{Kind: ResultPath, Path: t.Value().([]string)}
	}

	return &Result{Kind: ResultVertex, Vertex: t.Current().Vertex()}
}

// Pipeline stages
// ===============

/*
operator is a single stage of a running pipeline. An operator reads
travelers from its input and writes travelers to its output. It must not
close its output.
*/
type operator func(ctx context.Context, in <-chan *traveler.Traveler, out chan<- *traveler.Traveler) error

/*
runEnv is the environment of a running pipeline.
*/
type runEnv struct {
	engine    *Engine
	gs        graphstorage.Storage
	trackPath bool
}

/*
runPlan starts one goroutine per plan node. Returns the output channel of
the last node and a function which waits for all nodes and returns the
first error.

Every node has its own context which is derived from the context of the
following node. A node which stops cancels all nodes in front of it.
*/
func (env *runEnv) runPlan(ctx context.Context, plan []*planNode,
	in <-chan *traveler.Traveler) (<-chan *traveler.Traveler, func() error) {

	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	pctx, pcancel := context.WithCancel(ctx)

	ctxs := make([]context.Context, len(plan))
	cancels := make([]context.CancelFunc, len(plan))

	parent := pctx
	for i := len(plan) - 1; i >= 0; i-- {
		ctxs[i], cancels[i] = context.WithCancel(parent)
		parent = ctxs[i]
	}

	for i, n := range plan {
		op := env.operator(n)
		out := make(chan *traveler.Traveler, env.engine.bufferSize())

		wg.Add(1)

		go func(i int, op operator, in <-chan *traveler.Traveler, out chan<- *traveler.Traveler) {
			defer wg.Done()
			defer close(out)
			defer cancels[i]()

			if err := op(ctxs[i], in, out); err != nil && ctxs[i].Err() == nil {
				once.Do(func() {
					firstErr = err
					pcancel()
				})
			}
		}(i, op, in, out)

		in = out
	}

	return in, func() error {
		wg.Wait()
		pcancel()
		return firstErr
	}
}

/*
emit sends a traveler to the next stage.
*/
func emit(ctx context.Context, out chan<- *traveler.Traveler, t *traveler.Traveler) error {
	select {
	case out <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

/*
eachTraveler calls a function for every incoming traveler until the input is
exhausted, the function fails or the context is done.
*/
func eachTraveler(ctx context.Context, in <-chan *traveler.Traveler,
	f func(t *traveler.Traveler) error) error {

	for {
		select {
		case t, ok := <-in:
			if !ok {
				return nil
			}
			if err := f(t); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Storage access
// ==============

/*
retry runs a storage operation and retries it with exponential backoff if
it fails with a transient error.
*/
func (env *runEnv) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInterval

	bo := backoff.WithContext(backoff.WithMaxRetries(b, env.engine.Retries), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !util.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo, func(err error, wait time.Duration) {
		metrics.StorageRetries.WithLabelValues(env.gs.Name()).Inc()

		logrus.WithFields(logrus.Fields{
			"graph": env.gs.Name(),
			"error": err,
			"wait":  wait,
		}).Warn("Retrying storage operation")
	})
}

/*
errEmit wraps errors of the emit function of a scan so they are never
retried.
*/
type errEmit struct {
	err error
}

func (e *errEmit) Error() string {
	return e.err.Error()
}

/*
scan runs a storage scan and calls a function for every element. A scan
which fails with a transient error is restarted. Elements which were
already passed on are skipped after a restart.
*/
func (env *runEnv) scan(ctx context.Context, open func(ctx context.Context) graphstorage.Iterator,
	f func(el *data.Element) error) error {

	done := 0

	err := env.retry(ctx, func() error {
		it := open(ctx)
		defer it.Close()

		for i := 0; it.Next(); i++ {
			if i < done {
				continue
			}
			if err := f(it.Element()); err != nil {
				return &errEmit{err}
			}
			done++
		}

		return it.Err()
	})

	var ee *errEmit
	if errors.As(err, &ee) {
		err = ee.err
	}

	return err
}

/*
getVertex looks up a vertex. Returns nil if the vertex does not exist.
*/
func (env *runEnv) getVertex(ctx context.Context, gid string) (*data.Element, error) {
	return env.get(ctx, env.gs.GetVertex, gid)
}

/*
getEdge looks up an edge. Returns nil if the edge does not exist.
*/
func (env *runEnv) getEdge(ctx context.Context, gid string) (*data.Element, error) {
	return env.get(ctx, env.gs.GetEdge, gid)
}

func (env *runEnv) get(ctx context.Context,
	lookup func(context.Context, string) (*data.Element, error), gid string) (*data.Element, error) {

	var el *data.Element

	err := env.retry(ctx, func() error {
		var err error
		el, err = lookup(ctx, gid)
		return err
	})

	if errors.Is(err, util.ErrNotFound) {
		return nil, nil
	}

	return el, err
}
