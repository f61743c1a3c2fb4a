/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"devt.de/krotik/gripdb/engine"
	"devt.de/krotik/gripdb/graph"
	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/graph/graphstorage"
	"devt.de/krotik/gripdb/graph/util"
	"devt.de/krotik/gripdb/gripql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
chanStorage is a storage whose vertex scans read from a channel.
*/
type chanStorage struct {
	*graphstorage.MemoryGraphStorage
	ch chan *data.Element
}

func (cs *chanStorage) Vertices(ctx context.Context) graphstorage.Iterator {
	return &chanIterator{ctx: ctx, ch: cs.ch}
}

type chanIterator struct {
	ctx context.Context
	ch  <-chan *data.Element
	cur *data.Element
	err error
}

func (it *chanIterator) Next() bool {
	select {
	case el, ok := <-it.ch:
		it.cur = el
		return ok
	case <-it.ctx.Done():
		it.err = it.ctx.Err()
		return false
	}
}

func (it *chanIterator) Element() *data.Element { return it.cur }
func (it *chanIterator) Err() error             { return it.err }
func (it *chanIterator) Close()                 {}

func testManager(t *testing.T) *graph.Manager {
	gm := graph.NewGraphManager()

	require.NoError(t, gm.CreateGraph("g"))

	for _, gid := range []string{"1", "2", "3"} {
		require.NoError(t, gm.StoreVertex("g", &data.Vertex{Gid: gid, Label: "Person"}))
	}

	return gm
}

func readAll(t *testing.T, js *Store, id string) []string {
	t.Helper()

	r, err := js.Read(context.Background(), id, 0)
	require.NoError(t, err)
	defer r.Close()

	var ret []string
	for r.Next() {
		ret = append(ret, r.Result().String())
	}
	require.NoError(t, r.Err())

	return ret
}

func TestSubmitAndRead(t *testing.T) {
	gm := testManager(t)

	js, err := NewStore(gm, engine.NewEngine(), 2, "")
	require.NoError(t, err)
	defer js.Close()

	var states []State
	var lock sync.Mutex

	js.Events().AddObserver(EventJobState, nil, func(event string, source interface{}) {
		lock.Lock()
		states = append(states, source.(*Status).State)
		lock.Unlock()
	})

	status, err := js.Submit("g", gripql.V().Count())
	require.NoError(t, err)
	assert.Equal(t, StateQueued, status.State)
	assert.Equal(t, "g", status.Graph)

	assert.Equal(t, []string{`{"count":3}`}, readAll(t, js, status.ID))

	status, err = js.Status(status.ID)
	require.NoError(t, err)
	assert.Equal(t, StateDone, status.State)
	assert.Equal(t, int64(1), status.Count)

	require.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return len(states) == 3
	}, time.Second, time.Millisecond)

	assert.Equal(t, []State{StateQueued, StateRunning, StateDone}, states)

	// Reading from an offset

	r, err := js.Read(context.Background(), status.ID, 1)
	require.NoError(t, err)
	assert.False(t, r.Next())
	r.Close()

	_, err = js.Read(context.Background(), status.ID, -1)
	assert.True(t, errors.Is(err, util.ErrInvalidArgument))

	// Validation errors are returned directly

	_, err = js.Submit("g", gripql.V().InV())
	assert.True(t, errors.Is(err, util.ErrInvalidQuery))

	_, err = js.Submit("nope", gripql.V())
	assert.True(t, errors.Is(err, util.ErrNotFound))

	_, err = js.Status("nope")
	assert.True(t, errors.Is(err, util.ErrNotFound))

	assert.True(t, errors.Is(js.Delete("nope"), util.ErrNotFound))
}

func TestSearchAndList(t *testing.T) {
	gm := testManager(t)

	js, err := NewStore(gm, engine.NewEngine(), 1, "")
	require.NoError(t, err)
	defer js.Close()

	s1, err := js.Submit("g", gripql.V().HasLabel("Person"))
	require.NoError(t, err)
	s2, err := js.Submit("g", gripql.V().Count())
	require.NoError(t, err)
	s3, err := js.Submit("g", gripql.V().HasLabel("Person"))
	require.NoError(t, err)

	// Equality is structural on the query as it was submitted

	q, err := gripql.ParseQuery([]byte(`{"query":[{"v":[]},{"hasLabel":"Person"}]}`))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{s1.ID, s3.ID}, js.Search("g", q))
	assert.Equal(t, []string{s2.ID}, js.Search("g", gripql.V().Count()))
	assert.Empty(t, js.Search("g", gripql.V()))
	assert.Empty(t, js.Search("other", gripql.V().Count()))

	var ids []string
	for _, s := range js.List("g") {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{s1.ID, s2.ID, s3.ID}, ids)

	require.NoError(t, js.Delete(s1.ID))
	assert.Equal(t, []string{s3.ID}, js.Search("g", q))
}

func TestFailingJob(t *testing.T) {
	engine.RetryInterval = time.Millisecond

	gm := testManager(t)

	mgs := graphstorage.NewMemoryGraphStorage("bad")
	mgs.AddVertices([]*data.Element{data.NewVertexElement("1", "x", nil)})
	mgs.InjectTransientErrors(100)
	require.NoError(t, gm.AddGraph("bad", mgs))

	js, err := NewStore(gm, engine.NewEngine(), 1, "")
	require.NoError(t, err)
	defer js.Close()

	status, err := js.Submit("bad", gripql.V())
	require.NoError(t, err)

	res := readAll(t, js, status.ID)
	require.Len(t, res, 1)
	assert.Contains(t, res[0], `"kind":"UNAVAILABLE"`)

	status, err = js.Status(status.ID)
	require.NoError(t, err)
	assert.Equal(t, StateError, status.State)
	assert.Equal(t, "Storage bad is temporarily unavailable", status.Error)
}

func TestTailAndDelete(t *testing.T) {
	gm := testManager(t)

	cs := &chanStorage{graphstorage.NewMemoryGraphStorage("tail"), make(chan *data.Element)}
	require.NoError(t, gm.AddGraph("tail", cs))

	js, err := NewStore(gm, engine.NewEngine(), 2, "")
	require.NoError(t, err)
	defer js.Close()

	// A reader follows a running job

	status, err := js.Submit("tail", gripql.V())
	require.NoError(t, err)

	r, err := js.Read(context.Background(), status.ID, 0)
	require.NoError(t, err)

	cs.ch <- data.NewVertexElement("a", "x", nil)

	require.True(t, r.Next())
	assert.Equal(t, `{"vertex":{"gid":"a","label":"x","data":{}}}`, r.Result().String())

	s, _ := js.Status(status.ID)
	assert.Equal(t, StateRunning, s.State)

	cs.ch <- data.NewVertexElement("b", "x", nil)
	close(cs.ch)

	require.True(t, r.Next())
	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
	r.Close()

	s, _ = js.Status(status.ID)
	assert.Equal(t, StateDone, s.State)
	assert.Equal(t, int64(2), s.Count)

	// Deleting a running job cancels it

	cs.ch = make(chan *data.Element)

	status, err = js.Submit("tail", gripql.V())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, _ := js.Status(status.ID)
		return s.State == StateRunning
	}, time.Second, time.Millisecond)

	r, err = js.Read(context.Background(), status.ID, 0)
	require.NoError(t, err)

	done := make(chan bool)
	go func() {
		done <- r.Next()
	}()

	require.NoError(t, js.Delete(status.ID))

	assert.False(t, <-done)
	assert.True(t, errors.Is(r.Err(), util.ErrNotFound))

	_, err = js.Status(status.ID)
	assert.True(t, errors.Is(err, util.ErrNotFound))

	// A cancelled reader stops waiting

	status, err = js.Submit("tail", gripql.V())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	r, err = js.Read(ctx, status.ID, 0)
	require.NoError(t, err)

	go cancel()

	assert.False(t, r.Next())
	assert.Equal(t, context.Canceled, r.Err())
	r.Close()

	require.NoError(t, js.Delete(status.ID))
}

func TestSpool(t *testing.T) {
	dir := t.TempDir()
	gm := testManager(t)

	require.NoError(t, gm.CreateGraph("my graph"))
	require.NoError(t, gm.StoreVertex("my graph", &data.Vertex{Gid: "1", Label: "x"}))

	js, err := NewStore(gm, engine.NewEngine(), 1, dir)
	require.NoError(t, err)

	status, err := js.Submit("my graph", gripql.V())
	require.NoError(t, err)

	res := readAll(t, js, status.ID)
	js.Close()

	jobDir := filepath.Join(dir, "my-graph", status.ID)
	assert.FileExists(t, filepath.Join(jobDir, "results"))
	assert.FileExists(t, filepath.Join(jobDir, "status"))

	// An interrupted job

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "g", "abc"), 0770))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "g", "abc", "status"),
		[]byte(`{"id":"abc","graph":"g","state":"RUNNING","query":[{"v":[]}],"timestamp":"1"}`), 0660))

	js, err = NewStore(gm, engine.NewEngine(), 1, dir)
	require.NoError(t, err)
	defer js.Close()

	s, err := js.Status(status.ID)
	require.NoError(t, err)
	assert.Equal(t, StateDone, s.State)
	assert.Equal(t, int64(1), s.Count)
	assert.Equal(t, res, readAll(t, js, status.ID))
	assert.Equal(t, []string{status.ID}, js.Search("my graph", gripql.V()))

	s, err = js.Status("abc")
	require.NoError(t, err)
	assert.Equal(t, StateError, s.State)
	assert.Equal(t, "Job was interrupted", s.Error)
	assert.Equal(t, []string{"abc"}, js.Search("g", gripql.V()))

	require.NoError(t, js.Delete(status.ID))
	assert.NoDirExists(t, jobDir)
}
