/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package gripper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"devt.de/krotik/gripdb/engine"
	"devt.de/krotik/gripdb/graph/data"
	"devt.de/krotik/gripdb/graph/graphstorage"
	"devt.de/krotik/gripdb/graph/util"
	"devt.de/krotik/gripdb/gripql"
	"devt.de/krotik/gripdb/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

const starwarsMapping = `
sources:
  tableserver: {host: "passthrough:///bufnet"}
vertices:
  "Character:":
    source: tableserver
    collection: characters
    label: Character
  "Starship:":
    source: tableserver
    collection: starships
    label: Starship
  "Film:":
    source: tableserver
    collection: films
    label: Film
edges:
  "starships:":
    fromVertex: "Character:"
    toVertex: "Starship:"
    label: starships
    fieldToField: {fromField: $.starship_id, toField: $.id}
  "appearsIn:":
    fromVertex: "Character:"
    toVertex: "Film:"
    label: appearsIn
    edgeTable:
      source: tableserver
      collection: appearances
      fromField: $.character
      toField: $.film
`

/*
starwarsTables returns 18 characters of which 8 have a starship, two
starships, two films and a table of film appearances.
*/
func starwarsTables() map[string]Driver {
	characters := NewMemoryDriver()
	for i := 1; i <= 18; i++ {
		row := map[string]interface{}{"id": fmt.Sprintf("%02d", i), "name": fmt.Sprintf("Character %v", i)}
		if i <= 8 {
			row["starship_id"] = fmt.Sprint(i%2 + 1)
		}
		characters.Add(fmt.Sprintf("%02d", i), row)
	}

	starships := NewMemoryDriver()
	starships.Add("1", map[string]interface{}{"id": "1", "name": "X-wing"})
	starships.Add("2", map[string]interface{}{"id": "2", "name": "Millennium Falcon"})

	films, _ := LoadJSONLines(strings.NewReader(
		`{"id": 1, "title": "A New Hope"}
		{"id": 2, "title": "The Empire Strikes Back"}`), "id")

	appearances := NewMemoryDriver()
	appearances.Add("a1", map[string]interface{}{"character": "01", "film": "1"})
	appearances.Add("a2", map[string]interface{}{"character": "01", "film": "2"})
	appearances.Add("a3", map[string]interface{}{"character": "02", "film": "1"})

	return map[string]Driver{
		"characters":  characters,
		"starships":   starships,
		"films":       films,
		"appearances": appearances,
	}
}

/*
startTableServer runs a table server on an in-memory listener and returns
a connected client.
*/
func startTableServer(t *testing.T, drivers map[string]Driver) (*TableServer, *Client) {
	lis := bufconn.Listen(1024 * 1024)
	ts := NewTableServer(drivers)

	go ts.Serve(lis)
	t.Cleanup(ts.Stop)

	c, err := Dial("tableserver", "passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)

	return ts, c
}

func starwarsGraph(t *testing.T) (*TableServer, *Graph) {
	ts, c := startTableServer(t, starwarsTables())

	conf, err := ParseConfig([]byte(starwarsMapping))
	require.NoError(t, err)

	gr, err := NewGraph(context.Background(), "starwars", conf,
		map[string]*Client{"tableserver": c}, 0)
	require.NoError(t, err)
	t.Cleanup(func() { gr.Close() })

	return ts, gr
}

func elementGids(t *testing.T, it graphstorage.Iterator) []string {
	t.Helper()

	res, err := graphstorage.Collect(it)
	require.NoError(t, err)

	ret := []string{}
	for _, el := range res {
		ret = append(ret, el.Gid)
	}
	return ret
}

func TestConfig(t *testing.T) {
	conf, err := ParseConfig([]byte(starwarsMapping))
	require.NoError(t, err)

	assert.Equal(t, "passthrough:///bufnet", conf.Sources["tableserver"].Host)
	assert.Equal(t, "Character", conf.Vertices["Character:"].Label)
	assert.Equal(t, "$.starship_id", conf.Edges["starships:"].FieldToField.FromField)
	assert.Equal(t, "appearances", conf.Edges["appearsIn:"].EdgeTable.Collection)

	tests := []struct {
		mapping string
		err     string
	}{
		{`
vertices:
  "A:": {source: nope, collection: a, label: A}
`, "Vertex A: refers to unknown source: nope"},
		{`
sources: {s: {host: x}}
vertices:
  "A:": {source: s, collection: a, label: A}
edges:
  "e:": {fromVertex: "A:", toVertex: "B:", label: e, fieldToField: {fromField: $.x, toField: $.y}}
`, "Edge e:: toVertex not found: B:"},
		{`
sources: {s: {host: x}}
vertices:
  "A:": {source: s, collection: a, label: A}
edges:
  "e:": {fromVertex: "A:", toVertex: "A:", label: e, fieldToField: {fromField: x, toField: $.y}}
`, "Edge e:: 'from' field does not start with $.: x"},
		{`
sources: {s: {host: x}}
vertices:
  "A:": {source: s, collection: a, label: A}
edges:
  "e:": {fromVertex: "A:", toVertex: "A:", label: e}
`, "Edge e: does not declare a lookup method"},
		{`
sources: {s: {host: x}}
vertices:
  "A:": {source: s, collection: a}
`, "Vertex A: needs a collection and a label"},
		{`vertices: [1, 2]`, "cannot unmarshal"},
	}

	for _, test := range tests {
		_, err := ParseConfig([]byte(test.mapping))
		if assert.Error(t, err, test.mapping) {
			assert.Contains(t, err.Error(), test.err)
		}
	}

	_, err = LoadConfig("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestTableServer(t *testing.T) {
	ctx := context.Background()
	_, c := startTableServer(t, starwarsTables())
	defer c.Close()

	names, err := c.GetCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"appearances", "characters", "films", "starships"}, names)

	info, err := c.GetCollectionInfo(ctx, "starships")
	require.NoError(t, err)
	assert.Equal(t, []string{"$.id", "$.name"}, info.SearchFields)

	_, err = c.GetCollectionInfo(ctx, "planets")
	assert.True(t, errors.Is(err, util.ErrNotFound), err)

	var ids []string
	require.NoError(t, c.GetIDs(ctx, "films", func(id string) error {
		ids = append(ids, id)
		return nil
	}))
	assert.Equal(t, []string{"1", "2"}, ids)

	var rows []string
	require.NoError(t, c.GetRowsByField(ctx, "characters", "$.starship_id", "1", func(r *Row) error {
		rows = append(rows, r.ID)
		return nil
	}))
	assert.Equal(t, []string{"02", "04", "06", "08"}, rows)

	// Numbers are matched by their string form

	rows = nil
	require.NoError(t, c.GetRowsByField(ctx, "films", "$.id", "2", func(r *Row) error {
		rows = append(rows, r.Data["title"].(string))
		return nil
	}))
	assert.Equal(t, []string{"The Empire Strikes Back"}, rows)

	res, err := c.GetRowsByID(ctx, "starships", []string{"2", "x", "1"})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "Millennium Falcon", res[0].Data["name"])
	assert.Nil(t, res[1])
	assert.Equal(t, "X-wing", res[2].Data["name"])

	_, err = c.GetRowsByID(ctx, "planets", []string{"1"})
	assert.True(t, errors.Is(err, util.ErrNotFound), err)

	// Stopping the stream early

	count := 0
	stop := errors.New("stop")
	err = c.GetRows(ctx, "characters", func(r *Row) error {
		if count++; count == 3 {
			return stop
		}
		return nil
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 3, count)
}

func TestGraphStorage(t *testing.T) {
	ctx := context.Background()
	ts, gr := starwarsGraph(t)

	assert.True(t, gr.ReadOnly())
	assert.Equal(t, "starwars", gr.Name())
	assert.Equal(t, []string{"Character", "Film", "Starship"}, gr.VertexLabels())
	assert.Equal(t, []string{"appearsIn", "starships"}, gr.EdgeLabels())

	v, err := gr.GetVertex(ctx, "Starship:1")
	require.NoError(t, err)
	assert.Equal(t, "Starship", v.Label)
	assert.Equal(t, "X-wing", v.Data["name"])

	_, err = gr.GetVertex(ctx, "Starship:9")
	assert.True(t, errors.Is(err, util.ErrNotFound))

	_, err = gr.GetVertex(ctx, "Planet:1")
	assert.True(t, errors.Is(err, util.ErrNotFound))

	assert.Equal(t, []string{
		"(Character:01)--appearsIn->(Film:1)",
		"(Character:01)--appearsIn->(Film:2)",
		"(Character:01)--starships->(Starship:2)",
	}, elementGids(t, gr.OutEdges(ctx, "Character:01", nil)))

	assert.Equal(t, []string{"(Character:01)--starships->(Starship:2)"},
		elementGids(t, gr.OutEdges(ctx, "Character:01", []string{"starships"})))

	assert.Equal(t, []string{}, elementGids(t, gr.OutEdges(ctx, "Character:12", []string{"starships"})))

	assert.Equal(t, []string{
		"(Character:01)--starships->(Starship:2)",
		"(Character:03)--starships->(Starship:2)",
		"(Character:05)--starships->(Starship:2)",
		"(Character:07)--starships->(Starship:2)",
	}, elementGids(t, gr.InEdges(ctx, "Starship:2", nil)))

	assert.Equal(t, []string{
		"(Character:01)--appearsIn->(Film:1)",
		"(Character:02)--appearsIn->(Film:1)",
	}, elementGids(t, gr.InEdges(ctx, "Film:1", nil)))

	e, err := gr.GetEdge(ctx, "(Character:02)--starships->(Starship:1)")
	require.NoError(t, err)
	assert.Equal(t, "Character:02", e.From)
	assert.Equal(t, "Starship:1", e.To)
	assert.Equal(t, "starships", e.Label)

	e, err = gr.GetEdge(ctx, "(Character:01)--appearsIn->(Film:2)")
	require.NoError(t, err)
	assert.Equal(t, "2", e.Data["film"])

	_, err = gr.GetEdge(ctx, "(Character:02)--starships->(Starship:2)")
	assert.True(t, errors.Is(err, util.ErrNotFound))

	_, err = gr.GetEdge(ctx, "e1")
	assert.True(t, errors.Is(err, util.ErrNotFound))

	assert.Len(t, elementGids(t, gr.Vertices(ctx)), 22)
	assert.Len(t, elementGids(t, gr.Edges(ctx)), 11)

	stats := gr.Stats()
	assert.True(t, stats.VerticesScanned >= 22)
	assert.True(t, stats.EdgesScanned >= 11)

	// Writes are rejected

	assert.True(t, errors.Is(gr.AddVertices([]*data.Element{data.NewVertexElement("x", "x", nil)}), util.ErrReadOnly))
	assert.True(t, errors.Is(gr.AddEdges(nil), util.ErrReadOnly))
	assert.True(t, errors.Is(gr.DeleteVertex("Starship:1"), util.ErrReadOnly))
	assert.True(t, errors.Is(gr.DeleteEdge("x"), util.ErrReadOnly))
	assert.True(t, errors.Is(gr.AddIndex("Starship", "name"), util.ErrReadOnly))
	assert.True(t, errors.Is(gr.DeleteIndex("Starship", "name"), util.ErrReadOnly))
	assert.False(t, gr.HasIndex("Starship", "name"))
	assert.Empty(t, gr.Indices())

	_, err = graphstorage.Collect(gr.IndexLookup(ctx, "Starship", "name", "X-wing"))
	assert.True(t, errors.Is(err, util.ErrNotFound))

	// Collection information is cached

	hits := testutil.ToFloat64(metrics.CollectionInfoCacheHits)

	info, err := gr.collectionInfo(ctx, gr.clients["tableserver"], "characters")
	require.NoError(t, err)
	assert.Contains(t, info.SearchFields, "$.starship_id")
	assert.Equal(t, hits+1, testutil.ToFloat64(metrics.CollectionInfoCacheHits))

	// A stopped source is unavailable

	ts.Stop()

	_, err = gr.GetVertex(ctx, "Starship:1")
	assert.True(t, errors.Is(err, util.ErrUnavailable), err)
	assert.True(t, util.IsTransient(err))
}

func TestGraphValidation(t *testing.T) {
	_, c := startTableServer(t, starwarsTables())
	defer c.Close()

	clients := map[string]*Client{"tableserver": c}

	conf, err := ParseConfig([]byte(strings.Replace(starwarsMapping, "toField: $.id", "toField: $.model", 1)))
	require.NoError(t, err)

	_, err = NewGraph(context.Background(), "starwars", conf, clients, 0)
	assert.EqualError(t, err, "Edge starships:: Field $.model of collection tableserver:starships cannot be searched")

	conf, err = ParseConfig([]byte(strings.Replace(starwarsMapping, "collection: films", "collection: planets", 1)))
	require.NoError(t, err)

	_, err = NewGraph(context.Background(), "starwars", conf, clients, 0)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "Unable to get collection information tableserver:planets")
	}

	conf, _ = ParseConfig([]byte(starwarsMapping))

	_, err = NewGraph(context.Background(), "starwars", conf, map[string]*Client{}, 0)
	assert.EqualError(t, err, "No connection to source: tableserver")
}

func TestEdgeGid(t *testing.T) {
	gid := EdgeGid("Character:01", "starships", "Starship:2")
	assert.Equal(t, "(Character:01)--starships->(Starship:2)", gid)

	from, label, to, ok := ParseEdgeGid(gid)
	assert.True(t, ok)
	assert.Equal(t, []string{"Character:01", "starships", "Starship:2"}, []string{from, label, to})

	_, _, _, ok = ParseEdgeGid("Character:01->Starship:2")
	assert.False(t, ok)
}

func TestQueryOverRowSources(t *testing.T) {
	_, gr := starwarsGraph(t)

	run := func(q *gripql.Query) []*engine.Result {
		results, err := engine.NewEngine().Query(context.Background(), gr, q)
		require.NoError(t, err)

		res := engine.CollectResults(results)
		for _, r := range res {
			require.NotEqual(t, engine.ResultError, r.Kind, r.String())
		}
		return res
	}

	res := run(gripql.V().HasLabel("Character").As("a").
		OutNull("starships").As("b").
		Render(map[string]interface{}{"a": "$a._gid", "b": "$b._gid"}))

	require.Len(t, res, 18)

	nulls, ships := 0, 0
	for _, r := range res {
		row := r.Render.(map[string]interface{})
		if row["b"] == nil {
			nulls++
		} else {
			assert.Contains(t, []interface{}{"Starship:1", "Starship:2"}, row["b"])
			ships++
		}
	}

	assert.Equal(t, 10, nulls)
	assert.Equal(t, 8, ships)

	res = run(gripql.V("Starship:1").In("starships").Render("$._data.name"))

	var names []interface{}
	for _, r := range res {
		names = append(names, r.Render)
	}
	assert.Equal(t, []interface{}{"Character 2", "Character 4", "Character 6", "Character 8"}, names)

	res = run(gripql.V("Character:01").Out("appearsIn").Count())
	require.Len(t, res, 1)
	assert.Equal(t, int64(2), res[0].Count)

	// Edge scans join the collections

	res = run(gripql.E().HasLabel("appearsIn").Count())
	assert.Equal(t, int64(3), res[0].Count)
}
