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
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

const bulkTestData = `
{"graph":"g","vertex":{"gid":"v1","label":"Person","data":{"name":"marko","age":29,"langs":["java","go"]}}}
{"graph":"g","vertex":{"gid":"v2","label":"Person","data":{"name":"vadas","nested":{"a":{"b":1}}}}}
{"graph":"g","edge":{"gid":"e1","label":"knows","from":"v1","to":"v2","data":{"weight":0.5}}}
{"graph":"g","edge":{"gid":"e2","label":"knows","from":"v1","to":"v9"}}
{"graph":"h","vertex":{"gid":"x","label":"Other"}}
this is not json
{"graph":"g"}
`

func TestBulkLoad(t *testing.T) {
	ctx := context.Background()
	gm := NewGraphManager()

	res, err := gm.BulkLoad(ctx, strings.NewReader(bulkTestData))
	if err != nil {
		t.Error(err)
		return
	}

	if res.InsertCount != 4 || res.ErrorCount != 3 {
		t.Error("Unexpected result:", res)
		return
	}

	if !strings.HasPrefix(res.Errors[0], "Line 5: GraphError: INVALID_ARGUMENT (Edge e2 references missing vertex v9)") {
		t.Error("Unexpected result:", res.Errors)
		return
	}

	if res := fmt.Sprint(gm.ListGraphs()); res != "[g h]" {
		t.Error("Unexpected result:", res)
		return
	}

	// Round trip of vertex data

	v, err := gm.GetVertex(ctx, "g", "v1")
	expected := map[string]interface{}{"name": "marko", "age": 29.0, "langs": []interface{}{"java", "go"}}

	if err != nil || !reflect.DeepEqual(v.Data, expected) {
		t.Error("Unexpected result:", v, err)
		return
	}

	var buf bytes.Buffer

	if err := gm.ExportGraph(ctx, "g", &buf); err != nil {
		t.Error(err)
		return
	}

	if res := buf.String(); res != `{"graph":"g","vertex":{"gid":"v1","label":"Person","data":{"age":29,"langs":["java","go"],"name":"marko"}}}
{"graph":"g","vertex":{"gid":"v2","label":"Person","data":{"name":"vadas","nested":{"a":{"b":1}}}}}
{"graph":"g","edge":{"gid":"e1","label":"knows","from":"v1","to":"v2","data":{"weight":0.5}}}
` {
		t.Error("Unexpected result:", res)
		return
	}

	// An exported graph can be loaded again

	gm2 := NewGraphManager()

	if res, err := gm2.BulkLoad(ctx, &buf); err != nil || res.InsertCount != 3 || res.ErrorCount != 0 {
		t.Error("Unexpected result:", res, err)
		return
	}

	if err := gm.ExportGraph(ctx, "x", &buf); err == nil {
		t.Error("Unknown graph should not be exported")
		return
	}
}

func TestBulkLoadCancel(t *testing.T) {
	gm := NewGraphManager()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := gm.BulkLoad(ctx, strings.NewReader(bulkTestData)); err != context.Canceled {
		t.Error("Unexpected result:", err)
		return
	}
}
