/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"devt.de/krotik/gripdb/config"
	"devt.de/krotik/gripdb/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportExport(t *testing.T) {
	dir := t.TempDir()

	in := filepath.Join(dir, "in.json")
	out := filepath.Join(dir, "out.json")

	require.NoError(t, os.WriteFile(in, []byte(`
{"graph":"social","vertex":{"gid":"1","label":"Person","data":{"name":"marko"}}}
{"graph":"social","vertex":{"gid":"2","label":"Person","data":{"name":"vadas"}}}
{"graph":"social","edge":{"gid":"e1","label":"knows","from":"1","to":"2"}}
`), 0600))

	gm := graph.NewGraphManager()
	defer gm.Close()

	require.NoError(t, handleServerCommandLine(gm, in, []string{"social=" + out}))

	assert.Equal(t, []string{"social"}, gm.ListGraphs())

	exported, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(exported), "\n"))

	// The export can be loaded again

	gm2 := graph.NewGraphManager()
	defer gm2.Close()

	require.NoError(t, handleServerCommandLine(gm2, out, nil))
	assert.Equal(t, []string{"social"}, gm2.ListGraphs())

	assert.EqualError(t, handleServerCommandLine(gm, "", []string{"social"}),
		"Invalid export social (expected graph=file)")
	assert.Error(t, handleServerCommandLine(gm, "", []string{"foo=" + out}))
	assert.Error(t, handleServerCommandLine(gm, filepath.Join(dir, "missing.json"), nil))
}

func TestLoadTables(t *testing.T) {
	dir := t.TempDir()

	films := filepath.Join(dir, "films.jsonl")
	require.NoError(t, os.WriteFile(films, []byte(`{"id": 1, "title": "A New Hope"}
{"id": 2, "title": "The Empire Strikes Back"}
`), 0600))

	drivers, err := loadTables([]string{"films=" + films}, "id")
	require.NoError(t, err)
	assert.Len(t, drivers, 1)
	assert.Contains(t, drivers, "films")

	_, err = loadTables(nil, "id")
	assert.EqualError(t, err, "No tables given")

	_, err = loadTables([]string{"films"}, "id")
	assert.EqualError(t, err, "Invalid table films (expected name=file)")

	_, err = loadTables([]string{"films=" + films, "films=" + films}, "id")
	assert.EqualError(t, err, "Duplicate table films")

	_, err = loadTables([]string{"x=" + filepath.Join(dir, "missing")}, "id")
	assert.Error(t, err)
}

func TestResolveAuthorization(t *testing.T) {
	res, err := resolveAuthorization(&clientOptions{})
	require.NoError(t, err)
	assert.Equal(t, "", res)

	res, err = resolveAuthorization(&clientOptions{user: "alice", password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "Basic YWxpY2U6c2VjcmV0", res)

	res, err = resolveAuthorization(&clientOptions{token: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", res)

	dir := t.TempDir()
	credFile := filepath.Join(dir, "credentials.json")

	require.NoError(t, os.WriteFile(credFile, []byte(`[
  // Service account
  {"user": "svc", "token": "t0ken"},
  {"user": "alice", "password": "secret"}
]`), 0600))

	res, err = resolveAuthorization(&clientOptions{user: "svc", credentials: credFile})
	require.NoError(t, err)
	assert.Equal(t, "Bearer t0ken", res)

	_, err = resolveAuthorization(&clientOptions{user: "bob", credentials: credFile})
	assert.EqualError(t, err, "No credential for user bob in "+credFile)

	_, err = resolveAuthorization(&clientOptions{credentials: credFile})
	assert.EqualError(t, err, "A user is needed to select a credential from "+credFile)

	missing := filepath.Join(dir, "missing.json")

	_, err = resolveAuthorization(&clientOptions{user: "svc", credentials: missing})
	assert.EqualError(t, err, "Credential file "+missing+" does not exist")
}

func TestServerURLFromConfig(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, "http://localhost:8201", serverURLFromConfig(filepath.Join(dir, "missing.json")))

	cfg := filepath.Join(dir, "gripdb.config.json")
	require.NoError(t, os.WriteFile(cfg, []byte(`{"HTTPHost": "example.com", "HTTPPort": "9000"}`), 0600))

	assert.Equal(t, "http://example.com:9000", serverURLFromConfig(cfg))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer

	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "GripDB "+config.ProductVersion+"\n", out.String())

	cmd = rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"version", "--log-level", "nonsense"})

	assert.Error(t, cmd.Execute())
}
