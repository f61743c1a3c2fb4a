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
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

/*
Driver provides the rows of a single collection.
*/
type Driver interface {

	/*
		Fields returns the names of all fields which can be searched.
	*/
	Fields() []string

	/*
		Row returns a row by its id.
	*/
	Row(id string) (*Row, bool)

	/*
		Rows calls a function for every row.
	*/
	Rows(ctx context.Context, f func(*Row) error) error

	/*
		MatchRows calls a function for every row whose field has a given
		value.
	*/
	MatchRows(ctx context.Context, field string, value string, f func(*Row) error) error
}

// Memory driver
// =============

/*
MemoryDriver is a driver which keeps all rows in memory. Rows are returned
in insertion order.
*/
type MemoryDriver struct {
	ids    []string
	rows   map[string]map[string]interface{}
	fields map[string]bool
	lock   sync.RWMutex
}

/*
NewMemoryDriver creates a new empty memory driver.
*/
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{rows: make(map[string]map[string]interface{}),
		fields: make(map[string]bool)}
}

/*
LoadJSONLines reads a collection from JSON lines. The row id is taken from
a given field or is the line number if the field is missing.
*/
func LoadJSONLines(r io.Reader, idField string) (*MemoryDriver, error) {
	md := NewMemoryDriver()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for line := 0; scanner.Scan(); line++ {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}

		var row map[string]interface{}

		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			return nil, fmt.Errorf("Line %v: %v", line+1, err)
		}

		id := fmt.Sprint(line)
		if v, ok := row[idField]; ok {
			id = cast.ToString(v)
		}

		md.Add(id, row)
	}

	return md, scanner.Err()
}

/*
Add adds a row. An existing row with the same id is replaced.
*/
func (md *MemoryDriver) Add(id string, row map[string]interface{}) {
	md.lock.Lock()
	defer md.lock.Unlock()

	if _, ok := md.rows[id]; !ok {
		md.ids = append(md.ids, id)
	}

	md.rows[id] = row

	for k := range row {
		md.fields[k] = true
	}
}

/*
Fields returns the names of all fields which appear in any row.
*/
func (md *MemoryDriver) Fields() []string {
	md.lock.RLock()
	defer md.lock.RUnlock()

	var ret []string
	for k := range md.fields {
		ret = append(ret, k)
	}
	sort.Strings(ret)

	return ret
}

/*
Row returns a row by its id.
*/
func (md *MemoryDriver) Row(id string) (*Row, bool) {
	md.lock.RLock()
	defer md.lock.RUnlock()

	data, ok := md.rows[id]
	if !ok {
		return nil, false
	}

	return &Row{ID: id, Data: data}, true
}

/*
Rows calls a function for every row.
*/
func (md *MemoryDriver) Rows(ctx context.Context, f func(*Row) error) error {
	return md.each(ctx, func(*Row) bool { return true }, f)
}

/*
MatchRows calls a function for every row whose field value equals a given
string. Numbers and booleans are compared by their string form.
*/
func (md *MemoryDriver) MatchRows(ctx context.Context, field string, value string, f func(*Row) error) error {
	return md.each(ctx, func(r *Row) bool {
		v, ok := r.Data[field]
		if !ok {
			return false
		}
		s, err := cast.ToStringE(v)
		return err == nil && s == value
	}, f)
}

func (md *MemoryDriver) each(ctx context.Context, match func(*Row) bool, f func(*Row) error) error {
	md.lock.RLock()
	ids := append([]string(nil), md.ids...)
	md.lock.RUnlock()

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		if r, ok := md.Row(id); ok && match(r) {
			if err := f(r); err != nil {
				return err
			}
		}
	}

	return nil
}

// Table server
// ============

/*
TableServer is a row source which serves a set of named collections.
*/
type TableServer struct {
	drivers map[string]Driver
	server  *grpc.Server
	lock    sync.Mutex
}

/*
NewTableServer creates a new table server for a set of collections.
*/
func NewTableServer(drivers map[string]Driver) *TableServer {
	return &TableServer{drivers: drivers}
}

/*
Serve serves the row source service on a listener. Blocks until the
server is stopped.
*/
func (ts *TableServer) Serve(lis net.Listener) error {
	ts.lock.Lock()
	ts.server = grpc.NewServer()
	RegisterRowSourceServer(ts.server, ts)
	server := ts.server
	ts.lock.Unlock()

	logrus.WithFields(logrus.Fields{
		"address":     lis.Addr().String(),
		"collections": len(ts.drivers),
	}).Info("Serving row source")

	return server.Serve(lis)
}

/*
Stop stops the server.
*/
func (ts *TableServer) Stop() {
	ts.lock.Lock()
	defer ts.lock.Unlock()

	if ts.server != nil {
		ts.server.Stop()
		ts.server = nil
	}
}

func (ts *TableServer) driver(name string) (Driver, error) {
	if dr, ok := ts.drivers[name]; ok {
		return dr, nil
	}
	return nil, status.Errorf(codes.NotFound, "Collection %v not found", name)
}

/*
GetCollections sends the names of all collections.
*/
func (ts *TableServer) GetCollections(ctx context.Context, send func(*Collection) error) error {
	var names []string
	for n := range ts.drivers {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		if err := send(&Collection{Name: n}); err != nil {
			return err
		}
	}

	return nil
}

/*
GetCollectionInfo returns the searchable fields of a collection.
*/
func (ts *TableServer) GetCollectionInfo(ctx context.Context, c *Collection) (*CollectionInfo, error) {
	dr, err := ts.driver(c.Name)
	if err != nil {
		return nil, err
	}

	info := &CollectionInfo{SearchFields: []string{}}
	for _, f := range dr.Fields() {
		info.SearchFields = append(info.SearchFields, "$."+f)
	}

	return info, nil
}

/*
GetIDs sends the ids of all rows of a collection.
*/
func (ts *TableServer) GetIDs(ctx context.Context, c *Collection, send func(*RowID) error) error {
	dr, err := ts.driver(c.Name)
	if err != nil {
		return err
	}

	return dr.Rows(ctx, func(r *Row) error {
		return send(&RowID{ID: r.ID})
	})
}

/*
GetRows sends all rows of a collection.
*/
func (ts *TableServer) GetRows(ctx context.Context, c *Collection, send func(*Row) error) error {
	dr, err := ts.driver(c.Name)
	if err != nil {
		return err
	}

	return dr.Rows(ctx, send)
}

/*
GetRowsByID answers a stream of row requests. Requests for missing rows
are not answered.
*/
func (ts *TableServer) GetRowsByID(ctx context.Context, recv func() (*RowRequest, error),
	send func(*Row) error) error {

	for {
		req, err := recv()
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}

		dr, err := ts.driver(req.Collection)
		if err != nil {
			return err
		}

		if r, ok := dr.Row(req.ID); ok {
			if err := send(&Row{ID: r.ID, Data: r.Data, RequestID: req.RequestID}); err != nil {
				return err
			}
		}
	}
}

/*
GetRowsByField sends all rows whose field has a given value.
*/
func (ts *TableServer) GetRowsByField(ctx context.Context, r *FieldRequest, send func(*Row) error) error {
	dr, err := ts.driver(r.Collection)
	if err != nil {
		return err
	}

	return dr.MatchRows(ctx, strings.TrimPrefix(r.Field, "$."), r.Value, send)
}
