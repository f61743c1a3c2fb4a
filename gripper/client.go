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
	"io"

	"devt.de/krotik/gripdb/graph/util"
	"devt.de/krotik/gripdb/metrics"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

/*
Client is a connection to a single row source.
*/
type Client struct {
	name string
	conn *grpc.ClientConn
}

/*
Dial creates a client for the row source at a given address. The
connection is established lazily.
*/
func Dial(name string, host string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient(host, append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)...)

	if err != nil {
		return nil, fmt.Errorf("Could not connect to row source %v at %v: %v", name, host, err)
	}

	return &Client{name, conn}, nil
}

/*
Name returns the source name of this client.
*/
func (c *Client) Name() string {
	return c.name
}

/*
Close closes the connection.
*/
func (c *Client) Close() error {
	return c.conn.Close()
}

/*
GetCollections returns the names of all collections of the source.
*/
func (c *Client) GetCollections(ctx context.Context) ([]string, error) {
	var ret []string

	err := c.serverStream(ctx, "GetCollections", &Empty{}, func() interface{} {
		return new(Collection)
	}, func(msg interface{}) error {
		ret = append(ret, msg.(*Collection).Name)
		return nil
	})

	return ret, err
}

/*
GetCollectionInfo returns the description of a collection.
*/
func (c *Client) GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	metrics.RowSourceCalls.WithLabelValues(c.name, "GetCollectionInfo").Inc()

	info := new(CollectionInfo)

	if err := c.conn.Invoke(ctx, fullMethod("GetCollectionInfo"), &Collection{collection}, info,
		grpc.CallContentSubtype(codecName)); err != nil {
		return nil, c.error(ctx, err)
	}

	return info, nil
}

/*
GetIDs calls a function for the id of every row of a collection.
*/
func (c *Client) GetIDs(ctx context.Context, collection string, f func(id string) error) error {
	return c.serverStream(ctx, "GetIDs", &Collection{collection}, func() interface{} {
		return new(RowID)
	}, func(msg interface{}) error {
		return f(msg.(*RowID).ID)
	})
}

/*
GetRows calls a function for every row of a collection.
*/
func (c *Client) GetRows(ctx context.Context, collection string, f func(*Row) error) error {
	return c.serverStream(ctx, "GetRows", &Collection{collection}, func() interface{} {
		return new(Row)
	}, func(msg interface{}) error {
		return f(msg.(*Row))
	})
}

/*
GetRowsByField calls a function for every row of a collection whose field
has a given value.
*/
func (c *Client) GetRowsByField(ctx context.Context, collection string, field string,
	value string, f func(*Row) error) error {

	return c.serverStream(ctx, "GetRowsByField", &FieldRequest{collection, field, value},
		func() interface{} {
			return new(Row)
		}, func(msg interface{}) error {
			return f(msg.(*Row))
		})
}

/*
GetRowsByID looks up rows by their ids. The returned list has the same
order as the requested ids; missing rows are nil.
*/
func (c *Client) GetRowsByID(ctx context.Context, collection string, ids []string) ([]*Row, error) {
	metrics.RowSourceCalls.WithLabelValues(c.name, "GetRowsByID").Inc()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cs, err := c.conn.NewStream(sctx, &grpc.StreamDesc{ServerStreams: true, ClientStreams: true},
		fullMethod("GetRowsByID"), grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, c.error(ctx, err)
	}

	var g errgroup.Group

	g.Go(func() error {
		for i, id := range ids {
			err := cs.SendMsg(&RowRequest{Collection: collection, ID: id, RequestID: uint64(i)})
			if errors.Is(err, io.EOF) {

				// The server stopped, the receiver gets the status

				return nil
			} else if err != nil {
				return err
			}
		}
		return cs.CloseSend()
	})

	ret := make([]*Row, len(ids))

	for {
		row := new(Row)

		if err = cs.RecvMsg(row); err != nil {
			break
		}

		if row.RequestID < uint64(len(ret)) {
			ret[row.RequestID] = row
		}
	}

	if errors.Is(err, io.EOF) {
		err = nil
	}

	cancel()

	if serr := g.Wait(); err == nil && serr != nil {
		err = serr
	}

	if err != nil {
		return nil, c.error(ctx, err)
	}

	return ret, nil
}

/*
serverStream runs a call which sends one request and receives a stream of
messages.
*/
func (c *Client) serverStream(ctx context.Context, method string, req interface{},
	newMsg func() interface{}, f func(interface{}) error) error {

	metrics.RowSourceCalls.WithLabelValues(c.name, method).Inc()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cs, err := c.conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true},
		fullMethod(method), grpc.CallContentSubtype(codecName))
	if err != nil {
		return c.error(ctx, err)
	}

	if err := cs.SendMsg(req); err != nil && !errors.Is(err, io.EOF) {
		return c.error(ctx, err)
	}

	if err := cs.CloseSend(); err != nil {
		return c.error(ctx, err)
	}

	for {
		msg := newMsg()

		if err := cs.RecvMsg(msg); errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return c.error(ctx, err)
		}

		if err := f(msg); err != nil {
			return err
		}
	}
}

/*
error converts a gRPC error into a graph error.
*/
func (c *Client) error(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	st := status.Convert(err)
	msg := fmt.Sprintf("Row source %v: %v", c.name, st.Message())

	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return util.NewGraphError(util.ErrUnavailable, msg)
	case codes.NotFound:
		return util.NewGraphError(util.ErrNotFound, msg)
	case codes.InvalidArgument:
		return util.NewGraphError(util.ErrInvalidArgument, msg)
	case codes.DeadlineExceeded:
		return util.NewGraphError(util.ErrDeadline, msg)
	}

	return util.NewInternalError(errors.New(msg))
}
