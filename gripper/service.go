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
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// Messages
// ========

/*
Empty is the empty request.
*/
type Empty struct{}

/*
Collection names a collection of a row source.
*/
type Collection struct {
	Name string `json:"name"`
}

/*
CollectionInfo describes a collection. Search fields are JSON paths ($.x)
which can be used with GetRowsByField.
*/
type CollectionInfo struct {
	SearchFields []string `json:"searchFields"`
}

/*
RowID is the id of a row.
*/
type RowID struct {
	ID string `json:"id"`
}

/*
Row is a single row of a collection.
*/
type Row struct {
	ID        string                 `json:"id"`
	Data      map[string]interface{} `json:"data"`
	RequestID uint64                 `json:"requestID,omitempty"`
}

/*
RowRequest asks for a row by its id.
*/
type RowRequest struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	RequestID  uint64 `json:"requestID"`
}

/*
FieldRequest asks for all rows whose field has a given value.
*/
type FieldRequest struct {
	Collection string `json:"collection"`
	Field      string `json:"field"`
	Value      string `json:"value"`
}

// Codec
// =====

/*
codecName is the content subtype of all row source calls.
*/
const codecName = "json"

/*
jsonCodec encodes the messages of the row source service as JSON.
*/
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(b []byte, v interface{}) error {
	return json.Unmarshal(b, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Service
// =======

/*
serviceName is the full name of the row source service.
*/
const serviceName = "gripdb.gripper.RowSource"

/*
RowSourceServer is the server side of the row source service. Streaming
calls get a send function; GetRowsByID also gets a receive function which
returns io.EOF once the client has sent all requests.
*/
type RowSourceServer interface {
	GetCollections(ctx context.Context, send func(*Collection) error) error
	GetCollectionInfo(ctx context.Context, c *Collection) (*CollectionInfo, error)
	GetIDs(ctx context.Context, c *Collection, send func(*RowID) error) error
	GetRows(ctx context.Context, c *Collection, send func(*Row) error) error
	GetRowsByID(ctx context.Context, recv func() (*RowRequest, error), send func(*Row) error) error
	GetRowsByField(ctx context.Context, r *FieldRequest, send func(*Row) error) error
}

/*
RegisterRowSourceServer registers a row source with a gRPC server.
*/
func RegisterRowSourceServer(s *grpc.Server, srv RowSourceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RowSourceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCollectionInfo", Handler: getCollectionInfoHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "GetCollections", Handler: getCollectionsHandler, ServerStreams: true},
		{StreamName: "GetIDs", Handler: getIDsHandler, ServerStreams: true},
		{StreamName: "GetRows", Handler: getRowsHandler, ServerStreams: true},
		{StreamName: "GetRowsByID", Handler: getRowsByIDHandler, ServerStreams: true, ClientStreams: true},
		{StreamName: "GetRowsByField", Handler: getRowsByFieldHandler, ServerStreams: true},
	},
	Metadata: "gripper",
}

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

func getCollectionInfoHandler(srv interface{}, ctx context.Context, dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor) (interface{}, error) {

	in := new(Collection)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(RowSourceServer).GetCollectionInfo(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("GetCollectionInfo")}

	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RowSourceServer).GetCollectionInfo(ctx, req.(*Collection))
	})
}

func getCollectionsHandler(srv interface{}, stream grpc.ServerStream) error {
	if err := stream.RecvMsg(new(Empty)); err != nil {
		return err
	}
	return srv.(RowSourceServer).GetCollections(stream.Context(), func(c *Collection) error {
		return stream.SendMsg(c)
	})
}

func getIDsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(Collection)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RowSourceServer).GetIDs(stream.Context(), in, func(id *RowID) error {
		return stream.SendMsg(id)
	})
}

func getRowsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(Collection)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RowSourceServer).GetRows(stream.Context(), in, func(r *Row) error {
		return stream.SendMsg(r)
	})
}

func getRowsByIDHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(RowSourceServer).GetRowsByID(stream.Context(), func() (*RowRequest, error) {
		req := new(RowRequest)
		if err := stream.RecvMsg(req); err != nil {
			return nil, err
		}
		return req, nil
	}, func(r *Row) error {
		return stream.SendMsg(r)
	})
}

func getRowsByFieldHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(FieldRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RowSourceServer).GetRowsByField(stream.Context(), in, func(r *Row) error {
		return stream.SendMsg(r)
	})
}
