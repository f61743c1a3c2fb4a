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
Package util contains utility classes for the graph storage.

GraphError

Models a graph related error. Low-level errors should be wrapped in a GraphError
before they are returned to a client. Each GraphError carries one of the error
kinds which are known to the REST API:

	NOT_FOUND         Missing graph, vertex, edge, index or job
	INVALID_QUERY     Query validation failed
	INVALID_ARGUMENT  Malformed JSON or an unknown step
	UNAUTHORIZED      Missing credentials or denied access
	CONFLICT          Conflicting write
	INTERNAL          Unexpected error (carries a correlation id)
	UNAVAILABLE       Transient storage error
	DEADLINE          A query ran into its deadline
*/
package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

/*
GraphError is a graph related error
*/
type GraphError struct {
	Type   error  // Error type (to be used for equal checks)
	Detail string // Details of this error
	ID     string // Correlation id (only set for internal errors)
}

/*
Error returns a human-readable string representation of this error.
*/
func (ge *GraphError) Error() string {
	if ge.Detail != "" {
		return fmt.Sprintf("GraphError: %v (%v)", ge.Type, ge.Detail)
	}

	return fmt.Sprintf("GraphError: %v", ge.Type)
}

/*
Is allows errors.Is checks against the error type.
*/
func (ge *GraphError) Is(target error) bool {
	return ge.Type == target
}

/*
Unwrap returns the error type.
*/
func (ge *GraphError) Unwrap() error {
	return ge.Type
}

/*
Error kinds
*/
var (
	ErrNotFound        = errors.New("NOT_FOUND")
	ErrInvalidQuery    = errors.New("INVALID_QUERY")
	ErrInvalidArgument = errors.New("INVALID_ARGUMENT")
	ErrUnauthorized    = errors.New("UNAUTHORIZED")
	ErrConflict        = errors.New("CONFLICT")
	ErrInternal        = errors.New("INTERNAL")
	ErrUnavailable     = errors.New("UNAVAILABLE")
	ErrDeadline        = errors.New("DEADLINE")
)

/*
Graph storage related error types
*/
var (
	ErrReadOnly = errors.New("Failed write to readonly storage")
)

/*
NewGraphError creates a new GraphError of a given kind.
*/
func NewGraphError(kind error, detail string) *GraphError {
	return &GraphError{kind, detail, ""}
}

/*
NewInternalError wraps an unexpected error. The error gets a correlation id
which is logged together with the original error.
*/
func NewInternalError(err error) *GraphError {
	id := uuid.New().String()

	logrus.WithFields(logrus.Fields{
		"id":    id,
		"error": err,
	}).Error("Internal error")

	return &GraphError{ErrInternal, err.Error(), id}
}

/*
Kind classifies an error into one of the error kinds.
*/
func Kind(err error) error {
	var ge *GraphError

	if err == nil {
		return nil
	}

	if errors.As(err, &ge) {
		switch ge.Type {
		case ErrReadOnly:
			return ErrInvalidArgument
		}
		return ge.Type
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrDeadline
	}

	return ErrInternal
}

/*
ToGraphError converts an arbitrary error into a GraphError. Errors which are
not yet GraphErrors become internal errors.
*/
func ToGraphError(err error) *GraphError {
	var ge *GraphError

	if err == nil {
		return nil
	} else if errors.As(err, &ge) {
		return ge
	} else if errors.Is(err, context.DeadlineExceeded) {
		return NewGraphError(ErrDeadline, err.Error())
	} else if errors.Is(err, context.Canceled) {
		return NewGraphError(ErrDeadline, "Query was cancelled")
	}

	return NewInternalError(err)
}

/*
HTTPStatus returns the HTTP status code for a given error.
*/
func HTTPStatus(err error) int {
	switch Kind(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalidQuery, ErrInvalidArgument:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrConflict:
		return http.StatusConflict
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	case ErrDeadline:
		return http.StatusGatewayTimeout
	}

	return http.StatusInternalServerError
}

/*
IsTransient checks if an error is a transient storage error which may be retried.
*/
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
