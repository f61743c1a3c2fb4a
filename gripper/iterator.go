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

	"devt.de/krotik/gripdb/graph/data"
)

/*
iteratorBuffer is the number of elements a producer may run ahead.
*/
const iteratorBuffer = 10

/*
producer produces elements by calling emit. Emit fails once the consumer
has closed the iterator.
*/
type producer func(ctx context.Context, emit func(*data.Element) error) error

/*
streamIterator is an iterator whose elements are produced by a goroutine.
*/
type streamIterator struct {
	ch     chan *data.Element
	errc   chan error
	cancel context.CancelFunc
	cur    *data.Element
	err    error
	done   bool
}

/*
newStreamIterator starts a producer and returns an iterator over the
produced elements.
*/
func newStreamIterator(ctx context.Context, p producer) *streamIterator {
	ctx, cancel := context.WithCancel(ctx)

	it := &streamIterator{
		ch:     make(chan *data.Element, iteratorBuffer),
		errc:   make(chan error, 1),
		cancel: cancel,
	}

	go func() {
		defer close(it.ch)

		it.errc <- p(ctx, func(el *data.Element) error {
			select {
			case it.ch <- el:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	return it
}

/*
Next advances the iterator.
*/
func (it *streamIterator) Next() bool {
	if it.done {
		return false
	}

	if el, ok := <-it.ch; ok {
		it.cur = el
		return true
	}

	it.done = true
	it.err = <-it.errc

	return false
}

/*
Element returns the current element.
*/
func (it *streamIterator) Element() *data.Element {
	return it.cur
}

/*
Err returns the error which stopped the iteration.
*/
func (it *streamIterator) Err() error {
	return it.err
}

/*
Close stops the producer.
*/
func (it *streamIterator) Close() {
	it.cancel()

	if !it.done {
		for range it.ch {
		}
		it.done = true
	}
}
