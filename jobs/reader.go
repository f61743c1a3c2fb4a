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

	"devt.de/krotik/gripdb/engine"
)

/*
Reader reads the result log of a job.
*/
type Reader struct {
	ctx  context.Context
	j    *job
	pos  int
	cur  *engine.Result
	err  error
	stop func() bool
}

/*
newReader creates a new reader which starts at a given offset.
*/
func newReader(ctx context.Context, j *job, offset int) *Reader {
	r := &Reader{ctx: ctx, j: j, pos: offset}

	r.stop = context.AfterFunc(ctx, func() {
		j.lock.Lock()
		j.cond.Broadcast()
		j.lock.Unlock()
	})

	return r
}

/*
Next advances the reader. Blocks until the next record is available or the
job is finished. Returns false if there are no more records or if an error
occurred.
*/
func (r *Reader) Next() bool {
	j := r.j

	j.lock.Lock()
	defer j.lock.Unlock()

	for r.err == nil {

		if j.deleted {
			r.err = jobNotFound(j.status.ID)
		} else if err := r.ctx.Err(); err != nil {
			r.err = err
		} else if r.pos < len(j.results) {
			r.cur = j.results[r.pos]
			r.pos++
			return true
		} else if j.status.State.Finished() {
			return false
		} else {
			j.cond.Wait()
		}
	}

	return false
}

/*
Result returns the current record.
*/
func (r *Reader) Result() *engine.Result {
	return r.cur
}

/*
Offset returns the offset of the next record.
*/
func (r *Reader) Offset() int {
	return r.pos
}

/*
Err returns the error which stopped the reader.
*/
func (r *Reader) Err() error {
	return r.err
}

/*
Close releases the reader.
*/
func (r *Reader) Close() {
	r.stop()
}
