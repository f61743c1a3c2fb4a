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
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"devt.de/krotik/common/fileutil"
	"devt.de/krotik/gripdb/engine"
	"github.com/kennygrant/sanitize"
	"github.com/sirupsen/logrus"
)

/*
Spool file names
*/
const (
	statusFile  = "status"
	resultsFile = "results"
)

/*
maxRecordSize is the maximum size of a spooled result record.
*/
const maxRecordSize = 16 * 1024 * 1024

/*
spoolWriter writes the status and the results of a job into a directory.
*/
type spoolWriter struct {
	dir     string
	results *os.File
	lock    sync.Mutex
}

/*
newSpoolWriter creates the spool directory of a job.
*/
func newSpoolWriter(base string, status *Status) (*spoolWriter, error) {
	dir := filepath.Join(base, sanitize.BaseName(status.Graph), status.ID)

	if err := os.MkdirAll(dir, 0770); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filepath.Join(dir, resultsFile), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0660)
	if err != nil {
		return nil, err
	}

	sw := &spoolWriter{dir: dir, results: f}

	return sw, sw.writeStatus(status)
}

/*
write appends a result record.
*/
func (sw *spoolWriter) write(r *engine.Result) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}

	sw.lock.Lock()
	defer sw.lock.Unlock()

	if sw.results == nil {
		return nil
	}

	_, err = sw.results.Write(append(b, '\n'))

	return err
}

/*
writeStatus replaces the status file. The results file is closed once the
job is finished.
*/
func (sw *spoolWriter) writeStatus(status *Status) error {
	b, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}

	sw.lock.Lock()
	defer sw.lock.Unlock()

	tmp := filepath.Join(sw.dir, statusFile+".tmp")

	if err := os.WriteFile(tmp, b, 0660); err != nil {
		return err
	}

	if status.State.Finished() && sw.results != nil {
		sw.results.Close()
		sw.results = nil
	}

	return os.Rename(tmp, filepath.Join(sw.dir, statusFile))
}

/*
remove removes the spool directory.
*/
func (sw *spoolWriter) remove() error {
	sw.lock.Lock()
	defer sw.lock.Unlock()

	if sw.results != nil {
		sw.results.Close()
		sw.results = nil
	}

	return os.RemoveAll(sw.dir)
}

/*
reload loads all spooled jobs. Jobs which were not finished are marked as
failed.
*/
func (js *Store) reload() error {
	if ok, _ := fileutil.PathExists(js.dir); !ok {
		return os.MkdirAll(js.dir, 0770)
	}

	files, err := filepath.Glob(filepath.Join(js.dir, "*", "*", statusFile))
	if err != nil {
		return err
	}

	for _, file := range files {
		j, err := loadJob(filepath.Dir(file))

		if err != nil {
			logrus.WithFields(logrus.Fields{
				"dir":   filepath.Dir(file),
				"error": err,
			}).Warn("Could not reload job")
			continue
		}

		js.jobs[j.status.ID] = j
	}

	logrus.WithFields(logrus.Fields{
		"dir":  js.dir,
		"jobs": len(js.jobs),
	}).Info("Reloaded spooled jobs")

	return nil
}

/*
loadJob loads a spooled job from its directory.
*/
func loadJob(dir string) (*job, error) {
	var status Status

	b, err := os.ReadFile(filepath.Join(dir, statusFile))
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(b, &status); err != nil {
		return nil, err
	}

	j := &job{
		status: status,
		cancel: func() {},
		spool:  &spoolWriter{dir: dir},
	}
	j.cond = sync.NewCond(&j.lock)

	f, err := os.Open(filepath.Join(dir, resultsFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if f != nil {
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), maxRecordSize)

		for scanner.Scan() {
			var r engine.Result

			if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
				return nil, err
			}

			j.results = append(j.results, &r)
		}

		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	j.status.Count = int64(len(j.results))

	if !j.status.State.Finished() {
		j.status.State = StateError
		j.status.Error = "Job was interrupted"

		if err := j.spool.writeStatus(&j.status); err != nil {
			return nil, err
		}
	}

	return j, nil
}
