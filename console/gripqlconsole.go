/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package console

import (
	"encoding/json"

	v1 "devt.de/krotik/gripdb/api/v1"
	"devt.de/krotik/gripdb/gripql"
)

// GripQL Console
// ==============

/*
GripQLConsole runs GripQL queries.
*/
type GripQLConsole struct {
	parent CommandConsoleAPI // Parent console API
}

/*
gripQLConsoleKeywords are all keywords which this console can process.
*/
var gripQLConsoleKeywords = []string{"{"}

/*
Run executes one or more commands. It returns an error if the command
had an unexpected result and a flag if the command was handled.
*/
func (c *GripQLConsole) Run(cmd string) (bool, error) {

	if !cmdStartsWithKeyword(cmd, gripQLConsoleKeywords) {
		return false, nil
	}

	// Check the query locally before it is sent

	q, err := gripql.ParseQuery([]byte(cmd))
	if err != nil {
		return true, err
	}

	body, err := json.Marshal(q)
	if err != nil {
		return true, err
	}

	return true, c.parent.Stream(v1.EndpointGraph+c.parent.Graph()+"/query", "POST", body,
		func(rec map[string]interface{}) error {
			if err := recordError(rec); err != nil {
				return err
			}
			return writeRecord(c.parent, rec)
		})
}

/*
Commands returns an empty list. The command line is interpreted as a GripQL query.
*/
func (c *GripQLConsole) Commands() []Command {
	return nil
}
