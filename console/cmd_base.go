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
	"bytes"
	"fmt"

	"devt.de/krotik/common/stringutil"
	"devt.de/krotik/gripdb/api"
	"devt.de/krotik/gripdb/api/ac"
)

/*
Available base commands
*/
const (
	CommandHelp   = "help"
	CommandVer    = "ver"
	CommandWhoAmI = "whoami"
	CommandLogin  = "login"
	CommandLogout = "logout"
	CommandExport = "export"
)

/*
cmdInfo holds the name and the descriptions of a command. The long
description defaults to the short one.
*/
type cmdInfo struct {
	name  string
	short string
	long  string
}

/*
Name returns the command name (as it should be typed).
*/
func (c *cmdInfo) Name() string {
	return c.name
}

/*
ShortDescription returns a short description of the command (single line).
*/
func (c *cmdInfo) ShortDescription() string {
	return c.short
}

/*
LongDescription returns an extensive description of the command.
*/
func (c *cmdInfo) LongDescription() string {
	if c.long == "" {
		return c.short
	}
	return c.long
}

// Command: help
// =============

/*
CmdHelp displays descriptions of other commands.
*/
type CmdHelp struct {
	cmdInfo
}

func newCmdHelp() *CmdHelp {
	return &CmdHelp{cmdInfo{CommandHelp,
		"Display descriptions for all available commands.", ""}}
}

/*
Run executes the command.
*/
func (c *CmdHelp) Run(args []string, capi CommandConsoleAPI) error {
	cmds := capi.Commands()

	if len(args) > 0 {
		for _, cmd := range cmds {
			if cmd.Name() == args[0] {
				capi.ExportBuffer().WriteString(cmd.LongDescription())
				fmt.Fprintln(capi.Out(), cmd.LongDescription())
				return nil
			}
		}

		return fmt.Errorf("Unknown command: %s", args[0])
	}

	tab := []string{"Command", "Description"}

	for _, cmd := range cmds {
		tab = append(tab, cmd.Name(), cmd.ShortDescription())
	}

	writeTable(capi, tab, 2)

	return nil
}

// Command: ver
// ============

/*
CmdVer shows the product and the API versions of the connected server.
*/
type CmdVer struct {
	cmdInfo
}

func newCmdVer() *CmdVer {
	return &CmdVer{cmdInfo{CommandVer, "Displays server version information.", ""}}
}

/*
Run executes the command.
*/
func (c *CmdVer) Run(args []string, capi CommandConsoleAPI) error {
	fmt.Fprintln(capi.Out(), "Connected to:", capi.URL())

	res, err := capi.Req(api.EndpointAbout, "GET", nil)

	if err == nil {
		about, _ := res.(map[string]interface{})

		fmt.Fprintf(capi.Out(), "%v %v (REST versions: %v)\n",
			about["product"], about["version"], about["api_versions"])
	}

	return err
}

// Command: whoami
// ===============

/*
CmdWhoAmI shows which user the server sees for the current credentials.
*/
type CmdWhoAmI struct {
	cmdInfo
}

func newCmdWhoAmI() *CmdWhoAmI {
	return &CmdWhoAmI{cmdInfo{CommandWhoAmI, "Returns the current login status.",
		"Returns the user which is identified by the current credentials."}}
}

/*
Run executes the command.
*/
func (c *CmdWhoAmI) Run(args []string, capi CommandConsoleAPI) error {
	res, err := capi.Req(ac.EndpointWhoAmI, "GET", nil)

	if err == nil {
		if o, _ := res.(map[string]interface{}); o["logged_in"] == true {
			fmt.Fprintln(capi.Out(), o["username"])
		} else {
			fmt.Fprintln(capi.Out(), "Nobody - not logged in")
		}
	}

	return err
}

// Command: login / logout
// =======================

/*
CmdLogin asks for credentials which are used for all further requests.
*/
type CmdLogin struct {
	cmdInfo
}

func newCmdLogin() *CmdLogin {
	return &CmdLogin{cmdInfo{CommandLogin, "Log in as a user.",
		"Log in as a user. The credentials are checked with the server and " +
			"sent with all further requests."}}
}

/*
Run executes the command.
*/
func (c *CmdLogin) Run(args []string, capi CommandConsoleAPI) error {
	if gc, ok := capi.(*GripDBConsole); ok {
		return gc.Authenticate()
	}
	return nil
}

/*
CmdLogout drops the current credentials.
*/
type CmdLogout struct {
	cmdInfo
}

func newCmdLogout() *CmdLogout {
	return &CmdLogout{cmdInfo{CommandLogout, "Log out the current user.", ""}}
}

/*
Run executes the command.
*/
func (c *CmdLogout) Run(args []string, capi CommandConsoleAPI) error {
	if gc, ok := capi.(*GripDBConsole); ok {
		gc.SetAuthorization("")
	}

	fmt.Fprintln(capi.Out(), "Current user logged out.")

	return nil
}

// Command: export
// ===============

/*
CmdExport hands the export buffer to an export function.
*/
type CmdExport struct {
	cmdInfo
	exportFunc func([]string, *bytes.Buffer) error
}

func newCmdExport(exportFunc func([]string, *bytes.Buffer) error) *CmdExport {
	return &CmdExport{cmdInfo{CommandExport, "Exports the last output.",
		"Exports the data which is currently in the export buffer. The export " +
			"buffer is filled with the previous command output in a machine readable form."},
		exportFunc}
}

/*
Run executes the command.
*/
func (c *CmdExport) Run(args []string, capi CommandConsoleAPI) error {
	return c.exportFunc(args, capi.ExportBuffer())
}

/*
writeTable writes a table to the output and as CSV to the export buffer.
*/
func writeTable(capi CommandConsoleAPI, tab []string, cols int) {
	capi.ExportBuffer().WriteString(stringutil.PrintCSVTable(tab, cols))
	fmt.Fprint(capi.Out(), stringutil.PrintStringTable(tab, cols))
}
