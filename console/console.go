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
Package console contains the console command processor for GripDB.

The console talks to a GripDB server through its REST API. Lines which
start with a '{' are sent as GripQL queries to the current graph, all
other lines are interpreted as commands.
*/
package console

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"devt.de/krotik/gripdb/api"
	"devt.de/krotik/gripdb/api/ac"
)

/*
NewConsole creates a new Console object which can parse and execute given
commands and outputs the result to the Writer. The login command is only
available if a credential function is given. It optionally exports data with
the given export function via the export command. Export is disabled if no
export function is defined.
*/
func NewConsole(url string, out io.Writer, getCredentials func() (string, string),
	exportFunc func([]string, *bytes.Buffer) error) *GripDBConsole {

	cmds := []Command{newCmdHelp(), newCmdVer(), newCmdWhoAmI(), newCmdGraphs(),
		newCmdUse(), newCmdInfo(), newCmdLoad(), newCmdDump(), newCmdJobs()}

	if getCredentials != nil {
		cmds = append(cmds, newCmdLogin(), newCmdLogout())
	}

	if exportFunc != nil {
		cmds = append(cmds, newCmdExport(exportFunc))
	}

	cmdMap := make(map[string]Command)

	for _, cmd := range cmds {
		cmdMap[cmd.Name()] = cmd
	}

	c := &GripDBConsole{url, "main", out, bytes.NewBuffer(nil), nil,
		"", cmdMap, getCredentials}

	c.childConsoles = []CommandConsole{&GripQLConsole{c}}

	return c
}

/*
CommandConsole is the main interface for command processors.
*/
type CommandConsole interface {

	/*
		Run executes one or more commands. It returns an error if the command
		had an unexpected result and a flag if the command was handled.
	*/
	Run(cmd string) (bool, error)

	/*
	   Commands returns a sorted list of all available commands.
	*/
	Commands() []Command
}

/*
CommandConsoleAPI is the console interface which commands can use to send communicate to the server.
*/
type CommandConsoleAPI interface {
	CommandConsole

	/*
	   URL returns the current connection URL.
	*/
	URL() string

	/*
	   Graph returns the current graph.
	*/
	Graph() string

	/*
	   SetGraph sets the current graph.
	*/
	SetGraph(string)

	/*
	   Req is a convenience function to send common requests.
	*/
	Req(endpoint string, method string, content []byte) (interface{}, error)

	/*
	   Stream sends a request and calls a function for every record of a
	   newline delimited JSON response.
	*/
	Stream(endpoint string, method string, content []byte, f func(map[string]interface{}) error) error

	/*
	   SendRequest sends a request to the connected server. The calling code of the
	   function can specify the contentType (e.g. application/json), the method
	   (e.g. GET), the content (for POST, PUT and DELETE requests) and a request
	   modifier function which can be used to modify the request object before the
	   request to the server is being made.
	*/
	SendRequest(endpoint string, contentType string, method string,
		content []byte, reqMod func(*http.Request)) (string, *http.Response, error)

	/*
		Out returns a writer which can be used to write to the console.
	*/
	Out() io.Writer

	/*
	   ExportBuffer returns a buffer which can be used to write exportable data.
	*/
	ExportBuffer() *bytes.Buffer
}

/*
CommError is a communication error from the ConsoleAPI.
*/
type CommError struct {
	err  error          // Nice error message
	Resp *http.Response // Error response from the REST API
}

/*
Error returns a textual representation of this error.
*/
func (c *CommError) Error() string {
	return c.err.Error()
}

/*
Command describes an available command.
*/
type Command interface {
	/*
	   Name returns the command name (as it should be typed).
	*/
	Name() string

	/*
	   ShortDescription returns a short description of the command (single line).
	*/
	ShortDescription() string

	/*
	   LongDescription returns an extensive description of the command (can be multiple lines).
	*/
	LongDescription() string

	/*
		Run executes the command.
	*/
	Run(args []string, capi CommandConsoleAPI) error
}

// GripDB Console
// ==============

/*
GripDBConsole implements the basic console functionality like login and version.
*/
type GripDBConsole struct {
	url string // Current server url (e.g. http://localhost:8201)

	graph         string           // Current graph
	out           io.Writer        // Output for this console
	export        *bytes.Buffer    // Export buffer
	childConsoles []CommandConsole // List of child consoles

	authorization string // Authorization header value

	CommandMap     map[string]Command      // Map of registered commands
	GetCredentials func() (string, string) // Ask the user for credentials
}

/*
URL returns the current connected server URL.
*/
func (c *GripDBConsole) URL() string {
	return c.url
}

/*
Out returns a writer which can be used to write to the console.
*/
func (c *GripDBConsole) Out() io.Writer {
	return c.out
}

/*
Graph returns the current graph.
*/
func (c *GripDBConsole) Graph() string {
	return c.graph
}

/*
SetGraph sets the current graph.
*/
func (c *GripDBConsole) SetGraph(graph string) {
	c.graph = graph
}

/*
SetAuthorization sets the Authorization header which is sent with every request.
*/
func (c *GripDBConsole) SetAuthorization(authorization string) {
	c.authorization = authorization
}

/*
ExportBuffer returns a buffer which can be used to write exportable data.
*/
func (c *GripDBConsole) ExportBuffer() *bytes.Buffer {
	return c.export
}

/*
Run executes one or more commands. It returns an error if the command
had an unexpected result and a flag if the command was handled.
*/
func (c *GripDBConsole) Run(cmd string) (bool, error) {

	// Queries are never split since they may contain semicolons

	cmds := []string{cmd}

	if !strings.HasPrefix(strings.TrimSpace(cmd), "{") {
		cmds = strings.Split(cmd, ";")
	}

	for _, cmd := range cmds {

		// Run the command and return if there is an error

		if ok, err := c.RunCommand(cmd); err != nil {

			// Return if there was an unexpected error

			return false, err

		} else if !ok {

			// Try child consoles

			handled := false

			for _, c := range c.childConsoles {

				if ok, err := c.Run(cmd); err != nil {
					return ok, err
				} else if ok {
					handled = true
					break
				}
			}

			if !handled {
				return false, fmt.Errorf("Unknown command")
			}
		}
	}

	// Everything was handled

	return true, nil
}

/*
RunCommand executes a single command. It returns an error for unexpected results and
a flag if the command was handled.
*/
func (c *GripDBConsole) RunCommand(cmdString string) (bool, error) {
	cmdSplit := strings.Fields(cmdString)

	if len(cmdSplit) > 0 {
		cmd := cmdSplit[0]
		args := cmdSplit[1:]

		// Reset the export buffer if we are not exporting

		if cmd != CommandExport {
			c.export.Reset()
		}

		if cmdObj, ok := c.CommandMap[cmd]; ok {
			return true, cmdObj.Run(args, c)
		} else if cmd == "?" {
			return true, c.CommandMap[CommandHelp].Run(args, c)
		}
	}

	return false, nil
}

/*
Commands returns a sorted list of all available commands.
*/
func (c *GripDBConsole) Commands() []Command {
	var res []Command

	for _, c := range c.CommandMap {
		res = append(res, c)
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].Name() < res[j].Name()
	})

	return res
}

/*
Authenticate asks the user for credentials and checks them with the server.
*/
func (c *GripDBConsole) Authenticate() error {
	user, pass := c.GetCredentials()

	if user == "" {

		// User doesn't want to authenticate - do nothing

		fmt.Fprintln(c.out, "Skipping authentication")

		return nil
	}

	previous := c.authorization

	c.authorization = ac.AuthorizationHeader(&ac.Credential{User: user, Password: pass})

	res, err := c.Req(ac.EndpointWhoAmI, "GET", nil)

	if err == nil {
		if o, ok := res.(map[string]interface{}); ok && o["logged_in"] == true {
			fmt.Fprintln(c.out, "Login as user", user)
			return nil
		}

		err = fmt.Errorf("Login failed for user %s", user)
	}

	c.authorization = previous

	return err
}

/*
Req is a convenience function to send common requests.
*/
func (c *GripDBConsole) Req(endpoint string, method string, content []byte) (interface{}, error) {
	var res interface{}

	bodyStr, resp, err := c.SendRequest(endpoint, "application/json", method, content, nil)

	if err == nil {

		if resp.StatusCode != http.StatusOK {
			return nil, newCommError(method, endpoint, bodyStr, resp)
		}

		// Try json decoding

		if jerr := json.Unmarshal([]byte(bodyStr), &res); jerr != nil {
			res = bodyStr
		}
	}

	return res, err
}

/*
Stream sends a request and calls a function for every record of a newline
delimited JSON response.
*/
func (c *GripDBConsole) Stream(endpoint string, method string, content []byte,
	f func(map[string]interface{}) error) error {

	resp, err := c.do(endpoint, "application/json", method, content, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return newCommError(method, endpoint, strings.TrimSpace(string(body)), resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		var rec map[string]interface{}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("Could not decode response record: %v", err)
		}

		if err := f(rec); err != nil {
			return err
		}
	}

	return scanner.Err()
}

/*
SendRequest sends a request to the connected server. The calling code of the
function can specify the contentType (e.g. application/json), the method
(e.g. GET), the content (for POST, PUT and DELETE requests) and a request
modifier function which can be used to modify the request object before the
request to the server is being made.
*/
func (c *GripDBConsole) SendRequest(endpoint string, contentType string, method string,
	content []byte, reqMod func(*http.Request)) (string, *http.Response, error) {

	var bodyStr string

	resp, err := c.do(endpoint, contentType, method, content, reqMod)

	if err == nil {
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		bodyStr = strings.Trim(string(body), " \n")
	}

	// Just return the body

	return bodyStr, resp, err
}

/*
do sends a request and returns the response with an open body.
*/
func (c *GripDBConsole) do(endpoint string, contentType string, method string,
	content []byte, reqMod func(*http.Request)) (*http.Response, error) {

	var body io.Reader

	if content != nil {
		body = bytes.NewBuffer(content)
	}

	req, err := http.NewRequest(method, c.url+endpoint, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", contentType)

	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}

	if reqMod != nil {
		reqMod(req)
	}

	return http.DefaultClient.Do(req)
}

// Util functions
// ==============

/*
newCommError creates a communication error from an error response. The
message of a JSON error body is used if possible.
*/
func newCommError(method, endpoint, body string, resp *http.Response) error {
	var er api.ErrorResponse

	msg := body

	if err := json.Unmarshal([]byte(body), &er); err == nil && er.Error != nil {
		msg = fmt.Sprintf("%v (%v)", er.Error.Message, er.Error.Kind)
	}

	return &CommError{
		fmt.Errorf("%s request to %s failed: %s", method, endpoint, msg),
		resp,
	}
}

/*
cmdStartsWithKeyword checks if a given command line starts with a given list
of keywords.
*/
func cmdStartsWithKeyword(cmd string, keywords []string) bool {
	ss := strings.Fields(strings.ToLower(cmd))

	if len(ss) > 0 {
		firstCmd := strings.ToLower(ss[0])

		for _, k := range keywords {
			if k == firstCmd || strings.HasPrefix(firstCmd, k) {
				return true
			}
		}
	}

	return false
}
