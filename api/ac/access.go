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
Package ac contains management code for access control.

Users authenticate either with Basic authentication (user and password) or
with a Bearer token. Both are read from a credential file. Access to graphs
is controlled by a policy file which contains a list of rules:

	{"subject" : <user>, "object" : <graph>, "action" : <read|write|query|admin>}

Subject and object may contain glob patterns. Both files are monitored and
reloaded once they change.
*/
package ac

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"devt.de/krotik/common/fileutil"
	"devt.de/krotik/common/stringutil"
	"devt.de/krotik/gripdb/api"
	"devt.de/krotik/gripdb/graph/util"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"
)

// Code and datastructures relating to access control
// ==================================================

/*
PublicAccessControlEndpointMap contains endpoints which should be publically
available when access control is used
*/
var PublicAccessControlEndpointMap = map[string]api.RestEndpointInst{
	EndpointWhoAmI: WhoAmIEndpointInst,
}

/*
LogAccess is used to log access requests
*/
var LogAccess = func(v ...interface{}) {
	logrus.WithField("component", "access").Info(v...)
}

/*
ACL is the global AccessControlLists object which should be used to check
user access rights.
*/
var ACL *AccessControlLists

/*
AuthHandler is a wrapper object which has a HandleFunc similar to http.HandleFunc.
The HandleFunc of this object should be used for all endpoint which should check
for authentication and authorization.
*/
var AuthHandler *AuthHandleFuncWrapper

/*
DefaultCredentials is the default credential file for GripDB
*/
var DefaultCredentials = []byte(`
/*
Credential file for GripDB. Each user can authenticate with a password
(Basic authentication) or a token (Bearer authentication).

This file is monitored by the server - any changes to this file are picked up
by the server immediately.
*/
[
  {
    "user"     : "grip",
    "password" : "grip"
  }
]
`[1:])

/*
DefaultPolicy is the default policy file for GripDB
*/
var DefaultPolicy = []byte(`
/*
Policy file for GripDB. Each rule grants a subject (user) an action on
an object (graph). Actions are read, write, query and admin. Subjects and
objects can be glob patterns.

Object "*" also covers requests which are not specific to a single graph.
*/
[
  {
    "subject" : "grip",
    "object"  : "*",
    "action"  : "*"
  }
]
`[1:])

// Access request types
//
const (
	READ  = "read"
	WRITE = "write"
	QUERY = "query"
	ADMIN = "admin"
)

// Access request results
//
const (
	GRANTED = "granted"
	DENIED  = "denied"
)

/*
Credential are the authentication details of a single user. Authorization
is an optional precomputed Authorization header which clients can use.
*/
type Credential struct {
	User          string `json:"user"`
	Password      string `json:"password,omitempty"`
	Token         string `json:"token,omitempty"`
	Authorization string `json:"authorization,omitempty"`
}

/*
Policy is a single access rule.
*/
type Policy struct {
	Subject string `json:"subject"`
	Object  string `json:"object"`
	Action  string `json:"action"`
}

/*
String returns a string representation of this policy.
*/
func (p *Policy) String() string {
	return fmt.Sprintf("%v may %v %v", p.Subject, p.Action, p.Object)
}

/*
matches checks if this policy grants a request.
*/
func (p *Policy) matches(user, object, action string) bool {
	if p.Action != "*" && p.Action != action {
		return false
	}

	ok, _ := doublestar.Match(p.Subject, user)
	if ok {
		ok, _ = doublestar.Match(p.Object, object)
	}

	return ok
}

/*
AccessControlLists store the credentials of all users and the policies
which grant them access.
*/
type AccessControlLists struct {
	credentials map[string]*Credential // Credentials by user
	tokens      map[string]string      // Token to user lookup
	policies    []*Policy              // List of policies
	lock        *sync.RWMutex          // Lock for lookups and reloads
}

/*
NewAccessControlLists creates a new empty AccessControlLists object.
*/
func NewAccessControlLists() *AccessControlLists {
	return &AccessControlLists{make(map[string]*Credential), make(map[string]string),
		nil, &sync.RWMutex{}}
}

/*
SetCredentials replaces all known credentials.
*/
func (a *AccessControlLists) SetCredentials(creds []*Credential) error {
	credentials := make(map[string]*Credential)
	tokens := make(map[string]string)

	for i, c := range creds {
		if c.User == "" {
			return fmt.Errorf("Credential %v has no user", i)
		} else if _, ok := credentials[c.User]; ok {
			return fmt.Errorf("Duplicate credential for user %v", c.User)
		}

		credentials[c.User] = c

		if c.Token != "" {
			if u, ok := tokens[c.Token]; ok {
				return fmt.Errorf("Token of user %v is also used by user %v", c.User, u)
			}
			tokens[c.Token] = c.User
		}
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	a.credentials = credentials
	a.tokens = tokens

	return nil
}

/*
SetPolicies replaces all policies.
*/
func (a *AccessControlLists) SetPolicies(policies []*Policy) error {

	for i, p := range policies {
		if p.Subject == "" || p.Object == "" || p.Action == "" {
			return fmt.Errorf("Policy %v is incomplete", i)
		}

		switch p.Action {
		case READ, WRITE, QUERY, ADMIN, "*":
		default:
			return fmt.Errorf("Policy %v has an unknown action: %v", i, p.Action)
		}

		if !doublestar.ValidatePattern(p.Subject) || !doublestar.ValidatePattern(p.Object) {
			return fmt.Errorf("Policy %v contains an invalid pattern", i)
		}
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	a.policies = policies

	return nil
}

/*
CheckPassword checks the password of a user.
*/
func (a *AccessControlLists) CheckPassword(user, pass string) bool {
	a.lock.RLock()
	defer a.lock.RUnlock()

	c, ok := a.credentials[user]

	return ok && c.Password != "" && c.Password == pass
}

/*
CheckToken checks a bearer token and returns the user it belongs to.
*/
func (a *AccessControlLists) CheckToken(token string) (string, bool) {
	a.lock.RLock()
	defer a.lock.RUnlock()

	user, ok := a.tokens[token]

	return user, ok
}

/*
Credential returns the credential of a user.
*/
func (a *AccessControlLists) Credential(user string) (*Credential, bool) {
	a.lock.RLock()
	defer a.lock.RUnlock()

	c, ok := a.credentials[user]

	return c, ok
}

/*
IsPermitted checks if a user may execute an action on an object. Returns
also the policy which granted access.
*/
func (a *AccessControlLists) IsPermitted(user, object, action string) (bool, string) {
	a.lock.RLock()
	defer a.lock.RUnlock()

	for _, p := range a.policies {
		if p.matches(user, object, action) {
			return true, p.String()
		}
	}

	return false, "No rule which grants access was found"
}

/*
CheckHTTPRequest checks the request of a given user to a resource.
*/
func (a *AccessControlLists) CheckHTTPRequest(w http.ResponseWriter, r *http.Request, user string) bool {
	var result = DENIED

	object, action := RequestAction(r)

	res, detail := a.IsPermitted(user, object, action)
	if res {
		result = GRANTED
	}

	// Log the result

	LogAccess(fmt.Sprintf("User %v requested %v access to %v - %v (%v)",
		user, action, object, result, detail))

	if !res {
		api.WriteErrorStatus(w, util.NewGraphError(util.ErrUnauthorized,
			fmt.Sprintf("Requested %v access to %v was denied", action, object)),
			http.StatusForbidden)
	}

	return res
}

/*
RequestAction determines the object (graph) and action of a request. Requests
which are not specific to one graph have the object "*".
*/
func RequestAction(r *http.Request) (string, string) {
	const graphPrefix = api.APIRoot + "/v1/graph"

	path := r.URL.Path

	if !strings.HasPrefix(path, graphPrefix) {
		return "*", READ
	}

	resources := strings.Split(strings.Trim(strings.TrimPrefix(path, graphPrefix), "/"), "/")
	if resources[0] == "" {
		resources = nil
	}

	isGET := r.Method == http.MethodGet || r.Method == http.MethodHead

	if len(resources) == 0 {

		// Listing graphs or loading a bulk of elements into several graphs

		if isGET {
			return "*", READ
		}

		return "*", WRITE
	}

	graph := resources[0]

	if len(resources) == 1 {
		if isGET {
			return graph, READ
		}
		return graph, ADMIN
	}

	switch resources[1] {
	case "query", "job", "job-search":
		return graph, QUERY

	case "index":
		if isGET {
			return graph, READ
		}
		return graph, ADMIN

	case "export":
		return graph, READ
	}

	if isGET {
		return graph, READ
	}

	return graph, WRITE
}

// Loading of credential and policy files
// ======================================

/*
LoadCredentials loads credentials from a given file. The file is created
with default content if it does not exist.
*/
func LoadCredentials(filename string) ([]*Credential, error) {
	var creds []*Credential

	err := loadJSONFile(filename, DefaultCredentials, &creds)

	return creds, err
}

/*
LoadPolicies loads policies from a given file. The file is created with
default content if it does not exist.
*/
func LoadPolicies(filename string) ([]*Policy, error) {
	var policies []*Policy

	err := loadJSONFile(filename, DefaultPolicy, &policies)

	return policies, err
}

/*
Load (re)loads credentials and policies from the given files.
*/
func (a *AccessControlLists) Load(credentialFile, policyFile string) error {
	creds, err := LoadCredentials(credentialFile)

	if err == nil {
		if err = a.SetCredentials(creds); err == nil {

			var policies []*Policy

			if policies, err = LoadPolicies(policyFile); err == nil {
				err = a.SetPolicies(policies)
			}
		}
	}

	return err
}

/*
loadJSONFile reads a JSON file which may contain C style comments.
*/
func loadJSONFile(filename string, defaultContent []byte, v interface{}) error {

	if ok, _ := fileutil.PathExists(filename); !ok {
		if err := os.WriteFile(filename, defaultContent, 0600); err != nil {
			return err
		}
	}

	content, err := os.ReadFile(filename)

	if err == nil {
		if err = json.Unmarshal(stringutil.StripCStyleComments(content), v); err != nil {
			err = fmt.Errorf("Could not parse %v: %v", filename, err)
		}
	}

	return err
}
