/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package ac

import (
	"encoding/base64"
	"net/http"
	"strings"

	"devt.de/krotik/common/httputil/auth"
	"devt.de/krotik/gripdb/api"
	"devt.de/krotik/gripdb/graph/util"
)

/*
Realm is the authentication realm
*/
var Realm = "GripDB"

/*
AuthHandleFuncWrapper datastructure. Wrapper for HandleFunc to add
Basic and Bearer authentication to all added endpoints.
*/
type AuthHandleFuncWrapper struct {
	origHandleFunc func(pattern string, handler func(http.ResponseWriter, *http.Request))
	authFunc       func(user, pass string) bool
	tokenFunc      func(token string) (string, bool)
	accessFunc     func(http.ResponseWriter, *http.Request, string) bool

	// Callbacks

	CallbackUnauthorized func(w http.ResponseWriter, r *http.Request)
}

/*
NewAuthHandleFuncWrapper creates a new HandleFunc wrapper.
*/
func NewAuthHandleFuncWrapper(origHandleFunc func(pattern string,
	handler func(http.ResponseWriter, *http.Request))) *AuthHandleFuncWrapper {

	return &AuthHandleFuncWrapper{
		origHandleFunc,
		nil,
		nil,
		nil,
		func(w http.ResponseWriter, r *http.Request) {
			LogAccess("Unauthorized request to ", r.URL.Path, " from ", r.RemoteAddr)

			w.Header().Set("WWW-Authenticate", `Basic realm="`+Realm+`"`)
			api.WriteError(w, util.NewGraphError(util.ErrUnauthorized, "Valid credentials required"))
		},
	}
}

/*
NewACLAuthHandleFuncWrapper creates a new HandleFunc wrapper which
authenticates and authorizes requests with a given AccessControlLists object.
*/
func NewACLAuthHandleFuncWrapper(origHandleFunc func(pattern string,
	handler func(http.ResponseWriter, *http.Request)), acl *AccessControlLists) *AuthHandleFuncWrapper {

	ah := NewAuthHandleFuncWrapper(origHandleFunc)

	ah.SetAuthFunc(acl.CheckPassword)
	ah.SetTokenFunc(acl.CheckToken)
	ah.SetAccessFunc(acl.CheckHTTPRequest)

	return ah
}

/*
SetAuthFunc gives an authentication function which can be used by the wrapper
to authenticate users.
*/
func (aw *AuthHandleFuncWrapper) SetAuthFunc(authFunc func(user, pass string) bool) {
	aw.authFunc = authFunc
}

/*
SetTokenFunc gives a function which resolves bearer tokens to users.
*/
func (aw *AuthHandleFuncWrapper) SetTokenFunc(tokenFunc func(token string) (string, bool)) {
	aw.tokenFunc = tokenFunc
}

/*
SetAccessFunc sets an access function which can be used by the wrapper to
check the user access rights.
*/
func (aw *AuthHandleFuncWrapper) SetAccessFunc(accessFunc func(http.ResponseWriter, *http.Request, string) bool) {
	aw.accessFunc = accessFunc
}

/*
HandleFunc is the new handle func which wraps an original handle functions to do an authentication check.
*/
func (aw *AuthHandleFuncWrapper) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {

	aw.origHandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {

		if name, res := aw.CheckAuth(r); res {

			// Check authorization

			if aw.accessFunc == nil || aw.accessFunc(w, r, name) {

				// Handle the request

				handler(w, api.WithUser(r, name))
			}

			return
		}

		aw.CallbackUnauthorized(w, r)
	})
}

/*
CheckAuth checks the user authentication of an incomming request. Returns
if the authentication is correct and the given username.
*/
func (aw *AuthHandleFuncWrapper) CheckAuth(r *http.Request) (string, bool) {
	var user string
	var ok bool

	s := strings.SplitN(r.Header.Get("Authorization"), " ", 2)

	if len(s) == 2 {
		switch strings.ToLower(s[0]) {

		case "basic":
			if b, err := base64.StdEncoding.DecodeString(s[1]); err == nil {

				if pair := strings.SplitN(string(b), ":", 2); len(pair) == 2 {

					user = pair[0]
					pass := pair[1]

					ok = aw.authFunc != nil && aw.authFunc(user, pass)
				}
			}

		case "bearer":
			if aw.tokenFunc != nil {
				user, ok = aw.tokenFunc(strings.TrimSpace(s[1]))
			}
		}
	}

	return user, ok
}

// Make sure the wrapper can be used wherever the common auth wrappers are used
var _ auth.HandleFuncWrapper = &AuthHandleFuncWrapper{}

/*
AuthorizationHeader returns the value of an Authorization header for a
given credential. A precomputed header takes precedence over a token which
takes precedence over a password.
*/
func AuthorizationHeader(c *Credential) string {

	if c.Authorization != "" {
		return c.Authorization
	} else if c.Token != "" {
		return "Bearer " + c.Token
	}

	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.User+":"+c.Password))
}
