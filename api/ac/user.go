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
	"net/http"

	"devt.de/krotik/gripdb/api"
)

/*
EndpointWhoAmI is the current user endpoint URL (rooted). Handles whoami/
*/
const EndpointWhoAmI = api.APIRoot + "/whoami/"

/*
WhoAmIEndpointInst creates a new endpoint handler.
*/
func WhoAmIEndpointInst() api.RestEndpointHandler {
	return &whoAmIEndpoint{}
}

/*
Handler object for whoami operations.
*/
type whoAmIEndpoint struct {
	*api.DefaultEndpointHandler
}

/*
HandleGET handles user queries.
*/
func (we *whoAmIEndpoint) HandleGET(w http.ResponseWriter, r *http.Request, resources []string) {
	var u string
	var ok bool

	if AuthHandler != nil {
		u, ok = AuthHandler.CheckAuth(r)
	}

	api.WriteJSON(w, map[string]interface{}{
		"username":  u,
		"logged_in": ok,
	})
}

/*
SwaggerDefs is used to describe the endpoint in swagger.
*/
func (we *whoAmIEndpoint) SwaggerDefs(s map[string]interface{}) {

	s["paths"].(map[string]interface{})["/whoami"] = map[string]interface{}{
		"get": map[string]interface{}{
			"summary":     "Return information about the current user.",
			"description": "Returns the user which is identified by the given credentials.",
			"produces": []string{
				"application/json",
			},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{
					"description": "Current user information.",
					"schema": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"username": map[string]interface{}{
								"description": "Name of the current user.",
								"type":        "string",
							},
							"logged_in": map[string]interface{}{
								"description": "Flag if the given credentials are valid.",
								"type":        "boolean",
							},
						},
					},
				},
				"default": map[string]interface{}{
					"description": "Error response",
					"schema": map[string]interface{}{
						"$ref": "#/definitions/Error",
					},
				},
			},
		},
	}
}
