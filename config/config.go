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
Package config contains the configuration of GripDB.
*/
package config

import (
	"fmt"
	"strconv"
	"strings"

	"devt.de/krotik/common/errorutil"
	"devt.de/krotik/common/fileutil"
)

// Global variables
// ================

/*
ProductVersion is the current version of GripDB
*/
const ProductVersion = "0.9.0"

/*
DefaultConfigFile is the default config file which will be used to configure GripDB
*/
var DefaultConfigFile = "gripdb.config.json"

/*
Known configuration options for GripDB
*/
const (
	HTTPHost                  = "HTTPHost"
	HTTPPort                  = "HTTPPort"
	LockFile                  = "LockFile"
	EnableAccessControl       = "EnableAccessControl"
	EnableMetrics             = "EnableMetrics"
	LocationCredentials       = "LocationCredentials"
	LocationPolicy            = "LocationPolicy"
	LocationJobs              = "LocationJobs"
	JobWorkers                = "JobWorkers"
	PipelineBufferSize        = "PipelineBufferSize"
	StorageRetries            = "StorageRetries"
	QueryTimeoutSeconds       = "QueryTimeoutSeconds"
	QueryLogHistory           = "QueryLogHistory"
	GripperConfigs            = "GripperConfigs"
	GripperCacheMaxAgeSeconds = "GripperCacheMaxAgeSeconds"
)

/*
DefaultConfig is the defaut configuration
*/
var DefaultConfig = map[string]interface{}{
	HTTPHost:                  "localhost",
	HTTPPort:                  "8201",
	LockFile:                  "gripdb.lck",
	EnableAccessControl:       false,
	EnableMetrics:             true,
	LocationCredentials:       "credentials.json",
	LocationPolicy:            "policy.json",
	LocationJobs:              "",
	JobWorkers:                4,
	PipelineBufferSize:        100,
	StorageRetries:            3,
	QueryTimeoutSeconds:       0,
	QueryLogHistory:           100,
	GripperConfigs:            "",
	GripperCacheMaxAgeSeconds: 300,
}

/*
Config is the actual config which is used
*/
var Config map[string]interface{}

/*
LoadConfigFile loads a given config file. If the config file does not exist it is
created with the default options.
*/
func LoadConfigFile(configfile string) error {
	var err error

	Config, err = fileutil.LoadConfig(configfile, DefaultConfig)

	return err
}

/*
LoadDefaultConfig loads the default configuration.
*/
func LoadDefaultConfig() {
	data := make(map[string]interface{})
	for k, v := range DefaultConfig {
		data[k] = v
	}

	Config = data
}

// Helper functions
// ================

/*
Str reads a config value as a string value.
*/
func Str(key string) string {
	return fmt.Sprint(Config[key])
}

/*
Int reads a config value as an int value.
*/
func Int(key string) int64 {
	ret, err := strconv.ParseInt(fmt.Sprint(Config[key]), 10, 64)

	errorutil.AssertTrue(err == nil,
		fmt.Sprintf("Could not parse config key %v: %v", key, err))

	return ret
}

/*
Bool reads a config value as a boolean value.
*/
func Bool(key string) bool {
	ret, err := strconv.ParseBool(fmt.Sprint(Config[key]))

	errorutil.AssertTrue(err == nil,
		fmt.Sprintf("Could not parse config key %v: %v", key, err))

	return ret
}

/*
GripperMappings reads the configured gripper mappings. The config value is a
comma separated list of name=path pairs (a JSON list of such pairs is also
accepted).
*/
func GripperMappings() (map[string]string, error) {
	var entries []string

	ret := make(map[string]string)

	switch val := Config[GripperConfigs].(type) {
	case nil:
		return ret, nil
	case []interface{}:
		for _, e := range val {
			entries = append(entries, fmt.Sprint(e))
		}
	default:
		entries = strings.Split(fmt.Sprint(val), ",")
	}

	for _, e := range entries {
		if e = strings.TrimSpace(e); e == "" {
			continue
		}

		kv := strings.SplitN(e, "=", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			return nil, fmt.Errorf("Invalid gripper mapping %v (expected name=path)", e)
		}

		ret[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}

	return ret, nil
}
