/*
 * GripDB
 *
 * Copyright 2016 Matthias Ladkau. All rights reserved.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package config

import (
	"fmt"
	"os"
	"testing"
)

const testconf = "testconfig"

func TestConfig(t *testing.T) {

	Config = nil

	os.WriteFile(testconf, []byte(`{
    "EnableAccessControl": true,
    "GripperConfigs": "swapi=swapi.yaml, other = other.yaml"
}`), 0644)

	defer func() {
		if err := os.Remove(testconf); err != nil {
			fmt.Print("Could not remove test config file:", err.Error())
		}
	}()

	if err := LoadConfigFile(testconf); err != nil {
		t.Error(err)
		return
	}

	if res := Str("EnableAccessControl"); res != "true" {
		t.Error("Unexpected result:", res)
		return
	}

	if res := Bool("EnableAccessControl"); !res {
		t.Error("Unexpected result:", res)
		return
	}

	if res := Int(PipelineBufferSize); res != 100 {
		t.Error("Unexpected result:", res)
		return
	}

	if res, err := GripperMappings(); err != nil || fmt.Sprint(res) != "map[other:other.yaml swapi:swapi.yaml]" {
		t.Error("Unexpected result:", res, err)
		return
	}

	LoadDefaultConfig()

	if res := Str("EnableAccessControl"); res != "false" {
		t.Error("Unexpected result:", res)
		return
	}

	if res, err := GripperMappings(); err != nil || len(res) != 0 {
		t.Error("Unexpected result:", res, err)
		return
	}

	Config[HTTPPort] = "123"

	if res := Int(HTTPPort); fmt.Sprint(res) == DefaultConfig[HTTPPort] {
		t.Error("Unexpected result:", res)
		return
	}

	Config[GripperConfigs] = []interface{}{"a=b.yaml", "broken"}

	if _, err := GripperMappings(); err == nil || err.Error() != "Invalid gripper mapping broken (expected name=path)" {
		t.Error("Unexpected result:", err)
		return
	}
}
