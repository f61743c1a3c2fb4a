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
Package gripper projects a read-only graph over external row sources.

A mapping file declares which collections of which row source provide
vertices and how edges are derived from them. Row sources are gRPC services
(see TableServer) which serve collections of JSON rows.

Example mapping:

	sources:
	  tableserver: {host: "localhost:50051"}
	vertices:
	  "Character:":
	    source: tableserver
	    collection: characters
	    label: Character
	edges:
	  "starships:":
	    fromVertex: "Character:"
	    toVertex: "Starship:"
	    label: starships
	    fieldToField: {fromField: $.starship_id, toField: $.id}

Vertex gids are the vertex prefix followed by the row id. Edge gids have the
form (<from gid>)--<label>->(<to gid>).
*/
package gripper

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

/*
Config is a graph mapping.
*/
type Config struct {
	Sources  map[string]SourceConfig `yaml:"sources"`
	Vertices map[string]VertexConfig `yaml:"vertices"`
	Edges    map[string]EdgeConfig   `yaml:"edges"`
}

/*
SourceConfig is the address of a row source.
*/
type SourceConfig struct {
	Host string `yaml:"host"`
}

/*
VertexConfig maps a collection to vertices.
*/
type VertexConfig struct {
	Source     string `yaml:"source"`
	Collection string `yaml:"collection"`
	Label      string `yaml:"label"`
}

/*
FieldToFieldConfig joins two vertex collections on a pair of fields.
*/
type FieldToFieldConfig struct {
	FromField string `yaml:"fromField"`
	ToField   string `yaml:"toField"`
}

/*
EdgeTableConfig derives edges from the rows of a separate collection.
*/
type EdgeTableConfig struct {
	Source     string `yaml:"source"`
	Collection string `yaml:"collection"`
	FromField  string `yaml:"fromField"`
	ToField    string `yaml:"toField"`
}

/*
EdgeConfig maps edges between two vertex prefixes. Exactly one lookup
method must be given.
*/
type EdgeConfig struct {
	FromVertex   string              `yaml:"fromVertex"`
	ToVertex     string              `yaml:"toVertex"`
	Label        string              `yaml:"label"`
	FieldToField *FieldToFieldConfig `yaml:"fieldToField"`
	EdgeTable    *EdgeTableConfig    `yaml:"edgeTable"`
}

/*
LoadConfig reads a mapping file.
*/
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Could not read mapping %v: %v", path, err)
	}

	conf, err := ParseConfig(b)
	if err != nil {
		return nil, fmt.Errorf("Could not parse mapping %v: %v", path, err)
	}

	return conf, nil
}

/*
ParseConfig parses a YAML mapping and checks its structure.
*/
func ParseConfig(b []byte) (*Config, error) {
	var conf Config

	if err := yaml.Unmarshal(b, &conf); err != nil {
		return nil, err
	}

	return &conf, conf.Validate()
}

/*
Validate checks the references and field paths of a mapping. It does not
contact any row source.
*/
func (c *Config) Validate() error {
	checkSource := func(what, source string) error {
		if _, ok := c.Sources[source]; !ok {
			return fmt.Errorf("%v refers to unknown source: %v", what, source)
		}
		return nil
	}

	for prefix, v := range c.Vertices {
		if prefix == "" {
			return fmt.Errorf("Vertex prefix must not be empty")
		}
		if err := checkSource("Vertex "+prefix, v.Source); err != nil {
			return err
		}
		if v.Collection == "" || v.Label == "" {
			return fmt.Errorf("Vertex %v needs a collection and a label", prefix)
		}
	}

	for prefix, e := range c.Edges {
		if _, ok := c.Vertices[e.FromVertex]; !ok {
			return fmt.Errorf("Edge %v: fromVertex not found: %v", prefix, e.FromVertex)
		}
		if _, ok := c.Vertices[e.ToVertex]; !ok {
			return fmt.Errorf("Edge %v: toVertex not found: %v", prefix, e.ToVertex)
		}
		if e.Label == "" {
			return fmt.Errorf("Edge %v needs a label", prefix)
		}

		var from, to string

		switch {
		case e.FieldToField != nil && e.EdgeTable != nil:
			return fmt.Errorf("Edge %v declares more than one lookup method", prefix)

		case e.FieldToField != nil:
			from, to = e.FieldToField.FromField, e.FieldToField.ToField

		case e.EdgeTable != nil:
			if err := checkSource("Edge "+prefix, e.EdgeTable.Source); err != nil {
				return err
			}
			if e.EdgeTable.Collection == "" {
				return fmt.Errorf("Edge %v needs an edge table collection", prefix)
			}
			from, to = e.EdgeTable.FromField, e.EdgeTable.ToField

		default:
			return fmt.Errorf("Edge %v does not declare a lookup method", prefix)
		}

		if !strings.HasPrefix(from, "$.") {
			return fmt.Errorf("Edge %v: 'from' field does not start with $.: %v", prefix, from)
		}
		if !strings.HasPrefix(to, "$.") {
			return fmt.Errorf("Edge %v: 'to' field does not start with $.: %v", prefix, to)
		}
	}

	return nil
}
