/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/slotcast/internal/models"
)

// ParseResources decodes a resource catalogue from YAML or JSON. Two forms
// are accepted: a sequence of resources carrying their own id, or a
// mapping from id to resource. In the mapping form the key is the id.
func ParseResources(data []byte) (map[string]models.Resource, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse resources: %w", err)
	}
	out := make(map[string]models.Resource)
	if len(doc.Content) == 0 {
		return out, nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		for i, item := range root.Content {
			var res models.Resource
			if err := item.Decode(&res); err != nil {
				return nil, fmt.Errorf("resource %d: %w", i, err)
			}
			if res.ID == "" {
				return nil, fmt.Errorf("resource %d: missing id", i)
			}
			if _, dup := out[res.ID]; dup {
				return nil, fmt.Errorf("resource %q: duplicate id", res.ID)
			}
			out[res.ID] = res
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			id := root.Content[i].Value
			var res models.Resource
			if err := root.Content[i+1].Decode(&res); err != nil {
				return nil, fmt.Errorf("resource %q: %w", id, err)
			}
			if _, dup := out[id]; dup {
				return nil, fmt.Errorf("resource %q: duplicate id", id)
			}
			res.ID = id
			out[id] = res
		}
	default:
		return nil, fmt.Errorf("parse resources: expected a list or mapping at line %d", root.Line)
	}
	return out, nil
}
