package properties

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/sardine-ai/go-config-advisor/model"
)

// ParseYAML reads a Spring application.yml. Nested maps are flattened to
// dotted keys and sequences to key[i]. Later documents override earlier ones.
func ParseYAML(name string, data []byte) (*model.PropertySet, error) {
	set := model.NewPropertySet()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc yaml.Node
		err := decoder.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if len(doc.Content) == 0 {
			continue
		}
		root := doc.Content[0]
		switch root.Kind {
		case yaml.MappingNode:
			flatten(set, name, "", root)
		case yaml.ScalarNode:
			if root.Tag == "!!null" {
				continue
			}
			return nil, fmt.Errorf("%s:%d: %w: top level must be a mapping", name, root.Line, ErrInvalidValue)
		default:
			return nil, fmt.Errorf("%s:%d: %w: top level must be a mapping", name, root.Line, ErrInvalidValue)
		}
	}
	return set, nil
}

func flatten(set *model.PropertySet, file, prefix string, node *yaml.Node) {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode, valueNode := node.Content[i], node.Content[i+1]
			if keyNode.Value == "<<" {
				flatten(set, file, prefix, valueNode)
				continue
			}
			flatten(set, file, join(prefix, keyNode.Value), valueNode)
		}
	case yaml.SequenceNode:
		for i, item := range node.Content {
			flatten(set, file, prefix+"["+strconv.Itoa(i)+"]", item)
		}
	case yaml.ScalarNode:
		value := node.Value
		if node.Tag == "!!null" {
			value = ""
		}
		set.Set(CanonicalKey(prefix), value, model.Origin{File: file, Line: node.Line})
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
