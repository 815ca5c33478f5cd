package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseBool accepts the relay's command-line spellings of a boolean.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "t", "y", "1":
		return true, nil
	case "no", "false", "f", "n", "0":
		return false, nil
	}
	return false, fmt.Errorf("boolean value expected, got %q", value)
}

// IDList is a set of sender identifiers. It decodes from YAML sequences
// mixing strings and numbers, and from list literals such as "['123', 456]".
type IDList []string

// Contains reports whether id is in the list.
func (l IDList) Contains(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

func (l *IDList) UnmarshalYAML(value *yaml.Node) error {
	ids, err := idsFromNode(value)
	if err != nil {
		return err
	}
	*l = ids
	return nil
}

// String, Set and Type make IDList usable as a pflag.Value.
func (l *IDList) String() string {
	if l == nil || len(*l) == 0 {
		return "[]"
	}
	quoted := make([]string, len(*l))
	for i, id := range *l {
		quoted[i] = "'" + id + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func (l *IDList) Set(s string) error {
	ids, err := ParseIDList(s)
	if err != nil {
		return err
	}
	*l = ids
	return nil
}

func (l *IDList) Type() string { return "list" }

// ParseIDList parses a list literal: "[]", "['a', 'b']", "[1, 2]",
// "('a', 'b')", "{'a', 'b'}" or a single bare identifier.
func ParseIDList(s string) (IDList, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return IDList{}, nil
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "[" + s[1:len(s)-1] + "]"
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		return nil, fmt.Errorf("invalid id list %q: %w", s, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return IDList{}, nil
	}
	ids, err := idsFromNode(doc.Content[0])
	if err != nil {
		return nil, fmt.Errorf("invalid id list %q: %w", s, err)
	}
	return ids, nil
}

func idsFromNode(n *yaml.Node) (IDList, error) {
	ids := IDList{}
	switch n.Kind {
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: ids must be scalars", item.Line)
			}
			ids = append(ids, item.Value)
		}
	case yaml.MappingNode:
		// A set literal {'a', 'b'} reads as a flow mapping with null values.
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if key.Kind != yaml.ScalarNode || val.ShortTag() != "!!null" {
				return nil, fmt.Errorf("line %d: expected a list of ids", key.Line)
			}
			ids = append(ids, key.Value)
		}
	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" || n.Value == "" {
			return ids, nil
		}
		if strings.HasPrefix(n.Value, "[") || strings.HasPrefix(n.Value, "(") {
			return ParseIDList(n.Value)
		}
		ids = append(ids, n.Value)
	default:
		return nil, fmt.Errorf("line %d: expected a list of ids", n.Line)
	}
	return ids, nil
}
