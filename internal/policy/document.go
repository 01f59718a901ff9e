// Package policy models IAM-style policy documents and measures how far
// they stray from least privilege.
package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// StringList decodes an IAM field that may be a single string or a list.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("policy: expected string or list of strings: %w", err)
	}
	*s = many
	return nil
}

func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*s = StringList{value.Value}
		return nil
	}
	var many []string
	if err := value.Decode(&many); err != nil {
		return fmt.Errorf("policy: expected string or list of strings: %w", err)
	}
	*s = many
	return nil
}

// Statement is one policy statement.
type Statement struct {
	Sid      string     `json:"Sid,omitempty" yaml:"Sid,omitempty"`
	Effect   string     `json:"Effect" yaml:"Effect"`
	Action   StringList `json:"Action,omitempty" yaml:"Action,omitempty"`
	Resource StringList `json:"Resource,omitempty" yaml:"Resource,omitempty"`
}

// Allows reports whether the statement grants access.
func (s Statement) Allows() bool {
	return strings.EqualFold(s.Effect, "Allow")
}

// Statements decodes a Statement field that may be a single object or a list.
type Statements []Statement

func (s *Statements) UnmarshalJSON(data []byte) error {
	var one Statement
	if len(data) > 0 && data[0] == '{' {
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*s = Statements{one}
		return nil
	}
	var many []Statement
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

func (s *Statements) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		var one Statement
		if err := value.Decode(&one); err != nil {
			return err
		}
		*s = Statements{one}
		return nil
	}
	var many []Statement
	if err := value.Decode(&many); err != nil {
		return err
	}
	*s = many
	return nil
}

// Document is an IAM policy document.
type Document struct {
	Name      string     `json:"-" yaml:"name,omitempty"`
	Version   string     `json:"Version,omitempty" yaml:"Version,omitempty"`
	Statement Statements `json:"Statement" yaml:"Statement"`
}

// Parse decodes a JSON policy document.
func Parse(name string, data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return Document{}, fmt.Errorf("policy %s: %w", name, err)
	}
	d.Name = name
	return d, nil
}
