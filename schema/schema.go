package schema

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/outofforest/snapframe/types"
)

// Attribute describes node attribute.
type Attribute struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Slots uint16 `yaml:"slots,omitempty"`
}

// Node describes node type.
type Node struct {
	Name       string      `yaml:"name"`
	Number     uint16      `yaml:"number"`
	Attributes []Attribute `yaml:"attributes"`
}

// Schema describes the whole frame.
type Schema struct {
	Snapshots uint64 `yaml:"snapshots,omitempty"`
	Nodes     []Node `yaml:"nodes"`
}

// Load loads schema from file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing schema file %s failed", path)
	}
	return s, nil
}

// Parse parses and validates schema document. Unknown fields are rejected.
func Parse(data []byte) (*Schema, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	s := &Schema{}
	if err := decoder.Decode(s); err != nil {
		return nil, errors.Wrapf(types.ErrInvalidSchema, "decoding yaml failed: %s", err)
	}
	for i := range s.Nodes {
		for j := range s.Nodes[i].Attributes {
			if s.Nodes[i].Attributes[j].Slots == 0 {
				s.Nodes[i].Attributes[j].Slots = 1
			}
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Marshal encodes schema to yaml document.
func (s *Schema) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(s)
	return data, errors.WithStack(err)
}

// Validate verifies that names are unique and type codes are known.
func (s *Schema) Validate() error {
	if dup := lo.FindDuplicates(lo.Map(s.Nodes, func(n Node, _ int) string { return n.Name })); len(dup) > 0 {
		return errors.Wrapf(types.ErrInvalidSchema, "node %q is defined more than once", dup[0])
	}
	for _, n := range s.Nodes {
		if n.Name == "" {
			return errors.Wrap(types.ErrInvalidSchema, "node name is empty")
		}
		names := lo.Map(n.Attributes, func(a Attribute, _ int) string { return a.Name })
		if dup := lo.FindDuplicates(names); len(dup) > 0 {
			return errors.Wrapf(types.ErrInvalidSchema, "attribute %q is defined more than once in node %q", dup[0],
				n.Name)
		}
		for _, a := range n.Attributes {
			if a.Name == "" {
				return errors.Wrapf(types.ErrInvalidSchema, "attribute name is empty in node %q", n.Name)
			}
			if _, err := types.ParseAttrType(a.Type); err != nil {
				return errors.Wrapf(err, "attribute %q of node %q", a.Name, n.Name)
			}
			if a.Slots == 0 {
				return errors.Wrapf(types.ErrInvalidSchema, "attribute %q of node %q has no slots", a.Name, n.Name)
			}
		}
	}
	return nil
}
