package config

import (
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Document Model
// =============================================================================

// Reserved top-level keys that never name an entity.
const (
	KeyVariables = "variables"
	KeyModules   = "modules"
	KeyIncludes  = "includes"
)

// Document is a deployment document after include merging. Entity order
// follows the document, which downstream components rely on.
type Document struct {
	Variables []VariableDef
	Modules   []string
	Includes  []string
	Entities  []NamedEntity
}

// NamedEntity pairs an entity with its top-level name.
type NamedEntity struct {
	Name   string
	Entity *Entity
}

// Entity is one top-level entry of a deployment document. The reserved
// fields are decoded eagerly, the full mapping stays available as Node so
// the owning module can decode its own schema from it.
type Entity struct {
	Type         string
	Only         Restriction
	Except       Restriction
	Dependencies []string
	Node         *yaml.Node
}

// =============================================================================
// Document Decoding
// =============================================================================

// ParseDocument decodes the root mapping of a deployment document. The node
// may be a document node or the mapping itself.
func ParseDocument(node *yaml.Node) (*Document, error) {
	mapping, err := MappingNode(node)
	if err != nil {
		return nil, err
	}

	doc := &Document{}
	if mapping == nil {
		return doc, nil
	}

	for i := 0; i < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		value := mapping.Content[i+1]

		switch key {
		case KeyVariables:
			defs, err := decodeVariables(value)
			if err != nil {
				return nil, err
			}
			doc.Variables = defs
		case KeyModules:
			if err := decodeStringList(key, value, &doc.Modules); err != nil {
				return nil, err
			}
		case KeyIncludes:
			if err := decodeStringList(key, value, &doc.Includes); err != nil {
				return nil, err
			}
		default:
			entity, err := DecodeEntity(key, value)
			if err != nil {
				return nil, err
			}
			doc.Entities = append(doc.Entities, NamedEntity{Name: key, Entity: entity})
		}
	}

	return doc, nil
}

// MappingNode unwraps a document node down to its root mapping. A nil or
// empty node yields nil, any other non-mapping root is an error.
func MappingNode(node *yaml.Node) (*yaml.Node, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil, nil
		}
		node = node.Content[0]
	}
	if node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, NewError(ErrNotMapping, "config root must be a mapping, got %s", kindName(node))
	}
	return node, nil
}

// DecodeEntity decodes the reserved fields of an entity and retains the full
// mapping for the owning module.
func DecodeEntity(name string, node *yaml.Node) (*Entity, error) {
	if node.Kind != yaml.MappingNode {
		return nil, NewError(ErrEntityNotMapping, "entity %s must be a mapping, got %s", name, kindName(node))
	}

	entity := &Entity{Node: node}
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]

		switch key {
		case "type":
			if err := value.Decode(&entity.Type); err != nil {
				return nil, NewError(ErrInvalidYAML, "entity %s has an invalid type field", name)
			}
		case "only":
			restriction, err := decodeRestriction(name, key, value)
			if err != nil {
				return nil, err
			}
			entity.Only = restriction
		case "except":
			restriction, err := decodeRestriction(name, key, value)
			if err != nil {
				return nil, err
			}
			entity.Except = restriction
		case "dependencies":
			if err := decodeStringList(name+".dependencies", value, &entity.Dependencies); err != nil {
				return nil, err
			}
		}
	}

	return entity, nil
}

// EntityFrom builds an Entity from any YAML-marshalable value. Preprocessors
// use it to synthesize entities that go through the regular parse path.
func EntityFrom(name string, v any) (*Entity, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, NewError(ErrInvalidYAML, "could not build entity %s: %v", name, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewError(ErrInvalidYAML, "could not build entity %s: %v", name, err)
	}
	mapping, err := MappingNode(&doc)
	if err != nil || mapping == nil {
		return nil, NewError(ErrEntityNotMapping, "entity %s must be a mapping", name)
	}
	return DecodeEntity(name, mapping)
}

// =============================================================================
// Field Decoding
// =============================================================================

func decodeVariables(node *yaml.Node) ([]VariableDef, error) {
	if node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, NewError(ErrInvalidYAML, "variables must be a mapping, got %s", kindName(node))
	}

	defs := make([]VariableDef, 0, len(node.Content)/2)
	for i := 0; i < len(node.Content); i += 2 {
		def, err := decodeVariableDef(node.Content[i].Value, node.Content[i+1])
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func decodeVariableDef(name string, node *yaml.Node) (VariableDef, error) {
	def := VariableDef{Name: name}
	if node.Tag == "!!null" {
		return def, nil
	}
	if node.Kind != yaml.MappingNode {
		return def, NewError(ErrInvalidYAML, "variable %s must be a mapping, got %s", name, kindName(node))
	}

	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]

		switch key {
		case "from":
			text, ok, err := scalarString(value)
			if err != nil {
				return def, NewError(ErrInvalidYAML, "variable %s has a non-scalar from field", name)
			}
			if ok {
				def.From = text
			}
		case "default":
			text, ok, err := scalarString(value)
			if err != nil {
				return def, NewError(ErrInvalidYAML, "variable %s has a non-scalar default", name)
			}
			if ok {
				def.Default = &text
			}
		case "required":
			if err := value.Decode(&def.Required); err != nil {
				return def, NewError(ErrInvalidYAML, "variable %s has a non-boolean required field", name)
			}
		case "values":
			if value.Kind != yaml.SequenceNode {
				return def, NewError(ErrInvalidYAML, "variable %s values must be a list", name)
			}
			for _, item := range value.Content {
				text, ok, err := scalarString(item)
				if err != nil || !ok {
					return def, NewError(ErrInvalidYAML, "variable %s values must be scalars", name)
				}
				def.Values = append(def.Values, text)
			}
		}
	}

	return def, nil
}

func decodeRestriction(entity, field string, node *yaml.Node) (Restriction, error) {
	if node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, NewError(ErrInvalidYAML, "entity %s %s must be a mapping, got %s", entity, field, kindName(node))
	}

	restriction := make(Restriction, len(node.Content)/2)
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i].Value
		text, _, err := scalarString(node.Content[i+1])
		if err != nil {
			return nil, NewError(ErrInvalidYAML, "entity %s %s.%s must be a scalar", entity, field, key)
		}
		restriction[key] = text
	}
	return restriction, nil
}

func decodeStringList(field string, node *yaml.Node, out *[]string) error {
	if node.Tag == "!!null" {
		return nil
	}
	if err := node.Decode(out); err != nil {
		return NewError(ErrInvalidYAML, "%s must be a list of strings", field)
	}
	return nil
}

// scalarString coerces a scalar node to its string form. YAML numbers and
// booleans become their textual representation, null counts as absent.
func scalarString(node *yaml.Node) (string, bool, error) {
	if node.Tag == "!!null" {
		return "", false, nil
	}
	if node.Kind != yaml.ScalarNode {
		return "", false, NewError(ErrInvalidYAML, "expected a scalar value")
	}
	return node.Value, true, nil
}

func kindName(node *yaml.Node) string {
	switch node.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "list"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
