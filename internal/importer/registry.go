package importer

import (
	"fmt"
	"sort"
	"sync"
)

// EntityDefinition is one Schema Registry entry.
type EntityDefinition struct {
	Type   EntityType
	Label  string
	Fields []FieldSpec

	// Examples are the two illustrative rows emitted by Template, in
	// Fields order.
	Examples [2][]string
}

// Field returns the spec named name.
func (d EntityDefinition) Field(name string) (FieldSpec, bool) {
	for _, spec := range d.Fields {
		if spec.Name == name {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// RequiredFields returns the required specs in registry order.
func (d EntityDefinition) RequiredFields() []FieldSpec {
	var required []FieldSpec
	for _, spec := range d.Fields {
		if spec.Required {
			required = append(required, spec)
		}
	}
	return required
}

var (
	registry   = make(map[EntityType]EntityDefinition)
	registryMu sync.RWMutex
)

// Register adds an entity definition to the registry.
// Panics if the type is already registered or the definition is malformed.
func Register(def EntityDefinition) {
	if err := checkDefinition(def); err != nil {
		panic(err.Error())
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Type]; exists {
		panic(fmt.Sprintf("entity type already registered: %s", def.Type))
	}

	// The registry owns its copy of the field list.
	def.Fields = append([]FieldSpec(nil), def.Fields...)
	registry[def.Type] = def
}

func checkDefinition(def EntityDefinition) error {
	if def.Type == "" {
		return fmt.Errorf("entity definition has no type")
	}
	if len(def.Fields) == 0 {
		return fmt.Errorf("entity %s has no fields", def.Type)
	}

	seen := make(map[string]bool, len(def.Fields))
	for _, spec := range def.Fields {
		if spec.Name == "" || spec.Label == "" {
			return fmt.Errorf("entity %s has a field without name or label", def.Type)
		}
		if seen[spec.Name] {
			return fmt.Errorf("entity %s declares field %s twice", def.Type, spec.Name)
		}
		seen[spec.Name] = true
	}

	for i, row := range def.Examples {
		if len(row) != len(def.Fields) {
			return fmt.Errorf("entity %s example %d has %d values, want %d", def.Type, i+1, len(row), len(def.Fields))
		}
	}
	return nil
}

// Lookup returns the definition for an entity type.
func Lookup(t EntityType) (EntityDefinition, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[t]
	if !ok {
		return EntityDefinition{}, fmt.Errorf("%w: %q", ErrUnknownEntity, t)
	}
	return def, nil
}

// All returns every registered definition sorted by type.
func All() []EntityDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]EntityDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Type < result[j].Type
	})
	return result
}

// Types returns the registered entity types, sorted.
func Types() []EntityType {
	defs := All()
	types := make([]EntityType, len(defs))
	for i, def := range defs {
		types[i] = def.Type
	}
	return types
}

// Unregister removes an entity type.
// Primarily useful for testing.
func Unregister(t EntityType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, t)
}
