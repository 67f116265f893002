package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ConfigSchemaName is the registry name of the built-in .checkuprc schema.
const ConfigSchemaName = "config"

type schemaEntry struct {
	value cue.Value
	root  cue.Path
}

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]schemaEntry
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]schemaEntry),
	}

	if err := sr.RegisterSchema(ConfigSchemaName, "#Config", builtinConfigSchema); err != nil {
		panic(fmt.Sprintf("built-in config schema does not compile: %v", err))
	}

	return sr
}

// RegisterSchema compiles a CUE schema and registers it under name. root is
// the definition data is unified with, e.g. "#Config".
func (sr *SchemaRegistry) RegisterSchema(name, root, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	path := cue.ParsePath(root)
	if err := path.Err(); err != nil {
		return fmt.Errorf("invalid root %s for schema %s: %w", root, name, err)
	}
	if def := val.LookupPath(path); !def.Exists() {
		return fmt.Errorf("schema %s has no definition %s", name, root)
	}

	sr.schemas[name] = schemaEntry{value: val, root: path}
	return nil
}

// GetSchema retrieves a schema's root definition by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	entry, ok := sr.schemas[name]
	if !ok {
		return cue.Value{}, false
	}
	return entry.value.LookupPath(entry.root), true
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	// cue.Context is not safe for concurrent use
	sr.mu.Lock()
	defer sr.mu.Unlock()

	// Convert data to CUE value
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	// Unify with schema (validates)
	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// builtinConfigSchema mirrors the published .checkuprc JSON schema.
const builtinConfigSchema = `
#TaskState: "on" | "off"

// A task is switched on or off, optionally with options.
#TaskValue: #TaskState | [#TaskState, {...}]

#Config: {
	"$schema"?: string

	// Glob patterns removed from the analyzed paths
	excludePaths!: [...string]

	// Plugin package names, short forms allowed
	plugins!: [...string]

	// Keyed by fully qualified task name
	tasks!: {[string]: #TaskValue}
}
`
