package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/hashicorp/go-multierror"
)

// ValidationError is one schema violation.
type ValidationError struct {
	Path    string `json:"path,omitempty"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.File != "" && e.Line > 0 {
		msg = fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, msg)
	}
	return msg
}

// Built-in schema names.
const (
	SchemaDocument = "document"
	SchemaManifest = "manifest"
	SchemaSettings = "settings"
)

type schema struct {
	root       cue.Value
	definition string
}

// SchemaRegistry holds CUE schemas. Each schema names the definition data is unified with.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]schema
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry holding the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]schema),
	}
	for _, b := range []struct{ name, def, src string }{
		{SchemaDocument, "#Document", documentSchema},
		{SchemaManifest, "#Manifest", manifestSchema},
		{SchemaSettings, "#Settings", settingsSchema},
	} {
		if err := sr.RegisterSchema(b.name, b.def, b.src); err != nil {
			panic(err)
		}
	}
	return sr
}

// RegisterSchema compiles src and registers it under name. definition is the path of the
// definition data must satisfy, e.g. "#Document".
func (sr *SchemaRegistry) RegisterSchema(name, definition, src string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	root := sr.ctx.CompileString(src, cue.Filename(name+".cue"))
	if err := root.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	if def := root.LookupPath(cue.ParsePath(definition)); !def.Exists() {
		return fmt.Errorf("schema %s has no definition %s", name, definition)
	}
	sr.schemas[name] = schema{root: root, definition: definition}
	return nil
}

// Schema returns the definition value of a registered schema.
func (sr *SchemaRegistry) Schema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	return sr.lookup(name)
}

func (sr *SchemaRegistry) lookup(name string) (cue.Value, bool) {
	s, ok := sr.schemas[name]
	if !ok {
		return cue.Value{}, false
	}
	return s.root.LookupPath(cue.ParsePath(s.definition)), true
}

// ListSchemas returns the registered schema names in sorted order.
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

// Validate checks data against a named schema. data is anything encoding/json can marshal;
// field names follow its json tags. Every violation is reported.
func (sr *SchemaRegistry) Validate(name string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode data for schema %s: %w", name, err)
	}
	return sr.ValidateJSON(name, raw)
}

// ValidateJSON checks a JSON document against a named schema.
func (sr *SchemaRegistry) ValidateJSON(name string, raw []byte) error {
	// A cue.Context is not safe for concurrent use.
	sr.mu.Lock()
	defer sr.mu.Unlock()

	def, ok := sr.lookup(name)
	if !ok {
		return fmt.Errorf("schema %s not found", name)
	}
	val := sr.ctx.CompileBytes(raw, cue.Filename(name+".json"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to read data for schema %s: %w", name, err)
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err)
	}
	return nil
}

// convertCUEErrors flattens a CUE error list into a multierror of ValidationErrors.
func convertCUEErrors(err error) error {
	var result *multierror.Error
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{Message: cueerrors.Details(e, nil)}
		ve.Path = strings.Join(e.Path(), ".")
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		result = multierror.Append(result, ve)
	}
	return result.ErrorOrNil()
}

const documentSchema = `
#Document: {
	name:          string & !=""
	version:       int & >=0
	currentHighZ?: int
	nodes:       [...#Node] | null
	connections: [...#Connection] | null
}

#Node: {
	id:        int & >=0
	type:      string & =~"^[A-Za-z][A-Za-z0-9_]*$"
	module:    string & =~"^[a-z][a-z0-9]*$"
	params?:   {...} | null
	position?: _
	zIndex?:   int
}

#PortRef: {
	nodeId: int & >=0
	key:    string & !=""
	slot:   int & >=0
}

#Connection: {
	id:     int & >=0
	src:    #PortRef
	target: #PortRef
}
`

const manifestSchema = `
#Manifest: {
	name:          string & =~"^[a-z][a-z0-9]*$"
	version:       string & =~"^v?[0-9]+\\.[0-9]+\\.[0-9]+([-+].*)?$"
	description?:  string
	dependencies?: [...string & =~"^[a-z][a-z0-9]*$"]
	nodes: [...string & =~"^[A-Z][A-Za-z0-9]*$"]
	types?: [...string & !=""]
}
`

const settingsSchema = `
#Settings: {
	telemetry?: {...}
	engine?: allowMismatch?: bool
	script?: {
		timeout?:  string | int
		maxSteps?: int & >=0
	}
	store?: path?: string & !=""
	policy?: {
		enabled?: bool
		paths?: [...string]
		mode?: "advisory" | "enforcing"
	}
}
`
