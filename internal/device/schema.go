package device

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// schemaFiles maps each type with a status schema to its document.
// Types not listed accept any status.
var schemaFiles = map[Type]string{
	TypeLight: "light.json",
	TypeLED:   "light.json",
	TypeFan:   "fan.json",
	TypeAC:    "ac.json",
	TypeDoor:  "door.json",
	TypeDryer: "dryer.json",
}

// compiledSchemas compiles the embedded schemas once per process.
var compiledSchemas = sync.OnceValues(compileSchemas)

func compileSchemas() (map[Type]*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()

	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("reading schemas: %w", err)
	}
	for _, entry := range entries {
		raw, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", entry.Name(), err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parsing schema %s: %w", entry.Name(), err)
		}
		if err := c.AddResource(entry.Name(), doc); err != nil {
			return nil, fmt.Errorf("adding schema %s: %w", entry.Name(), err)
		}
	}

	compiled := make(map[Type]*jsonschema.Schema, len(schemaFiles))
	for t, name := range schemaFiles {
		s, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compiling schema %s: %w", name, err)
		}
		compiled[t] = s
	}
	return compiled, nil
}

// ValidateStatus checks a status document against the schema for the
// device type. Types without a schema pass unchanged.
func ValidateStatus(t Type, status Status) error {
	schemas, err := compiledSchemas()
	if err != nil {
		return err
	}
	schema, ok := schemas[t]
	if !ok || len(status) == 0 {
		return nil
	}

	// Round-trip through JSON so Go numeric types validate as JSON numbers.
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStatus, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStatus, err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidStatus, t, err)
	}
	return nil
}
