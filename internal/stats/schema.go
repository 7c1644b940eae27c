package stats

import (
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"

	"creaturelab/internal/model"
)

// Schema kinds accepted by RecordSchema.
const (
	SchemaRun        = "run"
	SchemaGeneration = "generation"
	SchemaCreature   = "creature"
)

var schemaTypes = map[string]struct {
	typ   reflect.Type
	title string
}{
	SchemaRun:        {reflect.TypeOf(model.SavedRun{}), "creaturelab saved run"},
	SchemaGeneration: {reflect.TypeOf(model.GenerationRecord{}), "creaturelab generation record"},
	SchemaCreature:   {reflect.TypeOf(model.CompactCreatureResult{}), "creaturelab compact creature result"},
}

// RecordSchema reflects the JSON schema of a persisted record.
func RecordSchema(kind string) (*jsonschema.Schema, error) {
	entry, ok := schemaTypes[kind]
	if !ok {
		return nil, fmt.Errorf("unknown schema kind %q", kind)
	}
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := reflector.ReflectFromType(entry.typ)
	if schema == nil {
		return nil, fmt.Errorf("failed to reflect %s schema", kind)
	}
	schema.Title = entry.title
	return schema, nil
}

func SchemaKinds() []string {
	return []string{SchemaCreature, SchemaGeneration, SchemaRun}
}
