// Package schema reflects JSON Schemas from Go argument structs for
// tool registration.
package schema

import (
	"encoding/json"
	"reflect"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/invopop/jsonschema"
)

var (
	cache   = make(map[reflect.Type]*jsonschema.Schema)
	cacheMu sync.Mutex
)

// New reflects the input schema for the given argument struct type.
// Schemas are cached per type.
func New(t reflect.Type) *jsonschema.Schema {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if s, ok := cache[t]; ok {
		return s
	}
	s := reflect4Type(t)
	cache[t] = s
	return s
}

// For reflects the input schema for the type of the given value.
func For[T any]() *jsonschema.Schema {
	var v T
	return New(reflect.TypeOf(v))
}

// MarshalJSON renders the schema of the given argument struct type as
// raw JSON, as carried in tool descriptors.
func MarshalJSON(t reflect.Type) (json.RawMessage, error) {
	return json.Marshal(New(t))
}

func reflect4Type(t reflect.Type) *jsonschema.Schema {
	// Keep draft-07: downstream validators do not speak 2020-12.
	jsonschema.Version = "http://json-schema.org/draft-07/schema#"

	r := new(jsonschema.Reflector)
	r.ExpandedStruct = true
	r.DoNotReference = true
	r.AllowAdditionalProperties = false

	// Struct names may collide across packages, which breaks $ref
	// resolution. Disambiguate with a hash of the full package path.
	r.Namer = func(t reflect.Type) string {
		name := t.Name()
		if t.Kind() == reflect.Struct {
			fullname := t.PkgPath() + "/" + t.Name()
			name = t.Name() + "@" + strconv.FormatUint(xxhash.Sum64String(fullname), 10)
		}
		return name
	}

	return r.ReflectFromType(t)
}

// MustFromAny creates a json schema from a generic map definition.
// It panics if the value does not describe a valid schema.
func MustFromAny(t any) *jsonschema.Schema {
	js, err := json.Marshal(t)
	if err != nil {
		panic(err)
	}
	s := &jsonschema.Schema{}
	if err := json.Unmarshal(js, s); err != nil {
		panic(err)
	}
	return s
}
