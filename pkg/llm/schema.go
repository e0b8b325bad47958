package llm

import "github.com/invopop/jsonschema"

// GenerateSchema reflects a Go struct T into the JSON Schema required by
// Request.Schema, so callers define their expected shape once as a struct
// and never hand-maintain a schema document alongside it.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// Temp is a small helper for populating Request.Temperature, since Go has
// no literal syntax for "pointer to this float".
func Temp(t float64) *float64 {
	return &t
}
