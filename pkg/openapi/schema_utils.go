package openapi

import (
	"reflect"
	"strings"
	"time"
)

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
)

// GenerateSchema creates an OpenAPI schema from a Go struct using reflection.
// Fields tagged binding:"required" are listed as required and pointer
// fields are nullable.
func GenerateSchema(v interface{}) *Schema {
	if v == nil {
		return nil
	}
	return typeToSchema(reflect.TypeOf(v))
}

func typeToSchema(t reflect.Type) *Schema {
	switch t {
	case timeType:
		return &Schema{Type: "string", Format: "date-time"}
	case durationType:
		return &Schema{Type: "integer", Format: "int64", Description: "nanoseconds"}
	}

	switch t.Kind() {
	case reflect.Ptr:
		s := typeToSchema(t.Elem())
		s.Nullable = true
		return s

	case reflect.Struct:
		s := &Schema{Type: "object", Properties: make(map[string]*Schema)}
		addFields(s, t)
		return s

	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return &Schema{Type: "string", Format: "byte"}
		}
		return &Schema{Type: "array", Items: typeToSchema(t.Elem())}

	case reflect.Map:
		return &Schema{Type: "object", AdditionalProperties: typeToSchema(t.Elem())}

	case reflect.Interface:
		return &Schema{}

	case reflect.String:
		return &Schema{Type: "string"}

	case reflect.Int64, reflect.Uint64:
		return &Schema{Type: "integer", Format: "int64"}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return &Schema{Type: "integer"}

	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}

	case reflect.Bool:
		return &Schema{Type: "boolean"}

	default:
		return &Schema{Type: "string"}
	}
}

// addFields adds the exported fields of t to s, flattening embedded structs
// the way encoding/json does.
func addFields(s *Schema, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, ok := jsonName(field)
		if !ok {
			continue
		}
		if field.Anonymous && name == "" && field.Type.Kind() == reflect.Struct {
			addFields(s, field.Type)
			continue
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}

		s.Properties[name] = typeToSchema(field.Type)
		if hasBindingRule(field, "required") {
			s.Required = append(s.Required, name)
		}
	}
}

// jsonName returns the name from the json tag, "" when the tag has none,
// and false for fields skipped with json:"-".
func jsonName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	name, _, _ := strings.Cut(tag, ",")
	return name, true
}

func hasBindingRule(field reflect.StructField, rule string) bool {
	for _, r := range strings.Split(field.Tag.Get("binding"), ",") {
		if r == rule {
			return true
		}
	}
	return false
}
