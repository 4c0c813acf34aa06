// Package codec maps typed identity records to table property bags and back.
//
// Fields are named by their `table` struct tag, falling back to the Go field
// name. Fields tagged `table:"-"` are transient: Encode skips them and Decode
// leaves them at their zero value.
package codec

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/bravo68web/tableidentity/internal/tablestore"
)

// TagName is the struct tag read by Encode and Decode.
const TagName = "table"

// ErrSchemaMismatch is returned when a stored property cannot be decoded into
// the record field of the same name.
var ErrSchemaMismatch = errors.New("stored entity does not match record schema")

var timeType = reflect.TypeOf(time.Time{})

// Encode flattens record, a struct or pointer to struct, into a property bag.
// Zero times are stored as tablestore.MinDateTime.
func Encode(record any) (tablestore.Properties, error) {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, fmt.Errorf("codec: nil %s", v.Type())
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("codec: cannot encode %s", v.Type())
	}

	props := tablestore.Properties{}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, ok := fieldName(field)
		if !ok {
			continue
		}
		val, err := encodeValue(v.Field(i))
		if err != nil {
			return nil, fmt.Errorf("codec: field %s: %w", field.Name, err)
		}
		props[name] = val
	}
	return props, nil
}

func fieldName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get(TagName)
	switch tag {
	case "-":
		return "", false
	case "":
		return f.Name, true
	default:
		return tag, true
	}
}

func encodeValue(v reflect.Value) (any, error) {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	if v.Type() == timeType {
		ts := v.Interface().(time.Time)
		if ts.IsZero() || ts.Before(tablestore.MinDateTime) {
			return tablestore.MinDateTime, nil
		}
		return ts.UTC(), nil
	}

	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(v.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			if v.IsNil() {
				return nil, nil
			}
			return append([]byte(nil), v.Bytes()...), nil
		}
	}
	return nil, fmt.Errorf("%w: unsupported kind %s", tablestore.ErrInvalidValue, v.Type())
}

// Decode populates out, a pointer to struct, from props. Properties without a
// matching field are ignored.
func Decode(props tablestore.Properties, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    TagName,
		Result:     out,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	if err := dec.Decode(map[string]any(props)); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return nil
}

// ToEntity encodes record under the given key.
func ToEntity(pk, rk string, record any) (*tablestore.Entity, error) {
	props, err := Encode(record)
	if err != nil {
		return nil, err
	}
	return &tablestore.Entity{PartitionKey: pk, RowKey: rk, Properties: props}, nil
}

// FromEntity decodes the properties of e into out.
func FromEntity(e *tablestore.Entity, out any) error {
	if e == nil {
		return fmt.Errorf("codec: nil entity")
	}
	return Decode(e.Properties, out)
}
