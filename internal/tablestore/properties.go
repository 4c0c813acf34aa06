package tablestore

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Wire type names used by MarshalProperties.
const (
	typeString   = "string"
	typeBool     = "bool"
	typeInt64    = "int64"
	typeFloat64  = "double"
	typeDateTime = "datetime"
	typeBinary   = "binary"
	typeNull     = "null"
)

// ValidateProperties checks that every value has a storable type.
func ValidateProperties(props Properties) error {
	_, err := NormalizeProperties(props)
	return err
}

// NormalizeProperties returns a copy of props with every value converted to
// its canonical type: integers become int64, float32 becomes float64, times
// become UTC. Times before MinDateTime are rejected.
func NormalizeProperties(props Properties) (Properties, error) {
	out := make(Properties, len(props))
	for name, v := range props {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		out[name] = nv
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string, bool, int64, float64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case time.Time:
		if x.Before(MinDateTime) {
			return nil, fmt.Errorf("%w: %s is before %s", ErrInvalidValue, x.Format(time.RFC3339), MinDateTime.Format(time.RFC3339))
		}
		return x.UTC(), nil
	case []byte:
		return append([]byte(nil), x...), nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, v)
	}
}

type wireValue struct {
	Type  string          `json:"t"`
	Value json.RawMessage `json:"v,omitempty"`
}

// MarshalProperties encodes props as JSON tagging each value with its type,
// so UnmarshalProperties restores int64 and time.Time exactly.
func MarshalProperties(props Properties) ([]byte, error) {
	norm, err := NormalizeProperties(props)
	if err != nil {
		return nil, err
	}

	wire := make(map[string]wireValue, len(norm))
	for name, v := range norm {
		var (
			w   wireValue
			raw []byte
		)
		switch x := v.(type) {
		case nil:
			w.Type = typeNull
		case string:
			w.Type = typeString
			raw, err = json.Marshal(x)
		case bool:
			w.Type = typeBool
			raw, err = json.Marshal(x)
		case int64:
			// Quoted so values beyond 2^53 survive JSON number handling.
			w.Type = typeInt64
			raw, err = json.Marshal(strconv.FormatInt(x, 10))
		case float64:
			w.Type = typeFloat64
			raw, err = json.Marshal(x)
		case time.Time:
			w.Type = typeDateTime
			raw, err = json.Marshal(x.Format(time.RFC3339Nano))
		case []byte:
			w.Type = typeBinary
			raw, err = json.Marshal(base64.StdEncoding.EncodeToString(x))
		}
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		w.Value = raw
		wire[name] = w
	}
	return json.Marshal(wire)
}

// UnmarshalProperties decodes the output of MarshalProperties.
func UnmarshalProperties(data []byte) (Properties, error) {
	props := Properties{}
	if len(bytes.TrimSpace(data)) == 0 {
		return props, nil
	}

	var wire map[string]wireValue
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}

	for name, w := range wire {
		v, err := decodeWireValue(w)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		props[name] = v
	}
	return props, nil
}

func decodeWireValue(w wireValue) (any, error) {
	switch w.Type {
	case typeNull:
		return nil, nil
	case typeString:
		var s string
		err := json.Unmarshal(w.Value, &s)
		return s, err
	case typeBool:
		var b bool
		err := json.Unmarshal(w.Value, &b)
		return b, err
	case typeInt64:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return nil, err
		}
		return strconv.ParseInt(s, 10, 64)
	case typeFloat64:
		var f float64
		err := json.Unmarshal(w.Value, &f)
		return f, err
	case typeDateTime:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	case typeBinary:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(s)
	default:
		return nil, fmt.Errorf("%w: unknown wire type %q", ErrInvalidValue, w.Type)
	}
}

// MergeProperties overlays update onto base, as a merge operation does.
func MergeProperties(base, update Properties) Properties {
	out := make(Properties, len(base)+len(update))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range update {
		out[k] = v
	}
	return out
}
