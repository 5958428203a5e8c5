package codec

import (
	"fmt"
	"math/big"
	"reflect"
)

// toGenericValue walks an arbitrary typed Go value by reflection and
// produces the generic any-tree (map[string]any / []any / string / bool /
// float64 / *big.Int / []byte / nil) that escapeTree/writeValue operate
// on, without ever passing *big.Int through a float64 intermediate the
// way a json.Marshal/Unmarshal round trip would.
func toGenericValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if bi, ok := v.(*big.Int); ok {
		return bi, nil
	}
	if bi, ok := v.(big.Int); ok {
		return &bi, nil
	}
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	rv := reflect.ValueOf(v)
	return toGenericReflect(rv)
}

func toGenericReflect(rv reflect.Value) (any, error) {
	if !rv.IsValid() {
		return nil, nil
	}
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return toGenericReflect(rv.Elem())
	case reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return toGenericValue(rv.Interface())
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return b, nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := toGenericReflect(rv.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprintf("%v", iter.Key().Interface())
			v, err := toGenericReflect(iter.Value())
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil
	case reflect.Struct:
		if bi, ok := rv.Interface().(big.Int); ok {
			return &bi, nil
		}
		t := rv.Type()
		out := make(map[string]any, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" { // unexported
				continue
			}
			name, omitempty, skip := jsonFieldName(field)
			if skip {
				continue
			}
			fv := rv.Field(i)
			if omitempty && fv.IsZero() {
				continue
			}
			v, err := toGenericReflect(fv)
			if err != nil {
				return nil, err
			}
			out[name] = v
		}
		return out, nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	default:
		return nil, fmt.Errorf("codec: unsupported field kind %s", rv.Kind())
	}
}

// fromGenericValue is the inverse of toGenericValue: it assigns a decoded
// generic tree into out, which must be a non-nil pointer.
func fromGenericValue(v any, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("codec: decode target must be a non-nil pointer")
	}
	return assignGeneric(v, rv.Elem())
}

func assignGeneric(v any, dst reflect.Value) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	switch dst.Kind() {
	case reflect.Pointer:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		if bi, ok := v.(*big.Int); ok {
			if dst.Type() == reflect.TypeOf(bi) {
				dst.Set(reflect.ValueOf(bi))
				return nil
			}
		}
		return assignGeneric(v, dst.Elem())
	case reflect.Interface:
		dst.Set(reflect.ValueOf(v))
		return nil
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			b, ok := v.([]byte)
			if !ok {
				return fmt.Errorf("codec: expected bytes, got %T", v)
			}
			dst.SetBytes(b)
			return nil
		}
		arr, ok := v.([]any)
		if !ok {
			return fmt.Errorf("codec: expected array, got %T", v)
		}
		s := reflect.MakeSlice(dst.Type(), len(arr), len(arr))
		for i, elem := range arr {
			if err := assignGeneric(elem, s.Index(i)); err != nil {
				return err
			}
		}
		dst.Set(s)
		return nil
	case reflect.Map:
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("codec: expected map, got %T", v)
		}
		out := reflect.MakeMapWithSize(dst.Type(), len(m))
		for k, val := range m {
			kv := reflect.New(dst.Type().Key()).Elem()
			kv.SetString(k)
			vv := reflect.New(dst.Type().Elem()).Elem()
			if err := assignGeneric(val, vv); err != nil {
				return err
			}
			out.SetMapIndex(kv, vv)
		}
		dst.Set(out)
		return nil
	case reflect.Struct:
		if bi, ok := v.(*big.Int); ok {
			if _, isBigInt := dst.Addr().Interface().(*big.Int); isBigInt {
				dst.Set(reflect.ValueOf(*bi))
				return nil
			}
		}
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("codec: expected object for struct, got %T", v)
		}
		t := dst.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" {
				continue
			}
			name, _, skip := jsonFieldName(field)
			if skip {
				continue
			}
			val, present := m[name]
			if !present {
				continue
			}
			if err := assignGeneric(val, dst.Field(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.String:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("codec: expected string, got %T", v)
		}
		dst.SetString(s)
		return nil
	case reflect.Bool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("codec: expected bool, got %T", v)
		}
		dst.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("codec: expected number, got %T", v)
		}
		dst.SetInt(int64(f))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("codec: expected number, got %T", v)
		}
		dst.SetUint(uint64(f))
		return nil
	case reflect.Float32, reflect.Float64:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("codec: expected number, got %T", v)
		}
		dst.SetFloat(f)
		return nil
	default:
		return fmt.Errorf("codec: unsupported field kind %s", dst.Kind())
	}
}

// jsonFieldName mimics the subset of encoding/json struct tag handling
// this codec needs: a `json:"name,omitempty"` tag, "-" to skip, and
// falling back to the Go field name.
func jsonFieldName(field reflect.StructField) (name string, omitempty bool, skip bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	if tag == "" {
		return field.Name, false, false
	}
	parts := splitComma(tag)
	name = parts[0]
	if name == "" {
		name = field.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
