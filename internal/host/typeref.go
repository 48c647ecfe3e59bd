package host

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// TypeRef is a structural fingerprint of a declared wire type. The host does
// not type-check the call/callback pairing across the async boundary, so the
// pairing is carried as data and compared at delivery time: a callback whose
// Param fingerprint differs from the call's Returns fingerprint is simply
// never invoked.
type TypeRef string

// TypeOf fingerprints T. Two types produce the same TypeRef exactly when
// their JSON wire shapes are identical.
func TypeOf[T any]() TypeRef {
	var zero T
	return TypeRef(fingerprint(reflect.TypeOf(&zero).Elem(), make(map[reflect.Type]bool)))
}

// Matches reports whether a callback declared with param p can receive a
// value declared as return type r.
func (r TypeRef) Matches(p TypeRef) bool {
	return r != "" && r == p
}

func fingerprint(t reflect.Type, seen map[reflect.Type]bool) string {
	switch t.Kind() {
	case reflect.Pointer:
		return fingerprint(t.Elem(), seen)
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "bytes"
		}
		return "[]" + fingerprint(t.Elem(), seen)
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), fingerprint(t.Elem(), seen))
	case reflect.Map:
		return "map[" + fingerprint(t.Key(), seen) + "]" + fingerprint(t.Elem(), seen)
	case reflect.Struct:
		if seen[t] {
			return "recursive"
		}
		seen[t] = true
		fields := make([]string, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Name
			if tag, ok := f.Tag.Lookup("json"); ok {
				tagName, _, _ := strings.Cut(tag, ",")
				if tagName == "-" {
					continue
				}
				if tagName != "" {
					name = tagName
				}
			}
			fields = append(fields, name+":"+fingerprint(f.Type, seen))
		}
		// Field declaration order is not part of the wire shape.
		sort.Strings(fields)
		return "{" + strings.Join(fields, ",") + "}"
	default:
		return t.Kind().String()
	}
}
