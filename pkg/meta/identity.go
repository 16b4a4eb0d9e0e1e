package meta

import (
	"fmt"
	"reflect"
)

// Identifier is implemented by holders that name themselves. It takes
// precedence over every other identity source in PrefixWith.
type Identifier interface {
	Identifier() string
}

// PrimaryKeyer is implemented by holders exposing a storage key.
type PrimaryKeyer interface {
	PrimaryKey() any
}

// PrefixWith scopes subsequent paths under the identity of holder: its
// Identifier() when implemented, else its PrimaryKey(), else an exported ID
// struct field. ErrNoIdentity is returned, and the prefix left untouched,
// when none resolves.
func (s *Store) PrefixWith(holder any) (*Store, error) {
	id, ok := identityOf(holder)
	if !ok {
		return s, fmt.Errorf("%w: %T", ErrNoIdentity, holder)
	}
	return s.Prefix(id), nil
}

func identityOf(holder any) (string, bool) {
	switch h := holder.(type) {
	case nil:
		return "", false
	case Identifier:
		return h.Identifier(), true
	case PrimaryKeyer:
		return formatKey(reflect.ValueOf(h.PrimaryKey()))
	}
	rv := reflect.ValueOf(holder)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return "", false
	}
	field, ok := rv.Type().FieldByName("ID")
	if !ok || !field.IsExported() {
		return "", false
	}
	value, err := rv.FieldByIndexErr(field.Index)
	if err != nil {
		return "", false
	}
	return formatKey(value)
}

func formatKey(v reflect.Value) (string, bool) {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return "", false
	}
	return fmt.Sprint(v.Interface()), true
}
