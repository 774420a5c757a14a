// ABOUTME: Tagged union for untyped Garmin Connect responses.
// ABOUTME: Provides key probing, list-or-object normalization, and best-effort coercion.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Kind int

const (
	Absent Kind = iota
	Scalar
	Object
	List
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Object:
		return "object"
	case List:
		return "list"
	default:
		return "absent"
	}
}

// Raw wraps one decoded JSON value. The zero value is Absent, and JSON null
// decodes to Absent as well.
type Raw struct {
	kind   Kind
	scalar any
	object map[string]any
	list   []any
}

// FromJSON wraps a value produced by a json.Decoder with UseNumber enabled.
func FromJSON(v any) Raw {
	switch t := v.(type) {
	case nil:
		return Raw{}
	case Raw:
		return t
	case map[string]any:
		return Raw{kind: Object, object: t}
	case []any:
		return Raw{kind: List, list: t}
	case float64:
		return Raw{kind: Scalar, scalar: json.Number(strconv.FormatFloat(t, 'f', -1, 64))}
	case int:
		return Raw{kind: Scalar, scalar: json.Number(strconv.Itoa(t))}
	default:
		return Raw{kind: Scalar, scalar: t}
	}
}

// ParseRaw decodes a JSON document into a Raw value.
func ParseRaw(data []byte) (Raw, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Raw{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Raw{}, err
	}
	return FromJSON(v), nil
}

func (r Raw) Kind() Kind { return r.kind }

func (r Raw) IsAbsent() bool { return r.kind == Absent }

func (r Raw) IsObject() bool { return r.kind == Object }

func (r Raw) IsList() bool { return r.kind == List }

// Value unwraps r back into the decoded JSON value.
func (r Raw) Value() any {
	switch r.kind {
	case Scalar:
		return r.scalar
	case Object:
		return r.object
	case List:
		return r.list
	}
	return nil
}

// First normalizes a list-or-object response: a non-empty list yields its
// first element, an object yields itself, anything else is Absent.
func (r Raw) First() Raw {
	switch r.kind {
	case List:
		if len(r.list) > 0 {
			return FromJSON(r.list[0])
		}
	case Object:
		return r
	}
	return Raw{}
}

// Get returns the value at key, or Absent when r is not an object.
func (r Raw) Get(key string) Raw {
	if r.kind != Object {
		return Raw{}
	}
	return FromJSON(r.object[key])
}

// Has reports whether r is an object containing key, even with a null value.
func (r Raw) Has(key string) bool {
	if r.kind != Object {
		return false
	}
	_, ok := r.object[key]
	return ok
}

// FirstPresent returns the first candidate key whose value is not null.
func (r Raw) FirstPresent(keys ...string) Raw {
	for _, k := range keys {
		if v := r.Get(k); !v.IsAbsent() {
			return v
		}
	}
	return Raw{}
}

// Coalesce returns the first truthy candidate, otherwise the value of the
// last candidate (which may itself be falsy or Absent).
func (r Raw) Coalesce(keys ...string) Raw {
	var last Raw
	for _, k := range keys {
		last = r.Get(k)
		if last.Truthy() {
			return last
		}
	}
	return last
}

// Items returns the elements of a list, or nil for any other kind.
func (r Raw) Items() []Raw {
	if r.kind != List {
		return nil
	}
	out := make([]Raw, len(r.list))
	for i, v := range r.list {
		out[i] = FromJSON(v)
	}
	return out
}

// Truthy reports whether the value is non-empty, non-zero and not false.
func (r Raw) Truthy() bool {
	switch r.kind {
	case Object:
		return len(r.object) > 0
	case List:
		return len(r.list) > 0
	case Scalar:
		switch v := r.scalar.(type) {
		case string:
			return v != ""
		case bool:
			return v
		case json.Number:
			f, err := v.Float64()
			return err != nil || f != 0
		}
		return true
	}
	return false
}

// IsNumber reports whether r holds a JSON number or a bool.
func (r Raw) IsNumber() bool {
	if r.kind != Scalar {
		return false
	}
	switch r.scalar.(type) {
	case json.Number, bool:
		return true
	}
	return false
}

// Float coerces numbers, booleans and numeric strings.
func (r Raw) Float() (float64, error) {
	if r.kind != Scalar {
		return 0, fmt.Errorf("cannot convert %s to float", r.kind)
	}
	switch v := r.scalar.(type) {
	case json.Number:
		return v.Float64()
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to float", v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot convert %T to float", r.scalar)
}

// Int coerces numbers (truncating fractions), booleans and integer strings.
func (r Raw) Int() (int, error) {
	if r.kind != Scalar {
		return 0, fmt.Errorf("cannot convert %s to int", r.kind)
	}
	switch v := r.scalar.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), nil
		}
		f, err := v.Float64()
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, fmt.Errorf("cannot convert %q to int", v.String())
		}
		return int(math.Trunc(f)), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to int", v)
		}
		return i, nil
	}
	return 0, fmt.Errorf("cannot convert %T to int", r.scalar)
}

// Text renders scalars as text. Objects and lists are rendered as JSON.
func (r Raw) Text() (string, error) {
	switch r.kind {
	case Scalar:
		switch v := r.scalar.(type) {
		case string:
			return v, nil
		case json.Number:
			return v.String(), nil
		case bool:
			return strconv.FormatBool(v), nil
		}
		return fmt.Sprint(r.scalar), nil
	case Object, List:
		b, err := json.Marshal(r.Value())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return "", fmt.Errorf("cannot convert absent value to string")
}

// present converts v when it is not null, returning nil otherwise.
func present[T any](v Raw, conv func(Raw) (T, error)) (*T, error) {
	if v.IsAbsent() {
		return nil, nil
	}
	out, err := conv(v)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// truthy converts v when it is truthy, returning nil otherwise.
func truthy[T any](v Raw, conv func(Raw) (T, error)) (*T, error) {
	if !v.Truthy() {
		return nil, nil
	}
	return present(v, conv)
}

// probe looks up the first non-null candidate key of obj and converts it.
func probe[T any](obj Raw, conv func(Raw) (T, error), keys ...string) (*T, error) {
	return present(obj.FirstPresent(keys...), conv)
}
