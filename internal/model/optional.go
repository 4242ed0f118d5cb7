package model

import (
	"bytes"
	"encoding/json"
)

// Optional is a tagged value that tells "not supplied" apart from
// "supplied", including supplied as the zero value.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// IsSet reports whether a value was supplied.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// Get returns the value and whether it was supplied.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// UnmarshalJSON marks the field as supplied. It is only invoked when the key
// is present in the document; a JSON null yields a present zero value.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.set = true
	var zero T
	o.value = zero
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	return json.Unmarshal(data, &o.value)
}
