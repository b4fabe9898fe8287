// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package lkm

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Optional holds a value that may be absent.
// The zero value is absent. When used as a JSON field with the
// omitzero option, an absent value is omitted from the encoding
// while a present value is always encoded, even if it is the zero
// value of T. JSON null is rejected when decoding.
type Optional[T any] struct {
	value   T
	present bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, present: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.present
}

// IsPresent reports whether the value is present.
func (o Optional[T]) IsPresent() bool {
	return o.present
}

// IsZero reports whether the value is absent.
// It is used by encoding/json for the omitzero option.
func (o Optional[T]) IsZero() bool {
	return !o.present
}

// MarshalJSON encodes the held value.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.present {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON decodes a present value.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return errors.New("optional claim cannot be null")
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.value = v
	o.present = true
	return nil
}
