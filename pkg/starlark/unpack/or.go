package unpack

import (
	"errors"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

type orUnpackerInto[T any] struct {
	alternatives []UnpackerInto[T]
}

// Or attempts to unpack a value using each of the provided unpackers
// in order, succeeding with the first one that accepts the value.
func Or[T any](alternatives []UnpackerInto[T]) UnpackerInto[T] {
	return &orUnpackerInto[T]{
		alternatives: alternatives,
	}
}

func (ui *orUnpackerInto[T]) UnpackInto(thread *starlark.Thread, v starlark.Value, dst *T) error {
	var messages []string
	for _, alternative := range ui.alternatives {
		if err := alternative.UnpackInto(thread, v, dst); err == nil {
			return nil
		} else {
			messages = append(messages, err.Error())
		}
	}
	return errors.New(strings.Join(messages, ", or "))
}

func (ui *orUnpackerInto[T]) Canonicalize(thread *starlark.Thread, v starlark.Value) (starlark.Value, error) {
	var messages []string
	for _, alternative := range ui.alternatives {
		if canonicalized, err := alternative.Canonicalize(thread, v); err == nil {
			return canonicalized, nil
		} else {
			messages = append(messages, err.Error())
		}
	}
	return nil, errors.New(strings.Join(messages, ", or "))
}

func (ui *orUnpackerInto[T]) GetConcatenationOperator() syntax.Token {
	operator := ui.alternatives[0].GetConcatenationOperator()
	for _, alternative := range ui.alternatives[1:] {
		if alternative.GetConcatenationOperator() != operator {
			return 0
		}
	}
	return operator
}

type ifNotNoneUnpackerInto[T any] struct {
	UnpackerInto[T]
}

// IfNotNone is a decorator that passes None values through unchanged,
// only invoking the base unpacker for other values. This is used for
// settings that permit explicitly clearing their value.
func IfNotNone[T any](base UnpackerInto[T]) UnpackerInto[T] {
	return &ifNotNoneUnpackerInto[T]{
		UnpackerInto: base,
	}
}

func (ui *ifNotNoneUnpackerInto[T]) UnpackInto(thread *starlark.Thread, v starlark.Value, dst *T) error {
	if v == starlark.None {
		var zero T
		*dst = zero
		return nil
	}
	return ui.UnpackerInto.UnpackInto(thread, v, dst)
}

func (ui *ifNotNoneUnpackerInto[T]) Canonicalize(thread *starlark.Thread, v starlark.Value) (starlark.Value, error) {
	if v == starlark.None {
		return starlark.None, nil
	}
	return ui.UnpackerInto.Canonicalize(thread, v)
}

type pointerUnpackerInto[T any] struct {
	UnpackerInto[T]
}

// Pointer is a decorator for an UnpackerInto that assumes that the
// destination for unpacking is a pointer type. Upon successful
// unpacking, the pointer is assigned to allocated memory holding the
// unpacked value.
func Pointer[T any](base UnpackerInto[T]) UnpackerInto[*T] {
	return &pointerUnpackerInto[T]{
		UnpackerInto: base,
	}
}

func (ui *pointerUnpackerInto[T]) UnpackInto(thread *starlark.Thread, v starlark.Value, dst **T) error {
	var instance T
	if err := ui.UnpackerInto.UnpackInto(thread, v, &instance); err != nil {
		return err
	}
	*dst = &instance
	return nil
}
