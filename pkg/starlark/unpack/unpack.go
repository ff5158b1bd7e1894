// Package unpack provides strategies for converting Starlark values to
// Go native types, and for converting Starlark values to canonical
// Starlark representations. The latter is what build setting types use
// to validate that a value written to a setting by a transition is
// convertible to the setting's declared type.
package unpack

import (
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Canonicalizer of Starlark values. Whereas implementations of
// UnpackerInto provide an algorithm for converting Starlark values to
// native Go types, instances of Canonicalizer merely convert them to
// Starlark values that are considered canonical for some declared
// type, failing if no such conversion exists.
type Canonicalizer interface {
	Canonicalize(thread *starlark.Thread, v starlark.Value) (starlark.Value, error)
	GetConcatenationOperator() syntax.Token
}

// UnpackerInto implements a strategy for unpacking a Starlark value
// into a Go type.
type UnpackerInto[T any] interface {
	Canonicalizer
	UnpackInto(thread *starlark.Thread, v starlark.Value, dst *T) error
}

type boundUnpacker[T any] struct {
	thread   *starlark.Thread
	dst      *T
	unpacker UnpackerInto[T]
}

// Bind an UnpackerInto to a variable, so that it can unpack a function
// argument and store it at a desired location.
func Bind[T any](thread *starlark.Thread, dst *T, unpacker UnpackerInto[T]) starlark.Unpacker {
	return &boundUnpacker[T]{
		thread:   thread,
		dst:      dst,
		unpacker: unpacker,
	}
}

func (u *boundUnpacker[T]) Unpack(v starlark.Value) error {
	return u.unpacker.UnpackInto(u.thread, v, u.dst)
}

type canonicalizeUnpackerInto struct {
	Canonicalizer
}

// Canonicalize a Starlark value, as opposed to unpacking it to a Go
// native type.
func Canonicalize(base Canonicalizer) UnpackerInto[starlark.Value] {
	return &canonicalizeUnpackerInto{
		Canonicalizer: base,
	}
}

func (ui *canonicalizeUnpackerInto) UnpackInto(thread *starlark.Thread, v starlark.Value, dst *starlark.Value) error {
	canonicalized, err := ui.Canonicalizer.Canonicalize(thread, v)
	if err != nil {
		return err
	}
	*dst = canonicalized
	return nil
}
