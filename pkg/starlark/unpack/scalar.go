package unpack

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

type boolUnpackerInto struct{}

// Bool is capable of unpacking Starlark boolean values.
var Bool UnpackerInto[bool] = boolUnpackerInto{}

func (boolUnpackerInto) UnpackInto(thread *starlark.Thread, v starlark.Value, dst *bool) error {
	b, ok := v.(starlark.Bool)
	if !ok {
		return fmt.Errorf("got %s, want bool", v.Type())
	}
	*dst = bool(b)
	return nil
}

func (ui boolUnpackerInto) Canonicalize(thread *starlark.Thread, v starlark.Value) (starlark.Value, error) {
	var b bool
	if err := ui.UnpackInto(thread, v, &b); err != nil {
		return nil, err
	}
	return starlark.Bool(b), nil
}

func (boolUnpackerInto) GetConcatenationOperator() syntax.Token {
	return 0
}

type stringUnpackerInto struct{}

// String is capable of unpacking Starlark string values.
var String UnpackerInto[string] = stringUnpackerInto{}

func (stringUnpackerInto) UnpackInto(thread *starlark.Thread, v starlark.Value, dst *string) error {
	s, ok := starlark.AsString(v)
	if !ok {
		return fmt.Errorf("got %s, want str", v.Type())
	}
	*dst = s
	return nil
}

func (ui stringUnpackerInto) Canonicalize(thread *starlark.Thread, v starlark.Value) (starlark.Value, error) {
	var s string
	if err := ui.UnpackInto(thread, v, &s); err != nil {
		return nil, err
	}
	return starlark.String(s), nil
}

func (stringUnpackerInto) GetConcatenationOperator() syntax.Token {
	return syntax.PLUS
}

type intUnpackerInto[T int32 | int64] struct{}

// Int is capable of unpacking Starlark integer values that fit in the
// provided Go integer type, rejecting values that are out of bounds.
func Int[T int32 | int64]() UnpackerInto[T] {
	return intUnpackerInto[T]{}
}

func (intUnpackerInto[T]) UnpackInto(thread *starlark.Thread, v starlark.Value, dst *T) error {
	i, ok := v.(starlark.Int)
	if !ok {
		return fmt.Errorf("got %s, want int", v.Type())
	}
	if err := starlark.AsInt(i, dst); err != nil {
		return err
	}
	return nil
}

func (ui intUnpackerInto[T]) Canonicalize(thread *starlark.Thread, v starlark.Value) (starlark.Value, error) {
	var i T
	if err := ui.UnpackInto(thread, v, &i); err != nil {
		return nil, err
	}
	return starlark.MakeInt64(int64(i)), nil
}

func (intUnpackerInto[T]) GetConcatenationOperator() syntax.Token {
	return syntax.PLUS
}
