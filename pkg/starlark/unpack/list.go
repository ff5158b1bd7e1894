package unpack

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

type listUnpackerInto[T any] struct {
	base UnpackerInto[T]
}

// List is capable of unpacking Starlark lists (or any other iterable)
// whose elements can be unpacked by the provided base unpacker.
func List[T any](base UnpackerInto[T]) UnpackerInto[[]T] {
	return &listUnpackerInto[T]{
		base: base,
	}
}

func (ui *listUnpackerInto[T]) UnpackInto(thread *starlark.Thread, v starlark.Value, dst *[]T) error {
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return fmt.Errorf("got %s, want list", v.Type())
	}
	iter := iterable.Iterate()
	defer iter.Done()

	var elements []T
	var element starlark.Value
	for iter.Next(&element) {
		var unpacked T
		if err := ui.base.UnpackInto(thread, element, &unpacked); err != nil {
			return fmt.Errorf("at index %d: %w", len(elements), err)
		}
		elements = append(elements, unpacked)
	}
	*dst = elements
	return nil
}

func (ui *listUnpackerInto[T]) Canonicalize(thread *starlark.Thread, v starlark.Value) (starlark.Value, error) {
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("got %s, want list", v.Type())
	}
	iter := iterable.Iterate()
	defer iter.Done()

	var elements []starlark.Value
	var element starlark.Value
	for iter.Next(&element) {
		canonicalized, err := ui.base.Canonicalize(thread, element)
		if err != nil {
			return nil, fmt.Errorf("at index %d: %w", len(elements), err)
		}
		elements = append(elements, canonicalized)
	}
	return starlark.NewList(elements), nil
}

func (listUnpackerInto[T]) GetConcatenationOperator() syntax.Token {
	return syntax.PLUS
}

type singletonUnpackerInto[T any] struct {
	UnpackerInto[T]
}

// Singleton is capable of unpacking a value and placing it in a slice
// containing a single element. This unpacker is typically used in
// combination with Or() in places where a value may either be scalar
// or a list.
func Singleton[T any](base UnpackerInto[T]) UnpackerInto[[]T] {
	return &singletonUnpackerInto[T]{
		UnpackerInto: base,
	}
}

func (ui *singletonUnpackerInto[T]) UnpackInto(thread *starlark.Thread, v starlark.Value, dst *[]T) error {
	var instance [1]T
	if err := ui.UnpackerInto.UnpackInto(thread, v, &instance[0]); err != nil {
		return err
	}
	*dst = instance[:]
	return nil
}

func (ui *singletonUnpackerInto[T]) Canonicalize(thread *starlark.Thread, v starlark.Value) (starlark.Value, error) {
	element, err := ui.UnpackerInto.Canonicalize(thread, v)
	if err != nil {
		return nil, err
	}
	return starlark.NewList([]starlark.Value{element}), nil
}
