package unpack

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

type dictUnpackerInto[TKey comparable, TValue any] struct {
	keys   UnpackerInto[TKey]
	values UnpackerInto[TValue]
}

// Dict is capable of unpacking Starlark dicts (or any other iterable
// mapping) whose keys and values can be unpacked by the provided base
// unpackers.
func Dict[TKey comparable, TValue any](keys UnpackerInto[TKey], values UnpackerInto[TValue]) UnpackerInto[map[TKey]TValue] {
	return &dictUnpackerInto[TKey, TValue]{
		keys:   keys,
		values: values,
	}
}

func (ui *dictUnpackerInto[TKey, TValue]) UnpackInto(thread *starlark.Thread, v starlark.Value, dst *map[TKey]TValue) error {
	mapping, ok := v.(starlark.IterableMapping)
	if !ok {
		return fmt.Errorf("got %s, want dict", v.Type())
	}
	items := mapping.Items()
	entries := make(map[TKey]TValue, len(items))
	for _, item := range items {
		var key TKey
		if err := ui.keys.UnpackInto(thread, item[0], &key); err != nil {
			return fmt.Errorf("in key: %w", err)
		}
		var value TValue
		if err := ui.values.UnpackInto(thread, item[1], &value); err != nil {
			return fmt.Errorf("in value of key %s: %w", item[0], err)
		}
		if _, ok := entries[key]; ok {
			return fmt.Errorf("dict contains duplicate key %s", item[0])
		}
		entries[key] = value
	}
	*dst = entries
	return nil
}

func (ui *dictUnpackerInto[TKey, TValue]) Canonicalize(thread *starlark.Thread, v starlark.Value) (starlark.Value, error) {
	mapping, ok := v.(starlark.IterableMapping)
	if !ok {
		return nil, fmt.Errorf("got %s, want dict", v.Type())
	}
	items := mapping.Items()
	dict := starlark.NewDict(len(items))
	for _, item := range items {
		key, err := ui.keys.Canonicalize(thread, item[0])
		if err != nil {
			return nil, fmt.Errorf("in key: %w", err)
		}
		value, err := ui.values.Canonicalize(thread, item[1])
		if err != nil {
			return nil, fmt.Errorf("in value of key %s: %w", item[0], err)
		}
		if err := dict.SetKey(key, value); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

func (dictUnpackerInto[TKey, TValue]) GetConcatenationOperator() syntax.Token {
	return syntax.PIPE
}
