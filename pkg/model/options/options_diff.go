package options

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"cairn.build/pkg/label"

	"go.starlark.net/starlark"
)

// ErrNilBuildOptions is returned when attempting to diff a nil
// configuration.
var ErrNilBuildOptions = errors.New("cannot diff nil BuildOptions")

// FieldKey addresses a single field of a fragment kind within a diff.
type FieldKey struct {
	Kind  FragmentKind
	Field string
}

// OptionsDiff is the symmetric difference between two configurations,
// intended for display. It records, per differing fragment field and
// per differing Starlark setting, the value on each side, together
// with the fragments and settings only one side holds. Fragment kinds
// only present in the first configuration are recorded by kind alone,
// whereas fragments only present in the second are recorded as full
// instances.
type OptionsDiff struct {
	first                   map[FieldKey]any
	second                  map[FieldKey]any
	extraFirstFragmentKinds []FragmentKind
	extraSecondFragments    []FragmentOptions
	starlarkFirst           map[label.Label]starlark.Value
	starlarkSecond          map[label.Label]starlark.Value
	extraStarlarkFirst      []label.Label
	extraStarlarkSecond     map[label.Label]starlark.Value
}

// Diff computes the symmetric difference between two configurations.
func Diff(first, second *BuildOptions) (*OptionsDiff, error) {
	if first == nil || second == nil {
		return nil, ErrNilBuildOptions
	}
	d := &OptionsDiff{
		first:               map[FieldKey]any{},
		second:              map[FieldKey]any{},
		starlarkFirst:       map[label.Label]starlark.Value{},
		starlarkSecond:      map[label.Label]starlark.Value{},
		extraStarlarkSecond: map[label.Label]starlark.Value{},
	}

	for _, kind := range first.FragmentKinds() {
		firstFragment, _ := first.Get(kind)
		secondFragment, ok := second.Get(kind)
		if !ok {
			d.extraFirstFragmentKinds = append(d.extraFirstFragmentKinds, kind)
			continue
		}
		for _, field := range fragmentFields(firstFragment) {
			firstValue := fragmentFieldValue(firstFragment, field.index)
			secondValue := fragmentFieldValue(secondFragment, field.index)
			if !equalValues(firstValue, secondValue) {
				key := FieldKey{Kind: kind, Field: field.name}
				d.first[key] = firstValue
				d.second[key] = secondValue
			}
		}
	}
	for _, kind := range second.FragmentKinds() {
		if !first.Contains(kind) {
			secondFragment, _ := second.Get(kind)
			d.extraSecondFragments = append(d.extraSecondFragments, secondFragment)
		}
	}

	for _, l := range first.StarlarkOptionLabels() {
		firstValue, _ := first.StarlarkOption(l)
		secondValue, ok := second.StarlarkOption(l)
		if !ok {
			d.extraStarlarkFirst = append(d.extraStarlarkFirst, l)
			continue
		}
		if !starlarkValuesEqual(firstValue, secondValue) {
			d.starlarkFirst[l] = firstValue
			d.starlarkSecond[l] = secondValue
		}
	}
	for _, l := range second.StarlarkOptionLabels() {
		if _, ok := first.StarlarkOption(l); !ok {
			v, _ := second.StarlarkOption(l)
			d.extraStarlarkSecond[l] = v
		}
	}
	return d, nil
}

// AreSame returns whether the two diffed configurations were equal.
func (d *OptionsDiff) AreSame() bool {
	return len(d.first) == 0 &&
		len(d.second) == 0 &&
		len(d.extraFirstFragmentKinds) == 0 &&
		len(d.extraSecondFragments) == 0 &&
		len(d.starlarkFirst) == 0 &&
		len(d.starlarkSecond) == 0 &&
		len(d.extraStarlarkFirst) == 0 &&
		len(d.extraStarlarkSecond) == 0
}

// First returns the first configuration's value for a differing field.
func (d *OptionsDiff) First(key FieldKey) (any, bool) {
	v, ok := d.first[key]
	return v, ok
}

// Second returns the second configuration's value for a differing
// field.
func (d *OptionsDiff) Second(key FieldKey) (any, bool) {
	v, ok := d.second[key]
	return v, ok
}

// DifferingFields returns the sorted keys of all differing fragment
// fields.
func (d *OptionsDiff) DifferingFields() []FieldKey {
	keys := make([]FieldKey, 0, len(d.first))
	for key := range d.first {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].Field < keys[j].Field
	})
	return keys
}

// ExtraFirstFragmentKinds returns the kinds of fragments only present
// in the first configuration.
func (d *OptionsDiff) ExtraFirstFragmentKinds() []FragmentKind {
	return d.extraFirstFragmentKinds
}

// ExtraSecondFragments returns the fragment instances only present in
// the second configuration.
func (d *OptionsDiff) ExtraSecondFragments() []FragmentOptions {
	return d.extraSecondFragments
}

// DifferingStarlarkOptions returns the sorted labels of Starlark
// settings present in both configurations with differing values.
func (d *OptionsDiff) DifferingStarlarkOptions() []label.Label {
	return sortedLabels(d.starlarkFirst)
}

// StarlarkFirst returns the first configuration's value for a
// differing setting.
func (d *OptionsDiff) StarlarkFirst(l label.Label) (starlark.Value, bool) {
	v, ok := d.starlarkFirst[l]
	return v, ok
}

// StarlarkSecond returns the second configuration's value for a
// differing setting.
func (d *OptionsDiff) StarlarkSecond(l label.Label) (starlark.Value, bool) {
	v, ok := d.starlarkSecond[l]
	return v, ok
}

// ExtraStarlarkFirst returns the labels of settings only present in
// the first configuration.
func (d *OptionsDiff) ExtraStarlarkFirst() []label.Label {
	return d.extraStarlarkFirst
}

// ExtraStarlarkSecond returns the settings only present in the second
// configuration, together with their values.
func (d *OptionsDiff) ExtraStarlarkSecond() map[label.Label]starlark.Value {
	return d.extraStarlarkSecond
}

// PrettyPrint renders the diff for human consumption, one differing
// option per line in "fragment.field: <first> → <second>" form.
func (d *OptionsDiff) PrettyPrint() string {
	var sb strings.Builder
	for _, key := range d.DifferingFields() {
		fmt.Fprintf(&sb, "%s.%s: %v → %v\n", key.Kind, key.Field, d.first[key], d.second[key])
	}
	for _, l := range d.DifferingStarlarkOptions() {
		fmt.Fprintf(&sb, "%s: %v → %v\n", l.String(), d.starlarkFirst[l], d.starlarkSecond[l])
	}
	for _, kind := range d.extraFirstFragmentKinds {
		fmt.Fprintf(&sb, "%s: only present in first configuration\n", kind)
	}
	for _, f := range d.extraSecondFragments {
		fmt.Fprintf(&sb, "%s: only present in second configuration\n", f.FragmentKind())
	}
	for _, l := range d.extraStarlarkFirst {
		fmt.Fprintf(&sb, "%s: only present in first configuration\n", l.String())
	}
	for _, l := range sortedLabels(d.extraStarlarkSecond) {
		fmt.Fprintf(&sb, "%s: only present in second configuration\n", l.String())
	}
	return sb.String()
}
