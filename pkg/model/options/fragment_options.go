// Package options provides the value model of a build configuration:
// registered native option fragments, dynamically declared Starlark
// settings, and the diff/reconstruct/fingerprint operations defined on
// them. All value types in this package are immutable after
// construction, meaning they may be shared across concurrently
// executing transitions without locking.
package options

import (
	"fmt"
	"reflect"
	"sort"
)

// FragmentKind identifies a registered fragment type (e.g., "core" or
// "toolchain"). At most one fragment instance of a given kind is
// present in a BuildOptions.
type FragmentKind string

// FragmentOptions is a named, typed group of native configuration
// options. Implementations are pointer-to-struct types whose exported
// fields hold the option values. Fields may carry an `option:"name"`
// tag, making them addressable by native option name from transitions
// and flag parsing. Instances are treated as immutable once handed to
// a BuildOptions.
type FragmentOptions interface {
	FragmentKind() FragmentKind
}

// ConstructionError indicates that a fragment of a requested kind
// could not be instantiated, because no factory for it was registered.
type ConstructionError struct {
	Kind FragmentKind
}

func (e ConstructionError) Error() string {
	return fmt.Sprintf("cannot construct fragment options of kind %#v", string(e.Kind))
}

// NativeOption is the handle of a single named native option: a field
// of a registered fragment kind that carries an `option` tag.
type NativeOption struct {
	kind       FragmentKind
	name       string
	fieldIndex int
	fieldType  reflect.Type
}

// FragmentKind returns the kind of the fragment declaring the option.
func (o *NativeOption) FragmentKind() FragmentKind {
	return o.kind
}

// Name returns the native option's name.
func (o *NativeOption) Name() string {
	return o.name
}

// FieldType returns the Go type of the field backing the option.
func (o *NativeOption) FieldType() reflect.Type {
	return o.fieldType
}

// Value returns the option's value within the provided fragment, which
// must be of the option's declaring kind.
func (o *NativeOption) Value(f FragmentOptions) any {
	return reflect.ValueOf(f).Elem().Field(o.fieldIndex).Interface()
}

// WithValue returns a copy of the provided fragment in which the
// option is set to the given value. The original fragment is left
// unmodified. Values that are not assignable to the option's field
// type are rejected.
func (o *NativeOption) WithValue(f FragmentOptions, value any) (FragmentOptions, error) {
	clone := cloneFragment(f)
	field := reflect.ValueOf(clone).Elem().Field(o.fieldIndex)
	if value == nil {
		field.Set(reflect.Zero(o.fieldType))
		return clone, nil
	}
	v := reflect.ValueOf(value)
	if !v.Type().AssignableTo(o.fieldType) {
		return nil, fmt.Errorf("option %#v expects values of type %s, not %s", o.name, o.fieldType, v.Type())
	}
	field.Set(v)
	return clone, nil
}

// Registry holds the closed catalogue of fragment kinds known to a
// build, together with the index of native option names they declare.
// A Registry is populated once at startup and read-only afterwards.
type Registry struct {
	factories     map[FragmentKind]func() FragmentOptions
	nativeOptions map[string]*NativeOption
}

func NewRegistry() *Registry {
	return &Registry{
		factories:     map[FragmentKind]func() FragmentOptions{},
		nativeOptions: map[string]*NativeOption{},
	}
}

// Register a fragment kind by providing a factory for default-valued
// instances. The factory's prototype determines the kind and the set
// of native options the fragment declares.
func (r *Registry) Register(factory func() FragmentOptions) error {
	prototype := factory()
	structType := reflect.TypeOf(prototype)
	if structType.Kind() != reflect.Pointer || structType.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("fragment options of kind %#v are not a pointer to a struct", string(prototype.FragmentKind()))
	}
	kind := prototype.FragmentKind()
	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("fragment options of kind %#v are registered multiple times", string(kind))
	}

	elemType := structType.Elem()
	for i := 0; i < elemType.NumField(); i++ {
		field := elemType.Field(i)
		if !field.IsExported() {
			continue
		}
		name, ok := field.Tag.Lookup("option")
		if !ok || name == "" {
			continue
		}
		if existing, ok := r.nativeOptions[name]; ok {
			return fmt.Errorf("native option %#v is declared by both fragment kinds %#v and %#v", name, string(existing.kind), string(kind))
		}
		r.nativeOptions[name] = &NativeOption{
			kind:       kind,
			name:       name,
			fieldIndex: i,
			fieldType:  field.Type,
		}
	}
	r.factories[kind] = factory
	return nil
}

// MustRegister is the same as Register, except that it panics if
// registration fails.
func (r *Registry) MustRegister(factory func() FragmentOptions) {
	if err := r.Register(factory); err != nil {
		panic(err)
	}
}

// Create a default-valued fragment of the given kind.
func (r *Registry) Create(kind FragmentKind) (FragmentOptions, error) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, ConstructionError{Kind: kind}
	}
	return factory(), nil
}

// Kinds returns the sorted list of registered fragment kinds.
func (r *Registry) Kinds() []FragmentKind {
	kinds := make([]FragmentKind, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// LookupOption resolves a native option name to its handle.
func (r *Registry) LookupOption(name string) (*NativeOption, bool) {
	o, ok := r.nativeOptions[name]
	return o, ok
}

// optionField describes one exported field of a fragment struct. The
// name is the `option` tag if present, the Go field name otherwise.
type optionField struct {
	name  string
	index int
}

func fragmentFields(f FragmentOptions) []optionField {
	elemType := reflect.TypeOf(f).Elem()
	fields := make([]optionField, 0, elemType.NumField())
	for i := 0; i < elemType.NumField(); i++ {
		field := elemType.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("option"); ok && tag != "" {
			name = tag
		}
		fields = append(fields, optionField{name: name, index: i})
	}
	return fields
}

func fragmentFieldValue(f FragmentOptions, index int) any {
	return reflect.ValueOf(f).Elem().Field(index).Interface()
}

// cloneFragment creates a shallow copy of a fragment. Field values are
// shared with the original, which is safe as fragments are immutable.
func cloneFragment(f FragmentOptions) FragmentOptions {
	v := reflect.ValueOf(f).Elem()
	clone := reflect.New(v.Type())
	clone.Elem().Set(v)
	return clone.Interface().(FragmentOptions)
}

// setFragmentField sets a field of a fragment, addressed by option tag
// or field name. Only used on freshly cloned fragments during diff
// application.
func setFragmentField(f FragmentOptions, name string, value any) error {
	for _, field := range fragmentFields(f) {
		if field.name != name {
			continue
		}
		target := reflect.ValueOf(f).Elem().Field(field.index)
		if value == nil {
			target.Set(reflect.Zero(target.Type()))
			return nil
		}
		v := reflect.ValueOf(value)
		if !v.Type().AssignableTo(target.Type()) {
			return fmt.Errorf("field %#v of fragment kind %#v expects values of type %s, not %s", name, string(f.FragmentKind()), target.Type(), v.Type())
		}
		target.Set(v)
		return nil
	}
	return fmt.Errorf("fragment kind %#v has no field %#v", string(f.FragmentKind()), name)
}

// canonicalFieldValue normalizes a field value prior to encoding, so
// that encodings partition values the same way equalValues does: nil
// slices encode identically to empty slices.
func canonicalFieldValue(value any) any {
	if v := reflect.ValueOf(value); v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}

// equalValues compares two field values structurally. Nil and empty
// sequences are considered equal, so that equality does not depend on
// how a collection was constructed.
func equalValues(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.IsValid() && bv.IsValid() && av.Kind() == reflect.Slice && bv.Kind() == reflect.Slice &&
		av.Type() == bv.Type() && av.Len() == 0 && bv.Len() == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// fragmentsEqual compares two fragments of the same kind field by
// field.
func fragmentsEqual(a, b FragmentOptions) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	for _, field := range fragmentFields(a) {
		if !equalValues(fragmentFieldValue(a, field.index), fragmentFieldValue(b, field.index)) {
			return false
		}
	}
	return true
}
