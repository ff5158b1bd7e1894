package options

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"cairn.build/pkg/label"

	"go.starlark.net/starlark"
)

// BuildOptions is the complete set of option values controlling how
// targets are built: at most one fragment instance per registered
// kind, plus the values of dynamically declared Starlark settings.
// BuildOptions are immutable; every operation that "modifies" a
// configuration yields a new instance.
type BuildOptions struct {
	fragments       map[FragmentKind]FragmentOptions
	starlarkOptions map[label.Label]starlark.Value
}

// NewBuildOptions constructs a configuration holding default-valued
// fragments of exactly the requested kinds and no Starlark settings.
// Construction fails with ConstructionError if a kind is not known to
// the registry.
func NewBuildOptions(registry *Registry, kinds []FragmentKind) (*BuildOptions, error) {
	b := NewBuilder()
	for _, kind := range kinds {
		f, err := registry.Create(kind)
		if err != nil {
			return nil, err
		}
		b.AddFragment(f)
	}
	return b.Build(), nil
}

// Builder assembles a BuildOptions from fragments and Starlark setting
// values. A Builder is single-use and not safe for concurrent use.
type Builder struct {
	fragments       map[FragmentKind]FragmentOptions
	starlarkOptions map[label.Label]starlark.Value
}

func NewBuilder() *Builder {
	return &Builder{
		fragments:       map[FragmentKind]FragmentOptions{},
		starlarkOptions: map[label.Label]starlark.Value{},
	}
}

// AddFragment adds a fragment instance, replacing any previously added
// instance of the same kind.
func (b *Builder) AddFragment(f FragmentOptions) *Builder {
	b.fragments[f.FragmentKind()] = f
	return b
}

// SetStarlarkOption sets the value of a dynamically declared setting.
func (b *Builder) SetStarlarkOption(l label.Label, v starlark.Value) *Builder {
	b.starlarkOptions[l] = v
	return b
}

// RemoveStarlarkOption removes a setting, if present.
func (b *Builder) RemoveStarlarkOption(l label.Label) *Builder {
	delete(b.starlarkOptions, l)
	return b
}

func (b *Builder) Build() *BuildOptions {
	bo := &BuildOptions{
		fragments:       b.fragments,
		starlarkOptions: b.starlarkOptions,
	}
	// Detach the maps, so that further use of the builder cannot
	// mutate the constructed instance.
	b.fragments = map[FragmentKind]FragmentOptions{}
	b.starlarkOptions = map[label.Label]starlark.Value{}
	return bo
}

// ToBuilder returns a Builder prepopulated with this configuration's
// fragments and settings, for deriving modified configurations.
func (bo *BuildOptions) ToBuilder() *Builder {
	b := NewBuilder()
	for _, f := range bo.fragments {
		b.AddFragment(f)
	}
	for l, v := range bo.starlarkOptions {
		b.SetStarlarkOption(l, v)
	}
	return b
}

// Get returns the fragment instance of the given kind.
func (bo *BuildOptions) Get(kind FragmentKind) (FragmentOptions, bool) {
	f, ok := bo.fragments[kind]
	return f, ok
}

// Contains returns whether a fragment of the given kind is present.
func (bo *BuildOptions) Contains(kind FragmentKind) bool {
	_, ok := bo.fragments[kind]
	return ok
}

// FragmentKinds returns the sorted list of fragment kinds present.
func (bo *BuildOptions) FragmentKinds() []FragmentKind {
	kinds := make([]FragmentKind, 0, len(bo.fragments))
	for kind := range bo.fragments {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// StarlarkOption returns the value of a dynamically declared setting.
func (bo *BuildOptions) StarlarkOption(l label.Label) (starlark.Value, bool) {
	v, ok := bo.starlarkOptions[l]
	return v, ok
}

// StarlarkOptionLabels returns the sorted labels of all settings.
func (bo *BuildOptions) StarlarkOptionLabels() []label.Label {
	return sortedLabels(bo.starlarkOptions)
}

// Equal compares two configurations structurally: the same fragment
// kinds with field-equal instances, and the same settings with deep
// structurally equal values.
func (bo *BuildOptions) Equal(other *BuildOptions) bool {
	if len(bo.fragments) != len(other.fragments) || len(bo.starlarkOptions) != len(other.starlarkOptions) {
		return false
	}
	for kind, f := range bo.fragments {
		otherF, ok := other.fragments[kind]
		if !ok || !fragmentsEqual(f, otherF) {
			return false
		}
	}
	for l, v := range bo.starlarkOptions {
		otherV, ok := other.starlarkOptions[l]
		if !ok || !starlarkValuesEqual(v, otherV) {
			return false
		}
	}
	return true
}

// String returns a deterministic, order-independent rendering of the
// configuration, suitable for logging and for use as a weak cache key.
func (bo *BuildOptions) String() string {
	var sb strings.Builder
	sb.WriteString("BuildOptions(")
	first := true
	for _, kind := range bo.FragmentKinds() {
		f := bo.fragments[kind]
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(string(kind))
		sb.WriteString("{")
		for i, field := range fragmentFields(f) {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", field.name, fragmentFieldValue(f, field.index))
		}
		sb.WriteString("}")
	}
	for _, l := range bo.StarlarkOptionLabels() {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&sb, "%s=%v", l.String(), bo.starlarkOptions[l])
	}
	sb.WriteString(")")
	return sb.String()
}

// ComputeCacheKey returns a stable hexadecimal key identifying this
// configuration's contents. Equal configurations yield equal keys
// regardless of construction order.
func (bo *BuildOptions) ComputeCacheKey(fp Fingerprinter) (string, error) {
	fingerprint, err := fp.FingerprintOptions(bo)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(fingerprint), nil
}

// InvalidSettingError indicates that a parse result contains a
// dynamic setting whose name is not a well-formed label.
type InvalidSettingError struct {
	Name string
	Err  error
}

func (e InvalidSettingError) Error() string {
	return fmt.Sprintf("invalid dynamic setting %#v: %s", e.Name, e.Err)
}

func (e InvalidSettingError) Unwrap() error {
	return e.Err
}

// ApplyParsingResult derives a new configuration from the values held
// by a flag parse result. Fragment kinds present in both this
// configuration and the parse result take the parse result's values;
// kinds not mutually present are dropped, never added. Starlark
// settings are overwritten wholesale from the parse result. Fails with
// InvalidSettingError if a dynamic setting name is malformed.
func (bo *BuildOptions) ApplyParsingResult(parsed *ParsingResult) (*BuildOptions, error) {
	fragments := make(map[FragmentKind]FragmentOptions, len(bo.fragments))
	for kind := range bo.fragments {
		if parsedFragment, ok := parsed.fragments[kind]; ok {
			fragments[kind] = parsedFragment
		}
	}
	starlarkOptions := make(map[label.Label]starlark.Value, len(parsed.starlarkOptions))
	for name, v := range parsed.starlarkOptions {
		l, err := label.NewLabel(name)
		if err != nil {
			return nil, InvalidSettingError{Name: name, Err: err}
		}
		starlarkOptions[l] = v
	}
	return &BuildOptions{
		fragments:       fragments,
		starlarkOptions: starlarkOptions,
	}, nil
}

// Matches returns whether a parse result is compatible with this
// configuration: for every fragment kind present in both, all field
// values are equal, and every Starlark setting in the parse result is
// present here with an equal value. Fragment kinds and settings only
// present on one side of the comparison do not cause a mismatch,
// except for settings present only in the parse result.
func (bo *BuildOptions) Matches(parsed *ParsingResult) bool {
	for kind, f := range bo.fragments {
		parsedFragment, ok := parsed.fragments[kind]
		if !ok {
			continue
		}
		if !fragmentsEqual(f, parsedFragment) {
			return false
		}
	}
	for name, v := range parsed.starlarkOptions {
		l, err := label.NewLabel(name)
		if err != nil {
			return false
		}
		existing, ok := bo.starlarkOptions[l]
		if !ok || !starlarkValuesEqual(existing, v) {
			return false
		}
	}
	return true
}
