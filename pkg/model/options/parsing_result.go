package options

import (
	"go.starlark.net/starlark"
)

// ParsingResult holds the option values extracted from a parsed
// command line: fragment instances carrying the native option values,
// and dynamic setting overrides keyed by the label string under which
// they were set. Dynamic setting names are kept as raw strings, as
// flag parsing happens before label validation.
type ParsingResult struct {
	fragments       map[FragmentKind]FragmentOptions
	starlarkOptions map[string]starlark.Value
}

// ParsingResultBuilder assembles a ParsingResult.
type ParsingResultBuilder struct {
	fragments       map[FragmentKind]FragmentOptions
	starlarkOptions map[string]starlark.Value
}

func NewParsingResultBuilder() *ParsingResultBuilder {
	return &ParsingResultBuilder{
		fragments:       map[FragmentKind]FragmentOptions{},
		starlarkOptions: map[string]starlark.Value{},
	}
}

// AddFragment adds a fragment instance, replacing any previously added
// instance of the same kind.
func (b *ParsingResultBuilder) AddFragment(f FragmentOptions) *ParsingResultBuilder {
	b.fragments[f.FragmentKind()] = f
	return b
}

// SetStarlarkOption records a dynamic setting override under its raw
// name.
func (b *ParsingResultBuilder) SetStarlarkOption(name string, v starlark.Value) *ParsingResultBuilder {
	b.starlarkOptions[name] = v
	return b
}

func (b *ParsingResultBuilder) Build() *ParsingResult {
	pr := &ParsingResult{
		fragments:       b.fragments,
		starlarkOptions: b.starlarkOptions,
	}
	b.fragments = map[FragmentKind]FragmentOptions{}
	b.starlarkOptions = map[string]starlark.Value{}
	return pr
}

// Get returns the fragment instance of the given kind.
func (pr *ParsingResult) Get(kind FragmentKind) (FragmentOptions, bool) {
	f, ok := pr.fragments[kind]
	return f, ok
}

// StarlarkOption returns the override value recorded under a raw name.
func (pr *ParsingResult) StarlarkOption(name string) (starlark.Value, bool) {
	v, ok := pr.starlarkOptions[name]
	return v, ok
}
