// Package fragments declares the native option fragments understood by
// the build, together with a registry holding all of them.
package fragments

import (
	"cairn.build/pkg/model/options"
)

// CoreOptions holds the options affecting every build, regardless of
// the languages involved.
type CoreOptions struct {
	CompilationMode string   `option:"compilation_mode"`
	CPU             string   `option:"cpu"`
	StampBinaries   bool     `option:"stamp"`
	PlatformSuffix  *string  `option:"platform_suffix"`
	Features        []string `option:"features"`
	RunUnder        string   `option:"run_under"`
}

// NewCoreOptions creates a default-valued core fragment.
func NewCoreOptions() options.FragmentOptions {
	return &CoreOptions{
		CompilationMode: "fastbuild",
		CPU:             "k8",
	}
}

func (*CoreOptions) FragmentKind() options.FragmentKind {
	return "core"
}

// ToolchainOptions holds the options controlling compiler selection
// and invocation.
type ToolchainOptions struct {
	Compiler *string  `option:"compiler"`
	Copts    []string `option:"copt"`
	CxxOpts  []string `option:"cxxopt"`
}

// NewToolchainOptions creates a default-valued toolchain fragment.
func NewToolchainOptions() options.FragmentOptions {
	return &ToolchainOptions{}
}

func (*ToolchainOptions) FragmentKind() options.FragmentKind {
	return "toolchain"
}

// NewRegistry returns a registry holding all fragment kinds declared
// by this package.
func NewRegistry() *options.Registry {
	r := options.NewRegistry()
	r.MustRegister(NewCoreOptions)
	r.MustRegister(NewToolchainOptions)
	return r
}
