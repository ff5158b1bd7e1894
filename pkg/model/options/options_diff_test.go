package options_test

import (
	"testing"

	"cairn.build/pkg/label"
	"cairn.build/pkg/model/fragments"
	"cairn.build/pkg/model/options"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestDiff(t *testing.T) {
	t.Run("NilOptions", func(t *testing.T) {
		bo := options.NewBuilder().Build()
		_, err := options.Diff(nil, bo)
		require.ErrorIs(t, err, options.ErrNilBuildOptions)
		_, err = options.Diff(bo, nil)
		assert.EqualError(t, err, "cannot diff nil BuildOptions")
	})

	t.Run("SameInstance", func(t *testing.T) {
		bo := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "opt", CPU: "k8"}).
			SetStarlarkOption(label.MustNewLabel("//foo:flag"), starlark.String("value")).
			Build()

		d, err := options.Diff(bo, bo)
		require.NoError(t, err)
		assert.True(t, d.AreSame())
	})

	t.Run("DifferingField", func(t *testing.T) {
		one := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "opt", CPU: "k8"}).
			Build()
		two := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "dbg", CPU: "k8"}).
			Build()

		d, err := options.Diff(one, two)
		require.NoError(t, err)
		assert.False(t, d.AreSame())

		key := options.FieldKey{Kind: "core", Field: "compilation_mode"}
		require.Equal(t, []options.FieldKey{key}, d.DifferingFields())
		first, ok := d.First(key)
		require.True(t, ok)
		assert.Equal(t, "opt", first)
		second, ok := d.Second(key)
		require.True(t, ok)
		assert.Equal(t, "dbg", second)
	})

	t.Run("Symmetry", func(t *testing.T) {
		one := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "opt", CPU: "k8"}).
			Build()
		two := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "dbg", CPU: "arm64"}).
			Build()

		forward, err := options.Diff(one, two)
		require.NoError(t, err)
		backward, err := options.Diff(two, one)
		require.NoError(t, err)

		assert.Equal(t, forward.AreSame(), backward.AreSame())
		require.Equal(t, forward.DifferingFields(), backward.DifferingFields())
		for _, key := range forward.DifferingFields() {
			forwardFirst, _ := forward.First(key)
			forwardSecond, _ := forward.Second(key)
			backwardFirst, _ := backward.First(key)
			backwardSecond, _ := backward.Second(key)
			assert.Equal(t, forwardFirst, backwardSecond)
			assert.Equal(t, forwardSecond, backwardFirst)
		}
	})

	t.Run("ExtraFragments", func(t *testing.T) {
		one := options.NewBuilder().
			AddFragment(fragments.NewCoreOptions()).
			AddFragment(fragments.NewToolchainOptions()).
			Build()
		two := options.NewBuilder().
			AddFragment(fragments.NewCoreOptions()).
			Build()

		d, err := options.Diff(one, two)
		require.NoError(t, err)
		assert.False(t, d.AreSame())
		assert.Equal(t, []options.FragmentKind{"toolchain"}, d.ExtraFirstFragmentKinds())
		assert.Empty(t, d.ExtraSecondFragments())

		reverse, err := options.Diff(two, one)
		require.NoError(t, err)
		assert.Empty(t, reverse.ExtraFirstFragmentKinds())
		require.Len(t, reverse.ExtraSecondFragments(), 1)
		assert.Equal(t, options.FragmentKind("toolchain"), reverse.ExtraSecondFragments()[0].FragmentKind())
	})

	t.Run("EqualStarlarkOptions", func(t *testing.T) {
		one := options.NewBuilder().
			SetStarlarkOption(label.MustNewLabel("//foo:flag"), starlark.String("value")).
			Build()
		two := options.NewBuilder().
			SetStarlarkOption(label.MustNewLabel("//foo:flag"), starlark.String("value")).
			Build()

		d, err := options.Diff(one, two)
		require.NoError(t, err)
		assert.True(t, d.AreSame())
	})

	t.Run("DifferingStarlarkOptions", func(t *testing.T) {
		flag := label.MustNewLabel("//foo:flag")
		one := options.NewBuilder().
			SetStarlarkOption(flag, starlark.String("one")).
			SetStarlarkOption(label.MustNewLabel("//only:first"), starlark.True).
			Build()
		two := options.NewBuilder().
			SetStarlarkOption(flag, starlark.String("two")).
			SetStarlarkOption(label.MustNewLabel("//only:second"), starlark.False).
			Build()

		d, err := options.Diff(one, two)
		require.NoError(t, err)
		assert.False(t, d.AreSame())
		assert.Equal(t, []label.Label{flag}, d.DifferingStarlarkOptions())
		first, ok := d.StarlarkFirst(flag)
		require.True(t, ok)
		assert.Equal(t, starlark.String("one"), first)
		second, ok := d.StarlarkSecond(flag)
		require.True(t, ok)
		assert.Equal(t, starlark.String("two"), second)
		assert.Equal(t, []label.Label{label.MustNewLabel("//only:first")}, d.ExtraStarlarkFirst())
		assert.Equal(t, map[label.Label]starlark.Value{
			label.MustNewLabel("//only:second"): starlark.False,
		}, d.ExtraStarlarkSecond())
	})

	t.Run("PrettyPrint", func(t *testing.T) {
		one := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "opt", CPU: "k8"}).
			SetStarlarkOption(label.MustNewLabel("//foo:flag"), starlark.String("one")).
			Build()
		two := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "dbg", CPU: "k8"}).
			SetStarlarkOption(label.MustNewLabel("//foo:flag"), starlark.String("two")).
			Build()

		d, err := options.Diff(one, two)
		require.NoError(t, err)
		rendered := d.PrettyPrint()
		assert.Contains(t, rendered, "core.compilation_mode: opt → dbg")
		assert.Contains(t, rendered, "//foo:flag: \"one\" → \"two\"")
	})
}
