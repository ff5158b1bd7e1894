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

func TestDiffForReconstruction(t *testing.T) {
	fp := options.DeterministicFingerprinter

	t.Run("RoundTrip", func(t *testing.T) {
		platformSuffix := "glibc"
		base := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "fastbuild", CPU: "k8"}).
			AddFragment(&fragments.ToolchainOptions{Copts: []string{"-g"}}).
			SetStarlarkOption(label.MustNewLabel("//foo:flag"), starlark.String("old")).
			SetStarlarkOption(label.MustNewLabel("//dropped:flag"), starlark.True).
			Build()
		target := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "opt", CPU: "k8", PlatformSuffix: &platformSuffix}).
			SetStarlarkOption(label.MustNewLabel("//foo:flag"), starlark.String("new")).
			SetStarlarkOption(label.MustNewLabel("//added:flag"), starlark.MakeInt(7)).
			Build()

		d, err := options.DiffForReconstruction(base, target, fp)
		require.NoError(t, err)
		assert.False(t, d.IsEmpty())

		reconstructed, err := base.ApplyDiff(d, fp)
		require.NoError(t, err)
		assert.True(t, reconstructed.Equal(target))
	})

	t.Run("IdentityShortCircuit", func(t *testing.T) {
		base := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "opt", CPU: "k8"}).
			Build()

		d, err := options.DiffForReconstruction(base, base, fp)
		require.NoError(t, err)
		assert.True(t, d.IsEmpty())

		applied, err := base.ApplyDiff(d, fp)
		require.NoError(t, err)
		assert.Same(t, base, applied)
	})

	t.Run("StructurallyEqualBaseWithNilVersusEmptySlice", func(t *testing.T) {
		a := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "opt", CPU: "k8", Features: nil}).
			Build()
		b := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "opt", CPU: "k8", Features: []string{}}).
			Build()

		d, err := options.DiffForReconstruction(a, a, fp)
		require.NoError(t, err)
		require.True(t, d.IsEmpty())

		// b is structurally equal to a, so it is an acceptable base.
		applied, err := b.ApplyDiff(d, fp)
		require.NoError(t, err)
		assert.Same(t, b, applied)
	})

	t.Run("MismatchedBase", func(t *testing.T) {
		base := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "fastbuild", CPU: "k8"}).
			Build()
		target := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "opt", CPU: "k8"}).
			Build()
		other := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "fastbuild", CPU: "arm64"}).
			Build()

		d, err := options.DiffForReconstruction(base, target, fp)
		require.NoError(t, err)

		_, err = other.ApplyDiff(d, fp)
		require.ErrorAs(t, err, &options.MismatchedBaseError{})
		assert.EqualError(t, err, "cannot reconstruct BuildOptions with a different base")
	})

	t.Run("AddedAndDroppedFragments", func(t *testing.T) {
		base := options.NewBuilder().
			AddFragment(fragments.NewCoreOptions()).
			Build()
		target := options.NewBuilder().
			AddFragment(&fragments.ToolchainOptions{Copts: []string{"-O2"}}).
			Build()

		d, err := options.DiffForReconstruction(base, target, fp)
		require.NoError(t, err)

		reconstructed, err := base.ApplyDiff(d, fp)
		require.NoError(t, err)
		assert.True(t, reconstructed.Equal(target))
		assert.Equal(t, []options.FragmentKind{"toolchain"}, reconstructed.FragmentKinds())
	})

	t.Run("ScenarioCompilationModeChange", func(t *testing.T) {
		one := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "opt", CPU: "k8"}).
			Build()
		two := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "dbg", CPU: "k8"}).
			Build()

		symmetric, err := options.Diff(one, two)
		require.NoError(t, err)
		assert.False(t, symmetric.AreSame())
		assert.Equal(t, []options.FieldKey{{Kind: "core", Field: "compilation_mode"}}, symmetric.DifferingFields())

		d, err := options.DiffForReconstruction(one, two, fp)
		require.NoError(t, err)
		reconstructed, err := one.ApplyDiff(d, fp)
		require.NoError(t, err)
		assert.True(t, reconstructed.Equal(two))
	})
}

func TestDiffForReconstructionSerialization(t *testing.T) {
	fp := options.DeterministicFingerprinter
	registry := fragments.NewRegistry()

	newBase := func() *options.BuildOptions {
		return options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "fastbuild", CPU: "k8"}).
			SetStarlarkOption(label.MustNewLabel("//foo:flag"), starlark.String("old")).
			Build()
	}
	newTarget := func() *options.BuildOptions {
		platformSuffix := "musl"
		return options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "opt", CPU: "k8", PlatformSuffix: &platformSuffix, Features: []string{"a", "b"}}).
			AddFragment(&fragments.ToolchainOptions{Copts: []string{"-O2"}}).
			SetStarlarkOption(label.MustNewLabel("//foo:flag"), starlark.String("new")).
			SetStarlarkOption(label.MustNewLabel("//bar:added"), starlark.True).
			Build()
	}

	t.Run("ByteStability", func(t *testing.T) {
		d1, err := options.DiffForReconstruction(newBase(), newTarget(), fp)
		require.NoError(t, err)
		d2, err := options.DiffForReconstruction(newBase(), newTarget(), fp)
		require.NoError(t, err)

		data1, err := options.DeterministicDiffSerializer.Serialize(d1)
		require.NoError(t, err)
		data2, err := options.DeterministicDiffSerializer.Serialize(d2)
		require.NoError(t, err)
		assert.Equal(t, data1, data2)

		caching := options.NewCachingDiffSerializer()
		cached, err := caching.Serialize(d1)
		require.NoError(t, err)
		assert.Equal(t, data1, cached)

		// Repeated serialization through the same cache returns the
		// memoized bytes.
		cachedAgain, err := caching.Serialize(d1)
		require.NoError(t, err)
		assert.Equal(t, cached, cachedAgain)
	})

	t.Run("ChangedSliceFieldNilnessDoesNotLeak", func(t *testing.T) {
		newBase := func() *options.BuildOptions {
			return options.NewBuilder().
				AddFragment(&fragments.CoreOptions{CompilationMode: "opt", CPU: "k8", Features: []string{"x"}}).
				Build()
		}
		targetNil := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "opt", CPU: "k8", Features: nil}).
			Build()
		targetEmpty := options.NewBuilder().
			AddFragment(&fragments.CoreOptions{CompilationMode: "opt", CPU: "k8", Features: []string{}}).
			Build()

		d1, err := options.DiffForReconstruction(newBase(), targetNil, fp)
		require.NoError(t, err)
		d2, err := options.DiffForReconstruction(newBase(), targetEmpty, fp)
		require.NoError(t, err)

		data1, err := d1.MarshalBinary()
		require.NoError(t, err)
		data2, err := d2.MarshalBinary()
		require.NoError(t, err)
		assert.Equal(t, data1, data2)
	})

	t.Run("UnmarshalRoundTrip", func(t *testing.T) {
		base, target := newBase(), newTarget()
		d, err := options.DiffForReconstruction(base, target, fp)
		require.NoError(t, err)

		data, err := d.MarshalBinary()
		require.NoError(t, err)
		decoded, err := options.UnmarshalDiffForReconstruction(data, registry)
		require.NoError(t, err)

		reconstructed, err := base.ApplyDiff(decoded, fp)
		require.NoError(t, err)
		assert.True(t, reconstructed.Equal(target))
	})

	t.Run("UnmarshalWithDroppedSettings", func(t *testing.T) {
		base := options.NewBuilder().
			AddFragment(fragments.NewCoreOptions()).
			SetStarlarkOption(label.MustNewLabel("//dropped:flag"), starlark.True).
			Build()
		target := options.NewBuilder().
			AddFragment(fragments.NewCoreOptions()).
			Build()

		d, err := options.DiffForReconstruction(base, target, fp)
		require.NoError(t, err)
		data, err := d.MarshalBinary()
		require.NoError(t, err)
		decoded, err := options.UnmarshalDiffForReconstruction(data, registry)
		require.NoError(t, err)

		reconstructed, err := base.ApplyDiff(decoded, fp)
		require.NoError(t, err)
		assert.True(t, reconstructed.Equal(target))
		assert.Empty(t, reconstructed.StarlarkOptionLabels())
	})
}
