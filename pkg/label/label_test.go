package label_test

import (
	"testing"

	"cairn.build/pkg/label"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLabel(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		for _, value := range []string{
			"//foo:bar",
			"//foo/bar:baz",
			"//foo",
			"//:toplevel",
			"@rules_go//go/config:gc_goopts",
			"//custom:flag",
		} {
			_, err := label.NewLabel(value)
			assert.NoError(t, err, value)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, value := range []string{
			"",
			"//",
			"@@@",
			"foo:bar",
			"foo",
			"//foo:",
			":bar",
		} {
			_, err := label.NewLabel(value)
			assert.Error(t, err, value)
		}
	})

	t.Run("RedundantTargetName", func(t *testing.T) {
		assert.Equal(t, "//foo", label.MustNewLabel("//foo:foo").String())
		assert.Equal(t, "//foo/bar", label.MustNewLabel("//foo/bar:bar").String())
		assert.Equal(t, "//foo:bar", label.MustNewLabel("//foo:bar").String())
		assert.Equal(t, "//:foo", label.MustNewLabel("//:foo").String())
	})
}

func TestLabelParts(t *testing.T) {
	t.Run("ExplicitTargetName", func(t *testing.T) {
		l := label.MustNewLabel("//foo/bar:baz")
		assert.Equal(t, "foo/bar", l.GetPackagePath())
		assert.Equal(t, "baz", l.GetTargetName())
	})

	t.Run("ElidedTargetName", func(t *testing.T) {
		l := label.MustNewLabel("//foo/bar:bar")
		assert.Equal(t, "foo/bar", l.GetPackagePath())
		assert.Equal(t, "bar", l.GetTargetName())
	})

	t.Run("RepoPrefix", func(t *testing.T) {
		l := label.MustNewLabel("@rules_go//go/config:gc_goopts")
		assert.Equal(t, "go/config", l.GetPackagePath())
		assert.Equal(t, "gc_goopts", l.GetTargetName())
	})
}

func TestCompare(t *testing.T) {
	a := label.MustNewLabel("//a:x")
	b := label.MustNewLabel("//b:x")
	require.Negative(t, label.Compare(a, b))
	require.Positive(t, label.Compare(b, a))
	require.Zero(t, label.Compare(a, label.MustNewLabel("//a:x")))
}
