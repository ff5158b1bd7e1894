package options_test

import (
	"math/big"
	"testing"

	"cairn.build/pkg/model/options"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestStarlarkValueCodec(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		hugeInt, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
		require.True(t, ok)

		innerDict := starlark.NewDict(1)
		require.NoError(t, innerDict.SetKey(starlark.String("key"), starlark.MakeInt(1)))

		for name, value := range map[string]starlark.Value{
			"None":    starlark.None,
			"Bool":    starlark.True,
			"Int":     starlark.MakeInt(42),
			"HugeInt": starlark.MakeBigInt(hugeInt),
			"Float":   starlark.Float(3.25),
			"String":  starlark.String("hello"),
			"List": starlark.NewList([]starlark.Value{
				starlark.String("a"),
				starlark.MakeInt(1),
			}),
			"Tuple": starlark.Tuple{starlark.String("a"), starlark.None},
			"Dict":  innerDict,
		} {
			t.Run(name, func(t *testing.T) {
				data, err := options.MarshalStarlarkValue(value)
				require.NoError(t, err)
				decoded, err := options.UnmarshalStarlarkValue(data)
				require.NoError(t, err)
				equal, err := starlark.Equal(value, decoded)
				require.NoError(t, err)
				assert.True(t, equal)
			})
		}
	})

	t.Run("DictInsertionOrderIndependent", func(t *testing.T) {
		forward := starlark.NewDict(2)
		require.NoError(t, forward.SetKey(starlark.String("a"), starlark.MakeInt(1)))
		require.NoError(t, forward.SetKey(starlark.String("b"), starlark.MakeInt(2)))
		backward := starlark.NewDict(2)
		require.NoError(t, backward.SetKey(starlark.String("b"), starlark.MakeInt(2)))
		require.NoError(t, backward.SetKey(starlark.String("a"), starlark.MakeInt(1)))

		forwardData, err := options.MarshalStarlarkValue(forward)
		require.NoError(t, err)
		backwardData, err := options.MarshalStarlarkValue(backward)
		require.NoError(t, err)
		assert.Equal(t, forwardData, backwardData)
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := options.MarshalStarlarkValue(starlark.NewBuiltin("f", nil))
		assert.ErrorContains(t, err, "cannot be encoded")
	})
}
