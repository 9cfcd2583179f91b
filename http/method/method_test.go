package method

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethod(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		for _, method := range List {
			assert.Equal(t, method, Parse(method.String()))
		}
	})

	t.Run("count", func(t *testing.T) {
		require.Equal(t, len(List), int(Count))
	})

	t.Run("unknown", func(t *testing.T) {
		for _, str := range []string{"", "get", "GOT", "POSTS", "BREW"} {
			assert.Equal(t, Unknown, Parse(str), str)
		}

		require.Equal(t, "UNKNOWN", Method(200).String())
	})

	t.Run("has body", func(t *testing.T) {
		for _, method := range List {
			assert.Equal(t, method == POST || method == PUT, method.HasBody(), method.String())
		}
	})
}
