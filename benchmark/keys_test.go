package benchmark

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestKeySchemes(t *testing.T) {
	assert.Equal(t, "0", KeySchemeSequential.Key(0))
	assert.Equal(t, "12345", KeySchemeSequential.Key(12345))

	hashed := KeySchemeHashed.Key(1)
	assert.Len(t, hashed, 64)
	assert.Equal(t, hashed, KeySchemeHashed.Key(1))
	assert.NotEqual(t, hashed, KeySchemeHashed.Key(2))

	assert.True(t, KeySchemeSequential.Valid())
	assert.True(t, KeySchemeHashed.Valid())
	assert.False(t, KeyScheme("random").Valid())
	assert.False(t, KeyScheme("").Valid())
}

func TestKeySchemesAreInjective(t *testing.T) {
	properties := gopter.NewProperties(nil)

	for _, scheme := range []KeyScheme{KeySchemeSequential, KeySchemeHashed} {
		scheme := scheme
		properties.Property(string(scheme)+" keys differ for different ids", prop.ForAll(
			func(a, b int64) bool {
				return (a == b) == (scheme.Key(a) == scheme.Key(b))
			},
			gen.Int64Range(0, 1<<40),
			gen.Int64Range(0, 1<<40),
		))
	}

	properties.TestingRun(t)
}
