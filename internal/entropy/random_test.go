package entropy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeededIsDeterministic(t *testing.T) {
	a, b := NewSeeded(42), NewSeeded(42)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
		assert.Equal(t, a.Intn(7), b.Intn(7))
	}
}

func TestDeriveSeparatesConsumers(t *testing.T) {
	alice, bob := Derive(42, "alice"), Derive(42, "bob")
	same := 0
	for i := 0; i < 20; i++ {
		if alice.Float64() == bob.Float64() {
			same++
		}
	}
	assert.Less(t, same, 20)
	assert.IsType(t, Crypto{}, Derive(0, "alice"))
}

func TestCryptoRange(t *testing.T) {
	var c Crypto
	for i := 0; i < 200; i++ {
		f := c.Float64()
		assert.GreaterOrEqual(t, f, 0.0)
		assert.Less(t, f, 1.0)
		n := c.Intn(3)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 3)
	}
	assert.Panics(t, func() { c.Intn(0) })
}

func TestPick(t *testing.T) {
	assert.Equal(t, "", Pick[string](NewSeeded(1), nil))
	assert.Equal(t, "only", Pick(NewSeeded(1), []string{"only"}))
}
