package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShreddedNoFieldsReturnsResidual(t *testing.T) {
	residual := Mapping(Entry{Key: "a", Value: Int(1)})
	assert.True(t, Equal(residual, Shredded(residual, nil)))
}

func TestShreddedMergesIntoMapping(t *testing.T) {
	residual := Mapping(Entry{Key: "a", Value: Int(1)})
	result := Shredded(residual, map[string]Value{"b": String("x")})

	a, ok := result.Get("a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), a.AsInt())

	b, ok := result.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "x", b.AsString())
}

func TestShreddedOverwritesResidualField(t *testing.T) {
	residual := Mapping(Entry{Key: "a", Value: Int(1)})
	result := Shredded(residual, map[string]Value{"a": Int(99)})

	a, ok := result.Get("a")
	assert.True(t, ok)
	assert.Equal(t, int64(99), a.AsInt())
}

func TestShreddedWhollyShreddedSingleField(t *testing.T) {
	result := Shredded(Null(), map[string]Value{"only": String("v")})
	assert.Equal(t, KindString, result.Kind)
	assert.Equal(t, "v", result.AsString())
}

func TestShreddedWhollyShreddedMultipleFields(t *testing.T) {
	result := Shredded(Null(), map[string]Value{
		"a": Int(1),
		"b": Int(2),
	})
	assert.Equal(t, KindMapping, result.Kind)
	a, ok := result.Get("a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), a.AsInt())
}
