package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEnvelopeRoundTrip(t *testing.T) {
	v := Mapping(
		Entry{Key: "name", Value: String("widget")},
		Entry{Key: "price", Value: Float(9.99)},
		Entry{Key: "tags", Value: Sequence(String("a"), String("b"))},
	)
	envelope, err := EncodeEnvelope(v)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(envelope)
	require.NoError(t, err)
	assert.True(t, Equal(v, decoded))
}

func TestEncodeEnvelopeIsSelfFramed(t *testing.T) {
	a, err := EncodeEnvelope(String("a"))
	require.NoError(t, err)
	b, err := EncodeEnvelope(Mapping(Entry{Key: "k", Value: Int(1)}))
	require.NoError(t, err)

	// Each envelope carries its own explicit metadata length, so each one
	// decodes on its own without any outside framing.
	decodedA, err := DecodeEnvelope(a)
	require.NoError(t, err)
	assert.Equal(t, "a", decodedA.AsString())

	decodedB, err := DecodeEnvelope(b)
	require.NoError(t, err)
	v, ok := decodedB.Get("k")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.AsInt())
}

func TestDecodeEnvelopeRejectsTruncatedMetadata(t *testing.T) {
	envelope, err := EncodeEnvelope(String("hello"))
	require.NoError(t, err)
	_, err = DecodeEnvelope(envelope[:1])
	assert.Error(t, err)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope(nil)
	assert.Error(t, err)
}
