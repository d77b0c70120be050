package variant

import "fmt"

// EncodeEnvelope packs the {metadata, value} pair Encode produces into a
// single self-framed byte string (a uvarint metadata length followed by
// metadata then value), for storage in a single Parquet binary column
// where the physical format has no separate slot for a sidecar metadata
// blob.
func EncodeEnvelope(v Value) ([]byte, error) {
	metadata, value, err := Encode(v)
	if err != nil {
		return nil, err
	}
	buf := appendUvarint(nil, uint64(len(metadata)))
	buf = append(buf, metadata...)
	buf = append(buf, value...)
	return buf, nil
}

// DecodeEnvelope reverses EncodeEnvelope.
func DecodeEnvelope(data []byte) (Value, error) {
	length, rest, err := readUvarint(data)
	if err != nil {
		return Value{}, fmt.Errorf("decode variant envelope: %w", err)
	}
	if uint64(len(rest)) < length {
		return Value{}, fmt.Errorf("decode variant envelope: truncated metadata")
	}
	metadata := rest[:length]
	value := rest[length:]
	return Decode(metadata, value)
}
