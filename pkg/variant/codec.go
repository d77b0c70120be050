package variant

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// tag values for the self-describing value sequence. Distinct from Kind so
// the wire format can evolve independently of the in-memory representation.
const (
	tagNull byte = iota
	tagFalse
	tagTrue
	tagInt
	tagFloat
	tagString
	tagBytes
	tagSequence
	tagMapping
)

// Metadata is the decoded form of the shared dictionary byte string: the
// ordered, deduplicated set of every object key seen during encoding.
type Metadata struct {
	keys    []string
	indexOf map[string]int
}

func newMetadata() *Metadata {
	return &Metadata{indexOf: make(map[string]int)}
}

func (m *Metadata) intern(key string) int {
	if idx, ok := m.indexOf[key]; ok {
		return idx
	}
	idx := len(m.keys)
	m.keys = append(m.keys, key)
	m.indexOf[key] = idx
	return idx
}

// DictionaryHash returns a stable hash of the key dictionary, useful for
// content-addressed caching of shared metadata across many variant values
// written under the same schema.
func (m *Metadata) DictionaryHash() uint64 {
	h := xxhash.New()
	for _, k := range m.keys {
		_, _ = h.WriteString(k)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// Encode produces the {metadata, value} byte pair for v. Encoding is
// deterministic: the same input always produces the same bytes, because
// object keys are assigned dictionary indices in first-encounter order and
// every scalar has exactly one wire representation.
func Encode(v Value) (metadata []byte, value []byte, err error) {
	md := newMetadata()
	var buf []byte
	buf, err = encodeValue(v, md, buf)
	if err != nil {
		return nil, nil, err
	}
	return encodeMetadata(md), buf, nil
}

func encodeMetadata(md *Metadata) []byte {
	var buf []byte
	buf = appendUvarint(buf, uint64(len(md.keys)))
	for _, k := range md.keys {
		buf = appendUvarint(buf, uint64(len(k)))
		buf = append(buf, k...)
	}
	return buf
}

func decodeMetadata(data []byte) (*Metadata, error) {
	md := newMetadata()
	n, data, err := readUvarint(data)
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	for i := uint64(0); i < n; i++ {
		var length uint64
		length, data, err = readUvarint(data)
		if err != nil {
			return nil, fmt.Errorf("decode metadata key %d: %w", i, err)
		}
		if uint64(len(data)) < length {
			return nil, fmt.Errorf("decode metadata key %d: truncated", i)
		}
		md.intern(string(data[:length]))
		data = data[length:]
	}
	return md, nil
}

func encodeValue(v Value, md *Metadata, buf []byte) ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return append(buf, tagNull), nil
	case KindBool:
		if v.boolean {
			return append(buf, tagTrue), nil
		}
		return append(buf, tagFalse), nil
	case KindInt:
		buf = append(buf, tagInt)
		return appendVarint(buf, v.integer), nil
	case KindFloat:
		buf = append(buf, tagFloat)
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v.float))
		return append(buf, tmp[:]...), nil
	case KindString:
		buf = append(buf, tagString)
		buf = appendUvarint(buf, uint64(len(v.str)))
		return append(buf, v.str...), nil
	case KindBytes:
		buf = append(buf, tagBytes)
		buf = appendUvarint(buf, uint64(len(v.bytes)))
		return append(buf, v.bytes...), nil
	case KindSequence:
		buf = append(buf, tagSequence)
		buf = appendUvarint(buf, uint64(len(v.seq)))
		var err error
		for _, e := range v.seq {
			buf, err = encodeValue(e, md, buf)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case KindMapping:
		buf = append(buf, tagMapping)
		buf = appendUvarint(buf, uint64(len(v.mapping)))
		var err error
		for _, entry := range v.mapping {
			idx := md.intern(entry.Key)
			buf = appendUvarint(buf, uint64(idx))
			buf, err = encodeValue(entry.Value, md, buf)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("encode variant: unknown kind %d", v.Kind)
	}
}

// Decode reconstructs the original Value tree from a {metadata, value}
// pair produced by Encode.
func Decode(metadata, value []byte) (Value, error) {
	md, err := decodeMetadata(metadata)
	if err != nil {
		return Value{}, err
	}
	v, rest, err := decodeValue(value, md)
	if err != nil {
		return Value{}, err
	}
	if len(rest) != 0 {
		return Value{}, fmt.Errorf("decode variant: %d trailing bytes", len(rest))
	}
	return v, nil
}

func decodeValue(data []byte, md *Metadata) (Value, []byte, error) {
	if len(data) == 0 {
		return Value{}, nil, fmt.Errorf("decode variant: empty input")
	}
	tag, data := data[0], data[1:]
	switch tag {
	case tagNull:
		return Null(), data, nil
	case tagFalse:
		return Bool(false), data, nil
	case tagTrue:
		return Bool(true), data, nil
	case tagInt:
		i, rest, err := readVarint(data)
		if err != nil {
			return Value{}, nil, fmt.Errorf("decode int: %w", err)
		}
		return Int(i), rest, nil
	case tagFloat:
		if len(data) < 8 {
			return Value{}, nil, fmt.Errorf("decode float: truncated")
		}
		bits := binary.LittleEndian.Uint64(data[:8])
		return Float(math.Float64frombits(bits)), data[8:], nil
	case tagString:
		length, rest, err := readUvarint(data)
		if err != nil {
			return Value{}, nil, fmt.Errorf("decode string length: %w", err)
		}
		if uint64(len(rest)) < length {
			return Value{}, nil, fmt.Errorf("decode string: truncated")
		}
		return String(string(rest[:length])), rest[length:], nil
	case tagBytes:
		length, rest, err := readUvarint(data)
		if err != nil {
			return Value{}, nil, fmt.Errorf("decode bytes length: %w", err)
		}
		if uint64(len(rest)) < length {
			return Value{}, nil, fmt.Errorf("decode bytes: truncated")
		}
		return Bytes(rest[:length]), rest[length:], nil
	case tagSequence:
		count, rest, err := readUvarint(data)
		if err != nil {
			return Value{}, nil, fmt.Errorf("decode sequence length: %w", err)
		}
		seq := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			var elem Value
			elem, rest, err = decodeValue(rest, md)
			if err != nil {
				return Value{}, nil, fmt.Errorf("decode sequence element %d: %w", i, err)
			}
			seq = append(seq, elem)
		}
		return Sequence(seq...), rest, nil
	case tagMapping:
		count, rest, err := readUvarint(data)
		if err != nil {
			return Value{}, nil, fmt.Errorf("decode mapping length: %w", err)
		}
		entries := make([]Entry, 0, count)
		for i := uint64(0); i < count; i++ {
			var idx uint64
			idx, rest, err = readUvarint(rest)
			if err != nil {
				return Value{}, nil, fmt.Errorf("decode mapping key %d: %w", i, err)
			}
			if idx >= uint64(len(md.keys)) {
				return Value{}, nil, fmt.Errorf("decode mapping key %d: dictionary index %d out of range", i, idx)
			}
			var val Value
			val, rest, err = decodeValue(rest, md)
			if err != nil {
				return Value{}, nil, fmt.Errorf("decode mapping value %d: %w", i, err)
			}
			entries = append(entries, Entry{Key: md.keys[idx], Value: val})
		}
		return Mapping(entries...), rest, nil
	default:
		return Value{}, nil, fmt.Errorf("decode variant: unknown tag %d", tag)
	}
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func appendVarint(buf []byte, v int64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func readUvarint(data []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(data)
	if n <= 0 {
		return 0, nil, fmt.Errorf("malformed varint")
	}
	return v, data[n:], nil
}

func readVarint(data []byte) (int64, []byte, error) {
	v, n := binary.Varint(data)
	if n <= 0 {
		return 0, nil, fmt.Errorf("malformed varint")
	}
	return v, data[n:], nil
}
