// Package codec encodes a value.Value into a self-describing, compressed
// byte sequence and decodes the inverse.
//
// The wire format is a one-byte format discriminator followed by a zstd
// frame wrapping a msgpack-encoded tree. Decode refuses any discriminator
// byte it does not recognize rather than guessing at a future format.
//
// Decoding untrusted blobs is unsafe: a crafted payload can claim
// arbitrarily deep nesting, which is why Decode caps recursion depth
// instead of recursing unboundedly. This package offers no authenticated
// variant; callers handling blobs from outside their own process should
// not treat a successful Decode as proof the bytes were not tampered
// with.
package codec

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/cuemby/silo/pkg/siloerr"
	"github.com/cuemby/silo/pkg/value"
)

// formatMsgpackZstd is the only wire format this version emits or
// accepts. Future versions may add formats; they must keep this one
// decodable or bump the discriminator and refuse old readers cleanly.
const formatMsgpackZstd byte = 1

// maxDecodeDepth bounds nested container recursion on decode. Encode
// refuses a Value nested deeper than this, so the only way to hit the
// cap on decode is a hostile or corrupt blob.
const maxDecodeDepth = 64

// CompressionLevel mirrors spec's 1-9 knob, mapped onto zstd's own level
// enum rather than plumbing a raw integer through the encoder.
type CompressionLevel int

func (c CompressionLevel) zstdLevel() zstd.EncoderLevel {
	switch {
	case c <= 2:
		return zstd.SpeedFastest
	case c <= 5:
		return zstd.SpeedDefault
	case c <= 8:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// DefaultCompressionLevel matches spec's documented default of 7.
const DefaultCompressionLevel CompressionLevel = 7

// Encode serializes v with msgpack, then compresses the result with
// zstd at the requested level, and prepends the format discriminator.
func Encode(v value.Value, level CompressionLevel) ([]byte, error) {
	raw, err := marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level.zstdLevel()))
	if err != nil {
		return nil, fmt.Errorf("codec: new zstd writer: %w", err)
	}
	defer enc.Close()

	compressed := enc.EncodeAll(raw, make([]byte, 0, len(raw)+1))
	out := make([]byte, 0, len(compressed)+1)
	out = append(out, formatMsgpackZstd)
	out = append(out, compressed...)
	return out, nil
}

// Decode is the inverse of Encode. A row whose pzblob fails to decode is
// reported via siloerr.ErrDecodeRefused so callers can skip just that
// row instead of failing an entire query.
func Decode(b []byte) (value.Value, error) {
	if len(b) == 0 {
		return value.Value{}, fmt.Errorf("codec: %w: empty blob", siloerr.ErrDecodeRefused)
	}

	format, body := b[0], b[1:]
	if format != formatMsgpackZstd {
		return value.Value{}, fmt.Errorf("codec: %w: unrecognized format byte %d", siloerr.ErrDecodeRefused, format)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return value.Value{}, fmt.Errorf("codec: %w: new zstd reader: %v", siloerr.ErrDecodeRefused, err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(body, nil)
	if err != nil {
		return value.Value{}, fmt.Errorf("codec: %w: zstd decompress: %v", siloerr.ErrDecodeRefused, err)
	}

	v, err := unmarshal(raw)
	if err != nil {
		return value.Value{}, fmt.Errorf("codec: %w: %v", siloerr.ErrDecodeRefused, err)
	}
	return v, nil
}

func marshal(v value.Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := encodeValue(enc, v, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(b []byte) (value.Value, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	return decodeValue(dec, 0)
}

// encodeValue writes v as a [kind, payload] tuple, recursing structurally
// for the container kinds so the whole tree lives in one msgpack stream.
func encodeValue(enc *msgpack.Encoder, v value.Value, depth int) error {
	if depth > maxDecodeDepth {
		return fmt.Errorf("codec: container nesting exceeds %d", maxDecodeDepth)
	}
	switch v.Kind() {
	case value.KNull:
		if err := enc.EncodeArrayLen(1); err != nil {
			return err
		}
		return enc.EncodeUint8(uint8(value.KNull))

	case value.KBool:
		if err := encodeHeader(enc, value.KBool, 2); err != nil {
			return err
		}
		return enc.EncodeBool(v.Bool())

	case value.KInt:
		if err := encodeHeader(enc, value.KInt, 2); err != nil {
			return err
		}
		return enc.EncodeInt64(v.Int())

	case value.KFloat:
		if err := encodeHeader(enc, value.KFloat, 2); err != nil {
			return err
		}
		return enc.EncodeFloat64(v.Float())

	case value.KString:
		if err := encodeHeader(enc, value.KString, 2); err != nil {
			return err
		}
		return enc.EncodeString(v.String())

	case value.KBytes:
		if err := encodeHeader(enc, value.KBytes, 2); err != nil {
			return err
		}
		return enc.EncodeBytes(v.Bytes())

	case value.KSeq:
		items := v.Seq()
		if err := encodeHeader(enc, value.KSeq, 2); err != nil {
			return err
		}
		if err := enc.EncodeArrayLen(len(items)); err != nil {
			return err
		}
		for _, it := range items {
			if err := encodeValue(enc, it, depth+1); err != nil {
				return err
			}
		}
		return nil

	case value.KSet:
		items := v.Set()
		if err := encodeHeader(enc, value.KSet, 2); err != nil {
			return err
		}
		if err := enc.EncodeArrayLen(len(items)); err != nil {
			return err
		}
		for _, it := range items {
			if err := encodeValue(enc, it, depth+1); err != nil {
				return err
			}
		}
		return nil

	case value.KMap:
		pairs := v.Map()
		if err := encodeHeader(enc, value.KMap, 2); err != nil {
			return err
		}
		if err := enc.EncodeArrayLen(len(pairs)); err != nil {
			return err
		}
		for _, p := range pairs {
			if err := enc.EncodeArrayLen(2); err != nil {
				return err
			}
			if err := encodeValue(enc, p.Key, depth+1); err != nil {
				return err
			}
			if err := encodeValue(enc, p.Val, depth+1); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("codec: unsupported kind %s", v.Kind())
	}
}

func encodeHeader(enc *msgpack.Encoder, k value.Kind, arrayLen int) error {
	if err := enc.EncodeArrayLen(arrayLen); err != nil {
		return err
	}
	return enc.EncodeUint8(uint8(k))
}

func decodeValue(dec *msgpack.Decoder, depth int) (value.Value, error) {
	if depth > maxDecodeDepth {
		return value.Value{}, fmt.Errorf("codec: container nesting exceeds %d", maxDecodeDepth)
	}

	n, err := dec.DecodeArrayLen()
	if err != nil {
		return value.Value{}, err
	}
	if n < 1 {
		return value.Value{}, fmt.Errorf("codec: empty value tuple")
	}

	kindByte, err := dec.DecodeUint8()
	if err != nil {
		return value.Value{}, err
	}
	kind := value.Kind(kindByte)

	switch kind {
	case value.KNull:
		return value.Null(), nil

	case value.KBool:
		b, err := dec.DecodeBool()
		if err != nil {
			return value.Value{}, err
		}
		return value.NewBool(b), nil

	case value.KInt:
		i, err := dec.DecodeInt64()
		if err != nil {
			return value.Value{}, err
		}
		return value.NewInt(i), nil

	case value.KFloat:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return value.Value{}, err
		}
		return value.NewFloat(f), nil

	case value.KString:
		s, err := dec.DecodeString()
		if err != nil {
			return value.Value{}, err
		}
		return value.NewString(s), nil

	case value.KBytes:
		b, err := dec.DecodeBytes()
		if err != nil {
			return value.Value{}, err
		}
		return value.NewBytes(b), nil

	case value.KSeq:
		count, err := dec.DecodeArrayLen()
		if err != nil {
			return value.Value{}, err
		}
		items := make([]value.Value, 0, count)
		for i := 0; i < count; i++ {
			it, err := decodeValue(dec, depth+1)
			if err != nil {
				return value.Value{}, err
			}
			items = append(items, it)
		}
		return value.NewSeq(items...), nil

	case value.KSet:
		count, err := dec.DecodeArrayLen()
		if err != nil {
			return value.Value{}, err
		}
		items := make([]value.Value, 0, count)
		for i := 0; i < count; i++ {
			it, err := decodeValue(dec, depth+1)
			if err != nil {
				return value.Value{}, err
			}
			items = append(items, it)
		}
		return value.NewSet(items...), nil

	case value.KMap:
		count, err := dec.DecodeArrayLen()
		if err != nil {
			return value.Value{}, err
		}
		pairs := make([]value.Pair, 0, count)
		for i := 0; i < count; i++ {
			if ln, err := dec.DecodeArrayLen(); err != nil || ln != 2 {
				if err != nil {
					return value.Value{}, err
				}
				return value.Value{}, fmt.Errorf("codec: malformed map pair")
			}
			k, err := decodeValue(dec, depth+1)
			if err != nil {
				return value.Value{}, err
			}
			v, err := decodeValue(dec, depth+1)
			if err != nil {
				return value.Value{}, err
			}
			pairs = append(pairs, value.Pair{Key: k, Val: v})
		}
		return value.NewMap(pairs...), nil

	default:
		return value.Value{}, fmt.Errorf("codec: unrecognized value kind %d", kindByte)
	}
}
