package objstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects how block objects are compressed.
type Codec uint8

const (
	// CodecNone stores blocks as is.
	CodecNone Codec = 0
	// CodecLZ4 uses LZ4 block compression (fast).
	CodecLZ4 Codec = 1
	// CodecZSTD uses ZSTD (better ratio).
	CodecZSTD Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec parses "none", "lz4" or "zstd". The empty string means none.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "", "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZSTD, nil
	default:
		return CodecNone, fmt.Errorf("unknown codec %q", s)
	}
}

var (
	errShortObject  = errors.New("block object too small")
	errSizeMismatch = errors.New("decoded size mismatch")
)

// Header: [UncompressedSize uint32][Codec uint8]
const headerSize = 5

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// encode frames p as a block object. Blocks that do not shrink below 90% of
// their size are stored uncompressed.
func encode(c Codec, p []byte) ([]byte, error) {
	var body []byte
	switch c {
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(p)))
		n, err := lz4.CompressBlock(p, buf, nil)
		if err != nil {
			return nil, err
		}
		body = buf[:n]
	case CodecZSTD:
		enc := getZstdEncoder()
		body = enc.EncodeAll(p, nil)
		zstdEncoderPool.Put(enc)
	}

	used := c
	if len(body) == 0 || float64(len(body)) > float64(len(p))*0.9 {
		used, body = CodecNone, p
	}

	out := make([]byte, headerSize+len(body))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(p)))
	out[4] = byte(used)
	copy(out[headerSize:], body)
	return out, nil
}

// decode expands a block object into dst and returns the decoded length.
func decode(obj, dst []byte) (int, error) {
	if len(obj) < headerSize {
		return 0, errShortObject
	}
	size := int(binary.LittleEndian.Uint32(obj[0:]))
	body := obj[headerSize:]
	if size > len(dst) {
		return 0, fmt.Errorf("block of %d bytes exceeds buffer of %d", size, len(dst))
	}

	switch Codec(obj[4]) {
	case CodecNone:
		if len(body) != size {
			return 0, errSizeMismatch
		}
		return copy(dst, body), nil

	case CodecLZ4:
		n, err := lz4.UncompressBlock(body, dst[:size])
		if err != nil {
			return 0, err
		}
		if n != size {
			return 0, errSizeMismatch
		}
		return n, nil

	case CodecZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(body, dst[:0:size])
		if err != nil {
			return 0, err
		}
		if len(out) != size {
			return 0, errSizeMismatch
		}
		return copy(dst, out), nil

	default:
		return 0, fmt.Errorf("unknown codec id %d", obj[4])
	}
}
