package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names accepted by the store.
const (
	CodecZstd = "zstd"
	CodecLZ4  = "lz4"
	CodecNone = "none"
)

// Codec compresses trace blobs.
type Codec interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte, rawSize int) ([]byte, error)
}

// CodecByName resolves a codec; an empty name selects zstd.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecZstd:
		return zstdCodec{}, nil
	case CodecLZ4:
		return lz4Codec{}, nil
	case CodecNone:
		return noopCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown compression %q (use zstd, lz4 or none)", name)
	}
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
		}
		return enc
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
		}
		return dec
	},
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return CodecZstd }

func (zstdCodec) Compress(data []byte) ([]byte, error) {
	enc := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(data, nil), nil
}

func (zstdCodec) Decompress(data []byte, rawSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(dec)
	out, err := dec.DecodeAll(data, make([]byte, 0, rawSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return out, nil
}

type lz4Codec struct{}

func (lz4Codec) Name() string { return CodecLZ4 }

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var c lz4.Compressor
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := c.CompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}
	if n == 0 {
		// incompressible input; store it raw behind a zero marker
		return append([]byte{0}, data...), nil
	}
	return append([]byte{1}, dst[:n]...), nil
}

func (lz4Codec) Decompress(data []byte, rawSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == 0 {
		return append([]byte(nil), data[1:]...), nil
	}
	out := make([]byte, rawSize)
	n, err := lz4.UncompressBlock(data[1:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompression failed: %w", err)
	}
	return out[:n], nil
}

type noopCodec struct{}

func (noopCodec) Name() string { return CodecNone }

func (noopCodec) Compress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

func (noopCodec) Decompress(data []byte, _ int) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

// packColumns lays out the channels back to back as little-endian float64.
func packColumns(cols ...[]float64) []byte {
	var total int
	for _, c := range cols {
		total += len(c)
	}
	buf := make([]byte, 0, total*8)
	for _, c := range cols {
		for _, v := range c {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	return buf
}

// unpackColumns splits buf into n columns of equal length.
func unpackColumns(buf []byte, n int) ([][]float64, error) {
	if n <= 0 || len(buf)%(8*n) != 0 {
		return nil, fmt.Errorf("trace blob has %d bytes, not a multiple of %d columns", len(buf), n)
	}
	per := len(buf) / (8 * n)
	cols := make([][]float64, n)
	for c := range cols {
		col := make([]float64, per)
		for i := range col {
			off := (c*per + i) * 8
			col[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
		}
		cols[c] = col
	}
	return cols, nil
}

func checksum(raw []byte) int64 {
	return int64(xxhash.Sum64(raw))
}
